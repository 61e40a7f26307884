package discovery

import (
	"github.com/RoaringBitmap/roaring"
)

// noExclusion disables the tentative exclusion in arena.reachable.
const noExclusion = -1

type arenaEdge struct {
	from   uint32
	to     uint32
	weight int64
}

// arena is an index-based view of a SuccessionGraph. Deletions are recorded
// in two bitmaps instead of rebuilding maps, so a tentative deletion costs
// one traversal and no copy.
type arena struct {
	g     *SuccessionGraph
	names []Activity
	ids   map[Activity]uint32
	start uint32
	end   uint32

	edges []arenaEdge
	out   [][]uint32
	in    [][]uint32

	deadNodes *roaring.Bitmap
	deadEdges *roaring.Bitmap
}

func newArena(g *SuccessionGraph) *arena {
	a := &arena{
		g:         g,
		names:     g.Nodes(),
		ids:       make(map[Activity]uint32, g.Len()),
		deadNodes: roaring.New(),
		deadEdges: roaring.New(),
	}
	for i, name := range a.names {
		a.ids[name] = uint32(i)
	}
	a.start = a.ids[g.Start()]
	a.end = a.ids[g.End()]

	a.out = make([][]uint32, len(a.names))
	a.in = make([][]uint32, len(a.names))
	for _, e := range g.Edges() {
		id := uint32(len(a.edges))
		from, to := a.ids[e.From], a.ids[e.To]
		a.edges = append(a.edges, arenaEdge{from: from, to: to, weight: e.Weight})
		a.out[from] = append(a.out[from], id)
		a.in[to] = append(a.in[to], id)
	}
	return a
}

func (a *arena) nodeAlive(n uint32) bool {
	return !a.deadNodes.Contains(n)
}

// edgeAlive reports whether an edge and both its endpoints are alive.
func (a *arena) edgeAlive(id uint32) bool {
	if a.deadEdges.Contains(id) {
		return false
	}
	e := a.edges[id]
	return a.nodeAlive(e.from) && a.nodeAlive(e.to)
}

// reachable runs a depth-first search from start over live nodes and edges,
// additionally treating skipNode and skipEdge as deleted. It does not modify
// the arena. The visited bitmap bounds the walk on cyclic graphs.
func (a *arena) reachable(skipNode, skipEdge int) bool {
	if skipNode == int(a.start) || skipNode == int(a.end) {
		return false
	}

	visited := roaring.New()
	stack := []uint32{a.start}
	visited.Add(a.start)

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == a.end {
			return true
		}

		for _, id := range a.out[n] {
			if int(id) == skipEdge || !a.edgeAlive(id) {
				continue
			}
			next := a.edges[id].to
			if int(next) == skipNode {
				continue
			}
			if visited.CheckedAdd(next) {
				stack = append(stack, next)
			}
		}
	}
	return false
}

func (a *arena) liveDegree(n uint32) (in, out int) {
	for _, id := range a.in[n] {
		if a.edgeAlive(id) {
			in++
		}
	}
	for _, id := range a.out[n] {
		if a.edgeAlive(id) {
			out++
		}
	}
	return in, out
}

func (a *arena) isBoundary(n uint32) bool {
	return n == a.start || n == a.end
}

// graph materializes the live part of the arena as a new SuccessionGraph.
func (a *arena) graph() *SuccessionGraph {
	freq := make(ActivityFrequency, len(a.names))
	for i, name := range a.names {
		if a.nodeAlive(uint32(i)) {
			freq[name] = a.g.Frequency(name)
		}
	}

	edges := make([]Edge, 0, len(a.edges))
	for i, e := range a.edges {
		if a.edgeAlive(uint32(i)) {
			edges = append(edges, Edge{From: a.names[e.from], To: a.names[e.to], Weight: e.weight})
		}
	}
	return newSuccessionGraph(a.g.Start(), a.g.End(), freq, edges)
}
