package discovery

import (
	"fmt"
	"sort"
	"strings"

	lferrors "github.com/logflow/alphaflow/pkg/errors"
)

// Edge is a weighted direct-succession arc.
type Edge struct {
	From   Activity `json:"from"`
	To     Activity `json:"to"`
	Weight int64    `json:"weight"`
}

// SuccessionGraph is the weighted direct-succession graph ("w-net") of a log,
// including the synthetic start and end activities. It is immutable.
type SuccessionGraph struct {
	start Activity
	end   Activity

	// order lists nodes by ascending frequency, ties by name.
	order []Activity
	succ  map[Activity]map[Activity]int64
	pred  map[Activity]map[Activity]int64
	freq  ActivityFrequency

	startSet ActivitySet
	endSet   ActivitySet
}

// BuildSuccessionGraph builds the w-net of a trace index.
//
// Start is connected to every first activity s with the total weight s
// already carries onward; every last activity e is connected to End with
// e's own total outgoing weight (0 when e has no successor). Start and End
// get frequency max(real)+1 so node thresholds at or below that never touch
// them.
func BuildSuccessionGraph(idx *TraceIndex, start, end Activity) (*SuccessionGraph, error) {
	if start == end {
		return nil, lferrors.New(lferrors.CodeNameCollision, "start and end names must differ").
			WithContext("name", start)
	}
	for _, name := range []Activity{start, end} {
		if _, ok := idx.Frequency[name]; ok {
			return nil, lferrors.New(lferrors.CodeNameCollision, "boundary name collides with an activity").
				WithContext("name", name)
		}
	}

	weights := make(map[Activity]map[Activity]int64)
	var starts, ends []Activity

	for _, t := range idx.Traces {
		starts = append(starts, t.Activities[0])
		ends = append(ends, t.Activities[len(t.Activities)-1])
		for i := 0; i+1 < len(t.Activities); i++ {
			from, to := t.Activities[i], t.Activities[i+1]
			if weights[from] == nil {
				weights[from] = make(map[Activity]int64)
			}
			weights[from][to] += t.Count
		}
	}

	outgoing := func(a Activity) int64 {
		var sum int64
		for _, w := range weights[a] {
			sum += w
		}
		return sum
	}

	startSet := NewActivitySet(starts...)
	endSet := NewActivitySet(ends...)

	var edges []Edge
	for from, tos := range weights {
		for to, w := range tos {
			edges = append(edges, Edge{From: from, To: to, Weight: w})
		}
	}
	for _, s := range startSet {
		edges = append(edges, Edge{From: start, To: s, Weight: outgoing(s)})
	}
	for _, e := range endSet {
		edges = append(edges, Edge{From: e, To: end, Weight: outgoing(e)})
	}

	freq := make(ActivityFrequency, len(idx.Frequency)+2)
	for a, f := range idx.Frequency {
		freq[a] = f
	}
	boundary := idx.Frequency.Max() + 1
	freq[start] = boundary
	freq[end] = boundary

	return newSuccessionGraph(start, end, freq, edges), nil
}

// NewSuccessionGraph assembles a graph from explicit edges. Nodes are the
// keys of freq plus every edge endpoint; missing frequencies count as 0.
// StartSet and EndSet are derived from the start node's successors and the
// end node's predecessors.
func NewSuccessionGraph(start, end Activity, freq ActivityFrequency, edges []Edge) *SuccessionGraph {
	f := make(ActivityFrequency, len(freq))
	for a, v := range freq {
		f[a] = v
	}
	return newSuccessionGraph(start, end, f, edges)
}

func newSuccessionGraph(start, end Activity, freq ActivityFrequency, edges []Edge) *SuccessionGraph {
	g := &SuccessionGraph{
		start: start,
		end:   end,
		succ:  make(map[Activity]map[Activity]int64),
		pred:  make(map[Activity]map[Activity]int64),
		freq:  freq,
	}

	nodes := map[Activity]struct{}{start: {}, end: {}}
	for a := range freq {
		nodes[a] = struct{}{}
	}
	for _, e := range edges {
		nodes[e.From] = struct{}{}
		nodes[e.To] = struct{}{}
		if g.succ[e.From] == nil {
			g.succ[e.From] = make(map[Activity]int64)
		}
		if g.pred[e.To] == nil {
			g.pred[e.To] = make(map[Activity]int64)
		}
		g.succ[e.From][e.To] = e.Weight
		g.pred[e.To][e.From] = e.Weight
	}

	g.order = make([]Activity, 0, len(nodes))
	for a := range nodes {
		g.order = append(g.order, a)
		if _, ok := g.freq[a]; !ok {
			g.freq[a] = 0
		}
	}
	sort.Slice(g.order, func(i, j int) bool {
		fi, fj := g.freq[g.order[i]], g.freq[g.order[j]]
		if fi != fj {
			return fi < fj
		}
		return g.order[i] < g.order[j]
	})

	var starts, ends []Activity
	for a := range g.succ[start] {
		starts = append(starts, a)
	}
	for a := range g.pred[end] {
		ends = append(ends, a)
	}
	g.startSet = NewActivitySet(starts...)
	g.endSet = NewActivitySet(ends...)

	return g
}

// Start returns the synthetic start activity.
func (g *SuccessionGraph) Start() Activity { return g.start }

// End returns the synthetic end activity.
func (g *SuccessionGraph) End() Activity { return g.end }

// Nodes returns all activities ordered by ascending frequency, ties by name.
func (g *SuccessionGraph) Nodes() []Activity {
	out := make([]Activity, len(g.order))
	copy(out, g.order)
	return out
}

// Len returns the number of nodes.
func (g *SuccessionGraph) Len() int { return len(g.order) }

// Has reports whether a is a node of the graph.
func (g *SuccessionGraph) Has(a Activity) bool {
	_, ok := g.freq[a]
	return ok
}

// Frequency returns the frequency of a.
func (g *SuccessionGraph) Frequency(a Activity) int64 { return g.freq[a] }

// Frequencies returns a copy of the frequency map restricted to graph nodes.
func (g *SuccessionGraph) Frequencies() ActivityFrequency {
	out := make(ActivityFrequency, len(g.order))
	for _, a := range g.order {
		out[a] = g.freq[a]
	}
	return out
}

// HasEdge reports whether b directly follows a.
func (g *SuccessionGraph) HasEdge(a, b Activity) bool {
	_, ok := g.succ[a][b]
	return ok
}

// Weight returns the weight of a->b, or 0 when absent.
func (g *SuccessionGraph) Weight(a, b Activity) int64 {
	return g.succ[a][b]
}

// Successors returns the outgoing edges of a by ascending weight, ties by name.
func (g *SuccessionGraph) Successors(a Activity) []Edge {
	return sortEdges(a, g.succ[a], false)
}

// Predecessors returns the incoming edges of a by ascending weight, ties by name.
func (g *SuccessionGraph) Predecessors(a Activity) []Edge {
	return sortEdges(a, g.pred[a], true)
}

func sortEdges(a Activity, m map[Activity]int64, incoming bool) []Edge {
	out := make([]Edge, 0, len(m))
	for other, w := range m {
		if incoming {
			out = append(out, Edge{From: other, To: a, Weight: w})
		} else {
			out = append(out, Edge{From: a, To: other, Weight: w})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight < out[j].Weight
		}
		if incoming {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Edges returns all edges in graph order: source nodes by ascending
// frequency, then each node's successors by ascending weight.
func (g *SuccessionGraph) Edges() []Edge {
	var out []Edge
	for _, a := range g.order {
		out = append(out, g.Successors(a)...)
	}
	return out
}

// EdgeCount returns the number of edges.
func (g *SuccessionGraph) EdgeCount() int {
	n := 0
	for _, m := range g.succ {
		n += len(m)
	}
	return n
}

// StartSet returns the activities directly following the start node.
func (g *SuccessionGraph) StartSet() ActivitySet { return g.startSet }

// EndSet returns the activities directly preceding the end node.
func (g *SuccessionGraph) EndSet() ActivitySet { return g.endSet }

// IsBoundary reports whether a is the synthetic start or end node.
func (g *SuccessionGraph) IsBoundary(a Activity) bool {
	return a == g.start || a == g.end
}

// MaxEdgeWeight returns the largest weight among edges between real
// activities, or 0 when there are none.
func (g *SuccessionGraph) MaxEdgeWeight() int64 {
	var max int64
	for from, tos := range g.succ {
		if g.IsBoundary(from) {
			continue
		}
		for to, w := range tos {
			if !g.IsBoundary(to) && w > max {
				max = w
			}
		}
	}
	return max
}

// MaxActivityFrequency returns the largest frequency of a real activity.
func (g *SuccessionGraph) MaxActivityFrequency() int64 {
	var max int64
	for _, a := range g.order {
		if !g.IsBoundary(a) && g.freq[a] > max {
			max = g.freq[a]
		}
	}
	return max
}

// Reachable reports whether the end node can be reached from the start node.
func (g *SuccessionGraph) Reachable() bool {
	return newArena(g).reachable(noExclusion, noExclusion)
}

// String renders the graph one node per line, for diagnostics.
func (g *SuccessionGraph) String() string {
	var sb strings.Builder
	for _, a := range g.order {
		sb.WriteString(fmt.Sprintf("%s (%d):", a, g.freq[a]))
		for _, e := range g.Successors(a) {
			sb.WriteString(fmt.Sprintf(" %s=%d", e.To, e.Weight))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
