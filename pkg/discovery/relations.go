package discovery

// RelationSet holds the ordering relations mined from a succession graph.
type RelationSet struct {
	// Nodes are the activities of the mined graph, sorted.
	Nodes ActivitySet `json:"nodes"`

	// Causality maps a to the activities it causally precedes, after the
	// edges represented by XOR groups have been removed.
	Causality map[Activity]ActivitySet `json:"causality"`

	// InvCausality maps b to its causal predecessors, only for activities
	// with more than one.
	InvCausality map[Activity]ActivitySet `json:"inv_causality"`

	// Parallelism holds the pairs that directly follow each other both ways.
	Parallelism PairSet `json:"-"`

	// XorSplit maps a branch point to its mutually exclusive successors.
	XorSplit map[Activity]ActivitySet `json:"xor_split"`

	// XorJoin maps a merge point to its mutually exclusive predecessors.
	XorJoin map[Activity]ActivitySet `json:"xor_join"`
}

// ParallelPairs returns the parallel pairs in sorted order.
func (r *RelationSet) ParallelPairs() []Pair {
	return r.Parallelism.Sorted()
}

// MineRelations computes the alpha-algorithm relations of g.
//
// Both XOR group maps are computed from the unmodified causality relation
// before any edge is removed, so the result does not depend on the order in
// which branch points are visited.
func MineRelations(g *SuccessionGraph) *RelationSet {
	nodes := NewActivitySet(g.Nodes()...)
	causality := Causality(g)
	inv := InvertCausality(causality)

	xorSplit := xorGroups(g, causality)
	xorJoin := xorGroups(g, inv)

	reduced := make(map[Activity]ActivitySet, len(causality))
	for a, succ := range causality {
		reduced[a] = succ
	}
	for _, p := range sortedKeys(xorSplit) {
		reduced[p] = reduced[p].Without(xorSplit[p])
	}
	for _, s := range sortedKeys(xorJoin) {
		for _, p := range xorJoin[s] {
			reduced[p] = reduced[p].Without(ActivitySet{s})
		}
	}
	for a, succ := range reduced {
		if len(succ) == 0 {
			delete(reduced, a)
		}
	}

	return &RelationSet{
		Nodes:        nodes,
		Causality:    reduced,
		InvCausality: InvertCausality(reduced),
		Parallelism:  Parallelism(g),
		XorSplit:     xorSplit,
		XorJoin:      xorJoin,
	}
}

// Causality returns a -> {b : a->b and not b->a}. Self-loops are excluded.
func Causality(g *SuccessionGraph) map[Activity]ActivitySet {
	out := make(map[Activity]ActivitySet)
	for _, e := range g.Edges() {
		if e.From == e.To || g.HasEdge(e.To, e.From) {
			continue
		}
		out[e.From] = out[e.From].Add(e.To)
	}
	return out
}

// InvertCausality returns b -> causal predecessors of b, keeping only the
// activities with more than one predecessor.
func InvertCausality(causality map[Activity]ActivitySet) map[Activity]ActivitySet {
	inv := make(map[Activity]ActivitySet)
	for _, a := range sortedKeys(causality) {
		for _, b := range causality[a] {
			inv[b] = inv[b].Add(a)
		}
	}
	for b, preds := range inv {
		if len(preds) < 2 {
			delete(inv, b)
		}
	}
	return inv
}

// Parallelism returns the unordered pairs {a,b}, a != b, with edges in both
// directions.
func Parallelism(g *SuccessionGraph) PairSet {
	out := make(PairSet)
	for _, e := range g.Edges() {
		if e.From != e.To && g.HasEdge(e.To, e.From) {
			out[NewPair(e.From, e.To)] = struct{}{}
		}
	}
	return out
}

// xorGroups finds, for every key with more than one related activity, the
// members that share no direct-succession edge in either direction with at
// least one sibling. Each unordered pair is tested exactly once.
func xorGroups(g *SuccessionGraph, rel map[Activity]ActivitySet) map[Activity]ActivitySet {
	out := make(map[Activity]ActivitySet)
	for _, key := range sortedKeys(rel) {
		if group := unrelatedMembers(g, rel[key]); len(group) > 0 {
			out[key] = group
		}
	}
	return out
}

func unrelatedMembers(g *SuccessionGraph, members ActivitySet) ActivitySet {
	if len(members) < 2 {
		return nil
	}
	var group ActivitySet
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			a, b := members[i], members[j]
			if !g.HasEdge(a, b) && !g.HasEdge(b, a) {
				group = group.Add(a).Add(b)
			}
		}
	}
	return group
}
