// Package discovery implements alpha-algorithm process discovery.
//
// The pipeline turns weighted traces into a gateway-annotated control-flow
// graph:
//
//	traces -> TraceIndex -> SuccessionGraph -> Reduce -> RelationSet -> ControlFlowGraph
//
// Every stage returns a new value and never mutates its input. All iteration
// that shapes a result runs over sorted activities, so identical input always
// produces identical output.
package discovery

import (
	"sort"
	"strings"
)

// Default names of the synthetic boundary activities.
const (
	DefaultStartName = "Start"
	DefaultEndName   = "End"
)

// Activity is an opaque activity label.
type Activity = string

// WeightedTrace is one activity sequence together with the number of cases
// that followed it.
type WeightedTrace struct {
	Activities []Activity `json:"activities"`
	Count      int64      `json:"count"`
}

// String renders the trace as "A -> B -> C".
func (t WeightedTrace) String() string {
	return strings.Join(t.Activities, " -> ")
}

// ActivityFrequency maps an activity to its case-weighted occurrence count.
type ActivityFrequency map[Activity]int64

// Max returns the largest frequency, or 0 for an empty map.
func (f ActivityFrequency) Max() int64 {
	var max int64
	for _, v := range f {
		if v > max {
			max = v
		}
	}
	return max
}

// ActivitySet is a sorted, duplicate-free list of activities.
type ActivitySet []Activity

// NewActivitySet builds a set from arbitrary input.
func NewActivitySet(items ...Activity) ActivitySet {
	if len(items) == 0 {
		return nil
	}
	out := make(ActivitySet, len(items))
	copy(out, items)
	sort.Strings(out)

	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}

// Contains reports membership using binary search.
func (s ActivitySet) Contains(a Activity) bool {
	i := sort.SearchStrings(s, a)
	return i < len(s) && s[i] == a
}

// Add returns a new set with a inserted.
func (s ActivitySet) Add(a Activity) ActivitySet {
	if s.Contains(a) {
		return s
	}
	i := sort.SearchStrings(s, a)
	out := make(ActivitySet, 0, len(s)+1)
	out = append(out, s[:i]...)
	out = append(out, a)
	return append(out, s[i:]...)
}

// Without returns a new set with every member of drop removed.
func (s ActivitySet) Without(drop ActivitySet) ActivitySet {
	var out ActivitySet
	for _, a := range s {
		if !drop.Contains(a) {
			out = append(out, a)
		}
	}
	return out
}

// String renders the set as "[A B C]".
func (s ActivitySet) String() string {
	return "[" + strings.Join(s, " ") + "]"
}

// Pair is an unordered activity pair stored with A < B.
type Pair struct {
	A Activity
	B Activity
}

// NewPair normalizes the order of its arguments.
func NewPair(a, b Activity) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

// PairSet is a set of unordered activity pairs.
type PairSet map[Pair]struct{}

// Has reports whether {a,b} is in the set, regardless of argument order.
func (p PairSet) Has(a, b Activity) bool {
	_, ok := p[NewPair(a, b)]
	return ok
}

// Sorted returns the pairs ordered by (A, B).
func (p PairSet) Sorted() []Pair {
	out := make([]Pair, 0, len(p))
	for pair := range p {
		out = append(out, pair)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// AllPairsIn reports whether every unordered pair of members is in pairs.
// Sets with fewer than two members are vacuously covered.
func (s ActivitySet) AllPairsIn(pairs PairSet) bool {
	for i := 0; i < len(s); i++ {
		for j := i + 1; j < len(s); j++ {
			if !pairs.Has(s[i], s[j]) {
				return false
			}
		}
	}
	return true
}

func sortedKeys(m map[Activity]ActivitySet) []Activity {
	keys := make([]Activity, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
