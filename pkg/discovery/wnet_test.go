package discovery

import (
	"reflect"
	"testing"

	lferrors "github.com/logflow/alphaflow/pkg/errors"
)

func buildGraph(t *testing.T, traces []WeightedTrace) *SuccessionGraph {
	t.Helper()
	idx, err := NewTraceIndex(traces)
	if err != nil {
		t.Fatalf("NewTraceIndex failed: %v", err)
	}
	g, err := BuildSuccessionGraph(idx, DefaultStartName, DefaultEndName)
	if err != nil {
		t.Fatalf("BuildSuccessionGraph failed: %v", err)
	}
	return g
}

func TestBuildSuccessionGraph_XorDiamond(t *testing.T) {
	g := buildGraph(t, xorDiamond())

	tests := []struct {
		from, to Activity
		weight   int64
	}{
		{"Start", "A", 8},
		{"A", "B", 5},
		{"A", "C", 3},
		{"B", "D", 5},
		{"C", "D", 3},
		{"D", "End", 0},
	}
	for _, tt := range tests {
		if !g.HasEdge(tt.from, tt.to) {
			t.Errorf("missing edge %s->%s", tt.from, tt.to)
			continue
		}
		if got := g.Weight(tt.from, tt.to); got != tt.weight {
			t.Errorf("Weight(%s,%s) = %d, want %d", tt.from, tt.to, got, tt.weight)
		}
	}
	if g.EdgeCount() != len(tests) {
		t.Errorf("EdgeCount = %d, want %d", g.EdgeCount(), len(tests))
	}

	if g.Frequency("Start") != 9 || g.Frequency("End") != 9 {
		t.Errorf("boundary frequency = %d/%d, want 9/9", g.Frequency("Start"), g.Frequency("End"))
	}
	if !reflect.DeepEqual(g.StartSet(), ActivitySet{"A"}) {
		t.Errorf("StartSet = %v, want [A]", g.StartSet())
	}
	if !reflect.DeepEqual(g.EndSet(), ActivitySet{"D"}) {
		t.Errorf("EndSet = %v, want [D]", g.EndSet())
	}
	if g.MaxEdgeWeight() != 5 {
		t.Errorf("MaxEdgeWeight = %d, want 5", g.MaxEdgeWeight())
	}
	if g.MaxActivityFrequency() != 8 {
		t.Errorf("MaxActivityFrequency = %d, want 8", g.MaxActivityFrequency())
	}
}

func TestBuildSuccessionGraph_Ordering(t *testing.T) {
	g := buildGraph(t, xorDiamond())

	wantNodes := []Activity{"C", "B", "A", "D", "End", "Start"}
	if !reflect.DeepEqual(g.Nodes(), wantNodes) {
		t.Errorf("Nodes = %v, want %v", g.Nodes(), wantNodes)
	}

	succ := g.Successors("A")
	if len(succ) != 2 || succ[0].To != "C" || succ[1].To != "B" {
		t.Errorf("Successors(A) = %v, want C then B", succ)
	}
}

func TestBuildSuccessionGraph_WeightConservation(t *testing.T) {
	traces := []WeightedTrace{
		trace(4, "A", "B", "C"),
		trace(2, "A", "C"),
		trace(3, "X", "C"),
	}
	g := buildGraph(t, traces)

	var fromStart int64
	for _, e := range g.Successors(g.Start()) {
		fromStart += e.Weight
	}

	var cases int64
	for _, tr := range traces {
		if g.StartSet().Contains(tr.Activities[0]) {
			cases += tr.Count
		}
	}
	if fromStart != cases {
		t.Errorf("Start outgoing = %d, want %d", fromStart, cases)
	}
}

func TestBuildSuccessionGraph_SingleActivityTrace(t *testing.T) {
	g := buildGraph(t, []WeightedTrace{trace(4, "X")})

	if !g.HasEdge("Start", "X") || !g.HasEdge("X", "End") {
		t.Fatal("single activity must connect to both boundaries")
	}
	if g.Weight("Start", "X") != 0 || g.Weight("X", "End") != 0 {
		t.Error("single activity has no outgoing traffic, boundary weights must be 0")
	}
	if g.Frequency("X") != 4 {
		t.Errorf("Frequency(X) = %d, want 4", g.Frequency("X"))
	}
	if !g.Reachable() {
		t.Error("End must be reachable")
	}
}

func TestBuildSuccessionGraph_NameCollision(t *testing.T) {
	idx, err := NewTraceIndex([]WeightedTrace{trace(1, "Start", "B")})
	if err != nil {
		t.Fatalf("NewTraceIndex failed: %v", err)
	}

	if _, err := BuildSuccessionGraph(idx, "Start", "End"); !lferrors.IsCode(err, lferrors.CodeNameCollision) {
		t.Errorf("err = %v, want name collision", err)
	}
	if _, err := BuildSuccessionGraph(idx, "begin", "begin"); !lferrors.IsCode(err, lferrors.CodeNameCollision) {
		t.Errorf("err = %v, want name collision for equal names", err)
	}
	if _, err := BuildSuccessionGraph(idx, "begin", "finish"); err != nil {
		t.Errorf("custom names rejected: %v", err)
	}
}

func TestSuccessionGraph_Reachable(t *testing.T) {
	connected := NewSuccessionGraph("S", "E", nil, []Edge{
		{From: "S", To: "A", Weight: 1},
		{From: "A", To: "B", Weight: 1},
		{From: "B", To: "A", Weight: 1},
		{From: "B", To: "E", Weight: 1},
	})
	if !connected.Reachable() {
		t.Error("cyclic connected graph reported unreachable")
	}

	disconnected := NewSuccessionGraph("S", "E", nil, []Edge{
		{From: "S", To: "A", Weight: 1},
		{From: "A", To: "A", Weight: 1},
		{From: "B", To: "E", Weight: 1},
	})
	if disconnected.Reachable() {
		t.Error("disconnected graph reported reachable")
	}
}
