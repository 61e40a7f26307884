package discovery

import (
	"reflect"
	"testing"
)

func TestReduce_NodeThreshold(t *testing.T) {
	tests := []struct {
		name         string
		threshold    int64
		wantNodes    []Activity
		wantRemoved  int
		wantRejected int
	}{
		{"disabled", 0, []Activity{"C", "B", "A", "D", "End", "Start"}, 0, 0},
		{"drops rare branch", 4, []Activity{"B", "A", "D", "End", "Start"}, 1, 0},
		{"keeps the only path", 100, []Activity{"B", "A", "D", "End", "Start"}, 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := buildGraph(t, xorDiamond())
			out, stats := NewReducer(nil).Reduce(g, Thresholds{Node: tt.threshold})

			if !reflect.DeepEqual(out.Nodes(), tt.wantNodes) {
				t.Errorf("Nodes = %v, want %v", out.Nodes(), tt.wantNodes)
			}
			if stats.NodesRemoved != tt.wantRemoved {
				t.Errorf("NodesRemoved = %d, want %d", stats.NodesRemoved, tt.wantRemoved)
			}
			if stats.NodesRejected != tt.wantRejected {
				t.Errorf("NodesRejected = %d, want %d", stats.NodesRejected, tt.wantRejected)
			}
			if !out.Reachable() {
				t.Error("End not reachable after reduction")
			}
		})
	}
}

func TestReduce_LinearLogUnchanged(t *testing.T) {
	g := buildGraph(t, []WeightedTrace{trace(1, "A", "B", "C")})
	out := Reduce(g, Thresholds{Node: 1000, Edge: 1000})

	if !reflect.DeepEqual(out.Nodes(), g.Nodes()) {
		t.Errorf("Nodes = %v, want %v", out.Nodes(), g.Nodes())
	}
	if !reflect.DeepEqual(out.Edges(), g.Edges()) {
		t.Errorf("Edges = %v, want %v", out.Edges(), g.Edges())
	}
}

func TestReduce_EdgeThreshold(t *testing.T) {
	g := buildGraph(t, xorDiamond())
	out, stats := NewReducer(nil).Reduce(g, Thresholds{Edge: 4})

	if stats.EdgesRemoved != 2 {
		t.Errorf("EdgesRemoved = %d, want 2", stats.EdgesRemoved)
	}
	// D->End has weight 0 but is the only way into End.
	if stats.EdgesRejected != 1 {
		t.Errorf("EdgesRejected = %d, want 1", stats.EdgesRejected)
	}
	if stats.NodesCleaned != 1 {
		t.Errorf("NodesCleaned = %d, want 1", stats.NodesCleaned)
	}
	if out.Has("C") {
		t.Error("isolated activity C survived cleanup")
	}
	if !out.HasEdge("D", "End") {
		t.Error("D->End removed")
	}
}

func TestReduce_RemovesDanglingChains(t *testing.T) {
	g := NewSuccessionGraph("Start", "End", nil, []Edge{
		{From: "Start", To: "A", Weight: 1},
		{From: "A", To: "End", Weight: 1},
		{From: "A", To: "X", Weight: 1},
		{From: "X", To: "Y", Weight: 1},
	})
	out, stats := NewReducer(nil).Reduce(g, Thresholds{})

	if stats.NodesCleaned != 2 {
		t.Errorf("NodesCleaned = %d, want 2", stats.NodesCleaned)
	}
	want := []Activity{"A", "End", "Start"}
	if !reflect.DeepEqual(out.Nodes(), want) {
		t.Errorf("Nodes = %v, want %v", out.Nodes(), want)
	}
	if out.HasEdge("A", "X") {
		t.Error("edge into removed node survived")
	}
}

func TestReduce_Idempotent(t *testing.T) {
	traces := []WeightedTrace{
		trace(10, "A", "B", "C", "E"),
		trace(6, "A", "C", "B", "E"),
		trace(2, "A", "D", "E"),
		trace(1, "A", "B", "D", "B", "E"),
		trace(1, "A", "F"),
	}
	thresholds := []Thresholds{
		{},
		{Node: 3},
		{Edge: 3},
		{Node: 5, Edge: 2},
		{Node: 1 << 40, Edge: 1 << 40},
	}

	for _, th := range thresholds {
		g := buildGraph(t, traces)
		once := Reduce(g, th)
		twice := Reduce(once, th)

		if !once.Reachable() {
			t.Errorf("%+v: End not reachable", th)
		}
		if !reflect.DeepEqual(once.Nodes(), twice.Nodes()) {
			t.Errorf("%+v: nodes changed on second pass: %v -> %v", th, once.Nodes(), twice.Nodes())
		}
		if !reflect.DeepEqual(once.Edges(), twice.Edges()) {
			t.Errorf("%+v: edges changed on second pass: %v -> %v", th, once.Edges(), twice.Edges())
		}
	}
}

func TestReduce_TerminatesOnCycles(t *testing.T) {
	g := buildGraph(t, []WeightedTrace{
		trace(5, "A", "B", "A", "B", "C"),
		trace(1, "A", "C"),
	})
	out := Reduce(g, Thresholds{Node: 100, Edge: 100})
	if !out.Reachable() {
		t.Fatal("End not reachable")
	}
	if !out.Has("A") || !out.Has("C") {
		t.Errorf("necessary activities removed: %v", out.Nodes())
	}
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	g := buildGraph(t, xorDiamond())
	before := g.Edges()
	Reduce(g, Thresholds{Node: 4, Edge: 4})
	if !reflect.DeepEqual(before, g.Edges()) {
		t.Error("input graph modified")
	}
}
