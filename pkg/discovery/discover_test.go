package discovery

import (
	"testing"

	lferrors "github.com/logflow/alphaflow/pkg/errors"
)

func TestDiscover_XorDiamond(t *testing.T) {
	model, maxWeight, maxFreq, err := Discover(xorDiamond(), 0, 0, "Start", "End")
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if maxWeight != 5 {
		t.Errorf("maxTraceWeight = %d, want 5", maxWeight)
	}
	if maxFreq != 8 {
		t.Errorf("maxActivityFrequency = %d, want 8", maxFreq)
	}
	if _, ok := model.Node("XORs A->[B C]"); !ok {
		t.Error("missing XOR split")
	}
	if _, ok := model.Node("XORm [B C]->D"); !ok {
		t.Error("missing XOR join")
	}
}

func TestDiscover_ThresholdRemovesBranch(t *testing.T) {
	model, _, _, err := Discover(xorDiamond(), 4, 0, "Start", "End")
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if _, ok := model.Node("C"); ok {
		t.Error("C should have been reduced away")
	}
	if len(model.Gateways()) != 0 {
		t.Errorf("gateways = %v, want none", model.Gateways())
	}
	for _, arc := range [][2]string{{"Start", "A"}, {"A", "B"}, {"B", "D"}, {"D", "End"}} {
		if !model.HasArc(arc[0], arc[1]) {
			t.Errorf("missing arc %s->%s", arc[0], arc[1])
		}
	}
}

func TestDiscover_CustomBoundaryNames(t *testing.T) {
	model, _, _, err := Discover(andDiamond(), 0, 0, "begin", "finish")
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if !model.HasArc("begin", "A") || !model.HasArc("D", "finish") {
		t.Errorf("boundary arcs missing: %v", model.Arcs)
	}
	if n, ok := model.Node("begin"); !ok || n.Boundary != BoundaryStart {
		t.Errorf("begin = %+v", n)
	}
}

func TestDiscover_Errors(t *testing.T) {
	tests := []struct {
		name       string
		traces     []WeightedTrace
		node, edge int64
		start, end string
		code       lferrors.Code
	}{
		{"empty log", nil, 0, 0, "Start", "End", lferrors.CodeEmptyLog},
		{"negative node threshold", xorDiamond(), -1, 0, "Start", "End", lferrors.CodeInvalidThreshold},
		{"negative edge threshold", xorDiamond(), 0, -5, "Start", "End", lferrors.CodeInvalidThreshold},
		{"same boundary names", xorDiamond(), 0, 0, "X", "X", lferrors.CodeNameCollision},
		{"empty boundary name", xorDiamond(), 0, 0, "", "End", lferrors.CodeNameCollision},
		{"activity named like boundary", []WeightedTrace{trace(1, "A", "End")}, 0, 0, "Start", "End", lferrors.CodeNameCollision},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := Discover(tt.traces, tt.node, tt.edge, tt.start, tt.end)
			if !lferrors.IsCode(err, tt.code) {
				t.Errorf("err = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestEngine_RunKeepsIntermediates(t *testing.T) {
	res, err := NewEngine(nil).Run(xorDiamond(), Options{
		Thresholds: Thresholds{Node: 4},
		StartName:  DefaultStartName,
		EndName:    DefaultEndName,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Graph.Has("C") {
		t.Error("unreduced graph lost C")
	}
	if res.Reduced.Has("C") {
		t.Error("reduced graph kept C")
	}
	if res.Stats.NodesRemoved != 1 {
		t.Errorf("NodesRemoved = %d, want 1", res.Stats.NodesRemoved)
	}
	if len(res.Relations.XorSplit) != 0 {
		t.Errorf("relations mined on the unreduced graph: %v", res.Relations.XorSplit)
	}
}

func TestEngine_RejectsDisconnectedGraph(t *testing.T) {
	g := NewSuccessionGraph("Start", "End",
		ActivityFrequency{"Start": 3, "A": 2, "B": 2, "End": 3},
		[]Edge{
			{From: "Start", To: "A", Weight: 2},
			{From: "B", To: "End", Weight: 2},
		})
	if g.Reachable() {
		t.Fatal("graph without an A->B edge should not connect Start to End")
	}

	_, err := NewEngine(nil).runGraph(&TraceIndex{}, g, DefaultOptions())
	if !lferrors.IsCode(err, lferrors.CodeDisconnectedLog) {
		t.Errorf("err = %v, want code %s", err, lferrors.CodeDisconnectedLog)
	}
}
