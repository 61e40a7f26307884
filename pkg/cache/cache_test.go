package cache

import (
	"context"
	"testing"
	"time"

	"github.com/logflow/alphaflow/pkg/discovery"
	"github.com/logflow/alphaflow/pkg/render"
)

func traces() []discovery.WeightedTrace {
	return []discovery.WeightedTrace{
		{Activities: []discovery.Activity{"A", "B", "D"}, Count: 5},
		{Activities: []discovery.Activity{"A", "C", "D"}, Count: 3},
	}
}

func TestKey(t *testing.T) {
	opts := discovery.DefaultOptions()
	ropts := render.DefaultOptions()
	base := Key(traces(), opts, "dot", ropts)

	if got := Key(traces(), opts, "dot", ropts); got != base {
		t.Errorf("Key not deterministic: %s != %s", got, base)
	}
	if len(base) != 64 {
		t.Errorf("len(Key) = %d, want 64 hex chars", len(base))
	}

	withNode := opts
	withNode.Thresholds.Node = 4
	renamed := opts
	renamed.StartName = "begin"
	recounted := traces()
	recounted[1].Count = 4
	// "AB" + "C" must not collide with "A" + "BC"
	split := []discovery.WeightedTrace{{Activities: []discovery.Activity{"AB", "C"}, Count: 1}}
	joined := []discovery.WeightedTrace{{Activities: []discovery.Activity{"A", "BC"}, Count: 1}}

	labelled := ropts
	labelled.BoundaryLabels = true
	named := ropts
	named.Name = "orders"
	// the dot binary only matters for images of the same document
	rebinned := ropts
	rebinned.DotBinary = "/usr/local/bin/dot"

	if Key(traces(), opts, "dot", rebinned) != base {
		t.Error("dot binary changes the key")
	}

	variants := map[string]string{
		"boundary labels": Key(traces(), opts, "dot", labelled),
		"graph name":      Key(traces(), opts, "dot", named),
		"node threshold":  Key(traces(), withNode, "dot", ropts),
		"start name":      Key(traces(), renamed, "dot", ropts),
		"format":          Key(traces(), opts, "json", ropts),
		"count":           Key(recounted, opts, "dot", ropts),
	}
	for name, k := range variants {
		if k == base {
			t.Errorf("%s does not change the key", name)
		}
	}
	if Key(split, opts, "dot", ropts) == Key(joined, opts, "dot", ropts) {
		t.Error("activity boundaries are not part of the key")
	}
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var c Cache = Noop{}
	if err := c.Set(ctx, "k", &Entry{Format: "dot"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	e, err := c.Get(ctx, "k")
	if err != nil || e != nil {
		t.Errorf("Get = (%v, %v), want a miss", e, err)
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }

	want := &Entry{Format: "dot", Body: []byte("digraph {}"), MaxTraceWeight: 5, Gateways: 2}
	if err := m.Set(ctx, "k", want); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || string(got.Body) != "digraph {}" || got.MaxTraceWeight != 5 || got.Gateways != 2 {
		t.Errorf("Get = %+v, want %+v", got, want)
	}

	now = now.Add(time.Minute)
	if got, _ := m.Get(ctx, "k"); got != nil {
		t.Errorf("expired entry returned: %+v", got)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0 after expiry", m.Len())
	}
}
