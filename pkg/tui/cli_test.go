package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/logflow/alphaflow/internal/pipe"
	"github.com/logflow/alphaflow/pkg/discovery"
)

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, &Report{
		Inputs:               []string{"/data/orders.csv", "/data/returns.xes"},
		Output:               "model.dot",
		Events:               24,
		Activities:           6,
		Gateways:             2,
		Arcs:                 8,
		NodeThreshold:        1,
		MaxTraceWeight:       5,
		MaxActivityFrequency: 8,
		Duration:             1500 * time.Millisecond,
	})

	out := buf.String()
	for _, want := range []string{
		"orders.csv, returns.xes",
		"6 activities, 2 gateways, 8 arcs",
		"max frequency 8",
		"max weight 5",
		"model.dot",
		"1.5s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestPrintReport_Cached(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, &Report{Cached: true, Duration: 3 * time.Millisecond})
	if !strings.Contains(buf.String(), "cached") || !strings.Contains(buf.String(), "3ms") {
		t.Errorf("report = %s", buf.String())
	}
}

func TestPrintRelations(t *testing.T) {
	rel := &discovery.RelationSet{
		Causality:   map[discovery.Activity]discovery.ActivitySet{"D": {"E"}},
		Parallelism: discovery.PairSet{discovery.NewPair("C", "B"): {}},
		XorSplit:    map[discovery.Activity]discovery.ActivitySet{"A": {"B", "C"}},
		XorJoin:     map[discovery.Activity]discovery.ActivitySet{"D": {"B", "C"}},
	}
	idx, err := discovery.NewTraceIndex([]discovery.WeightedTrace{
		{Activities: []discovery.Activity{"A", "B", "D"}, Count: 2},
	})
	if err != nil {
		t.Fatalf("NewTraceIndex failed: %v", err)
	}
	g, err := discovery.BuildSuccessionGraph(idx, discovery.DefaultStartName, discovery.DefaultEndName)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	var buf bytes.Buffer
	PrintRelations(&buf, g, rel)
	out := buf.String()
	for _, want := range []string{"A → B", "×2", "D → [E]", "B ∥ C", "A → × [B C]", "× [B C] → D"} {
		if !strings.Contains(out, want) {
			t.Errorf("relations missing %q:\n%s", want, out)
		}
	}
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	PrintError(&buf, errors.New("boom"))
	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestLoadProgress_SumsFiles(t *testing.T) {
	var buf bytes.Buffer
	p := NewLoadProgress(&buf, 300, "loading")
	p.Update(pipe.ProgressStats{Path: "a.csv", BytesRead: 100})
	p.Update(pipe.ProgressStats{Path: "b.csv", BytesRead: 50})
	p.Update(pipe.ProgressStats{Path: "a.csv", BytesRead: 200})

	if got := p.bar.State().CurrentNum; got != 250 {
		t.Errorf("bar at %d, want 250", got)
	}
	p.Finish()
}

func TestFormatting(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{FormatBytes(512), "512 B"},
		{FormatBytes(1536), "1.5 KB"},
		{FormatBytes(3 << 20), "3.0 MB"},
		{formatNumber(999), "999"},
		{formatNumber(12500), "12.5K"},
		{formatNumber(2000000), "2.0M"},
		{formatDuration(250 * time.Millisecond), "250ms"},
		{formatDuration(90 * time.Second), "1m30s"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
