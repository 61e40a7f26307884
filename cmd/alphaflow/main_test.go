package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/logflow/alphaflow/pkg/config"
	"github.com/logflow/alphaflow/pkg/render"
	"github.com/logflow/alphaflow/pkg/storage"
)

func TestResolveOutputFormat(t *testing.T) {
	tests := []struct {
		to, path string
		want     render.Format
		wantErr  bool
	}{
		{"", "-", render.FormatDOT, false},
		{"", "model.svg", render.FormatSVG, false},
		{"", "s3://models/orders.json", render.FormatJSON, false},
		{"", "model.txt", render.FormatDOT, false},
		{"png", "model.svg", render.FormatPNG, false},
		{"bpmn", "-", "", true},
	}

	for _, tt := range tests {
		got, err := resolveOutputFormat(tt.to, tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("resolveOutputFormat(%q, %q) error = %v", tt.to, tt.path, err)
			continue
		}
		if got != tt.want {
			t.Errorf("resolveOutputFormat(%q, %q) = %s, want %s", tt.to, tt.path, got, tt.want)
		}
	}
}

func TestDiscoveryOptions_FlagsOverrideConfig(t *testing.T) {
	cfg = config.Default()
	cfg.Discovery.NodeThreshold = 4
	cfg.Discovery.EdgeThreshold = 2

	cmd := &cobra.Command{}
	addDiscoveryFlags(cmd)
	if err := cmd.Flags().Parse([]string{"--edge", "7", "--start", "begin"}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { startName, edgeThreshold = "", 0 })

	opts := discoveryOptions(cmd)
	if opts.Thresholds.Node != 4 || opts.Thresholds.Edge != 7 {
		t.Errorf("thresholds = %+v", opts.Thresholds)
	}
	if opts.StartName != "begin" || opts.EndName != "End" {
		t.Errorf("names = %q, %q", opts.StartName, opts.EndName)
	}
}

func TestWriteOutput_Local(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "model.dot")
	opener := storage.NewOpener(storage.DefaultS3Config(""))

	if err := writeOutput(context.Background(), opener, path, []byte("digraph {}")); err != nil {
		t.Fatalf("writeOutput failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "digraph {}" {
		t.Errorf("file = %q, %v", data, err)
	}
}

func TestLocalSize(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	os.WriteFile(a, make([]byte, 10), 0644)
	os.WriteFile(b, make([]byte, 5), 0644)

	if got := localSize([]string{a, b}); got != 15 {
		t.Errorf("localSize = %d, want 15", got)
	}
	if got := localSize([]string{a, "s3://logs/x.csv"}); got != 0 {
		t.Errorf("localSize with remote = %d, want 0", got)
	}
	if got := localSize([]string{filepath.Join(dir, "missing.csv")}); got != 0 {
		t.Errorf("localSize with missing = %d, want 0", got)
	}
}
