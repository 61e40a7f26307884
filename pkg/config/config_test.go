package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	lferrors "github.com/logflow/alphaflow/pkg/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestManager_LayeredLoad(t *testing.T) {
	dir := t.TempDir()
	user := writeFile(t, dir, "user.yaml", `
discovery:
  node_threshold: 5
  start_name: begin
server:
  port: 9000
cache:
  ttl: 1h
`)
	project := writeFile(t, dir, "project.yaml", `
discovery:
  node_threshold: 7
columns:
  case_id: case
  delimiter: ";"
`)
	missing := filepath.Join(dir, "missing.yaml")

	m := NewManagerWithPaths(missing, user, project)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := m.Get()

	if cfg.Discovery.NodeThreshold != 7 {
		t.Errorf("NodeThreshold = %d, want 7 (project overrides user)", cfg.Discovery.NodeThreshold)
	}
	if cfg.Discovery.StartName != "begin" {
		t.Errorf("StartName = %q, want begin", cfg.Discovery.StartName)
	}
	if cfg.Discovery.EndName != "End" {
		t.Errorf("EndName = %q, want default End", cfg.Discovery.EndName)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("TTL = %v, want 1h", cfg.Cache.TTL)
	}
	if cfg.Columns.CaseID != "case" || cfg.Columns.Delimiter != ";" {
		t.Errorf("Columns = %+v", cfg.Columns)
	}
	if got := m.GetPaths(); len(got) != 2 {
		t.Errorf("GetPaths = %v, want the two existing files", got)
	}
}

func TestManager_EnvOverrides(t *testing.T) {
	t.Setenv("ALPHAFLOW_EDGE_THRESHOLD", "12")
	t.Setenv("ALPHAFLOW_REDIS_ADDR", "cache:6379")
	t.Setenv("ALPHAFLOW_LOG_JSON", "true")
	t.Setenv("ALPHAFLOW_PORT", "not-a-number")

	m := NewManagerWithPaths()
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := m.Get()

	if cfg.Discovery.EdgeThreshold != 12 {
		t.Errorf("EdgeThreshold = %d, want 12", cfg.Discovery.EdgeThreshold)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Addr != "cache:6379" {
		t.Errorf("Cache = %+v, want enabled at cache:6379", cfg.Cache)
	}
	if !cfg.Logging.JSON {
		t.Error("Logging.JSON not set from env")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want default after bad env value", cfg.Server.Port)
	}
}

func TestManager_LoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    lferrors.Code
	}{
		{"broken yaml", "discovery: [", lferrors.CodeInvalidFormat},
		{"negative threshold", "discovery:\n  edge_threshold: -3\n", lferrors.CodeInvalidThreshold},
		{"same names", "discovery:\n  start_name: X\n  end_name: X\n", lferrors.CodeNameCollision},
		{"long delimiter", "columns:\n  delimiter: ab\n", lferrors.CodeInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "c.yaml", tt.content)
			err := NewManagerWithPaths(path).Load()
			if !lferrors.IsCode(err, tt.code) {
				t.Errorf("err = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestManager_SaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManagerWithPaths()
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	m.Get().Discovery.NodeThreshold = 3

	path := filepath.Join(dir, "nested", "config.yaml")
	if err := m.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	again := NewManagerWithPaths(path)
	if err := again.Load(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if again.Get().Discovery.NodeThreshold != 3 {
		t.Errorf("NodeThreshold = %d, want 3", again.Get().Discovery.NodeThreshold)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"512", 512, false},
		{"64MB", 64 << 20, false},
		{"1gb", 1 << 30, false},
		{"10 KB", 10 << 10, false},
		{"", 0, true},
		{"lots", 0, true},
		{"-1MB", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
