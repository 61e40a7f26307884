package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/logflow/alphaflow/pkg/cache"
	"github.com/logflow/alphaflow/pkg/service"
	"github.com/logflow/alphaflow/pkg/telemetry"
)

const csvLog = `case:concept:name,concept:name,time:timestamp
1,A,2024-01-01T10:00:00Z
1,B,2024-01-01T10:01:00Z
1,D,2024-01-01T10:02:00Z
2,A,2024-01-01T11:00:00Z
2,B,2024-01-01T11:01:00Z
2,D,2024-01-01T11:02:00Z
3,A,2024-01-01T12:00:00Z
3,C,2024-01-01T12:01:00Z
3,D,2024-01-01T12:02:00Z
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logs, err := NewLogStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLogStore failed: %v", err)
	}
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	svc := service.New(service.Config{},
		service.WithCache(cache.NewMemory(time.Minute)),
		service.WithMetrics(metrics),
	)
	return NewServer(svc, logs, Options{
		CORSOrigins: []string{"http://localhost:3000"},
		Gatherer:    reg,
	})
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func upload(t *testing.T, s *Server, name, body string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(body))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/logs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return do(s, req)
}

func postJSON(s *Server, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return do(s, req)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Invalid JSON response %q: %v", w.Body.String(), err)
	}
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)

	w := do(s, httptest.NewRequest("GET", "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	decode(t, w, &resp)
	if resp["status"] != "ok" {
		t.Errorf("Expected status 'ok', got %v", resp["status"])
	}
	if _, ok := resp["metrics"]; !ok {
		t.Error("health response missing metrics")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestServer_PrometheusMetrics(t *testing.T) {
	s := newTestServer(t)

	postJSON(s, "/api/discover", DiscoverRequest{
		Traces: []TraceInput{{Activities: []string{"A", "B"}, Count: 2}},
	})

	w := do(s, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`alphaflow_runs_total{status="ok"} 1`, "alphaflow_events_total 4"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestServer_UploadAndList(t *testing.T) {
	s := newTestServer(t)

	w := upload(t, s, "orders.csv", csvLog)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var entry LogEntry
	decode(t, w, &entry)
	if entry.ID == "" || entry.Name != "orders.csv" || entry.Format != "csv" {
		t.Errorf("entry = %+v", entry)
	}

	w = do(s, httptest.NewRequest("GET", "/api/logs", nil))
	var list []LogEntry
	decode(t, w, &list)
	if len(list) != 1 || list[0].ID != entry.ID {
		t.Errorf("list = %+v", list)
	}

	w = do(s, httptest.NewRequest("GET", "/api/logs/"+entry.ID, nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET log: expected 200, got %d", w.Code)
	}

	w = do(s, httptest.NewRequest("DELETE", "/api/logs/"+entry.ID, nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("DELETE: expected 204, got %d", w.Code)
	}
	if _, err := os.Stat(entry.Path); !os.IsNotExist(err) {
		t.Errorf("uploaded file still on disk: %v", err)
	}
	w = do(s, httptest.NewRequest("GET", "/api/logs/"+entry.ID, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("deleted log: expected 404, got %d", w.Code)
	}
}

func TestServer_UploadRejectsExtension(t *testing.T) {
	s := newTestServer(t)

	w := upload(t, s, "notes.txt", "hello")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %d", w.Code)
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["code"] == "" {
		t.Errorf("error response missing code: %v", resp)
	}
}

func TestServer_DiscoverTraces(t *testing.T) {
	s := newTestServer(t)

	w := postJSON(s, "/api/discover", DiscoverRequest{
		Traces: []TraceInput{
			{Activities: []string{"A", "B", "D"}, Count: 5},
			{Activities: []string{"A", "C", "D"}, Count: 3},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp DiscoverResponse
	decode(t, w, &resp)
	if resp.TraceMax != 6 {
		t.Errorf("trace_max = %d, want 6", resp.TraceMax)
	}
	if resp.ColorMax != 9 {
		t.Errorf("color_max = %d, want 9", resp.ColorMax)
	}
	if resp.Output != "dot" || !strings.Contains(resp.Document, `"XORs A->[B C]"`) {
		t.Errorf("document = %q", resp.Document)
	}
	if resp.Activities != 6 || resp.Gateways != 2 {
		t.Errorf("activities = %d, gateways = %d", resp.Activities, resp.Gateways)
	}
}

func TestServer_DiscoverStoredLog(t *testing.T) {
	s := newTestServer(t)

	var entry LogEntry
	decode(t, upload(t, s, "orders.csv", csvLog), &entry)

	body := DiscoverRequest{LogID: entry.ID, Output: "json"}
	w := postJSON(s, "/api/discover", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp DiscoverResponse
	decode(t, w, &resp)
	if resp.LogID != entry.ID || resp.TraceMax != 3 || resp.ColorMax != 4 {
		t.Errorf("resp = %+v", resp)
	}
	var model struct {
		Nodes []json.RawMessage `json:"nodes"`
	}
	if err := json.Unmarshal(resp.Model, &model); err != nil || len(model.Nodes) == 0 {
		t.Errorf("model = %s (%v)", resp.Model, err)
	}

	w = postJSON(s, "/api/discover", body)
	decode(t, w, &resp)
	if !resp.Cached {
		t.Error("second discovery should be served from the cache")
	}

	w = postJSON(s, "/api/discover?raw=1", body)
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("raw Content-Type = %q", ct)
	}
	if w.Header().Get("X-Trace-Max") != "3" {
		t.Errorf("X-Trace-Max = %q", w.Header().Get("X-Trace-Max"))
	}
}

func TestServer_DiscoverMultipart(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "orders.csv")
	part.Write([]byte(csvLog))
	mw.WriteField("node_threshold", "2")
	mw.Close()

	req := httptest.NewRequest("POST", "/api/discover", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := do(s, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp DiscoverResponse
	decode(t, w, &resp)
	if resp.NodeThreshold != 2 || resp.LogID == "" {
		t.Errorf("resp = %+v", resp)
	}
	if strings.Contains(resp.Document, `"C"`) {
		t.Errorf("C should be reduced away: %s", resp.Document)
	}
}

func TestServer_DiscoverErrors(t *testing.T) {
	s := newTestServer(t)
	traces := []TraceInput{{Activities: []string{"A"}, Count: 1}}

	tests := []struct {
		name string
		body DiscoverRequest
		want int
	}{
		{"no input", DiscoverRequest{}, http.StatusBadRequest},
		{"unknown log", DiscoverRequest{LogID: "missing"}, http.StatusNotFound},
		{"unknown output", DiscoverRequest{Traces: traces, Output: "bpmn"}, http.StatusBadRequest},
		{"negative threshold", DiscoverRequest{Traces: traces, EdgeThreshold: -1}, http.StatusUnprocessableEntity},
		{"name collision", DiscoverRequest{Traces: traces, StartName: "A"}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(s, "/api/discover", tt.body)
			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}

	w := do(s, httptest.NewRequest("GET", "/api/discover", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET discover: expected 405, got %d", w.Code)
	}
}

func TestServer_CORS(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/api/discover", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := do(s, req)
	if w.Code != http.StatusOK {
		t.Errorf("OPTIONS: expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = do(s, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin for unknown origin = %q", got)
	}
}

func TestServer_Index(t *testing.T) {
	s := newTestServer(t)

	w := do(s, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/api/discover") {
		t.Errorf("index: %d %q", w.Code, w.Body.String())
	}
}

func TestServer_RefreshPublishes(t *testing.T) {
	s := newTestServer(t)

	path := filepath.Join(t.TempDir(), "watched.csv")
	if err := os.WriteFile(path, []byte(csvLog), 0644); err != nil {
		t.Fatal(err)
	}
	entry, err := s.WatchLog(path)
	if err != nil {
		t.Fatalf("WatchLog failed: %v", err)
	}
	again, err := s.WatchLog(path)
	if err != nil || again.ID != entry.ID {
		t.Errorf("re-registering gave %+v, %v; want ID %s", again, err, entry.ID)
	}

	ch := s.Broker().Subscribe(entry.ID)
	defer s.Broker().Unsubscribe(entry.ID, ch)

	if err := s.Refresh(context.Background(), entry.ID); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	select {
	case ev := <-ch:
		resp, ok := ev.Data.(*DiscoverResponse)
		if ev.Event != "model" || !ok || resp.TraceMax != 3 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no model event")
	}

	if err := s.Refresh(context.Background(), "missing"); err == nil {
		t.Error("Refresh of unknown log should fail")
	}

	s.logs.Delete(entry.ID)
	if _, err := os.Stat(path); err != nil {
		t.Errorf("watched file removed on delete: %v", err)
	}
}

func TestBroker_PubSub(t *testing.T) {
	b := NewBroker()

	ch := b.Subscribe("log")
	if !b.HasSubscribers("log") || b.HasSubscribers("other") {
		t.Fatal("subscriber bookkeeping wrong")
	}

	b.Publish("log", Event{Event: "model", Data: 1})
	ev := <-ch
	if ev.Event != "model" || ev.ID == "" {
		t.Errorf("event = %+v", ev)
	}

	b.Unsubscribe("log", ch)
	b.Unsubscribe("log", ch)
	if b.HasSubscribers("log") {
		t.Error("subscriber still registered")
	}
}

func TestBroker_HandlerRequiresTopic(t *testing.T) {
	w := httptest.NewRecorder()
	NewBroker().Handler()(w, httptest.NewRequest("GET", "/api/events", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}
