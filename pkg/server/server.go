// Package server provides the HTTP API and the threshold explorer page.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/logflow/alphaflow/pkg/discovery"
	lferrors "github.com/logflow/alphaflow/pkg/errors"
	"github.com/logflow/alphaflow/pkg/logging"
	"github.com/logflow/alphaflow/pkg/parser"
	"github.com/logflow/alphaflow/pkg/render"
	"github.com/logflow/alphaflow/pkg/service"
)

//go:embed web/*
var webFS embed.FS

// Options configures the server.
type Options struct {
	// MaxUploadSize bounds uploaded logs and request bodies in bytes.
	MaxUploadSize int64

	// CORSOrigins lists allowed origins; "*" allows any.
	CORSOrigins []string

	// Defaults are the discovery options a request starts from.
	Defaults discovery.Options

	// Gatherer, when set, is served at /metrics.
	Gatherer prometheus.Gatherer

	Log logrus.FieldLogger
}

// Server handles HTTP requests.
type Server struct {
	svc    *service.Discoverer
	logs   *LogStore
	broker *Broker
	opts   Options
	log    logrus.FieldLogger
	mux    *http.ServeMux
	static fs.FS
}

// NewServer creates a server over a Discoverer and a log store.
func NewServer(svc *service.Discoverer, logs *LogStore, opts Options) *Server {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 64 << 20
	}
	if opts.Defaults.StartName == "" || opts.Defaults.EndName == "" {
		opts.Defaults = discovery.DefaultOptions()
	}
	if opts.Log == nil {
		opts.Log = logging.Discard()
	}
	static, _ := fs.Sub(webFS, "web")

	s := &Server{
		svc:    svc,
		logs:   logs,
		broker: NewBroker(),
		opts:   opts,
		log:    opts.Log,
		mux:    http.NewServeMux(),
		static: static,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures HTTP handlers.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/logs", s.handleLogs)
	s.mux.HandleFunc("/api/logs/", s.handleLog)
	s.mux.HandleFunc("/api/discover", s.handleDiscover)
	s.mux.HandleFunc("/api/events", s.broker.Handler())
	if s.opts.Gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	s.mux.Handle("/", http.FileServer(http.FS(s.static)))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", requestID)

	if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"method":     r.Method,
		"path":       r.URL.Path,
		"duration":   time.Since(start),
	}).Debug("request")
}

func (s *Server) allowedOrigin(origin string) string {
	for _, o := range s.opts.CORSOrigins {
		if o == "*" {
			return "*"
		}
		if origin != "" && o == origin {
			return origin
		}
	}
	return ""
}

// Broker returns the model update broker.
func (s *Server) Broker() *Broker {
	return s.broker
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jsonResponse(w, map[string]interface{}{
		"status":  "ok",
		"logs":    s.logs.Count(),
		"metrics": s.svc.Metrics().Summary(),
	})
}

// handleLogs lists logs (GET) or stores an uploaded one (POST, multipart
// field "file").
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jsonResponse(w, s.logs.List())
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize+(1<<20))
		file, header, err := r.FormFile("file")
		if err != nil {
			jsonError(w, "No file provided", http.StatusBadRequest)
			return
		}
		defer file.Close()

		entry, err := s.logs.Add(header.Filename, file, s.opts.MaxUploadSize)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.log.WithFields(logrus.Fields{"log_id": entry.ID, "name": entry.Name, "size": entry.Size}).Info("log uploaded")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(entry)
	default:
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleLog serves /api/logs/{id}.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/logs/")
	if id == "" {
		jsonError(w, "Log ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		entry, ok := s.logs.Get(id)
		if !ok {
			jsonError(w, "Log not found", http.StatusNotFound)
			return
		}
		jsonResponse(w, entry)
	case http.MethodDelete:
		if !s.logs.Delete(id) {
			jsonError(w, "Log not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// DiscoverRequest is the JSON body of POST /api/discover. Exactly one of
// LogID and Traces names the input; multipart requests carry the log as
// the "file" field and the rest as form values.
type DiscoverRequest struct {
	LogID         string       `json:"log_id,omitempty"`
	Traces        []TraceInput `json:"traces,omitempty"`
	NodeThreshold int64        `json:"node_threshold"`
	EdgeThreshold int64        `json:"edge_threshold"`
	StartName     string       `json:"start_name,omitempty"`
	EndName       string       `json:"end_name,omitempty"`
	Output        string       `json:"output,omitempty"`
}

// TraceInput is one weighted trace in a request.
type TraceInput struct {
	Activities []string `json:"activities"`
	Count      int64    `json:"count"`
}

// DiscoverResponse carries the rendered model and the slider bounds. The
// bounds are one past the largest edge weight and activity frequency so a
// threshold at the bound removes everything it may.
type DiscoverResponse struct {
	RunID         string          `json:"run_id"`
	LogID         string          `json:"log_id,omitempty"`
	Output        string          `json:"output"`
	Model         json.RawMessage `json:"model,omitempty"`
	Document      string          `json:"document,omitempty"`
	Image         []byte          `json:"image,omitempty"`
	TraceMax      int64           `json:"trace_max"`
	ColorMax      int64           `json:"color_max"`
	NodeThreshold int64           `json:"node_threshold"`
	EdgeThreshold int64           `json:"edge_threshold"`
	Activities    int             `json:"activities"`
	Gateways      int             `json:"gateways"`
	Cached        bool            `json:"cached"`
	DurationMS    int64           `json:"duration_ms"`
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize+(1<<20))

	var (
		body DiscoverRequest
		req  service.Request
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		entry, err := s.formRequest(r, &body)
		if err != nil {
			s.writeError(w, err)
			return
		}
		body.LogID = entry.ID
	} else if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	switch {
	case len(body.Traces) > 0:
		req.Traces = make([]discovery.WeightedTrace, len(body.Traces))
		for i, t := range body.Traces {
			req.Traces[i] = discovery.WeightedTrace{Activities: t.Activities, Count: t.Count}
		}
	case body.LogID != "":
		entry, ok := s.logs.Get(body.LogID)
		if !ok {
			jsonError(w, "Log not found", http.StatusNotFound)
			return
		}
		req.Paths = []string{entry.Path}
		req.Format = parser.ParseFormat(entry.Format)
	default:
		jsonError(w, "log_id, traces or file required", http.StatusBadRequest)
		return
	}

	output, err := render.ParseFormat(body.Output)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Output = output
	req.Render = render.DefaultOptions()
	req.Options = s.opts.Defaults
	req.Options.Thresholds = discovery.Thresholds{Node: body.NodeThreshold, Edge: body.EdgeThreshold}
	if body.StartName != "" {
		req.Options.StartName = body.StartName
	}
	if body.EndName != "" {
		req.Options.EndName = body.EndName
	}

	resp, err := s.discover(r.Context(), body.LogID, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if body.LogID != "" && s.broker.HasSubscribers(body.LogID) {
		s.broker.PublishModel(body.LogID, resp)
	}

	if r.URL.Query().Get("raw") == "1" {
		writeRaw(w, resp)
		return
	}
	jsonResponse(w, resp)
}

// formRequest stores the uploaded file and reads the other fields.
func (s *Server) formRequest(r *http.Request, body *DiscoverRequest) (*LogEntry, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, lferrors.New(lferrors.CodeInvalidFormat, "no file provided")
	}
	defer file.Close()

	for field, dst := range map[string]*int64{
		"node_threshold": &body.NodeThreshold,
		"edge_threshold": &body.EdgeThreshold,
	} {
		v := r.FormValue(field)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, lferrors.Newf(lferrors.CodeInvalidThreshold, "%s must be an integer", field).
				WithContext("value", v)
		}
		*dst = n
	}
	body.StartName = r.FormValue("start_name")
	body.EndName = r.FormValue("end_name")
	body.Output = r.FormValue("output")

	return s.logs.Add(header.Filename, file, s.opts.MaxUploadSize)
}

func (s *Server) discover(ctx context.Context, logID string, req service.Request) (*DiscoverResponse, error) {
	out, err := s.svc.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &DiscoverResponse{
		RunID:         out.RunID,
		LogID:         logID,
		Output:        string(out.Output),
		TraceMax:      out.Meta.MaxTraceWeight + 1,
		ColorMax:      out.Meta.MaxActivityFrequency + 1,
		NodeThreshold: out.Meta.NodeThreshold,
		EdgeThreshold: out.Meta.EdgeThreshold,
		Activities:    out.Activities,
		Gateways:      out.Gateways,
		Cached:        out.Cached,
		DurationMS:    out.Duration.Milliseconds(),
	}
	switch out.Output {
	case render.FormatJSON:
		resp.Model = json.RawMessage(out.Body)
	case render.FormatPNG:
		resp.Image = out.Body
	default:
		resp.Document = string(out.Body)
	}
	return resp, nil
}

// Refresh rediscovers a stored log with the default options and pushes the
// result to its subscribers. Watch mode calls it when the file changes.
func (s *Server) Refresh(ctx context.Context, logID string) error {
	entry, ok := s.logs.Get(logID)
	if !ok {
		return lferrors.New(lferrors.CodeFileNotFound, "log not registered").WithContext("log_id", logID)
	}

	resp, err := s.discover(ctx, logID, service.Request{
		Paths:   []string{entry.Path},
		Format:  parser.ParseFormat(entry.Format),
		Options: s.opts.Defaults,
		Output:  render.FormatDOT,
		Render:  render.DefaultOptions(),
	})
	if err != nil {
		s.broker.PublishError(logID, err)
		return err
	}
	s.broker.PublishModel(logID, resp)
	return nil
}

// WatchLog registers a log file that Refresh can rediscover in place.
func (s *Server) WatchLog(path string) (*LogEntry, error) {
	entry, err := s.logs.Register(path)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"log_id": entry.ID, "path": entry.Path}).Info("watching log")
	return entry, nil
}

// writeRaw sends the rendered body itself, with the slider bounds in
// headers.
func writeRaw(w http.ResponseWriter, resp *DiscoverResponse) {
	format, _ := render.ParseFormat(resp.Output)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("X-Trace-Max", strconv.FormatInt(resp.TraceMax, 10))
	w.Header().Set("X-Color-Max", strconv.FormatInt(resp.ColorMax, 10))
	switch {
	case resp.Model != nil:
		w.Write(resp.Model)
	case resp.Image != nil:
		w.Write(resp.Image)
	default:
		io.WriteString(w, resp.Document)
	}
}

// writeError maps coded errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		jsonError(w, "Upload too large", http.StatusRequestEntityTooLarge)
	case lferrors.IsCode(err, lferrors.CodeFileNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case lferrors.IsInputError(err):
		jsonCodedError(w, err, http.StatusUnprocessableEntity)
	case lferrors.IsRetryable(err):
		s.log.WithError(err).Warn("backend unavailable")
		w.Header().Set("Retry-After", "5")
		jsonCodedError(w, err, http.StatusServiceUnavailable)
	default:
		s.log.WithError(err).Error("request failed")
		jsonCodedError(w, err, http.StatusInternalServerError)
	}
}

// Helper functions

func jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func jsonCodedError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"code":  string(lferrors.GetCode(err)),
	})
}
