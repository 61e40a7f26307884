// Package service runs end-to-end discoveries: fetch and parse the logs,
// consult the result cache, mine the model and render it. The CLI, the HTTP
// server and the watcher all go through Discoverer.
package service

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/logflow/alphaflow/internal/pipe"
	"github.com/logflow/alphaflow/pkg/cache"
	"github.com/logflow/alphaflow/pkg/discovery"
	lferrors "github.com/logflow/alphaflow/pkg/errors"
	"github.com/logflow/alphaflow/pkg/logging"
	"github.com/logflow/alphaflow/pkg/parser"
	"github.com/logflow/alphaflow/pkg/render"
	"github.com/logflow/alphaflow/pkg/storage"
	"github.com/logflow/alphaflow/pkg/telemetry"
)

// Config holds the loading knobs of a Discoverer.
type Config struct {
	Pipe pipe.Config

	// UseDuckDB computes variants of a single CSV or Parquet log in SQL.
	UseDuckDB bool

	// TempDir receives local copies of remote logs.
	TempDir string

	// Workers bounds concurrent file loads; 0 means one per file.
	Workers int
}

// Discoverer runs discoveries. It is safe for concurrent use.
type Discoverer struct {
	cfg     Config
	log     logrus.FieldLogger
	engine  *discovery.Engine
	opener  *storage.Opener
	cache   cache.Cache
	tracer  trace.Tracer
	metrics *telemetry.Metrics
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Discoverer) { d.log = log }
}

// WithCache sets the result cache.
func WithCache(c cache.Cache) Option {
	return func(d *Discoverer) { d.cache = c }
}

// WithStorage sets the opener used for remote logs.
func WithStorage(o *storage.Opener) Option {
	return func(d *Discoverer) { d.opener = o }
}

// WithTracer sets the tracer stage spans are started from.
func WithTracer(t trace.Tracer) Option {
	return func(d *Discoverer) { d.tracer = t }
}

// WithMetrics sets the run metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *Discoverer) { d.metrics = m }
}

// New creates a Discoverer. Unset collaborators default to a discarding
// logger, no cache, default storage and a no-op tracer.
func New(cfg Config, opts ...Option) *Discoverer {
	d := &Discoverer{cfg: cfg}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logging.Discard()
	}
	if d.cache == nil {
		d.cache = cache.Noop{}
	}
	if d.opener == nil {
		d.opener = storage.NewOpener(storage.DefaultS3Config(""))
	}
	if d.tracer == nil {
		d.tracer = noop.NewTracerProvider().Tracer(telemetry.InstrumentationName)
	}
	if d.metrics == nil {
		d.metrics = telemetry.NewMetrics()
	}
	d.engine = discovery.NewEngine(d.log)
	return d
}

// Metrics returns the run metrics collector.
func (d *Discoverer) Metrics() *telemetry.Metrics {
	return d.metrics
}

// Storage returns the opener used for log paths, so callers can write
// results to the same places.
func (d *Discoverer) Storage() *storage.Opener {
	return d.opener
}

// Request describes one discovery. Either Paths or Traces must be set;
// Traces wins when both are.
type Request struct {
	Paths  []string
	Format parser.Format
	Traces []discovery.WeightedTrace

	Options discovery.Options
	Output  render.Format
	Render  render.Options

	// Progress receives load statistics for Paths. It may be called from
	// several goroutines.
	Progress func(pipe.ProgressStats)
}

// Outcome is a finished discovery.
type Outcome struct {
	RunID string

	// Result is nil when the outcome came from the cache.
	Result *discovery.Result

	Body   []byte
	Output render.Format
	Meta   render.Meta

	Activities int
	Gateways   int
	Arcs       int

	Events   int64
	Cached   bool
	Duration time.Duration
}

// Run loads the request's log, then serves the rendered model from the
// cache or mines and renders it.
func (d *Discoverer) Run(ctx context.Context, req Request) (out *Outcome, err error) {
	start := time.Now()
	runID := uuid.NewString()
	log := d.log.WithField("run_id", runID)

	ctx, span := d.tracer.Start(ctx, "discovery.run", trace.WithAttributes(attribute.String("run_id", runID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		d.metrics.RecordRun(time.Since(start), err)
	}()

	if err := req.Options.Validate(); err != nil {
		return nil, err
	}
	if req.Output == "" {
		req.Output = render.FormatDOT
	}

	traces, events, err := d.traces(ctx, req)
	if err != nil {
		return nil, err
	}
	d.metrics.AddEvents(events)

	var idx *discovery.TraceIndex
	err = telemetry.Stage(ctx, d.tracer, "discovery.index", func(context.Context) error {
		var err error
		idx, err = discovery.NewTraceIndex(traces)
		return err
	})
	if err != nil {
		return nil, err
	}

	key := cache.Key(idx.Traces, req.Options, string(req.Output), req.Render)
	if entry := d.lookup(ctx, log, key); entry != nil && entry.Format == string(req.Output) {
		d.metrics.RecordCacheHit()
		log.WithField("key", key[:12]).Debug("served from cache")
		return &Outcome{
			RunID:  runID,
			Body:   entry.Body,
			Output: req.Output,
			Meta: render.Meta{
				MaxTraceWeight:       entry.MaxTraceWeight,
				MaxActivityFrequency: entry.MaxActivityFrequency,
				NodeThreshold:        req.Options.Thresholds.Node,
				EdgeThreshold:        req.Options.Thresholds.Edge,
			},
			Activities: entry.Activities,
			Gateways:   entry.Gateways,
			Arcs:       entry.Arcs,
			Events:     events,
			Cached:     true,
			Duration:   time.Since(start),
		}, nil
	}

	var res *discovery.Result
	err = telemetry.Stage(ctx, d.tracer, "discovery.mine", func(ctx context.Context) error {
		var err error
		res, err = d.engine.Run(idx.Traces, req.Options)
		if err != nil {
			return err
		}
		telemetry.SetAttributes(ctx,
			attribute.Int("nodes_removed", res.Stats.NodesRemoved),
			attribute.Int("edges_removed", res.Stats.EdgesRemoved),
			attribute.Int("gateways", len(res.Model.Gateways())),
		)
		return nil
	}, attribute.Int64("node_threshold", req.Options.Thresholds.Node),
		attribute.Int64("edge_threshold", req.Options.Thresholds.Edge))
	if err != nil {
		return nil, err
	}

	meta := render.Meta{
		MaxTraceWeight:       res.MaxTraceWeight,
		MaxActivityFrequency: res.MaxActivityFrequency,
		NodeThreshold:        req.Options.Thresholds.Node,
		EdgeThreshold:        req.Options.Thresholds.Edge,
	}

	var body bytes.Buffer
	err = telemetry.Stage(ctx, d.tracer, "discovery.render", func(ctx context.Context) error {
		return render.Render(ctx, &body, req.Output, res.Model, meta, req.Render)
	}, attribute.String("format", string(req.Output)))
	if err != nil {
		return nil, err
	}

	gateways := len(res.Model.Gateways())
	out = &Outcome{
		RunID:      runID,
		Result:     res,
		Body:       body.Bytes(),
		Output:     req.Output,
		Meta:       meta,
		Activities: len(res.Model.Nodes) - gateways,
		Gateways:   gateways,
		Arcs:       len(res.Model.Arcs),
		Events:     events,
		Duration:   time.Since(start),
	}

	d.store(ctx, log, key, out)
	log.WithFields(logrus.Fields{
		"activities": out.Activities,
		"gateways":   out.Gateways,
		"duration":   out.Duration,
	}).Info("discovery finished")
	return out, nil
}

// Analyze loads the request's log and runs the engine without rendering or
// caching, exposing every intermediate result.
func (d *Discoverer) Analyze(ctx context.Context, req Request) (*discovery.Result, error) {
	traces, _, err := d.traces(ctx, req)
	if err != nil {
		return nil, err
	}
	return d.engine.Run(traces, req.Options)
}

// cache failures never fail a run

func (d *Discoverer) lookup(ctx context.Context, log logrus.FieldLogger, key string) *cache.Entry {
	entry, err := d.cache.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("cache lookup failed")
		return nil
	}
	return entry
}

func (d *Discoverer) store(ctx context.Context, log logrus.FieldLogger, key string, out *Outcome) {
	err := d.cache.Set(ctx, key, &cache.Entry{
		Format:               string(out.Output),
		Body:                 out.Body,
		MaxTraceWeight:       out.Meta.MaxTraceWeight,
		MaxActivityFrequency: out.Meta.MaxActivityFrequency,
		Activities:           out.Activities,
		Gateways:             out.Gateways,
		Arcs:                 out.Arcs,
		CreatedAt:            time.Now().UTC(),
	})
	if err != nil {
		log.WithError(err).Warn("cache store failed")
	}
}

// traces returns the request's traces, loading its paths when needed,
// together with the number of events read.
func (d *Discoverer) traces(ctx context.Context, req Request) ([]discovery.WeightedTrace, int64, error) {
	if len(req.Traces) > 0 {
		var n int64
		for _, t := range req.Traces {
			n += t.Count * int64(len(t.Activities))
		}
		return req.Traces, n, nil
	}
	if len(req.Paths) == 0 {
		return nil, 0, lferrors.EmptyLog()
	}

	var traces []discovery.WeightedTrace
	var events int64
	err := telemetry.Stage(ctx, d.tracer, "discovery.load", func(ctx context.Context) error {
		var err error
		traces, events, err = d.load(ctx, req)
		if err != nil {
			return err
		}
		telemetry.SetAttributes(ctx,
			attribute.Int("variants", len(traces)),
			attribute.Int64("events", events),
		)
		return nil
	}, attribute.StringSlice("paths", req.Paths))
	return traces, events, err
}

func (d *Discoverer) load(ctx context.Context, req Request) ([]discovery.WeightedTrace, int64, error) {
	paths, format := req.Paths, req.Format
	locals := make([]string, 0, len(paths))
	for _, p := range paths {
		local, cleanup, err := d.opener.Fetch(ctx, p, d.cfg.TempDir)
		if err != nil {
			return nil, 0, err
		}
		defer cleanup()
		locals = append(locals, local)
	}

	if d.cfg.UseDuckDB && len(locals) == 1 && sqlFriendly(locals[0], format) {
		traces, err := d.duckVariants(ctx, locals[0], format)
		if err != nil {
			return nil, 0, err
		}
		var events int64
		for _, t := range traces {
			events += t.Count * int64(len(t.Activities))
		}
		d.log.WithFields(logrus.Fields{"path": paths[0], "variants": len(traces)}).Debug("variants computed in duckdb")
		return traces, events, nil
	}

	pcfg := d.cfg.Pipe
	pcfg.Progress = req.Progress
	log, err := pipe.LoadAll(ctx, pcfg, locals, format, d.cfg.Workers)
	if err != nil {
		return nil, 0, err
	}
	d.log.WithFields(logrus.Fields{
		"files":  len(locals),
		"events": log.Events(),
		"cases":  log.Cases(),
	}).Debug("event log loaded")

	traces := log.Variants()
	if len(traces) == 0 {
		return nil, 0, lferrors.EmptyLog()
	}
	return traces, log.Events(), nil
}

func (d *Discoverer) duckVariants(ctx context.Context, path string, format parser.Format) ([]discovery.WeightedTrace, error) {
	p, err := pipe.NewDuckDBPipeline(d.cfg.Pipe)
	if err != nil {
		return nil, err
	}
	defer p.Close()
	return p.Variants(ctx, path, format)
}

func sqlFriendly(path string, format parser.Format) bool {
	if format == parser.FormatUnknown {
		f, err := parser.DetectFormat(path)
		if err != nil {
			return false
		}
		format = f
	}
	return format == parser.FormatCSV || format == parser.FormatParquet
}
