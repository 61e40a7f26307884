package telemetry

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// maxSamples bounds the latency window.
const maxSamples = 1000

// Metrics aggregates discovery run metrics for the health endpoint.
type Metrics struct {
	runs      atomic.Int64
	errors    atomic.Int64
	cacheHits atomic.Int64
	events    atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration

	prom *collectors
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{latencies: make([]time.Duration, 0, 64)}
}

// Register exports the metrics to a Prometheus registry. Call it before
// recording.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	c := newCollectors()
	if err := c.register(reg); err != nil {
		return err
	}
	m.prom = c
	return nil
}

// RecordRun records one finished run.
func (m *Metrics) RecordRun(d time.Duration, err error) {
	m.runs.Add(1)
	if err != nil {
		m.errors.Add(1)
	}
	if m.prom != nil {
		m.prom.observeRun(d, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) >= maxSamples {
		m.latencies = m.latencies[1:]
	}
	m.latencies = append(m.latencies, d)
}

// RecordCacheHit counts a run served from the cache.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
	if m.prom != nil {
		m.prom.cacheHits.Inc()
	}
}

// AddEvents counts parsed events.
func (m *Metrics) AddEvents(n int64) {
	m.events.Add(n)
	if m.prom != nil {
		m.prom.events.Add(float64(n))
	}
}

// Percentile returns the p-th percentile of recorded latencies.
func (m *Metrics) Percentile(p float64) time.Duration {
	m.mu.Lock()
	sorted := append([]time.Duration(nil), m.latencies...)
	m.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Summary returns a snapshot.
func (m *Metrics) Summary() MetricsSummary {
	return MetricsSummary{
		Runs:            m.runs.Load(),
		Errors:          m.errors.Load(),
		CacheHits:       m.cacheHits.Load(),
		EventsProcessed: m.events.Load(),
		P50Latency:      m.Percentile(0.50),
		P95Latency:      m.Percentile(0.95),
		P99Latency:      m.Percentile(0.99),
	}
}

// MetricsSummary is a snapshot of metrics.
type MetricsSummary struct {
	Runs            int64         `json:"runs"`
	Errors          int64         `json:"errors"`
	CacheHits       int64         `json:"cache_hits"`
	EventsProcessed int64         `json:"events_processed"`
	P50Latency      time.Duration `json:"p50_latency_ns"`
	P95Latency      time.Duration `json:"p95_latency_ns"`
	P99Latency      time.Duration `json:"p99_latency_ns"`
}
