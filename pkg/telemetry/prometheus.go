package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	lferrors "github.com/logflow/alphaflow/pkg/errors"
)

const metricsNamespace = "alphaflow"

// collectors mirror Metrics as Prometheus series.
type collectors struct {
	runs      *prometheus.CounterVec
	errors    *prometheus.CounterVec
	cacheHits prometheus.Counter
	events    prometheus.Counter
	duration  *prometheus.HistogramVec
}

func newCollectors() *collectors {
	return &collectors{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Discovery runs by outcome",
		}, []string{"status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "errors_total",
			Help:      "Failed discovery runs by error code",
		}, []string{"code"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_hits_total",
			Help:      "Discovery runs served from the result cache",
		}),
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Events read from logs",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Discovery run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
	}
}

func (c *collectors) register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.runs, c.errors, c.cacheHits, c.events, c.duration} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

func (c *collectors) observeRun(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		c.errors.WithLabelValues(string(lferrors.GetCode(err))).Inc()
	}
	c.runs.WithLabelValues(status).Inc()
	c.duration.WithLabelValues(status).Observe(d.Seconds())
}
