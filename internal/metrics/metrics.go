// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hospital_prices"

// Stages and outcomes used as label values.
const (
	StageTransform = "transform"
	StageLoad      = "load"

	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUnsupported = "unsupported"
	OutcomeSkipped     = "already_loaded"
)

// Metrics owns a private registry so tests and multiple pipelines do not
// collide on the default one.
type Metrics struct {
	reg *prometheus.Registry

	filesTotal       *prometheus.CounterVec
	recordsTotal     *prometheus.CounterVec
	dimensionInserts *prometheus.CounterVec
	factsLoaded      prometheus.Counter
	rowsDropped      *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
}

// New registers the pipeline collectors plus the Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		filesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files processed, by stage and outcome.",
		}, []string{"stage", "outcome"}),
		recordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Canonical records produced by the transform stage, by source format.",
		}, []string{"format"}),
		dimensionInserts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dimension_inserts_total",
			Help:      "Dimension rows inserted, by dimension.",
		}, []string{"dimension"}),
		factsLoaded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facts_loaded_total",
			Help:      "Price facts inserted.",
		}),
		rowsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Rows dropped during transform or load, by reason.",
		}, []string{"reason"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time per file and stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"stage"}),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// File counts one file finishing a stage.
func (m *Metrics) File(stage, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.filesTotal.WithLabelValues(stage, outcome).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *Metrics) Records(format string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.recordsTotal.WithLabelValues(format).Add(float64(n))
}

func (m *Metrics) DimensionInserts(dimension string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.dimensionInserts.WithLabelValues(dimension).Add(float64(n))
}

func (m *Metrics) FactsLoaded(n int64) {
	if m == nil || n == 0 {
		return
	}
	m.factsLoaded.Add(float64(n))
}

func (m *Metrics) RowsDropped(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.rowsDropped.WithLabelValues(reason).Add(float64(n))
}
