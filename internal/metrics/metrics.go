// Package metrics exposes Prometheus counters for predictions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK           = "ok"
	OutcomeInputError   = "input_error"
	OutcomeRoutingError = "routing_error"
	OutcomeComputeError = "computation_error"
	OutcomeModelMissing = "model_not_found"
	OutcomeModelError   = "model_error"
)

type Metrics struct {
	reg *prometheus.Registry

	predictions *prometheus.CounterVec
	warnings    *prometheus.CounterVec
	batchRows   *prometheus.CounterVec
	batches     prometheus.Counter
	values      *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, plus Go and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pbpd",
			Name:      "predictions_total",
			Help:      "Single-sample predictions by material group and outcome.",
		}, []string{"group", "outcome"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pbpd",
			Name:      "input_warnings_total",
			Help:      "Advisory range-check warnings by check code.",
		}, []string{"code"}),
		batchRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pbpd",
			Name:      "batch_rows_total",
			Help:      "Batch CSV rows by material group and outcome.",
		}, []string{"group", "outcome"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pbpd",
			Name:      "batches_total",
			Help:      "Batch CSV files processed.",
		}),
		values: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pbpd",
			Name:      "predicted_density_percent",
			Help:      "Distribution of predicted packing density.",
			Buckets:   prometheus.LinearBuckets(30, 5, 14),
		}, []string{"group"}),
	}
	reg.MustRegister(m.predictions, m.warnings, m.batchRows, m.batches, m.values,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

func (m *Metrics) Prediction(group, outcome string, value float64) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(group, outcome).Inc()
	if outcome == OutcomeOK {
		m.values.WithLabelValues(group).Observe(value)
	}
}

func (m *Metrics) Warning(code string) {
	if m == nil {
		return
	}
	m.warnings.WithLabelValues(code).Inc()
}

func (m *Metrics) BatchRow(group, outcome string, value float64) {
	if m == nil {
		return
	}
	m.batchRows.WithLabelValues(group, outcome).Inc()
	if outcome == OutcomeOK {
		m.values.WithLabelValues(group).Observe(value)
	}
}

func (m *Metrics) Batch() {
	if m == nil {
		return
	}
	m.batches.Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
