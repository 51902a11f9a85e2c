// Package metrics exposes Prometheus instrumentation for registry calls and
// batch imports.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the import pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Registry call latencies by operation and HTTP status
	RegistryLatency *prometheus.HistogramVec

	// Rows sent to the registry during imports, by result
	ImportRows *prometheus.CounterVec

	// Finished imports by outcome
	ImportOutcome *prometheus.CounterVec

	// Full import duration including the trailing refresh
	ImportLatency prometheus.Histogram

	// Snapshot refreshes by result
	Refreshes *prometheus.CounterVec
}

// New creates a Metrics instance registered with reg. Passing nil creates
// unregistered collectors, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RegistryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guestlist_registry_request_duration_seconds",
			Help:    "Duration of guest registry requests by operation and status code",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"op", "status"}), // status: HTTP code or "error"

		ImportRows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guestlist_import_rows_total",
			Help: "Total rows sent to the registry during imports by result",
		}, []string{"result"}), // result: "created", "failed"

		ImportOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guestlist_imports_total",
			Help: "Total finished imports by outcome",
		}, []string{"outcome"}), // outcome: "completed", "failed", "empty"

		ImportLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "guestlist_import_duration_seconds",
			Help:    "Duration of batch imports including the trailing refresh",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guestlist_refreshes_total",
			Help: "Total guest list refreshes by result",
		}, []string{"result"}),
	}
}

// ObserveRegistry records one registry request. status is 0 when the request
// failed before a response arrived.
func (m *Metrics) ObserveRegistry(op string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.RegistryLatency.WithLabelValues(op, label).Observe(d.Seconds())
}

// IncrementRow records one row sent during an import.
func (m *Metrics) IncrementRow(created bool) {
	if m == nil {
		return
	}
	if created {
		m.ImportRows.WithLabelValues("created").Inc()
	} else {
		m.ImportRows.WithLabelValues("failed").Inc()
	}
}

// IncrementOutcome records a finished import.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.ImportOutcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveImportLatency records the total import duration.
func (m *Metrics) ObserveImportLatency(d time.Duration) {
	if m != nil {
		m.ImportLatency.Observe(d.Seconds())
	}
}

// IncrementRefresh records a refresh attempt.
func (m *Metrics) IncrementRefresh(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.Refreshes.WithLabelValues("ok").Inc()
	} else {
		m.Refreshes.WithLabelValues("error").Inc()
	}
}
