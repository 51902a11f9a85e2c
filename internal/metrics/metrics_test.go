package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRegistry("create", 201, time.Millisecond)
		m.IncrementRow(true)
		m.IncrementOutcome("completed")
		m.ObserveImportLatency(time.Second)
		m.IncrementRefresh(false)
	})
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementRow(true)
	m.IncrementRow(true)
	m.IncrementRow(false)
	m.IncrementOutcome("failed")
	m.IncrementRefresh(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ImportRows.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportRows.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportOutcome.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Refreshes.WithLabelValues("ok")))
}

func TestMetrics_RegistryStatusLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRegistry("list", 200, 10*time.Millisecond)
	m.ObserveRegistry("create", 0, time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	var labels []string
	for _, mf := range families {
		if mf.GetName() != "guestlist_registry_request_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "status" {
					labels = append(labels, lp.GetValue())
				}
			}
		}
	}
	assert.ElementsMatch(t, []string{"200", "error"}, labels)
}

func TestNew_TwoInstancesWithSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
		New(nil)
		New(nil)
	})
}
