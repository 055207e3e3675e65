package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/bensuskins/office-hub/internal/models"
)

func TestPrometheusRecorder_Counters(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewPrometheus(registry, "test")

	recorder.RecordPromoted(3)
	recorder.RecordPromoted(0)
	recorder.RecordOutcome(models.OccurrenceCompleted)
	recorder.RecordOutcome(models.OccurrenceCompleted)
	recorder.RecordOutcome(models.OccurrenceCancelled)
	recorder.RecordCutoff(4)
	recorder.RecordProjected(12)

	require.Equal(t, 3.0, testutil.ToFloat64(recorder.promoted))
	require.Equal(t, 2.0, testutil.ToFloat64(recorder.outcomes.WithLabelValues("completed")))
	require.Equal(t, 1.0, testutil.ToFloat64(recorder.outcomes.WithLabelValues("cancelled")))
	require.Equal(t, 1.0, testutil.ToFloat64(recorder.cutoffs))
	require.Equal(t, 4.0, testutil.ToFloat64(recorder.cancelled))

	count, err := testutil.GatherAndCount(registry, "test_projector_rows_projected")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestPrometheusRecorder_SeparateRegistries(t *testing.T) {
	require.NotPanics(t, func() {
		NewPrometheus(prometheus.NewRegistry(), "")
		NewPrometheus(prometheus.NewRegistry(), "")
	})
}

func TestNopMetrics(t *testing.T) {
	metrics := NewNop()

	require.NotPanics(t, func() {
		metrics.RecordPromoted(-1)
		metrics.RecordOutcome("")
		metrics.RecordCutoff(0)
		metrics.RecordProjected(1 << 20)
	})
}
