package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EventDecoded("thinking_step")
		m.RecordSkipped()
		m.GenerationStarted()
		m.GenerationFinished("completed")
		m.ReviewMutation("approve", "ok")
	})
}

func TestCounters(t *testing.T) {
	m := New()
	m.EventDecoded("content_chunk")
	m.EventDecoded("content_chunk")
	m.RecordSkipped()
	m.GenerationStarted()
	m.GenerationStarted()
	m.GenerationFinished("stopped")
	m.ReviewMutation("reject", "error")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsDecoded.WithLabelValues("content_chunk")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recordsSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeGenerations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations.WithLabelValues("stopped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reviewMutations.WithLabelValues("reject", "error")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.RecordSkipped()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "qgen_stream_records_skipped_total 1")
}
