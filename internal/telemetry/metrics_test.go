package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordMutations("add", 1)
		m.RecordCommit(time.Millisecond, 1, nil)
		m.RecordQuery("text", time.Millisecond, 1, nil)
		m.RecordDegraded("text")
		m.SetOutstandingMonitors(2)
		m.RecordReplay(3, 1)
	})
}

func TestMetrics_RecordQuery_ResultTypes(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordQuery("text", time.Millisecond, 3, nil)
	m.RecordQuery("text", time.Millisecond, 0, nil)
	m.RecordQuery("text", time.Millisecond, 0, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("text", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("text", "zero_result")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("text", "error")))
}

func TestMetrics_CountersAndGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordMutations("delete", 4)
	m.RecordMutations("delete", 0)
	m.RecordCommit(time.Millisecond, 4, nil)
	m.RecordCommit(time.Millisecond, 4, errors.New("disk full"))
	m.SetOutstandingMonitors(2)
	m.RecordReplay(5, 2)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.MutationsTotal.WithLabelValues("delete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutstandingMonitors))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ReplayedOperations.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReplayedOperations.WithLabelValues("discarded")))
}

func TestHandler_ExposesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordDegraded("text")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "rdfsearch_degraded_results_total"))
}
