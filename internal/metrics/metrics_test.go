package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveBuild(t *testing.T) {
	m := New()

	m.ObserveBuild(OutcomeSuccess, 3, 12, 2*time.Second)
	m.ObserveBuild(OutcomeEmpty, 0, 0, time.Second)
	m.ObserveBuild(OutcomeSuccess, 1, 4, time.Second)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.filesIndexed))
	assert.Equal(t, 16.0, testutil.ToFloat64(m.chunksProduced))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.builds.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.builds.WithLabelValues(OutcomeEmpty)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.buildDuration))
}

func TestObserveQueryAndDocuments(t *testing.T) {
	m := New()
	m.ObserveQuery("hybrid", 10*time.Millisecond)
	m.ObserveQuery("hybrid", 20*time.Millisecond)
	m.ObserveQuery("keyword", time.Millisecond)
	m.SetDocuments(10, 9)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.queries.WithLabelValues("hybrid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("keyword")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.documents.WithLabelValues("vector")))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.documents.WithLabelValues("keyword")))
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.ObserveQuery("vector", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `coderag_queries_total{mode="vector"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}

func TestNew_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		_ = New()
		_ = New()
	})
}
