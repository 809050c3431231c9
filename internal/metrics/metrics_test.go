package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()
	m.Observe("put_item", nil, time.Millisecond)
	m.Observe("put_item", nil, time.Millisecond)
	m.Observe("put_item", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("put_item", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("put_item", OutcomeError)))
}

func TestGaugesAndCounters(t *testing.T) {
	m := New()
	m.SetCollectionSize("item_archive", 42)
	m.AddIngested("stored", 3)
	m.AddIngested("stored", 0)

	assert.Equal(t, 42.0, testutil.ToFloat64(m.size.WithLabelValues("item_archive")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ingested.WithLabelValues("stored")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Observe("x", nil, time.Second)
		m.SetCollectionSize("x", 1)
		m.AddIngested("stored", 1)
	})
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.Observe("get_item", nil, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `briefing_archive_operations_total{op="get_item",outcome="ok"} 1`)
}
