package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestRecordProviderCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("portal", reg)

	m.RecordProviderCall("daily", nil, 10*time.Millisecond)
	m.RecordProviderCall("daily", errors.New("boom"), 10*time.Millisecond)
	m.RecordProviderCall("daily", errors.New("boom"), 10*time.Millisecond)

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, `portal_provider_calls_total{op="daily",result="ok"} 1`)
	assert.Contains(t, body, `portal_provider_calls_total{op="daily",result="error"} 2`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordLogin("success")
		m.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
		m.UpdateDBStats(1, 2, 3)
	})
}

func TestHandlerFor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("portal", reg)
	m.RecordLogin("success")

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `portal_logins_total{result="success"} 1`)
}
