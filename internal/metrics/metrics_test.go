package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atinyakov/kosync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest("/healthcheck", http.MethodGet, 200, 10*time.Millisecond)
	m.ObserveRequest("/healthcheck", http.MethodGet, 200, 10*time.Millisecond)
	m.ObserveRequest("", http.MethodGet, 404, time.Millisecond)

	out := scrape(t, m)
	assert.Contains(t, out, `kosync_http_requests_total{method="GET",route="/healthcheck",status="200"} 2`)
	assert.Contains(t, out, `kosync_http_requests_total{method="GET",route="unmatched",status="404"} 1`)
	assert.Contains(t, out, `kosync_http_request_duration_seconds_count{route="/healthcheck"} 2`)
}

func TestObserveRequest_UnknownMethodsShareOneLabel(t *testing.T) {
	m := New()
	m.ObserveRequest("", "BREW", 404, time.Millisecond)
	m.ObserveRequest("", "FOO1", 404, time.Millisecond)
	m.ObserveRequest("", "get", 404, time.Millisecond)
	m.ObserveRequest("/healthcheck", http.MethodHead, 200, time.Millisecond)

	out := scrape(t, m)
	assert.Contains(t, out, `kosync_http_requests_total{method="other",route="unmatched",status="404"} 3`)
	assert.Contains(t, out, `kosync_http_requests_total{method="HEAD",route="/healthcheck",status="200"} 1`)
	assert.NotContains(t, out, `method="BREW"`)
	assert.NotContains(t, out, `method="get"`)
}

func TestCountersAndGauges(t *testing.T) {
	m := New()
	m.Registered()
	m.Pushed()
	m.Pushed()
	m.SetStoreStats(models.Stats{Users: 3, Records: 7})

	out := scrape(t, m)
	assert.Contains(t, out, "kosync_registrations_total 1")
	assert.Contains(t, out, "kosync_progress_pushes_total 2")
	assert.Contains(t, out, "kosync_users 3")
	assert.Contains(t, out, "kosync_progress_records 7")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("/x", "GET", 200, time.Second)
	m.Registered()
	m.Pushed()
	m.SetStoreStats(models.Stats{Users: 1})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
