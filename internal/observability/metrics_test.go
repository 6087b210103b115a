package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Track("access_notify").End(nil)

	body := scrape(t, metrics)
	assert.Contains(t, body, `carepoint_jobs_total{job="access_notify",status="success"} 1`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `carepoint_http_requests_total{code="418",route="/test"} 1`)
	assert.Contains(t, body, `carepoint_http_request_duration_seconds_bucket{route="/test"`)
}

func TestAuthorizationAndGuardCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordDecision("page", true)
	metrics.RecordDecision("page", false)
	metrics.RecordDecision("page", false)
	metrics.RecordAuthEvent("signed_in")
	metrics.RecordGuard("denied", "page_forbidden")
	metrics.RecordGuard("authorized", "")

	body := scrape(t, metrics)
	assert.Contains(t, body, `carepoint_authz_decisions_total{kind="page",result="allow"} 1`)
	assert.Contains(t, body, `carepoint_authz_decisions_total{kind="page",result="deny"} 2`)
	assert.Contains(t, body, `carepoint_auth_events_total{kind="signed_in"} 1`)
	assert.Contains(t, body, `carepoint_page_guard_decisions_total{reason="page_forbidden",state="denied"} 1`)
	assert.Contains(t, body, `carepoint_page_guard_decisions_total{reason="none",state="authorized"} 1`)
}

func TestNilMetricsAreInert(t *testing.T) {
	var metrics *Metrics
	metrics.RecordDecision("permission", true)
	metrics.RecordGuard("denied", "no_session")
	assert.Nil(t, metrics.Jobs())

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.False(t, strings.Contains(rr.Body.String(), "carepoint_"))
}
