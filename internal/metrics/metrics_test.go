package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_HandlerExposesRegistry(t *testing.T) {
	m := New()

	m.ToolDispatchesTotal.WithLabelValues("global_navigate", "success").Inc()
	m.SessionsActive.Set(2)
	m.QuotaExhaustedTotal.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "iasted_tool_dispatches_total")
	assert.Contains(t, body, "iasted_sessions_active 2")
	assert.Contains(t, body, "iasted_quota_exhausted_total 1")
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// Two instances must not collide (private registries, no global state).
	a := New()
	b := New()
	a.UnknownToolsTotal.Inc()

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "iasted_unknown_tools_total 0")
}
