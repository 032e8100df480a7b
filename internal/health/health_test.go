package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billing-service/internal/testutil"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubConn bool

func (s stubConn) IsConnected() bool { return bool(s) }

func newRouter(h *Checker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/livez", h.LivezHandler)
	r.GET("/readyz", h.ReadyzHandler)
	r.GET("/health", h.HealthHandler)
	r.GET("/api/v1/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func get(t *testing.T, r http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	body := map[string]interface{}{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestReadyz_RequiresReadyFlag(t *testing.T) {
	h := NewChecker(testutil.NewDB(t), nil, nil, "test")
	r := newRouter(h)

	w, body := get(t, r, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "not_ready", body["status"])

	h.SetReady(true)
	w, body = get(t, r, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", body["status"])
}

func TestHealth_ReportsDegradedDependencies(t *testing.T) {
	h := NewChecker(testutil.NewDB(t), stubPinger{err: errors.New("redis down")}, stubConn(false), "1.2.3")
	h.SetReady(true)
	r := newRouter(h)

	w, body := get(t, r, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.2.3", body["version"])
	deps := body["dependencies"].(map[string]interface{})
	assert.Equal(t, "connected", deps["database"])
	assert.Equal(t, "disconnected", deps["cache"])
	assert.Equal(t, "disconnected", deps["events"])

	w, _ = get(t, r, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code, "cache and events do not gate readiness")
}

func TestLivez(t *testing.T) {
	w, body := get(t, newRouter(NewChecker(testutil.NewDB(t), nil, stubConn(true), "test")), "/livez")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alive", body["status"])
}

func TestMetricsMiddleware_SkipsProbes(t *testing.T) {
	r := newRouter(NewChecker(testutil.NewDB(t), nil, nil, "test"))

	before := promtest.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/livez", "OK"))
	get(t, r, "/livez")
	assert.Equal(t, before, promtest.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/livez", "OK")))

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/ping", "No Content")
	before = promtest.ToFloat64(counter)
	get(t, r, "/api/v1/ping")
	assert.Equal(t, before+1, promtest.ToFloat64(counter))
}

func TestRecordOperation(t *testing.T) {
	ok := billingOperations.WithLabelValues("assign_addon", "success")
	failed := billingOperations.WithLabelValues("assign_addon", "error")
	okBefore, failedBefore := promtest.ToFloat64(ok), promtest.ToFloat64(failed)

	RecordOperation("assign_addon", nil)
	RecordOperation("assign_addon", errors.New("boom"))

	assert.Equal(t, okBefore+1, promtest.ToFloat64(ok))
	assert.Equal(t, failedBefore+1, promtest.ToFloat64(failed))

	before := promtest.ToFloat64(scheduledPlanChanges)
	RecordScheduledPlanChanges(0)
	RecordScheduledPlanChanges(2)
	assert.Equal(t, before+2, promtest.ToFloat64(scheduledPlanChanges))
}
