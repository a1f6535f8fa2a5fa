package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors_RegisterWithoutConflict(t *testing.T) {
	reg := NewRegistry()

	require.NotPanics(t, func() {
		NewCacheMetrics(reg)
		NewModerationMetrics(reg)
		NewPresenceMetrics(reg)
		NewReconcilerMetrics(reg)
		NewRedisMetrics(reg)
		NewHTTPMetrics(reg)
		NewDBMetrics(reg)
	})
}

func TestHandler_ExposesRegisteredMetrics(t *testing.T) {
	reg := NewRegistry()
	m := NewModerationMetrics(reg)
	m.Decisions.WithLabelValues("warn").Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `n3rdbot_moderation_decisions_total{outcome="warn"} 1`)
}

func TestHTTPMetrics_MiddlewareSkipsHealth(t *testing.T) {
	reg := NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.POST("/webhooks/eventsub", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhooks/eventsub", nil))

	assert.Equal(t, 0.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/health/live", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodPost, "/webhooks/eventsub", "204")))
}
