package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedHandler(ratePerSecond float64, burst int) func(t *testing.T, remoteAddr string) int {
	e := echo.New()
	handler := newRateLimiter(ratePerSecond, burst)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	return func(t *testing.T, remoteAddr string) int {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/eventsub", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		require.NoError(t, handler(e.NewContext(req, rec)))
		return rec.Code
	}
}

func TestRateLimiter_AllowsBurst(t *testing.T) {
	hit := limitedHandler(10, 3)

	for range 3 {
		assert.Equal(t, http.StatusOK, hit(t, "1.2.3.4:1234"))
	}
}

func TestRateLimiter_RejectsOverBurst(t *testing.T) {
	hit := limitedHandler(0.01, 1)

	assert.Equal(t, http.StatusOK, hit(t, "1.2.3.4:1234"))
	assert.Equal(t, http.StatusTooManyRequests, hit(t, "1.2.3.4:1234"))
}

func TestRateLimiter_PerClientIP(t *testing.T) {
	hit := limitedHandler(0.01, 1)

	assert.Equal(t, http.StatusOK, hit(t, "1.2.3.4:1234"))
	assert.Equal(t, http.StatusOK, hit(t, "5.6.7.8:5678"))
	assert.Equal(t, http.StatusTooManyRequests, hit(t, "1.2.3.4:9999"))
}
