package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func healthOK(context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLiveness(t *testing.T) {
	srv := NewServer("0", WithHealthChecks(HealthCheck{Name: "redis", Check: healthErr("down")}))

	rec := get(srv, "/health/live")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"uptime"`)
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		wantFailed string
		wantError  string
	}{
		{
			name:       "all healthy",
			checks:     []HealthCheck{{"postgres", healthOK}, {"redis", healthOK}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
		},
		{
			name:       "postgres down",
			checks:     []HealthCheck{{"postgres", healthErr("database unreachable")}, {"redis", healthOK}},
			wantStatus: http.StatusServiceUnavailable,
			wantFailed: "postgres",
			wantError:  "database unreachable",
		},
		{
			name:       "redis down",
			checks:     []HealthCheck{{"postgres", healthOK}, {"redis", healthErr("connection refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantFailed: "redis",
			wantError:  "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer("0", WithHealthChecks(tt.checks...))

			rec := get(srv, "/health/ready")

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantFailed == "" {
				assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
				return
			}
			assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
			assert.Contains(t, rec.Body.String(), `"failed_check":"`+tt.wantFailed+`"`)
			assert.Contains(t, rec.Body.String(), `"error":"`+tt.wantError+`"`)
		})
	}
}

func TestReadiness_StopsAtFirstFailure(t *testing.T) {
	called := false
	srv := NewServer("0", WithHealthChecks(
		HealthCheck{Name: "postgres", Check: healthErr("down")},
		HealthCheck{Name: "redis", Check: func(context.Context) error {
			called = true
			return nil
		}},
	))

	get(srv, "/health/ready")

	assert.False(t, called)
}

func TestVersion(t *testing.T) {
	rec := get(NewServer("0"), "/version")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"version"`)
	assert.Contains(t, body, `"commit"`)
	assert.Contains(t, body, `"build_time"`)
	assert.Contains(t, body, `"go_version"`)
}
