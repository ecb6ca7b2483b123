package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianobarbosa/lambdakit/internal/config"
)

type fakeChecker struct {
	name string
	err  error
}

func (c *fakeChecker) Name() string { return c.name }

func (c *fakeChecker) Check(_ context.Context) error { return c.err }

func newTestServer(t *testing.T, checkers ...Checker) *Server {
	t.Helper()

	cfg := &config.ObservabilityConfig{
		Port:          "0",
		MetricsPath:   "/metrics",
		LivenessPath:  "/health/live",
		ReadinessPath: "/health/ready",
		Timeout:       time.Second,
	}
	return NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg, checkers...)
}

func TestLiveness(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		checkers       []Checker
		wantCode       int
		wantStatus     string
		wantComponents map[string]string
	}{
		{
			name: "all backends up",
			checkers: []Checker{
				&fakeChecker{name: "redis"},
				&fakeChecker{name: "postgres"},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ready",
			wantComponents: map[string]string{
				"redis":    "up",
				"postgres": "up",
			},
		},
		{
			name: "one backend down degrades the probe",
			checkers: []Checker{
				&fakeChecker{name: "redis"},
				&fakeChecker{name: "postgres", err: errors.New("connection refused")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
			wantComponents: map[string]string{
				"redis":    "up",
				"postgres": "down: connection refused",
			},
		},
		{
			name:           "no registered backends is ready",
			wantCode:       http.StatusOK,
			wantStatus:     "ready",
			wantComponents: map[string]string{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(t, tt.checkers...)

			rec := httptest.NewRecorder()
			server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			require.Equal(t, tt.wantCode, rec.Code)

			var report probeReport
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
			assert.Equal(t, tt.wantStatus, report.Status)
			assert.Equal(t, tt.wantComponents, report.Components)
		})
	}
}
