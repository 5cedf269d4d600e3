package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/evalsync/internal/buildinfo"
	"github.com/tphakala/evalsync/internal/coordinator"
	"github.com/tphakala/evalsync/internal/datastore"
	"github.com/tphakala/evalsync/internal/evaluation"
	"github.com/tphakala/evalsync/internal/logger"
	"github.com/tphakala/evalsync/internal/observability"
)

type nopPusher struct{}

func (nopPusher) Push(context.Context, evaluation.RegistryConfig, *evaluation.Record) error {
	return nil
}

func newTestServer(t *testing.T, cfg *Config, withMetrics bool) *Server {
	t.Helper()

	log := logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	ds := datastore.New(datastore.NewMemoryBackend(), datastore.WithLogger(log))
	t.Cleanup(func() { _ = ds.Close() })
	coord := coordinator.New(ds, nopPusher{}, coordinator.WithLogger(log))

	opts := []ServerOption{
		WithLogger(log),
		WithBuildInfo(&buildinfo.Context{Version: "1.2.3", BuildDate: "2024-03-15"}),
	}
	if withMetrics {
		m, err := observability.NewMetrics()
		require.NoError(t, err)
		opts = append(opts, WithMetrics(m))
	}

	s, err := New(cfg, ds, coord, opts...)
	require.NoError(t, err)
	return s
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Listen = ""
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxAttempts = 0
	require.Error(t, cfg.Validate())

	_, err := New(cfg, nil, nil)
	require.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, DefaultConfig(), false)

	rec := serve(s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"1.2.3"`)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, DefaultConfig(), false)

	rec := serve(s, http.MethodGet, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestCorrelationIDPropagates(t *testing.T) {
	s := newTestServer(t, DefaultConfig(), false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records/eval_missing", http.NoBody)
	req.Header.Set("X-Correlation-ID", "corr-42")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "corr-42", rec.Header().Get("X-Correlation-ID"))
	assert.Contains(t, rec.Body.String(), `"correlation_id":"corr-42"`)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := newTestServer(t, DefaultConfig(), false)
		assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/metrics").Code)
	})

	t.Run("records route templates", func(t *testing.T) {
		s := newTestServer(t, DefaultConfig(), true)

		require.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/api/v1/records/eval_missing").Code)

		rec := serve(s, http.MethodGet, "/metrics")
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, `evalsync_http_requests_total{method="GET",path="/api/v1/records/:id",status_code="404"} 1`)
		assert.NotContains(t, body, `path="/metrics"`)
	})
}

func TestBodyLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BodyLimit = "1K"
	s := newTestServer(t, cfg, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/records", strings.NewReader(strings.Repeat("x", 4096)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRunAndShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	s := newTestServer(t, cfg, false)

	addr, err := s.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	url := fmt.Sprintf("http://%s/api/v1/health", addr)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:noctx // test
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
