package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-collector/internal/metrics"
)

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, nil, zap.NewNop()), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzRunsChecks(t *testing.T) {
	t.Parallel()

	ok := NewServer(map[string]Check{
		"postgres": func(context.Context) error { return nil },
	}, nil, zap.NewNop())
	rec := serve(t, ok, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	failing := NewServer(map[string]Check{
		"postgres": func(context.Context) error { return errors.New("connection refused") },
		"blobs":    func(context.Context) error { return nil },
	}, nil, zap.NewNop())
	rec = serve(t, failing, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Failures map[string]string `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"postgres": "connection refused"}, body.Failures)
}

func TestRunStatus(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, nil, zap.NewNop()), "/v1/run")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s := NewServer(nil, func() any {
		return map[string]any{"run_id": "run-1", "phase": "collecting"}
	}, zap.NewNop())
	rec = serve(t, s, "/v1/run")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"run_id":"run-1","phase":"collecting"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	metrics.Init()
	metrics.ObserveUnit("succeeded")
	rec := serve(t, NewServer(nil, nil, zap.NewNop()), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "collector_units_total")
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, func() any { panic("status exploded") }, zap.NewNop())
	rec := serve(t, s, "/v1/run")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer(nil, nil, zap.NewNop()).ListenAndServe(ctx, addr)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
