package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	redisErr   error
	backendErr error
}

func (s stubChecker) PingRedis(context.Context, time.Duration) error   { return s.redisErr }
func (s stubChecker) PingBackend(context.Context, time.Duration) error { return s.backendErr }

func TestLive(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler{}.Live(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestReadyOK(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler{Checker: stubChecker{}}.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"redis": "ok", "backend": "ok"}`, rec.Body.String())
}

func TestReadyRedisDown(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler{Checker: stubChecker{redisErr: errors.New("dial refused")}}.
		Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyBackendDownStillReady(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler{Checker: stubChecker{backendErr: errors.New("upstream unreachable")}}.
		Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	// Degraded mode still serves cached data and queues writes.
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "upstream unreachable")
}
