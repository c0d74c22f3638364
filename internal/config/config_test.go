package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"BACKEND_BASE_URL":   "http://backend.local",
		"BACKEND_EVENTS_URL": "ws://backend.local/ws",
		"REDIS_URL":          "redis://localhost:6379/0",
		"SESSION_SECRET":     "test-secret",
		"STORE_ID":           "store-1",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, 10*time.Second, cfg.BackendTimeout)
	require.Equal(t, 12*time.Hour, cfg.SessionTTL)
	require.Equal(t, "10-M", cfg.LoginRateLimit)
	require.Equal(t, "customer-display-1", cfg.DeviceID)
	require.Equal(t, time.Second, cfg.ReconnectDelay)
	require.Equal(t, 300*time.Millisecond, cfg.RegisterDelay)
	require.Equal(t, 5*time.Minute, cfg.QRPaymentTTL)
	require.Equal(t, 200*time.Millisecond, cfg.CartClearDelay)
	require.Equal(t, 500*time.Millisecond, cfg.RefreshDelay)
	require.Equal(t, 60*time.Second, cfg.CatalogCacheTTL)
	require.Equal(t, 10, cfg.RelayMaxRetry)
	require.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	require.Empty(t, cfg.CORSAllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PORT"] = "9090"
	env["BACKEND_TIMEOUT"] = "2s"
	env["SESSION_TTL"] = "30m"
	env["DISPLAY_QR_TTL"] = "90s"
	env["CORS_ALLOWED_ORIGINS"] = "http://kasir.local, http://display.local"
	env["RELAY_MAX_RETRY"] = "3"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, 2*time.Second, cfg.BackendTimeout)
	require.Equal(t, 30*time.Minute, cfg.SessionTTL)
	require.Equal(t, 90*time.Second, cfg.QRPaymentTTL)
	require.Equal(t, []string{"http://kasir.local", "http://display.local"}, cfg.CORSAllowedOrigins)
	require.Equal(t, 3, cfg.RelayMaxRetry)
}

func TestLoadRequiredVariables(t *testing.T) {
	for _, key := range []string{"BACKEND_BASE_URL", "BACKEND_EVENTS_URL", "REDIS_URL", "SESSION_SECRET", "STORE_ID"} {
		env := baseEnv()
		env[key] = ""
		_, err := LoadForTests(env)
		require.Error(t, err, key)
		require.Contains(t, err.Error(), key)
	}
}

func TestLoadInvalidDurationFallsBack(t *testing.T) {
	env := baseEnv()
	env["BACKEND_TIMEOUT"] = "not-a-duration"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.BackendTimeout)
}
