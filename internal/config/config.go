package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds gateway configuration loaded from the environment.
type Config struct {
	AppEnv  string
	Port    string
	StoreID string

	BackendBaseURL   string
	BackendEventsURL string
	BackendTimeout   time.Duration

	RedisURL string

	SessionSecret  string
	SessionTTL     time.Duration
	OfflinePINHash string
	LoginRateLimit string

	DeviceID       string
	ReconnectDelay time.Duration
	RegisterDelay  time.Duration
	QRPaymentTTL   time.Duration
	CartClearDelay time.Duration
	RefreshDelay   time.Duration

	CatalogCacheTTL time.Duration
	RelayMaxRetry   int

	CORSAllowedOrigins []string
	MaxBodyBytes       int64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:  valueOrDefault(k.String("APP_ENV"), "development"),
		Port:    valueOrDefault(k.String("PORT"), "8080"),
		StoreID: strings.TrimSpace(k.String("STORE_ID")),

		BackendBaseURL:   strings.TrimSpace(k.String("BACKEND_BASE_URL")),
		BackendEventsURL: strings.TrimSpace(k.String("BACKEND_EVENTS_URL")),
		BackendTimeout:   parseDuration(k.String("BACKEND_TIMEOUT"), "10s"),

		RedisURL: k.String("REDIS_URL"),

		SessionSecret:  k.String("SESSION_SECRET"),
		SessionTTL:     parseDuration(k.String("SESSION_TTL"), "12h"),
		OfflinePINHash: strings.TrimSpace(k.String("OFFLINE_PIN_HASH")),
		LoginRateLimit: valueOrDefault(k.String("LOGIN_RATE_LIMIT"), "10-M"),

		DeviceID:       valueOrDefault(k.String("DEVICE_ID"), "customer-display-1"),
		ReconnectDelay: parseDuration(k.String("DISPLAY_RECONNECT_DELAY"), "1s"),
		RegisterDelay:  parseDuration(k.String("DISPLAY_REGISTER_DELAY"), "300ms"),
		QRPaymentTTL:   parseDuration(k.String("DISPLAY_QR_TTL"), "5m"),
		CartClearDelay: parseDuration(k.String("DISPLAY_CART_CLEAR_DELAY"), "200ms"),
		RefreshDelay:   parseDuration(k.String("DISPLAY_REFRESH_DELAY"), "500ms"),

		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "60s"),
		RelayMaxRetry:   intOrDefault(k.Int("RELAY_MAX_RETRY"), 10),

		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		MaxBodyBytes:       int64(intOrDefault(k.Int("MAX_BODY_BYTES"), 1<<20)),
	}

	if cfg.BackendBaseURL == "" {
		return nil, errors.New("BACKEND_BASE_URL is required")
	}
	if cfg.BackendEventsURL == "" {
		return nil, errors.New("BACKEND_EVENTS_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("SESSION_SECRET is required")
	}
	if cfg.StoreID == "" {
		return nil, errors.New("STORE_ID is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func intOrDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
