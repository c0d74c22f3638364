package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-gateway/internal/backend"
	"github.com/noah-isme/kasir-gateway/internal/common"
)

const (
	defaultSessionTTL = 12 * time.Hour
	defaultIssuer     = "kasir-gateway"

	sessionKeyPrefix   = "session:"
	dateRangeKeyPrefix = "prefs:dashboard_range:"
)

// OfflineEmployeeID marks sessions opened while the upstream was unreachable.
const OfflineEmployeeID = "offline"

// PINVerifier checks a cashier PIN against the upstream backend.
type PINVerifier interface {
	VerifyPIN(ctx context.Context, pin string) (*backend.PINVerification, error)
}

// Employee identifies the cashier bound to a session.
type Employee struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	Offline bool   `json:"offline,omitempty"`
}

// LoginResult bundles the session token issued after a successful PIN check.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Employee  Employee  `json:"employee"`
}

// DateRange is the cashier's persisted dashboard filter.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Service issues and verifies PIN-gated sessions. Session liveness is tracked
// in redis so logout revokes a token before its expiry.
type Service struct {
	Verifier PINVerifier
	Redis    *redis.Client
	Secret   []byte
	TTL      time.Duration
	Issuer   string

	// OfflinePINHash, when set, lets a cashier open a degraded session while
	// the upstream is unreachable. It holds an argon2id hash of the store's
	// fallback PIN.
	OfflinePINHash string

	Log zerolog.Logger
	now func() time.Time
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Service) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return defaultSessionTTL
}

func (s *Service) issuer() string {
	if s.Issuer != "" {
		return s.Issuer
	}
	return defaultIssuer
}

func invalidPIN() error {
	return common.NewAppError("INVALID_PIN", "invalid PIN", http.StatusUnauthorized, nil)
}

// Login verifies the PIN and opens a session. When the upstream cannot be
// consulted and an offline fallback PIN is configured, a degraded offline
// session is opened instead so the store keeps selling.
func (s *Service) Login(ctx context.Context, pin string) (LoginResult, error) {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return LoginResult{}, invalidPIN()
	}

	emp, err := s.verify(ctx, pin)
	if err != nil {
		return LoginResult{}, err
	}

	sid := uuid.NewString()
	expiresAt := s.clock().Add(s.ttl())
	if err := s.Redis.Set(ctx, sessionKeyPrefix+sid, emp.ID, s.ttl()).Err(); err != nil {
		return LoginResult{}, fmt.Errorf("session: store session: %w", err)
	}

	token, err := s.signToken(sid, emp, expiresAt)
	if err != nil {
		return LoginResult{}, err
	}
	s.Log.Info().Str("employee_id", emp.ID).Bool("offline", emp.Offline).Msg("session opened")
	return LoginResult{Token: token, ExpiresAt: expiresAt, Employee: emp}, nil
}

func (s *Service) verify(ctx context.Context, pin string) (Employee, error) {
	v, err := s.Verifier.VerifyPIN(ctx, pin)
	if err != nil {
		if errors.Is(err, backend.ErrUnavailable) && s.OfflinePINHash != "" {
			ok, cmpErr := argon2id.ComparePasswordAndHash(pin, s.OfflinePINHash)
			if cmpErr != nil {
				return Employee{}, fmt.Errorf("session: offline pin check: %w", cmpErr)
			}
			if !ok {
				return Employee{}, invalidPIN()
			}
			return Employee{ID: OfflineEmployeeID, Name: "Offline cashier", Role: "cashier", Offline: true}, nil
		}
		return Employee{}, err
	}
	if !v.Valid {
		return Employee{}, invalidPIN()
	}
	return Employee{ID: v.EmployeeID, Name: v.Name, Role: v.Role}, nil
}

func (s *Service) signToken(sid string, emp Employee, expiresAt time.Time) (string, error) {
	now := s.clock()
	builder := jwt.NewBuilder().
		Subject(emp.ID).
		Issuer(s.issuer()).
		IssuedAt(now).
		Expiration(expiresAt).
		Claim("sid", sid).
		Claim("name", emp.Name).
		Claim("role", emp.Role)
	if emp.Offline {
		builder = builder.Claim("offline", true)
	}
	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("session: build token: %w", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, s.Secret))
	if err != nil {
		return "", fmt.Errorf("session: sign token: %w", err)
	}
	return string(signed), nil
}

// Verify parses the token and checks that the session is still live in redis.
func (s *Service) Verify(ctx context.Context, raw string) (Employee, error) {
	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, s.Secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(s.issuer()),
		jwt.WithClock(jwt.ClockFunc(s.clock)),
	)
	if err != nil {
		return Employee{}, common.NewAppError("UNAUTHORIZED", "missing or invalid token", http.StatusUnauthorized, err)
	}
	sid, _ := tok.Get("sid")
	sidStr, _ := sid.(string)
	if sidStr == "" {
		return Employee{}, common.NewAppError("UNAUTHORIZED", "missing or invalid token", http.StatusUnauthorized, nil)
	}
	if err := s.Redis.Get(ctx, sessionKeyPrefix+sidStr).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return Employee{}, common.NewAppError("SESSION_EXPIRED", "session expired or revoked", http.StatusUnauthorized, nil)
		}
		return Employee{}, fmt.Errorf("session: check session: %w", err)
	}
	emp := Employee{ID: tok.Subject()}
	if v, ok := tok.Get("name"); ok {
		emp.Name, _ = v.(string)
	}
	if v, ok := tok.Get("role"); ok {
		emp.Role, _ = v.(string)
	}
	if v, ok := tok.Get("offline"); ok {
		emp.Offline, _ = v.(bool)
	}
	return emp, nil
}

// Logout revokes the session and drops the cashier's persisted dashboard
// preferences.
func (s *Service) Logout(ctx context.Context, raw string) error {
	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, s.Secret),
		jwt.WithValidate(false),
	)
	if err != nil {
		return common.NewAppError("UNAUTHORIZED", "missing or invalid token", http.StatusUnauthorized, err)
	}
	keys := []string{}
	if v, ok := tok.Get("sid"); ok {
		if sid, _ := v.(string); sid != "" {
			keys = append(keys, sessionKeyPrefix+sid)
		}
	}
	if sub := tok.Subject(); sub != "" {
		keys = append(keys, dateRangeKeyPrefix+sub)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.Redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("session: revoke session: %w", err)
	}
	return nil
}

// DateRange returns the cashier's saved dashboard filter, zero when unset.
func (s *Service) DateRange(ctx context.Context, employeeID string) (DateRange, error) {
	raw, err := s.Redis.Get(ctx, dateRangeKeyPrefix+employeeID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return DateRange{}, nil
		}
		return DateRange{}, fmt.Errorf("session: load date range: %w", err)
	}
	var out DateRange
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return DateRange{}, nil
	}
	return out, nil
}

// SetDateRange persists the cashier's dashboard filter for the session TTL.
func (s *Service) SetDateRange(ctx context.Context, employeeID string, dr DateRange) error {
	payload, err := json.Marshal(dr)
	if err != nil {
		return err
	}
	if err := s.Redis.Set(ctx, dateRangeKeyPrefix+employeeID, payload, s.ttl()).Err(); err != nil {
		return fmt.Errorf("session: save date range: %w", err)
	}
	return nil
}
