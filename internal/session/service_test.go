package session

import (
	"context"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-gateway/internal/backend"
	"github.com/noah-isme/kasir-gateway/internal/common"
)

type fakeVerifier struct {
	pin  string
	err  error
	resp backend.PINVerification
}

func (f *fakeVerifier) VerifyPIN(_ context.Context, pin string) (*backend.PINVerification, error) {
	if f.err != nil {
		return nil, f.err
	}
	if pin != f.pin {
		return &backend.PINVerification{Valid: false}, nil
	}
	resp := f.resp
	resp.Valid = true
	return &resp, nil
}

func newTestService(t *testing.T, verifier PINVerifier) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &Service{
		Verifier: verifier,
		Redis:    client,
		Secret:   []byte("test-secret-test-secret-test-secret"),
		TTL:      time.Hour,
		Log:      zerolog.Nop(),
	}
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	svc := newTestService(t, &fakeVerifier{
		pin:  "123456",
		resp: backend.PINVerification{EmployeeID: "e-1", Name: "Siti", Role: "cashier"},
	})
	ctx := context.Background()

	result, err := svc.Login(ctx, "123456")
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.Equal(t, "e-1", result.Employee.ID)
	require.False(t, result.Employee.Offline)

	emp, err := svc.Verify(ctx, result.Token)
	require.NoError(t, err)
	require.Equal(t, "e-1", emp.ID)
	require.Equal(t, "Siti", emp.Name)
	require.Equal(t, "cashier", emp.Role)
}

func TestLoginWrongPIN(t *testing.T) {
	svc := newTestService(t, &fakeVerifier{pin: "123456"})

	_, err := svc.Login(context.Background(), "999999")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_PIN", appErr.Code)
}

func TestLoginOfflineFallback(t *testing.T) {
	hash, err := argon2id.CreateHash("424242", argon2id.DefaultParams)
	require.NoError(t, err)

	svc := newTestService(t, &fakeVerifier{err: backend.ErrUnavailable})
	svc.OfflinePINHash = hash
	ctx := context.Background()

	result, err := svc.Login(ctx, "424242")
	require.NoError(t, err)
	require.True(t, result.Employee.Offline)
	require.Equal(t, OfflineEmployeeID, result.Employee.ID)

	emp, err := svc.Verify(ctx, result.Token)
	require.NoError(t, err)
	require.True(t, emp.Offline)

	_, err = svc.Login(ctx, "111111")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_PIN", appErr.Code)
}

func TestLoginUpstreamDownWithoutFallback(t *testing.T) {
	svc := newTestService(t, &fakeVerifier{err: backend.ErrUnavailable})

	_, err := svc.Login(context.Background(), "123456")
	require.ErrorIs(t, err, backend.ErrUnavailable)
}

func TestLogoutRevokesSessionAndPrefs(t *testing.T) {
	svc := newTestService(t, &fakeVerifier{
		pin:  "123456",
		resp: backend.PINVerification{EmployeeID: "e-1", Name: "Siti", Role: "cashier"},
	})
	ctx := context.Background()

	result, err := svc.Login(ctx, "123456")
	require.NoError(t, err)
	require.NoError(t, svc.SetDateRange(ctx, "e-1", DateRange{From: "2026-08-01", To: "2026-08-31"}))

	require.NoError(t, svc.Logout(ctx, result.Token))

	_, err = svc.Verify(ctx, result.Token)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "SESSION_EXPIRED", appErr.Code)

	dr, err := svc.DateRange(ctx, "e-1")
	require.NoError(t, err)
	require.Zero(t, dr)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc := newTestService(t, &fakeVerifier{
		pin:  "123456",
		resp: backend.PINVerification{EmployeeID: "e-1"},
	})
	ctx := context.Background()

	issued := time.Now()
	svc.WithNow(func() time.Time { return issued })
	result, err := svc.Login(ctx, "123456")
	require.NoError(t, err)

	svc.WithNow(func() time.Time { return issued.Add(2 * time.Hour) })
	_, err = svc.Verify(ctx, result.Token)
	require.Error(t, err)
}

func TestDateRangeRoundTrip(t *testing.T) {
	svc := newTestService(t, &fakeVerifier{})
	ctx := context.Background()

	dr, err := svc.DateRange(ctx, "e-1")
	require.NoError(t, err)
	require.Zero(t, dr)

	want := DateRange{From: "2026-08-01", To: "2026-08-31"}
	require.NoError(t, svc.SetDateRange(ctx, "e-1", want))

	got, err := svc.DateRange(ctx, "e-1")
	require.NoError(t, err)
	require.Equal(t, want, got)
}
