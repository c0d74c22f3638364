package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-gateway/internal/resilience"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	breaker := resilience.NewBreaker(100, 0.9, time.Minute).WithTarget("backend-test")
	return NewClient(srv.URL, 2*time.Second, breaker, zerolog.Nop())
}

func TestResourcePaths(t *testing.T) {
	var gotPath, gotMethod, gotQuery string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))

	ctx := context.Background()
	products := c.Resource(ResProducts)

	_, err := products.List(ctx, url.Values{"categoryId": {"7"}})
	require.NoError(t, err)
	require.Equal(t, "/api/products", gotPath)
	require.Equal(t, http.MethodGet, gotMethod)
	require.Equal(t, "categoryId=7", gotQuery)

	_, err = products.Get(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, "/api/products/p-1", gotPath)

	_, err = products.Create(ctx, map[string]string{"name": "Kopi"})
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, gotMethod)

	_, err = products.Update(ctx, "p-1", map[string]string{"name": "Kopi Susu"})
	require.NoError(t, err)
	require.Equal(t, http.MethodPut, gotMethod)
	require.Equal(t, "/api/products/p-1", gotPath)

	require.NoError(t, products.Delete(ctx, "p-1"))
	require.Equal(t, http.MethodDelete, gotMethod)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"not found", http.StatusNotFound, `{"error": {"message": "no such record"}}`, ErrNotFound},
		{"unauthorized", http.StatusUnauthorized, `{}`, ErrUnauthorized},
		{"duplicate email", http.StatusConflict, `{"error": {"message": "Email already registered"}}`, ErrDuplicateEmail},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			_, err := c.Resource(ResEmployees).Create(context.Background(), map[string]string{})
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestConflictWithoutEmailIsAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error": {"message": "table already occupied"}}`))
	}))
	_, err := c.Resource(ResTables).Create(context.Background(), map[string]string{})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusConflict, apiErr.StatusCode)
}

func TestBreakerShortCircuitsAfterFailures(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	// A tight breaker: one observed failure opens it.
	c.breaker = resilience.NewBreaker(1, 0.5, time.Minute)

	_, err := c.Get(context.Background(), "/api/products", nil)
	require.Error(t, err)
	require.False(t, c.Healthy())

	_, err = c.Get(context.Background(), "/api/products", nil)
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
}

func TestVerifyPIN(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/verify-pin", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		if body["pin"] == "123456" {
			_, _ = w.Write([]byte(`{"valid": true, "employeeId": "e-1", "name": "Siti", "role": "cashier"}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))

	ok, err := c.VerifyPIN(context.Background(), "123456")
	require.NoError(t, err)
	require.True(t, ok.Valid)
	require.Equal(t, "e-1", ok.EmployeeID)

	bad, err := c.VerifyPIN(context.Background(), "000000")
	require.NoError(t, err)
	require.False(t, bad.Valid)
}

func TestVerifyPINUpstreamDown(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond,
		resilience.NewBreaker(100, 0.9, time.Minute), zerolog.Nop())

	_, err := c.VerifyPIN(context.Background(), "123456")
	require.ErrorIs(t, err, ErrUnavailable)
}
