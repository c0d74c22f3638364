package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-gateway/internal/backend"
	"github.com/noah-isme/kasir-gateway/internal/resilience"
)

func newGateway(t *testing.T, upstream http.Handler) *chi.Mux {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)
	client := backend.NewClient(srv.URL, 2*time.Second,
		resilience.NewBreaker(100, 0.9, time.Minute), zerolog.Nop())
	h := ResourceHandler{Resource: client.Resource(backend.ResTables), Log: zerolog.Nop()}
	r := chi.NewRouter()
	r.Route("/api/tables", h.Mount)
	return r
}

func TestListPassesThroughQueryAndBody(t *testing.T) {
	gw := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tables", r.URL.Path)
		require.Equal(t, "available", r.URL.Query().Get("status"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": [{"id": "t-1", "number": 4}]}`))
	}))

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tables?status=available", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"data": [{"id": "t-1", "number": 4}]}`, rec.Body.String())
}

func TestCreateForwardsBodyVerbatim(t *testing.T) {
	var gotBody string
	gw := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": "t-2"}`))
	}))

	body := `{"number": 5, "zone": "terrace"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/tables", strings.NewReader(body))
	gw.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.JSONEq(t, body, gotBody)
}

func TestCreateRejectsMalformedJSON(t *testing.T) {
	gw := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("malformed body must not reach the upstream")
	}))

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tables", strings.NewReader(`{broken`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_BODY")
}

func TestDuplicateEmailBecomesFieldError(t *testing.T) {
	gw := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error": {"message": "Email already registered"}}`))
	}))

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tables", strings.NewReader(`{}`)))

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "EMAIL_ALREADY_USED")
	require.Contains(t, rec.Body.String(), `"email"`)
}

func TestUpstreamErrorBodyRelayedVerbatim(t *testing.T) {
	gw := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error": {"code": "TABLE_OCCUPIED", "message": "table already occupied"}}`))
	}))

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tables", strings.NewReader(`{}`)))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.JSONEq(t, `{"error": {"code": "TABLE_OCCUPIED", "message": "table already occupied"}}`, rec.Body.String())
}

func TestNotFoundMapped(t *testing.T) {
	gw := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tables/t-404", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestUnreachableUpstreamMapped(t *testing.T) {
	client := backend.NewClient("http://127.0.0.1:1", 200*time.Millisecond,
		resilience.NewBreaker(100, 0.9, time.Minute), zerolog.Nop())
	h := ResourceHandler{Resource: client.Resource(backend.ResTables), Log: zerolog.Nop()}
	r := chi.NewRouter()
	r.Route("/api/tables", h.Mount)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "UPSTREAM_UNAVAILABLE")
}
