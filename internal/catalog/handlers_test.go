package catalog

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-gateway/internal/backend"
	"github.com/noah-isme/kasir-gateway/internal/resilience"
)

func newCatalog(t *testing.T, upstream http.Handler) (*chi.Mux, *miniredis.Miniredis) {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	client := backend.NewClient(srv.URL, time.Second,
		resilience.NewBreaker(100, 0.9, time.Minute), zerolog.Nop())
	h := NewHandler(client, NewCache(rdb, time.Minute), zerolog.Nop())
	r := chi.NewRouter()
	r.Route("/api", h.Routes)
	return r, mr
}

func TestProductListCachedAcrossRequests(t *testing.T) {
	var hits atomic.Int64
	r, _ := newCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": [{"id": "p-1", "name": "Kopi"}]}`))
	}))

	for range 3 {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "Kopi")
	}
	require.Equal(t, int64(1), hits.Load())
}

func TestFilteredProductListBypassesCache(t *testing.T) {
	var hits atomic.Int64
	r, _ := newCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"data": []}`))
	}))

	for range 2 {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products?categoryId=7", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.Equal(t, int64(2), hits.Load())
}

func TestProductWriteInvalidatesCache(t *testing.T) {
	var hits atomic.Int64
	r, _ := newCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": "p-2"}`))
			return
		}
		hits.Add(1)
		_, _ = w.Write([]byte(`{"data": []}`))
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/products",
		strings.NewReader(`{"name": "Es Teh", "price": "5000"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(2), hits.Load(), "listing after a write must refetch")
}

func TestCachedListServedWhileUpstreamDown(t *testing.T) {
	upstreamUp := atomic.Bool{}
	upstreamUp.Store(true)
	r, _ := newCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !upstreamUp.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data": [{"id": "p-1"}]}`))
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	upstreamUp.Store(false)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "p-1")
}
