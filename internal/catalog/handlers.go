package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-gateway/internal/backend"
	"github.com/noah-isme/kasir-gateway/internal/common"
	"github.com/noah-isme/kasir-gateway/internal/proxy"
)

const (
	productsCacheKey   = "catalog:products"
	categoriesCacheKey = "catalog:categories"
)

// Handler serves the product, category and supplier resources. Unfiltered
// product and category listings are cached so the sales screen keeps working
// through short upstream outages.
type Handler struct {
	Products   proxy.ResourceHandler
	Categories proxy.ResourceHandler
	Suppliers  proxy.ResourceHandler
	Cache      *Cache
	Log        zerolog.Logger
}

// NewHandler wires the catalog resources.
func NewHandler(client *backend.Client, cache *Cache, log zerolog.Logger) *Handler {
	return &Handler{
		Products:   proxy.ResourceHandler{Resource: client.Resource(backend.ResProducts), Log: log},
		Categories: proxy.ResourceHandler{Resource: client.Resource(backend.ResCategories), Log: log},
		Suppliers:  proxy.ResourceHandler{Resource: client.Resource(backend.ResSuppliers), Log: log},
		Cache:      cache,
		Log:        log,
	}
}

// Routes mounts the catalog endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.invalidating(productsCacheKey, h.Products.Create))
		r.Get("/{id}", h.Products.Get)
		r.Put("/{id}", h.invalidating(productsCacheKey, h.Products.Update))
		r.Delete("/{id}", h.invalidating(productsCacheKey, h.Products.Delete))
	})
	r.Route("/categories", func(r chi.Router) {
		r.Get("/", h.listCategories)
		r.Post("/", h.invalidating(categoriesCacheKey, h.Categories.Create))
		r.Get("/{id}", h.Categories.Get)
		r.Put("/{id}", h.invalidating(categoriesCacheKey, h.Categories.Update))
		r.Delete("/{id}", h.invalidating(categoriesCacheKey, h.Categories.Delete))
	})
	r.Route("/suppliers", h.Suppliers.Mount)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	h.listCached(w, r, productsCacheKey, h.Products)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	h.listCached(w, r, categoriesCacheKey, h.Categories)
}

// listCached serves the unfiltered listing from cache when possible. Filtered
// listings always go upstream.
func (h *Handler) listCached(w http.ResponseWriter, r *http.Request, key string, res proxy.ResourceHandler) {
	if len(r.URL.Query()) > 0 {
		res.List(w, r)
		return
	}
	if cached, ok, err := h.Cache.GetRaw(r.Context(), key); err != nil {
		h.Log.Warn().Err(err).Str("key", key).Msg("catalog: cache read")
	} else if ok {
		common.JSONRaw(w, http.StatusOK, cached)
		return
	}
	raw, err := res.Resource.List(r.Context(), nil)
	if err != nil {
		proxy.WriteUpstreamError(w, h.Log, err)
		return
	}
	if err := h.Cache.SetRaw(r.Context(), key, raw); err != nil {
		h.Log.Warn().Err(err).Str("key", key).Msg("catalog: cache write")
	}
	common.JSONRaw(w, http.StatusOK, raw)
}

func (h *Handler) invalidating(key string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next(w, r)
		if err := h.Cache.Invalidate(r.Context(), key); err != nil {
			h.Log.Warn().Err(err).Str("key", key).Msg("catalog: cache invalidate")
		}
	}
}
