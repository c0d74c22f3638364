package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-gateway/internal/backend"
	"github.com/noah-isme/kasir-gateway/internal/common"
)

// ResourceHandler forwards CRUD traffic for one upstream collection. Feature
// packages wrap it to add validation or fallback behaviour on top.
type ResourceHandler struct {
	Resource backend.Resource
	Log      zerolog.Logger
}

// List forwards the collection listing, query string included.
func (h ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	raw, err := h.Resource.List(r.Context(), r.URL.Query())
	if err != nil {
		WriteUpstreamError(w, h.Log, err)
		return
	}
	common.JSONRaw(w, http.StatusOK, raw)
}

// Get forwards a single-record fetch.
func (h ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	raw, err := h.Resource.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteUpstreamError(w, h.Log, err)
		return
	}
	common.JSONRaw(w, http.StatusOK, raw)
}

// Create forwards a record creation.
func (h ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := readJSONBody(r)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	raw, err := h.Resource.Create(r.Context(), body)
	if err != nil {
		WriteUpstreamError(w, h.Log, err)
		return
	}
	common.JSONRaw(w, http.StatusCreated, raw)
}

// Update forwards a record replacement.
func (h ResourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	body, err := readJSONBody(r)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	raw, err := h.Resource.Update(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		WriteUpstreamError(w, h.Log, err)
		return
	}
	common.JSONRaw(w, http.StatusOK, raw)
}

// Delete forwards a record deletion.
func (h ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Resource.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		WriteUpstreamError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Mount registers the standard CRUD routes on the router.
func (h ResourceHandler) Mount(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

func readJSONBody(r *http.Request) (json.RawMessage, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, errors.New("proxy: invalid json body")
	}
	return data, nil
}

// WriteUpstreamError maps client errors onto the gateway's response envelope.
// Structured upstream error bodies are relayed verbatim so the cashier UI can
// show the upstream's own message.
func WriteUpstreamError(w http.ResponseWriter, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, backend.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
	case errors.Is(err, backend.ErrDuplicateEmail):
		common.JSONError(w, http.StatusConflict, "EMAIL_ALREADY_USED", "email is already registered",
			common.FieldErrors{"email": "email is already registered"})
	case errors.Is(err, backend.ErrUnauthorized):
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "upstream rejected credentials", nil)
	case errors.Is(err, backend.ErrUnavailable):
		common.JSONError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "store backend is unreachable", nil)
	default:
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			if json.Valid(apiErr.Body) {
				common.JSONRaw(w, apiErr.StatusCode, apiErr.Body)
				return
			}
			common.JSONError(w, apiErr.StatusCode, "UPSTREAM_ERROR", apiErr.Status, nil)
			return
		}
		log.Error().Err(err).Msg("proxy: internal error")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
	}
}
