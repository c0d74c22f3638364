package store

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-gateway/internal/backend"
	"github.com/noah-isme/kasir-gateway/internal/common"
	"github.com/noah-isme/kasir-gateway/internal/proxy"
)

// Handler serves the store settings resource.
type Handler struct {
	Client   *backend.Client
	Validate *validator.Validate
	Log      zerolog.Logger
}

// Routes mounts the store settings endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/store-settings", h.get)
	r.Put("/store-settings", h.update)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	raw, err := h.Client.StoreSettings(r.Context())
	if err != nil {
		proxy.WriteUpstreamError(w, h.Log, err)
		return
	}
	common.JSONRaw(w, http.StatusOK, raw)
}

type settingsRequest struct {
	DisplayName string `json:"displayName" validate:"required,min=2,max=120"`
	Address     string `json:"address" validate:"omitempty,max=300"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"omitempty,min=8,max=20"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	var req settingsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "validation failed", common.ValidationErrors(err))
		return
	}
	raw, err := h.Client.UpdateStoreSettings(r.Context(), json.RawMessage(data))
	if err != nil {
		proxy.WriteUpstreamError(w, h.Log, err)
		return
	}
	common.JSONRaw(w, http.StatusOK, raw)
}
