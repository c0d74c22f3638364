package customers

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

// Handler serves the customer, loyalty point and membership resources.
type Handler struct {
	Customers  proxy.ResourceHandler
	Points     proxy.ResourceHandler
	Thresholds proxy.ResourceHandler
	Validate   *validator.Validate
	Log        zerolog.Logger
}

// NewHandler wires the customer resources.
func NewHandler(client *backend.Client, validate *validator.Validate, log zerolog.Logger) *Handler {
	return &Handler{
		Customers:  proxy.ResourceHandler{Resource: client.Resource(backend.ResCustomers), Log: log},
		Points:     proxy.ResourceHandler{Resource: client.Resource(backend.ResPointTransactions), Log: log},
		Thresholds: proxy.ResourceHandler{Resource: client.Resource(backend.ResMembershipThresholds), Log: log},
		Validate:   validate,
		Log:        log,
	}
}

// Routes mounts the customer endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/customers", func(r chi.Router) {
		r.Get("/", h.Customers.List)
		r.Post("/", h.createCustomer)
		r.Get("/{id}", h.Customers.Get)
		r.Put("/{id}", h.updateCustomer)
		r.Delete("/{id}", h.Customers.Delete)
	})
	r.Route("/point-transactions", func(r chi.Router) {
		r.Get("/", h.Points.List)
		r.Post("/", h.createPointTransaction)
	})
	r.Route("/membership-thresholds", func(r chi.Router) {
		r.Get("/", h.Thresholds.List)
		r.Put("/{id}", h.updateThreshold)
	})
}

type customerRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=100"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty,min=8,max=20"`
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	body, ok := h.validBody(w, r, &customerRequest{})
	if !ok {
		return
	}
	raw, err := h.Customers.Resource.Create(r.Context(), body)
	if err != nil {
		proxy.WriteUpstreamError(w, h.Log, err)
		return
	}
	common.JSONRaw(w, http.StatusCreated, raw)
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	body, ok := h.validBody(w, r, &customerRequest{})
	if !ok {
		return
	}
	raw, err := h.Customers.Resource.Update(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		proxy.WriteUpstreamError(w, h.Log, err)
		return
	}
	common.JSONRaw(w, http.StatusOK, raw)
}

type pointTransactionRequest struct {
	CustomerID string `json:"customerId" validate:"required"`
	Points     int64  `json:"points" validate:"required"`
	Reason     string `json:"reason" validate:"required,oneof=purchase redemption adjustment"`
}

func (h *Handler) createPointTransaction(w http.ResponseWriter, r *http.Request) {
	body, ok := h.validBody(w, r, &pointTransactionRequest{})
	if !ok {
		return
	}
	raw, err := h.Points.Resource.Create(r.Context(), body)
	if err != nil {
		proxy.WriteUpstreamError(w, h.Log, err)
		return
	}
	common.JSONRaw(w, http.StatusCreated, raw)
}

type thresholdRequest struct {
	Tier      string `json:"tier" validate:"required"`
	MinPoints int64  `json:"minPoints" validate:"gte=0"`
}

func (h *Handler) updateThreshold(w http.ResponseWriter, r *http.Request) {
	body, ok := h.validBody(w, r, &thresholdRequest{})
	if !ok {
		return
	}
	raw, err := h.Thresholds.Resource.Update(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		proxy.WriteUpstreamError(w, h.Log, err)
		return
	}
	common.JSONRaw(w, http.StatusOK, raw)
}

// validBody validates the write into req and returns the raw body for
// verbatim forwarding.
func (h *Handler) validBody(w http.ResponseWriter, r *http.Request, req any) (json.RawMessage, bool) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return nil, false
	}
	if err := json.Unmarshal(data, req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return nil, false
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "validation failed", common.ValidationErrors(err))
		return nil, false
	}
	return data, true
}
