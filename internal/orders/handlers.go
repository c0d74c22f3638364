package orders

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-gateway/internal/backend"
	"github.com/noah-isme/kasir-gateway/internal/common"
	"github.com/noah-isme/kasir-gateway/internal/proxy"
	"github.com/noah-isme/kasir-gateway/internal/relay"
)

// OrderEnqueuer parks order submissions for later replay.
type OrderEnqueuer interface {
	EnqueueOrder(ctx context.Context, key string, body json.RawMessage) error
}

// Handler serves the order, order-item and table resources. Order submissions
// are parked in the relay when the upstream is unreachable.
type Handler struct {
	Orders     proxy.ResourceHandler
	OrderItems proxy.ResourceHandler
	Tables     proxy.ResourceHandler
	Relay      OrderEnqueuer
	Validate   *validator.Validate
	Log        zerolog.Logger
}

// NewHandler wires the order resources.
func NewHandler(client *backend.Client, enq *relay.Enqueuer, validate *validator.Validate, log zerolog.Logger) *Handler {
	h := &Handler{
		Orders:     proxy.ResourceHandler{Resource: client.Resource(backend.ResOrders), Log: log},
		OrderItems: proxy.ResourceHandler{Resource: client.Resource(backend.ResOrderItems), Log: log},
		Tables:     proxy.ResourceHandler{Resource: client.Resource(backend.ResTables), Log: log},
		Validate:   validate,
		Log:        log,
	}
	if enq != nil {
		h.Relay = enq
	}
	return h
}

// Routes mounts the order endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.Orders.List)
		r.Post("/", h.createOrder)
		r.Get("/{id}", h.Orders.Get)
		r.Put("/{id}", h.Orders.Update)
		r.Delete("/{id}", h.Orders.Delete)
	})
	r.Route("/order-items", h.OrderItems.Mount)
	r.Route("/tables", h.Tables.Mount)
}

type orderRequest struct {
	Items []orderItem `json:"items" validate:"required,min=1,dive"`
}

type orderItem struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// createOrder submits an order, parking it for replay when the upstream is
// down so the sale is not lost.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	var req orderRequest
	if err := json.Unmarshal(data, &req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "validation failed", common.ValidationErrors(err))
		return
	}

	raw, err := h.Orders.Resource.Create(r.Context(), json.RawMessage(data))
	if err == nil {
		common.JSONRaw(w, http.StatusCreated, raw)
		return
	}
	if !errors.Is(err, backend.ErrUnavailable) || h.Relay == nil {
		proxy.WriteUpstreamError(w, h.Log, err)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = uuid.NewString()
	}
	if err := h.Relay.EnqueueOrder(r.Context(), key, data); err != nil {
		proxy.WriteUpstreamError(w, h.Log, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"queued": true, "taskId": key})
}
