package staff

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

// AttendanceEnqueuer parks attendance punches for later replay.
type AttendanceEnqueuer interface {
	EnqueueAttendance(ctx context.Context, key string, body json.RawMessage) error
}

// Handler serves the employee and attendance resources. Attendance punches
// are parked in the relay when the upstream is unreachable, so staff can
// clock in even while the store is offline.
type Handler struct {
	Employees  proxy.ResourceHandler
	Attendance proxy.ResourceHandler
	Relay      AttendanceEnqueuer
	Validate   *validator.Validate
	Log        zerolog.Logger
}

// NewHandler wires the staff resources.
func NewHandler(client *backend.Client, enq *relay.Enqueuer, validate *validator.Validate, log zerolog.Logger) *Handler {
	h := &Handler{
		Employees:  proxy.ResourceHandler{Resource: client.Resource(backend.ResEmployees), Log: log},
		Attendance: proxy.ResourceHandler{Resource: client.Resource(backend.ResAttendance), Log: log},
		Validate:   validate,
		Log:        log,
	}
	if enq != nil {
		h.Relay = enq
	}
	return h
}

// Routes mounts the staff endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/employees", func(r chi.Router) {
		r.Get("/", h.Employees.List)
		r.Post("/", h.createEmployee)
		r.Get("/{id}", h.Employees.Get)
		r.Put("/{id}", h.updateEmployee)
		r.Delete("/{id}", h.Employees.Delete)
	})
	r.Route("/attendance", func(r chi.Router) {
		r.Get("/", h.Attendance.List)
		r.Post("/", h.punch)
	})
}

type employeeRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=100"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"omitempty,min=8,max=20"`
	Role  string `json:"role" validate:"required,oneof=cashier manager admin"`
	PIN   string `json:"pin" validate:"omitempty,numeric,min=4,max=8"`
}

func (h *Handler) createEmployee(w http.ResponseWriter, r *http.Request) {
	body, ok := h.validEmployeeBody(w, r)
	if !ok {
		return
	}
	raw, err := h.Employees.Resource.Create(r.Context(), body)
	if err != nil {
		proxy.WriteUpstreamError(w, h.Log, err)
		return
	}
	common.JSONRaw(w, http.StatusCreated, raw)
}

func (h *Handler) updateEmployee(w http.ResponseWriter, r *http.Request) {
	body, ok := h.validEmployeeBody(w, r)
	if !ok {
		return
	}
	raw, err := h.Employees.Resource.Update(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		proxy.WriteUpstreamError(w, h.Log, err)
		return
	}
	common.JSONRaw(w, http.StatusOK, raw)
}

// validEmployeeBody validates the write without dropping fields the upstream
// understands but the gateway does not; the raw body is forwarded verbatim.
func (h *Handler) validEmployeeBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return nil, false
	}
	var req employeeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return nil, false
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "validation failed", common.ValidationErrors(err))
		return nil, false
	}
	return data, true
}

type punchRequest struct {
	EmployeeID string `json:"employeeId" validate:"required"`
	Kind       string `json:"kind" validate:"required,oneof=in out"`
	PunchedAt  string `json:"punchedAt" validate:"required"`
}

// punch records an attendance punch, parking it for replay when the upstream
// is down.
func (h *Handler) punch(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	var req punchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "validation failed", common.ValidationErrors(err))
		return
	}

	raw, err := h.Attendance.Resource.Create(r.Context(), json.RawMessage(data))
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
	if err := h.Relay.EnqueueAttendance(r.Context(), key, data); err != nil {
		proxy.WriteUpstreamError(w, h.Log, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"queued": true, "taskId": key})
}
