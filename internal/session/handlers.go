package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/ulule/limiter/v3"

	"github.com/noah-isme/kasir-gateway/internal/backend"
	"github.com/noah-isme/kasir-gateway/internal/common"
)

// Handler exposes the session endpoints.
type Handler struct {
	Service  *Service
	Limiter  *limiter.Limiter
	Validate *validator.Validate
	Log      zerolog.Logger
}

type loginRequest struct {
	PIN string `json:"pin" validate:"required,numeric,min=4,max=8"`
}

// Login verifies a cashier PIN and opens a session. Attempts are rate limited
// per client address to slow down PIN guessing.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.Limiter != nil {
		lctx, err := h.Limiter.Get(r.Context(), common.ClientIP(r))
		if err != nil {
			h.Log.Error().Err(err).Msg("session: rate limiter")
		} else if lctx.Reached {
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many login attempts, try again later", nil)
			return
		}
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "validation failed", common.ValidationErrors(err))
		return
	}

	result, err := h.Service.Login(r.Context(), req.PIN)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, result)
}

// Logout revokes the current session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	if err := h.Service.Logout(r.Context(), token); err != nil {
		h.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the cashier bound to the session.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	emp, ok := EmployeeFromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	common.JSON(w, http.StatusOK, emp)
}

type dateRangeRequest struct {
	From string `json:"from" validate:"required,datetime=2006-01-02"`
	To   string `json:"to" validate:"required,datetime=2006-01-02"`
}

// GetDateRange returns the cashier's saved dashboard filter.
func (h *Handler) GetDateRange(w http.ResponseWriter, r *http.Request) {
	emp, ok := EmployeeFromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	dr, err := h.Service.DateRange(r.Context(), emp.ID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, dr)
}

// PutDateRange saves the cashier's dashboard filter.
func (h *Handler) PutDateRange(w http.ResponseWriter, r *http.Request) {
	emp, ok := EmployeeFromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	var req dateRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "validation failed", common.ValidationErrors(err))
		return
	}
	if err := h.Service.SetDateRange(r.Context(), emp.ID, DateRange(req)); err != nil {
		h.writeErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, DateRange(req))
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	if errors.Is(err, backend.ErrUnavailable) {
		common.JSONError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "store backend is unreachable", nil)
		return
	}
	h.Log.Error().Err(err).Msg("session: internal error")
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}
