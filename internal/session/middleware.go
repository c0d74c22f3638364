package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/kasir-gateway/internal/common"
)

type contextKey struct{ name string }

var employeeKey = contextKey{"session.employee"}

// WithEmployee attaches the authenticated cashier to the context.
func WithEmployee(ctx context.Context, emp Employee) context.Context {
	return context.WithValue(ctx, employeeKey, emp)
}

// EmployeeFromContext returns the authenticated cashier, if any.
func EmployeeFromContext(ctx context.Context) (Employee, bool) {
	emp, ok := ctx.Value(employeeKey).(Employee)
	return emp, ok
}

// Middleware gates handlers behind a live PIN session.
type Middleware struct {
	Service *Service
}

// RequirePIN rejects requests without a valid session token.
func (m Middleware) RequirePIN(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		emp, err := m.Service.Verify(r.Context(), token)
		if err != nil {
			var appErr *common.AppError
			if errors.As(err, &appErr) {
				common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
				return
			}
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithEmployee(r.Context(), emp)))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
