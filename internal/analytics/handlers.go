package analytics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-gateway/internal/backend"
	"github.com/noah-isme/kasir-gateway/internal/common"
	"github.com/noah-isme/kasir-gateway/internal/proxy"
	"github.com/noah-isme/kasir-gateway/internal/session"
)

// Handler serves the dashboard analytics resources. The menu analysis falls
// back to the cashier's saved date range when the request carries none.
type Handler struct {
	Client       *backend.Client
	Transactions proxy.ResourceHandler
	Sessions     *session.Service
	Log          zerolog.Logger
}

// NewHandler wires the analytics resources.
func NewHandler(client *backend.Client, sessions *session.Service, log zerolog.Logger) *Handler {
	return &Handler{
		Client:       client,
		Transactions: proxy.ResourceHandler{Resource: client.Resource(backend.ResTransactions), Log: log},
		Sessions:     sessions,
		Log:          log,
	}
}

// Routes mounts the analytics endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/menu-analysis", h.menuAnalysis)
	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.Transactions.List)
		r.Get("/{id}", h.Transactions.Get)
	})
}

func (h *Handler) menuAnalysis(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" && to == "" {
		if emp, ok := session.EmployeeFromContext(r.Context()); ok {
			dr, err := h.Sessions.DateRange(r.Context(), emp.ID)
			if err != nil {
				h.Log.Warn().Err(err).Msg("analytics: load saved date range")
			} else {
				from, to = dr.From, dr.To
			}
		}
	}
	raw, err := h.Client.MenuAnalysis(r.Context(), from, to)
	if err != nil {
		proxy.WriteUpstreamError(w, h.Log, err)
		return
	}
	common.JSONRaw(w, http.StatusOK, raw)
}
