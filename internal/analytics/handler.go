package analytics

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/payapp/internal/auth"
	"github.com/frahmantamala/payapp/internal/transport"
	"github.com/frahmantamala/payapp/pkg/logger"
)

type ServiceAPI interface {
	DashboardSummary(ctx context.Context, userID int64) (*DashboardSummary, error)
	RequestFunnel(ctx context.Context, merchantID int64, limit, offset int) (*Funnel, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

// Dashboard handles GET /dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	summary, err := h.Service.DashboardSummary(r.Context(), user.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, summary)
}

// Funnel handles GET /payment-requests/funnel
func (h *Handler) Funnel(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit, offset := h.Pagination(r)
	funnel, err := h.Service.RequestFunnel(r.Context(), user.ID, limit, offset)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, funnel)
}
