package account

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/payapp/internal/auth"
	"github.com/frahmantamala/payapp/internal/transport"
	"github.com/frahmantamala/payapp/pkg/logger"
)

type ServiceAPI interface {
	Balance(ctx context.Context, userID int64) (*Account, error)
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

// GetMyAccount handles GET /accounts/me
func (h *Handler) GetMyAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("GetMyAccount: user not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	acct, err := h.Service.Balance(r.Context(), user.ID)
	if err != nil {
		h.Logger.Error("GetMyAccount: service error", "error", err, "user_id", user.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, acct)
}
