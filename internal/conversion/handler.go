package conversion

import (
	"context"
	goerrors "errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/core/money"
	"github.com/frahmantamala/payapp/internal/transport"
	"github.com/frahmantamala/payapp/pkg/logger"
)

type ServiceAPI interface {
	Convert(ctx context.Context, from, to money.Currency, amount decimal.Decimal) (Conversion, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

// Convert serves GET /conversion/{from}/{to}/{amount}.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	from := money.NormalizeCurrency(chi.URLParam(r, "from"))
	to := money.NormalizeCurrency(chi.URLParam(r, "to"))

	amount, err := decimal.NewFromString(chi.URLParam(r, "amount"))
	if err != nil {
		h.Logger.Info("Convert: invalid amount", "amount", chi.URLParam(r, "amount"))
		h.HandleServiceError(w, errors.ErrInvalidAmount)
		return
	}

	result, err := h.Service.Convert(r.Context(), from, to, amount)
	if err != nil {
		if goerrors.Is(err, errors.ErrUnsupportedPair) {
			h.HandleServiceError(w, errors.NewNotFoundError("unsupported currency or conversion pair", errors.ErrCodeUnsupportedPair))
			return
		}
		h.Logger.Warn("Convert: service error", "error", err, "from", from, "to", to)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}
