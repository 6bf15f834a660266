package paymentrequest

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/payapp/internal/auth"
	"github.com/frahmantamala/payapp/internal/transport"
	"github.com/frahmantamala/payapp/pkg/logger"
)

type ServiceAPI interface {
	CreateRequest(ctx context.Context, merchantID int64, dto CreateDTO) (*PaymentRequest, error)
	ViewRequest(ctx context.Context, shortCode string, meta ViewMeta) (*View, error)
	InitiateSettlement(ctx context.Context, shortCode string, meta ViewMeta) (string, error)
	Cancel(ctx context.Context, merchantID int64, shortCode string) (*PaymentRequest, error)
	Get(ctx context.Context, merchantID int64, shortCode string) (*View, error)
	List(ctx context.Context, merchantID int64, limit, offset int) ([]*View, error)
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

type redirectResponse struct {
	RedirectURL string `json:"redirect_url"`
}

type listResponse struct {
	PaymentRequests []*View `json:"payment_requests"`
	Limit           int     `json:"limit"`
	Offset          int     `json:"offset"`
}

// Create handles POST /payment-requests
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	merchant, ok := h.merchant(w, r)
	if !ok {
		return
	}

	var dto CreateDTO
	if err := h.DecodeJSON(w, r, &dto); err != nil {
		h.Logger.Info("CreatePaymentRequest: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pr, err := h.Service.CreateRequest(r.Context(), merchant.ID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, pr)
}

// List handles GET /payment-requests
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	merchant, ok := h.merchant(w, r)
	if !ok {
		return
	}

	limit, offset := h.Pagination(r)
	views, err := h.Service.List(r.Context(), merchant.ID, limit, offset)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, listResponse{PaymentRequests: views, Limit: limit, Offset: offset})
}

// Get handles GET /payment-requests/{code}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	merchant, ok := h.merchant(w, r)
	if !ok {
		return
	}

	view, err := h.Service.Get(r.Context(), merchant.ID, chi.URLParam(r, "code"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// Cancel handles POST /payment-requests/{code}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	merchant, ok := h.merchant(w, r)
	if !ok {
		return
	}

	pr, err := h.Service.Cancel(r.Context(), merchant.ID, chi.URLParam(r, "code"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, pr)
}

// View handles GET /pay/{code}. Public.
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.ViewRequest(r.Context(), chi.URLParam(r, "code"), MetaFromRequest(r))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// Pay handles POST /pay/{code}. Public.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	target, err := h.Service.InitiateSettlement(r.Context(), code, MetaFromRequest(r))
	if err != nil {
		h.Logger.Info("Pay: settlement not started", "short_code", code, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, redirectResponse{RedirectURL: target})
}

func (h *Handler) merchant(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return user, true
}

// MetaFromRequest extracts view telemetry from an inbound request.
func MetaFromRequest(r *http.Request) ViewMeta {
	return ViewMeta{
		Method:    r.Method,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
