package transfer

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/auth"
	"github.com/frahmantamala/payapp/internal/transport"
	"github.com/frahmantamala/payapp/pkg/logger"
)

type ServiceAPI interface {
	Send(ctx context.Context, senderID int64, dto SendDTO) (*Transaction, error)
	RequestFunds(ctx context.Context, requesterID int64, dto RequestFundsDTO) (*Transaction, error)
	AcceptRequest(ctx context.Context, payerID, txnID int64) (*Transaction, error)
	DeclineRequest(ctx context.Context, payerID, txnID int64) (*Transaction, error)
	Refund(ctx context.Context, recipientID, txnID int64) (*Transaction, error)
	Get(ctx context.Context, userID, txnID int64) (*Transaction, error)
	History(ctx context.Context, userID int64, limit, offset int) ([]*Transaction, error)
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

type listResponse struct {
	Transactions []*Transaction `json:"transactions"`
	Limit        int            `json:"limit"`
	Offset       int            `json:"offset"`
}

// Send handles POST /transfers
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var dto SendDTO
	if err := h.DecodeJSON(w, r, &dto); err != nil {
		h.Logger.Info("Send: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	txn, err := h.Service.Send(r.Context(), user.ID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, txn)
}

// List handles GET /transfers
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	limit, offset := h.Pagination(r)
	txns, err := h.Service.History(r.Context(), user.ID, limit, offset)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, listResponse{Transactions: txns, Limit: limit, Offset: offset})
}

// Get handles GET /transfers/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.withTransaction(w, r, h.Service.Get, http.StatusOK)
}

// Refund handles POST /transfers/{id}/refund
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	h.withTransaction(w, r, h.Service.Refund, http.StatusOK)
}

// RequestFunds handles POST /transfers/requests
func (h *Handler) RequestFunds(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var dto RequestFundsDTO
	if err := h.DecodeJSON(w, r, &dto); err != nil {
		h.Logger.Info("RequestFunds: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	txn, err := h.Service.RequestFunds(r.Context(), user.ID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, txn)
}

// AcceptRequest handles POST /transfers/requests/{id}/accept
func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	h.withTransaction(w, r, h.Service.AcceptRequest, http.StatusOK)
}

// DeclineRequest handles POST /transfers/requests/{id}/decline
func (h *Handler) DeclineRequest(w http.ResponseWriter, r *http.Request) {
	h.withTransaction(w, r, h.Service.DeclineRequest, http.StatusOK)
}

func (h *Handler) withTransaction(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID, txnID int64) (*Transaction, error), status int) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.HandleServiceError(w, errors.ErrTransactionNotFound)
		return
	}

	txn, err := op(r.Context(), user.ID, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, status, txn)
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return user, true
}
