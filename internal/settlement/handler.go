package settlement

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/auth"
	gatewaytypes "github.com/frahmantamala/payapp/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/payapp/internal/transport"
	"github.com/frahmantamala/payapp/pkg/logger"
)

const maxWebhookBytes = 1 << 20

type ServiceAPI interface {
	HandleConfirmation(ctx context.Context, c Confirmation) (*Result, error)
	ConfirmCheckout(ctx context.Context, shortCode, sessionID string) (*Result, error)
	Receipt(ctx context.Context, merchantID, id int64) (*Receipt, error)
}

type Handler struct {
	*transport.BaseHandler
	Service  ServiceAPI
	Verifier Verifier
}

func NewHandler(svc ServiceAPI, verifier Verifier) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
		Verifier:    verifier,
	}
}

type ackResponse struct {
	Received bool    `json:"received"`
	Outcome  Outcome `json:"outcome,omitempty"`
}

type successResponse struct {
	Status  string  `json:"status"`
	Outcome Outcome `json:"outcome"`
	Result  *Result `json:"result"`
}

// Webhook handles POST /webhooks/gateway. Anything that cannot be acted on is
// acknowledged so the gateway stops redelivering; only oversized bodies, signature
// failures and store errors are reported back.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes+1))
	if err != nil {
		h.Logger.Warn("Webhook: failed to read body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if len(body) > maxWebhookBytes {
		h.Logger.Warn("Webhook: oversized body rejected", "limit", maxWebhookBytes)
		h.WriteError(w, http.StatusRequestEntityTooLarge, "webhook body too large")
		return
	}

	if h.Verifier != nil {
		if err := h.Verifier.Verify(r.Header, body); err != nil {
			h.Logger.Warn("Webhook: signature rejected", "error", err)
			h.HandleServiceError(w, err)
			return
		}
	}

	var event gatewaytypes.Event
	if err := json.Unmarshal(body, &event); err != nil {
		h.Logger.Warn("Webhook: malformed payload dropped", "error", err)
		h.WriteJSON(w, http.StatusOK, ackResponse{Received: true, Outcome: OutcomeIgnored})
		return
	}

	if event.Type != gatewaytypes.EventCheckoutCompleted {
		h.Logger.Info("Webhook: event type ignored", "event_id", event.ID, "type", event.Type)
		h.WriteJSON(w, http.StatusOK, ackResponse{Received: true, Outcome: OutcomeIgnored})
		return
	}

	var session gatewaytypes.CheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		h.Logger.Warn("Webhook: malformed session dropped", "event_id", event.ID, "error", err)
		h.WriteJSON(w, http.StatusOK, ackResponse{Received: true, Outcome: OutcomeIgnored})
		return
	}

	if session.PaymentStatus != "" && session.PaymentStatus != gatewaytypes.PaymentStatusPaid {
		h.Logger.Info("Webhook: unpaid session ignored", "event_id", event.ID, "session_id", session.ID)
		h.WriteJSON(w, http.StatusOK, ackResponse{Received: true, Outcome: OutcomeIgnored})
		return
	}

	result, err := h.Service.HandleConfirmation(r.Context(), ConfirmationFromSession(&session, body, SourceWebhook))
	if err != nil {
		if goerrors.Is(err, errors.ErrUnknownCorrelation) {
			h.WriteJSON(w, http.StatusOK, ackResponse{Received: true, Outcome: OutcomeIgnored})
			return
		}
		h.Logger.Error("Webhook: confirmation failed", "event_id", event.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ackResponse{Received: true, Outcome: result.Outcome})
}

// Success handles GET /pay/{code}/success?session_id=. Public.
func (h *Handler) Success(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	result, err := h.Service.ConfirmCheckout(r.Context(), code, r.URL.Query().Get("session_id"))
	if err != nil {
		if goerrors.Is(err, errors.ErrUnknownCorrelation) {
			h.HandleServiceError(w, errors.ErrPaymentRequestNotFound)
			return
		}
		h.HandleServiceError(w, err)
		return
	}

	if result.Outcome == OutcomeRejected {
		h.HandleServiceError(w, errors.ErrRequestNotPayable)
		return
	}

	h.WriteJSON(w, http.StatusOK, successResponse{Status: "paid", Outcome: result.Outcome, Result: result})
}

// Receipt handles GET /settlements/{id}/receipt
func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.HandleServiceError(w, errors.ErrSettlementNotFound)
		return
	}

	receipt, err := h.Service.Receipt(r.Context(), user.ID, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, receipt)
}
