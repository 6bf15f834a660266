package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/frahmantamala/payapp/internal/core/events"
	"github.com/frahmantamala/payapp/internal/core/money"
	"github.com/frahmantamala/payapp/internal/user"
)

// Notifier accepts messages for asynchronous delivery.
type Notifier interface {
	Enqueue(m *Message) bool
}

// UserLookup resolves addresses for events that carry only user ids.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
}

// EventHandler turns committed ledger events into messages. It runs after the
// ledger has committed, so nothing it does can change a balance.
type EventHandler struct {
	notifier     Notifier
	users        UserLookup
	dashboardURL string
	logger       *slog.Logger
}

func NewEventHandler(notifier Notifier, users UserLookup, dashboardURL string, logger *slog.Logger) *EventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHandler{
		notifier:     notifier,
		users:        users,
		dashboardURL: dashboardURL,
		logger:       logger,
	}
}

func (h *EventHandler) HandleTransferCompleted(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.TransferCompletedEvent)
	if !ok {
		h.logger.Error("invalid event type for transfer completed handler", "event_type", event.EventType())
		return fmt.Errorf("expected TransferCompletedEvent, got %T", event)
	}

	sent := money.Format(e.Amount, money.Currency(e.Currency))
	received := sent
	var converted interface{}
	if e.ConvertedAmount != nil {
		received = money.Format(*e.ConvertedAmount, money.Currency(e.ConvertedCurrency))
		converted = received
	}
	reference := strconv.FormatInt(e.TransactionID, 10)

	if e.Sender.Email != "" {
		h.enqueue(NewMessage(e.Sender.Email,
			fmt.Sprintf("You sent %s to %s", sent, e.Recipient.Username),
			TemplateTransaction,
			map[string]interface{}{
				"heading":           "Payment Sent",
				"name":              e.Sender.Username,
				"line1":             fmt.Sprintf("You sent %s to %s.", sent, e.Recipient.Username),
				"amount_display":    sent,
				"converted_display": converted,
				"reference":         reference,
				"dashboard_url":     h.dashboardURL,
			}))
	}

	if e.Recipient.Email != "" {
		h.enqueue(NewMessage(e.Recipient.Email,
			fmt.Sprintf("You received %s from %s", received, e.Sender.Username),
			TemplateTransaction,
			map[string]interface{}{
				"heading":           "Payment Received",
				"name":              e.Recipient.Username,
				"line1":             fmt.Sprintf("You received %s from %s.", received, e.Sender.Username),
				"amount_display":    received,
				"converted_display": nil,
				"reference":         reference,
				"dashboard_url":     h.dashboardURL,
			}))
	}

	h.logger.Info("transfer notifications queued",
		"transaction_id", e.TransactionID,
		"event_id", e.EventID())
	return nil
}

func (h *EventHandler) HandleTransferRefunded(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.TransferRefundedEvent)
	if !ok {
		h.logger.Error("invalid event type for transfer refunded handler", "event_type", event.EventType())
		return fmt.Errorf("expected TransferRefundedEvent, got %T", event)
	}

	reference := strconv.FormatInt(e.TransactionID, 10)
	for _, id := range []int64{e.SenderID, e.RecipientID} {
		u, err := h.users.GetByID(ctx, id)
		if err != nil {
			h.logger.Warn("refund notification skipped, user lookup failed",
				"user_id", id,
				"transaction_id", e.TransactionID,
				"error", err)
			continue
		}
		if u.Email == "" {
			continue
		}
		h.enqueue(NewMessage(u.Email,
			fmt.Sprintf("Transaction %s was refunded", reference),
			TemplateRefund,
			map[string]interface{}{
				"heading":       "Payment Refunded",
				"name":          u.Username,
				"reference":     reference,
				"dashboard_url": h.dashboardURL,
			}))
	}
	return nil
}

func (h *EventHandler) HandlePaymentRequestPaid(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.PaymentRequestPaidEvent)
	if !ok {
		h.logger.Error("invalid event type for payment request paid handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentRequestPaidEvent, got %T", event)
	}

	merchant, err := h.users.GetByID(ctx, e.MerchantID)
	if err != nil {
		h.logger.Error("failed to load merchant for receipt",
			"merchant_id", e.MerchantID,
			"short_code", e.ShortCode,
			"error", err)
		return fmt.Errorf("load merchant %d: %w", e.MerchantID, err)
	}
	if merchant.Email == "" {
		return nil
	}

	paid := money.Format(e.Amount, money.Currency(e.Currency))
	h.enqueue(NewMessage(merchant.Email,
		fmt.Sprintf("Payment request %s was paid", e.ShortCode),
		TemplateReceipt,
		map[string]interface{}{
			"heading":         "Payment Request Paid",
			"name":            merchant.Username,
			"line1":           fmt.Sprintf("Your payment request %s was paid: %s.", e.ShortCode, paid),
			"amount_display":  paid,
			"short_code":      e.ShortCode,
			"reference":       strconv.FormatInt(e.SettlementID, 10),
			"provider_txn_id": e.ProviderTxnID,
			"dashboard_url":   h.dashboardURL,
		}))
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypeTransferCompleted, h.HandleTransferCompleted)
	eventBus.Subscribe(events.EventTypeTransferRefunded, h.HandleTransferRefunded)
	eventBus.Subscribe(events.EventTypePaymentRequestPaid, h.HandlePaymentRequestPaid)

	h.logger.Info("notification event handlers registered",
		"handlers", []string{
			events.EventTypeTransferCompleted,
			events.EventTypeTransferRefunded,
			events.EventTypePaymentRequestPaid,
		})
}

func (h *EventHandler) enqueue(m *Message) {
	if !h.notifier.Enqueue(m) {
		h.logger.Warn("notification not queued", "message_id", m.ID, "template", m.Template)
	}
}
