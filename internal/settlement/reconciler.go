package settlement

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"log/slog"
	"strings"
	"time"

	errors "github.com/frahmantamala/payapp/internal"
	gatewaytypes "github.com/frahmantamala/payapp/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/payapp/internal/core/events"
	"github.com/frahmantamala/payapp/internal/core/money"
	"github.com/frahmantamala/payapp/internal/metrics"
)

// SessionFetcher reads a checkout session back from the gateway.
type SessionFetcher interface {
	GetCheckoutSession(ctx context.Context, id string) (*gatewaytypes.CheckoutSession, error)
}

type Reconciler struct {
	repo      RepositoryAPI
	sessions  SessionFetcher
	publisher events.Publisher
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewReconciler(repo RepositoryAPI, sessions SessionFetcher, publisher events.Publisher, gatewayTimeout time.Duration, logger *slog.Logger) *Reconciler {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		repo:      repo,
		sessions:  sessions,
		publisher: publisher,
		timeout:   gatewayTimeout,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// HandleConfirmation applies an authenticated confirmation. Redelivery is a
// duplicate, not an error; only store failures are returned so the sender retries.
func (r *Reconciler) HandleConfirmation(ctx context.Context, c Confirmation) (*Result, error) {
	source := c.Source
	if source == "" {
		source = SourceWebhook
	}

	if strings.TrimSpace(c.ShortCode) == "" {
		metrics.SettlementsTotal.WithLabelValues(source, string(OutcomeIgnored)).Inc()
		r.logger.Warn("confirmation without correlation key dropped",
			"provider_txn_id", c.ProviderTxnID,
			"source", source)
		return &Result{Outcome: OutcomeIgnored}, errors.ErrUnknownCorrelation
	}

	cmd := SettleCommand{
		ShortCode:     c.ShortCode,
		ProviderTxnID: c.ProviderTxnID,
		Currency:      strings.ToUpper(c.Currency),
		PayerEmail:    c.PayerEmail,
		Raw:           c.Raw,
		At:            r.now(),
	}
	if c.AmountMinor != nil && cmd.Currency != "" {
		amount := money.FromMinor(*c.AmountMinor, money.Currency(cmd.Currency))
		cmd.Amount = &amount
	}

	result, err := r.repo.Settle(ctx, cmd)
	if err != nil {
		if goerrors.Is(err, errors.ErrPaymentRequestNotFound) {
			metrics.SettlementsTotal.WithLabelValues(source, string(OutcomeIgnored)).Inc()
			r.logger.Warn("confirmation for unknown short code dropped",
				"short_code", c.ShortCode,
				"provider_txn_id", c.ProviderTxnID)
			return &Result{Outcome: OutcomeIgnored}, errors.ErrUnknownCorrelation
		}
		metrics.SettlementsTotal.WithLabelValues(source, "error").Inc()
		r.logger.Error("failed to settle payment request", "error", err, "short_code", c.ShortCode)
		return nil, err
	}

	metrics.SettlementsTotal.WithLabelValues(source, string(result.Outcome)).Inc()
	r.logger.Info("confirmation processed",
		"short_code", c.ShortCode,
		"provider_txn_id", c.ProviderTxnID,
		"outcome", string(result.Outcome),
		"source", source)

	if result.Outcome == OutcomeSettled {
		r.publishPaid(ctx, result)
	}
	return result, nil
}

// ConfirmCheckout is the synchronous payer path: it asks the gateway about the
// session and, if paid, settles through the same primitive as the webhook.
func (r *Reconciler) ConfirmCheckout(ctx context.Context, shortCode, sessionID string) (*Result, error) {
	if sessionID == "" {
		return nil, errors.NewValidationError("session_id is required", errors.ErrCodeValidationFailed)
	}

	gctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	session, err := r.sessions.GetCheckoutSession(gctx, sessionID)
	if err != nil {
		r.logger.Error("failed to fetch checkout session", "error", err, "session_id", sessionID)
		return nil, errors.ErrGatewayUnavailable.WithCause(err)
	}
	if session.ClientReference != shortCode {
		r.logger.Warn("checkout session does not belong to request",
			"session_id", sessionID,
			"short_code", shortCode)
		return nil, errors.ErrPaymentRequestNotFound
	}
	if !session.IsPaid() {
		return nil, errors.ErrRequestNotPayable
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return nil, errors.NewInternalError("failed to encode checkout session", err)
	}
	return r.HandleConfirmation(ctx, ConfirmationFromSession(session, raw, SourceRedirect))
}

// ConfirmationFromSession maps a paid checkout session onto a Confirmation.
func ConfirmationFromSession(session *gatewaytypes.CheckoutSession, raw []byte, source string) Confirmation {
	return Confirmation{
		ShortCode:     session.ClientReference,
		ProviderTxnID: session.ProviderTxnID(),
		AmountMinor:   session.AmountTotal,
		Currency:      session.Currency,
		PayerEmail:    session.CustomerEmail,
		Raw:           raw,
		Source:        source,
	}
}

func (r *Reconciler) Receipt(ctx context.Context, merchantID, id int64) (*Receipt, error) {
	receipt, err := r.repo.Receipt(ctx, id)
	if err != nil {
		return nil, err
	}
	if receipt.Request.MerchantID != merchantID {
		return nil, errors.ErrSettlementNotFound
	}
	return receipt, nil
}

func (r *Reconciler) publishPaid(ctx context.Context, result *Result) {
	if r.publisher == nil || result.Transaction == nil || result.Request == nil {
		return
	}
	pr, txn := result.Request, result.Transaction

	event := events.NewPaymentRequestPaidEvent(pr.ID, txn.ID, pr.MerchantID, pr.ShortCode, txn.Amount, txn.Currency, txn.ProviderTxnID)
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("failed to publish payment event", "error", err, "short_code", pr.ShortCode)
	}
}
