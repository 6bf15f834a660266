package settlement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	settlementDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/settlement"
	"github.com/frahmantamala/payapp/internal/paymentrequest"
)

const (
	StatusPending  = settlementDatamodel.StatusPending
	StatusSuccess  = settlementDatamodel.StatusSuccess
	StatusFailed   = settlementDatamodel.StatusFailed
	StatusRefunded = settlementDatamodel.StatusRefunded
)

const (
	SourceWebhook  = "webhook"
	SourceRedirect = "redirect"
)

// Outcome is what a confirmation did to the ledger.
type Outcome string

const (
	// OutcomeSettled: the request moved PENDING to PAID and a SUCCESS transaction was recorded.
	OutcomeSettled Outcome = "settled"
	// OutcomeDuplicate: the confirmation was already applied; nothing changed.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeRejected: the request was expired or cancelled; a FAILED audit row was recorded.
	OutcomeRejected Outcome = "rejected"
	// OutcomeIgnored: the confirmation could not be correlated and was dropped.
	OutcomeIgnored Outcome = "ignored"
)

// Transaction is a gateway settlement record.
type Transaction struct {
	ID               int64           `json:"id"`
	PaymentRequestID *int64          `json:"payment_request_id,omitempty"`
	PayerEmail       string          `json:"payer_email,omitempty"`
	Status           string          `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	ProviderTxnID    string          `json:"provider_txn_id,omitempty"`
	RawResponse      json.RawMessage `json:"-"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Confirmation is an authenticated gateway report that a checkout was paid.
type Confirmation struct {
	ShortCode     string
	ProviderTxnID string
	// AmountMinor is the gateway total in minor units; nil settles the requested amount.
	AmountMinor *int64
	Currency    string
	PayerEmail  string
	Raw         []byte
	Source      string
}

// SettleCommand is the input to the shared settlement primitive.
type SettleCommand struct {
	ShortCode     string
	ProviderTxnID string
	// Amount nil means the requested amount.
	Amount     *decimal.Decimal
	Currency   string
	PayerEmail string
	Raw        []byte
	At         time.Time
}

type Result struct {
	Outcome     Outcome                        `json:"outcome"`
	Transaction *Transaction                   `json:"transaction,omitempty"`
	Request     *paymentrequest.PaymentRequest `json:"payment_request,omitempty"`
}

// Receipt pairs a settlement with the request it paid.
type Receipt struct {
	Transaction *Transaction                   `json:"transaction"`
	Request     *paymentrequest.PaymentRequest `json:"payment_request"`
}

type RepositoryAPI interface {
	// Settle runs the PENDING to PAID transition and records the settlement in
	// one atomic unit. Both the webhook and the redirect path go through here.
	Settle(ctx context.Context, cmd SettleCommand) (*Result, error)
	Receipt(ctx context.Context, id int64) (*Receipt, error)
}

func ToDataModel(t *Transaction) *settlementDatamodel.Transaction {
	row := &settlementDatamodel.Transaction{
		ID:               t.ID,
		PaymentRequestID: t.PaymentRequestID,
		Status:           t.Status,
		Amount:           t.Amount,
		Currency:         t.Currency,
		RawResponse:      []byte(t.RawResponse),
		CreatedAt:        t.CreatedAt,
	}
	if t.PayerEmail != "" {
		email := t.PayerEmail
		row.PayerEmail = &email
	}
	if t.ProviderTxnID != "" {
		id := t.ProviderTxnID
		row.ProviderTxnID = &id
	}
	return row
}

func FromDataModel(row *settlementDatamodel.Transaction) *Transaction {
	t := &Transaction{
		ID:               row.ID,
		PaymentRequestID: row.PaymentRequestID,
		Status:           row.Status,
		Amount:           row.Amount,
		Currency:         row.Currency,
		RawResponse:      json.RawMessage(row.RawResponse),
		CreatedAt:        row.CreatedAt,
	}
	if row.PayerEmail != nil {
		t.PayerEmail = *row.PayerEmail
	}
	if row.ProviderTxnID != nil {
		t.ProviderTxnID = *row.ProviderTxnID
	}
	return t
}
