package transfer

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payapp/internal/conversion"
	transferDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/transfer"
	"github.com/frahmantamala/payapp/internal/core/money"
)

const (
	StatusPending   = transferDatamodel.StatusPending
	StatusCompleted = transferDatamodel.StatusCompleted
	StatusFailed    = transferDatamodel.StatusFailed
	StatusRefunded  = transferDatamodel.StatusRefunded
)

// Transaction is a balance-to-balance transfer. Amount is in the sender's currency;
// the conversion fields are all set when the recipient's currency differs.
type Transaction struct {
	ID                int64            `json:"id"`
	Reference         string           `json:"reference"`
	SenderID          int64            `json:"sender_id"`
	RecipientID       int64            `json:"recipient_id"`
	Amount            decimal.Decimal  `json:"amount"`
	Currency          string           `json:"currency"`
	ConvertedAmount   *decimal.Decimal `json:"converted_amount,omitempty"`
	ConvertedCurrency string           `json:"converted_currency,omitempty"`
	ConversionRate    *decimal.Decimal `json:"conversion_rate,omitempty"`
	Status            string           `json:"status"`
	Timestamp         time.Time        `json:"timestamp"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (t *Transaction) IsConverted() bool {
	return t.ConvertedAmount != nil && t.ConversionRate != nil && t.ConvertedCurrency != ""
}

// CreditedAmount is what the recipient received, in the recipient's currency.
func (t *Transaction) CreditedAmount() decimal.Decimal {
	if t.IsConverted() {
		return *t.ConvertedAmount
	}
	return t.Amount
}

func (t *Transaction) CreditedCurrency() string {
	if t.IsConverted() {
		return t.ConvertedCurrency
	}
	return t.Currency
}

// Party is a transfer participant as the engine needs to see it.
type Party struct {
	ID       int64
	Username string
	Email    string
	Currency money.Currency
}

// TransferCommand moves Amount, denominated in SenderCurrency, from sender to recipient.
type TransferCommand struct {
	SenderID          int64
	RecipientID       int64
	Amount            decimal.Decimal
	SenderCurrency    money.Currency
	RecipientCurrency money.Currency
}

// Posting is one atomic ledger unit: debit the sender by Debit, credit the recipient
// by Credit and record the transaction. PendingID completes an existing PENDING row
// instead of inserting a new one.
type Posting struct {
	SenderID       int64
	RecipientID    int64
	Debit          decimal.Decimal
	Currency       string
	Credit         decimal.Decimal
	Conversion     *conversion.Conversion
	OpeningBalance decimal.Decimal
	PendingID      int64
}

type RepositoryAPI interface {
	ExecutePosting(ctx context.Context, p Posting) (*Transaction, error)
	Refund(ctx context.Context, txnID, recipientID int64, opening decimal.Decimal) (*Transaction, error)
	CreatePending(ctx context.Context, t *Transaction) error
	Decline(ctx context.Context, txnID, payerID int64) (*Transaction, error)
	GetByID(ctx context.Context, id int64) (*Transaction, error)
	ListForUser(ctx context.Context, userID int64, limit, offset int) ([]*Transaction, error)
}

// Directory resolves transfer participants.
type Directory interface {
	PartyByID(ctx context.Context, id int64) (*Party, error)
	PartyByUsername(ctx context.Context, username string) (*Party, error)
}

type Converter interface {
	Convert(ctx context.Context, from, to money.Currency, amount decimal.Decimal) (conversion.Conversion, error)
}

func ToDataModel(t *Transaction) *transferDatamodel.Transaction {
	row := &transferDatamodel.Transaction{
		ID:          t.ID,
		SenderID:    t.SenderID,
		RecipientID: t.RecipientID,
		Amount:      t.Amount,
		Currency:    t.Currency,
		Status:      t.Status,
		Timestamp:   t.Timestamp,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.IsConverted() {
		cur := t.ConvertedCurrency
		row.ConvertedAmount = decimal.NewNullDecimal(*t.ConvertedAmount)
		row.ConvertedCurrency = &cur
		row.ConversionRate = decimal.NewNullDecimal(*t.ConversionRate)
	}
	return row
}

func FromDataModel(row *transferDatamodel.Transaction) *Transaction {
	t := &Transaction{
		ID:          row.ID,
		Reference:   strconv.FormatInt(row.ID, 10),
		SenderID:    row.SenderID,
		RecipientID: row.RecipientID,
		Amount:      row.Amount,
		Currency:    row.Currency,
		Status:      row.Status,
		Timestamp:   row.Timestamp,
		UpdatedAt:   row.UpdatedAt,
	}
	if row.IsConverted() {
		converted := row.ConvertedAmount.Decimal
		rate := row.ConversionRate.Decimal
		t.ConvertedAmount = &converted
		t.ConvertedCurrency = *row.ConvertedCurrency
		t.ConversionRate = &rate
	}
	return t
}
