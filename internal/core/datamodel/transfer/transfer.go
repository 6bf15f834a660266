package transfer

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusRefunded  = "REFUNDED"
)

// Transaction is an internal balance-to-balance transfer. The conversion fields are
// either all set or all null.
type Transaction struct {
	ID                int64               `gorm:"primaryKey"`
	SenderID          int64               `gorm:"column:sender_id;not null;index"`
	RecipientID       int64               `gorm:"column:recipient_id;not null;index"`
	Amount            decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency          string              `gorm:"column:currency;size:3;not null"`
	ConvertedAmount   decimal.NullDecimal `gorm:"column:converted_amount;type:numeric(12,2)"`
	ConvertedCurrency *string             `gorm:"column:converted_currency;size:3"`
	ConversionRate    decimal.NullDecimal `gorm:"column:conversion_rate;type:numeric(12,6)"`
	Status            string              `gorm:"column:status;size:16;not null;index"`
	Timestamp         time.Time           `gorm:"column:timestamp;autoCreateTime;not null"`
	UpdatedAt         time.Time           `gorm:"column:updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

func (t *Transaction) IsConverted() bool {
	return t.ConvertedAmount.Valid && t.ConvertedCurrency != nil && t.ConversionRate.Valid
}

// CreditedAmount is what the recipient received, in the recipient's currency.
func (t *Transaction) CreditedAmount() decimal.Decimal {
	if t.IsConverted() {
		return t.ConvertedAmount.Decimal
	}
	return t.Amount
}

func (t *Transaction) CreditedCurrency() string {
	if t.IsConverted() {
		return *t.ConvertedCurrency
	}
	return t.Currency
}
