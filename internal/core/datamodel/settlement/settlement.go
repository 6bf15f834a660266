package settlement

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	StatusPending  = "PENDING"
	StatusSuccess  = "SUCCESS"
	StatusFailed   = "FAILED"
	StatusRefunded = "REFUNDED"
)

// Transaction records a gateway settlement. ProviderTxnID is the gateway's idempotency key;
// blank keys are stored as NULL so the unique index ignores them.
type Transaction struct {
	ID               int64           `gorm:"primaryKey"`
	PaymentRequestID *int64          `gorm:"column:payment_request_id;index"`
	PayerEmail       *string         `gorm:"column:payer_email;size:254"`
	Status           string          `gorm:"column:status;size:16;not null"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency         string          `gorm:"column:currency;size:3;not null"`
	ProviderTxnID    *string         `gorm:"column:provider_txn_id;size:255;uniqueIndex"`
	RawResponse      datatypes.JSON  `gorm:"column:raw_response"`
	CreatedAt        time.Time       `gorm:"column:created_at"`
}

func (Transaction) TableName() string {
	return "settlement_transactions"
}
