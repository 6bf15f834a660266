package paymentrequest

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending   = "PENDING"
	StatusPaid      = "PAID"
	StatusExpired   = "EXPIRED"
	StatusCancelled = "CANCELLED"
)

type PaymentRequest struct {
	ID          int64           `gorm:"primaryKey"`
	MerchantID  int64           `gorm:"column:merchant_id;not null;index"`
	ShortCode   string          `gorm:"column:short_code;size:32;uniqueIndex;not null"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency    string          `gorm:"column:currency;size:3;not null"`
	Description string          `gorm:"column:description;size:255"`
	Status      string          `gorm:"column:status;size:16;not null;index"`
	CreatedAt   time.Time       `gorm:"column:created_at"`
	ExpiresAt   *time.Time      `gorm:"column:expires_at;index"`
	PaidAt      *time.Time      `gorm:"column:paid_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at"`
}

func (PaymentRequest) TableName() string {
	return "payment_requests"
}

// PaymentView is append-only telemetry for every GET or POST of a public link.
type PaymentView struct {
	ID               int64     `gorm:"primaryKey"`
	PaymentRequestID int64     `gorm:"column:payment_request_id;not null;index"`
	ViewedAt         time.Time `gorm:"column:viewed_at;not null"`
	Method           string    `gorm:"column:method;size:8"`
	IPAddress        string    `gorm:"column:ip_address;size:64"`
	UserAgent        string    `gorm:"column:user_agent;size:512"`
	Referer          string    `gorm:"column:referer;size:512"`
}

func (PaymentView) TableName() string {
	return "payment_views"
}

// PaymentConversion marks a payer entering checkout.
type PaymentConversion struct {
	ID               int64     `gorm:"primaryKey"`
	PaymentRequestID int64     `gorm:"column:payment_request_id;not null;index"`
	OccurredAt       time.Time `gorm:"column:occurred_at;not null"`
	Source           string    `gorm:"column:source;size:32"`
}

func (PaymentConversion) TableName() string {
	return "payment_conversions"
}
