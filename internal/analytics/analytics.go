package analytics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SentTransfer is one row of the dashboard list. DisplayAmount and
// DisplayCurrency are what the recipient was credited.
type SentTransfer struct {
	ID              int64           `json:"id"`
	Recipient       string          `json:"recipient"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	DisplayAmount   decimal.Decimal `json:"display_amount"`
	DisplayCurrency string          `json:"display_currency"`
	Status          string          `json:"status"`
	Timestamp       time.Time       `json:"timestamp"`
}

type DashboardSummary struct {
	UserID            int64           `json:"user_id"`
	Balance           decimal.Decimal `json:"balance"`
	Currency          string          `json:"currency"`
	TotalTransactions int             `json:"total_transactions"`
	LastTransaction   *SentTransfer   `json:"last_transaction"`
	MostUsedCurrency  string          `json:"most_used_currency"`
	Recent            []SentTransfer  `json:"recent_transactions"`
}

// FunnelRow is the view-to-payment funnel of a single payment request.
type FunnelRow struct {
	PaymentRequestID int64           `json:"payment_request_id"`
	ShortCode        string          `json:"short_code"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	Views            int             `json:"views"`
	Conversions      int             `json:"conversions"`
	ConversionRate   float64         `json:"conversion_rate"`
	CreatedAt        time.Time       `json:"created_at"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
}

type Funnel struct {
	Requests         []FunnelRow `json:"requests"`
	TotalViews       int         `json:"total_views"`
	TotalConversions int         `json:"total_conversions"`
	Paid             int         `json:"paid"`
	Limit            int         `json:"limit"`
	Offset           int         `json:"offset"`
}

const NoCurrency = "N/A"

type RepositoryAPI interface {
	Balance(ctx context.Context, userID int64) (decimal.Decimal, string, error)
	CountSent(ctx context.Context, userID int64) (int, error)
	RecentSent(ctx context.Context, userID int64, limit int) ([]SentTransfer, error)
	MostUsedCurrency(ctx context.Context, userID int64) (string, error)
	RequestFunnel(ctx context.Context, merchantID int64, limit, offset int) ([]FunnelRow, error)
}
