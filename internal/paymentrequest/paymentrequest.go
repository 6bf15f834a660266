package paymentrequest

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	gatewayDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/paymentgateway"
	prDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/paymentrequest"
)

const (
	StatusPending   = prDatamodel.StatusPending
	StatusPaid      = prDatamodel.StatusPaid
	StatusExpired   = prDatamodel.StatusExpired
	StatusCancelled = prDatamodel.StatusCancelled
)

const (
	DefaultExpiryDays = 7
	MinExpiryDays     = 1
	MaxExpiryDays     = 365
)

// ErrShortCodeTaken is returned by the store when a generated short code collides.
var ErrShortCodeTaken = errors.New("short code already in use")

type PaymentRequest struct {
	ID          int64           `json:"id"`
	MerchantID  int64           `json:"merchant_id"`
	ShortCode   string          `json:"short_code"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
}

// State is the effective state of a request at a point in time. It differs from
// Status only for PENDING requests whose expiry has passed.
type State int

const (
	StateActive State = iota
	StateExpired
	StatePaid
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateExpired:
		return "EXPIRED"
	case StatePaid:
		return "PAID"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Payable reports whether a payer may still settle the request.
func (s State) Payable() bool {
	return s == StateActive
}

// Evaluate computes the effective state of pr at now. Every operation on a
// request starts here instead of trusting the stored status alone.
func Evaluate(pr *PaymentRequest, now time.Time) State {
	switch pr.Status {
	case StatusPaid:
		return StatePaid
	case StatusCancelled:
		return StateCancelled
	case StatusExpired:
		return StateExpired
	}
	if pr.ExpiresAt != nil && now.After(*pr.ExpiresAt) {
		return StateExpired
	}
	return StateActive
}

// ClampExpiryDays maps 0 to the default and bounds everything else to [1, 365].
func ClampExpiryDays(days, fallback int) int {
	if days == 0 {
		days = fallback
	}
	if days < MinExpiryDays {
		return MinExpiryDays
	}
	if days > MaxExpiryDays {
		return MaxExpiryDays
	}
	return days
}

// ViewMeta describes who opened a public payment link.
type ViewMeta struct {
	Method    string
	IP        string
	UserAgent string
	Referer   string
}

// View is what a payer sees when opening a link.
type View struct {
	Request *PaymentRequest `json:"request"`
	State   State           `json:"state"`
}

type RepositoryAPI interface {
	Create(ctx context.Context, pr *PaymentRequest) error
	GetByShortCode(ctx context.Context, code string) (*PaymentRequest, error)
	ListByMerchant(ctx context.Context, merchantID int64, limit, offset int) ([]*PaymentRequest, error)
	// MarkExpired and Cancel only move rows that are still PENDING and report whether they did.
	MarkExpired(ctx context.Context, id int64) (bool, error)
	Cancel(ctx context.Context, id int64) (bool, error)
	ExpireOverdue(ctx context.Context, now time.Time, limit int) (int64, error)
}

// Gateway creates hosted checkout sessions.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req *gatewayDatamodel.CheckoutRequest) (*gatewayDatamodel.CheckoutSession, error)
}

// Telemetry records funnel events without blocking the caller.
type Telemetry interface {
	View(requestID int64, meta ViewMeta)
	Conversion(requestID int64, source string)
}

func ToDataModel(pr *PaymentRequest) *prDatamodel.PaymentRequest {
	return &prDatamodel.PaymentRequest{
		ID:          pr.ID,
		MerchantID:  pr.MerchantID,
		ShortCode:   pr.ShortCode,
		Amount:      pr.Amount,
		Currency:    pr.Currency,
		Description: pr.Description,
		Status:      pr.Status,
		CreatedAt:   pr.CreatedAt,
		ExpiresAt:   pr.ExpiresAt,
		PaidAt:      pr.PaidAt,
	}
}

func FromDataModel(row *prDatamodel.PaymentRequest) *PaymentRequest {
	return &PaymentRequest{
		ID:          row.ID,
		MerchantID:  row.MerchantID,
		ShortCode:   row.ShortCode,
		Amount:      row.Amount,
		Currency:    row.Currency,
		Description: row.Description,
		Status:      row.Status,
		CreatedAt:   row.CreatedAt,
		ExpiresAt:   row.ExpiresAt,
		PaidAt:      row.PaidAt,
	}
}
