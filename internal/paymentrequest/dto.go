package paymentrequest

import (
	"strings"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/core/common/validation"
	"github.com/frahmantamala/payapp/internal/core/money"
)

// CreateDTO is the body of POST /payment-requests. ExpiryDays 0 means the default;
// other values are clamped rather than rejected.
type CreateDTO struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	ExpiryDays  int             `json:"expiry_days"`
}

func (d *CreateDTO) Normalize() {
	d.Currency = money.NormalizeCurrency(d.Currency).String()
	d.Description = strings.TrimSpace(d.Description)
}

func (d CreateDTO) Validate(supported map[money.Currency]bool) *errors.AppError {
	v := validation.NewValidator()
	v.Field("currency", d.Currency).Required().Currency(supported)
	v.Field("amount", d.Amount).PositiveAmount(money.Currency(d.Currency))
	v.Field("description", d.Description).MaxLength(255)
	return v.Validate()
}
