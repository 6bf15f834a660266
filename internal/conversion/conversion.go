package conversion

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payapp/internal/core/money"
)

// Conversion is the outcome of converting Amount from one currency into another.
type Conversion struct {
	From      money.Currency  `json:"from"`
	To        money.Currency  `json:"to"`
	Rate      decimal.Decimal `json:"rate"`
	Amount    decimal.Decimal `json:"original_amount"`
	Converted decimal.Decimal `json:"converted_amount"`
}

// IsIdentity reports whether no conversion took place.
func (c Conversion) IsIdentity() bool {
	return c.From == c.To
}

// Provider returns the directed rate for a currency pair. A missing pair is
// reported as ErrUnsupportedPair; any other failure means the oracle is unavailable.
type Provider interface {
	Rate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error)
}
