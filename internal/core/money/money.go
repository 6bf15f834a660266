package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/payapp/internal"
)

// RatePlaces is the number of fractional digits kept on exchange rates.
const RatePlaces = 6

// MaxAmount is the largest value the NUMERIC(12,2) amount and balance columns hold.
var MaxAmount = decimal.RequireFromString("9999999999.99")

type Currency string

// zeroDecimal and threeDecimal list the ISO-4217 exceptions to two minor units.
var (
	zeroDecimal  = map[Currency]bool{"JPY": true, "KRW": true, "VND": true, "CLP": true, "ISK": true}
	threeDecimal = map[Currency]bool{"BHD": true, "KWD": true, "OMR": true, "JOD": true, "TND": true}
)

func NormalizeCurrency(code string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(code)))
}

func (c Currency) String() string {
	return string(c)
}

// Validate checks the ISO-4217 shape: three upper-case ASCII letters.
func (c Currency) Validate() error {
	if len(c) != 3 {
		return errors.ErrInvalidCurrency
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return errors.ErrInvalidCurrency
		}
	}
	return nil
}

func (c Currency) MinorUnits() int32 {
	switch {
	case zeroDecimal[c]:
		return 0
	case threeDecimal[c]:
		return 3
	default:
		return 2
	}
}

// ParseAmount parses a user supplied amount; non-numeric and non-positive input is InvalidAmount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, errors.ErrInvalidAmount.WithCause(err)
	}
	if !d.IsPositive() {
		return decimal.Zero, errors.ErrInvalidAmount
	}
	return d, nil
}

// ValidateAmount rejects non-positive amounts, amounts above MaxAmount and amounts
// finer than the currency minor unit.
func ValidateAmount(amount decimal.Decimal, currency Currency) error {
	if !amount.IsPositive() {
		return errors.ErrInvalidAmount
	}
	if amount.GreaterThan(MaxAmount) {
		return errors.NewValidationError(
			fmt.Sprintf("amount cannot exceed %s", MaxAmount.StringFixed(2)),
			errors.ErrCodeInvalidAmount,
		)
	}
	if !amount.Equal(amount.Truncate(currency.MinorUnits())) {
		return errors.NewValidationError(
			fmt.Sprintf("amount has more than %d decimal places", currency.MinorUnits()),
			errors.ErrCodeInvalidAmount,
		)
	}
	return nil
}

// RoundMoney rounds half-up to the currency minor unit. Amounts are never negative here,
// so decimal's half-away-from-zero rounding is half-up.
func RoundMoney(amount decimal.Decimal, currency Currency) decimal.Decimal {
	return amount.Round(currency.MinorUnits())
}

func RoundRate(rate decimal.Decimal) decimal.Decimal {
	return rate.Round(RatePlaces)
}

// FromMinor converts a gateway minor-unit total into a decimal amount.
func FromMinor(minor int64, currency Currency) decimal.Decimal {
	return decimal.New(minor, -currency.MinorUnits())
}

// ToMinor converts an amount into gateway minor units.
func ToMinor(amount decimal.Decimal, currency Currency) int64 {
	return RoundMoney(amount, currency).Shift(currency.MinorUnits()).IntPart()
}

// Format renders amounts the way notifications display them, e.g. "GBP 1,234.50".
func Format(amount decimal.Decimal, currency Currency) string {
	places := currency.MinorUnits()
	fixed := RoundMoney(amount, currency).StringFixed(places)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}

	intPart, frac := fixed, ""
	if i := strings.IndexByte(fixed, '.'); i >= 0 {
		intPart, frac = fixed[:i], fixed[i:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	return fmt.Sprintf("%s %s%s%s", currency, sign, b.String(), frac)
}
