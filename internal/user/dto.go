package user

import (
	"strings"

	errors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/core/common/validation"
	"github.com/frahmantamala/payapp/internal/core/money"
)

type RegisterDTO struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Currency string `json:"currency"`
}

// Normalize trims input and upper-cases the currency, defaulting it when empty.
func (d *RegisterDTO) Normalize(defaultCurrency string) {
	d.Username = strings.TrimSpace(d.Username)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.Currency = money.NormalizeCurrency(d.Currency).String()
	if d.Currency == "" {
		d.Currency = money.NormalizeCurrency(defaultCurrency).String()
	}
}

func (d RegisterDTO) Validate(supported map[money.Currency]bool) *errors.AppError {
	v := validation.NewValidator()
	v.Field("username", d.Username).Required().MinLength(3).MaxLength(150)
	v.Field("email", d.Email).Required().Email().MaxLength(254)
	v.Field("password", d.Password).Required().MinLength(8).MaxLength(72)
	v.Field("currency", d.Currency).Currency(supported)
	return v.Validate()
}
