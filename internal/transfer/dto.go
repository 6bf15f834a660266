package transfer

import (
	"strings"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/core/common/validation"
)

// SendDTO is the body of POST /transfers. Amount is in the sender's currency.
type SendDTO struct {
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
}

func (d *SendDTO) Validate() *errors.AppError {
	d.Recipient = strings.TrimSpace(d.Recipient)
	v := validation.NewValidator()
	v.Field("recipient", d.Recipient).Required().MaxLength(150)
	return v.Validate()
}

// RequestFundsDTO is the body of POST /transfers/requests. Amount is in the payer's currency.
type RequestFundsDTO struct {
	Payer  string          `json:"payer"`
	Amount decimal.Decimal `json:"amount"`
}

func (d *RequestFundsDTO) Validate() *errors.AppError {
	d.Payer = strings.TrimSpace(d.Payer)
	v := validation.NewValidator()
	v.Field("payer", d.Payer).Required().MaxLength(150)
	return v.Validate()
}
