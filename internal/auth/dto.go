package auth

import (
	errors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/core/common/validation"
)

// LoginDTO accepts either the username or the email address as Login.
type LoginDTO struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// RefreshTokenDTO for refresh token requests
type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token"`
}

func (d LoginDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("login", d.Login).Required().MaxLength(254)
	v.Field("password", d.Password).Required()
	return v.Validate()
}

func (d RefreshTokenDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("refresh_token", d.RefreshToken).Required()
	return v.Validate()
}
