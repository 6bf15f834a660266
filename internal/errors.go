package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized  ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden     ErrorType = "FORBIDDEN"
	ErrorTypeConflict      ErrorType = "CONFLICT"
	ErrorTypeUnprocessable ErrorType = "UNPROCESSABLE"
	ErrorTypeInternal      ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal      ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount     ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidCurrency   ErrorCode = "INVALID_CURRENCY"
	ErrCodeInvalidExpiry     ErrorCode = "INVALID_EXPIRY"
	ErrCodeSameAccount       ErrorCode = "SAME_ACCOUNT"
	ErrCodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	ErrCodeBalanceLimit      ErrorCode = "BALANCE_LIMIT_EXCEEDED"

	ErrCodeConversionUnavailable ErrorCode = "CONVERSION_UNAVAILABLE"
	ErrCodeUnsupportedPair       ErrorCode = "UNSUPPORTED_PAIR"

	ErrCodeAccountNotFound        ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrCodeUserNotFound           ErrorCode = "USER_NOT_FOUND"
	ErrCodeUserExists             ErrorCode = "USER_EXISTS"
	ErrCodeTransactionNotFound    ErrorCode = "TRANSACTION_NOT_FOUND"
	ErrCodeInvalidTransferStatus  ErrorCode = "INVALID_TRANSFER_STATUS"
	ErrCodePaymentRequestNotFound ErrorCode = "PAYMENT_REQUEST_NOT_FOUND"
	ErrCodeRequestNotPayable      ErrorCode = "REQUEST_NOT_PAYABLE"
	ErrCodeSettlementNotFound     ErrorCode = "SETTLEMENT_NOT_FOUND"
	ErrCodeUnknownCorrelation     ErrorCode = "UNKNOWN_CORRELATION"
	ErrCodeInvalidSignature       ErrorCode = "INVALID_SIGNATURE"
	ErrCodeGatewayUnavailable     ErrorCode = "GATEWAY_UNAVAILABLE"
	ErrCodeIdempotencyConflict    ErrorCode = "IDEMPOTENCY_CONFLICT"

	ErrCodeUnauthorizedAccess ErrorCode = "UNAUTHORIZED_ACCESS"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeUserInactive       ErrorCode = "USER_INACTIVE"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches two AppErrors by code so wrapped sentinels work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Type == t.Type
}

// WithCause returns a copy of e carrying cause; sentinels stay untouched.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

// WithDetails returns a copy of e carrying details.
func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewUnprocessableError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnprocessable,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func NewUnavailableError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
	}
}

var (
	ErrInvalidAmount         = NewValidationError("amount must be a positive number", ErrCodeInvalidAmount)
	ErrInvalidCurrency       = NewValidationError("currency must be a supported ISO-4217 code", ErrCodeInvalidCurrency)
	ErrSameAccount           = NewValidationError("sender and recipient must be different", ErrCodeSameAccount)
	ErrInsufficientFunds     = NewUnprocessableError("insufficient funds", ErrCodeInsufficientFunds)
	ErrBalanceLimitExceeded  = NewUnprocessableError("balance would exceed the account limit", ErrCodeBalanceLimit)
	ErrConversionUnavailable = NewUnavailableError("currency conversion unavailable", ErrCodeConversionUnavailable)
	ErrUnsupportedPair       = NewUnprocessableError("unsupported currency or conversion pair", ErrCodeUnsupportedPair)

	ErrAccountNotFound        = NewNotFoundError("account not found", ErrCodeAccountNotFound)
	ErrUserNotFound           = NewNotFoundError("user not found", ErrCodeUserNotFound)
	ErrUserExists             = NewConflictError("username or email already registered", ErrCodeUserExists)
	ErrTransactionNotFound    = NewNotFoundError("transaction not found", ErrCodeTransactionNotFound)
	ErrInvalidTransferStatus  = NewConflictError("transaction cannot be changed in its current status", ErrCodeInvalidTransferStatus)
	ErrPaymentRequestNotFound = NewNotFoundError("payment request not found", ErrCodePaymentRequestNotFound)
	ErrRequestNotPayable      = NewConflictError("payment request is not payable", ErrCodeRequestNotPayable)
	ErrSettlementNotFound     = NewNotFoundError("settlement not found", ErrCodeSettlementNotFound)
	ErrUnknownCorrelation     = NewValidationError("confirmation cannot be correlated", ErrCodeUnknownCorrelation)
	ErrInvalidSignature       = NewValidationError("invalid webhook signature", ErrCodeInvalidSignature)
	ErrGatewayUnavailable     = NewUnavailableError("payment gateway unavailable", ErrCodeGatewayUnavailable)

	ErrUnauthorizedAccess = NewForbiddenError("unauthorized access", ErrCodeUnauthorizedAccess)
	ErrInvalidCredentials = NewUnauthorizedError("Invalid username or password", ErrCodeInvalidCredentials)
	ErrUserInactive       = NewForbiddenError("User account is inactive", ErrCodeUserInactive)
	ErrInvalidToken       = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
)

// IsAppError finds the first AppError in err's chain.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
