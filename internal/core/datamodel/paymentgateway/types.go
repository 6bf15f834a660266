package paymentgateway

import (
	"encoding/json"
	"errors"
)

type SessionStatus string

const (
	SessionStatusOpen     SessionStatus = "open"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusExpired  SessionStatus = "expired"
)

type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusUnpaid PaymentStatus = "unpaid"
)

const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
)

// CheckoutRequest asks the gateway for a hosted checkout page. Amount is in minor units.
type CheckoutRequest struct {
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Description     string `json:"description"`
	ClientReference string `json:"client_reference_id"`
	SuccessURL      string `json:"success_url"`
	CancelURL       string `json:"cancel_url"`
}

func (r *CheckoutRequest) Validate() error {
	if r.ClientReference == "" {
		return errors.New("client_reference_id is required")
	}
	if r.Amount <= 0 {
		return errors.New("amount must be greater than 0")
	}
	if r.Currency == "" {
		return errors.New("currency is required")
	}
	if r.SuccessURL == "" || r.CancelURL == "" {
		return errors.New("success_url and cancel_url are required")
	}
	return nil
}

type CheckoutSession struct {
	ID              string        `json:"id"`
	URL             string        `json:"url"`
	Status          SessionStatus `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	AmountTotal     *int64        `json:"amount_total,omitempty"`
	Currency        string        `json:"currency"`
	ClientReference string        `json:"client_reference_id"`
	PaymentIntent   string        `json:"payment_intent,omitempty"`
	CustomerEmail   string        `json:"customer_email,omitempty"`
}

func (s *CheckoutSession) IsPaid() bool {
	return s.Status == SessionStatusComplete && s.PaymentStatus == PaymentStatusPaid
}

// ProviderTxnID is the gateway's idempotency key for the payment behind a session.
func (s *CheckoutSession) ProviderTxnID() string {
	if s.PaymentIntent != "" {
		return s.PaymentIntent
	}
	return s.ID
}

// Event is the webhook envelope posted by the gateway.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}
