package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypeTransferCompleted     = "transfer.completed"
	EventTypeTransferRefunded      = "transfer.refunded"
	EventTypePaymentRequestPaid    = "payment_request.paid"
	EventTypePaymentRequestExpired = "payment_request.expired"
)

// Party identifies a user in notifications without loading the profile again.
type Party struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type TransferCompletedEvent struct {
	BaseEvent
	TransactionID     int64
	Sender            Party
	Recipient         Party
	Amount            decimal.Decimal
	Currency          string
	ConvertedAmount   *decimal.Decimal
	ConvertedCurrency string
}

func NewTransferCompletedEvent(txnID int64, sender, recipient Party, amount decimal.Decimal, currency string, converted *decimal.Decimal, convertedCurrency string) *TransferCompletedEvent {
	data := map[string]interface{}{
		"transaction_id": txnID,
		"sender_id":      sender.UserID,
		"recipient_id":   recipient.UserID,
		"amount":         amount.String(),
		"currency":       currency,
	}
	if converted != nil {
		data["converted_amount"] = converted.String()
		data["converted_currency"] = convertedCurrency
	}

	return &TransferCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeTransferCompleted,
			Timestamp: time.Now(),
			Data:      data,
		},
		TransactionID:     txnID,
		Sender:            sender,
		Recipient:         recipient,
		Amount:            amount,
		Currency:          currency,
		ConvertedAmount:   converted,
		ConvertedCurrency: convertedCurrency,
	}
}

type TransferRefundedEvent struct {
	BaseEvent
	TransactionID int64
	SenderID      int64
	RecipientID   int64
}

func NewTransferRefundedEvent(txnID, senderID, recipientID int64) *TransferRefundedEvent {
	return &TransferRefundedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeTransferRefunded,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"transaction_id": txnID,
				"sender_id":      senderID,
				"recipient_id":   recipientID,
			},
		},
		TransactionID: txnID,
		SenderID:      senderID,
		RecipientID:   recipientID,
	}
}

type PaymentRequestPaidEvent struct {
	BaseEvent
	PaymentRequestID int64
	SettlementID     int64
	MerchantID       int64
	ShortCode        string
	Amount           decimal.Decimal
	Currency         string
	ProviderTxnID    string
}

func NewPaymentRequestPaidEvent(requestID, settlementID, merchantID int64, shortCode string, amount decimal.Decimal, currency, providerTxnID string) *PaymentRequestPaidEvent {
	return &PaymentRequestPaidEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentRequestPaid,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_request_id": requestID,
				"settlement_id":      settlementID,
				"merchant_id":        merchantID,
				"short_code":         shortCode,
				"amount":             amount.String(),
				"currency":           currency,
				"provider_txn_id":    providerTxnID,
			},
		},
		PaymentRequestID: requestID,
		SettlementID:     settlementID,
		MerchantID:       merchantID,
		ShortCode:        shortCode,
		Amount:           amount,
		Currency:         currency,
		ProviderTxnID:    providerTxnID,
	}
}

type PaymentRequestExpiredEvent struct {
	BaseEvent
	PaymentRequestID int64
	ShortCode        string
}

func NewPaymentRequestExpiredEvent(requestID int64, shortCode string) *PaymentRequestExpiredEvent {
	return &PaymentRequestExpiredEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentRequestExpired,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_request_id": requestID,
				"short_code":         shortCode,
			},
		},
		PaymentRequestID: requestID,
		ShortCode:        shortCode,
	}
}
