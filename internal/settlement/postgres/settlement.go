package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/frahmantamala/payapp/internal"
	prDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/paymentrequest"
	settlementDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/settlement"
	"github.com/frahmantamala/payapp/internal/paymentrequest"
	"github.com/frahmantamala/payapp/internal/settlement"
)

// errAlreadyApplied unwinds a settlement unit that found the work already done.
var errAlreadyApplied = errors.New("settlement already applied")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Settle locks the request row, then either applies the confirmation or reports
// it as a duplicate. A provider_txn_id seen before never creates a second row.
func (r *Repository) Settle(ctx context.Context, cmd settlement.SettleCommand) (*settlement.Result, error) {
	at := cmd.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var result *settlement.Result
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row prDatamodel.PaymentRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("short_code = ?", cmd.ShortCode).
			Take(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrPaymentRequestNotFound
			}
			return fmt.Errorf("lock payment request: %w", err)
		}
		pr := paymentrequest.FromDataModel(&row)

		if cmd.ProviderTxnID != "" {
			existing, err := r.findByProviderTxnID(tx, cmd.ProviderTxnID)
			if err != nil {
				return err
			}
			if existing != nil {
				result = &settlement.Result{Outcome: settlement.OutcomeDuplicate, Transaction: existing, Request: pr}
				return nil
			}
		}

		switch paymentrequest.Evaluate(pr, at) {
		case paymentrequest.StatePaid:
			result = &settlement.Result{Outcome: settlement.OutcomeDuplicate, Request: pr}
			return nil

		case paymentrequest.StateActive:
			res := tx.Model(&prDatamodel.PaymentRequest{}).
				Where("id = ? AND status = ?", pr.ID, paymentrequest.StatusPending).
				Updates(map[string]interface{}{
					"status":     paymentrequest.StatusPaid,
					"paid_at":    at,
					"updated_at": at,
				})
			if res.Error != nil {
				return fmt.Errorf("mark payment request paid: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return errAlreadyApplied
			}
			pr.Status = paymentrequest.StatusPaid
			pr.PaidAt = &at

			txn, err := r.insert(tx, pr, cmd, settlement.StatusSuccess, at)
			if err != nil {
				return err
			}
			result = &settlement.Result{Outcome: settlement.OutcomeSettled, Transaction: txn, Request: pr}
			return nil

		default:
			if pr.Status == paymentrequest.StatusPending {
				err := tx.Model(&prDatamodel.PaymentRequest{}).
					Where("id = ? AND status = ?", pr.ID, paymentrequest.StatusPending).
					Updates(map[string]interface{}{
						"status":     paymentrequest.StatusExpired,
						"updated_at": at,
					}).Error
				if err != nil {
					return fmt.Errorf("mark payment request expired: %w", err)
				}
				pr.Status = paymentrequest.StatusExpired
			}

			// without a provider id, redeliveries reuse the first audit row
			if cmd.ProviderTxnID == "" {
				existing, err := r.findFailed(tx, pr.ID)
				if err != nil {
					return err
				}
				if existing != nil {
					result = &settlement.Result{Outcome: settlement.OutcomeRejected, Transaction: existing, Request: pr}
					return nil
				}
			}

			txn, err := r.insert(tx, pr, cmd, settlement.StatusFailed, at)
			if err != nil {
				return err
			}
			result = &settlement.Result{Outcome: settlement.OutcomeRejected, Transaction: txn, Request: pr}
			return nil
		}
	})

	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, errAlreadyApplied):
		return r.duplicate(ctx, cmd)
	default:
		return nil, err
	}
}

func (r *Repository) insert(tx *gorm.DB, pr *paymentrequest.PaymentRequest, cmd settlement.SettleCommand, status string, at time.Time) (*settlement.Transaction, error) {
	amount := pr.Amount
	if cmd.Amount != nil {
		amount = *cmd.Amount
	}
	currency := strings.ToUpper(cmd.Currency)
	if currency == "" {
		currency = pr.Currency
	}

	prID := pr.ID
	txn := &settlement.Transaction{
		PaymentRequestID: &prID,
		PayerEmail:       cmd.PayerEmail,
		Status:           status,
		Amount:           amount,
		Currency:         currency,
		ProviderTxnID:    cmd.ProviderTxnID,
		RawResponse:      cmd.Raw,
		CreatedAt:        at,
	}

	row := settlement.ToDataModel(txn)
	if len(row.RawResponse) == 0 {
		row.RawResponse = datatypes.JSON("{}")
	}
	if err := tx.Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errAlreadyApplied
		}
		return nil, fmt.Errorf("record settlement: %w", err)
	}
	return settlement.FromDataModel(row), nil
}

// duplicate reloads the state a concurrent unit left behind.
func (r *Repository) duplicate(ctx context.Context, cmd settlement.SettleCommand) (*settlement.Result, error) {
	db := r.db.WithContext(ctx)

	var row prDatamodel.PaymentRequest
	if err := db.Where("short_code = ?", cmd.ShortCode).Take(&row).Error; err != nil {
		return nil, fmt.Errorf("reload payment request: %w", err)
	}

	result := &settlement.Result{Outcome: settlement.OutcomeDuplicate, Request: paymentrequest.FromDataModel(&row)}
	if cmd.ProviderTxnID != "" {
		existing, err := r.findByProviderTxnID(db, cmd.ProviderTxnID)
		if err != nil {
			return nil, err
		}
		result.Transaction = existing
	}
	return result, nil
}

func (r *Repository) findByProviderTxnID(db *gorm.DB, providerTxnID string) (*settlement.Transaction, error) {
	var row settlementDatamodel.Transaction
	err := db.Where("provider_txn_id = ?", providerTxnID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find settlement: %w", err)
	}
	return settlement.FromDataModel(&row), nil
}

func (r *Repository) findFailed(db *gorm.DB, paymentRequestID int64) (*settlement.Transaction, error) {
	var row settlementDatamodel.Transaction
	err := db.Where("payment_request_id = ? AND status = ?", paymentRequestID, settlement.StatusFailed).
		Order("id").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find failed settlement: %w", err)
	}
	return settlement.FromDataModel(&row), nil
}

func (r *Repository) Receipt(ctx context.Context, id int64) (*settlement.Receipt, error) {
	db := r.db.WithContext(ctx)

	var txnRow settlementDatamodel.Transaction
	if err := db.Where("id = ?", id).Take(&txnRow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("get settlement: %w", err)
	}
	if txnRow.PaymentRequestID == nil {
		return nil, apperrors.ErrSettlementNotFound
	}

	var prRow prDatamodel.PaymentRequest
	if err := db.Where("id = ?", *txnRow.PaymentRequestID).Take(&prRow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("get payment request: %w", err)
	}

	return &settlement.Receipt{
		Transaction: settlement.FromDataModel(&txnRow),
		Request:     paymentrequest.FromDataModel(&prRow),
	}, nil
}
