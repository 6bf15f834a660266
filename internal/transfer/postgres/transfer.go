package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/account"
	accountPostgres "github.com/frahmantamala/payapp/internal/account/postgres"
	transferDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/transfer"
	userDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/user"
	"github.com/frahmantamala/payapp/internal/core/money"
	"github.com/frahmantamala/payapp/internal/transfer"
)

// Repository records transfers and moves the balances behind them. Every
// balance-changing method runs as one database transaction.
type Repository struct {
	db       *gorm.DB
	accounts *accountPostgres.Repository
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, accounts: accountPostgres.NewRepository(db)}
}

// ExecutePosting debits the sender, credits the recipient and records the
// transaction. Either all of it commits or none of it does.
func (r *Repository) ExecutePosting(ctx context.Context, p transfer.Posting) (*transfer.Transaction, error) {
	var out *transfer.Transaction

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sender, recipient, err := r.lockPair(ctx, tx, p.SenderID, p.RecipientID, p.OpeningBalance)
		if err != nil {
			return err
		}

		if !sender.CanCover(p.Debit) {
			return apperrors.ErrInsufficientFunds
		}

		accounts := r.accounts.WithTx(tx)
		if err := accounts.ApplyBalance(ctx, sender, sender.Balance.Sub(p.Debit)); err != nil {
			return err
		}
		if err := accounts.ApplyBalance(ctx, recipient, recipient.Balance.Add(p.Credit)); err != nil {
			return err
		}

		row, err := r.record(ctx, tx, p)
		if err != nil {
			return err
		}
		out = transfer.FromDataModel(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) record(ctx context.Context, tx *gorm.DB, p transfer.Posting) (*transferDatamodel.Transaction, error) {
	now := time.Now().UTC()

	if p.PendingID == 0 {
		row := &transferDatamodel.Transaction{
			SenderID:    p.SenderID,
			RecipientID: p.RecipientID,
			Amount:      p.Debit,
			Currency:    p.Currency,
			Status:      transferDatamodel.StatusCompleted,
			Timestamp:   now,
			UpdatedAt:   now,
		}
		if p.Conversion != nil {
			cur := p.Conversion.To.String()
			row.ConvertedAmount = decimal.NewNullDecimal(p.Conversion.Converted)
			row.ConvertedCurrency = &cur
			row.ConversionRate = decimal.NewNullDecimal(p.Conversion.Rate)
		}
		if err := tx.WithContext(ctx).Create(row).Error; err != nil {
			return nil, fmt.Errorf("create transaction: %w", err)
		}
		return row, nil
	}

	updates := map[string]interface{}{
		"status":     transferDatamodel.StatusCompleted,
		"updated_at": now,
	}
	if p.Conversion != nil {
		updates["converted_amount"] = p.Conversion.Converted
		updates["converted_currency"] = p.Conversion.To.String()
		updates["conversion_rate"] = p.Conversion.Rate
	}

	res := tx.WithContext(ctx).
		Model(&transferDatamodel.Transaction{}).
		Where("id = ? AND status = ?", p.PendingID, transferDatamodel.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("complete pending transaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.ErrInvalidTransferStatus
	}

	var row transferDatamodel.Transaction
	if err := tx.WithContext(ctx).Where("id = ?", p.PendingID).Take(&row).Error; err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	return &row, nil
}

// Refund reverses a COMPLETED transaction on behalf of its recipient.
func (r *Repository) Refund(ctx context.Context, txnID, recipientID int64, opening decimal.Decimal) (*transfer.Transaction, error) {
	var out *transfer.Transaction

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row transferDatamodel.Transaction
		err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", txnID).
			Take(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrTransactionNotFound
			}
			return fmt.Errorf("load transaction: %w", err)
		}
		if row.RecipientID != recipientID {
			return apperrors.ErrTransactionNotFound
		}
		if row.Status != transferDatamodel.StatusCompleted {
			return apperrors.ErrInvalidTransferStatus
		}

		sender, recipient, err := r.lockPair(ctx, tx, row.SenderID, row.RecipientID, opening)
		if err != nil {
			return err
		}

		giveBack := row.CreditedAmount()
		if !recipient.CanCover(giveBack) {
			return apperrors.ErrInsufficientFunds
		}

		accounts := r.accounts.WithTx(tx)
		if err := accounts.ApplyBalance(ctx, recipient, recipient.Balance.Sub(giveBack)); err != nil {
			return err
		}
		if err := accounts.ApplyBalance(ctx, sender, sender.Balance.Add(row.Amount)); err != nil {
			return err
		}

		now := time.Now().UTC()
		res := tx.WithContext(ctx).
			Model(&transferDatamodel.Transaction{}).
			Where("id = ? AND status = ?", row.ID, transferDatamodel.StatusCompleted).
			Updates(map[string]interface{}{
				"status":     transferDatamodel.StatusRefunded,
				"updated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("mark refunded: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrInvalidTransferStatus
		}

		row.Status = transferDatamodel.StatusRefunded
		row.UpdatedAt = now
		out = transfer.FromDataModel(&row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lockPair opens both accounts if needed and locks them in account id order so
// two opposite transfers cannot deadlock.
func (r *Repository) lockPair(ctx context.Context, tx *gorm.DB, senderID, recipientID int64, opening decimal.Decimal) (*account.Account, *account.Account, error) {
	accounts := r.accounts.WithTx(tx)

	s, err := accounts.GetOrCreate(ctx, senderID, opening)
	if err != nil {
		return nil, nil, err
	}
	rc, err := accounts.GetOrCreate(ctx, recipientID, opening)
	if err != nil {
		return nil, nil, err
	}

	first, second := senderID, recipientID
	if rc.ID < s.ID {
		first, second = recipientID, senderID
	}

	a, err := accounts.LockForUpdate(ctx, first)
	if err != nil {
		return nil, nil, err
	}
	b, err := accounts.LockForUpdate(ctx, second)
	if err != nil {
		return nil, nil, err
	}

	if a.UserID == senderID {
		return a, b, nil
	}
	return b, a, nil
}

func (r *Repository) CreatePending(ctx context.Context, t *transfer.Transaction) error {
	t.Status = transferDatamodel.StatusPending
	row := transfer.ToDataModel(t)
	now := time.Now().UTC()
	row.Timestamp = now
	row.UpdatedAt = now

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create pending transaction: %w", err)
	}

	*t = *transfer.FromDataModel(row)
	return nil
}

// Decline moves a PENDING request to FAILED. Only the payer may decline.
func (r *Repository) Decline(ctx context.Context, txnID, payerID int64) (*transfer.Transaction, error) {
	res := r.db.WithContext(ctx).
		Model(&transferDatamodel.Transaction{}).
		Where("id = ? AND sender_id = ? AND status = ?", txnID, payerID, transferDatamodel.StatusPending).
		Updates(map[string]interface{}{
			"status":     transferDatamodel.StatusFailed,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("decline transaction: %w", res.Error)
	}

	txn, err := r.GetByID(ctx, txnID)
	if err != nil {
		return nil, err
	}
	if txn.SenderID != payerID {
		return nil, apperrors.ErrTransactionNotFound
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.ErrInvalidTransferStatus
	}
	return txn, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*transfer.Transaction, error) {
	var row transferDatamodel.Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return transfer.FromDataModel(&row), nil
}

// ListForUser returns transactions the user sent or received, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID int64, limit, offset int) ([]*transfer.Transaction, error) {
	var rows []*transferDatamodel.Transaction
	err := r.db.WithContext(ctx).
		Where("sender_id = ? OR recipient_id = ?", userID, userID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	out := make([]*transfer.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, transfer.FromDataModel(row))
	}
	return out, nil
}

// Directory resolves transfer participants from the users table.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) PartyByID(ctx context.Context, id int64) (*transfer.Party, error) {
	return d.find(ctx, "id = ?", id)
}

// PartyByUsername only resolves active users.
func (d *Directory) PartyByUsername(ctx context.Context, username string) (*transfer.Party, error) {
	return d.find(ctx, "username = ? AND is_active = ?", username, true)
}

func (d *Directory) find(ctx context.Context, query string, args ...interface{}) (*transfer.Party, error) {
	var row userDatamodel.User
	if err := d.db.WithContext(ctx).Where(query, args...).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &transfer.Party{
		ID:       row.ID,
		Username: row.Username,
		Email:    row.Email,
		Currency: money.Currency(row.Currency),
	}, nil
}
