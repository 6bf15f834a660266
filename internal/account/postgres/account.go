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
	accountDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/account"
	"github.com/frahmantamala/payapp/internal/core/money"
)

// Repository owns every read and write of account balances. Writers run inside
// a caller-supplied transaction obtained through WithTx.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

type accountRow struct {
	accountDatamodel.Account `gorm:"embedded"`
	Currency                 string `gorm:"column:currency"`
}

func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*account.Account, error) {
	var row accountRow
	err := r.db.WithContext(ctx).
		Table("accounts").
		Select("accounts.*, COALESCE(users.currency, '') AS currency").
		Joins("LEFT JOIN users ON users.id = accounts.user_id").
		Where("accounts.user_id = ?", userID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	acct := account.FromDataModel(&row.Account)
	acct.Currency = row.Currency
	return acct, nil
}

// GetOrCreate inserts an account with the opening balance unless one exists.
// Concurrent first uses race on the unique user_id index; the loser's insert is a no-op.
func (r *Repository) GetOrCreate(ctx context.Context, userID int64, opening decimal.Decimal) (*account.Account, error) {
	db := r.db.WithContext(ctx)

	now := time.Now().UTC()
	row := &accountDatamodel.Account{
		UserID:    userID,
		Balance:   opening,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(row).Error; err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	var existing accountDatamodel.Account
	if err := db.Where("user_id = ?", userID).Take(&existing).Error; err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return account.FromDataModel(&existing), nil
}

// LockForUpdate reads the account with a row lock held until the transaction ends.
func (r *Repository) LockForUpdate(ctx context.Context, userID int64) (*account.Account, error) {
	var row accountDatamodel.Account
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("lock account: %w", err)
	}
	return account.FromDataModel(&row), nil
}

// ApplyBalance writes an absolute balance guarded by the version read under lock.
// A lost race yields account.ErrConcurrentUpdate and leaves acct untouched.
func (r *Repository) ApplyBalance(ctx context.Context, acct *account.Account, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return apperrors.ErrInsufficientFunds
	}
	if balance.GreaterThan(money.MaxAmount) {
		return apperrors.ErrBalanceLimitExceeded
	}

	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&accountDatamodel.Account{}).
		Where("id = ? AND version = ?", acct.ID, acct.Version).
		Updates(map[string]interface{}{
			"balance":    balance,
			"version":    acct.Version + 1,
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("update balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return account.ErrConcurrentUpdate
	}

	acct.Balance = balance
	acct.Version++
	acct.UpdatedAt = now
	return nil
}
