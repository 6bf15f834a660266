package account

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	accountDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/account"
)

// ErrConcurrentUpdate is returned when a versioned balance write lost a race.
var ErrConcurrentUpdate = errors.New("account was modified concurrently")

type Account struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency,omitempty"`
	Version   int64           `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CanCover reports whether the balance covers amount without going negative.
func (a *Account) CanCover(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}

type RepositoryAPI interface {
	GetByUserID(ctx context.Context, userID int64) (*Account, error)
	GetOrCreate(ctx context.Context, userID int64, opening decimal.Decimal) (*Account, error)
}

func ToDataModel(a *Account) *accountDatamodel.Account {
	return &accountDatamodel.Account{
		ID:        a.ID,
		UserID:    a.UserID,
		Balance:   a.Balance,
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func FromDataModel(a *accountDatamodel.Account) *Account {
	return &Account{
		ID:        a.ID,
		UserID:    a.UserID,
		Balance:   a.Balance,
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}
