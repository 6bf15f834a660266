package account

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds one user's balance in the user's profile currency.
type Account struct {
	ID        int64           `gorm:"primaryKey"`
	UserID    int64           `gorm:"column:user_id;uniqueIndex;not null"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(12,2);not null"`
	Version   int64           `gorm:"column:version;not null"`
	CreatedAt time.Time       `gorm:"column:created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}
