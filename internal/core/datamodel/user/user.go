package user

import "time"

type User struct {
	ID           int64     `gorm:"primaryKey"`
	Username     string    `gorm:"column:username;size:150;uniqueIndex;not null"`
	Email        string    `gorm:"column:email;size:254;uniqueIndex;not null"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	Currency     string    `gorm:"column:currency;size:3;not null"`
	IsActive     bool      `gorm:"column:is_active;not null"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}
