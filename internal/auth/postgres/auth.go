package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/auth"
	userDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/user"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// GetCredentials looks the user up by username or email.
func (r *Repository) GetCredentials(ctx context.Context, login string) (*auth.Credentials, error) {
	var u userDatamodel.User
	err := r.db.WithContext(ctx).
		Select("id", "password_hash", "is_active").
		Where("username = ? OR email = ?", login, login).
		Take(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("get credentials: %w", err)
	}

	return &auth.Credentials{
		UserID:       u.ID,
		PasswordHash: u.PasswordHash,
		IsActive:     u.IsActive,
	}, nil
}

func (r *Repository) GetPrincipal(ctx context.Context, userID int64) (*auth.User, error) {
	var u userDatamodel.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).Take(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("get principal: %w", err)
	}
	if !u.IsActive {
		return nil, apperrors.ErrUserInactive
	}

	return &auth.User{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Currency: u.Currency,
	}, nil
}
