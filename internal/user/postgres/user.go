package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/payapp/internal"
	userDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/user"
	"github.com/frahmantamala/payapp/internal/user"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, u *user.User) error {
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	row := user.ToDataModel(u)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.ErrUserExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	u.ID = row.ID
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	return r.getWhere(ctx, "id = ?", id)
}

func (r *Repository) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	return r.getWhere(ctx, "username = ?", username)
}

func (r *Repository) getWhere(ctx context.Context, query string, args ...interface{}) (*user.User, error) {
	var row userDatamodel.User
	if err := r.db.WithContext(ctx).Where(query, args...).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user.FromDataModel(&row), nil
}
