package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/payapp/internal"
	prDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/paymentrequest"
	"github.com/frahmantamala/payapp/internal/paymentrequest"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, pr *paymentrequest.PaymentRequest) error {
	row := paymentrequest.ToDataModel(pr)
	row.UpdatedAt = row.CreatedAt

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return paymentrequest.ErrShortCodeTaken
		}
		return fmt.Errorf("create payment request: %w", err)
	}
	pr.ID = row.ID
	return nil
}

func (r *Repository) GetByShortCode(ctx context.Context, code string) (*paymentrequest.PaymentRequest, error) {
	var row prDatamodel.PaymentRequest
	if err := r.db.WithContext(ctx).Where("short_code = ?", code).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPaymentRequestNotFound
		}
		return nil, fmt.Errorf("get payment request: %w", err)
	}
	return paymentrequest.FromDataModel(&row), nil
}

func (r *Repository) ListByMerchant(ctx context.Context, merchantID int64, limit, offset int) ([]*paymentrequest.PaymentRequest, error) {
	var rows []*prDatamodel.PaymentRequest
	err := r.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list payment requests: %w", err)
	}

	out := make([]*paymentrequest.PaymentRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, paymentrequest.FromDataModel(row))
	}
	return out, nil
}

func (r *Repository) MarkExpired(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx, id, paymentrequest.StatusExpired)
}

func (r *Repository) Cancel(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx, id, paymentrequest.StatusCancelled)
}

func (r *Repository) transition(ctx context.Context, id int64, to string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&prDatamodel.PaymentRequest{}).
		Where("id = ? AND status = ?", id, paymentrequest.StatusPending).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("update payment request status: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ExpireOverdue moves up to limit overdue PENDING requests to EXPIRED.
func (r *Repository) ExpireOverdue(ctx context.Context, now time.Time, limit int) (int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&prDatamodel.PaymentRequest{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", paymentrequest.StatusPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("find overdue payment requests: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).
		Model(&prDatamodel.PaymentRequest{}).
		Where("id IN ? AND status = ?", ids, paymentrequest.StatusPending).
		Updates(map[string]interface{}{
			"status":     paymentrequest.StatusExpired,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("expire overdue payment requests: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *Repository) RecordView(ctx context.Context, view *prDatamodel.PaymentView) error {
	return r.db.WithContext(ctx).Create(view).Error
}

func (r *Repository) RecordConversion(ctx context.Context, conv *prDatamodel.PaymentConversion) error {
	return r.db.WithContext(ctx).Create(conv).Error
}
