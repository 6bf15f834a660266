package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/analytics"
)

// Repository is the read side of the ledger. It shares the gorm pool through
// sqlx and never writes.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

type balanceRow struct {
	Currency string              `db:"currency"`
	Balance  decimal.NullDecimal `db:"balance"`
}

// Balance is zero for a user whose account has not been opened yet.
func (r *Repository) Balance(ctx context.Context, userID int64) (decimal.Decimal, string, error) {
	query := r.db.Rebind(`
SELECT u.currency, a.balance
FROM users u
LEFT JOIN accounts a ON a.user_id = u.id
WHERE u.id = ?`)

	var row balanceRow
	if err := r.db.GetContext(ctx, &row, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, "", apperrors.ErrUserNotFound
		}
		return decimal.Zero, "", fmt.Errorf("balance query: %w", err)
	}
	if !row.Balance.Valid {
		return decimal.Zero, row.Currency, nil
	}
	return row.Balance.Decimal, row.Currency, nil
}

func (r *Repository) CountSent(ctx context.Context, userID int64) (int, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM transactions WHERE sender_id = ?`)
	if err := r.db.GetContext(ctx, &n, query, userID); err != nil {
		return 0, fmt.Errorf("count transfers query: %w", err)
	}
	return n, nil
}

type sentRow struct {
	ID                int64               `db:"id"`
	Recipient         string              `db:"recipient"`
	Amount            decimal.Decimal     `db:"amount"`
	Currency          string              `db:"currency"`
	ConvertedAmount   decimal.NullDecimal `db:"converted_amount"`
	ConvertedCurrency sql.NullString      `db:"converted_currency"`
	Status            string              `db:"status"`
	Timestamp         time.Time           `db:"timestamp"`
}

func (row sentRow) toSentTransfer() analytics.SentTransfer {
	t := analytics.SentTransfer{
		ID:              row.ID,
		Recipient:       row.Recipient,
		Amount:          row.Amount,
		Currency:        row.Currency,
		DisplayAmount:   row.Amount,
		DisplayCurrency: row.Currency,
		Status:          row.Status,
		Timestamp:       row.Timestamp,
	}
	if row.ConvertedAmount.Valid && row.ConvertedCurrency.Valid {
		t.DisplayAmount = row.ConvertedAmount.Decimal
		t.DisplayCurrency = row.ConvertedCurrency.String
	}
	return t
}

func (r *Repository) RecentSent(ctx context.Context, userID int64, limit int) ([]analytics.SentTransfer, error) {
	query := r.db.Rebind(`
SELECT t.id, u.username AS recipient, t.amount, t.currency,
       t.converted_amount, t.converted_currency, t.status, t.timestamp
FROM transactions t
JOIN users u ON u.id = t.recipient_id
WHERE t.sender_id = ?
ORDER BY t.timestamp DESC, t.id DESC
LIMIT ?`)

	var rows []sentRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return nil, fmt.Errorf("recent transfers query: %w", err)
	}

	out := make([]analytics.SentTransfer, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toSentTransfer())
	}
	return out, nil
}

// MostUsedCurrency is the currency recipients were most often credited in. Ties
// go to the alphabetically first code; no transfers yields "".
func (r *Repository) MostUsedCurrency(ctx context.Context, userID int64) (string, error) {
	query := r.db.Rebind(`
SELECT COALESCE(converted_currency, currency) AS credited, COUNT(*) AS uses
FROM transactions
WHERE sender_id = ?
GROUP BY COALESCE(converted_currency, currency)
ORDER BY uses DESC, credited ASC
LIMIT 1`)

	var row struct {
		Credited string `db:"credited"`
		Uses     int    `db:"uses"`
	}
	if err := r.db.GetContext(ctx, &row, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("most used currency query: %w", err)
	}
	return row.Credited, nil
}

type funnelRow struct {
	ID          int64           `db:"id"`
	ShortCode   string          `db:"short_code"`
	Amount      decimal.Decimal `db:"amount"`
	Currency    string          `db:"currency"`
	Status      string          `db:"status"`
	CreatedAt   time.Time       `db:"created_at"`
	ExpiresAt   sql.NullTime    `db:"expires_at"`
	Views       int             `db:"views"`
	Conversions int             `db:"conversions"`
}

func (r *Repository) RequestFunnel(ctx context.Context, merchantID int64, limit, offset int) ([]analytics.FunnelRow, error) {
	query := r.db.Rebind(`
SELECT pr.id, pr.short_code, pr.amount, pr.currency, pr.status, pr.created_at, pr.expires_at,
       (SELECT COUNT(*) FROM payment_views v WHERE v.payment_request_id = pr.id) AS views,
       (SELECT COUNT(*) FROM payment_conversions c WHERE c.payment_request_id = pr.id) AS conversions
FROM payment_requests pr
WHERE pr.merchant_id = ?
ORDER BY pr.created_at DESC, pr.id DESC
LIMIT ? OFFSET ?`)

	var rows []funnelRow
	if err := r.db.SelectContext(ctx, &rows, query, merchantID, limit, offset); err != nil {
		return nil, fmt.Errorf("request funnel query: %w", err)
	}

	out := make([]analytics.FunnelRow, 0, len(rows))
	for _, row := range rows {
		f := analytics.FunnelRow{
			PaymentRequestID: row.ID,
			ShortCode:        row.ShortCode,
			Amount:           row.Amount,
			Currency:         row.Currency,
			Status:           row.Status,
			Views:            row.Views,
			Conversions:      row.Conversions,
			CreatedAt:        row.CreatedAt,
		}
		if row.ExpiresAt.Valid {
			expires := row.ExpiresAt.Time
			f.ExpiresAt = &expires
		}
		out = append(out, f)
	}
	return out, nil
}
