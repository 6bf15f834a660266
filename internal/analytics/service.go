package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/payapp/internal/paymentrequest"
)

const recentLimit = 10

type Service struct {
	repo   RepositoryAPI
	now    func() time.Time
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

func (s *Service) DashboardSummary(ctx context.Context, userID int64) (*DashboardSummary, error) {
	balance, currency, err := s.repo.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.CountSent(ctx, userID)
	if err != nil {
		s.logger.Error("failed to count transfers", "error", err, "user_id", userID)
		return nil, err
	}

	recent, err := s.repo.RecentSent(ctx, userID, recentLimit)
	if err != nil {
		s.logger.Error("failed to load recent transfers", "error", err, "user_id", userID)
		return nil, err
	}

	mostUsed, err := s.repo.MostUsedCurrency(ctx, userID)
	if err != nil {
		s.logger.Error("failed to compute most used currency", "error", err, "user_id", userID)
		return nil, err
	}
	if mostUsed == "" {
		mostUsed = NoCurrency
	}

	summary := &DashboardSummary{
		UserID:            userID,
		Balance:           balance,
		Currency:          currency,
		TotalTransactions: total,
		MostUsedCurrency:  mostUsed,
		Recent:            recent,
	}
	if len(recent) > 0 {
		last := recent[0]
		summary.LastTransaction = &last
	}
	if summary.Recent == nil {
		summary.Recent = []SentTransfer{}
	}
	return summary, nil
}

// RequestFunnel reports the effective status, so an overdue request shows as
// expired before the sweeper has persisted it.
func (s *Service) RequestFunnel(ctx context.Context, merchantID int64, limit, offset int) (*Funnel, error) {
	rows, err := s.repo.RequestFunnel(ctx, merchantID, limit, offset)
	if err != nil {
		s.logger.Error("failed to load request funnel", "error", err, "merchant_id", merchantID)
		return nil, err
	}

	now := s.now()
	funnel := &Funnel{Requests: make([]FunnelRow, 0, len(rows)), Limit: limit, Offset: offset}
	for _, row := range rows {
		pr := &paymentrequest.PaymentRequest{Status: row.Status, ExpiresAt: row.ExpiresAt}
		if paymentrequest.Evaluate(pr, now) == paymentrequest.StateExpired {
			row.Status = paymentrequest.StatusExpired
		}
		if row.Views > 0 {
			row.ConversionRate = float64(row.Conversions) / float64(row.Views)
		}

		funnel.TotalViews += row.Views
		funnel.TotalConversions += row.Conversions
		if row.Status == paymentrequest.StatusPaid {
			funnel.Paid++
		}
		funnel.Requests = append(funnel.Requests, row)
	}
	return funnel, nil
}
