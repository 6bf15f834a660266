package paymentrequest

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/payapp/internal/metrics"
)

// ExpirySweeper periodically marks overdue PENDING requests EXPIRED. Reads still
// evaluate expiry themselves, so a late sweep never makes a request payable.
type ExpirySweeper struct {
	repo      RepositoryAPI
	interval  time.Duration
	batchSize int
	now       func() time.Time
	logger    *slog.Logger
}

func NewExpirySweeper(repo RepositoryAPI, interval time.Duration, batchSize int, logger *slog.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpirySweeper{
		repo:      repo,
		interval:  interval,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *ExpirySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("expiry sweeper started", "interval", s.interval.String(), "batch_size", s.batchSize)
	for {
		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.Error("expiry sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce expires overdue requests batch by batch and returns how many moved.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int64, error) {
	var total int64
	now := s.now()
	for {
		n, err := s.repo.ExpireOverdue(ctx, now, s.batchSize)
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(s.batchSize) {
			break
		}
	}

	if total > 0 {
		metrics.PaymentRequestsTotal.WithLabelValues("expired").Add(float64(total))
		s.logger.Info("expired overdue payment requests", "count", total)
	}
	return total, nil
}
