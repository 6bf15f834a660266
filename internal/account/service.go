package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

type Service struct {
	repo           RepositoryAPI
	openingBalance decimal.Decimal
	logger         *slog.Logger
}

func NewService(repo RepositoryAPI, openingBalance decimal.Decimal, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, openingBalance: openingBalance, logger: logger}
}

// Open creates the user's account with the opening balance, or returns the existing one.
func (s *Service) Open(ctx context.Context, userID int64) (*Account, error) {
	acct, err := s.repo.GetOrCreate(ctx, userID, s.openingBalance)
	if err != nil {
		s.logger.Error("failed to open account", "error", err, "user_id", userID)
		return nil, fmt.Errorf("open account: %w", err)
	}
	return acct, nil
}

// Balance returns the user's account, opening it on first use.
func (s *Service) Balance(ctx context.Context, userID int64) (*Account, error) {
	if _, err := s.Open(ctx, userID); err != nil {
		return nil, err
	}
	acct, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return acct, nil
}

// OpenAccount opens the account of a newly registered user.
func (s *Service) OpenAccount(ctx context.Context, userID int64) error {
	_, err := s.Open(ctx, userID)
	return err
}
