package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/payapp/internal/auth"
	"github.com/frahmantamala/payapp/internal/core/money"
)

type Service struct {
	repo            RepositoryAPI
	accounts        AccountOpener
	supported       map[money.Currency]bool
	defaultCurrency string
	bcryptCost      int
	logger          *slog.Logger
}

type Options struct {
	SupportedCurrencies map[money.Currency]bool
	DefaultCurrency     string
	BCryptCost          int
}

func NewService(repo RepositoryAPI, accounts AccountOpener, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "GBP"
	}
	return &Service{
		repo:            repo,
		accounts:        accounts,
		supported:       opts.SupportedCurrencies,
		defaultCurrency: opts.DefaultCurrency,
		bcryptCost:      opts.BCryptCost,
		logger:          logger,
	}
}

// Register creates the user and opens the account with the opening balance.
// A failed account open is logged only; accounts are opened on first use anyway.
func (s *Service) Register(ctx context.Context, dto RegisterDTO) (*User, error) {
	dto.Normalize(s.defaultCurrency)
	if err := dto.Validate(s.supported); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(dto.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Username:     dto.Username,
		Email:        dto.Email,
		PasswordHash: hash,
		Currency:     dto.Currency,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		s.logger.Info("registration rejected", "username", dto.Username, "error", err)
		return nil, err
	}

	if s.accounts != nil {
		if err := s.accounts.OpenAccount(ctx, u.ID); err != nil {
			s.logger.Error("failed to open account for new user", "user_id", u.ID, "error", err)
		}
	}

	s.logger.Info("user registered", "user_id", u.ID, "currency", u.Currency)
	return u, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return u, nil
}

func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return u, nil
}
