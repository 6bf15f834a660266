package auth

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	errors "github.com/frahmantamala/payapp/internal"
)

// Service is the main auth service with dependencies
type Service struct {
	repo   RepositoryAPI
	tokens TokenGenerator
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, tokens TokenGenerator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, logger: logger}
}

// Authenticate validates credentials and returns tokens
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	creds, err := s.repo.GetCredentials(ctx, dto.Login)
	if err != nil {
		if goerrors.Is(err, errors.ErrUserNotFound) {
			return AuthTokens{}, errors.ErrInvalidCredentials
		}
		return AuthTokens{}, fmt.Errorf("load credentials: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(dto.Password)); err != nil {
		s.logger.Info("login rejected", "user_id", creds.UserID)
		return AuthTokens{}, errors.ErrInvalidCredentials
	}

	if !creds.IsActive {
		return AuthTokens{}, errors.ErrUserInactive
	}

	return s.issue(creds.UserID)
}

// RefreshTokens validates refresh token and returns new tokens
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error) {
	claims, err := s.tokens.ValidateToken(refreshToken, TokenTypeRefresh)
	if err != nil {
		return AuthTokens{}, err
	}

	if _, err := s.GetPrincipal(ctx, claims.UserID); err != nil {
		return AuthTokens{}, err
	}

	return s.issue(claims.UserID)
}

func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokens.ValidateToken(tokenString, TokenTypeAccess)
}

// GetPrincipal loads the active user behind a token.
func (s *Service) GetPrincipal(ctx context.Context, userID int64) (*User, error) {
	u, err := s.repo.GetPrincipal(ctx, userID)
	if err != nil {
		if goerrors.Is(err, errors.ErrUserNotFound) || goerrors.Is(err, errors.ErrUserInactive) {
			return nil, errors.ErrInvalidToken.WithCause(err)
		}
		return nil, fmt.Errorf("load principal: %w", err)
	}
	return u, nil
}

func (s *Service) issue(userID int64) (AuthTokens, error) {
	access, err := s.tokens.GenerateAccessToken(userID)
	if err != nil {
		return AuthTokens{}, err
	}
	refresh, err := s.tokens.GenerateRefreshToken(userID)
	if err != nil {
		return AuthTokens{}, err
	}
	return AuthTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.AccessTokenTTL().Seconds()),
	}, nil
}

// HashPassword creates a bcrypt hash of the password
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
