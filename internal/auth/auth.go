package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// User is the authenticated principal carried in the request context.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Currency string `json:"currency"`
}

// Credentials is what the store returns for a login identifier.
type Credentials struct {
	UserID       int64
	PasswordHash string
	IsActive     bool
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims represents JWT token claims
type Claims struct {
	UserID int64     `json:"user_id"`
	Type   TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// TokenGenerator creates and validates signed tokens.
type TokenGenerator interface {
	GenerateAccessToken(userID int64) (string, error)
	GenerateRefreshToken(userID int64) (string, error)
	ValidateToken(tokenString string, expected TokenType) (*Claims, error)
	AccessTokenTTL() time.Duration
}

type RepositoryAPI interface {
	GetCredentials(ctx context.Context, login string) (*Credentials, error)
	GetPrincipal(ctx context.Context, userID int64) (*User, error)
}
