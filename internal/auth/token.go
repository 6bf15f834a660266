package auth

import (
	goerrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	errors "github.com/frahmantamala/payapp/internal"
)

type JWTTokenGenerator struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewJWTTokenGenerator creates a new JWT token generator
func NewJWTTokenGenerator(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *JWTTokenGenerator {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &JWTTokenGenerator{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (j *JWTTokenGenerator) AccessTokenTTL() time.Duration {
	return j.accessTTL
}

func (j *JWTTokenGenerator) GenerateAccessToken(userID int64) (string, error) {
	return j.sign(userID, TokenTypeAccess, j.accessTTL, j.accessSecret)
}

func (j *JWTTokenGenerator) GenerateRefreshToken(userID int64) (string, error) {
	return j.sign(userID, TokenTypeRefresh, j.refreshTTL, j.refreshSecret)
}

func (j *JWTTokenGenerator) sign(userID int64, typ TokenType, ttl time.Duration, secret []byte) (string, error) {
	now := j.now()
	claims := &Claims{
		UserID: userID,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   strconv.FormatInt(userID, 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// ValidateToken checks the signature with the secret of the expected token type,
// so a refresh token is never accepted as an access token.
func (j *JWTTokenGenerator) ValidateToken(tokenString string, expected TokenType) (*Claims, error) {
	secret := j.accessSecret
	if expected == TokenTypeRefresh {
		secret = j.refreshSecret
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.ErrTokenExpired
		}
		return nil, errors.ErrInvalidToken.WithCause(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Type != expected || claims.UserID == 0 {
		return nil, errors.ErrInvalidToken
	}
	return claims, nil
}
