// Package auth issues and verifies the bearer tokens that carry the caller's
// owner id.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that cannot be trusted.
var ErrInvalidToken = errors.New("invalid token")

// TokenService signs HS256 tokens with a user_id claim.
type TokenService struct {
	secretKey []byte
	expiresIn time.Duration
	now       func() time.Time
}

// NewTokenService creates a token service. An empty secret is rejected.
func NewTokenService(secret string, expiresIn time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("NewTokenService: secret is required")
	}
	return &TokenService{secretKey: []byte(secret), expiresIn: expiresIn, now: time.Now}, nil
}

// GenerateToken issues a token for ownerID.
func (s *TokenService) GenerateToken(ownerID int64) (string, error) {
	if ownerID <= 0 {
		return "", fmt.Errorf("GenerateToken: invalid owner id %d", ownerID)
	}
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": ownerID,
		"iat":     now.Unix(),
		"exp":     now.Add(s.expiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("GenerateToken: sign: %w", err)
	}
	return signed, nil
}

// ParseToken verifies tokenStr and returns its owner id.
func (s *TokenService) ParseToken(tokenStr string) (int64, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secretKey, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}
	return ownerFromClaims(claims)
}

// ownerFromClaims reads the numeric user_id claim, falling back to a
// decimal sub claim.
func ownerFromClaims(claims jwt.MapClaims) (int64, error) {
	if raw, ok := claims["user_id"].(float64); ok {
		ownerID := int64(raw)
		if ownerID <= 0 || float64(ownerID) != raw {
			return 0, fmt.Errorf("%w: invalid user_id", ErrInvalidToken)
		}
		return ownerID, nil
	}
	if sub, ok := claims["sub"].(string); ok {
		ownerID, err := strconv.ParseInt(sub, 10, 64)
		if err != nil || ownerID <= 0 {
			return 0, fmt.Errorf("%w: invalid sub", ErrInvalidToken)
		}
		return ownerID, nil
	}
	return 0, fmt.Errorf("%w: user_id missing", ErrInvalidToken)
}
