package livebooks

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for missing, malformed or expired webhook tokens.
var ErrInvalidToken = errors.New("invalid webhook token")

// TokenService issues and validates HS256 bearer tokens for the completion
// webhook, so only the configured generator can finalize livebooks.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a webhook token service.
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// Generate creates a token the generator presents on its callback.
func (s *TokenService) Generate(ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   "livebook-generator",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and verifies a webhook token.
func (s *TokenService) Validate(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
