package session

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// TokenManager signs and validates the cookie value carrying a session id, so
// a tampered cookie is rejected before the store is consulted.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a manager with the shared cookie-signing secret.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

type cookieClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Sign wraps a session id into a signed token.
func (tm *TokenManager) Sign(sessionID string) (string, error) {
	now := time.Now()
	claims := &cookieClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
}

// Parse validates a cookie value and returns the embedded session id.
func (tm *TokenManager) Parse(value string) (string, error) {
	parsed, err := jwt.ParseWithClaims(value, &cookieClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*cookieClaims)
	if !ok || !parsed.Valid || claims.SessionID == "" {
		return "", errors.New("invalid session token")
	}
	return claims.SessionID, nil
}
