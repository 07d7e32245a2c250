package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenClaims are the registered claims carried by a bearer token.
type TokenClaims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ParseTokenClaims decodes a JWT's registered claims without verifying the
// signature. The backend remains the only authority on token validity.
func ParseTokenClaims(token string) (*TokenClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token claims: %w", err)
	}

	out := &TokenClaims{Subject: claims.Subject}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
