// Package auth validates bearer tokens minted by the external identity
// provider. The provider signs HS256 with a key shared out of band; this core
// never issues identity tokens itself.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"rollcall/internal/platform/middleware"
)

// HS256Validator verifies identity-provider tokens with a shared secret.
type HS256Validator struct {
	key []byte
}

// NewHS256Validator constructs a validator over the shared signing key.
func NewHS256Validator(key string) *HS256Validator {
	return &HS256Validator{key: []byte(key)}
}

type identityClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ValidateToken verifies the token's signature and expiry and extracts the
// authenticated subject.
func (v *HS256Validator) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &identityClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid identity token: %w", err)
	}
	claims, ok := parsed.Claims.(*identityClaims)
	if !ok || claims.Subject == "" {
		return nil, fmt.Errorf("identity token is missing a subject")
	}
	return &middleware.JWTClaims{SubjectID: claims.Subject, Email: claims.Email}, nil
}
