package blob

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "rollcall/pkg/domain-errors"
)

// URLSigner mints and verifies short-lived access tokens for blob keys. A
// signed URL is the only way the image endpoint will serve a blob; the token
// binds the key and an expiry, nothing else.
type URLSigner struct {
	key      []byte
	basePath string
}

// NewURLSigner constructs a signer. basePath is the route prefix the image
// handler is mounted at, e.g. "/credentials/images".
func NewURLSigner(key string, basePath string) *URLSigner {
	return &URLSigner{key: []byte(key), basePath: basePath}
}

type urlClaims struct {
	Key string `json:"key"`
	jwt.RegisteredClaims
}

// SignedURL returns a relative URL granting access to key for ttl.
func (s *URLSigner) SignedURL(key string, ttl time.Duration, now time.Time) (string, error) {
	claims := urlClaims{
		Key: key,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign blob url: %w", err)
	}
	return fmt.Sprintf("%s/%s?token=%s", s.basePath, key, token), nil
}

// Verify checks a URL token and returns the blob key it grants access to.
// Expiry uses the same strict boundary as credentials: a token is valid
// through its expiry instant and invalid after it.
func (s *URLSigner) Verify(tokenString string, now time.Time) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &urlClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid blob token")
	}
	claims, ok := parsed.Claims.(*urlClaims)
	if !ok || claims.Key == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid blob token")
	}
	if claims.ExpiresAt == nil || now.After(claims.ExpiresAt.Time) {
		return "", dErrors.New(dErrors.CodeExpired, "blob token expired")
	}
	return claims.Key, nil
}
