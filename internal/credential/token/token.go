// Package token signs and parses the credential wire payload. The payload is
// a compact JWT carrying exactly the subject, issue instant, and expiry; the
// QR image a member shows is this token rendered as a scannable code.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"rollcall/internal/credential/models"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
)

// Codec signs and verifies credential payloads with a shared HMAC key.
type Codec struct {
	key []byte
}

// NewCodec constructs a Codec around the signing key.
func NewCodec(key string) *Codec {
	return &Codec{key: []byte(key)}
}

// Sign produces the wire token for a subject with the given validity window.
func (c *Codec) Sign(subjectID id.SubjectID, issuedAt, expiresAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subjectID.String(),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign credential payload: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and shape of a wire token and returns its
// payload. Expiry is NOT checked here: the issuer applies the strict expiry
// boundary itself so that validity at exactly ExpiresAt is honoured, and so
// expiry surfaces as its own error distinct from malformed input.
func (c *Codec) Parse(tokenString string) (models.Payload, error) {
	if tokenString == "" {
		return models.Payload{}, dErrors.New(dErrors.CodeValidation, "malformed credential: empty payload")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.key, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return models.Payload{}, dErrors.Wrap(err, dErrors.CodeValidation, "malformed credential")
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return models.Payload{}, dErrors.New(dErrors.CodeValidation, "malformed credential: missing claims")
	}
	subjectID, err := id.ParseSubjectID(claims.Subject)
	if err != nil {
		return models.Payload{}, dErrors.New(dErrors.CodeValidation, "malformed credential: bad subject")
	}
	return models.Payload{
		SubjectID: subjectID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
