package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// JWTValidator defines the interface for validating bearer tokens issued by
// the external identity provider. Authorization (is this subject allowed to
// act on this organization) is the caller's responsibility; this core only
// needs the authenticated identity.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the identity provider.
type JWTClaims struct {
	SubjectID string
	Email     string
}

type contextKeySubjectID struct{}
type contextKeySubjectEmail struct{}

var (
	ContextKeySubjectID    = contextKeySubjectID{}
	ContextKeySubjectEmail = contextKeySubjectEmail{}
)

// GetSubjectID retrieves the authenticated subject ID from the context.
func GetSubjectID(ctx context.Context) string {
	subjectID, ok := ctx.Value(ContextKeySubjectID).(string)
	if !ok {
		return ""
	}
	return subjectID
}

// GetSubjectEmail retrieves the authenticated subject's email from the context.
func GetSubjectEmail(ctx context.Context) string {
	email, ok := ctx.Value(ContextKeySubjectEmail).(string)
	if !ok {
		return ""
	}
	return email
}

// WithSubject injects an authenticated subject into the context. Used by
// handler tests that bypass the HTTP auth chain.
func WithSubject(ctx context.Context, subjectID, email string) context.Context {
	ctx = context.WithValue(ctx, ContextKeySubjectID, subjectID)
	return context.WithValue(ctx, ContextKeySubjectEmail, email)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// authenticated identity in the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				unauthorized(w)
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
				)
				unauthorized(w)
				return
			}
			ctx := r.Context()
			ctx = context.WithValue(ctx, ContextKeySubjectID, claims.SubjectID)
			ctx = context.WithValue(ctx, ContextKeySubjectEmail, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"Invalid or expired token"}`))
}
