// Package store persists issued credentials, one row per subject.
package store

import (
	"context"

	"rollcall/internal/credential/models"
	id "rollcall/pkg/domain"
)

// Store is implemented by the PostgreSQL store and the in-memory store.
type Store interface {
	// Find returns the credential row for a subject, or sentinel.ErrNotFound.
	Find(ctx context.Context, subjectID id.SubjectID) (*models.Credential, error)

	// SaveIfExpired writes the credential, replacing an existing row only if
	// that row has expired as of the new credential's IssuedAt. When a
	// concurrent call wins the same replacement, sentinel.ErrConflict is
	// returned and the caller re-reads the winning row instead of erroring.
	SaveIfExpired(ctx context.Context, credential *models.Credential) error
}
