// Package store persists subjects and memberships.
package store

import (
	"context"

	"rollcall/internal/directory/models"
	id "rollcall/pkg/domain"
)

// Store is implemented by the PostgreSQL store and the in-memory store.
// Implementations return sentinel errors: ErrNotFound for missing rows,
// ErrConflict when a unique constraint rejects a write.
type Store interface {
	CreateSubject(ctx context.Context, subject *models.Subject) error
	FindSubject(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error)
	FindSubjectByEmail(ctx context.Context, email string) (*models.Subject, error)

	// CreateMembership inserts a membership row. A sentinel.ErrConflict return
	// means another call already granted membership for the same
	// (subject, org) pair; callers fold that into their idempotent outcome.
	CreateMembership(ctx context.Context, membership *models.Membership) error
	FindMembership(ctx context.Context, subjectID id.SubjectID, orgID id.OrgID) (*models.Membership, error)
	HasMembership(ctx context.Context, subjectID id.SubjectID, orgID id.OrgID) (bool, error)
	ListMemberships(ctx context.Context, orgID id.OrgID) ([]*models.Membership, error)
}
