// Package store persists invitation tickets.
package store

import (
	"context"
	"time"

	"rollcall/internal/invite/models"
	id "rollcall/pkg/domain"
)

// Store is implemented by the PostgreSQL store and the in-memory store.
// Implementations return sentinel errors: ErrNotFound for missing rows,
// ErrConflict when the live (org, email) uniqueness constraint rejects an
// insert.
type Store interface {
	// Create inserts a ticket. For email-bound tickets the store enforces at
	// most one row per (org, email); sentinel.ErrConflict reports a loss.
	Create(ctx context.Context, ticket *models.Ticket) error

	// Find loads a ticket scoped to the organization; a ticket id presented
	// against the wrong organization is indistinguishable from absence.
	Find(ctx context.Context, ticketID id.TicketID, orgID id.OrgID) (*models.Ticket, error)

	FindByEmail(ctx context.Context, orgID id.OrgID, email string) (*models.Ticket, error)

	// Delete removes a ticket. Deleting an absent ticket is a no-op so
	// concurrent redemptions and sweeps never fail on cleanup.
	Delete(ctx context.Context, ticketID id.TicketID) error

	// DeleteExpired removes every ticket whose lifetime ended strictly before
	// now and reports how many went.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
