package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	directorymodels "rollcall/internal/directory/models"
	"rollcall/internal/invite/models"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
)

func newTestTicket(t *testing.T, orgID id.OrgID, email string) *models.Ticket {
	t.Helper()
	ticket, err := models.NewTicket(id.NewTicketID(), orgID, id.NewSubjectID(), directorymodels.RoleMember, email, time.Unix(1700000000, 0).UTC())
	require.NoError(t, err)
	return ticket
}

func TestInMemoryCreateEnforcesEmailUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	orgID := id.NewOrgID()

	require.NoError(t, s.Create(ctx, newTestTicket(t, orgID, "alice@example.com")))

	err := s.Create(ctx, newTestTicket(t, orgID, "alice@example.com"))
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	// Other orgs and link tickets are unconstrained.
	require.NoError(t, s.Create(ctx, newTestTicket(t, id.NewOrgID(), "alice@example.com")))
	require.NoError(t, s.Create(ctx, newTestTicket(t, orgID, "")))
	require.NoError(t, s.Create(ctx, newTestTicket(t, orgID, "")))
}

func TestInMemoryFindScopesByOrg(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	orgID := id.NewOrgID()
	ticket := newTestTicket(t, orgID, "alice@example.com")
	require.NoError(t, s.Create(ctx, ticket))

	found, err := s.Find(ctx, ticket.ID, orgID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, found.ID)

	_, err = s.Find(ctx, ticket.ID, id.NewOrgID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	found, err = s.FindByEmail(ctx, orgID, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, found.ID)

	_, err = s.FindByEmail(ctx, orgID, "bob@example.com")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryDeleteExpired(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	orgID := id.NewOrgID()

	stale := newTestTicket(t, orgID, "stale@example.com")
	fresh := newTestTicket(t, orgID, "fresh@example.com")
	fresh.ExpiresAt = stale.ExpiresAt.Add(time.Hour)
	require.NoError(t, s.Create(ctx, stale))
	require.NoError(t, s.Create(ctx, fresh))

	removed, err := s.DeleteExpired(ctx, stale.ExpiresAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Equal(t, 1, s.Len())

	_, err = s.Find(ctx, fresh.ID, orgID)
	require.NoError(t, err)

	// Delete is a no-op for absent tickets.
	require.NoError(t, s.Delete(ctx, stale.ID))
}
