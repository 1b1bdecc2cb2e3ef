//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	directorymodels "rollcall/internal/directory/models"
	directorystore "rollcall/internal/directory/store"
	"rollcall/internal/invite/models"
	"rollcall/internal/invite/store"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
	"rollcall/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres  *containers.PostgresContainer
	store     *store.PostgresStore
	subjects  *directorystore.PostgresStore
	inviterID id.SubjectID
	now       time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.subjects = directorystore.NewPostgres(s.postgres.DB)
	s.now = time.Unix(1700000000, 0).UTC()
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "scan_records", "credentials", "memberships", "invitation_tickets", "scan_sessions", "subjects")
	s.Require().NoError(err)

	subject, err := directorymodels.NewSubject(id.NewSubjectID(), "Inviter", uuid.NewString()+"@example.com", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.subjects.CreateSubject(ctx, subject))
	s.inviterID = subject.ID
}

func (s *PostgresStoreSuite) newTicket(orgID id.OrgID, email string) *models.Ticket {
	ticket, err := models.NewTicket(id.NewTicketID(), orgID, s.inviterID, directorymodels.RoleMember, email, s.now)
	s.Require().NoError(err)
	return ticket
}

func (s *PostgresStoreSuite) TestCreateEnforcesEmailUniqueness() {
	ctx := context.Background()
	orgID := id.NewOrgID()

	s.Require().NoError(s.store.Create(ctx, s.newTicket(orgID, "alice@example.com")))

	err := s.store.Create(ctx, s.newTicket(orgID, "alice@example.com"))
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	// The partial index leaves other orgs and link tickets unconstrained.
	s.Require().NoError(s.store.Create(ctx, s.newTicket(id.NewOrgID(), "alice@example.com")))
	s.Require().NoError(s.store.Create(ctx, s.newTicket(orgID, "")))
	s.Require().NoError(s.store.Create(ctx, s.newTicket(orgID, "")))
}

func (s *PostgresStoreSuite) TestFindScopesByOrg() {
	ctx := context.Background()
	orgID := id.NewOrgID()
	ticket := s.newTicket(orgID, "alice@example.com")
	ticket.TokenHash = ""
	s.Require().NoError(s.store.Create(ctx, ticket))

	found, err := s.store.Find(ctx, ticket.ID, orgID)
	s.Require().NoError(err)
	s.Equal(ticket.ID, found.ID)
	s.Equal("alice@example.com", found.Email)
	s.Empty(found.TokenHash)
	s.True(found.ExpiresAt.Equal(ticket.ExpiresAt))

	_, err = s.store.Find(ctx, ticket.ID, id.NewOrgID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	found, err = s.store.FindByEmail(ctx, orgID, "alice@example.com")
	s.Require().NoError(err)
	s.Equal(ticket.ID, found.ID)
}

func (s *PostgresStoreSuite) TestLinkTicketCarriesTokenHash() {
	ctx := context.Background()
	orgID := id.NewOrgID()
	ticket := s.newTicket(orgID, "")
	ticket.TokenHash = "bcrypt-hash"
	s.Require().NoError(s.store.Create(ctx, ticket))

	found, err := s.store.Find(ctx, ticket.ID, orgID)
	s.Require().NoError(err)
	s.True(found.IsLink())
	s.Equal("bcrypt-hash", found.TokenHash)
}

func (s *PostgresStoreSuite) TestDeleteExpired() {
	ctx := context.Background()
	orgID := id.NewOrgID()

	stale := s.newTicket(orgID, "stale@example.com")
	fresh := s.newTicket(orgID, "fresh@example.com")
	fresh.ExpiresAt = stale.ExpiresAt.Add(time.Hour)
	s.Require().NoError(s.store.Create(ctx, stale))
	s.Require().NoError(s.store.Create(ctx, fresh))

	// A sweep at exactly the stale expiry removes nothing: the boundary is
	// strict.
	removed, err := s.store.DeleteExpired(ctx, stale.ExpiresAt)
	s.Require().NoError(err)
	s.Zero(removed)

	removed, err = s.store.DeleteExpired(ctx, stale.ExpiresAt.Add(time.Second))
	s.Require().NoError(err)
	s.Equal(int64(1), removed)

	_, err = s.store.Find(ctx, stale.ID, orgID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.Find(ctx, fresh.ID, orgID)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Delete(ctx, stale.ID))
}

// TestConcurrentCreateSameEmail verifies the partial unique index admits
// exactly one live email-bound ticket per (org, email) under concurrency.
func (s *PostgresStoreSuite) TestConcurrentCreateSameEmail() {
	ctx := context.Background()
	orgID := id.NewOrgID()

	const goroutines = 20
	var wg sync.WaitGroup
	var created atomic.Int32
	var conflicts atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Create(ctx, s.newTicket(orgID, "race@example.com"))
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), created.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}
