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
	"rollcall/internal/scan/models"
	"rollcall/internal/scan/store"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
	"rollcall/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	subjects *directorystore.PostgresStore
	now      time.Time
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
}

func (s *PostgresStoreSuite) newSubject() id.SubjectID {
	subject, err := directorymodels.NewSubject(id.NewSubjectID(), "Test Member", uuid.NewString()+"@example.com", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.subjects.CreateSubject(context.Background(), subject))
	return subject.ID
}

func (s *PostgresStoreSuite) newSession() *models.Session {
	session, err := models.NewSession(id.NewSessionID(), id.NewOrgID(), "standup", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateSession(context.Background(), session))
	return session
}

func (s *PostgresStoreSuite) TestSessionLifecycle() {
	ctx := context.Background()
	session := s.newSession()

	found, err := s.store.FindSession(ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(models.SessionStatusActive, found.Status)
	s.Nil(found.ClaimedAt)

	s.Require().NoError(s.store.CloseSession(ctx, session.ID))

	err = s.store.CloseSession(ctx, session.ID)
	s.Require().ErrorIs(err, sentinel.ErrInvalidState)

	err = s.store.CloseSession(ctx, id.NewSessionID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestRecordsRoundTrip() {
	ctx := context.Background()
	session := s.newSession()
	alice := s.newSubject()
	bob := s.newSubject()

	s.Require().NoError(s.store.InsertRecord(ctx, &models.Record{SessionID: session.ID, SubjectID: alice, ScannedAt: s.now}))
	s.Require().NoError(s.store.InsertRecord(ctx, &models.Record{SessionID: session.ID, SubjectID: bob, ScannedAt: s.now.Add(time.Second)}))

	err := s.store.InsertRecord(ctx, &models.Record{SessionID: session.ID, SubjectID: alice, ScannedAt: s.now.Add(time.Minute)})
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	records, err := s.store.ListRecords(ctx, session.ID)
	s.Require().NoError(err)
	s.Len(records, 2)
	s.Equal(alice, records[0].SubjectID, "records are ordered by scan time")

	count, err := s.store.CountDistinctSubjects(ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(2, count)
}

// TestConcurrentInsertRecord verifies that the (session, subject) primary key
// admits exactly one record per pair under concurrency.
func (s *PostgresStoreSuite) TestConcurrentInsertRecord() {
	ctx := context.Background()
	session := s.newSession()
	subjectID := s.newSubject()

	const goroutines = 50
	var wg sync.WaitGroup
	var inserted atomic.Int32
	var conflicts atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.InsertRecord(ctx, &models.Record{SessionID: session.ID, SubjectID: subjectID, ScannedAt: s.now})
			switch {
			case err == nil:
				inserted.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), inserted.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

// TestConcurrentMarkClaimed verifies that racing claims converge on the first
// writer's timestamp.
func (s *PostgresStoreSuite) TestConcurrentMarkClaimed() {
	ctx := context.Background()
	session := s.newSession()

	const goroutines = 20
	var wg sync.WaitGroup
	var fresh atomic.Int32
	stamps := make([]time.Time, goroutines)
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			claimedAt, already, err := s.store.MarkClaimed(ctx, session.ID, s.now.Add(time.Duration(idx)*time.Millisecond))
			if err != nil {
				errs[idx] = err
				return
			}
			stamps[idx] = claimedAt
			if !already {
				fresh.Add(1)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		s.Require().NoError(errs[i])
		s.True(stamps[i].Equal(stamps[0]), "every claimer should observe the same stamp")
	}
	s.Equal(int32(1), fresh.Load())
}
