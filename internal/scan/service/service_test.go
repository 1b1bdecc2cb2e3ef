package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	credentialmodels "rollcall/internal/credential/models"
	directorymodels "rollcall/internal/directory/models"
	directorystore "rollcall/internal/directory/store"
	"rollcall/internal/history"
	"rollcall/internal/scan/models"
	"rollcall/internal/scan/store"
	"rollcall/internal/storage"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/requestcontext"
)

// stubValidator resolves payloads from a fixed table the way the credential
// issuer would, including the strict expiry boundary.
type stubValidator struct {
	mu          sync.Mutex
	credentials map[string]*credentialmodels.Credential
}

func newStubValidator() *stubValidator {
	return &stubValidator{credentials: make(map[string]*credentialmodels.Credential)}
}

func (v *stubValidator) add(payload string, credential *credentialmodels.Credential) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.credentials[payload] = credential
}

func (v *stubValidator) Validate(ctx context.Context, payload string) (*credentialmodels.Credential, error) {
	v.mu.Lock()
	credential, ok := v.credentials[payload]
	v.mu.Unlock()
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "malformed credential")
	}
	if credential.Expired(requestcontext.Now(ctx)) {
		return nil, dErrors.New(dErrors.CodeExpired, "credential expired")
	}
	return credential, nil
}

type ScanServiceSuite struct {
	suite.Suite
	store     *store.InMemory
	directory *directorystore.InMemory
	validator *stubValidator
	recorder  *history.InMemory
	service   *Service
	orgID     id.OrgID
	now       time.Time
	seq       int
}

func (s *ScanServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.directory = directorystore.NewInMemory()
	s.validator = newStubValidator()
	s.recorder = history.NewInMemory()
	s.service = New(
		s.store,
		storage.NewMemoryTx(),
		s.validator,
		s.directory,
		WithHistoryRecorder(s.recorder),
	)
	s.orgID = id.NewOrgID()
	s.now = time.Unix(1700000000, 0).UTC()
	s.seq = 0
}

func TestScanServiceSuite(t *testing.T) {
	suite.Run(t, new(ScanServiceSuite))
}

func (s *ScanServiceSuite) ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

// newMember registers a subject with a membership in the suite org and a live
// credential payload the stub validator recognizes.
func (s *ScanServiceSuite) newMember() (id.SubjectID, string) {
	s.seq++
	subjectID := id.NewSubjectID()
	ctx := context.Background()

	subject, err := directorymodels.NewSubject(subjectID, "Member", fmt.Sprintf("member%d@example.com", s.seq), s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.directory.CreateSubject(ctx, subject))
	s.Require().NoError(s.directory.CreateMembership(ctx, &directorymodels.Membership{
		ID:        id.NewMembershipID(),
		SubjectID: subjectID,
		OrgID:     s.orgID,
		Role:      directorymodels.RoleMember,
		CreatedAt: s.now,
	}))

	payload := fmt.Sprintf("payload-%d", s.seq)
	s.validator.add(payload, &credentialmodels.Credential{
		SubjectID: subjectID,
		IssuedAt:  s.now,
		ExpiresAt: s.now.Add(credentialmodels.TTL),
		Token:     payload,
	})
	return subjectID, payload
}

func (s *ScanServiceSuite) newSession() *models.Session {
	session, err := s.service.CreateSession(s.ctxAt(s.now), s.orgID, "standup")
	s.Require().NoError(err)
	return session
}

func (s *ScanServiceSuite) TestCreateSession() {
	s.Run("creates an active session", func() {
		session := s.newSession()
		s.Equal(models.SessionStatusActive, session.Status)
		s.Equal(s.orgID, session.OrgID)
		s.Nil(session.ClaimedAt)
	})

	s.Run("rejects an empty purpose", func() {
		_, err := s.service.CreateSession(s.ctxAt(s.now), s.orgID, "  ")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects a nil org", func() {
		_, err := s.service.CreateSession(s.ctxAt(s.now), id.OrgID{}, "standup")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ScanServiceSuite) TestCloseSession() {
	s.Run("closes an active session", func() {
		session := s.newSession()
		closed, err := s.service.CloseSession(s.ctxAt(s.now), session.ID)
		s.Require().NoError(err)
		s.Equal(models.SessionStatusClosed, closed.Status)
	})

	s.Run("closing twice is a conflict", func() {
		session := s.newSession()
		_, err := s.service.CloseSession(s.ctxAt(s.now), session.ID)
		s.Require().NoError(err)

		_, err = s.service.CloseSession(s.ctxAt(s.now), session.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown session is not found", func() {
		_, err := s.service.CloseSession(s.ctxAt(s.now), id.NewSessionID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ScanServiceSuite) TestRecordScan() {
	s.Run("records a fresh scan", func() {
		session := s.newSession()
		subjectID, payload := s.newMember()

		outcome, err := s.service.RecordScan(s.ctxAt(s.now), session.ID, payload)
		s.Require().NoError(err)
		s.Equal(models.OutcomeRecorded, outcome.Status)
		s.Equal(subjectID, outcome.Record.SubjectID)
		s.Equal(s.now, outcome.Record.ScannedAt)
	})

	s.Run("repeat scans fold into AlreadyRecorded with the original record", func() {
		session := s.newSession()
		_, payload := s.newMember()

		first, err := s.service.RecordScan(s.ctxAt(s.now), session.ID, payload)
		s.Require().NoError(err)

		second, err := s.service.RecordScan(s.ctxAt(s.now.Add(time.Minute)), session.ID, payload)
		s.Require().NoError(err)
		s.Equal(models.OutcomeAlreadyRecorded, second.Status)
		s.Equal(first.Record.ScannedAt, second.Record.ScannedAt)
	})

	s.Run("unknown session is not found", func() {
		_, payload := s.newMember()
		_, err := s.service.RecordScan(s.ctxAt(s.now), id.NewSessionID(), payload)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("closed session rejects scans", func() {
		session := s.newSession()
		_, payload := s.newMember()
		_, err := s.service.CloseSession(s.ctxAt(s.now), session.ID)
		s.Require().NoError(err)

		_, err = s.service.RecordScan(s.ctxAt(s.now), session.ID, payload)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("credential errors propagate unchanged", func() {
		session := s.newSession()
		_, err := s.service.RecordScan(s.ctxAt(s.now), session.ID, "garbage")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("expired credential is rejected", func() {
		session := s.newSession()
		_, payload := s.newMember()

		late := s.now.Add(credentialmodels.TTL + time.Second)
		_, err := s.service.RecordScan(s.ctxAt(late), session.ID, payload)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeExpired))
	})

	s.Run("non-members of the session org are rejected", func() {
		session := s.newSession()

		// Subject exists with a live credential but no membership in this org.
		outsider := id.NewSubjectID()
		s.validator.add("outsider-payload", &credentialmodels.Credential{
			SubjectID: outsider,
			IssuedAt:  s.now,
			ExpiresAt: s.now.Add(credentialmodels.TTL),
			Token:     "outsider-payload",
		})

		_, err := s.service.RecordScan(s.ctxAt(s.now), session.ID, "outsider-payload")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("fresh scans land in the history feed, repeats do not", func() {
		session := s.newSession()
		subjectID, payload := s.newMember()

		before := len(s.recorder.Events())
		_, err := s.service.RecordScan(s.ctxAt(s.now), session.ID, payload)
		s.Require().NoError(err)
		_, err = s.service.RecordScan(s.ctxAt(s.now), session.ID, payload)
		s.Require().NoError(err)

		events := s.recorder.Events()[before:]
		s.Require().Len(events, 1)
		s.Equal(history.KindScanRecorded, events[0].Kind)
		s.Equal(subjectID, events[0].SubjectID)
	})
}

// TestConcurrentScans verifies that N racing scans of the same credential
// produce exactly one Recorded outcome.
func (s *ScanServiceSuite) TestConcurrentScans() {
	session := s.newSession()
	_, payload := s.newMember()
	const goroutines = 20
	ctx := s.ctxAt(s.now)

	var wg sync.WaitGroup
	var mu sync.Mutex
	recorded := 0
	already := 0
	errs := make([]error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			outcome, err := s.service.RecordScan(ctx, session.ID, payload)
			if err != nil {
				errs[idx] = err
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch outcome.Status {
			case models.OutcomeRecorded:
				recorded++
			case models.OutcomeAlreadyRecorded:
				already++
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		s.Require().NoError(err)
	}
	s.Equal(1, recorded, "exactly one scan should win")
	s.Equal(goroutines-1, already)

	records, err := s.service.ListRecords(ctx, session.ID)
	s.Require().NoError(err)
	s.Len(records, 1)
}

func (s *ScanServiceSuite) TestClaimReward() {
	s.Run("below quorum the claim is rejected", func() {
		session := s.newSession()
		claimant, payload := s.newMember()

		_, err := s.service.RecordScan(s.ctxAt(s.now), session.ID, payload)
		s.Require().NoError(err)

		_, err = s.service.ClaimReward(s.ctxAt(s.now), session.ID, claimant)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("at quorum the claim succeeds and the session stays active", func() {
		session := s.newSession()
		claimant, payload1 := s.newMember()
		_, payload2 := s.newMember()

		_, err := s.service.RecordScan(s.ctxAt(s.now), session.ID, payload1)
		s.Require().NoError(err)
		_, err = s.service.RecordScan(s.ctxAt(s.now), session.ID, payload2)
		s.Require().NoError(err)

		result, err := s.service.ClaimReward(s.ctxAt(s.now), session.ID, claimant)
		s.Require().NoError(err)
		s.False(result.AlreadyClaimed)
		s.Equal(models.Quorum, result.DistinctSubjects)
		s.Equal(s.now, result.ClaimedAt)

		current, err := s.service.GetSession(s.ctxAt(s.now), session.ID)
		s.Require().NoError(err)
		s.True(current.IsActive(), "claiming must not close the session")
	})

	s.Run("repeat claims succeed idempotently with the original stamp", func() {
		session := s.newSession()
		claimant, payload1 := s.newMember()
		_, payload2 := s.newMember()

		_, err := s.service.RecordScan(s.ctxAt(s.now), session.ID, payload1)
		s.Require().NoError(err)
		_, err = s.service.RecordScan(s.ctxAt(s.now), session.ID, payload2)
		s.Require().NoError(err)

		first, err := s.service.ClaimReward(s.ctxAt(s.now), session.ID, claimant)
		s.Require().NoError(err)

		second, err := s.service.ClaimReward(s.ctxAt(s.now.Add(time.Hour)), session.ID, claimant)
		s.Require().NoError(err)
		s.True(second.AlreadyClaimed)
		s.Equal(first.ClaimedAt, second.ClaimedAt)
	})

	s.Run("non-members cannot claim", func() {
		session := s.newSession()
		_, payload1 := s.newMember()
		_, payload2 := s.newMember()

		_, err := s.service.RecordScan(s.ctxAt(s.now), session.ID, payload1)
		s.Require().NoError(err)
		_, err = s.service.RecordScan(s.ctxAt(s.now), session.ID, payload2)
		s.Require().NoError(err)

		_, err = s.service.ClaimReward(s.ctxAt(s.now), session.ID, id.NewSubjectID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
