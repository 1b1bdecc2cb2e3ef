package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	credentialmodels "rollcall/internal/credential/models"
	directorymodels "rollcall/internal/directory/models"
	directorystore "rollcall/internal/directory/store"
	"rollcall/internal/platform/middleware"
	"rollcall/internal/scan/service"
	"rollcall/internal/scan/store"
	"rollcall/internal/storage"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/requestcontext"
)

// payloadValidator maps opaque payload strings to credentials, standing in
// for the JWT codec.
type payloadValidator struct {
	credentials map[string]*credentialmodels.Credential
}

func (v *payloadValidator) Validate(_ context.Context, payload string) (*credentialmodels.Credential, error) {
	credential, ok := v.credentials[payload]
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "malformed credential")
	}
	return credential, nil
}

type ScanHandlerSuite struct {
	suite.Suite
	router    chi.Router
	directory *directorystore.InMemory
	validator *payloadValidator
	orgID     id.OrgID
	caller    id.SubjectID
	now       time.Time
	seq       int
}

func (s *ScanHandlerSuite) SetupTest() {
	s.directory = directorystore.NewInMemory()
	s.validator = &payloadValidator{credentials: make(map[string]*credentialmodels.Credential)}
	s.orgID = id.NewOrgID()
	s.now = time.Unix(1700000000, 0).UTC()
	s.seq = 0

	svc := service.New(store.NewInMemory(), storage.NewMemoryTx(), s.validator, s.directory)
	handler := New(svc, slog.Default())

	s.caller = s.newMember()

	s.router = chi.NewRouter()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), s.now)
			ctx = middleware.WithSubject(ctx, s.caller.String(), "caller@example.com")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	handler.Register(s.router)
}

func TestScanHandlerSuite(t *testing.T) {
	suite.Run(t, new(ScanHandlerSuite))
}

// newMember registers a subject, grants it membership, and binds a scannable
// payload named payload-N to it.
func (s *ScanHandlerSuite) newMember() id.SubjectID {
	s.seq++
	ctx := context.Background()
	subject, err := directorymodels.NewSubject(id.NewSubjectID(), fmt.Sprintf("Member %d", s.seq), fmt.Sprintf("member%d@example.com", s.seq), s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.directory.CreateSubject(ctx, subject))
	s.Require().NoError(s.directory.CreateMembership(ctx, &directorymodels.Membership{
		ID:        id.NewMembershipID(),
		SubjectID: subject.ID,
		OrgID:     s.orgID,
		Role:      directorymodels.RoleMember,
		CreatedAt: s.now,
	}))
	s.validator.credentials[fmt.Sprintf("payload-%d", s.seq)] = &credentialmodels.Credential{
		SubjectID: subject.ID,
		IssuedAt:  s.now,
		ExpiresAt: s.now.Add(credentialmodels.TTL),
	}
	return subject.ID
}

func (s *ScanHandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *ScanHandlerSuite) createSession() string {
	rec := s.do(http.MethodPost, "/scan-sessions", map[string]string{
		"org_id":  s.orgID.String(),
		"purpose": "standup",
	})
	s.Require().Equal(http.StatusCreated, rec.Code)
	var resp struct {
		ID string `json:"id"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ID
}

func (s *ScanHandlerSuite) TestSessionLifecycle() {
	sessionID := s.createSession()

	rec := s.do(http.MethodGet, "/scan-sessions/"+sessionID, nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"status":"active"`)

	rec = s.do(http.MethodPost, "/scan-sessions/"+sessionID+"/close", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"status":"closed"`)

	rec = s.do(http.MethodPost, "/scan-sessions/"+sessionID+"/close", nil)
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *ScanHandlerSuite) TestCreateSessionRejectsBadInput() {
	rec := s.do(http.MethodPost, "/scan-sessions", map[string]string{"org_id": "nope", "purpose": "standup"})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/scan-sessions", map[string]string{"org_id": s.orgID.String(), "purpose": ""})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
}

func (s *ScanHandlerSuite) TestRecordScanStatuses() {
	sessionID := s.createSession()

	rec := s.do(http.MethodPost, "/scan-sessions/"+sessionID+"/scans", map[string]string{"payload": "payload-1"})
	s.Equal(http.StatusCreated, rec.Code)
	s.Contains(rec.Body.String(), `"status":"recorded"`)

	rec = s.do(http.MethodPost, "/scan-sessions/"+sessionID+"/scans", map[string]string{"payload": "payload-1"})
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"status":"already_recorded"`)

	rec = s.do(http.MethodPost, "/scan-sessions/"+sessionID+"/scans", map[string]string{"payload": "unknown"})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodPost, "/scan-sessions/"+sessionID+"/scans", map[string]string{})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/scan-sessions/"+sessionID+"/scans", nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *ScanHandlerSuite) TestClaimReward() {
	sessionID := s.createSession()

	rec := s.do(http.MethodPost, "/scan-sessions/"+sessionID+"/claim", nil)
	s.Equal(http.StatusUnprocessableEntity, rec.Code, "claiming before quorum is rejected")

	s.newMember()
	s.do(http.MethodPost, "/scan-sessions/"+sessionID+"/scans", map[string]string{"payload": "payload-1"})
	s.do(http.MethodPost, "/scan-sessions/"+sessionID+"/scans", map[string]string{"payload": "payload-2"})

	rec = s.do(http.MethodPost, "/scan-sessions/"+sessionID+"/claim", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"already_claimed":false`)

	rec = s.do(http.MethodPost, "/scan-sessions/"+sessionID+"/claim", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"already_claimed":true`)
}

func (s *ScanHandlerSuite) TestUnknownSession() {
	rec := s.do(http.MethodGet, "/scan-sessions/"+id.NewSessionID().String(), nil)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/scan-sessions/not-a-uuid", nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}
