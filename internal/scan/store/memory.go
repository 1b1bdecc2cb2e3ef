package store

import (
	"context"
	"sync"
	"time"

	"rollcall/internal/scan/models"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
)

type recordKey struct {
	session id.SessionID
	subject id.SubjectID
}

// InMemory is a map-backed Store for tests and local development.
type InMemory struct {
	mu       sync.Mutex
	sessions map[id.SessionID]models.Session
	records  map[recordKey]models.Record
}

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		sessions: make(map[id.SessionID]models.Session),
		records:  make(map[recordKey]models.Record),
	}
}

func (s *InMemory) CreateSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return sentinel.ErrConflict
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *InMemory) FindSession(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if session.ClaimedAt != nil {
		claimedAt := *session.ClaimedAt
		session.ClaimedAt = &claimedAt
	}
	return &session, nil
}

func (s *InMemory) CloseSession(_ context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if session.Status == models.SessionStatusClosed {
		return sentinel.ErrInvalidState
	}
	session.Status = models.SessionStatusClosed
	s.sessions[sessionID] = session
	return nil
}

func (s *InMemory) InsertRecord(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey{session: record.SessionID, subject: record.SubjectID}
	if _, exists := s.records[key]; exists {
		return sentinel.ErrConflict
	}
	s.records[key] = *record
	return nil
}

func (s *InMemory) FindRecord(_ context.Context, sessionID id.SessionID, subjectID id.SubjectID) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[recordKey{session: sessionID, subject: subjectID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &record, nil
}

func (s *InMemory) ListRecords(_ context.Context, sessionID id.SessionID) ([]*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Record
	for key, record := range s.records {
		if key.session == sessionID {
			r := record
			out = append(out, &r)
		}
	}
	return out, nil
}

func (s *InMemory) CountDistinctSubjects(_ context.Context, sessionID id.SessionID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for key := range s.records {
		if key.session == sessionID {
			count++
		}
	}
	return count, nil
}

func (s *InMemory) MarkClaimed(_ context.Context, sessionID id.SessionID, now time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return time.Time{}, false, sentinel.ErrNotFound
	}
	if session.ClaimedAt != nil {
		return *session.ClaimedAt, true, nil
	}
	session.ClaimedAt = &now
	s.sessions[sessionID] = session
	return now, false, nil
}
