package store

import (
	"context"
	"sync"

	"rollcall/internal/directory/models"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
)

type memberKey struct {
	subject id.SubjectID
	org     id.OrgID
}

// InMemory is a map-backed Store for tests and local development.
type InMemory struct {
	mu          sync.RWMutex
	subjects    map[id.SubjectID]models.Subject
	memberships map[memberKey]models.Membership
}

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		subjects:    make(map[id.SubjectID]models.Subject),
		memberships: make(map[memberKey]models.Membership),
	}
}

func (s *InMemory) CreateSubject(_ context.Context, subject *models.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subjects[subject.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.subjects {
		if existing.Email == subject.Email {
			return sentinel.ErrConflict
		}
	}
	s.subjects[subject.ID] = *subject
	return nil
}

func (s *InMemory) FindSubject(_ context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subject, ok := s.subjects[subjectID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &subject, nil
}

func (s *InMemory) FindSubjectByEmail(_ context.Context, email string) (*models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, subject := range s.subjects {
		if subject.Email == email {
			found := subject
			return &found, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) CreateMembership(_ context.Context, membership *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey{subject: membership.SubjectID, org: membership.OrgID}
	if _, exists := s.memberships[key]; exists {
		return sentinel.ErrConflict
	}
	s.memberships[key] = *membership
	return nil
}

func (s *InMemory) FindMembership(_ context.Context, subjectID id.SubjectID, orgID id.OrgID) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	membership, ok := s.memberships[memberKey{subject: subjectID, org: orgID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &membership, nil
}

func (s *InMemory) HasMembership(_ context.Context, subjectID id.SubjectID, orgID id.OrgID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.memberships[memberKey{subject: subjectID, org: orgID}]
	return ok, nil
}

func (s *InMemory) ListMemberships(_ context.Context, orgID id.OrgID) ([]*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Membership
	for key, membership := range s.memberships {
		if key.org == orgID {
			m := membership
			out = append(out, &m)
		}
	}
	return out, nil
}
