package store

import (
	"context"
	"sync"

	"rollcall/internal/credential/models"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
)

// InMemory is a map-backed Store for tests and local development.
type InMemory struct {
	mu          sync.Mutex
	credentials map[id.SubjectID]models.Credential
}

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{credentials: make(map[id.SubjectID]models.Credential)}
}

func (s *InMemory) Find(_ context.Context, subjectID id.SubjectID) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	credential, ok := s.credentials[subjectID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &credential, nil
}

func (s *InMemory) SaveIfExpired(_ context.Context, credential *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Same replacement boundary as the SQL upsert: a row whose expiry equals
	// the new credential's IssuedAt is replaceable.
	existing, ok := s.credentials[credential.SubjectID]
	if ok && credential.IssuedAt.Before(existing.ExpiresAt) {
		return sentinel.ErrConflict
	}
	s.credentials[credential.SubjectID] = *credential
	return nil
}
