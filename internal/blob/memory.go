package blob

import (
	"context"
	"sync"

	"rollcall/pkg/platform/sentinel"
)

type memoryBlob struct {
	data        []byte
	contentType string
}

// InMemory is a map-backed blob store for tests and local development.
type InMemory struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob

	// FailPuts makes every Put fail; tests use it to prove that a blob
	// write failure leaves the credential row untouched.
	FailPuts bool
}

// NewInMemory constructs an empty in-memory blob store.
func NewInMemory() *InMemory {
	return &InMemory{blobs: make(map[string]memoryBlob)}
}

func (s *InMemory) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPuts {
		return "", sentinel.ErrUnavailable
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[key] = memoryBlob{data: cp, contentType: contentType}
	return key, nil
}

func (s *InMemory) Get(_ context.Context, key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, "", sentinel.ErrNotFound
	}
	return b.data, b.contentType, nil
}

// Len reports how many blobs are stored. Test helper.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
