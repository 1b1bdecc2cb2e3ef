package store

import (
	"context"
	"sync"
	"time"

	"rollcall/internal/invite/models"
	id "rollcall/pkg/domain"
	"rollcall/pkg/platform/sentinel"
)

// InMemory is a map-backed Store for tests and local development.
type InMemory struct {
	mu      sync.Mutex
	tickets map[id.TicketID]models.Ticket
}

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{tickets: make(map[id.TicketID]models.Ticket)}
}

func (s *InMemory) Create(_ context.Context, ticket *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tickets[ticket.ID]; exists {
		return sentinel.ErrConflict
	}
	if ticket.Email != "" {
		for _, existing := range s.tickets {
			if existing.OrgID == ticket.OrgID && existing.Email == ticket.Email {
				return sentinel.ErrConflict
			}
		}
	}
	s.tickets[ticket.ID] = *ticket
	return nil
}

func (s *InMemory) Find(_ context.Context, ticketID id.TicketID, orgID id.OrgID) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok || ticket.OrgID != orgID {
		return nil, sentinel.ErrNotFound
	}
	return &ticket, nil
}

func (s *InMemory) FindByEmail(_ context.Context, orgID id.OrgID, email string) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ticket := range s.tickets {
		if ticket.OrgID == orgID && ticket.Email == email {
			found := ticket
			return &found, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) Delete(_ context.Context, ticketID id.TicketID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tickets, ticketID)
	return nil
}

func (s *InMemory) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for ticketID, ticket := range s.tickets {
		if ticket.Expired(now) {
			delete(s.tickets, ticketID)
			removed++
		}
	}
	return removed, nil
}

// Len reports how many tickets remain, for sweep assertions in tests.
func (s *InMemory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}
