package store

import (
	"fmt"
	"sync"

	"github.com/efreitasn/auctionsim/internal/domain"
)

// ShoutStore is the arena every shout of the trading day lives in.
// Books, reports and transactions hold shout ids; state changes go
// through the store exactly once and are seen by every index on lookup.
// Records are copied in and out so no caller can alias them.
type ShoutStore struct {
	mu           sync.RWMutex
	shouts       map[string]*domain.Shout
	bySpecialist map[string][]string // specialist_id → shout ids (arrival order)
}

// NewShoutStore creates an empty ShoutStore.
func NewShoutStore() *ShoutStore {
	return &ShoutStore{
		shouts:       make(map[string]*domain.Shout),
		bySpecialist: make(map[string][]string),
	}
}

// Create adds a shout to the arena. It returns domain.ErrDuplicateShout
// if the id is already in use.
func (s *ShoutStore) Create(sh *domain.Shout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shouts[sh.ID]; ok {
		return domain.ErrDuplicateShout
	}
	s.shouts[sh.ID] = sh.Clone()
	s.bySpecialist[sh.SpecialistID] = append(s.bySpecialist[sh.SpecialistID], sh.ID)
	return nil
}

// Get returns a copy of the shout. It returns domain.ErrShoutNotFound if
// the shout does not exist.
func (s *ShoutStore) Get(id string) (*domain.Shout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, ok := s.shouts[id]
	if !ok {
		return nil, domain.ErrShoutNotFound
	}
	return sh.Clone(), nil
}

// Transition moves a shout to the next state. Only placed shouts move.
func (s *ShoutStore) Transition(id string, next domain.ShoutState) (*domain.Shout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shouts[id]
	if !ok {
		return nil, domain.ErrShoutNotFound
	}
	if !sh.State.CanTransitionTo(next) {
		return nil, fmt.Errorf("shout %s %s -> %s: %w", id, sh.State, next, domain.ErrInvalidTransition)
	}
	sh.State = next
	return sh.Clone(), nil
}

// SetRemaining records the residual quantity of a partially filled shout.
func (s *ShoutStore) SetRemaining(id string, remaining int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shouts[id]
	if !ok {
		return domain.ErrShoutNotFound
	}
	sh.Remaining = remaining
	return nil
}

// ListBySpecialist returns copies of a specialist's shouts in arrival order.
func (s *ShoutStore) ListBySpecialist(specialistID string) []*domain.Shout {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bySpecialist[specialistID]
	result := make([]*domain.Shout, 0, len(ids))
	for _, id := range ids {
		if sh, ok := s.shouts[id]; ok {
			result = append(result, sh.Clone())
		}
	}
	return result
}

// RemoveBySpecialist drops every shout of a specialist. Used at day
// boundaries. Returns the number of shouts removed.
func (s *ShoutStore) RemoveBySpecialist(specialistID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.bySpecialist[specialistID]
	for _, id := range ids {
		delete(s.shouts, id)
	}
	delete(s.bySpecialist, specialistID)
	return len(ids)
}

// Len returns the number of shouts in the arena.
func (s *ShoutStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.shouts)
}
