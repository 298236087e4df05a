package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/efreitasn/auctionsim/internal/domain"
)

func newTestShout(id, specialistID string, isBid bool, price float64) *domain.Shout {
	return &domain.Shout{
		ID:           id,
		TraderID:     "trader-1",
		SpecialistID: specialistID,
		IsBid:        isBid,
		Price:        price,
		Quantity:     1,
		Remaining:    1,
		State:        domain.ShoutStatePlaced,
	}
}

func TestShoutStore_Create_and_Get(t *testing.T) {
	s := NewShoutStore()

	if err := s.Create(newTestShout("s1", "m1", false, 30)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err := s.Get("s1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Price != 30 || got.SpecialistID != "m1" {
		t.Fatalf("unexpected shout %v", got)
	}
}

func TestShoutStore_Create_Duplicate(t *testing.T) {
	s := NewShoutStore()
	_ = s.Create(newTestShout("s1", "m1", false, 30))

	if err := s.Create(newTestShout("s1", "m1", true, 40)); err != domain.ErrDuplicateShout {
		t.Fatalf("expected ErrDuplicateShout, got %v", err)
	}
}

func TestShoutStore_Get_NotFound(t *testing.T) {
	s := NewShoutStore()

	if _, err := s.Get("nope"); err != domain.ErrShoutNotFound {
		t.Fatalf("expected ErrShoutNotFound, got %v", err)
	}
}

func TestShoutStore_Get_ReturnsCopy(t *testing.T) {
	s := NewShoutStore()
	_ = s.Create(newTestShout("s1", "m1", false, 30))

	got, _ := s.Get("s1")
	got.State = domain.ShoutStateMatched

	again, _ := s.Get("s1")
	if again.State != domain.ShoutStatePlaced {
		t.Fatalf("arena record was mutated through a copy: %s", again.State)
	}
}

func TestShoutStore_Transition(t *testing.T) {
	s := NewShoutStore()
	_ = s.Create(newTestShout("s1", "m1", false, 30))

	sh, err := s.Transition("s1", domain.ShoutStateMatched)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sh.State != domain.ShoutStateMatched {
		t.Fatalf("state = %s, want matched", sh.State)
	}

	// Matched is terminal.
	_, err = s.Transition("s1", domain.ShoutStateWithdrawn)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	_, err = s.Transition("s1", domain.ShoutStatePlaced)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestShoutStore_Transition_NotFound(t *testing.T) {
	s := NewShoutStore()
	if _, err := s.Transition("nope", domain.ShoutStateMatched); err != domain.ErrShoutNotFound {
		t.Fatalf("expected ErrShoutNotFound, got %v", err)
	}
}

func TestShoutStore_SetRemaining(t *testing.T) {
	s := NewShoutStore()
	_ = s.Create(newTestShout("s1", "m1", false, 30))

	if err := s.SetRemaining("s1", 0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got, _ := s.Get("s1")
	if got.Remaining != 0 {
		t.Fatalf("Remaining = %d, want 0", got.Remaining)
	}
	if err := s.SetRemaining("nope", 1); err != domain.ErrShoutNotFound {
		t.Fatalf("expected ErrShoutNotFound, got %v", err)
	}
}

func TestShoutStore_ListAndRemoveBySpecialist(t *testing.T) {
	s := NewShoutStore()
	for i := 0; i < 3; i++ {
		_ = s.Create(newTestShout(fmt.Sprintf("a%d", i), "m1", false, float64(i)))
	}
	_ = s.Create(newTestShout("b0", "m2", true, 10))

	list := s.ListBySpecialist("m1")
	if len(list) != 3 {
		t.Fatalf("expected 3 shouts, got %d", len(list))
	}
	for i, sh := range list {
		if sh.ID != fmt.Sprintf("a%d", i) {
			t.Fatalf("expected arrival order, got %s at %d", sh.ID, i)
		}
	}

	if n := s.RemoveBySpecialist("m1"); n != 3 {
		t.Fatalf("RemoveBySpecialist = %d, want 3", n)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	if _, err := s.Get("b0"); err != nil {
		t.Fatalf("m2 shout should survive, got %v", err)
	}
}

func TestShoutStore_ConcurrentTransitions(t *testing.T) {
	s := NewShoutStore()
	_ = s.Create(newTestShout("s1", "m1", false, 30))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Transition("s1", domain.ShoutStateMatched); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one successful transition, got %d", wins)
	}
}
