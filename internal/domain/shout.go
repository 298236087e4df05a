package domain

import (
	"fmt"
	"math"
	"time"
)

// ShoutState represents the lifecycle state of a shout.
type ShoutState string

const (
	ShoutStatePlaced    ShoutState = "placed"
	ShoutStateMatched   ShoutState = "matched"
	ShoutStateWithdrawn ShoutState = "withdrawn"
	ShoutStateRejected  ShoutState = "rejected"
)

// CanTransitionTo reports whether a shout in state s may move to next.
// Only placed shouts move, and never back to placed.
func (s ShoutState) CanTransitionTo(next ShoutState) bool {
	if s != ShoutStatePlaced {
		return false
	}
	switch next {
	case ShoutStateMatched, ShoutStateWithdrawn, ShoutStateRejected:
		return true
	}
	return false
}

// Shout is a single ask or bid submitted by a trader to a specialist.
type Shout struct {
	ID           string
	ParentID     string // set on the matched slice of a partially filled shout
	TraderID     string
	SpecialistID string
	IsBid        bool
	Price        float64
	Quantity     int64
	Remaining    int64
	State        ShoutState
	PlacedAt     time.Time
}

// Side returns "bid" or "ask".
func (s *Shout) Side() string {
	if s.IsBid {
		return "bid"
	}
	return "ask"
}

// IsMatched reports whether the shout has been matched.
func (s *Shout) IsMatched() bool {
	return s.State == ShoutStateMatched
}

// Validate checks the fields a trader controls.
func (s *Shout) Validate() error {
	if s.Quantity <= 0 {
		return &ValidationError{Message: "quantity must be a positive integer"}
	}
	if math.IsNaN(s.Price) || math.IsInf(s.Price, 0) {
		return &ValidationError{Message: "price must be a finite number"}
	}
	return nil
}

// Clone returns a copy of the shout that can be handed out without
// exposing the arena's record.
func (s *Shout) Clone() *Shout {
	c := *s
	return &c
}

func (s *Shout) String() string {
	return fmt.Sprintf("%s %s %d@%g (%s)", s.ID, s.Side(), s.Quantity, s.Price, s.State)
}
