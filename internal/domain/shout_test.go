package domain

import (
	"errors"
	"math"
	"testing"
)

func TestShoutState_CanTransitionTo(t *testing.T) {
	legal := []ShoutState{ShoutStateMatched, ShoutStateWithdrawn, ShoutStateRejected}
	for _, next := range legal {
		if !ShoutStatePlaced.CanTransitionTo(next) {
			t.Errorf("placed -> %s should be legal", next)
		}
	}
	if ShoutStatePlaced.CanTransitionTo(ShoutStatePlaced) {
		t.Error("placed -> placed should be illegal")
	}
	for _, from := range legal {
		for _, next := range []ShoutState{ShoutStatePlaced, ShoutStateMatched, ShoutStateWithdrawn, ShoutStateRejected} {
			if from.CanTransitionTo(next) {
				t.Errorf("%s -> %s should be illegal", from, next)
			}
		}
	}
}

func TestShout_Validate(t *testing.T) {
	ok := &Shout{Price: 10, Quantity: 1}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	// Negative prices are legal in this market.
	neg := &Shout{Price: -3, Quantity: 2}
	if err := neg.Validate(); err != nil {
		t.Fatalf("Validate() negative price = %v, want nil", err)
	}

	cases := []*Shout{
		{Price: 10, Quantity: 0},
		{Price: 10, Quantity: -1},
		{Price: math.NaN(), Quantity: 1},
		{Price: math.Inf(1), Quantity: 1},
	}
	for _, s := range cases {
		err := s.Validate()
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("Validate(%v) = %v, want *ValidationError", s, err)
		}
	}
}

func TestShout_Side(t *testing.T) {
	if (&Shout{IsBid: true}).Side() != "bid" {
		t.Error("bid shout should report side bid")
	}
	if (&Shout{}).Side() != "ask" {
		t.Error("ask shout should report side ask")
	}
}

func TestShout_CloneIsIndependent(t *testing.T) {
	s := &Shout{ID: "s1", State: ShoutStatePlaced}
	c := s.Clone()
	c.State = ShoutStateMatched
	if s.State != ShoutStatePlaced {
		t.Errorf("original state = %s, want placed", s.State)
	}
}
