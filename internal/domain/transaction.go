package domain

import (
	"fmt"
	"time"
)

// Transaction is a cleared trade between one ask and one bid.
// It refers to both shouts by id.
type Transaction struct {
	ID           string
	SpecialistID string
	AskID        string
	BidID        string
	Price        float64
	Quantity     int64
	Day          int
	Round        int
	ExecutedAt   time.Time
}

// NewTransaction builds a transaction between ask and bid. Both shouts must
// be matched and distinct; anything else is a defect in the clearing code.
func NewTransaction(id string, ask, bid *Shout, price float64, quantity int64) *Transaction {
	if ask.ID == bid.ID {
		panic(fmt.Sprintf("transaction %s references shout %s on both sides", id, ask.ID))
	}
	if ask.IsBid || !bid.IsBid {
		panic(fmt.Sprintf("transaction %s pairs %s with %s", id, ask.Side(), bid.Side()))
	}
	if !ask.IsMatched() || !bid.IsMatched() {
		panic(fmt.Sprintf("transaction %s built from unmatched shouts %s/%s", id, ask.State, bid.State))
	}
	return &Transaction{
		ID:           id,
		SpecialistID: ask.SpecialistID,
		AskID:        ask.ID,
		BidID:        bid.ID,
		Price:        price,
		Quantity:     quantity,
		ExecutedAt:   time.Now(),
	}
}
