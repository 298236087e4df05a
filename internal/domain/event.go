package domain

// Event is anything published on the event engine.
type Event interface {
	isEvent()
}

// DayOpeningEvent starts a trading day. Day-scoped state resets on it.
type DayOpeningEvent struct {
	Day int
}

// DayClosedEvent ends a trading day.
type DayClosedEvent struct {
	Day int
}

// RoundOpenedEvent starts a round within a day.
type RoundOpenedEvent struct {
	Day   int
	Round int
}

// RoundClosingEvent is published when a round is about to close.
// Call markets clear on it.
type RoundClosingEvent struct {
	Day   int
	Round int
}

// ShoutPlacedEvent is published when a trader places a shout with a specialist.
type ShoutPlacedEvent struct {
	Shout        *Shout
	SpecialistID string
}

// ShoutPostedEvent is published once the shout rests on the book.
type ShoutPostedEvent struct {
	Shout *Shout
}

// ShoutWithdrawnEvent is published when a placed shout leaves the book.
type ShoutWithdrawnEvent struct {
	Shout *Shout
}

// TransactionPostedEvent is published for every transaction a clear produces.
type TransactionPostedEvent struct {
	Transaction *Transaction
	Ask         *Shout
	Bid         *Shout
}

// QuoteUpdatedEvent carries a market's quote after its book changed.
type QuoteUpdatedEvent struct {
	SpecialistID string
	Quote        Quote
}

// ClearedEvent is published after a clear that produced transactions.
type ClearedEvent struct {
	SpecialistID string
	Count        int
}

func (DayOpeningEvent) isEvent()        {}
func (DayClosedEvent) isEvent()         {}
func (RoundOpenedEvent) isEvent()       {}
func (RoundClosingEvent) isEvent()      {}
func (ShoutPlacedEvent) isEvent()       {}
func (ShoutPostedEvent) isEvent()       {}
func (ShoutWithdrawnEvent) isEvent()    {}
func (TransactionPostedEvent) isEvent() {}
func (QuoteUpdatedEvent) isEvent()      {}
func (ClearedEvent) isEvent()           {}
