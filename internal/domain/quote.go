package domain

import "math"

// Quote is the ask/bid pair a market currently announces. +Inf ask or
// -Inf bid means no quote is available on that side.
type Quote struct {
	Ask float64
	Bid float64
}

// NoQuote is the quote of an empty book.
var NoQuote = Quote{Ask: math.Inf(1), Bid: math.Inf(-1)}

// Mid returns the average of the ask and bid quotes.
func (q Quote) Mid() float64 {
	return (q.Ask + q.Bid) / 2
}

// Crossed reports whether the ask quote is below the bid quote.
func (q Quote) Crossed() bool {
	return q.Ask < q.Bid
}

// HasAsk reports whether an ask quote is available.
func (q Quote) HasAsk() bool {
	return !math.IsInf(q.Ask, 1)
}

// HasBid reports whether a bid quote is available.
func (q Quote) HasBid() bool {
	return !math.IsInf(q.Bid, -1)
}
