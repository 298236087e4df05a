// Package report keeps the historical record of one market's trading day
// and answers the price-threshold counting queries traders ask every
// round.
package report

import (
	"log/slog"
	"math"
	"sync"

	"github.com/efreitasn/auctionsim/internal/domain"
	"github.com/efreitasn/auctionsim/internal/events"
)

// DailyStats summarises one market's trading day. Ratios are NaN when
// undefined.
type DailyStats struct {
	SpecialistID string
	Day          int
	Shouts       int
	Asks         int
	Bids         int
	Withdrawn    int
	Transactions int
	Volume       int64
	MeanPrice    float64
	TradeRate    float64 // fraction of recorded shouts that fully transacted
}

type boundary struct {
	id    string
	price float64
	ok    bool
}

// HistoricalReport records every shout placed and every transaction posted
// in one market during the current day.
//
// A shout counts as matched once its whole quantity has transacted. The
// matched slices of a partially filled shout are credited to the placed
// shout they were split from and never counted on their own.
type HistoricalReport struct {
	specialistID string
	channel      any
	bus          *events.Engine
	logger       *slog.Logger

	mu           sync.Mutex
	asks         *Accelerator
	bids         *Accelerator
	shouts       map[string]*domain.Shout
	order        []string
	withdrawn    map[string]bool
	filled       map[string]int64
	transactions []*domain.Transaction
	lowestAsk    boundary
	highestBid   boundary
	day          int
	placed       int
	volume       int64
	priceSum     float64
	handles      []checkIn
}

type checkIn struct {
	key    any
	handle events.Handle
}

// NewHistoricalReport creates a report for the market publishing on
// channel. Call Start to subscribe it.
func NewHistoricalReport(specialistID string, channel any, bus *events.Engine, logger *slog.Logger) *HistoricalReport {
	if logger == nil {
		logger = slog.Default()
	}
	r := &HistoricalReport{
		specialistID: specialistID,
		channel:      channel,
		bus:          bus,
		logger:       logger.With(slog.String("component", "report"), slog.String("specialist_id", specialistID)),
		asks:         NewAccelerator(),
		bids:         NewAccelerator(),
	}
	r.resetLocked()
	return r
}

// SpecialistID returns the market the report follows.
func (r *HistoricalReport) SpecialistID() string { return r.specialistID }

// Start checks the report in on its market's channel and the global
// channel.
func (r *HistoricalReport) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range []any{r.channel, events.Global} {
		if h := r.bus.CheckIn(key, r.onEvent); h != 0 {
			r.handles = append(r.handles, checkIn{key: key, handle: h})
		}
	}
}

// Stop checks the report out.
func (r *HistoricalReport) Stop() {
	r.mu.Lock()
	handles := r.handles
	r.handles = nil
	r.mu.Unlock()
	for _, c := range handles {
		r.bus.CheckOut(c.key, c.handle)
	}
}

func (r *HistoricalReport) onEvent(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev := ev.(type) {
	case domain.DayOpeningEvent:
		r.resetLocked()
		r.day = ev.Day
		r.logger.Debug("report reset", slog.Int("day", ev.Day))
	case domain.ShoutPlacedEvent:
		if ev.SpecialistID != r.specialistID {
			return
		}
		if r.record(ev.Shout) {
			r.placed++
		}
	case domain.ShoutWithdrawnEvent:
		r.withdraw(ev.Shout.ID)
	case domain.TransactionPostedEvent:
		r.post(ev.Transaction, ev.Ask, ev.Bid)
	}
}

// resetLocked drops all day-scoped state. Callers hold r.mu.
func (r *HistoricalReport) resetLocked() {
	r.asks.Reset()
	r.bids.Reset()
	r.shouts = make(map[string]*domain.Shout)
	r.order = nil
	r.withdrawn = make(map[string]bool)
	r.filled = make(map[string]int64)
	r.transactions = nil
	r.lowestAsk = boundary{}
	r.highestBid = boundary{}
	r.placed = 0
	r.volume = 0
	r.priceSum = 0
}

func (r *HistoricalReport) side(isBid bool) *Accelerator {
	if isBid {
		return r.bids
	}
	return r.asks
}

// record adds a shout and advances the boundary fast path.
func (r *HistoricalReport) record(sh *domain.Shout) bool {
	if !r.side(sh.IsBid).Add(sh.ID, sh.Price) {
		return false
	}
	r.shouts[sh.ID] = sh.Clone()
	r.order = append(r.order, sh.ID)

	if sh.IsBid {
		if !r.highestBid.ok || sh.Price > r.highestBid.price {
			r.highestBid = boundary{id: sh.ID, price: sh.Price, ok: true}
		}
	} else if !r.lowestAsk.ok || sh.Price < r.lowestAsk.price {
		r.lowestAsk = boundary{id: sh.ID, price: sh.Price, ok: true}
	}
	return true
}

func (r *HistoricalReport) withdraw(id string) {
	sh, ok := r.shouts[id]
	if !ok || r.withdrawn[id] {
		return
	}
	r.withdrawn[id] = true
	sh.State = domain.ShoutStateWithdrawn
	r.closed(sh)
}

func (r *HistoricalReport) post(tx *domain.Transaction, ask, bid *domain.Shout) {
	if tx.SpecialistID != r.specialistID {
		return
	}
	for _, sh := range []*domain.Shout{ask, bid} {
		if sh != nil {
			r.fill(sh, tx.Quantity)
		}
	}
	r.transactions = append(r.transactions, tx)
	r.volume += tx.Quantity
	r.priceSum += tx.Price
}

// fill credits q transacted units to the placed shout sh belongs to.
func (r *HistoricalReport) fill(sh *domain.Shout, q int64) {
	id := sh.ID
	if sh.ParentID != "" {
		id = sh.ParentID
	}
	stored, ok := r.shouts[id]
	if !ok {
		// Placed before the report started listening.
		c := sh.Clone()
		c.ID, c.ParentID = id, ""
		r.record(c)
		stored = r.shouts[id]
	}

	r.filled[id] += q
	stored.Remaining = max(stored.Quantity-r.filled[id], 0)
	if stored.Remaining > 0 {
		return
	}
	if r.side(stored.IsBid).MarkMatched(id) {
		stored.State = domain.ShoutStateMatched
		r.closed(stored)
	}
}

// closed moves the boundary off sh once it is matched or withdrawn.
func (r *HistoricalReport) closed(sh *domain.Shout) {
	open := func(id string, _ float64, matched bool) bool {
		return !matched && !r.withdrawn[id]
	}
	if sh.IsBid {
		if r.highestBid.id != sh.ID {
			return
		}
		r.highestBid = boundary{}
		r.bids.Descend(func(id string, price float64, matched bool) bool {
			if open(id, price, matched) {
				r.highestBid = boundary{id: id, price: price, ok: true}
				return false
			}
			return true
		})
		return
	}
	if r.lowestAsk.id != sh.ID {
		return
	}
	r.lowestAsk = boundary{}
	r.asks.Ascend(func(id string, price float64, matched bool) bool {
		if open(id, price, matched) {
			r.lowestAsk = boundary{id: id, price: price, ok: true}
			return false
		}
		return true
	})
}

// count applies the threshold sign convention: t ≥ 0 counts prices at or
// above t, t < 0 counts prices at or below |t|.
func count(acc *Accelerator, t float64, matchedOnly bool) int {
	if t < 0 {
		return acc.CountAtOrBelow(-t, matchedOnly)
	}
	return acc.CountAtOrAbove(t, matchedOnly)
}

// NumberOfAsks counts the day's asks against threshold t. A non-negative
// t counts asks priced at or above t; a negative t counts asks priced at
// or below -t. With matchedOnly only transacted asks count.
func (r *HistoricalReport) NumberOfAsks(t float64, matchedOnly bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return count(r.asks, t, matchedOnly)
}

// NumberOfBids counts the day's bids with the same threshold convention as
// NumberOfAsks.
func (r *HistoricalReport) NumberOfBids(t float64, matchedOnly bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return count(r.bids, t, matchedOnly)
}

// LowestUnmatchedAsk returns the cheapest ask that has neither transacted
// nor been withdrawn, or nil.
func (r *HistoricalReport) LowestUnmatchedAsk() *domain.Shout {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.lowestAsk.ok {
		return nil
	}
	return r.shouts[r.lowestAsk.id].Clone()
}

// HighestUnmatchedBid returns the dearest open bid, or nil.
func (r *HistoricalReport) HighestUnmatchedBid() *domain.Shout {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.highestBid.ok {
		return nil
	}
	return r.shouts[r.highestBid.id].Clone()
}

// Shouts returns the day's shouts in the order they were recorded.
func (r *HistoricalReport) Shouts() []*domain.Shout {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collect(func(*domain.Shout) bool { return true })
}

// Asks returns the day's asks in the order they were recorded.
func (r *HistoricalReport) Asks() []*domain.Shout {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collect(func(sh *domain.Shout) bool { return !sh.IsBid })
}

// Bids returns the day's bids in the order they were recorded.
func (r *HistoricalReport) Bids() []*domain.Shout {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collect(func(sh *domain.Shout) bool { return sh.IsBid })
}

func (r *HistoricalReport) collect(keep func(*domain.Shout) bool) []*domain.Shout {
	out := make([]*domain.Shout, 0, len(r.order))
	for _, id := range r.order {
		if sh := r.shouts[id]; keep(sh) {
			out = append(out, sh.Clone())
		}
	}
	return out
}

// Transactions returns the day's transactions in posting order.
func (r *HistoricalReport) Transactions() []*domain.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Transaction, len(r.transactions))
	copy(out, r.transactions)
	return out
}

// DailyStats returns the day's summary so far.
func (r *HistoricalReport) DailyStats() DailyStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := DailyStats{
		SpecialistID: r.specialistID,
		Day:          r.day,
		Shouts:       r.placed,
		Asks:         r.asks.Len(),
		Bids:         r.bids.Len(),
		Withdrawn:    len(r.withdrawn),
		Transactions: len(r.transactions),
		Volume:       r.volume,
		MeanPrice:    math.NaN(),
		TradeRate:    math.NaN(),
	}
	if n := len(r.transactions); n > 0 {
		s.MeanPrice = r.priceSum / float64(n)
	}
	if n := r.asks.Len() + r.bids.Len(); n > 0 {
		s.TradeRate = float64(r.asks.Matched()+r.bids.Matched()) / float64(n)
	}
	return s
}
