package engine

import (
	"math"

	"github.com/google/btree"
)

// bookEntry is a shout, or the matched slice of one, resting on the book.
// Price, Seq and ShoutID are fixed once the entry is in a tree; only
// Remaining changes, and only on unmatched entries.
type bookEntry struct {
	Price     float64
	Seq       uint64
	ShoutID   string
	ParentID  string
	Remaining int64
}

// askLess orders asks by price ascending, then arrival, then id.
// Min() of an ask tree is its lowest ask.
func askLess(a, b *bookEntry) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.ShoutID < b.ShoutID
}

// bidLess orders bids by price descending, then arrival, then id.
// Min() of a bid tree is its highest bid.
func bidLess(a, b *bookEntry) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.ShoutID < b.ShoutID
}

// Boundaries are the four prices quoting policies are built from. Empty
// partitions report +Inf for lowest and -Inf for highest.
type Boundaries struct {
	LowestUnmatchedAsk  float64
	HighestUnmatchedBid float64
	LowestMatchedBid    float64
	HighestMatchedAsk   float64
}

// MatchedSide is one side of a matched pair.
type MatchedSide struct {
	ShoutID  string // id of the matched record
	ParentID string // original shout when the match was a partial fill
	Price    float64
}

// MatchedPair is a candidate transaction produced by Match.
type MatchedPair struct {
	Ask      MatchedSide
	Bid      MatchedSide
	Quantity int64
}

// OrderBook tracks one market's live shouts as two price-ordered sequences
// (asks ascending, bids descending), each split into a matched and an
// unmatched partition. Every change is a local B-tree insert or delete;
// the book is never resorted.
//
// OrderBook is not safe for concurrent use; the owning Market serialises
// access.
type OrderBook struct {
	specialistID string
	newID        func() string

	unmatchedAsks *btree.BTreeG[*bookEntry]
	matchedAsks   *btree.BTreeG[*bookEntry]
	unmatchedBids *btree.BTreeG[*bookEntry]
	matchedBids   *btree.BTreeG[*bookEntry]

	index   map[string]*bookEntry // shout_id → unmatched entry
	isBid   map[string]bool       // shout_id → side, for unmatched entries
	pending []MatchedPair
	seq     uint64
}

// NewOrderBook creates an empty book. newID names the matched slices split
// off partially filled shouts.
func NewOrderBook(specialistID string, newID func() string) *OrderBook {
	const degree = 32
	return &OrderBook{
		specialistID:  specialistID,
		newID:         newID,
		unmatchedAsks: btree.NewG[*bookEntry](degree, askLess),
		matchedAsks:   btree.NewG[*bookEntry](degree, askLess),
		unmatchedBids: btree.NewG[*bookEntry](degree, bidLess),
		matchedBids:   btree.NewG[*bookEntry](degree, bidLess),
		index:         make(map[string]*bookEntry),
		isBid:         make(map[string]bool),
	}
}

// Insert rests a placed shout in the unmatched partition of its side.
func (ob *OrderBook) Insert(shoutID string, isBid bool, price float64, quantity int64) {
	ob.seq++
	e := &bookEntry{Price: price, Seq: ob.seq, ShoutID: shoutID, Remaining: quantity}
	if isBid {
		ob.unmatchedBids.ReplaceOrInsert(e)
	} else {
		ob.unmatchedAsks.ReplaceOrInsert(e)
	}
	ob.index[shoutID] = e
	ob.isBid[shoutID] = isBid
}

// Remove takes an unmatched shout off the book. It reports false when the
// shout is not resting unmatched (unknown, or already matched).
func (ob *OrderBook) Remove(shoutID string) bool {
	e, ok := ob.index[shoutID]
	if !ok {
		return false
	}
	if ob.isBid[shoutID] {
		ob.unmatchedBids.Delete(e)
	} else {
		ob.unmatchedAsks.Delete(e)
	}
	delete(ob.index, shoutID)
	delete(ob.isBid, shoutID)
	return true
}

// Remaining returns the residual quantity of an unmatched shout.
func (ob *OrderBook) Remaining(shoutID string) (int64, bool) {
	e, ok := ob.index[shoutID]
	if !ok {
		return 0, false
	}
	return e.Remaining, true
}

// Match moves crossing shouts from the unmatched to the matched partitions
// while the lowest unmatched ask is priced at or below the highest
// unmatched bid. A partial fill leaves the larger shout unmatched at the
// same price with its residual; the filled slice becomes a new matched
// entry named by newID. Returns the pairs formed by this call.
func (ob *OrderBook) Match() []MatchedPair {
	var pairs []MatchedPair
	for {
		ask, okA := ob.unmatchedAsks.Min()
		bid, okB := ob.unmatchedBids.Min()
		if !okA || !okB || ask.Price > bid.Price {
			break
		}
		if ask.Remaining <= 0 || bid.Remaining <= 0 {
			// Residuals are positive by construction; drop anything else
			// rather than loop on it.
			if ask.Remaining <= 0 {
				ob.Remove(ask.ShoutID)
			}
			if bid.Remaining <= 0 {
				ob.Remove(bid.ShoutID)
			}
			continue
		}

		q := ask.Remaining
		if bid.Remaining < q {
			q = bid.Remaining
		}
		pair := MatchedPair{
			Ask:      ob.fill(ask, false, q),
			Bid:      ob.fill(bid, true, q),
			Quantity: q,
		}
		ob.pending = append(ob.pending, pair)
		pairs = append(pairs, pair)
	}
	return pairs
}

// fill matches q units of e. A whole fill moves e itself to the matched
// partition; a partial fill leaves e unmatched with Remaining-q and moves a
// new slice instead.
func (ob *OrderBook) fill(e *bookEntry, isBid bool, q int64) MatchedSide {
	unmatched, matched := ob.unmatchedAsks, ob.matchedAsks
	if isBid {
		unmatched, matched = ob.unmatchedBids, ob.matchedBids
	}

	if e.Remaining == q {
		unmatched.Delete(e)
		delete(ob.index, e.ShoutID)
		delete(ob.isBid, e.ShoutID)
		matched.ReplaceOrInsert(e)
		return MatchedSide{ShoutID: e.ShoutID, Price: e.Price}
	}

	// Remaining is not an ordering key, so e keeps its place in the tree.
	e.Remaining -= q
	slice := &bookEntry{
		Price:     e.Price,
		Seq:       e.Seq,
		ShoutID:   ob.newID(),
		ParentID:  e.ShoutID,
		Remaining: q,
	}
	matched.ReplaceOrInsert(slice)
	return MatchedSide{ShoutID: slice.ShoutID, ParentID: e.ShoutID, Price: e.Price}
}

// TakeMatched empties the matched partitions and returns the pairs they
// held, in the order they were matched. A second call without an
// intervening Match returns nothing.
func (ob *OrderBook) TakeMatched() []MatchedPair {
	pairs := ob.pending
	ob.pending = nil
	ob.matchedAsks.Clear(false)
	ob.matchedBids.Clear(false)
	return pairs
}

// Reset drops every shout. Used at day boundaries.
func (ob *OrderBook) Reset() {
	ob.unmatchedAsks.Clear(false)
	ob.matchedAsks.Clear(false)
	ob.unmatchedBids.Clear(false)
	ob.matchedBids.Clear(false)
	ob.index = make(map[string]*bookEntry)
	ob.isBid = make(map[string]bool)
	ob.pending = nil
}

// LowestUnmatchedAsk returns the lowest unmatched ask price, or +Inf.
func (ob *OrderBook) LowestUnmatchedAsk() float64 {
	if e, ok := ob.unmatchedAsks.Min(); ok {
		return e.Price
	}
	return math.Inf(1)
}

// HighestUnmatchedBid returns the highest unmatched bid price, or -Inf.
func (ob *OrderBook) HighestUnmatchedBid() float64 {
	if e, ok := ob.unmatchedBids.Min(); ok {
		return e.Price
	}
	return math.Inf(-1)
}

// LowestMatchedBid returns the lowest matched bid price, or +Inf.
func (ob *OrderBook) LowestMatchedBid() float64 {
	if e, ok := ob.matchedBids.Max(); ok {
		return e.Price
	}
	return math.Inf(1)
}

// HighestMatchedAsk returns the highest matched ask price, or -Inf.
func (ob *OrderBook) HighestMatchedAsk() float64 {
	if e, ok := ob.matchedAsks.Max(); ok {
		return e.Price
	}
	return math.Inf(-1)
}

// Boundaries returns all four boundary prices.
func (ob *OrderBook) Boundaries() Boundaries {
	return Boundaries{
		LowestUnmatchedAsk:  ob.LowestUnmatchedAsk(),
		HighestUnmatchedBid: ob.HighestUnmatchedBid(),
		LowestMatchedBid:    ob.LowestMatchedBid(),
		HighestMatchedAsk:   ob.HighestMatchedAsk(),
	}
}

// Depth counts entries per partition.
type Depth struct {
	UnmatchedAsks int
	MatchedAsks   int
	UnmatchedBids int
	MatchedBids   int
}

// Depth returns the number of entries in each partition.
func (ob *OrderBook) Depth() Depth {
	return Depth{
		UnmatchedAsks: ob.unmatchedAsks.Len(),
		MatchedAsks:   ob.matchedAsks.Len(),
		UnmatchedBids: ob.unmatchedBids.Len(),
		MatchedBids:   ob.matchedBids.Len(),
	}
}

// PriceLevel aggregates unmatched quantity at one price.
type PriceLevel struct {
	Price         float64
	TotalQuantity int64
	ShoutCount    int
}

// TopAsks returns up to n aggregated unmatched ask levels, lowest first.
func (ob *OrderBook) TopAsks(n int) []PriceLevel {
	return topLevels(ob.unmatchedAsks, n)
}

// TopBids returns up to n aggregated unmatched bid levels, highest first.
func (ob *OrderBook) TopBids(n int) []PriceLevel {
	return topLevels(ob.unmatchedBids, n)
}

// topLevels iterates the B-tree in order and aggregates entries into at
// most n price levels.
func topLevels(tree *btree.BTreeG[*bookEntry], n int) []PriceLevel {
	if n <= 0 {
		return nil
	}
	levels := make([]PriceLevel, 0, n)
	tree.Ascend(func(e *bookEntry) bool {
		if len(levels) > 0 && levels[len(levels)-1].Price == e.Price {
			levels[len(levels)-1].TotalQuantity += e.Remaining
			levels[len(levels)-1].ShoutCount++
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, PriceLevel{Price: e.Price, TotalQuantity: e.Remaining, ShoutCount: 1})
		return true
	})
	return levels
}
