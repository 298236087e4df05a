package report

import (
	"math"
	"sort"
)

type record struct {
	id      string
	price   float64
	matched bool
}

// Accelerator answers price-threshold counts over one side of a trading
// day's shouts in O(log n).
//
// Shouts are appended in arrival order. The price-sorted view is rebuilt
// lazily, once per batch of appends, and a Fenwick tree over that view
// keeps the matched counts. Matching never moves a shout in the sorted
// view, so MarkMatched is a single O(log n) tree update.
//
// Accelerator is not safe for concurrent use.
type Accelerator struct {
	records []record
	byID    map[string]int // id → index into records

	sorted  []int // indices into records, ascending by price then arrival
	pos     []int // record index → position in sorted
	fenwick []int // 1-based, over sorted positions
	matched int
	dirty   bool
}

// NewAccelerator returns an empty accelerator.
func NewAccelerator() *Accelerator {
	return &Accelerator{byID: make(map[string]int)}
}

// Add records a shout. It reports false if the id is already recorded.
func (a *Accelerator) Add(id string, price float64) bool {
	if _, ok := a.byID[id]; ok {
		return false
	}
	a.byID[id] = len(a.records)
	a.records = append(a.records, record{id: id, price: price})
	a.dirty = true
	return true
}

// Contains reports whether id is recorded.
func (a *Accelerator) Contains(id string) bool {
	_, ok := a.byID[id]
	return ok
}

// MarkMatched flags a recorded shout as matched. It reports false for
// unknown or already matched ids.
func (a *Accelerator) MarkMatched(id string) bool {
	i, ok := a.byID[id]
	if !ok || a.records[i].matched {
		return false
	}
	a.records[i].matched = true
	a.matched++
	if !a.dirty {
		a.update(a.pos[i]+1, 1)
	}
	return true
}

// IsMatched reports whether id is recorded and matched.
func (a *Accelerator) IsMatched(id string) bool {
	i, ok := a.byID[id]
	return ok && a.records[i].matched
}

// Len returns the number of recorded shouts.
func (a *Accelerator) Len() int { return len(a.records) }

// Matched returns the number of matched shouts.
func (a *Accelerator) Matched() int { return a.matched }

// CountAtOrBelow counts recorded shouts priced at or below t, only matched
// ones when matchedOnly is set. A NaN threshold counts nothing.
func (a *Accelerator) CountAtOrBelow(t float64, matchedOnly bool) int {
	if math.IsNaN(t) {
		return 0
	}
	a.build()
	k := sort.Search(len(a.sorted), func(i int) bool {
		return a.records[a.sorted[i]].price > t
	})
	if matchedOnly {
		return a.prefix(k)
	}
	return k
}

// CountAtOrAbove counts recorded shouts priced at or above t, only matched
// ones when matchedOnly is set. A NaN threshold counts nothing.
func (a *Accelerator) CountAtOrAbove(t float64, matchedOnly bool) int {
	if math.IsNaN(t) {
		return 0
	}
	a.build()
	k := sort.Search(len(a.sorted), func(i int) bool {
		return a.records[a.sorted[i]].price >= t
	})
	if matchedOnly {
		return a.matched - a.prefix(k)
	}
	return len(a.sorted) - k
}

// PriceAt returns the i-th lowest recorded price, or NaN when i is out of
// range.
func (a *Accelerator) PriceAt(i int) float64 {
	if i < 0 || i >= len(a.records) {
		return math.NaN()
	}
	a.build()
	return a.records[a.sorted[i]].price
}

// Ascend visits recorded shouts from the lowest price up until fn returns
// false.
func (a *Accelerator) Ascend(fn func(id string, price float64, matched bool) bool) {
	a.build()
	for _, i := range a.sorted {
		r := a.records[i]
		if !fn(r.id, r.price, r.matched) {
			return
		}
	}
}

// Descend visits recorded shouts from the highest price down until fn
// returns false.
func (a *Accelerator) Descend(fn func(id string, price float64, matched bool) bool) {
	a.build()
	for j := len(a.sorted) - 1; j >= 0; j-- {
		r := a.records[a.sorted[j]]
		if !fn(r.id, r.price, r.matched) {
			return
		}
	}
}

// Reset drops every recorded shout.
func (a *Accelerator) Reset() {
	a.records = nil
	a.byID = make(map[string]int)
	a.sorted = nil
	a.pos = nil
	a.fenwick = nil
	a.matched = 0
	a.dirty = false
}

// build resorts the view and rebuilds the Fenwick tree after appends.
func (a *Accelerator) build() {
	if !a.dirty {
		return
	}
	n := len(a.records)
	a.sorted = make([]int, n)
	for i := range a.sorted {
		a.sorted[i] = i
	}
	sort.SliceStable(a.sorted, func(x, y int) bool {
		return a.records[a.sorted[x]].price < a.records[a.sorted[y]].price
	})

	a.pos = make([]int, n)
	a.fenwick = make([]int, n+1)
	for p, i := range a.sorted {
		a.pos[i] = p
		if a.records[i].matched {
			a.fenwick[p+1]++
		}
	}
	// Linear-time construction: push each node's sum to its parent.
	for j := 1; j <= n; j++ {
		if parent := j + (j & -j); parent <= n {
			a.fenwick[parent] += a.fenwick[j]
		}
	}
	a.dirty = false
}

func (a *Accelerator) update(j, delta int) {
	for ; j < len(a.fenwick); j += j & -j {
		a.fenwick[j] += delta
	}
}

// prefix sums matched flags over the first k sorted positions.
func (a *Accelerator) prefix(k int) int {
	sum := 0
	for j := k; j > 0; j -= j & -j {
		sum += a.fenwick[j]
	}
	return sum
}
