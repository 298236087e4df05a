package report

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/efreitasn/auctionsim/internal/config"
	"github.com/efreitasn/auctionsim/internal/domain"
	"github.com/efreitasn/auctionsim/internal/engine"
	"github.com/efreitasn/auctionsim/internal/events"
	"github.com/efreitasn/auctionsim/internal/rng"
	"github.com/efreitasn/auctionsim/internal/store"
)

type reportFixture struct {
	report  *HistoricalReport
	bus     *events.Engine
	channel *events.Channel
}

func newReportFixture(t *testing.T) *reportFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.NewEngine(logger)
	bus.Start()
	ch := events.NewChannel("market:alpha")
	r := NewHistoricalReport("alpha", ch, bus, logger)
	r.Start()
	return &reportFixture{report: r, bus: bus, channel: ch}
}

func (f *reportFixture) place(id string, isBid bool, price float64) *domain.Shout {
	sh := &domain.Shout{
		ID:           id,
		SpecialistID: "alpha",
		IsBid:        isBid,
		Price:        price,
		Quantity:     1,
		Remaining:    1,
		State:        domain.ShoutStatePlaced,
	}
	f.bus.Dispatch(f.channel, domain.ShoutPlacedEvent{Shout: sh, SpecialistID: "alpha"})
	return sh
}

func (f *reportFixture) transact(ask, bid *domain.Shout, price float64) {
	a, b := ask.Clone(), bid.Clone()
	a.State, b.State = domain.ShoutStateMatched, domain.ShoutStateMatched
	tx := domain.NewTransaction("tx-"+a.ID+"-"+b.ID, a, b, price, 1)
	f.bus.Dispatch(f.channel, domain.TransactionPostedEvent{Transaction: tx, Ask: a, Bid: b})
}

func TestHistoricalReport_SeedScenario(t *testing.T) {
	f := newReportFixture(t)
	asks := map[float64]*domain.Shout{}
	bids := map[float64]*domain.Shout{}
	for _, p := range []float64{30, 40, 50, 60, 70} {
		asks[p] = f.place(fmt.Sprintf("ask-%g", p), false, p)
	}
	for _, p := range []float64{5, 15, 25, 35} {
		bids[p] = f.place(fmt.Sprintf("bid-%g", p), true, p)
	}
	r := f.report

	checks := []struct {
		name string
		got  int
		want int
	}{
		{"asks(45)", r.NumberOfAsks(45, false), 3},
		{"asks(-45)", r.NumberOfAsks(-45, false), 2},
		{"bids(10)", r.NumberOfBids(10, false), 3},
		{"bids(-10)", r.NumberOfBids(-10, false), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}

	f.transact(asks[30], bids[35], 32.5)

	after := []struct {
		name string
		got  int
		want int
	}{
		{"asks(-45, matched)", r.NumberOfAsks(-45, true), 1},
		{"bids(20, matched)", r.NumberOfBids(20, true), 1},
		{"asks(45)", r.NumberOfAsks(45, false), 3},
		{"asks(-45)", r.NumberOfAsks(-45, false), 2},
		{"bids(10)", r.NumberOfBids(10, false), 3},
		{"bids(-10)", r.NumberOfBids(-10, false), 1},
	}
	for _, c := range after {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestHistoricalReport_BoundaryFastPath(t *testing.T) {
	f := newReportFixture(t)
	r := f.report
	if r.LowestUnmatchedAsk() != nil || r.HighestUnmatchedBid() != nil {
		t.Fatal("empty report must have no boundary shouts")
	}

	a40 := f.place("a40", false, 40)
	a30 := f.place("a30", false, 30)
	f.place("a50", false, 50)
	b35 := f.place("b35", true, 35)
	f.place("b20", true, 20)

	if got := r.LowestUnmatchedAsk(); got == nil || got.ID != "a30" {
		t.Fatalf("lowest ask = %v, want a30", got)
	}
	if got := r.HighestUnmatchedBid(); got == nil || got.ID != "b35" {
		t.Fatalf("highest bid = %v, want b35", got)
	}

	f.transact(a30, b35, 32)
	if got := r.LowestUnmatchedAsk(); got == nil || got.ID != "a40" {
		t.Errorf("lowest ask after transaction = %v, want a40", got)
	}
	if got := r.HighestUnmatchedBid(); got == nil || got.ID != "b20" {
		t.Errorf("highest bid after transaction = %v, want b20", got)
	}

	f.bus.Dispatch(f.channel, domain.ShoutWithdrawnEvent{Shout: a40})
	if got := r.LowestUnmatchedAsk(); got == nil || got.ID != "a50" {
		t.Errorf("lowest ask after withdrawal = %v, want a50", got)
	}
	asks := r.Asks()
	if len(asks) != 3 || asks[0].State != domain.ShoutStateWithdrawn {
		t.Errorf("asks = %v, want a40 withdrawn first", asks)
	}
}

func (f *reportFixture) placeQty(id string, isBid bool, price float64, qty int64) *domain.Shout {
	sh := &domain.Shout{
		ID:           id,
		SpecialistID: "alpha",
		IsBid:        isBid,
		Price:        price,
		Quantity:     qty,
		Remaining:    qty,
		State:        domain.ShoutStatePlaced,
	}
	f.bus.Dispatch(f.channel, domain.ShoutPlacedEvent{Shout: sh, SpecialistID: "alpha"})
	return sh
}

func (f *reportFixture) transactQty(ask, bid *domain.Shout, price float64, qty int64) {
	a, b := ask.Clone(), bid.Clone()
	a.State, b.State = domain.ShoutStateMatched, domain.ShoutStateMatched
	tx := domain.NewTransaction("tx-"+a.ID+"-"+b.ID, a, b, price, qty)
	f.bus.Dispatch(f.channel, domain.TransactionPostedEvent{Transaction: tx, Ask: a, Bid: b})
}

func TestHistoricalReport_MatchedSliceCreditsParent(t *testing.T) {
	f := newReportFixture(t)
	parent := f.placeQty("a1", false, 30, 10)
	b1 := f.placeQty("b1", true, 35, 4)
	b2 := f.placeQty("b2", true, 35, 6)

	// First fill: a 4-unit slice split off a1.
	slice := parent.Clone()
	slice.ID = "a1-slice"
	slice.ParentID = "a1"
	slice.Quantity = 4
	f.transactQty(slice, b1, 32, 4)

	r := f.report
	if got := r.NumberOfAsks(-100, false); got != 1 {
		t.Errorf("asks recorded = %d, want 1", got)
	}
	if got := r.NumberOfAsks(-100, true); got != 0 {
		t.Errorf("matched asks after a partial fill = %d, want 0", got)
	}
	if got := r.LowestUnmatchedAsk(); got == nil || got.ID != "a1" || got.Remaining != 6 {
		t.Errorf("lowest ask = %v, want a1 with 6 remaining", got)
	}

	// Second fill: the residual of a1 itself.
	f.transactQty(parent, b2, 32, 6)

	if got := r.NumberOfAsks(-100, false); got != 1 {
		t.Errorf("asks recorded = %d, want 1", got)
	}
	if got := r.NumberOfAsks(-100, true); got != 1 {
		t.Errorf("matched asks = %d, want 1", got)
	}
	if got := r.LowestUnmatchedAsk(); got != nil {
		t.Errorf("lowest ask = %v, want none", got)
	}
	asks := r.Asks()
	if len(asks) != 1 || asks[0].ID != "a1" || asks[0].State != domain.ShoutStateMatched {
		t.Errorf("asks = %v, want a1 matched", asks)
	}
	s := r.DailyStats()
	if s.Shouts != 3 || s.Asks != 1 || s.Bids != 2 || s.Transactions != 2 || s.Volume != 10 {
		t.Errorf("unexpected stats %+v", s)
	}
	if s.TradeRate != 1 {
		t.Errorf("trade rate = %v, want 1", s.TradeRate)
	}
}

func TestHistoricalReport_PartialFillsThroughMarket(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.NewEngine(logger)
	bus.Start()
	policies, err := engine.NewPolicies("alpha", config.Params{
		"clearing":           "probabilistic",
		"clearing.threshold": "1",
	}, rng.NewFixed(0), logger)
	if err != nil {
		t.Fatalf("NewPolicies: %v", err)
	}
	m := engine.NewMarket("alpha", bus, store.NewShoutStore(), store.NewTransactionStore(), policies, logger)
	m.Start()
	r := NewHistoricalReport("alpha", m.Channel(), bus, logger)
	r.Start()

	place := func(isBid bool, price float64, qty int64) {
		t.Helper()
		if _, err := m.Place(&domain.Shout{TraderID: "t", IsBid: isBid, Price: price, Quantity: qty}); err != nil {
			t.Fatalf("Place: %v", err)
		}
	}
	place(false, 30, 10)
	place(true, 35, 4)
	place(true, 35, 6)

	if n := len(r.Transactions()); n != 2 {
		t.Fatalf("transactions = %d, want 2", n)
	}
	if got := r.NumberOfAsks(-100, false); got != 1 {
		t.Errorf("NumberOfAsks(-100, false) = %d, want 1", got)
	}
	if got := r.NumberOfAsks(-100, true); got != 1 {
		t.Errorf("NumberOfAsks(-100, true) = %d, want 1", got)
	}
	if got := r.NumberOfBids(-100, true); got != 2 {
		t.Errorf("NumberOfBids(-100, true) = %d, want 2", got)
	}
	if s := r.DailyStats(); s.Asks != 1 || s.Bids != 2 || s.Shouts != 3 {
		t.Errorf("stats = %+v, want 1 ask and 2 bids", s)
	}
}

func TestHistoricalReport_IgnoresOtherMarkets(t *testing.T) {
	f := newReportFixture(t)
	f.bus.Dispatch(f.channel, domain.ShoutPlacedEvent{
		Shout:        &domain.Shout{ID: "x", Price: 10, Quantity: 1},
		SpecialistID: "beta",
	})
	if n := len(f.report.Shouts()); n != 0 {
		t.Errorf("recorded %d shouts addressed to another market", n)
	}
}

func TestHistoricalReport_DayOpeningResets(t *testing.T) {
	f := newReportFixture(t)
	a := f.place("a1", false, 30)
	b := f.place("b1", true, 40)
	f.transact(a, b, 35)

	f.bus.Dispatch(events.Global, domain.DayOpeningEvent{Day: 2})

	r := f.report
	if r.NumberOfAsks(0, false) != 0 || r.NumberOfBids(0, false) != 0 {
		t.Error("counts survived the day boundary")
	}
	if len(r.Transactions()) != 0 || len(r.Shouts()) != 0 {
		t.Error("history survived the day boundary")
	}
	if r.LowestUnmatchedAsk() != nil || r.HighestUnmatchedBid() != nil {
		t.Error("boundary shouts survived the day boundary")
	}
	s := r.DailyStats()
	if s.Day != 2 || s.Shouts != 0 || !math.IsNaN(s.MeanPrice) || !math.IsNaN(s.TradeRate) {
		t.Errorf("stats after reset = %+v", s)
	}
}

func TestHistoricalReport_DailyStats(t *testing.T) {
	f := newReportFixture(t)
	a1 := f.place("a1", false, 30)
	b1 := f.place("b1", true, 40)
	a2 := f.place("a2", false, 32)
	b2 := f.place("b2", true, 38)
	f.transact(a1, b1, 35)
	f.transact(a2, b2, 37)

	s := f.report.DailyStats()
	if s.SpecialistID != "alpha" || s.Shouts != 4 || s.Transactions != 2 || s.Volume != 2 {
		t.Errorf("unexpected stats %+v", s)
	}
	if s.MeanPrice != 36 {
		t.Errorf("mean price = %v, want 36", s.MeanPrice)
	}
	if s.TradeRate != 1 {
		t.Errorf("trade rate = %v, want 1", s.TradeRate)
	}
}

func TestHistoricalReport_StopUnsubscribes(t *testing.T) {
	f := newReportFixture(t)
	f.report.Stop()
	f.place("a1", false, 30)
	if n := len(f.report.Shouts()); n != 0 {
		t.Errorf("stopped report recorded %d shouts", n)
	}
}
