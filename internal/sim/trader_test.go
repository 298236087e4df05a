package sim

import (
	"context"
	"errors"
	"testing"

	"github.com/efreitasn/auctionsim/internal/config"
	"github.com/efreitasn/auctionsim/internal/domain"
	"github.com/efreitasn/auctionsim/internal/engine"
	"github.com/efreitasn/auctionsim/internal/events"
	"github.com/efreitasn/auctionsim/internal/rng"
	"github.com/efreitasn/auctionsim/internal/store"
)

type fakeVenue struct {
	id     string
	shouts []*domain.Shout
	err    error
}

func (v *fakeVenue) ID() string { return v.id }

func (v *fakeVenue) Place(sh *domain.Shout) (*domain.Shout, error) {
	if v.err != nil {
		return nil, v.err
	}
	c := sh.Clone()
	c.ID = "s"
	v.shouts = append(v.shouts, c)
	return c, nil
}

func TestRandomTrader_PricesRespectValue(t *testing.T) {
	venue := &fakeVenue{id: "alpha"}
	src := rng.NewLockedSource(7)
	buyer := NewRandomTrader("b", true, 80, []Venue{venue}, src, discardLogger())
	seller := NewRandomTrader("s", false, 120, []Venue{venue}, src, discardLogger())

	for round := 1; round <= 50; round++ {
		buyer.Trade(context.Background(), 1, round)
		seller.Trade(context.Background(), 1, round)
	}
	if buyer.Placed() != 50 || seller.Placed() != 50 {
		t.Fatalf("placed %d/%d, want 50/50", buyer.Placed(), seller.Placed())
	}
	for _, sh := range venue.shouts {
		switch {
		case sh.IsBid && (sh.Price < MinPrice || sh.Price > 80):
			t.Errorf("bid %v outside [%v, 80]", sh.Price, MinPrice)
		case !sh.IsBid && (sh.Price < 120 || sh.Price > MaxPrice):
			t.Errorf("ask %v outside [120, %v]", sh.Price, MaxPrice)
		}
		if sh.Quantity != 1 {
			t.Errorf("quantity = %d, want 1", sh.Quantity)
		}
	}
}

func TestRandomTrader_RejectionNotCounted(t *testing.T) {
	venue := &fakeVenue{id: "alpha", err: errors.New("closed")}
	tr := NewRandomTrader("b", true, 80, []Venue{venue}, rng.NewLockedSource(1), discardLogger())
	tr.Trade(context.Background(), 1, 1)
	if tr.Placed() != 0 {
		t.Errorf("placed = %d, want 0", tr.Placed())
	}
}

func TestNewPopulation_AlternatesSides(t *testing.T) {
	traders := NewPopulation(4, nil, rng.NewLockedSource(3), discardLogger())
	if len(traders) != 4 {
		t.Fatalf("got %d traders", len(traders))
	}
	if traders[0].ID() != "buyer-0" || traders[1].ID() != "seller-1" {
		t.Errorf("ids = %s, %s", traders[0].ID(), traders[1].ID())
	}
	for _, tr := range traders {
		if tr.value < MinPrice || tr.value > MaxPrice {
			t.Errorf("value %v outside [%v, %v]", tr.value, MinPrice, MaxPrice)
		}
	}
}

// A full game over two markets produces individually rational trades.
func TestGame_EndToEnd(t *testing.T) {
	bus := events.NewEngine(discardLogger())
	bus.Start()
	shouts := store.NewShoutStore()
	txs := store.NewTransactionStore()
	factory := rng.NewFactory(42, false)

	var venues []Venue
	var markets []*engine.Market
	for _, id := range []string{"alpha", "beta"} {
		params := config.Params{"clearing": "probabilistic", "clearing.threshold": "0.5"}
		policies, err := engine.NewPolicies(id, params, factory.Source(), discardLogger())
		if err != nil {
			t.Fatalf("NewPolicies: %v", err)
		}
		m := engine.NewMarket(id, bus, shouts, txs, policies, discardLogger())
		m.Start()
		markets = append(markets, m)
		venues = append(venues, m)
	}

	var posted []domain.TransactionPostedEvent
	for _, m := range markets {
		bus.CheckIn(m.Channel(), func(ev domain.Event) {
			if tp, ok := ev.(domain.TransactionPostedEvent); ok {
				posted = append(posted, tp)
			}
		})
	}

	population := NewPopulation(20, venues, factory.Source(), discardLogger())
	traders := make([]Trader, len(population))
	for i, tr := range population {
		traders[i] = tr
	}
	if err := NewClock(bus, 1, 10, 0, traders, discardLogger()).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(posted) == 0 {
		t.Fatal("expected at least one transaction")
	}
	for _, tp := range posted {
		if tp.Ask.Price > tp.Transaction.Price || tp.Transaction.Price > tp.Bid.Price {
			t.Errorf("transaction at %v outside [%v, %v]", tp.Transaction.Price, tp.Ask.Price, tp.Bid.Price)
		}
	}
	if got := txs.Count("alpha") + txs.Count("beta"); got != len(posted) {
		t.Errorf("stored %d transactions, posted %d", got, len(posted))
	}
}
