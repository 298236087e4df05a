package sim

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/efreitasn/auctionsim/internal/domain"
)

// Price range random traders draw private values and shouts from.
const (
	MinPrice = 50.0
	MaxPrice = 150.0
)

// Venue is the part of a market a trader needs.
type Venue interface {
	ID() string
	Place(sh *domain.Shout) (*domain.Shout, error)
}

// Deviates is a random source that can also pick indices.
type Deviates interface {
	NextUniform() float64
	IntN(n int) int
}

// RandomTrader is a zero-intelligence constrained trader: each round it
// places one shout in a random market at a random price that never loses
// money against its private value. Buyers bid in [MinPrice, value],
// sellers ask in [value, MaxPrice].
type RandomTrader struct {
	id     string
	buyer  bool
	value  float64
	venues []Venue
	src    Deviates
	logger *slog.Logger

	placed int
}

// NewRandomTrader creates a trader with the given private value.
func NewRandomTrader(id string, buyer bool, value float64, venues []Venue, src Deviates, logger *slog.Logger) *RandomTrader {
	if logger == nil {
		logger = slog.Default()
	}
	return &RandomTrader{
		id:     id,
		buyer:  buyer,
		value:  value,
		venues: venues,
		src:    src,
		logger: logger.With(slog.String("trader_id", id)),
	}
}

// ID returns the trader id.
func (t *RandomTrader) ID() string { return t.id }

// Placed returns how many shouts the trader has placed.
func (t *RandomTrader) Placed() int { return t.placed }

// Trade places one shout. Rejections are logged and skipped.
func (t *RandomTrader) Trade(ctx context.Context, day, round int) {
	if len(t.venues) == 0 || ctx.Err() != nil {
		return
	}
	venue := t.venues[t.src.IntN(len(t.venues))]

	lo, hi := t.value, MaxPrice
	if t.buyer {
		lo, hi = MinPrice, t.value
	}
	price := lo + t.src.NextUniform()*(hi-lo)

	sh, err := venue.Place(&domain.Shout{
		TraderID: t.id,
		IsBid:    t.buyer,
		Price:    price,
		Quantity: 1,
	})
	if err != nil {
		t.logger.Debug("shout rejected",
			slog.String("specialist_id", venue.ID()),
			slog.Int("day", day),
			slog.Int("round", round),
			slog.String("error", err.Error()),
		)
		return
	}
	t.placed++
	t.logger.Debug("shout placed",
		slog.String("shout_id", sh.ID),
		slog.String("specialist_id", venue.ID()),
		slog.String("side", sh.Side()),
		slog.Float64("price", sh.Price),
	)
}

// NewPopulation creates n traders, alternating buyers and sellers, with
// private values drawn uniformly from [MinPrice, MaxPrice].
func NewPopulation(n int, venues []Venue, src Deviates, logger *slog.Logger) []*RandomTrader {
	traders := make([]*RandomTrader, 0, n)
	for i := 0; i < n; i++ {
		buyer := i%2 == 0
		value := MinPrice + src.NextUniform()*(MaxPrice-MinPrice)
		prefix := "seller"
		if buyer {
			prefix = "buyer"
		}
		traders = append(traders, NewRandomTrader(fmt.Sprintf("%s-%d", prefix, i), buyer, value, venues, src, logger))
	}
	return traders
}
