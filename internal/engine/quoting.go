package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/efreitasn/auctionsim/internal/config"
	"github.com/efreitasn/auctionsim/internal/domain"
)

// DefaultSpread replaces a negative configured spread.
const DefaultSpread = 10.0

// QuotingPolicy derives a market's quote from its book boundaries.
// Implementations are pure; ±Inf sides mean no quote.
type QuotingPolicy interface {
	Quote(b Boundaries) domain.Quote
	Name() string
}

// SingleSided quotes the best unmatched shouts only. It suits continuous
// auctions, where the matched partitions are emptied on every placement.
type SingleSided struct{}

func (SingleSided) Name() string { return "single" }

// Quote returns the lowest unmatched ask and the highest unmatched bid.
func (SingleSided) Quote(b Boundaries) domain.Quote {
	return domain.Quote{Ask: b.LowestUnmatchedAsk, Bid: b.HighestUnmatchedBid}
}

// DoubleSided also considers the matched partitions: a bid beating the ask
// quote is guaranteed a match, and likewise for asks under the bid quote.
type DoubleSided struct{}

func (DoubleSided) Name() string { return "double" }

// Quote returns min(LUA, LMB) as the ask and max(HMA, HUB) as the bid.
func (DoubleSided) Quote(b Boundaries) domain.Quote {
	return domain.Quote{
		Ask: math.Min(b.LowestUnmatchedAsk, b.LowestMatchedBid),
		Bid: math.Max(b.HighestMatchedAsk, b.HighestUnmatchedBid),
	}
}

// SpreadBased is DoubleSided with crossed quotes replaced by two points
// Spread apart around their average. Crossing is normal when many shouts
// wait for a periodic clear.
type SpreadBased struct {
	Spread float64
}

// NewSpreadBased returns a SpreadBased policy. A negative spread is logged
// and replaced by DefaultSpread.
func NewSpreadBased(spread float64, logger *slog.Logger) SpreadBased {
	if spread < 0 || math.IsNaN(spread) {
		logger.Warn("negative spread configured, using default",
			slog.Float64("spread", spread),
			slog.Float64("default", DefaultSpread),
		)
		spread = DefaultSpread
	}
	return SpreadBased{Spread: spread}
}

func (SpreadBased) Name() string { return "spread" }

// Quote returns the double-sided quote, straddled around its average when
// the ask would sit below the bid.
func (p SpreadBased) Quote(b Boundaries) domain.Quote {
	q := DoubleSided{}.Quote(b)
	if q.Ask < q.Bid {
		sum := q.Ask + q.Bid
		q.Ask = (sum + p.Spread) / 2
		q.Bid = (sum - p.Spread) / 2
	}
	return q
}

// NewQuotingPolicy builds the policy named by params["quoting"] (single,
// double or spread; spread by default), configured from the "quoting."
// keys.
func NewQuotingPolicy(params config.Params, logger *slog.Logger) (QuotingPolicy, error) {
	name := params.String("quoting", "spread")
	sub := params.Sub("quoting")
	switch name {
	case "single":
		return SingleSided{}, nil
	case "double":
		return DoubleSided{}, nil
	case "spread":
		spread, err := sub.Float("spread", DefaultSpread)
		if err != nil {
			logger.Warn("malformed spread, using default",
				slog.String("error", err.Error()),
				slog.Float64("default", DefaultSpread),
			)
		}
		return NewSpreadBased(spread, logger), nil
	}
	return nil, &domain.ValidationError{Message: fmt.Sprintf("unknown quoting policy %q", name)}
}
