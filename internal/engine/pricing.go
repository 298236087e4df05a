package engine

import (
	"fmt"
	"math"

	"github.com/efreitasn/auctionsim/internal/config"
	"github.com/efreitasn/auctionsim/internal/domain"
)

// PricingPolicy sets the transaction price of each matched pair in a clear.
type PricingPolicy interface {
	Prices(pairs []MatchedPair, b Boundaries) []float64
	Name() string
}

// KPricing is discriminatory k-pricing: each pair trades at
// K·ask + (1−K)·bid. K=1 trades at the ask, K=0 at the bid.
type KPricing struct {
	K float64
}

func (KPricing) Name() string { return "k" }

func (p KPricing) Prices(pairs []MatchedPair, _ Boundaries) []float64 {
	out := make([]float64, len(pairs))
	for i, pair := range pairs {
		out[i] = p.K*pair.Ask.Price + (1-p.K)*pair.Bid.Price
	}
	return out
}

// UniformPricing trades the whole clear at K·HMA + (1−K)·LMB, the highest
// matched ask and lowest matched bid before the clear. The price is
// clamped into each pair's [ask, bid] so no trader pays more, or receives
// less, than its own shout.
type UniformPricing struct {
	K float64
}

func (UniformPricing) Name() string { return "uniform" }

func (p UniformPricing) Prices(pairs []MatchedPair, b Boundaries) []float64 {
	price := p.K*b.HighestMatchedAsk + (1-p.K)*b.LowestMatchedBid
	out := make([]float64, len(pairs))
	for i, pair := range pairs {
		out[i] = math.Min(math.Max(price, pair.Ask.Price), pair.Bid.Price)
	}
	return out
}

// NewPricingPolicy builds the policy named by params["pricing"] (k or
// uniform; k by default) with K from "pricing.k" (default 0.5).
func NewPricingPolicy(params config.Params) (PricingPolicy, error) {
	name := params.String("pricing", "k")
	k, err := params.Sub("pricing").Float("k", 0.5)
	if err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}
	if k < 0 || k > 1 || math.IsNaN(k) {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("pricing.k must be within [0,1], got %g", k)}
	}
	switch name {
	case "k":
		return KPricing{K: k}, nil
	case "uniform":
		return UniformPricing{K: k}, nil
	}
	return nil, &domain.ValidationError{Message: fmt.Sprintf("unknown pricing policy %q", name)}
}
