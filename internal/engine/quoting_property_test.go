package engine

import (
	"testing"

	"pgregory.net/rapid"
)

func genFiniteBoundaries() *rapid.Generator[Boundaries] {
	return rapid.Custom(func(t *rapid.T) Boundaries {
		price := func(label string) float64 {
			return float64(rapid.IntRange(1, 1000).Draw(t, label))
		}
		return Boundaries{
			LowestUnmatchedAsk:  price("lua"),
			HighestUnmatchedBid: price("hub"),
			LowestMatchedBid:    price("lmb"),
			HighestMatchedAsk:   price("hma"),
		}
	})
}

// A spread-based quote is never crossed, and when it had to be straddled
// its sides sit exactly Spread apart around the double-sided midpoint.
func TestProperty_SpreadBasedNeverCrossed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := genFiniteBoundaries().Draw(t, "boundaries")
		spread := float64(rapid.IntRange(0, 50).Draw(t, "spread"))
		p := SpreadBased{Spread: spread}

		q := p.Quote(b)
		if q.Ask < q.Bid {
			t.Fatalf("quote crossed: ask %v < bid %v", q.Ask, q.Bid)
		}
		d := DoubleSided{}.Quote(b)
		if d.Ask < d.Bid {
			if q.Ask-q.Bid != spread {
				t.Fatalf("straddled spread = %v, want %v", q.Ask-q.Bid, spread)
			}
			if q.Ask+q.Bid != d.Ask+d.Bid {
				t.Fatalf("straddle moved the midpoint: %v vs %v", q.Ask+q.Bid, d.Ask+d.Bid)
			}
		} else if q != d {
			t.Fatalf("uncrossed quote changed: %+v vs %+v", q, d)
		}
	})
}
