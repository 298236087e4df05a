package service

import (
	"sort"
	"time"

	"github.com/efreitasn/auctionsim/internal/domain"
	"github.com/efreitasn/auctionsim/internal/engine"
	"github.com/efreitasn/auctionsim/internal/report"
	"github.com/efreitasn/auctionsim/internal/store"
)

// MarketSummary describes one market for GET /markets.
type MarketSummary struct {
	ID       string
	Quoting  string
	Clearing string
	Pricing  string
	Quote    domain.Quote
	Clears   int
}

// QuoteResponse represents the response for GET /markets/{id}/quote.
type QuoteResponse struct {
	MarketID string
	Quote    domain.Quote
	QuotedAt time.Time
}

// BookResponse represents the response for GET /markets/{id}/book.
type BookResponse struct {
	MarketID   string
	Boundaries engine.Boundaries
	Depth      engine.Depth
	Asks       []engine.PriceLevel
	Bids       []engine.PriceLevel
	SnapshotAt time.Time
}

// CountResponse represents the response for GET /markets/{id}/report.
type CountResponse struct {
	MarketID    string
	Side        string
	Threshold   float64
	MatchedOnly bool
	Count       int
}

// SubmitShoutRequest represents the input for shout submission.
type SubmitShoutRequest struct {
	TraderID string
	Side     string
	Price    float64
	Quantity int64
}

// MarketService handles shout submission and market queries.
type MarketService struct {
	markets *engine.Registry
	reports map[string]*report.HistoricalReport
	shouts  *store.ShoutStore
	txs     *store.TransactionStore
}

// NewMarketService creates a new MarketService with the given dependencies.
func NewMarketService(
	markets *engine.Registry,
	reports []*report.HistoricalReport,
	shouts *store.ShoutStore,
	txs *store.TransactionStore,
) *MarketService {
	byID := make(map[string]*report.HistoricalReport, len(reports))
	for _, r := range reports {
		byID[r.SpecialistID()] = r
	}
	return &MarketService{
		markets: markets,
		reports: byID,
		shouts:  shouts,
		txs:     txs,
	}
}

// ListMarkets returns every market ordered by id.
func (s *MarketService) ListMarkets() []MarketSummary {
	markets := s.markets.Markets()
	out := make([]MarketSummary, 0, len(markets))
	for _, m := range markets {
		p := m.Policies()
		out = append(out, MarketSummary{
			ID:       m.ID(),
			Quoting:  p.Quoting.Name(),
			Clearing: p.Clearing.Name(),
			Pricing:  p.Pricing.Name(),
			Quote:    m.Quote(),
			Clears:   m.Clears(),
		})
	}
	return out
}

// GetQuote returns a market's current quote.
func (s *MarketService) GetQuote(marketID string) (*QuoteResponse, error) {
	m, err := s.markets.Get(marketID)
	if err != nil {
		return nil, err
	}
	return &QuoteResponse{MarketID: marketID, Quote: m.Quote(), QuotedAt: time.Now()}, nil
}

// GetBook returns the boundaries, partition sizes and top depth price
// levels of a market's book.
func (s *MarketService) GetBook(marketID string, depth int) (*BookResponse, error) {
	m, err := s.markets.Get(marketID)
	if err != nil {
		return nil, err
	}
	if depth < 1 || depth > 50 {
		return nil, &domain.ValidationError{Message: "depth must be between 1 and 50"}
	}

	snap := m.Snapshot(depth)
	return &BookResponse{
		MarketID:   marketID,
		Boundaries: snap.Boundaries,
		Depth:      snap.Depth,
		Asks:       snap.Asks,
		Bids:       snap.Bids,
		SnapshotAt: time.Now(),
	}, nil
}

// CountShouts answers a historical report query. A non-negative threshold
// counts shouts priced at or above it, a negative one shouts priced at or
// below its absolute value.
func (s *MarketService) CountShouts(marketID, side string, threshold float64, matchedOnly bool) (*CountResponse, error) {
	r, err := s.report(marketID)
	if err != nil {
		return nil, err
	}

	var n int
	switch side {
	case "ask":
		n = r.NumberOfAsks(threshold, matchedOnly)
	case "bid":
		n = r.NumberOfBids(threshold, matchedOnly)
	default:
		return nil, &domain.ValidationError{Message: "side must be 'bid' or 'ask'"}
	}
	return &CountResponse{
		MarketID:    marketID,
		Side:        side,
		Threshold:   threshold,
		MatchedOnly: matchedOnly,
		Count:       n,
	}, nil
}

// ListTransactions returns the market's transactions for the current day
// in posting order.
func (s *MarketService) ListTransactions(marketID string) ([]*domain.Transaction, error) {
	if _, err := s.markets.Get(marketID); err != nil {
		return nil, err
	}
	return s.txs.ListBySpecialist(marketID), nil
}

// GetDailyStats returns the market's statistics for the current day.
func (s *MarketService) GetDailyStats(marketID string) (report.DailyStats, error) {
	r, err := s.report(marketID)
	if err != nil {
		return report.DailyStats{}, err
	}
	return r.DailyStats(), nil
}

// SubmitShout validates the request and places the shout with the market.
func (s *MarketService) SubmitShout(marketID string, req SubmitShoutRequest) (*domain.Shout, error) {
	m, err := s.markets.Get(marketID)
	if err != nil {
		return nil, err
	}
	if req.Side != "bid" && req.Side != "ask" {
		return nil, &domain.ValidationError{Message: "side must be 'bid' or 'ask'"}
	}
	return m.Place(&domain.Shout{
		TraderID: req.TraderID,
		IsBid:    req.Side == "bid",
		Price:    req.Price,
		Quantity: req.Quantity,
	})
}

// GetShout returns one of the market's shouts.
func (s *MarketService) GetShout(marketID, shoutID string) (*domain.Shout, error) {
	if _, err := s.markets.Get(marketID); err != nil {
		return nil, err
	}
	sh, err := s.shouts.Get(shoutID)
	if err != nil {
		return nil, err
	}
	if sh.SpecialistID != marketID {
		return nil, domain.ErrShoutNotFound
	}
	return sh, nil
}

// ListShouts returns the market's shouts for the current day, placed
// shouts first, then in arrival order.
func (s *MarketService) ListShouts(marketID string) ([]*domain.Shout, error) {
	if _, err := s.markets.Get(marketID); err != nil {
		return nil, err
	}
	shouts := s.shouts.ListBySpecialist(marketID)
	sort.SliceStable(shouts, func(i, j int) bool {
		a, b := shouts[i], shouts[j]
		if (a.State == domain.ShoutStatePlaced) != (b.State == domain.ShoutStatePlaced) {
			return a.State == domain.ShoutStatePlaced
		}
		return a.PlacedAt.Before(b.PlacedAt)
	})
	return shouts, nil
}

// WithdrawShout takes a placed shout off the market's book.
func (s *MarketService) WithdrawShout(marketID, shoutID string) (*domain.Shout, error) {
	m, err := s.markets.Get(marketID)
	if err != nil {
		return nil, err
	}
	return m.Withdraw(shoutID)
}

func (s *MarketService) report(marketID string) (*report.HistoricalReport, error) {
	if _, err := s.markets.Get(marketID); err != nil {
		return nil, err
	}
	r, ok := s.reports[marketID]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return r, nil
}
