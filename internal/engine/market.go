package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/auctionsim/internal/config"
	"github.com/efreitasn/auctionsim/internal/domain"
	"github.com/efreitasn/auctionsim/internal/events"
	"github.com/efreitasn/auctionsim/internal/rng"
	"github.com/efreitasn/auctionsim/internal/store"
)

// Policies are the pluggable rules of one market.
type Policies struct {
	Quoting  QuotingPolicy
	Pricing  PricingPolicy
	Clearing ClearingCondition
}

// NewPolicies builds a market's policies from its parameters.
func NewPolicies(specialistID string, params config.Params, src rng.Source, logger *slog.Logger) (Policies, error) {
	quoting, err := NewQuotingPolicy(params, logger)
	if err != nil {
		return Policies{}, err
	}
	pricing, err := NewPricingPolicy(params)
	if err != nil {
		return Policies{}, err
	}
	clearing, err := NewClearingCondition(specialistID, params, src, logger)
	if err != nil {
		return Policies{}, err
	}
	return Policies{Quoting: quoting, Pricing: pricing, Clearing: clearing}, nil
}

// Market is one specialist's double auction. It owns the order book,
// publishes shout, quote and transaction events on its channel, and clears
// whenever its clearing condition fires.
type Market struct {
	id       string
	channel  *events.Channel
	bus      *events.Engine
	shouts   *store.ShoutStore
	txs      *store.TransactionStore
	policies Policies
	logger   *slog.Logger

	mu      sync.Mutex
	book    *OrderBook
	day     int
	round   int
	clears  int
	handles []subscription
}

type subscription struct {
	key    any
	handle events.Handle
}

// NewMarket creates a market. Call Start to subscribe it to the bus.
func NewMarket(
	id string,
	bus *events.Engine,
	shouts *store.ShoutStore,
	txs *store.TransactionStore,
	policies Policies,
	logger *slog.Logger,
) *Market {
	if logger == nil {
		logger = slog.Default()
	}
	return &Market{
		id:       id,
		channel:  events.NewChannel("market:" + id),
		bus:      bus,
		shouts:   shouts,
		txs:      txs,
		policies: policies,
		logger:   logger.With(slog.String("specialist_id", id)),
		book:     NewOrderBook(id, func() string { return uuid.New().String() }),
	}
}

// ID returns the specialist id.
func (m *Market) ID() string { return m.id }

// Channel returns the channel the market publishes on.
func (m *Market) Channel() *events.Channel { return m.channel }

// Policies returns the market's policies.
func (m *Market) Policies() Policies { return m.policies }

// Start checks the market in on its own channel and on the global clock
// channel. The bus must be running.
func (m *Market) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range []any{m.channel, events.Global} {
		if h := m.bus.CheckIn(key, m.onEvent); h != 0 {
			m.handles = append(m.handles, subscription{key: key, handle: h})
		}
	}
}

// Stop checks the market out of the bus.
func (m *Market) Stop() {
	m.mu.Lock()
	handles := m.handles
	m.handles = nil
	m.mu.Unlock()
	for _, s := range handles {
		m.bus.CheckOut(s.key, s.handle)
	}
}

func (m *Market) onEvent(ev domain.Event) {
	switch ev := ev.(type) {
	case domain.DayOpeningEvent:
		m.openDay(ev.Day)
	case domain.RoundOpenedEvent:
		m.mu.Lock()
		m.day, m.round = ev.Day, ev.Round
		m.mu.Unlock()
	}
	if m.policies.Clearing.ShouldClear(ev) {
		m.clear(m.bus.Post)
	}
}

// openDay drops the previous day's book, shouts and transactions.
func (m *Market) openDay(day int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.book.Reset()
	dropped := m.shouts.RemoveBySpecialist(m.id)
	m.txs.Reset(m.id)
	m.day, m.round = day, 0
	m.logger.Debug("day opened", slog.Int("day", day), slog.Int("dropped_shouts", dropped))
}

// Place admits a shout to the market: it rests on the book, crossing
// shouts are matched, and ShoutPlaced, ShoutPosted and QuoteUpdated are
// published. The caller sets TraderID, IsBid, Price and Quantity; the
// market assigns ID (when empty), state, residual and timestamp. Returns a
// snapshot of the placed shout.
func (m *Market) Place(sh *domain.Shout) (*domain.Shout, error) {
	if err := sh.Validate(); err != nil {
		return nil, err
	}
	if sh.SpecialistID != "" && sh.SpecialistID != m.id {
		return nil, domain.ErrWrongMarket
	}

	s := sh.Clone()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.ParentID = ""
	s.SpecialistID = m.id
	s.State = domain.ShoutStatePlaced
	s.Remaining = s.Quantity
	s.PlacedAt = time.Now()

	m.mu.Lock()
	if err := m.shouts.Create(s); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.book.Insert(s.ID, s.IsBid, s.Price, s.Quantity)
	m.applyMatches(m.book.Match())
	quote := m.policies.Quoting.Quote(m.book.Boundaries())
	placed := m.mustGet(s.ID)
	m.mu.Unlock()

	m.bus.Dispatch(m.channel, domain.ShoutPlacedEvent{Shout: placed, SpecialistID: m.id})
	m.bus.Dispatch(m.channel, domain.ShoutPostedEvent{Shout: placed})
	m.bus.Dispatch(m.channel, domain.QuoteUpdatedEvent{SpecialistID: m.id, Quote: quote})
	return placed, nil
}

// applyMatches records new matches in the arena. Callers hold m.mu.
func (m *Market) applyMatches(pairs []MatchedPair) {
	for _, p := range pairs {
		m.markMatched(p.Ask, p.Quantity)
		m.markMatched(p.Bid, p.Quantity)
	}
}

func (m *Market) markMatched(side MatchedSide, q int64) {
	if side.ParentID == "" {
		if _, err := m.shouts.Transition(side.ShoutID, domain.ShoutStateMatched); err != nil {
			panic(fmt.Sprintf("market %s: matching shout %s: %v", m.id, side.ShoutID, err))
		}
		if err := m.shouts.SetRemaining(side.ShoutID, 0); err != nil {
			panic(fmt.Sprintf("market %s: %v", m.id, err))
		}
		return
	}

	parent := m.mustGet(side.ParentID)
	slice := parent.Clone()
	slice.ID = side.ShoutID
	slice.ParentID = parent.ID
	slice.Quantity = q
	slice.Remaining = 0
	slice.State = domain.ShoutStateMatched
	if err := m.shouts.Create(slice); err != nil {
		panic(fmt.Sprintf("market %s: recording matched slice of %s: %v", m.id, parent.ID, err))
	}
	residual, _ := m.book.Remaining(parent.ID)
	if err := m.shouts.SetRemaining(parent.ID, residual); err != nil {
		panic(fmt.Sprintf("market %s: %v", m.id, err))
	}
}

// Withdraw takes a placed shout off the book. Matched shouts cannot be
// withdrawn.
func (m *Market) Withdraw(shoutID string) (*domain.Shout, error) {
	m.mu.Lock()
	sh, err := m.shouts.Get(shoutID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if sh.SpecialistID != m.id {
		m.mu.Unlock()
		return nil, domain.ErrWrongMarket
	}
	if !m.book.Remove(shoutID) {
		m.mu.Unlock()
		return nil, domain.ErrShoutNotWithdrawable
	}
	withdrawn, err := m.shouts.Transition(shoutID, domain.ShoutStateWithdrawn)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	quote := m.policies.Quoting.Quote(m.book.Boundaries())
	m.mu.Unlock()

	m.bus.Dispatch(m.channel, domain.ShoutWithdrawnEvent{Shout: withdrawn})
	m.bus.Dispatch(m.channel, domain.QuoteUpdatedEvent{SpecialistID: m.id, Quote: quote})
	return withdrawn, nil
}

// Clear turns every matched pair into a transaction and publishes a
// TransactionPosted event for each. Clearing with nothing matched is a
// no-op, so repeated calls never match a shout twice. Clear must not be
// called from a bus listener; the market's own clearing condition runs
// inside one and publishes with Post.
func (m *Market) Clear() []*domain.Transaction {
	return m.clear(m.bus.Dispatch)
}

func (m *Market) clear(publish func(key any, ev domain.Event)) []*domain.Transaction {
	m.mu.Lock()
	b := m.book.Boundaries()
	pairs := m.book.TakeMatched()
	if len(pairs) == 0 {
		m.mu.Unlock()
		return nil
	}

	prices := m.policies.Pricing.Prices(pairs, b)
	posted := make([]domain.TransactionPostedEvent, 0, len(pairs))
	txs := make([]*domain.Transaction, 0, len(pairs))
	for i, p := range pairs {
		ask := m.mustGet(p.Ask.ShoutID)
		bid := m.mustGet(p.Bid.ShoutID)
		tx := domain.NewTransaction(uuid.New().String(), ask, bid, prices[i], p.Quantity)
		tx.Day, tx.Round = m.day, m.round
		m.txs.Append(tx)
		txs = append(txs, tx)
		posted = append(posted, domain.TransactionPostedEvent{Transaction: tx, Ask: ask, Bid: bid})
	}
	m.clears++
	quote := m.policies.Quoting.Quote(m.book.Boundaries())
	m.mu.Unlock()

	m.logger.Debug("cleared", slog.Int("transactions", len(txs)))
	for _, ev := range posted {
		publish(m.channel, ev)
	}
	publish(m.channel, domain.ClearedEvent{SpecialistID: m.id, Count: len(txs)})
	publish(m.channel, domain.QuoteUpdatedEvent{SpecialistID: m.id, Quote: quote})
	return txs
}

// mustGet reads a shout the book refers to. A miss means the book and the
// arena disagree, which is a defect. Callers hold m.mu.
func (m *Market) mustGet(id string) *domain.Shout {
	sh, err := m.shouts.Get(id)
	if err != nil {
		panic(fmt.Sprintf("market %s: book refers to shout %s: %v", m.id, id, err))
	}
	return sh
}

// Quote returns the current quote.
func (m *Market) Quote() domain.Quote {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policies.Quoting.Quote(m.book.Boundaries())
}

// Boundaries returns the book's four boundary prices.
func (m *Market) Boundaries() Boundaries {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book.Boundaries()
}

// BookSnapshot is a point-in-time view of the book.
type BookSnapshot struct {
	Boundaries Boundaries
	Depth      Depth
	Asks       []PriceLevel
	Bids       []PriceLevel
}

// Snapshot returns the boundaries, partition sizes and up to depth
// unmatched price levels per side.
func (m *Market) Snapshot(depth int) BookSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return BookSnapshot{
		Boundaries: m.book.Boundaries(),
		Depth:      m.book.Depth(),
		Asks:       m.book.TopAsks(depth),
		Bids:       m.book.TopBids(depth),
	}
}

// Clears returns how many clears produced transactions.
func (m *Market) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

// Registry is a thread-safe map of specialist id → Market.
type Registry struct {
	mu      sync.RWMutex
	markets map[string]*Market
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{markets: make(map[string]*Market)}
}

// Register adds a market, replacing any market with the same id.
func (r *Registry) Register(m *Market) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markets[m.ID()] = m
}

// Get returns the market with the given id, or domain.ErrMarketNotFound.
func (r *Registry) Get(id string) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[id]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return m, nil
}

// IDs returns the registered specialist ids in lexical order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.markets))
	for id := range r.markets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Markets returns the registered markets ordered by id.
func (r *Registry) Markets() []*Market {
	ids := r.IDs()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Market, 0, len(ids))
	for _, id := range ids {
		if m, ok := r.markets[id]; ok {
			out = append(out, m)
		}
	}
	return out
}
