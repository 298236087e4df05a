// Package feed streams market events to websocket observers as JSON.
package feed

import (
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/efreitasn/auctionsim/internal/domain"
	"github.com/efreitasn/auctionsim/internal/events"
)

const (
	subscriberBuffer = 64
	writeWait        = 5 * time.Second
)

// Message is one event on the wire.
type Message struct {
	Type   string `json:"type"`
	Market string `json:"market,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// ShoutView is the wire form of a shout.
type ShoutView struct {
	ID        string  `json:"id"`
	ParentID  string  `json:"parent_id,omitempty"`
	TraderID  string  `json:"trader_id,omitempty"`
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Quantity  int64   `json:"quantity"`
	Remaining int64   `json:"remaining"`
	State     string  `json:"state"`
	PlacedAt  string  `json:"placed_at,omitempty"`
}

// TransactionView is the wire form of a transaction.
type TransactionView struct {
	ID         string  `json:"id"`
	AskID      string  `json:"ask_id"`
	BidID      string  `json:"bid_id"`
	Price      float64 `json:"price"`
	Quantity   int64   `json:"quantity"`
	Day        int     `json:"day"`
	Round      int     `json:"round"`
	ExecutedAt string  `json:"executed_at,omitempty"`
}

// QuoteView renders a missing side as null.
type QuoteView struct {
	Ask *float64 `json:"ask"`
	Bid *float64 `json:"bid"`
}

// ClockView carries day and round boundaries.
type ClockView struct {
	Day   int `json:"day"`
	Round int `json:"round,omitempty"`
}

// Feed relays bus events to websocket clients.
type Feed struct {
	hub      *hub[Message]
	upgrader websocket.Upgrader
	clients  prometheus.Gauge
	logger   *slog.Logger
}

// New creates a feed. clients may be nil.
func New(clients prometheus.Gauge, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		hub:      newHub[Message](),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  clients,
		logger:   logger.With(slog.String("component", "feed")),
	}
}

// Observe relays the events of one market's channel.
func (f *Feed) Observe(bus *events.Engine, channel any, market string) events.Handle {
	return bus.CheckIn(channel, func(ev domain.Event) {
		if msg, ok := toMessage(ev); ok {
			msg.Market = market
			f.hub.Broadcast(msg)
		}
	})
}

// ObserveClock relays day and round boundaries from the global channel.
func (f *Feed) ObserveClock(bus *events.Engine) events.Handle {
	return f.Observe(bus, events.Global, "")
}

// Clients returns the number of connected clients.
func (f *Feed) Clients() int {
	return f.hub.Len()
}

// Publish sends msg to every connected client.
func (f *Feed) Publish(msg Message) {
	f.hub.Broadcast(msg)
}

// ServeHTTP upgrades the connection and streams messages until the client
// goes away.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	sub := f.hub.Subscribe(subscriberBuffer)
	defer f.hub.Unsubscribe(sub)
	if f.clients != nil {
		f.clients.Inc()
		defer f.clients.Dec()
	}

	// Reading processes control frames and notices the client leaving.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case msg := <-sub.ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				f.logger.Debug("websocket write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func toMessage(ev domain.Event) (Message, bool) {
	switch ev := ev.(type) {
	case domain.DayOpeningEvent:
		return Message{Type: "day_opening", Data: ClockView{Day: ev.Day}}, true
	case domain.DayClosedEvent:
		return Message{Type: "day_closed", Data: ClockView{Day: ev.Day}}, true
	case domain.RoundOpenedEvent:
		return Message{Type: "round_opened", Data: ClockView{Day: ev.Day, Round: ev.Round}}, true
	case domain.RoundClosingEvent:
		return Message{Type: "round_closing", Data: ClockView{Day: ev.Day, Round: ev.Round}}, true
	case domain.ShoutPlacedEvent:
		return Message{Type: "shout_placed", Data: NewShoutView(ev.Shout)}, true
	case domain.ShoutWithdrawnEvent:
		return Message{Type: "shout_withdrawn", Data: NewShoutView(ev.Shout)}, true
	case domain.TransactionPostedEvent:
		return Message{Type: "transaction", Data: NewTransactionView(ev.Transaction)}, true
	case domain.QuoteUpdatedEvent:
		return Message{Type: "quote", Data: NewQuoteView(ev.Quote)}, true
	case domain.ClearedEvent:
		return Message{Type: "cleared", Data: map[string]int{"transactions": ev.Count}}, true
	}
	return Message{}, false
}

// NewShoutView converts a shout.
func NewShoutView(sh *domain.Shout) ShoutView {
	return ShoutView{
		ID:        sh.ID,
		ParentID:  sh.ParentID,
		TraderID:  sh.TraderID,
		Side:      sh.Side(),
		Price:     sh.Price,
		Quantity:  sh.Quantity,
		Remaining: sh.Remaining,
		State:     string(sh.State),
		PlacedAt:  formatTime(sh.PlacedAt),
	}
}

// NewTransactionView converts a transaction.
func NewTransactionView(tx *domain.Transaction) TransactionView {
	return TransactionView{
		ID:         tx.ID,
		AskID:      tx.AskID,
		BidID:      tx.BidID,
		Price:      tx.Price,
		Quantity:   tx.Quantity,
		Day:        tx.Day,
		Round:      tx.Round,
		ExecutedAt: formatTime(tx.ExecutedAt),
	}
}

// NewQuoteView converts a quote.
func NewQuoteView(q domain.Quote) QuoteView {
	return QuoteView{Ask: Finite(q.Ask), Bid: Finite(q.Bid)}
}

// Finite returns nil for the ±Inf and NaN sentinels, which JSON cannot
// carry.
func Finite(f float64) *float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return &f
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
