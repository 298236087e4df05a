package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/auctionsim/internal/domain"
	"github.com/efreitasn/auctionsim/internal/engine"
	"github.com/efreitasn/auctionsim/internal/feed"
	"github.com/efreitasn/auctionsim/internal/service"
)

const timeFormat = "2006-01-02T15:04:05Z"

// MarketHandler handles HTTP requests for market and shout endpoints.
type MarketHandler struct {
	marketSvc *service.MarketService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc}
}

// marketResponse is one entry of GET /markets.
type marketResponse struct {
	ID       string         `json:"id"`
	Quoting  string         `json:"quoting"`
	Clearing string         `json:"clearing"`
	Pricing  string         `json:"pricing"`
	Quote    feed.QuoteView `json:"quote"`
	Clears   int            `json:"clears"`
}

// quoteResponse is the JSON response for GET /markets/{market_id}/quote.
// Missing sides and the mid of a one-sided quote are null.
type quoteResponse struct {
	MarketID string   `json:"market_id"`
	Ask      *float64 `json:"ask"`
	Bid      *float64 `json:"bid"`
	Mid      *float64 `json:"mid"`
	QuotedAt string   `json:"quoted_at"`
}

// boundariesResponse carries the four book boundaries; empty partitions
// are null.
type boundariesResponse struct {
	LowestUnmatchedAsk  *float64 `json:"lowest_unmatched_ask"`
	HighestUnmatchedBid *float64 `json:"highest_unmatched_bid"`
	LowestMatchedBid    *float64 `json:"lowest_matched_bid"`
	HighestMatchedAsk   *float64 `json:"highest_matched_ask"`
}

type depthResponse struct {
	UnmatchedAsks int `json:"unmatched_asks"`
	MatchedAsks   int `json:"matched_asks"`
	UnmatchedBids int `json:"unmatched_bids"`
	MatchedBids   int `json:"matched_bids"`
}

// bookLevelResponse is a single price level in the book response.
type bookLevelResponse struct {
	Price         float64 `json:"price"`
	TotalQuantity int64   `json:"total_quantity"`
	ShoutCount    int     `json:"shout_count"`
}

// bookResponse is the JSON response for GET /markets/{market_id}/book.
type bookResponse struct {
	MarketID   string              `json:"market_id"`
	Boundaries boundariesResponse  `json:"boundaries"`
	Depth      depthResponse       `json:"depth"`
	Bids       []bookLevelResponse `json:"bids"`
	Asks       []bookLevelResponse `json:"asks"`
	SnapshotAt string              `json:"snapshot_at"`
}

// countResponse is the JSON response for GET /markets/{market_id}/report.
type countResponse struct {
	MarketID    string  `json:"market_id"`
	Side        string  `json:"side"`
	Threshold   float64 `json:"threshold"`
	MatchedOnly bool    `json:"matched_only"`
	Count       int     `json:"count"`
}

// statsResponse is the JSON response for GET /markets/{market_id}/stats.
type statsResponse struct {
	MarketID     string   `json:"market_id"`
	Day          int      `json:"day"`
	Shouts       int      `json:"shouts"`
	Asks         int      `json:"asks"`
	Bids         int      `json:"bids"`
	Withdrawn    int      `json:"withdrawn"`
	Transactions int      `json:"transactions"`
	Volume       int64    `json:"volume"`
	MeanPrice    *float64 `json:"mean_price"`
	TradeRate    *float64 `json:"trade_rate"`
}

// submitShoutRequest is the JSON request body for POST /markets/{market_id}/shouts.
type submitShoutRequest struct {
	TraderID string  `json:"trader_id"`
	Side     string  `json:"side"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// List handles GET /markets.
func (h *MarketHandler) List(w http.ResponseWriter, r *http.Request) {
	markets := h.marketSvc.ListMarkets()
	resp := make([]marketResponse, len(markets))
	for i, m := range markets {
		resp[i] = marketResponse{
			ID:       m.ID,
			Quoting:  m.Quoting,
			Clearing: m.Clearing,
			Pricing:  m.Pricing,
			Quote:    feed.NewQuoteView(m.Quote),
			Clears:   m.Clears,
		}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"markets": resp})
}

// GetQuote handles GET /markets/{market_id}/quote.
func (h *MarketHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	quote, err := h.marketSvc.GetQuote(chi.URLParam(r, "market_id"))
	if err != nil {
		mapMarketError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, quoteResponse{
		MarketID: quote.MarketID,
		Ask:      feed.Finite(quote.Quote.Ask),
		Bid:      feed.Finite(quote.Quote.Bid),
		Mid:      feed.Finite(quote.Quote.Mid()),
		QuotedAt: quote.QuotedAt.UTC().Format(timeFormat),
	})
}

// GetBook handles GET /markets/{market_id}/book.
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	// Parse depth query param (default 10, max 50).
	depth := 10
	if d := r.URL.Query().Get("depth"); d != "" {
		var err error
		depth, err = strconv.Atoi(d)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "depth must be a valid integer")
			return
		}
	}

	book, err := h.marketSvc.GetBook(chi.URLParam(r, "market_id"), depth)
	if err != nil {
		mapMarketError(w, err)
		return
	}

	b := book.Boundaries
	WriteJSON(w, http.StatusOK, bookResponse{
		MarketID: book.MarketID,
		Boundaries: boundariesResponse{
			LowestUnmatchedAsk:  feed.Finite(b.LowestUnmatchedAsk),
			HighestUnmatchedBid: feed.Finite(b.HighestUnmatchedBid),
			LowestMatchedBid:    feed.Finite(b.LowestMatchedBid),
			HighestMatchedAsk:   feed.Finite(b.HighestMatchedAsk),
		},
		Depth: depthResponse{
			UnmatchedAsks: book.Depth.UnmatchedAsks,
			MatchedAsks:   book.Depth.MatchedAsks,
			UnmatchedBids: book.Depth.UnmatchedBids,
			MatchedBids:   book.Depth.MatchedBids,
		},
		Bids:       levels(book.Bids),
		Asks:       levels(book.Asks),
		SnapshotAt: book.SnapshotAt.UTC().Format(timeFormat),
	})
}

func levels(pls []engine.PriceLevel) []bookLevelResponse {
	out := make([]bookLevelResponse, len(pls))
	for i, pl := range pls {
		out[i] = bookLevelResponse{
			Price:         pl.Price,
			TotalQuantity: pl.TotalQuantity,
			ShoutCount:    pl.ShoutCount,
		}
	}
	return out
}

// GetReport handles GET /markets/{market_id}/report.
func (h *MarketHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	threshold, err := strconv.ParseFloat(q.Get("threshold"), 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "threshold must be a number")
		return
	}
	matchedOnly := false
	if m := q.Get("matched"); m != "" {
		matchedOnly, err = strconv.ParseBool(m)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "matched must be a boolean")
			return
		}
	}

	c, err := h.marketSvc.CountShouts(chi.URLParam(r, "market_id"), q.Get("side"), threshold, matchedOnly)
	if err != nil {
		mapMarketError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, countResponse{
		MarketID:    c.MarketID,
		Side:        c.Side,
		Threshold:   c.Threshold,
		MatchedOnly: c.MatchedOnly,
		Count:       c.Count,
	})
}

// ListTransactions handles GET /markets/{market_id}/transactions.
func (h *MarketHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.marketSvc.ListTransactions(chi.URLParam(r, "market_id"))
	if err != nil {
		mapMarketError(w, err)
		return
	}
	resp := make([]feed.TransactionView, len(txs))
	for i, tx := range txs {
		resp[i] = feed.NewTransactionView(tx)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"transactions": resp})
}

// GetStats handles GET /markets/{market_id}/stats.
func (h *MarketHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.marketSvc.GetDailyStats(chi.URLParam(r, "market_id"))
	if err != nil {
		mapMarketError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, statsResponse{
		MarketID:     s.SpecialistID,
		Day:          s.Day,
		Shouts:       s.Shouts,
		Asks:         s.Asks,
		Bids:         s.Bids,
		Withdrawn:    s.Withdrawn,
		Transactions: s.Transactions,
		Volume:       s.Volume,
		MeanPrice:    feed.Finite(s.MeanPrice),
		TradeRate:    feed.Finite(s.TradeRate),
	})
}

// ListShouts handles GET /markets/{market_id}/shouts.
func (h *MarketHandler) ListShouts(w http.ResponseWriter, r *http.Request) {
	shouts, err := h.marketSvc.ListShouts(chi.URLParam(r, "market_id"))
	if err != nil {
		mapMarketError(w, err)
		return
	}
	resp := make([]feed.ShoutView, len(shouts))
	for i, sh := range shouts {
		resp[i] = feed.NewShoutView(sh)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"shouts": resp})
}

// SubmitShout handles POST /markets/{market_id}/shouts.
func (h *MarketHandler) SubmitShout(w http.ResponseWriter, r *http.Request) {
	var req submitShoutRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sh, err := h.marketSvc.SubmitShout(chi.URLParam(r, "market_id"), service.SubmitShoutRequest{
		TraderID: req.TraderID,
		Side:     req.Side,
		Price:    req.Price,
		Quantity: req.Quantity,
	})
	if err != nil {
		mapMarketError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, feed.NewShoutView(sh))
}

// GetShout handles GET /markets/{market_id}/shouts/{shout_id}.
func (h *MarketHandler) GetShout(w http.ResponseWriter, r *http.Request) {
	sh, err := h.marketSvc.GetShout(chi.URLParam(r, "market_id"), chi.URLParam(r, "shout_id"))
	if err != nil {
		mapMarketError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, feed.NewShoutView(sh))
}

// WithdrawShout handles DELETE /markets/{market_id}/shouts/{shout_id}.
func (h *MarketHandler) WithdrawShout(w http.ResponseWriter, r *http.Request) {
	sh, err := h.marketSvc.WithdrawShout(chi.URLParam(r, "market_id"), chi.URLParam(r, "shout_id"))
	if err != nil {
		mapMarketError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, feed.NewShoutView(sh))
}

// mapMarketError maps domain errors to HTTP responses for market endpoints.
func mapMarketError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrMarketNotFound):
		WriteError(w, http.StatusNotFound, "market_not_found", "Market not found")
	case errors.Is(err, domain.ErrShoutNotFound), errors.Is(err, domain.ErrWrongMarket):
		WriteError(w, http.StatusNotFound, "shout_not_found", "Shout not found")
	case errors.Is(err, domain.ErrShoutNotWithdrawable):
		WriteError(w, http.StatusConflict, "shout_not_withdrawable", "Only placed shouts can be withdrawn")
	case errors.Is(err, domain.ErrDuplicateShout):
		WriteError(w, http.StatusConflict, "duplicate_shout", "Shout id already in use")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
