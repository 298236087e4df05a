// Package metrics provides Prometheus instrumentation for the auction
// simulator: market activity observed on the event bus, feed clients and
// HTTP requests.
package metrics

import (
	"bufio"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/efreitasn/auctionsim/internal/domain"
	"github.com/efreitasn/auctionsim/internal/events"
)

// Metrics holds every collector, registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	ShoutsTotal         *prometheus.CounterVec
	WithdrawalsTotal    *prometheus.CounterVec
	TransactionsTotal   *prometheus.CounterVec
	VolumeTotal         *prometheus.CounterVec
	ClearsTotal         *prometheus.CounterVec
	Quote               *prometheus.GaugeVec
	FeedClients         prometheus.Gauge
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ShoutsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auctionsim_shouts_total",
			Help: "Total number of shouts placed",
		}, []string{"market", "side"}),
		WithdrawalsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auctionsim_withdrawals_total",
			Help: "Total number of shouts withdrawn",
		}, []string{"market"}),
		TransactionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auctionsim_transactions_total",
			Help: "Total number of transactions posted",
		}, []string{"market"}),
		VolumeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auctionsim_volume_total",
			Help: "Cumulative transacted quantity",
		}, []string{"market"}),
		ClearsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auctionsim_clears_total",
			Help: "Total number of clears that produced transactions",
		}, []string{"market"}),
		Quote: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "auctionsim_quote",
			Help: "Current quote per market and side; NaN when there is none",
		}, []string{"market", "side"}),
		FeedClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "auctionsim_feed_clients",
			Help: "Number of connected event feed clients",
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auctionsim_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auctionsim_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"method", "path"}),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe checks a listener in on a market's channel that counts the
// market's activity. It returns the handle to check it out with.
func (m *Metrics) Observe(bus *events.Engine, channel any, market string) events.Handle {
	return bus.CheckIn(channel, func(ev domain.Event) {
		m.record(market, ev)
	})
}

func (m *Metrics) record(market string, ev domain.Event) {
	switch ev := ev.(type) {
	case domain.ShoutPlacedEvent:
		m.ShoutsTotal.WithLabelValues(market, ev.Shout.Side()).Inc()
	case domain.ShoutWithdrawnEvent:
		m.WithdrawalsTotal.WithLabelValues(market).Inc()
	case domain.TransactionPostedEvent:
		m.TransactionsTotal.WithLabelValues(market).Inc()
		m.VolumeTotal.WithLabelValues(market).Add(float64(ev.Transaction.Quantity))
	case domain.ClearedEvent:
		m.ClearsTotal.WithLabelValues(market).Inc()
	case domain.QuoteUpdatedEvent:
		m.Quote.WithLabelValues(market, "ask").Set(gaugeValue(ev.Quote.Ask))
		m.Quote.WithLabelValues(market, "bid").Set(gaugeValue(ev.Quote.Bid))
	}
}

// gaugeValue maps the ±Inf "no quote" sentinels to NaN.
func gaugeValue(f float64) float64 {
	if math.IsInf(f, 0) {
		return math.NaN()
	}
	return f
}

// Middleware returns an HTTP middleware that records request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route patterns keep the path label's cardinality bounded.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
