package handler

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/auctionsim/internal/metrics"
	"github.com/efreitasn/auctionsim/internal/service"
)

// Observability carries the optional /metrics and /ws endpoints.
type Observability struct {
	Metrics *metrics.Metrics
	Feed    http.Handler
}

// NewRouter registers the market routes behind request logging and, when
// obs.Metrics is set, HTTP instrumentation.
func NewRouter(marketSvc *service.MarketService, obs Observability, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	if obs.Metrics != nil {
		r.Use(obs.Metrics.Middleware)
	}
	r.Use(contentTypeJSON)

	marketH := NewMarketHandler(marketSvc)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Market routes.
	r.Get("/markets", marketH.List)
	r.Route("/markets/{market_id}", func(r chi.Router) {
		r.Get("/quote", marketH.GetQuote)
		r.Get("/book", marketH.GetBook)
		r.Get("/report", marketH.GetReport)
		r.Get("/transactions", marketH.ListTransactions)
		r.Get("/stats", marketH.GetStats)

		// Shout routes.
		r.Get("/shouts", marketH.ListShouts)
		r.Post("/shouts", marketH.SubmitShout)
		r.Get("/shouts/{shout_id}", marketH.GetShout)
		r.Delete("/shouts/{shout_id}", marketH.WithdrawShout)
	})

	if obs.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", obs.Metrics.Handler())
	}
	if obs.Feed != nil {
		r.Method(http.MethodGet, "/ws", obs.Feed)
	}

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the /ws upgrade take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	w.wroteHeader = true
	return h.Hijack()
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
