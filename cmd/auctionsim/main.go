package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/auctionsim/internal/config"
	"github.com/efreitasn/auctionsim/internal/engine"
	"github.com/efreitasn/auctionsim/internal/events"
	"github.com/efreitasn/auctionsim/internal/feed"
	"github.com/efreitasn/auctionsim/internal/handler"
	"github.com/efreitasn/auctionsim/internal/metrics"
	"github.com/efreitasn/auctionsim/internal/report"
	"github.com/efreitasn/auctionsim/internal/rng"
	"github.com/efreitasn/auctionsim/internal/service"
	"github.com/efreitasn/auctionsim/internal/sim"
	"github.com/efreitasn/auctionsim/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Event bus and stores.
	bus := events.NewEngine(logger)
	bus.Start()
	shoutStore := store.NewShoutStore()
	txStore := store.NewTransactionStore()
	sources := rng.NewFactory(cfg.Seed, cfg.MultiEngine)

	met := metrics.New()
	fd := feed.New(met.FeedClients, logger)

	// One market per specialist. Markets check in before their reports so
	// a report sees each shout before the transactions that close it.
	registry := engine.NewRegistry()
	reports := make([]*report.HistoricalReport, 0, len(cfg.Markets))
	venues := make([]sim.Venue, 0, len(cfg.Markets))
	for _, id := range cfg.Markets {
		policies, err := engine.NewPolicies(id, cfg.MarketParams(), sources.Source(), logger)
		if err != nil {
			logger.Error("invalid market policies", slog.String("market", id), slog.String("error", err.Error()))
			os.Exit(1)
		}
		m := engine.NewMarket(id, bus, shoutStore, txStore, policies, logger)
		m.Start()
		registry.Register(m)
		venues = append(venues, m)

		r := report.NewHistoricalReport(id, m.Channel(), bus, logger)
		r.Start()
		reports = append(reports, r)

		met.Observe(bus, m.Channel(), id)
		fd.Observe(bus, m.Channel(), id)

		logger.Info("market opened",
			slog.String("market", id),
			slog.String("quoting", policies.Quoting.Name()),
			slog.String("clearing", policies.Clearing.Name()),
			slog.String("pricing", policies.Pricing.Name()),
		)
	}
	fd.ObserveClock(bus)

	population := sim.NewPopulation(cfg.Traders, venues, sources.Source(), logger)
	traders := make([]sim.Trader, len(population))
	for i, t := range population {
		traders[i] = t
	}
	clock := sim.NewClock(bus, cfg.Days, cfg.Rounds, cfg.RoundInterval, traders, logger)

	marketSvc := service.NewMarketService(registry, reports, shoutStore, txStore)
	router := handler.NewRouter(marketSvc, handler.Observability{Metrics: met, Feed: fd}, logger)

	// Run the game with a cancellable context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := clock.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("game stopped", slog.String("error", err.Error()))
			return
		}
		logger.Info("game finished", slog.Int("days", cfg.Days), slog.Int("rounds", cfg.Rounds))
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Stop the game first so no shouts arrive during shutdown.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	bus.Stop()

	logger.Info("server stopped")
}
