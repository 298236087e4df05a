// Package sim drives a game: a clock publishing day and round boundaries
// on the global channel, and a population of random traders placing
// shouts between them.
package sim

import (
	"context"
	"log/slog"
	"time"

	"github.com/efreitasn/auctionsim/internal/domain"
	"github.com/efreitasn/auctionsim/internal/events"
)

// Trader acts once per round.
type Trader interface {
	Trade(ctx context.Context, day, round int)
}

// Clock publishes DayOpening, RoundOpened, RoundClosing and DayClosed on
// events.Global for Days × Rounds, letting every trader act inside each
// round.
type Clock struct {
	bus      *events.Engine
	days     int
	rounds   int
	interval time.Duration
	traders  []Trader
	logger   *slog.Logger
}

// NewClock creates a clock. With a zero interval rounds run back to back;
// otherwise each round lasts one tick.
func NewClock(bus *events.Engine, days, rounds int, interval time.Duration, traders []Trader, logger *slog.Logger) *Clock {
	if logger == nil {
		logger = slog.Default()
	}
	return &Clock{
		bus:      bus,
		days:     days,
		rounds:   rounds,
		interval: interval,
		traders:  traders,
		logger:   logger.With(slog.String("component", "clock")),
	}
}

// Run plays the whole game. It returns ctx.Err() if the context is
// cancelled first; the round in progress is still closed.
func (c *Clock) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if c.interval > 0 {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for day := 1; day <= c.days; day++ {
		c.bus.Dispatch(events.Global, domain.DayOpeningEvent{Day: day})
		c.logger.Info("day opened", slog.Int("day", day))

		for round := 1; round <= c.rounds; round++ {
			c.bus.Dispatch(events.Global, domain.RoundOpenedEvent{Day: day, Round: round})
			for _, t := range c.traders {
				if ctx.Err() != nil {
					break
				}
				t.Trade(ctx, day, round)
			}
			err := c.wait(ctx, tick)
			c.bus.Dispatch(events.Global, domain.RoundClosingEvent{Day: day, Round: round})
			if err != nil {
				c.bus.Dispatch(events.Global, domain.DayClosedEvent{Day: day})
				return err
			}
		}

		c.bus.Dispatch(events.Global, domain.DayClosedEvent{Day: day})
		c.logger.Info("day closed", slog.Int("day", day))
	}
	return nil
}

func (c *Clock) wait(ctx context.Context, tick <-chan time.Time) error {
	if tick == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tick:
		return nil
	}
}
