package engine

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/efreitasn/auctionsim/internal/config"
	"github.com/efreitasn/auctionsim/internal/domain"
	"github.com/efreitasn/auctionsim/internal/rng"
)

// ClearingCondition decides, event by event, when a market turns its
// matched shouts into transactions. Conditions hold no book state; the
// market clears once for every event a condition fires on.
type ClearingCondition interface {
	ShouldClear(ev domain.Event) bool
	Name() string
}

// RoundCondition fires when a round closes: a periodic call market.
type RoundCondition struct{}

func (RoundCondition) Name() string { return "round" }

// ShouldClear reports true for RoundClosingEvent.
func (RoundCondition) ShouldClear(ev domain.Event) bool {
	_, ok := ev.(domain.RoundClosingEvent)
	return ok
}

// ProbabilisticCondition clears at round close like RoundCondition, and
// also with probability Threshold after every shout placed with its
// market. Threshold 1 is a continuous double auction, threshold 0 a pure
// call market.
type ProbabilisticCondition struct {
	RoundCondition
	SpecialistID string
	Threshold    float64
	source       rng.Source
}

// NewProbabilisticCondition returns a condition drawing from src.
// Thresholds outside [0,1] are logged and clamped.
func NewProbabilisticCondition(specialistID string, threshold float64, src rng.Source, logger *slog.Logger) *ProbabilisticCondition {
	clamped := threshold
	switch {
	case math.IsNaN(threshold):
		clamped = 1
	case threshold < 0:
		clamped = 0
	case threshold > 1:
		clamped = 1
	}
	if clamped != threshold {
		logger.Warn("clearing threshold outside [0,1], clamped",
			slog.String("specialist_id", specialistID),
			slog.Float64("threshold", threshold),
			slog.Float64("clamped", clamped),
		)
	}
	return &ProbabilisticCondition{
		SpecialistID: specialistID,
		Threshold:    clamped,
		source:       src,
	}
}

func (*ProbabilisticCondition) Name() string { return "probabilistic" }

// ShouldClear draws one deviate per shout placed with this market and fires
// when it falls below the threshold. Round closings always fire.
func (c *ProbabilisticCondition) ShouldClear(ev domain.Event) bool {
	if c.RoundCondition.ShouldClear(ev) {
		return true
	}
	placed, ok := ev.(domain.ShoutPlacedEvent)
	if !ok || placed.SpecialistID != c.SpecialistID {
		return false
	}
	return c.source.NextUniform() < c.Threshold
}

// CombiCondition fires when any of its conditions fires. Every condition
// observes every event, even after an earlier one has fired.
type CombiCondition struct {
	conditions []ClearingCondition
	inert      bool
}

// NewCombiCondition combines conditions. An inert combi never fires.
func NewCombiCondition(conditions ...ClearingCondition) *CombiCondition {
	return &CombiCondition{conditions: conditions}
}

func (*CombiCondition) Name() string { return "combi" }

// Conditions returns the combined conditions in order.
func (c *CombiCondition) Conditions() []ClearingCondition {
	return c.conditions
}

// Inert reports whether the combi was misconfigured and never fires.
func (c *CombiCondition) Inert() bool {
	return c.inert
}

// ShouldClear forwards ev to every condition and reports whether any fired.
func (c *CombiCondition) ShouldClear(ev domain.Event) bool {
	if c.inert {
		return false
	}
	fired := false
	for _, cond := range c.conditions {
		if cond.ShouldClear(ev) {
			fired = true
		}
	}
	return fired
}

// NewClearingCondition builds the condition named by params["clearing"]
// (round, probabilistic or combi; round by default) from the "clearing."
// keys:
//
//	clearing.threshold      probabilistic threshold, default 1
//	clearing.n              number of combined conditions
//	clearing.<i>            name of the i-th combined condition
//	clearing.<i>.threshold  threshold of the i-th condition, default
//	                        clearing.threshold
//
// A negative clearing.n is logged and yields an inert combi.
func NewClearingCondition(specialistID string, params config.Params, src rng.Source, logger *slog.Logger) (ClearingCondition, error) {
	name := params.String("clearing", "round")
	sub := params.Sub("clearing")

	if name != "combi" {
		return newSimpleCondition(name, specialistID, sub, 1, src, logger)
	}

	n, err := sub.Int("n", 0)
	if err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}
	if n < 0 {
		logger.Error("negative clearing condition count, combi condition is inert",
			slog.String("specialist_id", specialistID),
			slog.Int("n", n),
		)
		return &CombiCondition{inert: true}, nil
	}
	shared, err := sub.Float("threshold", 1)
	if err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}
	conds := make([]ClearingCondition, 0, n)
	for i := 0; i < n; i++ {
		subName := sub.String(strconv.Itoa(i), "")
		if subName == "" {
			return nil, &domain.ValidationError{Message: fmt.Sprintf("clearing.%d is not set", i)}
		}
		cond, err := newSimpleCondition(subName, specialistID, sub.Sub(strconv.Itoa(i)), shared, src, logger)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return NewCombiCondition(conds...), nil
}

// newSimpleCondition builds a round or probabilistic condition; a missing
// threshold key falls back to threshold.
func newSimpleCondition(name, specialistID string, sub config.Params, threshold float64, src rng.Source, logger *slog.Logger) (ClearingCondition, error) {
	switch name {
	case "round":
		return RoundCondition{}, nil
	case "probabilistic":
		threshold, err := sub.Float("threshold", threshold)
		if err != nil {
			return nil, &domain.ValidationError{Message: err.Error()}
		}
		if src == nil {
			return nil, &domain.ValidationError{Message: "probabilistic clearing needs a deviate source"}
		}
		return NewProbabilisticCondition(specialistID, threshold, src, logger), nil
	}
	return nil, &domain.ValidationError{Message: fmt.Sprintf("unknown clearing condition %q", name)}
}
