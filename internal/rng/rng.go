// Package rng provides the uniform deviate sources consumed by
// probabilistic clearing and the simulation driver. Sources are injected;
// there is no package-level generator.
package rng

import (
	"math/rand/v2"
	"sync"
)

// Source yields uniform deviates in [0,1).
type Source interface {
	NextUniform() float64
}

// LockedSource is a seeded PCG generator that is safe for concurrent draws.
type LockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewLockedSource returns a generator seeded with seed.
func NewLockedSource(seed uint64) *LockedSource {
	return &LockedSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NextUniform returns the next deviate in [0,1).
func (s *LockedSource) NextUniform() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// IntN returns a uniform int in [0,n). It panics if n <= 0.
func (s *LockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

// Factory hands out sources. With multiEngine off every caller shares one
// generator; with it on each call gets its own generator derived from the
// base seed, so markets draw independent streams.
type Factory struct {
	mu          sync.Mutex
	seed        uint64
	multiEngine bool
	shared      *LockedSource
	issued      uint64
}

// NewFactory creates a factory for the given base seed.
func NewFactory(seed uint64, multiEngine bool) *Factory {
	return &Factory{
		seed:        seed,
		multiEngine: multiEngine,
		shared:      NewLockedSource(seed),
	}
}

// Source returns the next source according to the factory's mode.
func (f *Factory) Source() *LockedSource {
	if !f.multiEngine {
		return f.shared
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued++
	return NewLockedSource(f.seed + f.issued*0x2545f4914f6cdd1d)
}

// Fixed replays a fixed sequence of deviates, cycling when exhausted.
// Meant for tests and deterministic scenarios.
type Fixed struct {
	mu     sync.Mutex
	values []float64
	next   int
}

// NewFixed returns a source replaying values. An empty sequence yields 0.
func NewFixed(values ...float64) *Fixed {
	return &Fixed{values: values}
}

// NextUniform returns the next value of the sequence.
func (f *Fixed) NextUniform() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.values) == 0 {
		return 0
	}
	v := f.values[f.next%len(f.values)]
	f.next++
	return v
}

// Draws returns how many deviates have been drawn.
func (f *Fixed) Draws() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}
