package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the auction simulator.
type Config struct {
	Port     int
	LogLevel string

	// Markets lists the specialist ids, one market each.
	Markets []string

	QuotingPolicy     string
	Spread            float64
	ClearingCondition string
	Threshold         float64
	CombiConditions   []string
	PricingPolicy     string
	PricingK          float64

	// CombiThresholds overrides Threshold for single combined conditions,
	// keyed by position in CombiConditions.
	CombiThresholds map[int]float64

	Days          int
	Rounds        int
	Traders       int
	Seed          uint64
	MultiEngine   bool
	RoundInterval time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
//
// Policy parameters (spread, threshold, k) are only parsed here. Their
// domain checks belong to the policies, which log and fall back to safe
// defaults instead of failing.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	markets := getList("MARKETS", []string{"alpha", "beta"})
	if len(markets) == 0 {
		return nil, fmt.Errorf("invalid MARKETS: at least one market is required")
	}
	seen := make(map[string]bool, len(markets))
	for _, m := range markets {
		if seen[m] {
			return nil, fmt.Errorf("invalid MARKETS: duplicate market %q", m)
		}
		seen[m] = true
	}

	spread, err := getFloat("SPREAD", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid SPREAD: %w", err)
	}

	threshold, err := getFloat("THRESHOLD", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid THRESHOLD: %w", err)
	}

	combiThresholds, err := getIndexedFloats("COMBI_THRESHOLDS")
	if err != nil {
		return nil, fmt.Errorf("invalid COMBI_THRESHOLDS: %w", err)
	}

	pricingK, err := getFloat("PRICING_K", 0.5)
	if err != nil {
		return nil, fmt.Errorf("invalid PRICING_K: %w", err)
	}

	days, err := getInt("DAYS", 1)
	if err != nil || days < 1 {
		return nil, fmt.Errorf("invalid DAYS: must be a positive integer")
	}

	rounds, err := getInt("ROUNDS", 10)
	if err != nil || rounds < 1 {
		return nil, fmt.Errorf("invalid ROUNDS: must be a positive integer")
	}

	traders, err := getInt("TRADERS", 20)
	if err != nil || traders < 0 {
		return nil, fmt.Errorf("invalid TRADERS: must be a non-negative integer")
	}

	seed, err := getUint("SEED", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid SEED: %w", err)
	}

	multiEngine, err := getBool("MULTI_ENGINE", false)
	if err != nil {
		return nil, fmt.Errorf("invalid MULTI_ENGINE: %w", err)
	}

	roundInterval, err := getDuration("ROUND_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid ROUND_INTERVAL: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:              port,
		LogLevel:          logLevel,
		Markets:           markets,
		QuotingPolicy:     getStr("QUOTING_POLICY", "spread"),
		Spread:            spread,
		ClearingCondition: getStr("CLEARING_CONDITION", "probabilistic"),
		Threshold:         threshold,
		CombiConditions:   getList("COMBI_CONDITIONS", []string{"round", "probabilistic"}),
		CombiThresholds:   combiThresholds,
		PricingPolicy:     getStr("PRICING_POLICY", "k"),
		PricingK:          pricingK,
		Days:              days,
		Rounds:            rounds,
		Traders:           traders,
		Seed:              seed,
		MultiEngine:       multiEngine,
		RoundInterval:     roundInterval,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ShutdownTimeout:   shutdownTimeout,
	}, nil
}

// MarketParams returns the per-market policy parameters in the key→value
// form the policy factories are configured with.
func (c *Config) MarketParams() Params {
	p := Params{
		"quoting":            c.QuotingPolicy,
		"quoting.spread":     strconv.FormatFloat(c.Spread, 'g', -1, 64),
		"clearing":           c.ClearingCondition,
		"clearing.threshold": strconv.FormatFloat(c.Threshold, 'g', -1, 64),
		"clearing.n":         strconv.Itoa(len(c.CombiConditions)),
		"pricing":            c.PricingPolicy,
		"pricing.k":          strconv.FormatFloat(c.PricingK, 'g', -1, 64),
	}
	for i, name := range c.CombiConditions {
		p[fmt.Sprintf("clearing.%d", i)] = name
	}
	for i, th := range c.CombiThresholds {
		p[fmt.Sprintf("clearing.%d.threshold", i)] = strconv.FormatFloat(th, 'g', -1, 64)
	}
	return p
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getIndexedFloats parses a positional comma-separated list such as
// "0.2,,0.7". Blank positions are left out of the result.
func getIndexedFloats(key string) (map[int]float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	out := make(map[int]float64)
	for i, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getUint(key string, defaultVal uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseBool(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
