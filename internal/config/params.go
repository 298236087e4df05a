package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Params is the key→value configuration a component receives before first
// use. Missing keys yield the caller's typed default; malformed values
// yield an error naming the key.
type Params map[string]string

// Sub returns the parameters under prefix with the prefix stripped:
// Params{"clearing.threshold": "0.5"}.Sub("clearing") has key "threshold".
func (p Params) Sub(prefix string) Params {
	out := make(Params)
	pfx := prefix + "."
	for k, v := range p {
		if strings.HasPrefix(k, pfx) {
			out[strings.TrimPrefix(k, pfx)] = v
		}
	}
	return out
}

// String returns the value of key or def.
func (p Params) String(key, def string) string {
	if v, ok := p[key]; ok && v != "" {
		return v
	}
	return def
}

// Float returns the value of key parsed as a float64, or def.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("param %s: %w", key, err)
	}
	return f, nil
}

// Int returns the value of key parsed as an int, or def.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("param %s: %w", key, err)
	}
	return n, nil
}
