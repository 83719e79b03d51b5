// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cost estimates token counts and the monetary cost of model calls.
// Everything here is stateless except Meter, which a single run owns.
package cost

import (
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pdiddy/lecture-engine/pkg/types"
)

// charsPerToken is the length-based approximation used by EstimateTokens.
const charsPerToken = 4

// DefaultModelKey is the pricing table entry used for unknown models.
const DefaultModelKey = "default"

// Rate is the price of a model in USD per million tokens.
type Rate struct {
	InputPerMillion  float64 `json:"input_per_million" yaml:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million" yaml:"output_per_million"`
}

// fallbackRate applies when a table has no default entry of its own.
var fallbackRate = Rate{InputPerMillion: 3, OutputPerMillion: 15}

// PricingTable maps model identifiers to rates.
type PricingTable map[string]Rate

// DefaultPricing returns the built-in rate table.
func DefaultPricing() PricingTable {
	return PricingTable{
		"claude-opus-4-1":   {InputPerMillion: 15, OutputPerMillion: 75},
		"claude-sonnet-4-5": {InputPerMillion: 3, OutputPerMillion: 15},
		"claude-haiku-4-5":  {InputPerMillion: 1, OutputPerMillion: 5},
		"gpt-4o":            {InputPerMillion: 2.5, OutputPerMillion: 10},
		"gpt-4o-mini":       {InputPerMillion: 0.15, OutputPerMillion: 0.6},
		"gpt-4.1":           {InputPerMillion: 2, OutputPerMillion: 8},
		"deepseek-chat":     {InputPerMillion: 0.27, OutputPerMillion: 1.1},
		"mock":              {},
		DefaultModelKey:     fallbackRate,
	}
}

// FromConfig builds a table from configuration entries layered over the
// built-in defaults.
func FromConfig(entries map[string]types.RateConfig) PricingTable {
	table := DefaultPricing()
	for model, r := range entries {
		table[strings.ToLower(strings.TrimSpace(model))] = Rate{
			InputPerMillion:  r.InputPerMillion,
			OutputPerMillion: r.OutputPerMillion,
		}
	}
	return table
}

// Rate returns the rate for model. Lookup is case-insensitive; dated
// snapshots such as "claude-sonnet-4-5-20250929" match their base entry.
// Unknown models get the table's default entry, or the built-in fallback.
func (t PricingTable) Rate(model string) Rate {
	key := strings.ToLower(strings.TrimSpace(model))
	if r, ok := t[key]; ok {
		return r
	}
	best := ""
	for k := range t {
		if k != DefaultModelKey && strings.HasPrefix(key, k+"-") && len(k) > len(best) {
			best = k
		}
	}
	if best != "" {
		return t[best]
	}
	if r, ok := t[DefaultModelKey]; ok {
		return r
	}
	return fallbackRate
}

// Cost prices one call. Negative token counts count as zero.
func (t PricingTable) Cost(model string, inputTokens, outputTokens int) float64 {
	r := t.Rate(model)
	in := float64(max(inputTokens, 0))
	out := float64(max(outputTokens, 0))
	return (in*r.InputPerMillion + out*r.OutputPerMillion) / 1_000_000
}

// Cost prices one call with DefaultPricing.
func Cost(model string, inputTokens, outputTokens int) float64 {
	return DefaultPricing().Cost(model, inputTokens, outputTokens)
}

// EstimateTokens approximates the token count of text as one token per four
// characters, rounded up.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) / charsPerToken))
}

// Meter accumulates the estimated spend of one run. The total never
// decreases.
type Meter struct {
	mu    sync.Mutex
	total float64
	calls int
}

// Add records the cost of one call and returns the new total. Negative
// and NaN amounts are ignored.
func (m *Meter) Add(amount float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount > 0 && !math.IsInf(amount, 1) {
		m.total += amount
	}
	m.calls++
	return m.total
}

// Total returns the accumulated spend.
func (m *Meter) Total() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Calls returns how many calls were recorded.
func (m *Meter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
