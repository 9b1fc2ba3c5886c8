// Package cost estimates the USD spend of AI calls for activity metadata.
package cost

import (
	"math"

	"github.com/sells-group/contact-classifier/internal/config"
)

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64
	Output float64
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates map[string]ModelRate
}

// NewCalculator creates a Calculator with the given per-model rates.
func NewCalculator(rates map[string]ModelRate) *Calculator {
	return &Calculator{rates: rates}
}

// FromConfig builds a Calculator from the pricing config section, falling
// back to DefaultRates when the section is empty.
func FromConfig(p config.PricingConfig) *Calculator {
	if len(p.Anthropic) == 0 {
		return NewCalculator(DefaultRates())
	}
	rates := make(map[string]ModelRate, len(p.Anthropic))
	for model, r := range p.Anthropic {
		rates[model] = ModelRate{Input: r.Input, Output: r.Output}
	}
	return NewCalculator(rates)
}

// Claude computes the cost for one Claude call. Unknown models cost 0.
func (c *Calculator) Claude(model string, input, output int64) float64 {
	if c == nil {
		return 0
	}
	rate, ok := c.rates[model]
	if !ok {
		return 0
	}
	usd := float64(input)/1e6*rate.Input + float64(output)/1e6*rate.Output
	return math.Round(usd*1e6) / 1e6
}

// Known reports whether the model has a configured rate.
func (c *Calculator) Known(model string) bool {
	if c == nil {
		return false
	}
	_, ok := c.rates[model]
	return ok
}

// DefaultRates returns the default pricing rates.
func DefaultRates() map[string]ModelRate {
	return map[string]ModelRate{
		"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
	}
}
