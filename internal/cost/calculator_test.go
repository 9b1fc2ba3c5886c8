package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/contact-classifier/internal/config"
)

func TestClaude(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(map[string]ModelRate{
		"haiku":  {Input: 1.00, Output: 5.00},
		"sonnet": {Input: 3.00, Output: 15.00},
	})

	tests := []struct {
		name   string
		model  string
		input  int64
		output int64
		want   float64
	}{
		{name: "haiku one million in", model: "haiku", input: 1_000_000, output: 0, want: 1.00},
		{name: "haiku mixed", model: "haiku", input: 2_000, output: 400, want: 0.004},
		{name: "sonnet mixed", model: "sonnet", input: 10_000, output: 1_000, want: 0.045},
		{name: "unknown model", model: "gpt", input: 1_000_000, output: 1_000_000, want: 0},
		{name: "zero tokens", model: "sonnet", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, calc.Claude(tt.model, tt.input, tt.output), 1e-9)
		})
	}
}

func TestNilCalculator(t *testing.T) {
	t.Parallel()
	var calc *Calculator
	assert.Zero(t, calc.Claude("haiku", 10, 10))
	assert.False(t, calc.Known("haiku"))
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	calc := FromConfig(config.PricingConfig{
		Anthropic: map[string]config.ModelPricing{"custom": {Input: 2, Output: 4}},
	})
	assert.True(t, calc.Known("custom"))
	assert.False(t, calc.Known("claude-haiku-4-5-20251001"))
	assert.InDelta(t, 6.0, calc.Claude("custom", 1_000_000, 1_000_000), 1e-9)

	def := FromConfig(config.PricingConfig{})
	assert.True(t, def.Known("claude-sonnet-4-5-20250929"))
}
