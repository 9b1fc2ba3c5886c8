package classify

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-classifier/internal/cache"
	"github.com/sells-group/contact-classifier/internal/model"
	"github.com/sells-group/contact-classifier/internal/resilience"
	"github.com/sells-group/contact-classifier/pkg/anthropic"
)

// Tier selects the primary or the stronger escalation model.
type Tier string

const (
	TierPrimary    Tier = "primary"
	TierEscalation Tier = "escalation"
)

// Usage is the token consumption of one or more calls.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Total is the figure charged to the job's token budget.
func (u Usage) Total() int64 { return u.InputTokens + u.OutputTokens }

func (u *Usage) add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
}

// Response is a provider's answer for one batch. Results are in input order.
type Response struct {
	Results []model.Result
	Model   string
	Usage   Usage
	// Prompt and Raw are kept for activity excerpts.
	Prompt string
	Raw    string
}

// Provider classifies a batch with schema-constrained output.
type Provider interface {
	Classify(ctx context.Context, inputs []cache.AIInput, lang string, tier Tier) (*Response, error)
}

const toolName = "record_classifications"

var classificationTool = anthropic.Tool{
	Name:        toolName,
	Description: "Record exactly one classification for every contact in the batch.",
	Properties: map[string]any{
		"classifications": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"index": map[string]any{
						"type":        "integer",
						"description": "The contact's index in the request.",
					},
					"category": map[string]any{
						"type": "string",
						"enum": []string{
							string(model.CategoryClient),
							string(model.CategoryPrescriber),
							string(model.CategorySupplier),
							string(model.CategoryNeedsQualification),
						},
					},
					"confidence": map[string]any{
						"type":    "integer",
						"minimum": 0,
						"maximum": 100,
					},
					"reason":       map[string]any{"type": "string"},
					"signals_used": map[string]any{"type": "string"},
					"needs_review": map[string]any{"type": "boolean"},
				},
				"required": []string{"index", "category", "confidence", "reason", "signals_used", "needs_review"},
			},
		},
	},
}

type toolInput struct {
	Classifications []toolResult `json:"classifications"`
}

type toolResult struct {
	Index       int    `json:"index"`
	Category    string `json:"category"`
	Confidence  int    `json:"confidence"`
	Reason      string `json:"reason"`
	SignalsUsed string `json:"signals_used"`
	NeedsReview bool   `json:"needs_review"`
}

// AnthropicProvider implements Provider with forced tool use.
type AnthropicProvider struct {
	client    anthropic.Client
	breaker   *resilience.Breaker
	models    map[Tier]string
	maxTokens int64
}

// NewAnthropicProvider creates a provider for the two model tiers.
func NewAnthropicProvider(client anthropic.Client, breaker *resilience.Breaker, primary, escalation string, maxTokens int64) *AnthropicProvider {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicProvider{
		client:  client,
		breaker: breaker,
		models: map[Tier]string{
			TierPrimary:    primary,
			TierEscalation: escalation,
		},
		maxTokens: maxTokens,
	}
}

func (p *AnthropicProvider) Classify(ctx context.Context, inputs []cache.AIInput, lang string, tier Tier) (*Response, error) {
	modelID := p.models[tier]
	if modelID == "" {
		return nil, eris.Errorf("classify: no model configured for tier %s", tier)
	}

	prompt, err := userPrompt(inputs)
	if err != nil {
		return nil, err
	}
	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       modelID,
		MaxTokens:   p.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(systemPrompt(lang)),
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
		Tools:       []anthropic.Tool{classificationTool},
		ForceTool:   toolName,
	}

	resp, err := resilience.Call(ctx, p.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return p.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "classify: %s call", tier)
	}

	var in toolInput
	raw, err := anthropic.DecodeToolInput(resp, toolName, &in)
	if err != nil {
		return nil, err
	}
	results, err := decodeResults(in, len(inputs))
	if err != nil {
		return nil, err
	}
	usedModel := resp.Model
	if usedModel == "" {
		usedModel = modelID
	}
	for i := range results {
		results[i].Model = usedModel
	}

	return &Response{
		Results: results,
		Model:   usedModel,
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
		Prompt: prompt,
		Raw:    string(raw),
	}, nil
}

// decodeResults maps tool output back onto input order. Every index must be
// answered exactly once with a known category.
func decodeResults(in toolInput, n int) ([]model.Result, error) {
	results := make([]model.Result, n)
	seen := make([]bool, n)
	for _, r := range in.Classifications {
		if r.Index < 0 || r.Index >= n {
			return nil, eris.Errorf("classify: result index %d out of range", r.Index)
		}
		if seen[r.Index] {
			return nil, eris.Errorf("classify: duplicate result for index %d", r.Index)
		}
		cat, err := model.ParseCategory(r.Category)
		if err != nil {
			return nil, eris.Wrapf(err, "classify: result %d", r.Index)
		}
		seen[r.Index] = true
		results[r.Index] = model.Result{
			Category:    cat,
			Confidence:  clamp(r.Confidence, 0, 100),
			Reason:      r.Reason,
			Signals:     r.SignalsUsed,
			NeedsReview: r.NeedsReview,
		}
	}
	for i, ok := range seen {
		if !ok {
			return nil, eris.Errorf("classify: response missing contact %d", i)
		}
	}
	return results, nil
}

func userPrompt(inputs []cache.AIInput) (string, error) {
	type indexed struct {
		Index int `json:"index"`
		cache.AIInput
	}
	list := make([]indexed, len(inputs))
	for i, in := range inputs {
		list[i] = indexed{Index: i, AIInput: in}
	}
	body, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "classify: marshal contacts")
	}
	return "Contacts:\n" + string(body), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
