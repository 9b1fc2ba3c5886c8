// Package classify runs the tiered AI classification stage: response cache,
// primary model, selective escalation and the fallback-category policy.
package classify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-classifier/internal/cache"
	"github.com/sells-group/contact-classifier/internal/metrics"
	"github.com/sells-group/contact-classifier/internal/model"
)

// ShouldEscalate reports whether low-confidence results are a minority worth
// resubmitting. Half or more signals broadly insufficient input.
func ShouldEscalate(low, n int) bool {
	return low > 0 && low*2 < n
}

// Call records one provider call made for a batch.
type Call struct {
	Tier   Tier
	Model  string
	Rows   int
	Usage  Usage
	Prompt string
	Raw    string
}

// BatchResult is the outcome of ClassifyBatch.
type BatchResult struct {
	Results   []model.Result
	CacheHit  bool
	Escalated int
	Usage     Usage
	Calls     []Call
}

// Classifier wraps a Provider with the AI response cache and escalation.
type Classifier struct {
	provider        Provider
	cache           *cache.Layer
	ttl           time.Duration
	escalateBelow int
	metrics       *metrics.Metrics
}

// DefaultEscalateBelow is the primary-model confidence under which a result
// is a candidate for escalation.
const DefaultEscalateBelow = 70

// NewClassifier creates a Classifier. Primary results with confidence below
// escalateBelow are candidates for escalation; zero selects
// DefaultEscalateBelow.
func NewClassifier(p Provider, c *cache.Layer, ttl time.Duration, escalateBelow int, m *metrics.Metrics) *Classifier {
	if escalateBelow <= 0 {
		escalateBelow = DefaultEscalateBelow
	}
	return &Classifier{provider: p, cache: c, ttl: ttl, escalateBelow: escalateBelow, metrics: m}
}

// ClassifyBatch classifies inputs, serving the whole batch from cache when
// an unexpired entry exists for the serialized request.
func (c *Classifier) ClassifyBatch(ctx context.Context, inputs []cache.AIInput, lang string) (*BatchResult, error) {
	if len(inputs) == 0 {
		return &BatchResult{}, nil
	}
	key, err := cache.AIKey(inputs, lang)
	if err != nil {
		return nil, err
	}

	if raw, ok := c.cache.Get(ctx, cache.NamespaceAI, key); ok {
		var cached []model.Result
		if err := json.Unmarshal(raw, &cached); err == nil && len(cached) == len(inputs) {
			return &BatchResult{Results: cached, CacheHit: true}, nil
		}
		zap.L().Warn("classify: discarding malformed cache entry", zap.String("key", key))
	}

	out := &BatchResult{}
	primary, err := c.call(ctx, inputs, lang, TierPrimary, out)
	if err != nil {
		return nil, err
	}
	out.Results = primary.Results

	var low []int
	for i, r := range out.Results {
		if r.Confidence < c.escalateBelow {
			low = append(low, i)
		}
	}
	if ShouldEscalate(len(low), len(inputs)) {
		sub := make([]cache.AIInput, len(low))
		for j, i := range low {
			sub[j] = inputs[i]
		}
		esc, err := c.call(ctx, sub, lang, TierEscalation, out)
		if err != nil {
			zap.L().Warn("classify: escalation failed, keeping primary results",
				zap.Int("rows", len(sub)),
				zap.Error(err),
			)
		} else {
			for j, i := range low {
				out.Results[i] = esc.Results[j]
			}
			out.Escalated = len(low)
			c.metrics.Escalated(len(low))
		}
	}

	payload, err := json.Marshal(out.Results)
	if err != nil {
		return nil, eris.Wrap(err, "classify: marshal results")
	}
	if c.ttl > 0 {
		if err := c.cache.Put(ctx, cache.NamespaceAI, key, payload, c.ttl); err != nil {
			zap.L().Warn("classify: cache write failed", zap.Error(err))
		}
	}
	return out, nil
}

func (c *Classifier) call(ctx context.Context, inputs []cache.AIInput, lang string, tier Tier, out *BatchResult) (*Response, error) {
	resp, err := c.provider.Classify(ctx, inputs, lang, tier)
	c.metrics.ExternalCall("anthropic", err)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) != len(inputs) {
		return nil, eris.Errorf("classify: %s returned %d results for %d contacts", tier, len(resp.Results), len(inputs))
	}
	out.Usage.add(resp.Usage)
	out.Calls = append(out.Calls, Call{
		Tier:   tier,
		Model:  resp.Model,
		Rows:   len(inputs),
		Usage:  resp.Usage,
		Prompt: resp.Prompt,
		Raw:    resp.Raw,
	})
	c.metrics.AITokens(resp.Model, resp.Usage.Total())
	return resp, nil
}
