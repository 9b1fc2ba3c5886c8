package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-classifier/internal/cache"
	"github.com/sells-group/contact-classifier/internal/model"
	"github.com/sells-group/contact-classifier/internal/store"
)

type providerCall struct {
	tier   Tier
	names  []string
	inputs []cache.AIInput
}

// scriptedProvider answers each call with respond and records what it saw.
type scriptedProvider struct {
	calls   []providerCall
	respond func(inputs []cache.AIInput, tier Tier) ([]model.Result, error)
}

func (p *scriptedProvider) Classify(_ context.Context, inputs []cache.AIInput, _ string, tier Tier) (*Response, error) {
	names := make([]string, len(inputs))
	for i, in := range inputs {
		names[i] = in.Name
	}
	p.calls = append(p.calls, providerCall{tier: tier, names: names, inputs: inputs})

	results, err := p.respond(inputs, tier)
	if err != nil {
		return nil, err
	}
	modelID := "haiku"
	if tier == TierEscalation {
		modelID = "sonnet"
	}
	for i := range results {
		results[i].Model = modelID
	}
	return &Response{
		Results: results,
		Model:   modelID,
		Usage:   Usage{InputTokens: int64(100 * len(inputs)), OutputTokens: int64(20 * len(inputs))},
		Prompt:  "Contacts: ...",
		Raw:     `{"classifications":[]}`,
	}, nil
}

// lowFirst returns a responder where the first `low` contacts come back
// from the primary model below the accept threshold.
func lowFirst(low int) func([]cache.AIInput, Tier) ([]model.Result, error) {
	return func(inputs []cache.AIInput, tier Tier) ([]model.Result, error) {
		out := make([]model.Result, len(inputs))
		for i := range inputs {
			conf := 90
			if tier == TierPrimary && i < low {
				conf = 50
			}
			if tier == TierEscalation {
				conf = 85
			}
			out[i] = model.Result{Category: model.CategoryClient, Confidence: conf, Reason: string(tier)}
		}
		return out, nil
	}
}

func newTestCache(t *testing.T) (*cache.Layer, *store.SQLiteStore) {
	t.Helper()
	st := newTestStore(t)
	return cache.New(st), st
}

func batchOf(n int) []cache.AIInput {
	out := make([]cache.AIInput, n)
	for i := range out {
		out[i] = cache.AIInput{Name: fmt.Sprintf("contact-%d", i), City: "Lyon"}
	}
	return out
}

func TestShouldEscalate(t *testing.T) {
	tests := []struct {
		low, n int
		want   bool
	}{
		{0, 10, false},
		{1, 10, true},
		{3, 10, true},
		{4, 10, true},
		{5, 10, false},
		{6, 10, false},
		{1, 2, false},
		{1, 3, true},
		{1, 1, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShouldEscalate(tt.low, tt.n), "%d/%d", tt.low, tt.n)
	}
}

func TestClassifyBatch_EscalatesMinority(t *testing.T) {
	layer, _ := newTestCache(t)
	p := &scriptedProvider{respond: lowFirst(3)}
	c := NewClassifier(p, layer, time.Hour, 70, nil)

	out, err := c.ClassifyBatch(context.Background(), batchOf(10), "fr")
	require.NoError(t, err)

	require.Len(t, p.calls, 2)
	assert.Equal(t, TierPrimary, p.calls[0].tier)
	assert.Len(t, p.calls[0].names, 10)
	assert.Equal(t, TierEscalation, p.calls[1].tier)
	assert.Equal(t, []string{"contact-0", "contact-1", "contact-2"}, p.calls[1].names)

	assert.Equal(t, 3, out.Escalated)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 85, out.Results[i].Confidence)
		assert.Equal(t, "sonnet", out.Results[i].Model)
	}
	for i := 3; i < 10; i++ {
		assert.Equal(t, 90, out.Results[i].Confidence)
		assert.Equal(t, "haiku", out.Results[i].Model)
	}
	assert.Equal(t, int64(1000+200+300+60), out.Usage.Total())
	assert.Len(t, out.Calls, 2)
}

func TestClassifyBatch_NoEscalationWhenMajorityLow(t *testing.T) {
	layer, _ := newTestCache(t)
	p := &scriptedProvider{respond: lowFirst(6)}
	c := NewClassifier(p, layer, time.Hour, 70, nil)

	out, err := c.ClassifyBatch(context.Background(), batchOf(10), "fr")
	require.NoError(t, err)

	require.Len(t, p.calls, 1)
	assert.Zero(t, out.Escalated)
	for i := 0; i < 6; i++ {
		assert.Equal(t, 50, out.Results[i].Confidence)
		assert.Equal(t, "haiku", out.Results[i].Model)
	}
}

func TestClassifyBatch_CacheHitSkipsProvider(t *testing.T) {
	layer, _ := newTestCache(t)
	p := &scriptedProvider{respond: lowFirst(3)}
	c := NewClassifier(p, layer, time.Hour, 70, nil)
	ctx := context.Background()

	first, err := c.ClassifyBatch(ctx, batchOf(10), "fr")
	require.NoError(t, err)
	require.Len(t, p.calls, 2)

	second, err := c.ClassifyBatch(ctx, batchOf(10), "fr")
	require.NoError(t, err)
	assert.Len(t, p.calls, 2, "cache hit must not call the provider")
	assert.True(t, second.CacheHit)
	assert.Zero(t, second.Usage.Total())
	assert.Equal(t, first.Results, second.Results)
}

// The cache key ignores the model tier: a batch cached after escalation is
// replayed with the escalated entries, whatever tier produced them.
func TestClassifyBatch_CacheKeyIgnoresTier(t *testing.T) {
	layer, _ := newTestCache(t)
	ctx := context.Background()

	escalating := NewClassifier(&scriptedProvider{respond: lowFirst(1)}, layer, time.Hour, 70, nil)
	_, err := escalating.ClassifyBatch(ctx, batchOf(4), "en")
	require.NoError(t, err)

	// A second classifier whose primary would answer differently still
	// replays the cached, partly escalated batch.
	other := &scriptedProvider{respond: func(in []cache.AIInput, _ Tier) ([]model.Result, error) {
		out := make([]model.Result, len(in))
		for i := range out {
			out[i] = model.Result{Category: model.CategorySupplier, Confidence: 99}
		}
		return out, nil
	}}
	replay, err := NewClassifier(other, layer, time.Hour, 70, nil).ClassifyBatch(ctx, batchOf(4), "en")
	require.NoError(t, err)

	assert.Empty(t, other.calls)
	assert.Equal(t, "sonnet", replay.Results[0].Model)
	assert.Equal(t, model.CategoryClient, replay.Results[1].Category)

	// Language is part of the key.
	_, err = NewClassifier(other, layer, time.Hour, 70, nil).ClassifyBatch(ctx, batchOf(4), "fr")
	require.NoError(t, err)
	assert.Len(t, other.calls, 1)
}

func TestClassifyBatch_EscalationFailureKeepsPrimary(t *testing.T) {
	layer, _ := newTestCache(t)
	base := lowFirst(2)
	p := &scriptedProvider{respond: func(in []cache.AIInput, tier Tier) ([]model.Result, error) {
		if tier == TierEscalation {
			return nil, errors.New("overloaded")
		}
		return base(in, tier)
	}}
	c := NewClassifier(p, layer, time.Hour, 70, nil)

	out, err := c.ClassifyBatch(context.Background(), batchOf(10), "fr")
	require.NoError(t, err)
	assert.Len(t, p.calls, 2)
	assert.Zero(t, out.Escalated)
	assert.Equal(t, 50, out.Results[0].Confidence)
}

func TestClassifyBatch_PrimaryFailure(t *testing.T) {
	layer, st := newTestCache(t)
	p := &scriptedProvider{respond: func([]cache.AIInput, Tier) ([]model.Result, error) {
		return nil, errors.New("connection refused")
	}}
	c := NewClassifier(p, layer, time.Hour, 70, nil)

	_, err := c.ClassifyBatch(context.Background(), batchOf(3), "fr")
	require.Error(t, err)

	key, err := cache.AIKey(batchOf(3), "fr")
	require.NoError(t, err)
	entry, err := st.GetCacheEntry(context.Background(), cache.NamespaceAI, key)
	require.NoError(t, err)
	assert.Nil(t, entry, "failures are never cached")
}

func TestClassifyBatch_ShortResponseIsError(t *testing.T) {
	layer, _ := newTestCache(t)
	p := &scriptedProvider{respond: func(in []cache.AIInput, _ Tier) ([]model.Result, error) {
		return make([]model.Result, len(in)-1), nil
	}}
	_, err := NewClassifier(p, layer, time.Hour, 70, nil).ClassifyBatch(context.Background(), batchOf(3), "fr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 2 results for 3 contacts")
}

func TestClassifyBatch_Empty(t *testing.T) {
	layer, _ := newTestCache(t)
	p := &scriptedProvider{}
	out, err := NewClassifier(p, layer, time.Hour, 70, nil).ClassifyBatch(context.Background(), nil, "fr")
	require.NoError(t, err)
	assert.Empty(t, out.Results)
	assert.Empty(t, p.calls)
}

func TestClassifyBatch_EscalationThreshold(t *testing.T) {
	tests := []struct {
		name          string
		escalateBelow int
		wantCalls     int
	}{
		{"default of 70 escalates confidence 50", 0, 2},
		{"explicit 70", 70, 2},
		{"lower threshold keeps confidence 50", 40, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layer, _ := newTestCache(t)
			p := &scriptedProvider{respond: lowFirst(2)}
			c := NewClassifier(p, layer, time.Hour, tt.escalateBelow, nil)

			_, err := c.ClassifyBatch(context.Background(), batchOf(10), "fr")
			require.NoError(t, err)
			assert.Len(t, p.calls, tt.wantCalls)
		})
	}
}
