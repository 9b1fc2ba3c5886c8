package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-classifier/internal/metrics"
	"github.com/sells-group/contact-classifier/internal/model"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) GetCacheEntry(ctx context.Context, namespace, key string) (*model.CacheEntry, error) {
	args := m.Called(ctx, namespace, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CacheEntry), args.Error(1)
}

func (m *mockBackend) PutCacheEntry(ctx context.Context, entry model.CacheEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// memBackend keeps entries in memory and never filters expired ones, so the
// Layer's own expiry check is what the tests exercise.
type memBackend struct {
	entries map[string]model.CacheEntry
}

func newMemBackend() *memBackend {
	return &memBackend{entries: make(map[string]model.CacheEntry)}
}

func (b *memBackend) GetCacheEntry(_ context.Context, namespace, key string) (*model.CacheEntry, error) {
	e, ok := b.entries[namespace+"|"+key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (b *memBackend) PutCacheEntry(_ context.Context, entry model.CacheEntry) error {
	b.entries[entry.Namespace+"|"+entry.Key] = entry
	return nil
}

func TestLayer_PutThenGet(t *testing.T) {
	ctx := context.Background()
	l := New(newMemBackend(), WithMetrics(metrics.New()))

	require.NoError(t, l.Put(ctx, NamespaceEnrichment, "acme.com:lyon:fr", []byte(`{"depth":1}`), time.Hour))

	got, ok := l.Get(ctx, NamespaceEnrichment, "acme.com:lyon:fr")
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"depth":1}`), got)

	_, ok = l.Get(ctx, NamespaceAI, "acme.com:lyon:fr")
	assert.False(t, ok, "namespaces are isolated")
}

func TestLayer_ExpiredIsMiss(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	l := New(newMemBackend(), WithClock(func() time.Time { return clock }))

	require.NoError(t, l.Put(ctx, NamespaceAI, "k", []byte("v"), time.Minute))

	clock = now.Add(59 * time.Second)
	_, ok := l.Get(ctx, NamespaceAI, "k")
	assert.True(t, ok)

	clock = now.Add(time.Minute)
	_, ok = l.Get(ctx, NamespaceAI, "k")
	assert.False(t, ok, "entry expiring exactly now is a miss")

	clock = now.Add(48 * time.Hour)
	_, ok = l.Get(ctx, NamespaceAI, "k")
	assert.False(t, ok)
}

func TestLayer_BackendErrorIsMiss(t *testing.T) {
	b := new(mockBackend)
	b.On("GetCacheEntry", mock.Anything, NamespaceAI, "k").Return(nil, errors.New("db down"))

	_, ok := New(b).Get(context.Background(), NamespaceAI, "k")
	assert.False(t, ok)
	b.AssertExpectations(t)
}

func TestLayer_PutErrors(t *testing.T) {
	b := new(mockBackend)
	b.On("PutCacheEntry", mock.Anything, mock.AnythingOfType("model.CacheEntry")).Return(errors.New("disk full"))

	l := New(b)
	err := l.Put(context.Background(), NamespaceAI, "k", []byte("v"), time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache: put ai")

	err = l.Put(context.Background(), NamespaceAI, "k", []byte("v"), 0)
	assert.Error(t, err)
}

func TestEnrichmentKey(t *testing.T) {
	a := model.Contact{Name: "Pharmacie A", EmailDomain: "pharma-lyon.fr", City: " Lyon ", Country: "FR"}
	b := model.Contact{Name: "Pharmacie B", EmailDomain: "PHARMA-LYON.FR", City: "lyon", Country: "fr"}
	assert.Equal(t, "pharma-lyon.fr:lyon:fr", EnrichmentKey(a))
	assert.Equal(t, EnrichmentKey(a), EnrichmentKey(b))

	consumer := model.Contact{Name: "Jean  Dupré", EmailDomain: "gmail.com", City: "Évry", Country: "FR"}
	assert.Equal(t, "jean dupre:evry:fr", EnrichmentKey(consumer))
}

func TestEnrichmentKey_ConsumerDomainsKeyOnName(t *testing.T) {
	jean := model.Contact{Name: "Jean Dupré", EmailDomain: "gmail.com", City: "Lyon", Country: "FR"}
	marie := model.Contact{Name: "Marie Blanc", EmailDomain: "gmail.com", City: "Lyon", Country: "FR"}
	jeanAgain := model.Contact{Name: "JEAN DUPRE", EmailDomain: "orange.fr", City: "lyon", Country: "fr"}

	assert.NotEqual(t, EnrichmentKey(jean), EnrichmentKey(marie))
	assert.Equal(t, EnrichmentKey(jean), EnrichmentKey(jeanAgain))
	assert.NotContains(t, EnrichmentKey(marie), "gmail.com")
}

func TestAIKey(t *testing.T) {
	inputs := []AIInput{{Name: "Acme", Email: "a@acme.com", City: "Paris"}}

	k1, err := AIKey(inputs, "fr")
	require.NoError(t, err)
	k2, err := AIKey(inputs, "FR")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)

	k3, err := AIKey(inputs, "en")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	k4, err := AIKey([]AIInput{{Name: "Acme", Email: "a@acme.com", City: "Lyon"}}, "fr")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k4)
}
