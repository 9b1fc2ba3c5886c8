// Package cache is the content-addressed, TTL-expiring memo shared by the
// enrichment and AI stages. The cache is an optimization only: every failure
// reads as a miss.
package cache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-classifier/internal/metrics"
	"github.com/sells-group/contact-classifier/internal/model"
)

// Namespaces.
const (
	NamespaceEnrichment = "enrichment"
	NamespaceAI         = "ai"
)

// Backend persists cache entries. GetCacheEntry returns (nil, nil) when no
// entry exists for the key.
type Backend interface {
	GetCacheEntry(ctx context.Context, namespace, key string) (*model.CacheEntry, error)
	PutCacheEntry(ctx context.Context, entry model.CacheEntry) error
}

// Option configures a Layer.
type Option func(*Layer)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(l *Layer) { l.now = now }
}

// WithMetrics records hits and misses.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Layer) { l.metrics = m }
}

// Layer wraps a Backend with expiry enforcement and instrumentation.
type Layer struct {
	backend Backend
	now     func() time.Time
	metrics *metrics.Metrics
}

// New creates a cache Layer over backend.
func New(backend Backend, opts ...Option) *Layer {
	l := &Layer{backend: backend, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Get returns the payload stored under (namespace, key). The second return is
// false on a miss, an expired entry, or a backend error.
func (l *Layer) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	entry, err := l.backend.GetCacheEntry(ctx, namespace, key)
	if err != nil {
		zap.L().Warn("cache: read failed, treating as miss",
			zap.String("namespace", namespace),
			zap.Error(err),
		)
		l.metrics.CacheLookup(namespace, false)
		return nil, false
	}
	if entry == nil || entry.Expired(l.now()) {
		l.metrics.CacheLookup(namespace, false)
		return nil, false
	}
	l.metrics.CacheLookup(namespace, true)
	return entry.Payload, true
}

// Put upserts payload under (namespace, key), expiring after ttl.
func (l *Layer) Put(ctx context.Context, namespace, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return eris.Errorf("cache: non-positive ttl %s for namespace %s", ttl, namespace)
	}
	now := l.now()
	err := l.backend.PutCacheEntry(ctx, model.CacheEntry{
		Namespace: namespace,
		Key:       key,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return eris.Wrapf(err, "cache: put %s", namespace)
	}
	return nil
}
