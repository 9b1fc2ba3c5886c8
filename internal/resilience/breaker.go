// Package resilience wraps provider calls with retries and circuit breakers.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/sells-group/contact-classifier/internal/config"
)

// BreakerConfig controls when a provider's circuit opens.
type BreakerConfig struct {
	// MinRequests is the number of calls in a window before the failure
	// ratio is evaluated.
	MinRequests uint32
	// FailureRatio opens the circuit once failures/requests reaches it.
	FailureRatio float64
	// OpenTimeout is how long the circuit stays open before a probe.
	OpenTimeout time.Duration
	// HalfOpenProbes is the number of probe calls allowed while half-open.
	HalfOpenProbes uint32
}

// DefaultBreakerConfig returns the breaker policy used for provider calls.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MinRequests:    5,
		FailureRatio:   0.6,
		OpenTimeout:    30 * time.Second,
		HalfOpenProbes: 1,
	}
}

// FromConfig converts the resilience config section into retry and breaker
// policies, falling back to defaults for unset values.
func FromConfig(c config.ResilienceConfig) (RetryConfig, BreakerConfig) {
	retry := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		retry.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(c.InitialBackoffMs) * time.Millisecond
	}
	if c.MaxBackoffMs > 0 {
		retry.MaxBackoff = time.Duration(c.MaxBackoffMs) * time.Millisecond
	}
	if c.Multiplier > 0 {
		retry.Multiplier = c.Multiplier
	}
	if c.JitterFraction >= 0 {
		retry.JitterFraction = c.JitterFraction
	}

	breaker := DefaultBreakerConfig()
	if c.BreakerMinRequests > 0 {
		breaker.MinRequests = c.BreakerMinRequests
	}
	if c.BreakerFailRatio > 0 {
		breaker.FailureRatio = c.BreakerFailRatio
	}
	if c.BreakerOpenSecs > 0 {
		breaker.OpenTimeout = time.Duration(c.BreakerOpenSecs) * time.Second
	}
	return retry, breaker
}

// Breaker guards one provider. Only transient failures count toward opening
// the circuit; a rejected request (4xx) says nothing about provider health.
type Breaker struct {
	cb    *gobreaker.CircuitBreaker[any]
	retry RetryConfig
}

// NewBreaker creates a breaker named after the provider it guards.
func NewBreaker(name string, cfg BreakerConfig, retry RetryConfig) *Breaker {
	if cfg.HalfOpenProbes == 0 {
		cfg.HalfOpenProbes = 1
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenProbes,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zap.L().Warn("resilience: circuit state change",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	if retry.OnRetry == nil {
		retry.OnRetry = RetryLogger(name, "call")
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[any](settings), retry: retry}
}

// Name returns the guarded provider name.
func (b *Breaker) Name() string { return b.cb.Name() }

// State returns the current circuit state as a string.
func (b *Breaker) State() string { return b.cb.State().String() }

// Call runs fn with retries inside the breaker. The breaker sees one outcome
// per Call, after retries are exhausted.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	if b == nil {
		return fn(ctx)
	}
	out, err := b.cb.Execute(func() (any, error) {
		return DoVal(ctx, b.retry, fn)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}

// IsCircuitOpen reports whether err is a rejection by an open or saturated
// half-open circuit.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Breakers lazily creates one Breaker per provider name.
type Breakers struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	retry    RetryConfig
	breakers map[string]*Breaker
}

// NewBreakers creates a registry sharing one policy.
func NewBreakers(cfg BreakerConfig, retry RetryConfig) *Breakers {
	return &Breakers{cfg: cfg, retry: retry, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for the named provider, creating it on first use.
func (r *Breakers) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	retry := r.retry
	retry.OnRetry = RetryLogger(name, "call")
	b := NewBreaker(name, r.cfg, retry)
	r.breakers[name] = b
	return b
}

// States returns a snapshot of every breaker's state.
func (r *Breakers) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}
