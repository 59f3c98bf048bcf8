package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerSet holds one circuit breaker per provider. A provider whose breaker
// is open is skipped by the Fetcher the same way an exhausted provider is.
type BreakerSet struct {
	// ConsecutiveFailures trips the breaker after this many transient failures in a row.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
	// OnStateChange is called on every transition.
	OnStateChange func(provider string, from, to gobreaker.State)

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[Outcome]
}

// NewBreakerSet returns a BreakerSet with the given trip threshold and open timeout.
func NewBreakerSet(consecutiveFailures uint32, openTimeout time.Duration) *BreakerSet {
	return &BreakerSet{
		ConsecutiveFailures: consecutiveFailures,
		OpenTimeout:         openTimeout,
	}
}

// Open reports whether the provider's breaker currently rejects calls.
func (b *BreakerSet) Open(provider string) bool {
	if b == nil {
		return false
	}
	return b.get(provider).State() == gobreaker.StateOpen
}

// State returns the breaker state name for a provider.
func (b *BreakerSet) State(provider string) string {
	if b == nil {
		return "disabled"
	}
	return b.get(provider).State().String()
}

// Execute runs fn through the provider's breaker. Only transient outcomes
// count as breaker failures; quota and malformed outcomes are reported as-is.
func (b *BreakerSet) Execute(provider string, fn func() Outcome) Outcome {
	if b == nil {
		return fn()
	}

	outcome, err := b.get(provider).Execute(func() (Outcome, error) {
		result := fn()
		if result.Kind == OutcomeTransient {
			if result.Err == nil {
				return result, ErrTransient
			}
			return result, result.Err
		}
		return result, nil
	})
	if err != nil && (errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)) {
		return Transient(fmt.Errorf("circuit breaker for %s: %w", provider, err))
	}
	return outcome
}

func (b *BreakerSet) get(provider string) *gobreaker.CircuitBreaker[Outcome] {
	name := normalizeProvider(provider)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.breakers == nil {
		b.breakers = make(map[string]*gobreaker.CircuitBreaker[Outcome])
	}
	if cb, ok := b.breakers[name]; ok {
		return cb
	}

	threshold := b.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	timeout := b.OpenTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	cb := gobreaker.NewCircuitBreaker[Outcome](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if b.OnStateChange != nil {
				b.OnStateChange(name, from, to)
			}
		},
	})
	b.breakers[name] = cb
	return cb
}
