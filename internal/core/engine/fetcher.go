package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tripfx/tripfx/internal/core"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 10 * time.Second

// Provider is an upstream vendor of forex or flight data. Fetch must parse
// the raw payload and report one of the Outcome kinds; it never returns raw data.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, req core.FetchRequest) Outcome
}

// Result is a successful fetch.
type Result struct {
	Provider string
	Outcome  Outcome
	Tries    int
}

// Fetcher tries providers in priority order, switching on quota exhaustion
// and retrying transient failures with exponential backoff.
type Fetcher struct {
	Providers []Provider
	Quota     *QuotaTracker
	Breakers  *BreakerSet
	Backoff   Backoff
	Timeout   time.Duration
	Sleep     func(ctx context.Context, d time.Duration) error
	Logger    Logger
	// Observe is called once per provider call with its outcome.
	Observe func(provider string, kind OutcomeKind, elapsed time.Duration)
	Clock   func() time.Time
}

// Fetch returns the first successful provider result. When no provider
// succeeds the error is a *ProviderError matching ErrDataUnavailable.
func (f *Fetcher) Fetch(ctx context.Context, req core.FetchRequest) (*Result, error) {
	if f == nil {
		return nil, errors.New("fetcher is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logger := LoggerOrNop(f.Logger)
	perr := &ProviderError{Kind: req.Kind}

	for _, provider := range f.Providers {
		if provider == nil {
			continue
		}
		name := provider.Name()

		if !f.Quota.IsAvailable(name) {
			logger.Debug("Skipping provider with exhausted quota", zap.String("provider", name))
			perr.Attempts = append(perr.Attempts, Attempt{Provider: name, Skipped: "quota exceeded"})
			continue
		}
		if f.Breakers.Open(name) {
			logger.Debug("Skipping provider with open circuit", zap.String("provider", name))
			perr.Attempts = append(perr.Attempts, Attempt{Provider: name, Skipped: "circuit open"})
			continue
		}

		outcome, tries := f.attempt(ctx, provider, req)
		if outcome.Kind == OutcomeSuccess {
			return &Result{Provider: name, Outcome: outcome, Tries: tries}, nil
		}

		perr.Attempts = append(perr.Attempts, Attempt{
			Provider: name,
			Outcome:  outcome.Kind,
			Tries:    tries,
			Err:      outcome.Err,
		})

		if outcome.Kind == OutcomeQuotaExceeded {
			logger.Warn("Provider quota exceeded",
				zap.String("provider", name),
				zap.String("kind", string(req.Kind)),
				zap.Error(outcome.Err))
			if err := f.Quota.MarkExceeded(ctx, name); err != nil {
				logger.Warn("Failed to persist quota state", zap.String("provider", name), zap.Error(err))
			}
		} else {
			logger.Warn("Provider failed",
				zap.String("provider", name),
				zap.String("outcome", outcome.Kind.String()),
				zap.Int("tries", tries),
				zap.Error(outcome.Err))
		}

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", req.Kind, err)
		}
	}

	perr.AllExhausted = true
	return nil, perr
}

func (f *Fetcher) attempt(ctx context.Context, provider Provider, req core.FetchRequest) (Outcome, int) {
	backoff := f.backoff()
	name := provider.Name()

	for try := 0; ; try++ {
		outcome := f.call(ctx, provider, req)
		if outcome.Kind != OutcomeTransient || try >= backoff.MaxRetries {
			return outcome, try + 1
		}
		if f.Breakers.Open(name) || ctx.Err() != nil {
			return outcome, try + 1
		}

		delay := backoff.Delay(try + 1)
		if outcome.RetryAfter > delay {
			delay = min(outcome.RetryAfter, backoff.MaxDelay)
		}
		LoggerOrNop(f.Logger).Debug("Retrying provider after transient failure",
			zap.String("provider", name),
			zap.Int("retry", try+1),
			zap.Duration("delay", delay),
			zap.Error(outcome.Err))

		if err := f.sleep(ctx, delay); err != nil {
			return Transient(err), try + 1
		}
	}
}

func (f *Fetcher) call(ctx context.Context, provider Provider, req core.FetchRequest) Outcome {
	callCtx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()

	started := f.now()
	outcome := f.Breakers.Execute(provider.Name(), func() Outcome {
		result := provider.Fetch(callCtx, req)
		if result.Kind == OutcomeUnknown {
			return Malformed(errors.New("provider returned no outcome"))
		}
		if result.Kind == OutcomeSuccess && result.Rates == nil && result.Fare == nil {
			return Malformed(errors.New("provider returned an empty success"))
		}
		return result
	})

	if f.Observe != nil {
		f.Observe(provider.Name(), outcome.Kind, f.now().Sub(started))
	}
	return outcome
}

func (f *Fetcher) backoff() Backoff {
	b := f.Backoff
	if b.MaxRetries < 0 {
		b.MaxRetries = 0
	}
	if b.InitialDelay <= 0 {
		b.InitialDelay = DefaultBackoff.InitialDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = DefaultBackoff.MaxDelay
	}
	return b
}

func (f *Fetcher) timeout() time.Duration {
	if f.Timeout > 0 {
		return f.Timeout
	}
	return DefaultTimeout
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) error {
	if f.Sleep != nil {
		return f.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

func (f *Fetcher) now() time.Time {
	if f != nil && f.Clock != nil {
		return f.Clock()
	}
	return time.Now().UTC()
}
