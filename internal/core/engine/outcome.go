package engine

import (
	"errors"
	"time"

	"github.com/tripfx/tripfx/internal/core"
)

// OutcomeKind is the closed set of results a provider call can produce.
type OutcomeKind int

const (
	OutcomeUnknown OutcomeKind = iota
	OutcomeSuccess
	OutcomeQuotaExceeded
	OutcomeTransient
	OutcomeMalformed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeQuotaExceeded:
		return "quota_exceeded"
	case OutcomeTransient:
		return "transient"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Outcome is a provider payload parsed at the boundary. Exactly one of Rates
// or Fare is set on success; Err describes every other kind.
type Outcome struct {
	Kind       OutcomeKind
	Rates      *core.RateHistory
	Fare       *core.FareQuote
	Err        error
	StatusCode int
	// RetryAfter is the provider-requested wait, when it sent one.
	RetryAfter time.Duration
}

// RatesOutcome wraps a successful forex payload.
func RatesOutcome(history *core.RateHistory) Outcome {
	return Outcome{Kind: OutcomeSuccess, Rates: history}
}

// FareOutcome wraps a successful flight payload.
func FareOutcome(fare *core.FareQuote) Outcome {
	return Outcome{Kind: OutcomeSuccess, Fare: fare}
}

// QuotaExceeded reports provider quota exhaustion.
func QuotaExceeded(err error) Outcome {
	return Outcome{Kind: OutcomeQuotaExceeded, Err: wrapKind(ErrQuotaExceeded, err)}
}

// Transient reports a retryable failure such as a network error or 5xx.
func Transient(err error) Outcome {
	return Outcome{Kind: OutcomeTransient, Err: wrapKind(ErrTransient, err)}
}

// Malformed reports a payload that could not be interpreted.
func Malformed(err error) Outcome {
	return Outcome{Kind: OutcomeMalformed, Err: wrapKind(ErrMalformed, err)}
}

// WithStatus records the HTTP status that produced the outcome.
func (o Outcome) WithStatus(code int) Outcome {
	o.StatusCode = code
	return o
}

// WithRetryAfter records a provider-requested wait before the next call.
func (o Outcome) WithRetryAfter(d time.Duration) Outcome {
	if d > 0 {
		o.RetryAfter = d
	}
	return o
}

func wrapKind(kind error, err error) error {
	if err == nil {
		return kind
	}
	if errors.Is(err, kind) {
		return err
	}
	return errors.Join(kind, err)
}
