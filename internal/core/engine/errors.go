package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tripfx/tripfx/internal/core"
)

// Sentinel errors.
var (
	ErrTransient       = errors.New("transient provider failure")
	ErrQuotaExceeded   = errors.New("provider quota exceeded")
	ErrMalformed       = errors.New("malformed provider response")
	ErrDataUnavailable = errors.New("data unavailable from all providers")
)

// Attempt summarizes what happened with one provider during a fetch.
type Attempt struct {
	Provider string
	Outcome  OutcomeKind
	Skipped  string
	Tries    int
	Err      error
}

// ProviderError is returned when no provider produced a result.
type ProviderError struct {
	Kind         core.ProviderKind
	AllExhausted bool
	Attempts     []Attempt
}

func (e *ProviderError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		switch {
		case attempt.Skipped != "":
			parts = append(parts, fmt.Sprintf("%s: skipped (%s)", attempt.Provider, attempt.Skipped))
		case attempt.Err != nil:
			parts = append(parts, fmt.Sprintf("%s: %s after %d tries: %v", attempt.Provider, attempt.Outcome, attempt.Tries, attempt.Err))
		default:
			parts = append(parts, fmt.Sprintf("%s: %s", attempt.Provider, attempt.Outcome))
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s providers exhausted: none configured", e.Kind)
	}
	return fmt.Sprintf("%s providers exhausted: %s", e.Kind, strings.Join(parts, "; "))
}

// Is matches ErrDataUnavailable when every provider was exhausted or unavailable.
func (e *ProviderError) Is(target error) bool {
	return e.AllExhausted && target == ErrDataUnavailable
}

// QuotaHits returns the providers that reported quota exhaustion during the fetch.
func (e *ProviderError) QuotaHits() []string {
	var names []string
	for _, attempt := range e.Attempts {
		if attempt.Outcome == OutcomeQuotaExceeded {
			names = append(names, attempt.Provider)
		}
	}
	return names
}
