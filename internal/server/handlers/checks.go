package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/tripfx/tripfx/internal/core"
)

// ErrDegraded marks a check that still serves, with reduced fidelity.
var ErrDegraded = errors.New("degraded")

// PingChecker checks a backing service, such as the store or redis tier.
type PingChecker func(ctx context.Context) error

// CheckHealth implements HealthChecker.
func (p PingChecker) CheckHealth(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p(ctx)
}

// ProviderChecker reports whether any provider of one kind can be selected.
// With none available the service falls back to simulated data, so the
// check degrades instead of failing.
type ProviderChecker struct {
	Kind      core.ProviderKind
	Providers []string
	Quota     QuotaSource
}

// CheckHealth implements HealthChecker.
func (c ProviderChecker) CheckHealth(ctx context.Context) error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("%w: no %s providers configured", ErrDegraded, c.Kind)
	}
	if c.Quota == nil {
		return nil
	}
	for _, name := range c.Providers {
		if c.Quota.IsAvailable(name) {
			return nil
		}
	}
	return fmt.Errorf("%w: every %s provider has exhausted its quota", ErrDegraded, c.Kind)
}
