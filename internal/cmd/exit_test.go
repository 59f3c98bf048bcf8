package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"

	"github.com/tripfx/tripfx/internal/core/recommend"
	errwrap "github.com/tripfx/tripfx/internal/errors"
)

func TestExitCodeFor(t *testing.T) {
	exhausted := &recommend.Error{Code: recommend.CodeProvidersExhausted, State: recommend.StateRateLookup, Message: "exhausted"}

	assert.Equal(t, foundry.ExitExternalServiceUnavailable, ExitCodeFor(exhausted))
	assert.Equal(t, foundry.ExitExternalServiceUnavailable, ExitCodeFor(fmt.Errorf("recommend: %w", exhausted)))
	assert.Equal(t, foundry.ExitConfigInvalid, ExitCodeFor(errwrap.WrapConfigInvalid(context.Background(), errors.New("bad yaml"), "config reload failed")))
	assert.Equal(t, foundry.ExitFailure, ExitCodeFor(&recommend.Error{Code: recommend.CodeNoRoutes, State: recommend.StateRouteLookup, Message: "no routes"}))
	assert.Equal(t, foundry.ExitFailure, ExitCodeFor(errors.New("boom")))
}

func TestWriteFatal(t *testing.T) {
	var buf bytes.Buffer
	writeFatal(&buf, "Command execution failed", nil)
	assert.Equal(t, "FATAL: Command execution failed\n", buf.String())

	buf.Reset()
	writeFatal(&buf, "Command execution failed", errors.New("no routes from ZZZ"))
	assert.Equal(t, "FATAL: Command execution failed: no routes from ZZZ\n", buf.String())

	buf.Reset()
	writeFatal(&buf, "Reload failed", errwrap.WrapConfigInvalid(context.Background(), errors.New("bad yaml"), "config reload failed"))
	assert.Contains(t, buf.String(), "[CONFIG_INVALID]: config reload failed")
}
