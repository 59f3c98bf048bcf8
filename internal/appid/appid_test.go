package appid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaults(t *testing.T) {
	t.Setenv(EnvConfigName, "")

	identity, err := Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tripfx", identity.BinaryName)
	assert.Equal(t, "tripfx", identity.ConfigName)
	assert.Equal(t, "TRIPFX_", identity.EnvPrefix)
	assert.Equal(t, "TRIPFX", identity.ViperPrefix())
	assert.NotEmpty(t, identity.Description)
}

func TestGetConfigNameOverride(t *testing.T) {
	t.Setenv(EnvConfigName, "tripfx-test")

	identity, err := Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tripfx-test", identity.ConfigName)
	assert.Equal(t, "tripfx", identity.BinaryName)
}
