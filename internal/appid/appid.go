package appid

import (
	"context"
	"os"
	"strings"
)

const (
	defaultBinaryName  = "tripfx"
	defaultConfigName  = "tripfx"
	defaultEnvPrefix   = "TRIPFX_"
	defaultDescription = "Travel destination recommendations from exchange-rate trends and flight fares"

	// EnvConfigName overrides the config directory name (useful for isolated test runs).
	EnvConfigName = "TRIPFX_CONFIG_NAME"
)

// Identity describes how the binary presents itself and where it looks for configuration.
type Identity struct {
	BinaryName  string
	ConfigName  string
	EnvPrefix   string
	Description string
}

// Get returns the application identity.
func Get(ctx context.Context) (*Identity, error) {
	_ = ctx

	identity := &Identity{
		BinaryName:  defaultBinaryName,
		ConfigName:  defaultConfigName,
		EnvPrefix:   defaultEnvPrefix,
		Description: defaultDescription,
	}
	if name := strings.TrimSpace(os.Getenv(EnvConfigName)); name != "" {
		identity.ConfigName = name
	}
	return identity, nil
}

// ViperPrefix returns the env prefix without the trailing underscore, as viper expects.
func (i *Identity) ViperPrefix() string {
	if i == nil {
		return strings.TrimSuffix(defaultEnvPrefix, "_")
	}
	return strings.TrimSuffix(i.EnvPrefix, "_")
}
