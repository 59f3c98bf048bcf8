package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"trace":   "TRACE",
		"DEBUG":   "DEBUG",
		" info ":  "INFO",
		"warning": "WARN",
		"warn":    "WARN",
		"error":   "ERROR",
		"verbose": "INFO",
		"":        "INFO",
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLogLevel(in), "level %q", in)
	}
}

func TestServerLoggerConfigNamespace(t *testing.T) {
	cfg := serverLoggerConfig("tripfx", "debug", "tripfx")
	assert.Equal(t, "DEBUG", cfg.DefaultLevel)
	assert.Equal(t, "tripfx", cfg.StaticFields["namespace"])
	assert.Equal(t, "stderr", cfg.Sinks[0].Console.Stream)

	cfg = serverLoggerConfig("tripfx", "info", "")
	assert.NotContains(t, cfg.StaticFields, "namespace")
}
