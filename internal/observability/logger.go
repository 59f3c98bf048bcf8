package observability

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/tripfx/tripfx/internal/core/engine"
)

var (
	// CLILogger writes human-readable lines for one-shot commands.
	CLILogger *logging.Logger

	// ServerLogger writes JSON lines for the long-running API.
	ServerLogger *logging.Logger

	// liveServer tracks the newest server logger for components wired
	// before a SIGHUP rebuilt it.
	liveServer atomic.Pointer[logging.Logger]
)

var logLevels = map[string]string{
	"trace":   "TRACE",
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

// InitCLILogger builds CLILogger. Verbose lowers the level to debug so the
// controller's state transitions and provider attempts become visible.
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		fatal(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// InitServerLogger builds ServerLogger at the given level. It is called
// again on SIGHUP, so it replaces any previous logger.
func InitServerLogger(serviceName string, logLevel string, namespace ...string) {
	ns := ""
	if len(namespace) > 0 {
		ns = namespace[0]
	}
	logger, err := logging.New(serverLoggerConfig(serviceName, logLevel, ns))
	if err != nil {
		fatal(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
	}
	ServerLogger = logger
	liveServer.Store(logger)
}

func serverLoggerConfig(serviceName, logLevel, namespace string) *logging.LoggerConfig {
	static := map[string]any{}
	if namespace != "" {
		static["namespace"] = namespace
	}
	return &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: parseLogLevel(logLevel),
		Service:      serviceName,
		Environment:  "production",
		StaticFields: static,
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:    "console",
				Format:  "json",
				Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	}
}

// CoreLogger returns the logger handed to the fetchers, cache and controller:
// the server logger when the service runs, otherwise the CLI logger. It
// returns nil when neither is initialized so core components stay silent.
// The server variant follows reloads.
func CoreLogger() engine.Logger {
	if ServerLogger != nil {
		return serverProxy{}
	}
	if CLILogger != nil {
		return CLILogger
	}
	return nil
}

type serverProxy struct{}

func (serverProxy) current() *logging.Logger {
	if l := liveServer.Load(); l != nil {
		return l
	}
	return ServerLogger
}

func (p serverProxy) Debug(msg string, fields ...zap.Field) { p.current().Debug(msg, fields...) }
func (p serverProxy) Info(msg string, fields ...zap.Field)  { p.current().Info(msg, fields...) }
func (p serverProxy) Warn(msg string, fields ...zap.Field)  { p.current().Warn(msg, fields...) }

// parseLogLevel maps a config level to a gofulmen severity. Unknown levels
// fall back to INFO.
func parseLogLevel(level string) string {
	if severity, ok := logLevels[strings.ToLower(strings.TrimSpace(level))]; ok {
		return severity
	}
	return "INFO"
}

// fatal reports a logger construction failure. No logger exists yet, so
// it goes straight to stderr.
func fatal(exitCode foundry.ExitCode, msg string, err error) {
	fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	if info, ok := foundry.GetExitCodeInfo(exitCode); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}
	os.Exit(int(exitCode))
}
