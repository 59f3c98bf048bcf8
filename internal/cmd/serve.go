package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tripfx/tripfx/internal/config"
	"github.com/tripfx/tripfx/internal/core"
	errwrap "github.com/tripfx/tripfx/internal/errors"
	"github.com/tripfx/tripfx/internal/metrics"
	"github.com/tripfx/tripfx/internal/observability"
	"github.com/tripfx/tripfx/internal/server"
	"github.com/tripfx/tripfx/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker fails while metrics are enabled but the exporter
// never came up.
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the recommendation API with graceful shutdown support.

Endpoints:
  POST /api/v1/recommendations         JSON recommendation request
  GET  /api/v1/recommendations         same request as query parameters
  GET  /api/v1/trends/{base}/{quote}   trend of one currency pair
  GET  /api/v1/providers/quota         provider availability

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read the config file and apply its log level`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		identity := GetAppIdentity()
		name := identity.BinaryName

		cfg, err := config.Load(ctx)
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "failed to load configuration")
		}
		// The server logger must exist before wiring so core components pick it up.
		observability.InitServerLogger(name, serverLogLevel(cfg), name)
		log := observability.ServerLogger

		stack, err := buildApp(ctx, cfg)
		if err != nil {
			log.Error("Failed to initialize recommendation stack", zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "initialization failed")
		}

		if cfg.Metrics.Enabled {
			metricsPort := cfg.Metrics.Port
			if metricsPort == 0 {
				metricsPort = observability.DefaultMetricsPort
			}
			if err := observability.InitMetrics(name, metricsPort, name); err != nil {
				_ = stack.Close()
				return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
			}
			metrics.SetServerStartTime(time.Now().Unix())
		}

		log.Info("Initializing server",
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("metrics", cfg.Metrics.Enabled),
			zap.String("cache_backend", cfg.Cache.Backend),
			zap.String("quota_backend", cfg.Quota.Backend),
			zap.Strings("forex_providers", stack.Providers[core.ProviderKindForex]),
			zap.Strings("flight_providers", stack.Providers[core.ProviderKindFlights]))

		handlers.InitHealthManager(versionInfo.Version)
		handlers.SetAppIdentity(identity)
		if cfg.Health.Enabled {
			hm := handlers.GetHealthManager()
			if cfg.Metrics.Enabled {
				hm.RegisterChecker("telemetry", telemetryHealthChecker{})
			}
			stack.registerHealthCheckers(hm)
		}

		srv := server.New(cfg.Server.Host, cfg.Server.Port, stack.api())
		srv.ReadTimeout = cfg.Server.ReadTimeout
		srv.WriteTimeout = cfg.Server.WriteTimeout
		srv.IdleTimeout = cfg.Server.IdleTimeout
		srv.EnableAdminSignals(cfg.Server.AdminToken)
		if cfg.Debug.PprofEnabled {
			srv.EnablePprof()
		}

		registerShutdown(srv, stack, cfg.Server.ShutdownTimeout)
		go stack.Quota.Watch(ctx, cfg.Quota.RefreshInterval, func(err error) {
			log.Warn("Failed to reload provider quota state", zap.Error(err))
		})
		signals.OnReload(func(ctx context.Context) error {
			return reloadLogLevel(ctx, name)
		})
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			log.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
		go func() {
			if err := signals.Listen(ctx); err != nil {
				log.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(ctx, err, "server error")
		}
		return nil
	},
}

func serverLogLevel(cfg *config.Config) string {
	if cfg.Debug.Enabled {
		return "debug"
	}
	return cfg.Logging.Level
}

// registerShutdown installs the shutdown handlers. They run LIFO: HTTP
// server, then backing stores, then the logger flush.
func registerShutdown(srv *server.Server, stack *app, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	log := observability.ServerLogger

	signals.OnShutdown(func(ctx context.Context) error {
		// Sync on stderr commonly fails with EINVAL; nothing to do about it.
		_ = log.Sync()
		return nil
	})
	signals.OnShutdown(func(ctx context.Context) error {
		if err := stack.Close(); err != nil {
			log.Warn("Failed to close backing stores", zap.Error(err))
		}
		return nil
	})
	signals.OnShutdown(func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}
		log.Info("HTTP server stopped gracefully")
		return nil
	})
}

// reloadLogLevel re-reads the config file on SIGHUP. Providers, stores and
// TTLs stay bound to their startup values; only the log level is applied.
func reloadLogLevel(ctx context.Context, name string) error {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		observability.ServerLogger.Error("Failed to reload config file",
			zap.String("file", viper.ConfigFileUsed()),
			zap.Error(err))
		return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
	}

	observability.InitServerLogger(name, serverLogLevel(cfg), name)
	observability.ServerLogger.Info("Configuration reloaded",
		zap.String("file", viper.ConfigFileUsed()),
		zap.String("level", serverLogLevel(cfg)))
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
