package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tripfx/tripfx/internal/core"
	errwrap "github.com/tripfx/tripfx/internal/errors"
	"github.com/tripfx/tripfx/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify the application can start: configuration, backing stores, reference data and provider availability.",
	Run: func(cmd *cobra.Command, args []string) {
		observability.CLILogger.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		observability.CLILogger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		observability.CLILogger.Info("✅ Version information available")

		stack, err := loadApp(cmd.Context())
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Recommendation stack failed to initialize", errwrap.WrapConfigInvalid(cmd.Context(), err, "initialization failed"))
			return
		}
		defer stack.Close() // nolint:errcheck // best-effort cleanup
		observability.CLILogger.Info("✅ Configuration loaded")

		if stack.Store != nil {
			if err := stack.Store.DB.PingContext(cmd.Context()); err != nil {
				ExitWithCode(observability.CLILogger, foundry.ExitFailure, "Store is unreachable", errwrap.WrapInternal(cmd.Context(), err, "store ping failed"))
				return
			}
			version, err := stack.Store.SchemaVersion(cmd.Context())
			if err != nil {
				ExitWithCode(observability.CLILogger, foundry.ExitFailure, "Store schema unreadable", errwrap.WrapInternal(cmd.Context(), err, "schema version"))
				return
			}
			observability.CLILogger.Info("✅ Store reachable",
				zap.String("driver", stack.Store.Driver()),
				zap.Int("schema_version", version))
		}
		if stack.Redis != nil {
			observability.CLILogger.Info("✅ Redis reachable", zap.String("addr", stack.Config.Redis.Addr))
		}
		observability.CLILogger.Info("✅ Reference data loaded", zap.Int("origins", len(stack.Routes.Origins())))

		for _, row := range stack.providerRows() {
			if row.Available {
				observability.CLILogger.Info("✅ Provider available", zap.String("provider", row.Name), zap.String("kind", string(row.Kind)))
				continue
			}
			observability.CLILogger.Warn("⚠️  Provider unavailable", zap.String("provider", row.Name), zap.String("kind", string(row.Kind)))
		}
		for _, kind := range []core.ProviderKind{core.ProviderKindForex, core.ProviderKindFlights} {
			if len(stack.Providers[kind]) == 0 {
				observability.CLILogger.Warn("⚠️  No providers configured; simulated data only", zap.String("kind", string(kind)))
			}
		}

		observability.CLILogger.Info("")
		observability.CLILogger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
