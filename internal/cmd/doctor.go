package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tripfx/tripfx/internal/config"
	"github.com/tripfx/tripfx/internal/core"
	"github.com/tripfx/tripfx/internal/core/engine"
	"github.com/tripfx/tripfx/internal/observability"
)

// probeTimeout bounds one live provider call made by doctor --probe.
const probeTimeout = 15 * time.Second

var (
	doctorProbe       bool
	doctorInitForce   bool
	doctorResetConfig bool
	doctorResetData   bool
	doctorResetAll    bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the installation and suggest fixes for common issues.

With --probe every enabled provider receives one small live request. Probes
count against provider quotas.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		identity := GetAppIdentity()
		observability.CLILogger.Info("=== " + identity.BinaryName + " doctor ===")
		observability.CLILogger.Info("")

		allChecks := true
		totalChecks := 6

		goVersion := runtime.Version()
		observability.CLILogger.Info(fmt.Sprintf("[1/%d] Checking Go version... ✅ %s", totalChecks, goVersion), zap.String("go_version", goVersion))

		version := crucible.GetVersion()
		if version.Crucible != "" && version.Gofulmen != "" {
			observability.CLILogger.Info(fmt.Sprintf("[2/%d] Checking Gofulmen/Crucible... ✅ v%s / v%s", totalChecks, version.Gofulmen, version.Crucible))
		} else {
			observability.CLILogger.Warn(fmt.Sprintf("[2/%d] Checking Gofulmen/Crucible... ⚠️  version metadata unavailable", totalChecks))
			allChecks = false
		}

		configPath := config.DefaultConfigPath()
		switch {
		case configPath == "":
			observability.CLILogger.Warn(fmt.Sprintf("[3/%d] Checking config file... ⚠️  cannot resolve config directory", totalChecks))
			allChecks = false
		case fileExists(configPath):
			observability.CLILogger.Info(fmt.Sprintf("[3/%d] Checking config file... ✅ %s", totalChecks, configPath))
		default:
			observability.CLILogger.Info(fmt.Sprintf("[3/%d] Checking config file... ✅ defaults (run '%s doctor init' to create %s)", totalChecks, identity.BinaryName, configPath))
		}

		stack, err := loadApp(ctx)
		if err != nil {
			observability.CLILogger.Error(fmt.Sprintf("[4/%d] Checking backing stores... ❌ %v", totalChecks, err))
			observability.CLILogger.Warn("⚠️  Remaining checks skipped.")
			return
		}
		defer stack.Close() // nolint:errcheck // best-effort cleanup
		observability.CLILogger.Info(fmt.Sprintf("[4/%d] Checking backing stores... ✅ cache=%s quota=%s", totalChecks, stack.Config.Cache.Backend, stack.Config.Quota.Backend))

		observability.CLILogger.Info(fmt.Sprintf("[5/%d] Checking reference data... ✅ %d origin airports", totalChecks, len(stack.Routes.Origins())))

		missing := missingCredentials(stack.Config)
		if len(missing) == 0 {
			observability.CLILogger.Info(fmt.Sprintf("[6/%d] Checking provider credentials... ✅", totalChecks))
		} else {
			observability.CLILogger.Warn(fmt.Sprintf("[6/%d] Checking provider credentials... ⚠️  missing for %s", totalChecks, strings.Join(missing, ", ")))
			for _, name := range missing {
				observability.CLILogger.Info("       Set " + providerKeyEnv(name) + " or providers.<kind>[].api_key")
			}
			allChecks = false
		}

		if doctorProbe {
			observability.CLILogger.Info("")
			observability.CLILogger.Info("Provider probes:")
			if !probeProviders(ctx, stack) {
				allChecks = false
			}
		}

		observability.CLILogger.Info("")
		if allChecks {
			observability.CLILogger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", identity.BinaryName))
		} else {
			observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
		observability.CLILogger.Info("")
		observability.CLILogger.Info("=== End Diagnostics ===")
	},
}

// probeProviders sends one request to every provider, bypassing quota
// tracking and retries, and reports whether all of them succeeded.
func probeProviders(ctx context.Context, stack *app) bool {
	today := core.Day(time.Now())
	requests := map[core.ProviderKind]core.FetchRequest{
		core.ProviderKindForex: {
			Kind:    core.ProviderKindForex,
			Base:    "USD",
			Symbols: []string{"EUR"},
			Start:   today.AddDate(0, 0, -1),
			End:     today,
		},
		core.ProviderKindFlights: {
			Kind:         core.ProviderKindFlights,
			Origin:       "JFK",
			Destination:  "LHR",
			OutboundDate: today.AddDate(0, 0, 30),
			Currency:     "USD",
		},
	}
	fetchers := map[core.ProviderKind]*engine.Fetcher{
		core.ProviderKindForex:   stack.Forex,
		core.ProviderKindFlights: stack.Flights,
	}

	ok := true
	for _, kind := range []core.ProviderKind{core.ProviderKindForex, core.ProviderKindFlights} {
		for _, p := range fetchers[kind].Providers {
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			started := time.Now()
			outcome := p.Fetch(probeCtx, requests[kind])
			cancel()

			elapsed := time.Since(started).Round(time.Millisecond)
			if outcome.Kind == engine.OutcomeSuccess {
				observability.CLILogger.Info(fmt.Sprintf("  %s (%s)... ✅ %s", p.Name(), kind, elapsed))
				continue
			}
			ok = false
			observability.CLILogger.Warn(fmt.Sprintf("  %s (%s)... ❌ %s", p.Name(), kind, outcome.Kind),
				zap.Duration("elapsed", elapsed),
				zap.Error(outcome.Err))
		}
	}
	return ok
}

func missingCredentials(cfg *config.Config) []string {
	var missing []string
	for _, group := range [][]config.ProviderConfig{cfg.Providers.Forex, cfg.Providers.Flights} {
		for _, p := range group {
			if p.Enabled && strings.TrimSpace(p.APIKey) == "" {
				missing = append(missing, p.Name)
			}
		}
	}
	return missing
}

func providerKeyEnv(name string) string {
	slug := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(strings.TrimSpace(name)))
	return GetAppIdentity().EnvPrefix + "PROVIDERS_" + slug + "_API_KEY"
}

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}

		if _, err := os.Stat(configPath); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		data, err := buildInitConfig(cmd.Context())
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		if err := os.WriteFile(configPath, data, 0644); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

var doctorConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration status and paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		dataDir := config.DefaultDataDir()

		observability.CLILogger.Info("Configuration:")
		observability.CLILogger.Info(fmt.Sprintf("  Config file:    %s (%s)", configPath, existenceStatus(fileExists(configPath))))
		observability.CLILogger.Info(fmt.Sprintf("  Data directory: %s (%s)", dataDir, existenceStatus(fileExists(dataDir))))

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			observability.CLILogger.Warn("Config load failed", zap.Error(err))
			return nil
		}
		if cfg.Store.URL != "" {
			observability.CLILogger.Info(fmt.Sprintf("  Database:       %s (remote)", cfg.Store.URL))
		} else {
			observability.CLILogger.Info(fmt.Sprintf("  Database:       %s (%s)", cfg.Store.Path, existenceStatus(fileExists(cfg.Store.Path))))
		}
		if cfg.Quota.Backend == backendFile {
			observability.CLILogger.Info(fmt.Sprintf("  Quota file:     %s (%s)", cfg.Quota.Path, existenceStatus(fileExists(cfg.Quota.Path))))
		}

		observability.CLILogger.Info("")
		observability.CLILogger.Info("Environment:")
		for _, group := range [][]config.ProviderConfig{cfg.Providers.Forex, cfg.Providers.Flights} {
			for _, p := range group {
				name := providerKeyEnv(p.Name)
				observability.CLILogger.Info("  " + name + ": " + envStatus(name))
			}
		}
		return nil
	},
}

var doctorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset user configuration and/or data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if doctorResetAll {
			doctorResetConfig = true
			doctorResetData = true
		}
		if !doctorResetConfig && !doctorResetData {
			return fmt.Errorf("specify --config, --data, or --all")
		}

		if doctorResetConfig {
			if err := removeFile("Config", config.DefaultConfigPath()); err != nil {
				return err
			}
		}

		if doctorResetData {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Store.URL != "" {
				observability.CLILogger.Warn("Remote store configured; database reset skipped", zap.String("db_url", cfg.Store.URL))
			} else if err := removeFile("Database", cfg.Store.Path); err != nil {
				return err
			}
			if err := removeFile("Quota file", cfg.Quota.Path); err != nil {
				return err
			}
		}
		return nil
	},
}

var doctorValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", configPath)
		}

		stack, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		_ = stack.Close()

		observability.CLILogger.Info("Config is valid", zap.String("path", configPath))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)
	doctorCmd.AddCommand(doctorConfigCmd)
	doctorCmd.AddCommand(doctorResetCmd)
	doctorCmd.AddCommand(doctorValidateCmd)

	doctorCmd.Flags().BoolVar(&doctorProbe, "probe", false, "send one live request to every provider")
	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")

	doctorResetCmd.Flags().BoolVar(&doctorResetConfig, "config", false, "remove user config file")
	doctorResetCmd.Flags().BoolVar(&doctorResetData, "data", false, "remove local database and quota file")
	doctorResetCmd.Flags().BoolVar(&doctorResetAll, "all", false, "remove config and data")
}

// starterConfig is the starting config file written by doctor init. API keys
// are left out so the file can be shared; they come from the environment.
type starterConfig struct {
	Cache struct {
		Backend string `yaml:"backend"`
	} `yaml:"cache"`
	Quota struct {
		Backend  string `yaml:"backend"`
		Cooldown string `yaml:"cooldown"`
	} `yaml:"quota"`
	Providers struct {
		Forex   []starterProvider `yaml:"forex"`
		Flights []starterProvider `yaml:"flights"`
	} `yaml:"providers"`
	Fallback struct {
		SimulateRates bool `yaml:"simulate_rates"`
		SimulateFares bool `yaml:"simulate_fares"`
	} `yaml:"fallback"`
}

type starterProvider struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	BaseURL string `yaml:"base_url"`
	Enabled bool   `yaml:"enabled"`
}

func buildInitConfig(ctx context.Context) ([]byte, error) {
	defaults, err := config.LoadFrom(ctx, viper.New())
	if err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	var doc starterConfig
	doc.Cache.Backend = defaults.Cache.Backend
	doc.Quota.Backend = defaults.Quota.Backend
	doc.Quota.Cooldown = defaults.Quota.Cooldown.String()
	doc.Fallback.SimulateRates = defaults.Fallback.SimulateRates
	doc.Fallback.SimulateFares = defaults.Fallback.SimulateFares
	for _, p := range defaults.Providers.Forex {
		doc.Providers.Forex = append(doc.Providers.Forex, starterProvider{Name: p.Name, Type: p.Type, BaseURL: p.BaseURL, Enabled: p.Enabled})
	}
	for _, p := range defaults.Providers.Flights {
		doc.Providers.Flights = append(doc.Providers.Flights, starterProvider{Name: p.Name, Type: p.Type, BaseURL: p.BaseURL, Enabled: p.Enabled})
	}

	body, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	header := fmt.Sprintf("# %s config - created by '%s doctor init'\n# Provider API keys: set %sPROVIDERS_<NAME>_API_KEY.\n",
		GetAppIdentity().BinaryName, GetAppIdentity().BinaryName, GetAppIdentity().EnvPrefix)
	return append([]byte(header), body...), nil
}

func removeFile(label, path string) error {
	if strings.TrimSpace(path) == "" {
		observability.CLILogger.Warn(label + " path not resolved; skipping")
		return nil
	}
	absPath, _ := filepath.Abs(path)
	if err := os.Remove(absPath); err == nil {
		observability.CLILogger.Info(label+" removed", zap.String("path", absPath))
	} else if os.IsNotExist(err) {
		observability.CLILogger.Info(label+" already removed", zap.String("path", absPath))
	} else {
		return fmt.Errorf("remove %s: %w", strings.ToLower(label), err)
	}
	return nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func existenceStatus(exists bool) string {
	if exists {
		return "exists"
	}
	return "missing"
}

func envStatus(name string) string {
	if strings.TrimSpace(os.Getenv(name)) != "" {
		return "(set)"
	}
	return "(not set)"
}
