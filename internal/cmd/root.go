package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tripfx/tripfx/internal/appid"
	"github.com/tripfx/tripfx/internal/config"
	"github.com/tripfx/tripfx/internal/observability"
)

var (
	cfgFile string
	envFile string
	verbose bool

	appIdentity *appid.Identity

	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo records build metadata injected by main.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the identity resolved at startup.
func GetAppIdentity() *appid.Identity {
	return appIdentity
}

var rootCmd = &cobra.Command{
	Use:          "tripfx",
	Short:        "Travel destination recommendations",
	SilenceUsage: true,
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Config loading must not emit metrics to stdout; serve installs the
	// real telemetry system later.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	if identity, err := appid.Get(context.Background()); err == nil {
		appIdentity = identity
		applyIdentity(identity)
	}

	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file")
	flags.StringVar(&envFile, "env-file", "", "dotenv file with provider credentials (default ./.env when present)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
}

func applyIdentity(identity *appid.Identity) {
	rootCmd.Use = identity.BinaryName
	rootCmd.Short = identity.Description
	rootCmd.Long = fmt.Sprintf(`%s - %s

Recommendations combine the 30-day trend of each destination currency
against your base currency with current fares from your departure airport.
Rate and fare providers are tried in priority order; when all of them are
out of quota the answer is flagged degraded and built from simulated data.`,
		identity.BinaryName, identity.Description)
	if f := rootCmd.PersistentFlags().Lookup("config"); f != nil {
		f.Usage = fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", identity.ConfigName)
	}
}

func initConfig() {
	identity, err := appid.Get(context.Background())
	if err != nil {
		ExitWithCodeStderr(foundry.ExitFileNotFound, "Failed to load app identity", err)
	}
	appIdentity = identity
	applyIdentity(identity)

	observability.InitCLILogger(identity.BinaryName, verbose)
	log := observability.CLILogger

	loadEnvFile()

	if err := configureViper(viper.GetViper(), identity, cfgFile); err != nil {
		ExitWithCode(log, foundry.ExitFileNotFound, "Could not resolve config location", err)
	}

	err = viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		log.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
	case errors.As(err, &notFound):
		log.Debug("No config file found, using defaults and environment variables")
	default:
		log.Warn("Error reading config file", zap.Error(err))
	}

	config.SetDefaults(viper.GetViper())
}

// configureViper points v at the config file and the environment. Without
// an explicit file it searches the XDG config dir (or ~/.tripfx.yaml when
// that cannot be resolved) and ./config. TRIPFX_CACHE_BACKEND overrides
// cache.backend, and so on.
func configureViper(v *viper.Viper, identity *appid.Identity, file string) error {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		if dir := gfconfig.GetAppConfigDir(identity.ConfigName); dir != "" {
			v.AddConfigPath(dir)
			v.SetConfigName("config")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolve home directory: %w", err)
			}
			v.AddConfigPath(home)
			v.SetConfigName("." + identity.ConfigName)
		}
		v.AddConfigPath("./config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(identity.ViperPrefix())
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return nil
}

// loadEnvFile loads provider credentials from a dotenv file. Variables
// already present in the environment win. A missing default ./.env is not
// an error; a missing --env-file is.
func loadEnvFile() {
	path := strings.TrimSpace(envFile)
	explicit := path != ""
	if !explicit {
		path = ".env"
		if _, err := os.Stat(path); err != nil {
			return
		}
	}

	if err := godotenv.Load(path); err != nil {
		if explicit {
			ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Failed to load env file", err)
		}
		observability.CLILogger.Warn("Failed to load .env file", zap.String("path", path), zap.Error(err))
		return
	}
	observability.CLILogger.Debug("Loaded env file", zap.String("path", path))
}
