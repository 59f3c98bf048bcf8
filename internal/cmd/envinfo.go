package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tripfx/tripfx/internal/config"
)

type envSection struct {
	title string
	rows  [][2]string
}

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display build, runtime, configuration and provider details. API keys are reported as set or not set, never printed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		t := table.NewWriter()
		t.SetStyle(table.StyleLight)
		t.SetTitle(GetAppIdentity().BinaryName + " environment")
		for i, section := range envInfoSections(cfg) {
			if i > 0 {
				t.AppendSeparator()
			}
			t.AppendRow(table.Row{strings.ToUpper(section.title), ""})
			for _, row := range section.rows {
				t.AppendRow(table.Row{"  " + row[0], row[1]})
			}
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return err
	},
}

func envInfoSections(cfg *config.Config) []envSection {
	deps := crucible.GetVersion()
	identity := GetAppIdentity()

	store := cfg.Store.Path
	if strings.TrimSpace(cfg.Store.URL) != "" {
		store = cfg.Store.URL
	}
	refData := cfg.RefData.Path
	if strings.TrimSpace(refData) == "" {
		refData = "(built-in)"
	}

	stack := [][2]string{
		{"Cache Backend", cfg.Cache.Backend},
		{"Quota Backend", cfg.Quota.Backend},
		{"Trend", fmt.Sprintf("%s over %d days", cfg.Trend.Method, cfg.Trend.Window)},
		{"Simulate Rates", fmt.Sprint(cfg.Fallback.SimulateRates)},
		{"Simulate Fares", fmt.Sprint(cfg.Fallback.SimulateFares)},
		{"Reference Data", refData},
	}
	if cfg.Cache.Backend == backendRedis || cfg.Quota.Backend == backendRedis {
		stack = append(stack, [2]string{"Redis Addr", cfg.Redis.Addr})
	}

	return []envSection{
		{"Application", [][2]string{
			{"Name", identity.BinaryName},
			{"Version", versionInfo.Version},
			{"Commit", versionInfo.Commit},
			{"Built", versionInfo.BuildDate},
			{"Gofulmen", deps.Gofulmen},
			{"Crucible", deps.Crucible},
		}},
		{"Runtime", [][2]string{
			{"Go", runtime.Version()},
			{"Platform", runtime.GOOS + "/" + runtime.GOARCH},
			{"CPUs", fmt.Sprint(runtime.NumCPU())},
		}},
		{"Configuration", [][2]string{
			{"Config File", config.DefaultConfigPath()},
			{"Server", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)},
			{"Log Level", cfg.Logging.Level},
			{"Store", cfg.Store.Driver + " " + store},
			{"Metrics Port", fmt.Sprint(cfg.Metrics.Port)},
		}},
		{"Recommendation Stack", stack},
		{"Providers", append(providerRows("forex", cfg.Providers.Forex), providerRows("flights", cfg.Providers.Flights)...)},
	}
}

func providerRows(kind string, providers []config.ProviderConfig) [][2]string {
	if len(providers) == 0 {
		return [][2]string{{kind, "(none configured)"}}
	}
	rows := make([][2]string, 0, len(providers))
	for _, p := range providers {
		key := "not set"
		if strings.TrimSpace(p.APIKey) != "" {
			key = "set"
		}
		rows = append(rows, [2]string{
			kind + "." + p.Name,
			fmt.Sprintf("type=%s enabled=%t api_key=%s", p.Type, p.Enabled, key),
		})
	}
	return rows
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
