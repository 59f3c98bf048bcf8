package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"

	"github.com/tripfx/tripfx/internal/core"
	"github.com/tripfx/tripfx/internal/core/refdata"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended to include build, toolchain and bundled reference data details.",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", GetAppIdentity().BinaryName, versionInfo.Version)
		if !extended {
			return nil
		}

		fmt.Fprintf(out, "Commit: %s\n", versionInfo.Commit)
		fmt.Fprintf(out, "Built: %s\n", versionInfo.BuildDate)
		fmt.Fprintf(out, "Go: %s\n\n", runtime.Version())

		version := crucible.GetVersion()
		fmt.Fprintf(out, "Gofulmen: %s\n", version.Gofulmen)
		fmt.Fprintf(out, "Crucible: %s\n\n", version.Crucible)

		routes, err := refdata.Default()
		if err != nil {
			return fmt.Errorf("load bundled reference data: %w", err)
		}
		fmt.Fprintf(out, "Reference data: %d origin airports (bundled)\n", len(routes.Origins()))
		fmt.Fprintf(out, "Currencies: %d major currencies\n", len(core.MajorCurrencies))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}
