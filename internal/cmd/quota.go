package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tripfx/tripfx/internal/output"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Inspect and reset provider quota state",
}

var quotaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers with their quota and circuit breaker state",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		stack, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer stack.Close() // nolint:errcheck // best-effort cleanup

		rendered, err := output.NewFormatter(format).FormatQuota(stack.providerRows())
		if err != nil {
			return err
		}
		return writeRendered(cmd, format, "quota.list", rendered)
	},
}

var quotaResetCmd = &cobra.Command{
	Use:   "reset [provider]",
	Short: "Clear the exhausted flag of one provider, or all with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		yes, _ := cmd.Flags().GetBool("yes")

		name := ""
		if len(args) == 1 {
			name = strings.TrimSpace(args[0])
		}
		switch {
		case name == "" && !all:
			return errors.New("provide a provider name or --all")
		case name != "" && all:
			return errors.New("a provider name and --all are mutually exclusive")
		case all && !yes:
			return errors.New("--all requires --yes")
		}

		stack, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer stack.Close() // nolint:errcheck // best-effort cleanup

		cleared, err := stack.Quota.Reset(cmd.Context(), name)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "cleared quota state for %d provider(s)\n", cleared)
		return err
	},
}

func init() {
	addOutputFlags(quotaListCmd)
	quotaResetCmd.Flags().Bool("all", false, "Reset every provider")
	quotaResetCmd.Flags().Bool("yes", false, "Confirm --all")

	quotaCmd.AddCommand(quotaListCmd)
	quotaCmd.AddCommand(quotaResetCmd)
	rootCmd.AddCommand(quotaCmd)
}
