package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tripfx/tripfx/internal/core/recommend"
	"github.com/tripfx/tripfx/internal/observability"
	"github.com/tripfx/tripfx/internal/output"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend <airport>",
	Short: "Rank destinations reachable from an airport",
	Long: `Rank destinations served from a departure airport by how far the traveller's
currency goes there: current exchange rate, its recent trend and the flight fare.

Examples:
  tripfx recommend JFK --base USD
  tripfx recommend LHR --base GBP --outbound 2026-05-01 --return 2026-05-08 --limit 5
  tripfx recommend CDG --base EUR --output-format json --trace`,
	Args: cobra.ExactArgs(1),
	RunE: runRecommend,
}

func init() {
	rootCmd.AddCommand(recommendCmd)

	recommendCmd.Flags().StringP("base", "b", "USD", "Traveller's home currency (ISO 4217)")
	recommendCmd.Flags().String("outbound", "", "Outbound date YYYY-MM-DD (default: today plus the configured lead time)")
	recommendCmd.Flags().String("return", "", "Return date YYYY-MM-DD (default: one-way)")
	recommendCmd.Flags().IntP("limit", "n", 0, "Number of destinations to return (default from config)")
	recommendCmd.Flags().Bool("trace", false, "Keep the pipeline state trace in JSON output")
	addOutputFlags(recommendCmd)
}

func runRecommend(cmd *cobra.Command, args []string) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}

	base, _ := cmd.Flags().GetString("base")
	outbound, _ := cmd.Flags().GetString("outbound")
	returnDate, _ := cmd.Flags().GetString("return")
	limit, _ := cmd.Flags().GetInt("limit")
	keepTrace, _ := cmd.Flags().GetBool("trace")

	stack, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer stack.Close() // nolint:errcheck // best-effort cleanup

	resp, err := stack.Controller.Generate(cmd.Context(), recommend.Request{
		BaseCurrency:     base,
		DepartureAirport: args[0],
		OutboundDate:     outbound,
		ReturnDate:       returnDate,
		Limit:            limit,
	})
	if err != nil {
		return err
	}
	if !keepTrace {
		resp.Trace = nil
	}
	if verbose {
		observability.CLILogger.Debug("Recommendations generated",
			zap.String("id", resp.ID),
			zap.String("status", resp.Status),
			zap.Int("count", resp.Count),
			zap.Bool("cached", resp.Cached))
	}

	rendered, err := output.NewFormatter(format).FormatRecommendations(resp)
	if err != nil {
		return err
	}
	name := strings.Join([]string{"recommend", resp.DepartureAirport, resp.BaseCurrency, resp.OutboundDate}, ".")
	return writeRendered(cmd, format, name, rendered)
}
