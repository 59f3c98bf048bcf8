package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tripfx/tripfx/internal/core/recommend"
	"github.com/tripfx/tripfx/internal/output"
)

var trendCmd = &cobra.Command{
	Use:   "trend <base> <quote>",
	Short: "Show the current rate and trend of a currency pair",
	Long: `Resolve base/quote over the trend window, bridging through USD when the
pair is not quoted directly, and report its trend score.

Examples:
  tripfx trend USD EUR
  tripfx trend GBP JPY --series --output-format json`,
	Args: cobra.ExactArgs(2),
	RunE: runTrend,
}

func init() {
	rootCmd.AddCommand(trendCmd)

	trendCmd.Flags().Bool("series", false, "Include the daily rate series in JSON output")
	addOutputFlags(trendCmd)
}

func runTrend(cmd *cobra.Command, args []string) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	withSeries, _ := cmd.Flags().GetBool("series")

	stack, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer stack.Close() // nolint:errcheck // best-effort cleanup

	report, err := stack.Controller.Trend(cmd.Context(), recommend.TrendRequest{Base: args[0], Quote: args[1]})
	if err != nil {
		return err
	}
	if !withSeries {
		report.Series = nil
	}

	rendered, err := output.NewFormatter(format).FormatTrend(report)
	if err != nil {
		return err
	}
	return writeRendered(cmd, format, "trend."+report.Base+"."+report.Quote, rendered)
}
