package output

import (
	"fmt"
	"strings"

	"github.com/tripfx/tripfx/internal/core/recommend"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

// FormatRecommendations renders ranked destinations as Markdown.
func (f *MarkdownFormatter) FormatRecommendations(resp *recommend.Response) (string, error) {
	if resp == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(summaryLine(resp))))
	sb.WriteString("| # | Destination | Country | Currency | Rate | Trend | Fare | Score | Notes |\n")
	sb.WriteString("|---|-------------|---------|----------|------|-------|------|-------|-------|\n")

	for i, rec := range resp.Recommendations {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %.4f | %s | %s | %.4f | %s |\n",
			i+1,
			escapeMarkdownCell(destinationLabel(rec)),
			escapeMarkdownCell(rec.Country),
			escapeMarkdownCell(rec.Currency),
			rec.ExchangeRate,
			trendLabel(rec.Trend),
			escapeMarkdownCell(fareLabel(rec)),
			rec.Score,
			escapeMarkdownCell(fareNotes(rec)),
		))
	}

	writeWarnings(&sb, resp.Warnings)
	return sb.String(), nil
}

// FormatTrend renders a pair trend as Markdown.
func (f *MarkdownFormatter) FormatTrend(report *recommend.TrendReport) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s/%s\n\n", report.Base, report.Quote))
	sb.WriteString(fmt.Sprintf("- **Rate**: %.6f (%s)\n", report.Rate, escapeMarkdownCell(report.Path)))
	sb.WriteString(fmt.Sprintf("- **Trend**: %s (%s, %d days)\n", trendLabel(report.Trend), report.Method, report.Window))
	sb.WriteString(fmt.Sprintf("- **Window**: %s to %s\n", report.StartDate, report.EndDate))
	sb.WriteString(fmt.Sprintf("- **Source**: %s\n", report.Source))
	writeWarnings(&sb, report.Warnings)
	return sb.String(), nil
}

// FormatQuota renders provider availability as Markdown.
func (f *MarkdownFormatter) FormatQuota(rows []ProviderRow) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Provider | Kind | Status | Breaker | Last Quota Error |\n")
	sb.WriteString("|----------|------|--------|---------|------------------|\n")
	for _, row := range rows {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			escapeMarkdownCell(row.Name),
			row.Kind,
			availabilityLabel(row),
			row.Breaker,
			lastErrorLabel(row),
		))
	}
	return sb.String(), nil
}

func writeWarnings(sb *strings.Builder, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	sb.WriteString("\n**Warnings**\n\n")
	for _, warning := range warnings {
		sb.WriteString("- " + escapeMarkdownCell(warning) + "\n")
	}
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
