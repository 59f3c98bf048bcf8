package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/tripfx/tripfx/internal/core/recommend"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatRecommendations renders ranked destinations as a table.
func (f *TableFormatter) FormatRecommendations(resp *recommend.Response) (string, error) {
	if resp == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle(summaryLine(resp))
	t.AppendHeader(table.Row{"#", "Destination", "Country", "Currency", "Rate", "Trend", "Fare", "Score", "Notes"})

	for i, rec := range resp.Recommendations {
		t.AppendRow(table.Row{
			i + 1,
			destinationLabel(rec),
			rec.Country,
			rec.Currency,
			fmt.Sprintf("%.4f", rec.ExchangeRate),
			trendLabel(rec.Trend),
			fareLabel(rec),
			fmt.Sprintf("%.4f", rec.Score),
			fareNotes(rec),
		})
	}

	rendered := t.Render()
	for _, warning := range resp.Warnings {
		rendered += "\nwarning: " + warning
	}
	return rendered, nil
}

// FormatTrend renders a pair trend as a key/value table.
func (f *TableFormatter) FormatTrend(report *recommend.TrendReport) (string, error) {
	if report == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle(fmt.Sprintf("%s/%s", report.Base, report.Quote))
	t.AppendRows([]table.Row{
		{"Rate", fmt.Sprintf("%.6f", report.Rate)},
		{"Path", report.Path},
		{"Trend", trendLabel(report.Trend)},
		{"Method", report.Method},
		{"Window", fmt.Sprintf("%d days (%s to %s)", report.Window, report.StartDate, report.EndDate)},
		{"Source", string(report.Source)},
	})
	if report.Degraded {
		t.AppendRow(table.Row{"Degraded", "yes"})
	}

	rendered := t.Render()
	for _, warning := range report.Warnings {
		rendered += "\nwarning: " + warning
	}
	return rendered, nil
}

// FormatQuota renders provider availability as a table.
func (f *TableFormatter) FormatQuota(rows []ProviderRow) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Provider", "Kind", "Status", "Breaker", "Last Quota Error"})
	for _, row := range rows {
		t.AppendRow(table.Row{row.Name, string(row.Kind), availabilityLabel(row), row.Breaker, lastErrorLabel(row)})
	}
	return t.Render(), nil
}
