package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/tripfx/tripfx/internal/core"
	"github.com/tripfx/tripfx/internal/core/recommend"
)

func destinationLabel(rec core.Recommendation) string {
	if rec.City == "" {
		return rec.DestinationAirport
	}
	return fmt.Sprintf("%s (%s)", rec.DestinationAirport, rec.City)
}

func fareLabel(rec core.Recommendation) string {
	if rec.Fare == nil {
		return "-"
	}
	label := fmt.Sprintf("%.2f %s", rec.Fare.Price, rec.Fare.Currency)
	if rec.FareSurrogate {
		label += " (est.)"
	}
	return label
}

// fareNotes summarizes where a fare came from and what it includes.
func fareNotes(rec core.Recommendation) string {
	if rec.Fare == nil {
		return ""
	}
	var notes []string
	if rec.Fare.Source != "" && rec.Fare.Source != core.SourceLive {
		notes = append(notes, string(rec.Fare.Source))
	}
	if rec.Fare.Provider != "" {
		notes = append(notes, rec.Fare.Provider)
	}
	if len(rec.Fare.Airlines) > 0 {
		notes = append(notes, strings.Join(rec.Fare.Airlines, "/"))
	}
	if rec.Fare.DurationMinutes > 0 {
		notes = append(notes, (time.Duration(rec.Fare.DurationMinutes) * time.Minute).String())
	}
	if rec.Fare.CarbonEmissionsKg != nil {
		notes = append(notes, fmt.Sprintf("%.0f kg CO2", *rec.Fare.CarbonEmissionsKg))
	}
	return strings.Join(notes, ", ")
}

func trendLabel(v float64) string {
	if v > 0 {
		return fmt.Sprintf("+%.4f", v)
	}
	return fmt.Sprintf("%.4f", v)
}

func summaryLine(resp *recommend.Response) string {
	parts := []string{fmt.Sprintf("%d destinations from %s in %s", resp.Count, resp.DepartureAirport, resp.BaseCurrency)}
	parts = append(parts, "outbound "+resp.OutboundDate)
	if resp.ReturnDate != "" {
		parts = append(parts, "return "+resp.ReturnDate)
	}
	if resp.Degraded {
		parts = append(parts, "degraded")
	}
	if resp.Cached {
		parts = append(parts, "cached")
	}
	return strings.Join(parts, ", ")
}

func availabilityLabel(row ProviderRow) string {
	if row.Available {
		return "available"
	}
	if row.Breaker == "open" {
		return "circuit open"
	}
	return "exhausted"
}

func lastErrorLabel(row ProviderRow) string {
	if row.LastErrorAt == nil {
		return "-"
	}
	return row.LastErrorAt.UTC().Format(time.RFC3339)
}
