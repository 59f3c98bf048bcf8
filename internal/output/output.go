package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/tripfx/tripfx/internal/core"
	"github.com/tripfx/tripfx/internal/core/recommend"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ProviderRow is one provider in a quota listing.
type ProviderRow struct {
	Name        string            `json:"name"`
	Kind        core.ProviderKind `json:"kind"`
	Available   bool              `json:"available"`
	Breaker     string            `json:"breaker,omitempty"`
	Exceeded    bool              `json:"exceeded"`
	LastErrorAt *time.Time        `json:"last_error_at,omitempty"`
	Cooldown    time.Duration     `json:"cooldown"`
}

// Formatter renders command results.
type Formatter interface {
	FormatRecommendations(resp *recommend.Response) (string, error)
	FormatTrend(report *recommend.TrendReport) (string, error)
	FormatQuota(rows []ProviderRow) (string, error)
}

var formatAliases = map[string]Format{
	"":         FormatTable,
	"table":    FormatTable,
	"json":     FormatJSON,
	"markdown": FormatMarkdown,
	"md":       FormatMarkdown,
}

// ParseFormat accepts a format name or alias, case-insensitively. Empty
// means table.
func ParseFormat(value string) (Format, error) {
	if format, ok := formatAliases[strings.ToLower(strings.TrimSpace(value))]; ok {
		return format, nil
	}
	return "", fmt.Errorf("unsupported output format: %s", value)
}

// Extension is the file extension used when output is written to a directory.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}
