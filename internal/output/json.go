package output

import (
	"github.com/goccy/go-json"

	"github.com/tripfx/tripfx/internal/core/recommend"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatRecommendations renders a recommendation response as JSON.
func (f *JSONFormatter) FormatRecommendations(resp *recommend.Response) (string, error) {
	if resp == nil {
		return "", nil
	}
	return f.marshal(resp)
}

// FormatTrend renders a trend report as JSON.
func (f *JSONFormatter) FormatTrend(report *recommend.TrendReport) (string, error) {
	if report == nil {
		return "", nil
	}
	return f.marshal(report)
}

// FormatQuota renders provider rows as JSON.
func (f *JSONFormatter) FormatQuota(rows []ProviderRow) (string, error) {
	if rows == nil {
		rows = []ProviderRow{}
	}
	return f.marshal(map[string]any{"providers": rows})
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
