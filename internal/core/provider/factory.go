package provider

import (
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/tripfx/tripfx/internal/config"
	"github.com/tripfx/tripfx/internal/core"
	"github.com/tripfx/tripfx/internal/core/engine"
)

// Supported provider types.
const (
	TypeExchangeRateHost = "exchangerate_host"
	TypeAlphaVantage     = "alphavantage"
	TypeSerpAPI          = "serpapi"
	TypeTequila          = "tequila"
)

// KindOf returns the data family served by a provider type.
func KindOf(providerType string) (core.ProviderKind, bool) {
	switch normalizeType(providerType) {
	case TypeExchangeRateHost, TypeAlphaVantage:
		return core.ProviderKindForex, true
	case TypeSerpAPI, TypeTequila:
		return core.ProviderKindFlights, true
	default:
		return "", false
	}
}

// New builds a single provider from configuration.
func New(cfg config.ProviderConfig, markers []string) (engine.Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name == "" {
		name = normalizeType(cfg.Type)
	}
	if name == "" {
		return nil, fmt.Errorf("provider name or type is required")
	}

	client := Client{
		ID:           name,
		BaseURL:      strings.TrimSpace(cfg.BaseURL),
		APIKey:       strings.TrimSpace(cfg.APIKey),
		QuotaMarkers: markers,
	}
	if cfg.Timeout > 0 {
		client.HTTP = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.RequestsPerMinute > 0 {
		client.Limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), 1)
	}

	switch normalizeType(cfg.Type) {
	case TypeExchangeRateHost:
		return &ExchangeRateHost{Client: client}, nil
	case TypeAlphaVantage:
		return &AlphaVantage{Client: client}, nil
	case TypeSerpAPI:
		return &SerpAPIFlights{Client: client}, nil
	case TypeTequila:
		return &TequilaFlights{Client: client}, nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q for %s", cfg.Type, name)
	}
}

// FromConfig builds the enabled providers of one kind in configured priority order.
func FromConfig(kind core.ProviderKind, cfgs []config.ProviderConfig, markers []string) ([]engine.Provider, error) {
	providers := make([]engine.Provider, 0, len(cfgs))
	seen := map[string]struct{}{}

	for _, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		providerKind, ok := KindOf(cfg.Type)
		if !ok {
			return nil, fmt.Errorf("unsupported provider type %q", cfg.Type)
		}
		if providerKind != kind {
			return nil, fmt.Errorf("provider %s serves %s data, not %s", cfg.Name, providerKind, kind)
		}

		p, err := New(cfg, markers)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p.Name()]; dup {
			return nil, fmt.Errorf("duplicate provider name %q", p.Name())
		}
		seen[p.Name()] = struct{}{}
		providers = append(providers, p)
	}
	return providers, nil
}

func normalizeType(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.ReplaceAll(value, "-", "_")
}
