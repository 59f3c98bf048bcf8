// Package refdata provides airport and route reference data.
package refdata

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tripfx/tripfx/internal/core"
)

//go:embed data/network.yaml
var embeddedNetwork []byte

type document struct {
	Airports []core.Airport `yaml:"airports"`
	Routes   []struct {
		Origin       string `yaml:"origin"`
		Destinations []struct {
			Code        string  `yaml:"code"`
			Popularity  int     `yaml:"popularity"`
			AverageFare float64 `yaml:"average_fare"`
		} `yaml:"destinations"`
	} `yaml:"routes"`
}

// Dataset is an immutable airport and route network.
type Dataset struct {
	airports map[string]core.Airport
	routes   map[string][]core.Route
}

// Default parses the embedded network.
func Default() (*Dataset, error) {
	return Parse("embedded", embeddedNetwork)
}

// Open loads the network from path, or the embedded one when path is empty.
func Open(path string) (*Dataset, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path) // #nosec G304 -- reference data path is operator-provided
	if err != nil {
		return nil, fmt.Errorf("read reference data %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse decodes a network document. Every route endpoint must be a known airport.
func Parse(source string, data []byte) (*Dataset, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse reference data %s: %w", source, err)
	}

	ds := &Dataset{
		airports: make(map[string]core.Airport, len(doc.Airports)),
		routes:   make(map[string][]core.Route, len(doc.Routes)),
	}

	for _, airport := range doc.Airports {
		airport.Code = strings.ToUpper(strings.TrimSpace(airport.Code))
		airport.Currency = strings.ToUpper(strings.TrimSpace(airport.Currency))
		if airport.Code == "" {
			return nil, fmt.Errorf("reference data %s: airport without code", source)
		}
		if airport.Currency == "" {
			return nil, fmt.Errorf("reference data %s: airport %s has no currency", source, airport.Code)
		}
		if _, dup := ds.airports[airport.Code]; dup {
			return nil, fmt.Errorf("reference data %s: duplicate airport %s", source, airport.Code)
		}
		ds.airports[airport.Code] = airport
	}

	for _, group := range doc.Routes {
		origin := strings.ToUpper(strings.TrimSpace(group.Origin))
		if _, ok := ds.airports[origin]; !ok {
			return nil, fmt.Errorf("reference data %s: unknown origin %s", source, origin)
		}
		for _, dest := range group.Destinations {
			code := strings.ToUpper(strings.TrimSpace(dest.Code))
			if _, ok := ds.airports[code]; !ok {
				return nil, fmt.Errorf("reference data %s: unknown destination %s from %s", source, code, origin)
			}
			if code == origin {
				continue
			}
			ds.routes[origin] = append(ds.routes[origin], core.Route{
				Origin:      origin,
				Destination: code,
				Popularity:  dest.Popularity,
				AverageFare: dest.AverageFare,
			})
		}
	}

	for origin := range ds.routes {
		sortRoutes(ds.routes[origin])
	}
	return ds, nil
}

// RoutesForAirport returns the routes out of code, most popular first.
// An unknown airport has no routes.
func (d *Dataset) RoutesForAirport(ctx context.Context, code string) ([]core.Route, error) {
	if d == nil {
		return nil, fmt.Errorf("reference data is not loaded")
	}
	routes := d.routes[strings.ToUpper(strings.TrimSpace(code))]
	out := make([]core.Route, len(routes))
	copy(out, routes)
	return out, nil
}

// AirportCountryMap returns every airport keyed by code.
func (d *Dataset) AirportCountryMap(ctx context.Context) (map[string]core.Airport, error) {
	if d == nil {
		return nil, fmt.Errorf("reference data is not loaded")
	}
	out := make(map[string]core.Airport, len(d.airports))
	for code, airport := range d.airports {
		out[code] = airport
	}
	return out, nil
}

// Airport looks up a single airport.
func (d *Dataset) Airport(code string) (core.Airport, bool) {
	if d == nil {
		return core.Airport{}, false
	}
	airport, ok := d.airports[strings.ToUpper(strings.TrimSpace(code))]
	return airport, ok
}

// Origins lists airports with outbound routes.
func (d *Dataset) Origins() []string {
	if d == nil {
		return nil
	}
	origins := make([]string, 0, len(d.routes))
	for origin := range d.routes {
		origins = append(origins, origin)
	}
	sort.Strings(origins)
	return origins
}

func sortRoutes(routes []core.Route) {
	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].Popularity != routes[j].Popularity {
			return routes[i].Popularity > routes[j].Popularity
		}
		return routes[i].Destination < routes[j].Destination
	})
}
