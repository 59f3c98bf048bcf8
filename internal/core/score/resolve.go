package score

import (
	"context"
	"strings"
	"sync"

	"github.com/tripfx/tripfx/internal/core"
)

// Rate resolution paths, in priority order.
const (
	PathIdentity  = "identity"
	PathDirect    = "direct"
	PathInverse   = "inverse"
	PathUSDBridge = "usd_bridge"
)

// BridgeCurrency is the pivot used for triangulation.
const BridgeCurrency = "USD"

// Resolution is a usable rate for base→quote and the series it came from.
type Resolution struct {
	Rate   float64
	Series core.RateSeries
	Path   string
}

// Book holds rate histories keyed by base currency. Loader, when set, is
// consulted once for the bridge currency's history if triangulation needs it.
type Book struct {
	Loader func(ctx context.Context, base string) (*core.RateHistory, error)

	mu        sync.Mutex
	histories map[string]*core.RateHistory
	attempted map[string]bool
}

// NewBook returns a book seeded with histories.
func NewBook(histories ...*core.RateHistory) *Book {
	b := &Book{}
	for _, h := range histories {
		b.Add(h)
	}
	return b
}

// Add stores or replaces the history for h.Base.
func (b *Book) Add(h *core.RateHistory) {
	if b == nil || h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.histories == nil {
		b.histories = make(map[string]*core.RateHistory)
	}
	b.histories[strings.ToUpper(h.Base)] = h
}

// Series returns the normalized base→quote series when a loaded history has it.
func (b *Book) Series(base, quote string) (core.RateSeries, bool) {
	if b == nil {
		return nil, false
	}
	b.mu.Lock()
	h := b.histories[strings.ToUpper(base)]
	b.mu.Unlock()
	if h == nil {
		return nil, false
	}
	series := h.Series[strings.ToUpper(quote)].Normalize()
	if _, ok := series.Latest(); !ok {
		return nil, false
	}
	return series, true
}

// ensure loads base through Loader once. Failures are remembered so a bad
// bridge does not trigger a fetch per destination.
func (b *Book) ensure(ctx context.Context, base string) {
	if b == nil {
		return
	}
	base = strings.ToUpper(base)
	b.mu.Lock()
	_, loaded := b.histories[base]
	if loaded || b.attempted[base] || b.Loader == nil {
		b.mu.Unlock()
		return
	}
	if b.attempted == nil {
		b.attempted = make(map[string]bool)
	}
	b.attempted[base] = true
	b.mu.Unlock()

	h, err := b.Loader(ctx, base)
	if err != nil || h == nil {
		return
	}
	h.Base = base
	b.Add(h)
}

// ResolveRate finds a rate for base→quote: the direct pair, then the inverse
// pair, then triangulation through USD. A false result means the destination
// should be excluded; it is not an error.
func ResolveRate(ctx context.Context, book *Book, base, quote string) (Resolution, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	base = strings.ToUpper(strings.TrimSpace(base))
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if base == "" || quote == "" {
		return Resolution{}, false
	}
	if base == quote {
		return Resolution{Rate: 1, Path: PathIdentity}, true
	}

	if res, ok := pair(book, base, quote); ok {
		return res, true
	}

	if base == BridgeCurrency || quote == BridgeCurrency {
		return Resolution{}, false
	}

	book.ensure(ctx, BridgeCurrency)
	first, ok := pair(book, base, BridgeCurrency)
	if !ok {
		return Resolution{}, false
	}
	second, ok := pair(book, BridgeCurrency, quote)
	if !ok {
		return Resolution{}, false
	}

	return Resolution{
		Rate:   first.Rate * second.Rate,
		Series: multiply(first.Series, second.Series),
		Path:   PathUSDBridge,
	}, true
}

func pair(book *Book, base, quote string) (Resolution, bool) {
	if series, ok := book.Series(base, quote); ok {
		rate, _ := series.Latest()
		if rate > 0 {
			return Resolution{Rate: rate, Series: series, Path: PathDirect}, true
		}
	}
	if series, ok := book.Series(quote, base); ok {
		inverted := series.Invert()
		if rate, ok := inverted.Latest(); ok && rate > 0 {
			return Resolution{Rate: rate, Series: inverted, Path: PathInverse}, true
		}
	}
	return Resolution{}, false
}

// multiply combines two series on the days both cover.
func multiply(a, b core.RateSeries) core.RateSeries {
	byDay := make(map[int64]float64, len(b))
	for _, point := range b {
		byDay[core.Day(point.Date).Unix()] = point.Rate
	}
	var out core.RateSeries
	for _, point := range a {
		if other, ok := byDay[core.Day(point.Date).Unix()]; ok {
			out = append(out, core.RatePoint{Date: point.Date, Rate: point.Rate * other})
		}
	}
	return out
}
