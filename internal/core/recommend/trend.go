package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tripfx/tripfx/internal/core"
	"github.com/tripfx/tripfx/internal/core/engine"
	"github.com/tripfx/tripfx/internal/core/provider"
	"github.com/tripfx/tripfx/internal/core/score"
	"github.com/tripfx/tripfx/internal/core/trend"
)

// TrendRequest asks for the trend of a single currency pair.
type TrendRequest struct {
	Base  string `json:"base" validate:"required,len=3,alpha,major_currency"`
	Quote string `json:"quote" validate:"required,len=3,alpha,major_currency"`
}

// TrendReport is the current rate and trend of one pair.
type TrendReport struct {
	Base      string          `json:"base"`
	Quote     string          `json:"quote"`
	Rate      float64         `json:"rate"`
	Path      string          `json:"path"`
	Trend     float64         `json:"trend"`
	Method    string          `json:"method"`
	Window    int             `json:"window"`
	Source    core.DataSource `json:"source"`
	Degraded  bool            `json:"degraded"`
	Warnings  []string        `json:"warnings,omitempty"`
	Series    core.RateSeries `json:"series,omitempty"`
	StartDate string          `json:"start_date"`
	EndDate   string          `json:"end_date"`
}

// Trend resolves base→quote over the trend window and reports its trend.
// It shares the rate cache with Generate.
func (c *Controller) Trend(ctx context.Context, req TrendRequest) (*TrendReport, error) {
	if c == nil || c.Cache == nil {
		return nil, &Error{Code: CodeInternal, State: StateInit, Message: "controller is not configured"}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	r := &run{ctrl: c, logger: engine.LoggerOrNop(c.Logger), started: c.now()}
	r.enter(StateInit, "trend")

	req.Base = strings.ToUpper(strings.TrimSpace(req.Base))
	req.Quote = strings.ToUpper(strings.TrimSpace(req.Quote))
	if err := requestValidator().Struct(req); err != nil {
		return nil, r.fail(CodeValidationFailed, "invalid trend request", validationError(err))
	}

	today := core.Day(c.now())
	window := c.window()
	q := query{Base: req.Base, RateEnd: today, RateStart: today.AddDate(0, 0, -(window - 1))}

	r.enter(StateRateLookup, q.Base)
	history, err := r.rates(ctx, q)
	if err != nil {
		return nil, err
	}
	book := score.NewBook(history)
	book.Loader = func(ctx context.Context, base string) (*core.RateHistory, error) {
		bridge := q
		bridge.Base = base
		h, _, err := c.loadRates(ctx, bridge)
		if errors.Is(err, engine.ErrDataUnavailable) && c.SimulateRates {
			return provider.SimulatedRates{}.History(base, core.MajorCurrencies, q.RateStart, q.RateEnd), nil
		}
		return h, err
	}

	r.enter(StateScoreRank, req.Quote)
	res, ok := score.ResolveRate(ctx, book, req.Base, req.Quote)
	if !ok {
		return nil, r.fail(CodeNoRateData, fmt.Sprintf("no exchange rate available for %s/%s", req.Base, req.Quote), nil)
	}

	method := c.Analyzer.Method
	if method == "" {
		method = trend.MethodRegression
	}
	report := &TrendReport{
		Base:      req.Base,
		Quote:     req.Quote,
		Rate:      res.Rate,
		Path:      res.Path,
		Trend:     c.Analyzer.Compute(res.Series),
		Method:    method,
		Window:    window,
		Source:    history.Source,
		Series:    res.Series,
		StartDate: q.RateStart.Format(core.DateLayout),
		EndDate:   q.RateEnd.Format(core.DateLayout),
	}

	r.mu.Lock()
	report.Degraded = r.degraded
	report.Warnings = append([]string(nil), r.warnings...)
	r.mu.Unlock()

	r.enter(StateDone, "")
	r.logger.Debug("Computed pair trend",
		zap.String("base", report.Base),
		zap.String("quote", report.Quote),
		zap.Float64("trend", report.Trend))
	return report, nil
}
