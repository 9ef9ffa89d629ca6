package prices

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/logger"
	"github.com/wonny/folio/backend/pkg/metrics"
)

// Route tags a provider slot in the chain
type Route int

const (
	RoutePrimary Route = iota
	RouteFallback
	RouteYahoo
)

func (r Route) String() string {
	switch r {
	case RoutePrimary:
		return "primary"
	case RouteFallback:
		return "fallback"
	case RouteYahoo:
		return "yahoo"
	}
	return fmt.Sprintf("route(%d)", int(r))
}

// canadianListings are TSX symbols commonly held without an exchange suffix
var canadianListings = map[string]bool{
	"XIU": true, "XIC": true, "XEQT": true, "XGRO": true, "XBAL": true,
	"VFV": true, "VCN": true, "VEQT": true, "VGRO": true, "VBAL": true,
	"ZSP": true, "ZAG": true, "ZCN": true, "ZEB": true, "HXT": true,
	"CASH": true, "HISA": true,
}

// IsCanadian reports whether ticker should route to Yahoo first
func IsCanadian(ticker string) bool {
	if strings.HasSuffix(ticker, ".TO") || strings.HasSuffix(ticker, ".V") {
		return true
	}
	return canadianListings[ticker]
}

// toTSX adds the .TO suffix to bare symbols; venture listings keep .V
func toTSX(ticker string) string {
	if strings.Contains(ticker, ".") {
		return ticker
	}
	return ticker + ".TO"
}

type step struct {
	route  Route
	symbol string
}

// Chain dispatches over {Primary, Fallback, Yahoo} in a ticker-dependent order.
// Nil slots are skipped.
// ⭐ SSOT: 가격 공급자 라우팅은 여기서만
type Chain struct {
	Primary  Provider
	Fallback Provider
	Yahoo    Provider

	metrics *metrics.Recorder
	logger  *logger.Logger
}

// NewChain creates a multi-provider chain
func NewChain(primary, fallback, yahoo Provider, rec *metrics.Recorder, log *logger.Logger) *Chain {
	return &Chain{
		Primary:  primary,
		Fallback: fallback,
		Yahoo:    yahoo,
		metrics:  rec,
		logger:   log.Component("prices.chain"),
	}
}

// Name returns the provider name
func (c *Chain) Name() string {
	return "multi"
}

func (c *Chain) provider(r Route) Provider {
	switch r {
	case RoutePrimary:
		return c.Primary
	case RouteFallback:
		return c.Fallback
	case RouteYahoo:
		return c.Yahoo
	}
	return nil
}

// plan returns the ordered attempts for ticker
func (c *Chain) plan(ticker string) []step {
	if IsCanadian(ticker) {
		return []step{
			{RouteYahoo, toTSX(ticker)},
			{RoutePrimary, ticker},
			{RouteFallback, ticker},
		}
	}

	steps := []step{
		{RoutePrimary, ticker},
		{RouteFallback, ticker},
		{RouteYahoo, ticker},
	}
	if !strings.Contains(ticker, ".") {
		steps = append(steps, step{RouteYahoo, ticker + ".TO"})
	}
	return steps
}

// FetchDailyHistory walks the chain until a provider returns data.
// When the whole pass fails transiently the chain is walked once more.
func (c *Chain) FetchDailyHistory(ctx context.Context, ticker string, days int) ([]contracts.PricePoint, error) {
	points, err := c.pass(ctx, ticker, days)
	if err == nil {
		return points, nil
	}
	if !kindOf(err).Transient() || ctx.Err() != nil {
		return nil, err
	}

	c.logger.WithError(err).Ticker(ticker).Debug("Transient chain failure, retrying once")
	return c.pass(ctx, ticker, days)
}

func (c *Chain) pass(ctx context.Context, ticker string, days int) ([]contracts.PricePoint, error) {
	var errs []*FetchError

	for _, s := range c.plan(ticker) {
		p := c.provider(s.route)
		if p == nil {
			continue
		}

		points, err := p.FetchDailyHistory(ctx, s.symbol, days)
		if err == nil && len(points) > 0 {
			c.metrics.RecordProviderCall(p.Name(), "ok")
			for i := range points {
				points[i].Ticker = ticker
			}
			c.logger.WithFields(map[string]interface{}{
				"ticker":   ticker,
				"symbol":   s.symbol,
				"provider": p.Name(),
				"route":    s.route.String(),
				"count":    len(points),
			}).Debug("Fetched daily history")
			return points, nil
		}

		if err == nil {
			err = NewFetchError(p.Name(), s.symbol, KindNotFound, errors.New("empty series"))
		}
		fe := ClassifyHTTPError(p.Name(), s.symbol, err)
		c.metrics.RecordProviderCall(p.Name(), string(fe.Kind))
		errs = append(errs, fe)

		if ctx.Err() != nil {
			return nil, NewFetchError(c.Name(), ticker, KindNetwork, ctx.Err())
		}
	}

	if len(errs) == 0 {
		return nil, NewFetchError(c.Name(), ticker, KindNotFound, ErrNoProvider)
	}
	return nil, combine(ticker, errs)
}

// combine picks the error the caller should act on: rate limiting wins
// because backoff may help, then transient errors, and NotFound only when
// every provider agreed.
func combine(ticker string, errs []*FetchError) *FetchError {
	var transient *FetchError
	for _, e := range errs {
		if e.Kind == KindRateLimited {
			return NewFetchError("multi", ticker, KindRateLimited, e)
		}
		if transient == nil && e.Kind.Transient() {
			transient = e
		}
	}
	if transient != nil {
		return NewFetchError("multi", ticker, transient.Kind, transient)
	}
	return NewFetchError("multi", ticker, KindNotFound, errs[len(errs)-1])
}
