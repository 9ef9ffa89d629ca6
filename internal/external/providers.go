// Package external wires the third-party price providers.
package external

import (
	"fmt"

	"github.com/wonny/folio/backend/internal/external/alphavantage"
	"github.com/wonny/folio/backend/internal/external/twelvedata"
	"github.com/wonny/folio/backend/internal/external/yahoo"
	"github.com/wonny/folio/backend/internal/prices"
	"github.com/wonny/folio/backend/pkg/config"
	"github.com/wonny/folio/backend/pkg/httputil"
	"github.com/wonny/folio/backend/pkg/logger"
	"github.com/wonny/folio/backend/pkg/metrics"
	"github.com/wonny/folio/backend/pkg/redis"
)

// NewProvider builds the provider selected by PRICE_PROVIDER.
// Daily quotas are enforced through Redis when it is enabled.
func NewProvider(cfg *config.Config, quota *redis.RateLimiter, rec *metrics.Recorder, log *logger.Logger) (prices.Provider, error) {
	p := cfg.Providers
	base := httputil.New(p.RequestTimeout, log)

	twelve := twelvedata.NewClient(
		base.WithRateLimiter(quota, redis.DailyQuota("twelvedata", p.TwelveDataDaily)),
		p.TwelveDataBaseURL, p.TwelveDataAPIKey, log,
	)
	alpha := alphavantage.NewClient(
		base.WithRateLimiter(quota, redis.DailyQuota("alphavantage", p.AlphaVantageDaily)),
		p.AlphaVantageURL, p.AlphaVantageKey, log,
	)
	yh := yahoo.NewClient(base, p.YahooBaseURL, log)

	switch p.Mode {
	case config.ProviderTwelveData:
		return twelve, nil
	case config.ProviderAlphaVantage:
		return alpha, nil
	case config.ProviderYahoo:
		return yh, nil
	case config.ProviderMulti:
		var primary, fallback prices.Provider
		if p.TwelveDataAPIKey != "" {
			primary = twelve
		}
		if p.AlphaVantageKey != "" {
			fallback = alpha
		}
		return prices.NewChain(primary, fallback, yh, rec, log), nil
	}
	return nil, fmt.Errorf("unknown price provider %q", p.Mode)
}
