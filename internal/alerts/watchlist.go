package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/internal/indicators"
	"github.com/wonny/folio/backend/pkg/logger"
	"github.com/wonny/folio/backend/pkg/metrics"
)

// DefaultCooldown suppresses a rule after it fires
const DefaultCooldown = 4 * time.Hour

const (
	defaultRSIOverbought = 70
	defaultRSIOversold   = 30
	defaultSMAPeriod     = 20
	// recentPoints covers the longest indicator warm-up
	recentPoints = 60
)

// RuleStore reads watchlist rules and the cooldown state
type RuleStore interface {
	Rules(ctx context.Context, ticker string) ([]contracts.WatchlistRule, error)
	LastAlertAt(ctx context.Context, ruleID int64) (time.Time, bool, error)
}

// PriceHistory returns the last n closes of a ticker, oldest first
type PriceHistory interface {
	GetRecent(ctx context.Context, ticker string, n int) ([]contracts.PricePoint, error)
}

// SentimentSource reports the latest change in a ticker's sentiment score
type SentimentSource interface {
	SentimentDelta(ctx context.Context, ticker string) (float64, bool, error)
}

// Signal is the market state a rule is evaluated against
type Signal struct {
	Closes    []float64
	Sentiment *float64
}

// WatchlistMonitor evaluates watchlist rules for one ticker at a time
type WatchlistMonitor struct {
	rules     RuleStore
	prices    PriceHistory
	sentiment SentimentSource
	sink      Sink
	metrics   *metrics.Recorder
	logger    *logger.Logger
	now       func() time.Time
}

// NewWatchlistMonitor creates a monitor; sentiment may be nil
func NewWatchlistMonitor(rules RuleStore, prices PriceHistory, sentiment SentimentSource, sink Sink, rec *metrics.Recorder, log *logger.Logger) *WatchlistMonitor {
	return &WatchlistMonitor{
		rules:     rules,
		prices:    prices,
		sentiment: sentiment,
		sink:      sink,
		metrics:   rec,
		logger:    log.Component("alerts.watchlist"),
		now:       time.Now,
	}
}

// CheckTicker evaluates every enabled rule on ticker and persists the
// triggered alerts whose rule is outside its cooldown.
func (m *WatchlistMonitor) CheckTicker(ctx context.Context, ticker string) ([]contracts.Alert, error) {
	rules, err := m.rules.Rules(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("load rules %s: %w", ticker, err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	points, err := m.prices.GetRecent(ctx, ticker, recentPoints)
	if err != nil {
		return nil, fmt.Errorf("load prices %s: %w", ticker, err)
	}
	sig := Signal{Closes: contracts.Closes(points)}

	if m.sentiment != nil {
		delta, ok, err := m.sentiment.SentimentDelta(ctx, ticker)
		if err != nil {
			m.logger.WithError(err).Ticker(ticker).Debug("Sentiment unavailable")
		} else if ok {
			sig.Sentiment = &delta
		}
	}

	now := m.now()
	var fired []contracts.Alert
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		a, ok := EvaluateRule(rule, sig)
		if !ok {
			continue
		}

		last, seen, err := m.rules.LastAlertAt(ctx, rule.ID)
		if err != nil {
			return fired, fmt.Errorf("cooldown lookup rule %d: %w", rule.ID, err)
		}
		if seen && now.Sub(last) < cooldown(rule) {
			continue
		}

		a.ObservedOn = now
		_, inserted, err := m.sink.SaveAlert(ctx, a)
		if err != nil {
			return fired, fmt.Errorf("save alert rule %d: %w", rule.ID, err)
		}
		if !inserted {
			continue
		}
		m.metrics.RecordAlert(string(a.Kind), string(a.Severity))
		fired = append(fired, a)
	}
	return fired, nil
}

func cooldown(rule contracts.WatchlistRule) time.Duration {
	if rule.Cooldown > 0 {
		return rule.Cooldown
	}
	return DefaultCooldown
}

// EvaluateRule reports whether rule fires on sig. Rules without enough data never fire.
func EvaluateRule(rule contracts.WatchlistRule, sig Signal) (contracts.Alert, bool) {
	a := contracts.Alert{
		Kind:     contracts.AlertWatchlist,
		Ticker:   rule.Ticker,
		Metric:   string(rule.Type),
		Severity: contracts.SeverityInfo,
	}
	id := rule.ID
	a.RuleID = &id

	n := len(sig.Closes)
	if rule.Type != contracts.RuleSentimentShift && n == 0 {
		return a, false
	}
	var last float64
	if n > 0 {
		last = sig.Closes[n-1]
	}

	threshold := rule.Threshold
	fired := false

	switch rule.Type {
	case contracts.RulePriceAbove:
		a.Current = last
		fired = last > threshold
	case contracts.RulePriceBelow:
		a.Current = last
		fired = last < threshold
	case contracts.RuleChangePct:
		if n < 2 || sig.Closes[n-2] == 0 {
			return a, false
		}
		prev := sig.Closes[n-2]
		change := (last/prev - 1) * 100
		a.Previous, a.Current, a.ChangePct = &prev, last, &change
		fired = math.Abs(change) >= threshold
		if fired && math.Abs(change) >= 2*threshold {
			a.Severity = contracts.SeverityWarning
		}
	case contracts.RuleRSIOverbought, contracts.RuleRSIOversold:
		rsi, ok := indicators.Last(indicators.RSI(sig.Closes, indicators.DefaultRSIPeriod))
		if !ok {
			return a, false
		}
		a.Current = rsi
		if rule.Type == contracts.RuleRSIOverbought {
			if threshold <= 0 {
				threshold = defaultRSIOverbought
			}
			fired = rsi >= threshold
		} else {
			if threshold <= 0 {
				threshold = defaultRSIOversold
			}
			fired = rsi <= threshold
		}
	case contracts.RuleSMACrossUp, contracts.RuleSMACrossDown:
		period := int(threshold)
		if period <= 1 {
			period = defaultSMAPeriod
		}
		threshold = float64(period)
		sma := indicators.SMA(sig.Closes, period)
		if n < 2 || sma[n-1] == nil || sma[n-2] == nil {
			return a, false
		}
		prevClose, prevSMA, lastSMA := sig.Closes[n-2], *sma[n-2], *sma[n-1]
		a.Current = last
		if rule.Type == contracts.RuleSMACrossUp {
			fired = prevClose <= prevSMA && last > lastSMA
		} else {
			fired = prevClose >= prevSMA && last < lastSMA
		}
		a.Payload = mustJSON(map[string]float64{"sma": lastSMA, "period": float64(period)})
	case contracts.RuleSentimentShift:
		if sig.Sentiment == nil {
			return a, false
		}
		a.Current = *sig.Sentiment
		fired = math.Abs(*sig.Sentiment) >= threshold
	default:
		return a, false
	}

	a.Threshold = &threshold
	return a, fired
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
