package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/logger"
)

func rule(id int64, typ contracts.WatchRuleType, threshold float64) contracts.WatchlistRule {
	return contracts.WatchlistRule{ID: id, Ticker: "AAPL", Type: typ, Threshold: threshold, Enabled: true}
}

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestEvaluateRule(t *testing.T) {
	rising := ramp(30, 100, 1)
	falling := ramp(30, 130, -1)
	flatThenJump := append(ramp(25, 100, 0), 110)
	flatThenDrop := append(ramp(25, 100, 0), 90)

	tests := []struct {
		name  string
		rule  contracts.WatchlistRule
		sig   Signal
		fired bool
	}{
		{"price above", rule(1, contracts.RulePriceAbove, 120), Signal{Closes: rising}, true},
		{"price above equal", rule(1, contracts.RulePriceAbove, 129), Signal{Closes: rising}, false},
		{"price below", rule(2, contracts.RulePriceBelow, 105), Signal{Closes: falling}, true},
		{"change pct", rule(3, contracts.RuleChangePct, 5), Signal{Closes: flatThenJump}, true},
		{"change pct small", rule(3, contracts.RuleChangePct, 15), Signal{Closes: flatThenJump}, false},
		{"change pct one point", rule(3, contracts.RuleChangePct, 1), Signal{Closes: []float64{100}}, false},
		{"rsi overbought default", rule(4, contracts.RuleRSIOverbought, 0), Signal{Closes: rising}, true},
		{"rsi oversold default", rule(5, contracts.RuleRSIOversold, 0), Signal{Closes: falling}, true},
		{"rsi oversold on rally", rule(5, contracts.RuleRSIOversold, 0), Signal{Closes: rising}, false},
		{"rsi short series", rule(4, contracts.RuleRSIOverbought, 0), Signal{Closes: ramp(10, 1, 1)}, false},
		{"sma cross up", rule(6, contracts.RuleSMACrossUp, 20), Signal{Closes: flatThenJump}, true},
		{"sma cross down", rule(7, contracts.RuleSMACrossDown, 20), Signal{Closes: flatThenDrop}, true},
		{"sma no cross", rule(6, contracts.RuleSMACrossUp, 20), Signal{Closes: rising}, false},
		{"sentiment shift", rule(8, contracts.RuleSentimentShift, 0.3), Signal{Sentiment: f(-0.45)}, true},
		{"sentiment missing", rule(8, contracts.RuleSentimentShift, 0.3), Signal{}, false},
		{"no prices", rule(1, contracts.RulePriceAbove, 1), Signal{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, fired := EvaluateRule(tt.rule, tt.sig)
			assert.Equal(t, tt.fired, fired)
			if fired {
				assert.Equal(t, contracts.AlertWatchlist, a.Kind)
				require.NotNil(t, a.RuleID)
				assert.Equal(t, tt.rule.ID, *a.RuleID)
				assert.NotNil(t, a.Threshold)
			}
		})
	}
}

type memRules struct {
	rules []contracts.WatchlistRule
	sink  *memSink
}

func (m *memRules) Rules(_ context.Context, ticker string) ([]contracts.WatchlistRule, error) {
	var out []contracts.WatchlistRule
	for _, r := range m.rules {
		if r.Ticker == ticker {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRules) LastAlertAt(_ context.Context, ruleID int64) (time.Time, bool, error) {
	var last time.Time
	found := false
	for _, a := range m.sink.saved {
		if a.RuleID != nil && *a.RuleID == ruleID && a.ObservedOn.After(last) {
			last, found = a.ObservedOn, true
		}
	}
	return last, found, nil
}

type memPrices map[string][]float64

func (m memPrices) GetRecent(_ context.Context, ticker string, n int) ([]contracts.PricePoint, error) {
	closes := m[ticker]
	if len(closes) > n {
		closes = closes[len(closes)-n:]
	}
	out := make([]contracts.PricePoint, len(closes))
	for i, c := range closes {
		out[i] = contracts.PricePoint{Ticker: ticker, Date: today.AddDate(0, 0, i-len(closes)), Close: c}
	}
	return out, nil
}

type fixedSentiment float64

func (s fixedSentiment) SentimentDelta(context.Context, string) (float64, bool, error) {
	return float64(s), true, nil
}

func TestWatchlistMonitorCooldown(t *testing.T) {
	sink := newMemSink()
	cooled := rule(2, contracts.RuleSentimentShift, 0.2)
	cooled.Cooldown = time.Hour
	rules := &memRules{sink: sink, rules: []contracts.WatchlistRule{
		rule(1, contracts.RulePriceAbove, 120),
		cooled,
		{ID: 3, Ticker: "AAPL", Type: contracts.RulePriceAbove, Threshold: 1, Enabled: false},
		{ID: 4, Ticker: "MSFT", Type: contracts.RulePriceAbove, Threshold: 1, Enabled: true},
	}}
	m := NewWatchlistMonitor(rules, memPrices{"AAPL": ramp(30, 100, 1)}, fixedSentiment(0.5), sink, nil, logger.Nop())

	now := today.Add(10 * time.Hour)
	m.now = func() time.Time { return now }

	fired, err := m.CheckTicker(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Len(t, fired, 2)

	now = now.Add(2 * time.Hour)
	fired, err = m.CheckTicker(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, fired, 1, "price rule still cooling down, sentiment rule past its 1h cooldown")
	assert.Equal(t, int64(2), *fired[0].RuleID)

	now = now.Add(3 * time.Hour)
	fired, err = m.CheckTicker(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Len(t, fired, 2)
	assert.Len(t, sink.saved, 5)
}

func TestWatchlistMonitorTwoRulesOneTicker(t *testing.T) {
	sink := newMemSink()
	rules := &memRules{sink: sink, rules: []contracts.WatchlistRule{
		rule(1, contracts.RulePriceAbove, 110),
		rule(2, contracts.RulePriceAbove, 120),
	}}
	m := NewWatchlistMonitor(rules, memPrices{"AAPL": ramp(30, 100, 1)}, nil, sink, nil, logger.Nop())

	now := today.Add(10 * time.Hour)
	m.now = func() time.Time { return now }

	fired, err := m.CheckTicker(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, fired, 2)
	require.Len(t, sink.saved, 2, "each rule keeps its own row")
	assert.Equal(t, int64(1), *sink.saved[0].RuleID)
	assert.Equal(t, int64(2), *sink.saved[1].RuleID)

	now = now.Add(time.Minute)
	fired, err = m.CheckTicker(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Empty(t, fired, "both rules cooling down")
	assert.Len(t, sink.saved, 2)
}

type dupSink struct{ calls int }

func (d *dupSink) SaveAlert(context.Context, contracts.Alert) (int64, bool, error) {
	d.calls++
	return 0, false, nil
}

func TestWatchlistMonitorSkipsDuplicateAlert(t *testing.T) {
	sink := &dupSink{}
	rules := &memRules{sink: newMemSink(), rules: []contracts.WatchlistRule{rule(1, contracts.RulePriceAbove, 110)}}
	m := NewWatchlistMonitor(rules, memPrices{"AAPL": ramp(30, 100, 1)}, nil, sink, nil, logger.Nop())

	fired, err := m.CheckTicker(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, sink.calls)
	assert.Empty(t, fired, "an already stored alert is not fired again")
}

func TestWatchlistMonitorNoRules(t *testing.T) {
	sink := newMemSink()
	m := NewWatchlistMonitor(&memRules{sink: sink}, memPrices{}, nil, sink, nil, logger.Nop())
	fired, err := m.CheckTicker(context.Background(), "TSLA")
	require.NoError(t, err)
	assert.Empty(t, fired)
}
