package alerts

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/logger"
)

func f(v float64) *float64 { return &v }

var today = time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

func TestEffectiveThresholdBear(t *testing.T) {
	base := contracts.DefaultRiskThresholds("p1")
	require.Equal(t, 50.0, base.VolatilityCritical)

	eff := Effective(base, contracts.RegimeBear)
	assert.Equal(t, 65.0, eff.VolatilityCritical)
	assert.Equal(t, 39.0, eff.VolatilityWarning)
	assert.Equal(t, "p1", eff.PortfolioID)
}

func TestEffectiveThresholdMultipliers(t *testing.T) {
	base := contracts.DefaultRiskThresholds("p1")
	tests := []struct {
		regime contracts.RegimeType
		want   float64
	}{
		{contracts.RegimeBull, 80 * 0.8},
		{contracts.RegimeNormal, 80},
		{contracts.RegimeBear, 104},
		{contracts.RegimeHighVolatility, 120},
	}
	for _, tt := range tests {
		t.Run(string(tt.regime), func(t *testing.T) {
			assert.InDelta(t, tt.want, Effective(base, tt.regime).RiskScoreCritical, 1e-9)
		})
	}
}

func TestEvaluateSnapshot(t *testing.T) {
	eff := contracts.DefaultRiskThresholds("p1")
	snap := contracts.RiskSnapshot{
		PortfolioID:  "p1",
		SnapshotDate: today,
		Type:         contracts.SnapshotPortfolio,
		Volatility:   55,     // critical
		MaxDrawdown:  -22,    // warning by magnitude
		Beta:         f(1.1), // below
		VaR95:        f(-3.5),
		RiskScore:    45,
	}

	alerts := EvaluateSnapshot(snap, eff)
	got := map[string]contracts.Severity{}
	for _, a := range alerts {
		assert.Equal(t, contracts.AlertThresholdBreach, a.Kind)
		require.NotNil(t, a.Threshold)
		got[a.Metric] = a.Severity
	}
	assert.Equal(t, map[string]contracts.Severity{
		"volatility":   contracts.SeverityCritical,
		"max_drawdown": contracts.SeverityWarning,
		"var_95":       contracts.SeverityWarning,
	}, got)
}

func TestEvaluateSnapshotRegimeShiftsSeverity(t *testing.T) {
	base := contracts.DefaultRiskThresholds("p1")
	snap := contracts.RiskSnapshot{PortfolioID: "p1", SnapshotDate: today, Volatility: 42}

	assert.Equal(t, contracts.SeverityCritical, EvaluateSnapshot(snap, Effective(base, contracts.RegimeBull))[0].Severity)
	assert.Equal(t, contracts.SeverityWarning, EvaluateSnapshot(snap, Effective(base, contracts.RegimeNormal))[0].Severity)
	assert.Empty(t, EvaluateSnapshot(snap, Effective(base, contracts.RegimeHighVolatility)))
}

func history(scores ...float64) []contracts.RiskSnapshot {
	out := make([]contracts.RiskSnapshot, len(scores))
	for i, s := range scores {
		out[i] = contracts.RiskSnapshot{
			PortfolioID:  "p1",
			SnapshotDate: today.AddDate(0, 0, i-len(scores)+1),
			Type:         contracts.SnapshotPortfolio,
			RiskScore:    s,
		}
	}
	return out
}

func TestRiskSpikes(t *testing.T) {
	alerts := RiskSpikes(history(40, 44, 60, 0, 50, 130), 20)
	require.Len(t, alerts, 2)

	first := alerts[0]
	assert.Equal(t, contracts.AlertRiskSpike, first.Kind)
	assert.Equal(t, "risk_score", first.Metric)
	assert.Equal(t, 44.0, *first.Previous)
	assert.Equal(t, 60.0, first.Current)
	assert.InDelta(t, 36.36, *first.ChangePct, 0.01)
	assert.Equal(t, contracts.SeverityWarning, first.Severity)
	assert.Equal(t, today.AddDate(0, 0, -3), first.ObservedOn)

	// 0 -> 50 is skipped (prev not positive); 50 -> 130 is +160%
	assert.Equal(t, contracts.SeverityCritical, alerts[1].Severity)
	assert.Equal(t, today, alerts[1].ObservedOn)
}

func TestRiskSpikesExactThreshold(t *testing.T) {
	assert.Len(t, RiskSpikes(history(50, 60), 20), 1)
	assert.Empty(t, RiskSpikes(history(50, 59.99), 20))
	assert.Empty(t, RiskSpikes(history(50), 20))
}

// fakes

type memHistory []contracts.RiskSnapshot

func (m memHistory) PortfolioHistory(_ context.Context, id string, from, to time.Time) ([]contracts.RiskSnapshot, error) {
	var out []contracts.RiskSnapshot
	for _, s := range m {
		if s.PortfolioID == id && !s.SnapshotDate.Before(from) && !s.SnapshotDate.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

type memThresholds struct {
	rows  map[string]contracts.RiskThresholdSettings
	reads int
}

func (m *memThresholds) Thresholds(_ context.Context, id string) (contracts.RiskThresholdSettings, error) {
	m.reads++
	if t, ok := m.rows[id]; ok {
		return t, nil
	}
	t := contracts.DefaultRiskThresholds(id)
	m.rows[id] = t
	return t, nil
}

type fixedRegime contracts.RegimeType

func (r fixedRegime) Current(context.Context, time.Time) (contracts.MarketRegime, error) {
	return contracts.MarketRegime{Type: contracts.RegimeType(r)}, nil
}

type memSink struct {
	seen  map[string]bool
	saved []contracts.Alert
}

func newMemSink() *memSink { return &memSink{seen: map[string]bool{}} }

func (m *memSink) SaveAlert(_ context.Context, a contracts.Alert) (int64, bool, error) {
	rule := "-"
	if a.RuleID != nil {
		rule = strconv.FormatInt(*a.RuleID, 10)
	}
	key := strings.Join([]string{string(a.Kind), a.PortfolioID, a.Ticker, rule, a.Metric, string(a.Severity), a.ObservedOn.String()}, "|")
	if m.seen[key] {
		return 0, false, nil
	}
	m.seen[key] = true
	m.saved = append(m.saved, a)
	return int64(len(m.saved)), true, nil
}

func newTestEvaluator(h memHistory, regime contracts.RegimeType) (*Evaluator, *memThresholds) {
	th := &memThresholds{rows: map[string]contracts.RiskThresholdSettings{}}
	e := NewEvaluator(h, th, fixedRegime(regime), DefaultConfig(), nil, logger.Nop())
	e.now = func() time.Time { return today.Add(15 * time.Hour) }
	return e, th
}

func TestDetectRiskIncreases(t *testing.T) {
	h := memHistory(history(40, 40, 40, 40, 40, 40, 40, 40, 40, 52))
	e, _ := newTestEvaluator(h, contracts.RegimeNormal)

	alerts, err := e.DetectRiskIncreases(context.Background(), "p1", 3, 20)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.InDelta(t, 30.0, *alerts[0].ChangePct, 1e-9)

	alerts, err = e.DetectRiskIncreases(context.Background(), "other", 30, 20)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestEvaluateMaterializesDefaultsAndEmitsOnce(t *testing.T) {
	h := history(40, 72)
	h[1].Volatility = 45
	e, th := newTestEvaluator(memHistory(h), contracts.RegimeBull)

	eval, err := e.Evaluate(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, contracts.RegimeBull, eval.Regime)
	assert.Equal(t, 40.0, eval.Thresholds.VolatilityCritical)
	assert.Contains(t, th.rows, "p1")

	metricsSeen := map[string]bool{}
	for _, a := range eval.Alerts {
		metricsSeen[a.Metric+"/"+string(a.Kind)] = true
	}
	assert.True(t, metricsSeen["volatility/threshold_breach"])
	assert.True(t, metricsSeen["risk_score/threshold_breach"])
	assert.True(t, metricsSeen["risk_score/risk_spike"])

	sink := newMemSink()
	n, err := Emit(context.Background(), sink, nil, eval.Alerts)
	require.NoError(t, err)
	assert.Equal(t, len(eval.Alerts), n)

	n, err = Emit(context.Background(), sink, nil, eval.Alerts)
	require.NoError(t, err)
	assert.Zero(t, n, "re-evaluation does not duplicate alerts")
}

func TestEvaluateWithoutSnapshots(t *testing.T) {
	e, _ := newTestEvaluator(nil, contracts.RegimeNormal)
	eval, err := e.Evaluate(context.Background(), "p1")
	require.NoError(t, err)
	assert.Empty(t, eval.Alerts)
}
