package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalTicker(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"lower case", " aapl ", "AAPL", false},
		{"exchange suffix kept", "shop.to", "SHOP.TO", false},
		{"empty", "   ", "", true},
		{"too long", "ABCDEFGHIJK", "", true},
		{"exactly ten", "ABCDEFGHIJ", "ABCDEFGHIJ", false},
		{"embedded space", "BRK B", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalTicker(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTicker)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFailureKindTTL(t *testing.T) {
	assert.Equal(t, 24*time.Hour, FailureNotFound.TTL())
	assert.Equal(t, time.Hour, FailureRateLimited.TTL())
	assert.Equal(t, 6*time.Hour, FailureAPIError.TTL())
}

func TestFailureRecordLiveAt(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rec := FailureRecord{Ticker: "ZZZZ", Kind: FailureRateLimited, FailedAt: at, TTL: time.Hour}

	assert.True(t, rec.LiveAt(at.Add(59*time.Minute)))
	assert.False(t, rec.LiveAt(at.Add(time.Hour)))
	assert.Equal(t, at.Add(time.Hour), rec.ExpiresAt())
}

func TestLevelFromScore(t *testing.T) {
	tests := []struct {
		score float64
		want  RiskLevel
	}{
		{0, RiskLow},
		{39.999, RiskLow},
		{40, RiskModerate},
		{69.99, RiskModerate},
		{70, RiskHigh},
		{100, RiskHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFromScore(tt.score), "score %v", tt.score)
	}
}

func TestRegimeMultipliers(t *testing.T) {
	assert.Equal(t, 0.8, RegimeBull.Multiplier())
	assert.Equal(t, 1.0, RegimeNormal.Multiplier())
	assert.Equal(t, 1.3, RegimeBear.Multiplier())
	assert.Equal(t, 1.5, RegimeHighVolatility.Multiplier())
}

func TestParseRegimeType(t *testing.T) {
	r, err := ParseRegimeType("high_volatility")
	require.NoError(t, err)
	assert.Equal(t, RegimeHighVolatility, r)

	_, err = ParseRegimeType("sideways")
	assert.Error(t, err)
}

func TestStateProbabilities(t *testing.T) {
	p := ProbabilitiesFromVector([4]float64{0.1, 0.2, 0.6, 0.1})
	assert.True(t, p.Valid())

	state, prob := p.MostLikely()
	assert.Equal(t, RegimeHighVolatility, state)
	assert.InDelta(t, 0.6, prob, 1e-12)

	assert.False(t, ProbabilitiesFromVector([4]float64{0.5, 0.5, 0.5, 0}).Valid())
	assert.False(t, ProbabilitiesFromVector([4]float64{1.2, -0.2, 0, 0}).Valid())
}

func TestHMMModelValidate(t *testing.T) {
	uniform := func(n int) []float64 {
		row := make([]float64, n)
		for i := range row {
			row[i] = 1 / float64(n)
		}
		return row
	}
	m := HMMModel{Name: "regime_hmm", NumStates: 4, ObservationSymbols: 20}
	for i := 0; i < 4; i++ {
		m.Transition = append(m.Transition, uniform(4))
		m.Emission = append(m.Emission, uniform(20))
	}
	require.NoError(t, m.Validate())

	m.Transition[2] = []float64{0.9, 0.9, 0, 0}
	assert.Error(t, m.Validate())
}

func TestUserPreferencesValidate(t *testing.T) {
	p := DefaultPreferences("u1")
	require.NoError(t, p.Validate())

	bad := p
	bad.ForecastHorizonMonths = 25
	assert.ErrorIs(t, bad.Validate(), ErrInvalidPreferences)

	bad = p
	bad.Weights = FactorWeights{Sentiment: 0.5, Technical: 0.5, Fundamental: 0.5}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidPreferences)

	bad = p
	bad.RiskAppetite = "yolo"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidPreferences)
}

func TestSnapshotFromAssessment(t *testing.T) {
	beta := 1.1
	a := RiskAssessment{Ticker: "AAPL", Volatility: 25, MaxDrawdown: -12, Beta: &beta, RiskScore: 45, Level: RiskModerate}
	d := time.Date(2026, 3, 2, 17, 30, 0, 0, time.UTC)

	pos := SnapshotFromAssessment("p1", d, SnapshotPosition, a)
	assert.Equal(t, "AAPL", pos.Ticker)
	assert.Equal(t, DateOnly(d), pos.SnapshotDate)

	port := SnapshotFromAssessment("p1", d, SnapshotPortfolio, a)
	assert.Empty(t, port.Ticker)
}

func TestRiskThresholdSettingsValidate(t *testing.T) {
	require.NoError(t, DefaultRiskThresholds("p1").Validate())

	inverted := DefaultRiskThresholds("p1")
	inverted.BetaCritical = 1.2
	assert.ErrorIs(t, inverted.Validate(), ErrInvalidThresholds)

	zero := DefaultRiskThresholds("p1")
	zero.VaRWarning = 0
	assert.ErrorIs(t, zero.Validate(), ErrInvalidThresholds)
}
