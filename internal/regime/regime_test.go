package regime

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/logger"
)

func TestClassifyMetricsScenarios(t *testing.T) {
	c := NewClassifier(zerolog.Nop())

	bull := c.ClassifyMetrics(18, 6)
	assert.Equal(t, contracts.RegimeBull, bull.Type)
	assert.GreaterOrEqual(t, bull.Confidence, 60.0)

	hv := c.ClassifyMetrics(40, -2)
	assert.Equal(t, contracts.RegimeHighVolatility, hv.Type)

	bear := c.ClassifyMetrics(30, -4)
	assert.Equal(t, contracts.RegimeBear, bear.Type)

	normal := c.ClassifyMetrics(22, 1)
	assert.Equal(t, contracts.RegimeNormal, normal.Type)
}

func TestClassifyMetricsThresholdEqualIsNormal(t *testing.T) {
	c := NewClassifier(zerolog.Nop())

	tests := []struct {
		name string
		vol  float64
		ret  float64
	}{
		{"high vol boundary", 35, 1},
		{"bull vol boundary", 20, 3},
		{"bear vol boundary", 25, -3},
		{"flat return", 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.ClassifyMetrics(tt.vol, tt.ret)
			assert.Equal(t, contracts.RegimeNormal, got.Type)
			assert.GreaterOrEqual(t, got.Confidence, 50.0)
			assert.LessOrEqual(t, got.Confidence, 100.0)
		})
	}
}

func TestClassifyFromCloses(t *testing.T) {
	c := NewClassifier(zerolog.Nop())

	// steady small gains: low volatility, positive return
	closes := make([]float64, 22)
	closes[0] = 100
	for i := 1; i < len(closes); i++ {
		step := 0.004
		if i%2 == 0 {
			step = 0.001
		}
		closes[i] = closes[i-1] * math.Exp(step)
	}
	got, err := c.Classify(closes)
	require.NoError(t, err)
	assert.Equal(t, contracts.RegimeBull, got.Type)
	assert.Greater(t, got.Return, 0.0)

	_, err = c.Classify([]float64{100})
	assert.Error(t, err)
}

func TestMultipliers(t *testing.T) {
	assert.Equal(t, 0.8, contracts.RegimeBull.Multiplier())
	assert.Equal(t, 1.0, contracts.RegimeNormal.Multiplier())
	assert.Equal(t, 1.3, contracts.RegimeBear.Multiplier())
	assert.Equal(t, 1.5, contracts.RegimeHighVolatility.Multiplier())
}

func TestSymbolBins(t *testing.T) {
	assert.Equal(t, 0, Symbol(-5, 10))
	assert.Equal(t, ObservationSymbols-1, Symbol(5, 60))
	assert.Equal(t, 2*VolatilityBins+1, Symbol(0, 20), "flat day, moderate vol")
	assert.Equal(t, 1*VolatilityBins, Symbol(-2, 0), "edge belongs to the upper bin")
}

func TestObserve(t *testing.T) {
	assert.Nil(t, Observe([]float64{0.01, 0.02}))

	returns := []float64{0.01, -0.01, 0.02, -0.03, 0.005, 0.0, 0.04}
	obs := Observe(returns)
	require.Len(t, obs, len(returns)-ObservationWindow+1)
	for _, o := range obs {
		assert.GreaterOrEqual(t, o, 0)
		assert.Less(t, o, ObservationSymbols)
	}
}

func testModel() contracts.HMMModel {
	emission := make([][]float64, 4)
	for s := range emission {
		emission[s] = make([]float64, ObservationSymbols)
		for o := range emission[s] {
			emission[s][o] = 1
		}
	}
	// symbol 3 is strongly bull, symbol 19 strongly high-vol
	emission[0][3] = 30
	emission[2][19] = 30
	rowNormalize(emission)

	return contracts.HMMModel{
		ID:        7,
		Name:      "test",
		Market:    "US",
		NumStates: 4,
		Transition: [][]float64{
			{0.90, 0.02, 0.03, 0.05},
			{0.05, 0.80, 0.10, 0.05},
			{0.05, 0.15, 0.70, 0.10},
			{0.10, 0.05, 0.05, 0.80},
		},
		Emission:           emission,
		ObservationSymbols: ObservationSymbols,
	}
}

func TestInfer(t *testing.T) {
	m := testModel()
	require.NoError(t, m.Validate())

	p, err := Infer(m, []int{19, 3})
	require.NoError(t, err)
	assert.True(t, p.Valid())
	state, _ := p.MostLikely()
	assert.Equal(t, contracts.RegimeBull, state, "last observation decides")

	_, err = Infer(m, nil)
	assert.Error(t, err)
	_, err = Infer(m, []int{ObservationSymbols})
	assert.Error(t, err)
}

func TestForecastConservesProbability(t *testing.T) {
	m := testModel()
	start := contracts.StateProbabilities{Bull: 1}

	for _, n := range []int{0, 1, 5, 30, 100} {
		p := Forecast(m.Transition, start, n)
		assert.InDelta(t, 1.0, p.Sum(), contracts.ProbabilityTolerance, "n=%d", n)
		for _, x := range p.Vector() {
			assert.GreaterOrEqual(t, x, 0.0)
			assert.LessOrEqual(t, x, 1.0)
		}
	}

	one := Forecast(m.Transition, start, 1)
	assert.InDelta(t, 0.90, one.Bull, 1e-12)
	assert.InDelta(t, 0.05, one.Normal, 1e-12)
}

func TestForecastZeroVectorIsUniform(t *testing.T) {
	p := Forecast(testModel().Transition, contracts.StateProbabilities{}, 0)
	assert.InDelta(t, 0.25, p.Bear, 1e-12)
}

func TestConfidenceBucket(t *testing.T) {
	assert.Equal(t, contracts.ConfidenceHigh, ConfidenceBucket(0.71))
	assert.Equal(t, contracts.ConfidenceMedium, ConfidenceBucket(0.7))
	assert.Equal(t, contracts.ConfidenceMedium, ConfidenceBucket(0.51))
	assert.Equal(t, contracts.ConfidenceLow, ConfidenceBucket(0.5))
}

func TestTrain(t *testing.T) {
	labels := []contracts.RegimeType{
		contracts.RegimeBull, contracts.RegimeBull, contracts.RegimeNormal,
		contracts.RegimeBear, contracts.RegimeHighVolatility, contracts.RegimeBull,
	}
	obs := []int{3, 3, 9, 4, 19, 3}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	m, err := Train("rule-labelled", "US", labels, obs, start, end)
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	assert.Equal(t, end, m.TrainedOn)
	require.NotNil(t, m.Accuracy)
	assert.Greater(t, *m.Accuracy, 0.0)
	assert.Greater(t, m.Transition[0][0], m.Transition[0][1], "bull→bull was observed")

	_, err = Train("x", "US", labels, obs[:2], start, end)
	assert.Error(t, err)
}

// fakes

type memReader struct{ points []contracts.PricePoint }

func (m memReader) GetRange(_ context.Context, _ string, from, to time.Time) ([]contracts.PricePoint, error) {
	var out []contracts.PricePoint
	for _, p := range m.points {
		if !p.Date.Before(from) && !p.Date.After(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

type memStore struct {
	regimes   map[time.Time]contracts.MarketRegime
	model     *contracts.HMMModel
	forecasts map[[2]int64]contracts.RegimeForecast
	cleanedTo time.Time
	nextID    int64
}

func newMemStore() *memStore {
	return &memStore{
		regimes:   map[time.Time]contracts.MarketRegime{},
		forecasts: map[[2]int64]contracts.RegimeForecast{},
	}
}

func (s *memStore) SaveRegime(_ context.Context, r contracts.MarketRegime) (int64, error) {
	s.nextID++
	r.ID = s.nextID
	s.regimes[r.Date] = r
	return r.ID, nil
}

func (s *memStore) LatestRegime(_ context.Context, onOrBefore time.Time) (contracts.MarketRegime, bool, error) {
	var best contracts.MarketRegime
	found := false
	for d, r := range s.regimes {
		if !d.After(onOrBefore) && (!found || d.After(best.Date)) {
			best, found = r, true
		}
	}
	return best, found, nil
}

func (s *memStore) SaveModel(_ context.Context, m contracts.HMMModel) (int64, error) {
	s.nextID++
	m.ID = s.nextID
	s.model = &m
	return m.ID, nil
}

func (s *memStore) LatestModel(context.Context, string) (contracts.HMMModel, error) {
	if s.model == nil {
		return contracts.HMMModel{}, ErrNoModel
	}
	return *s.model, nil
}

func (s *memStore) CleanupModels(context.Context, string, int) (int64, error) { return 0, nil }

func (s *memStore) SaveForecast(_ context.Context, f contracts.RegimeForecast) (int64, error) {
	s.nextID++
	s.forecasts[[2]int64{f.ForecastDate.Unix(), int64(f.HorizonDays)}] = f
	return s.nextID, nil
}

func (s *memStore) CleanupForecasts(_ context.Context, before time.Time) (int64, error) {
	s.cleanedTo = before
	return 0, nil
}

// weekdayCloses generates n weekday closes ending on end, alternating +up/-down log returns
func weekdayCloses(end time.Time, n int, up, down float64) []contracts.PricePoint {
	var dates []time.Time
	for d := end; len(dates) < n; d = d.AddDate(0, 0, -1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			dates = append([]time.Time{d}, dates...)
		}
	}
	out := make([]contracts.PricePoint, n)
	price := 400.0
	for i, d := range dates {
		if i > 0 {
			if i%2 == 1 {
				price *= math.Exp(up)
			} else {
				price *= math.Exp(-down)
			}
		}
		out[i] = contracts.PricePoint{Ticker: "SPY", Date: d, Close: price}
	}
	return out
}

var testDate = time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

func TestServiceUpdatePersistsByDate(t *testing.T) {
	store := newMemStore()
	reader := memReader{points: weekdayCloses(testDate, 60, 0.004, 0.001)}
	svc := NewService(NewClassifier(zerolog.Nop()), reader, nil, store, Config{}, logger.Nop())

	r, err := svc.Update(context.Background(), testDate.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, contracts.RegimeBull, r.Type)
	assert.Equal(t, testDate, r.Date)
	assert.Equal(t, 0.8, r.ThresholdMultiplier)
	assert.Equal(t, "SPY", r.BenchmarkTicker)
	assert.Equal(t, 30, r.LookbackDays)

	_, err = svc.Update(context.Background(), testDate)
	require.NoError(t, err)
	assert.Len(t, store.regimes, 1, "re-running a day overwrites")

	cur, err := svc.Current(context.Background(), testDate.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, contracts.RegimeBull, cur.Type)
}

func TestServiceCurrentDefaultsToNormal(t *testing.T) {
	svc := NewService(NewClassifier(zerolog.Nop()), memReader{}, nil, newMemStore(), Config{}, logger.Nop())
	cur, err := svc.Current(context.Background(), testDate)
	require.NoError(t, err)
	assert.Equal(t, contracts.RegimeNormal, cur.Type)
	assert.Equal(t, 1.0, cur.ThresholdMultiplier)
}

func TestServiceForecastRequiresModel(t *testing.T) {
	reader := memReader{points: weekdayCloses(testDate, 60, 0.004, 0.001)}
	svc := NewService(NewClassifier(zerolog.Nop()), reader, nil, newMemStore(), Config{}, logger.Nop())

	_, err := svc.Forecast(context.Background(), testDate)
	assert.ErrorIs(t, err, ErrNoModel)
}

func TestServiceForecastHorizons(t *testing.T) {
	store := newMemStore()
	m := testModel()
	store.model = &m
	reader := memReader{points: weekdayCloses(testDate, 60, 0.004, 0.001)}
	svc := NewService(NewClassifier(zerolog.Nop()), reader, nil, store, Config{}, logger.Nop())

	forecasts, err := svc.Forecast(context.Background(), testDate)
	require.NoError(t, err)
	require.Len(t, forecasts, 3)
	for i, h := range []int{5, 10, 30} {
		f := forecasts[i]
		assert.Equal(t, h, f.HorizonDays)
		assert.True(t, f.Probabilities.Valid())
		assert.GreaterOrEqual(t, f.TransitionProbability, 0.0)
		assert.LessOrEqual(t, f.TransitionProbability, 1.0)
		require.NotNil(t, f.ModelID)
		assert.Equal(t, int64(7), *f.ModelID)
	}
	assert.Len(t, store.forecasts, 3)
	assert.Equal(t, testDate.Add(-ForecastRetention), store.cleanedTo)
}

func TestServiceTrainModel(t *testing.T) {
	store := newMemStore()
	reader := memReader{points: weekdayCloses(testDate, 200, 0.006, 0.004)}
	svc := NewService(NewClassifier(zerolog.Nop()), reader, nil, store, Config{}, logger.Nop())

	m, err := svc.TrainModel(context.Background(), "rule-labelled", testDate, 280)
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	assert.NotZero(t, m.ID)
	require.NotNil(t, store.model)

	forecasts, err := svc.Forecast(context.Background(), testDate)
	require.NoError(t, err)
	assert.Len(t, forecasts, 3)
}
