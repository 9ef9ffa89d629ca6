package regime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/internal/indicators"
	"github.com/wonny/folio/backend/internal/prices"
	"github.com/wonny/folio/backend/pkg/logger"
)

// DefaultHorizons are the forecast horizons in days
var DefaultHorizons = []int{5, 10, 30}

// ForecastRetention is how long regime forecasts are kept
const ForecastRetention = 90 * 24 * time.Hour

// PriceReader loads stored benchmark closes
type PriceReader interface {
	GetRange(ctx context.Context, ticker string, from, to time.Time) ([]contracts.PricePoint, error)
}

// Refresher brings the benchmark series up to date
type Refresher interface {
	Refresh(ctx context.Context, ticker string, lookbackDays int) (prices.RefreshResult, error)
}

// Store persists regimes, models and forecasts
type Store interface {
	SaveRegime(ctx context.Context, r contracts.MarketRegime) (int64, error)
	LatestRegime(ctx context.Context, onOrBefore time.Time) (contracts.MarketRegime, bool, error)
	SaveModel(ctx context.Context, m contracts.HMMModel) (int64, error)
	LatestModel(ctx context.Context, market string) (contracts.HMMModel, error)
	CleanupModels(ctx context.Context, market string, keep int) (int64, error)
	SaveForecast(ctx context.Context, f contracts.RegimeForecast) (int64, error)
	CleanupForecasts(ctx context.Context, before time.Time) (int64, error)
}

// Config tunes the regime service
type Config struct {
	Benchmark    string
	LookbackDays int // calendar days behind each classification
	Market       string
	Horizons     []int
	// HistoryDays is how much history feeds the HMM observation sequence
	HistoryDays int
	KeepModels  int
}

// DefaultConfig 기본 설정 (SPY, 30일)
func DefaultConfig() Config {
	return Config{
		Benchmark:    "SPY",
		LookbackDays: 30,
		Market:       "US",
		Horizons:     DefaultHorizons,
		HistoryDays:  90,
		KeepModels:   5,
	}
}

// Service classifies the market and produces HMM forecasts
// ⭐ SSOT: 시장 레짐 판단은 여기서만
type Service struct {
	classifier *Classifier
	prices     PriceReader
	refresher  Refresher
	store      Store
	cfg        Config
	logger     *logger.Logger
}

// NewService creates a regime service; refresher may be nil
func NewService(classifier *Classifier, reader PriceReader, refresher Refresher, store Store, cfg Config, log *logger.Logger) *Service {
	def := DefaultConfig()
	if cfg.Benchmark == "" {
		cfg.Benchmark = def.Benchmark
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = def.LookbackDays
	}
	if cfg.Market == "" {
		cfg.Market = def.Market
	}
	if len(cfg.Horizons) == 0 {
		cfg.Horizons = def.Horizons
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = def.HistoryDays
	}
	if cfg.KeepModels <= 0 {
		cfg.KeepModels = def.KeepModels
	}
	return &Service{
		classifier: classifier,
		prices:     reader,
		refresher:  refresher,
		store:      store,
		cfg:        cfg,
		logger:     log.Component("regime.service"),
	}
}

// Config returns the effective configuration
func (s *Service) Config() Config {
	return s.cfg
}

// Update classifies the market as of date and persists the result (unique by date)
func (s *Service) Update(ctx context.Context, date time.Time) (contracts.MarketRegime, error) {
	date = contracts.DateOnly(date)
	closes, err := s.benchmarkCloses(ctx, date, s.cfg.LookbackDays)
	if err != nil {
		return contracts.MarketRegime{}, err
	}

	c, err := s.classifier.Classify(closes)
	if err != nil {
		return contracts.MarketRegime{}, fmt.Errorf("classify %s: %w", s.cfg.Benchmark, err)
	}

	regime := contracts.MarketRegime{
		Date:                date,
		Type:                c.Type,
		VolatilityLevel:     c.Volatility,
		MarketReturn:        c.Return,
		Confidence:          c.Confidence,
		BenchmarkTicker:     s.cfg.Benchmark,
		LookbackDays:        s.cfg.LookbackDays,
		ThresholdMultiplier: c.Type.Multiplier(),
	}
	id, err := s.store.SaveRegime(ctx, regime)
	if err != nil {
		return regime, fmt.Errorf("save regime: %w", err)
	}
	regime.ID = id

	s.logger.WithFields(map[string]interface{}{
		"date":       date.Format("2006-01-02"),
		"regime":     regime.Type,
		"volatility": regime.VolatilityLevel,
		"return":     regime.MarketReturn,
		"confidence": regime.Confidence,
	}).Info("Market regime updated")
	return regime, nil
}

// Current returns the latest regime on or before date; Normal when none is stored
func (s *Service) Current(ctx context.Context, date time.Time) (contracts.MarketRegime, error) {
	r, ok, err := s.store.LatestRegime(ctx, contracts.DateOnly(date))
	if err != nil {
		return contracts.MarketRegime{}, fmt.Errorf("load regime: %w", err)
	}
	if !ok {
		return contracts.MarketRegime{
			Date:                contracts.DateOnly(date),
			Type:                contracts.RegimeNormal,
			BenchmarkTicker:     s.cfg.Benchmark,
			LookbackDays:        s.cfg.LookbackDays,
			ThresholdMultiplier: contracts.RegimeNormal.Multiplier(),
		}, nil
	}
	return r, nil
}

// Forecast runs the HMM layer as of date for every configured horizon,
// persists each forecast and prunes forecasts past retention.
func (s *Service) Forecast(ctx context.Context, date time.Time) ([]contracts.RegimeForecast, error) {
	date = contracts.DateOnly(date)
	model, err := s.store.LatestModel(ctx, s.cfg.Market)
	if err != nil {
		if errors.Is(err, ErrNoModel) {
			return nil, fmt.Errorf("market %s: %w", s.cfg.Market, ErrNoModel)
		}
		return nil, fmt.Errorf("load hmm model: %w", err)
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}

	closes, err := s.benchmarkCloses(ctx, date, s.cfg.HistoryDays)
	if err != nil {
		return nil, err
	}
	returns, err := indicators.LogReturns(closes)
	if err != nil {
		return nil, fmt.Errorf("forecast returns: %w", err)
	}
	current, err := Infer(model, Observe(returns))
	if err != nil {
		return nil, err
	}
	currentState, _ := current.MostLikely()

	var modelID *int64
	if model.ID != 0 {
		id := model.ID
		modelID = &id
	}

	forecasts := make([]contracts.RegimeForecast, 0, len(s.cfg.Horizons))
	for _, h := range s.cfg.Horizons {
		f := BuildForecast(model, current, currentState, h)
		f.ForecastDate = date
		f.ModelID = modelID

		id, err := s.store.SaveForecast(ctx, f)
		if err != nil {
			return forecasts, fmt.Errorf("save %d-day forecast: %w", h, err)
		}
		f.ID = id
		forecasts = append(forecasts, f)
	}

	removed, err := s.store.CleanupForecasts(ctx, date.Add(-ForecastRetention))
	if err != nil {
		s.logger.WithError(err).Warn("Forecast cleanup failed")
	} else if removed > 0 {
		s.logger.WithField("removed", removed).Info("Old regime forecasts removed")
	}
	return forecasts, nil
}

// BuildForecast projects current through h steps of the model
func BuildForecast(model contracts.HMMModel, current contracts.StateProbabilities, currentState contracts.RegimeType, h int) contracts.RegimeForecast {
	p := Forecast(model.Transition, current, h)
	predicted, maxProb := p.MostLikely()

	stay := 0.0
	for i, st := range contracts.RegimeStates {
		if st == currentState {
			stay = p.Vector()[i]
		}
	}
	return contracts.RegimeForecast{
		HorizonDays:           h,
		PredictedRegime:       predicted,
		Probabilities:         p,
		TransitionProbability: 1 - stay,
		Confidence:            ConfidenceBucket(maxProb),
	}
}

// TrainModel labels history with the rule classifier, fits a model and stores it
func (s *Service) TrainModel(ctx context.Context, name string, end time.Time, historyDays int) (contracts.HMMModel, error) {
	end = contracts.DateOnly(end)
	points, err := s.load(ctx, end, historyDays)
	if err != nil {
		return contracts.HMMModel{}, err
	}
	closes := contracts.Closes(points)
	returns, err := indicators.LogReturns(closes)
	if err != nil {
		return contracts.HMMModel{}, fmt.Errorf("training returns: %w", err)
	}

	observations := Observe(returns)
	window := tradingWindow(s.cfg.LookbackDays)
	var labels []contracts.RegimeType
	var obs []int
	for k, o := range observations {
		// observation k is made on close index k+ObservationWindow
		j := k + ObservationWindow
		if j < window {
			continue
		}
		c, err := s.classifier.Classify(closes[j-window : j+1])
		if err != nil {
			continue
		}
		labels = append(labels, c.Type)
		obs = append(obs, o)
	}

	model, err := Train(name, s.cfg.Market, labels, obs, points[0].Date, end)
	if err != nil {
		return model, err
	}
	id, err := s.store.SaveModel(ctx, model)
	if err != nil {
		return model, fmt.Errorf("save model: %w", err)
	}
	model.ID = id

	if removed, err := s.store.CleanupModels(ctx, s.cfg.Market, s.cfg.KeepModels); err != nil {
		s.logger.WithError(err).Warn("Model cleanup failed")
	} else if removed > 0 {
		s.logger.WithField("removed", removed).Info("Old hmm models removed")
	}

	s.logger.WithFields(map[string]interface{}{
		"model":    name,
		"samples":  len(labels),
		"accuracy": *model.Accuracy,
	}).Info("HMM model trained")
	return model, nil
}

// tradingWindow converts calendar days to an approximate count of trading-day returns
func tradingWindow(calendarDays int) int {
	w := calendarDays * 5 / 7
	if w < 2 {
		w = 2
	}
	return w
}

func (s *Service) benchmarkCloses(ctx context.Context, date time.Time, days int) ([]float64, error) {
	points, err := s.load(ctx, date, days)
	if err != nil {
		return nil, err
	}
	return contracts.Closes(points), nil
}

func (s *Service) load(ctx context.Context, date time.Time, days int) ([]contracts.PricePoint, error) {
	if s.refresher != nil {
		if _, err := s.refresher.Refresh(ctx, s.cfg.Benchmark, days); err != nil {
			s.logger.WithError(err).Ticker(s.cfg.Benchmark).Warn("Benchmark refresh failed, using stored prices")
		}
	}
	points, err := s.prices.GetRange(ctx, s.cfg.Benchmark, date.AddDate(0, 0, -days), date.Add(24*time.Hour-time.Nanosecond))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.cfg.Benchmark, err)
	}
	if len(points) < 2 {
		return nil, fmt.Errorf("%s has %d closes in %d days: %w", s.cfg.Benchmark, len(points), days, indicators.ErrInsufficientData)
	}
	return points, nil
}
