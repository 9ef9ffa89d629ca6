package regime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/database"
)

// Repository persists market_regimes, hmm_models and regime_forecasts
type Repository struct {
	db database.Querier
}

// NewRepository creates a regime repository
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

// SaveRegime upserts the classification for its date
func (r *Repository) SaveRegime(ctx context.Context, m contracts.MarketRegime) (int64, error) {
	query := `
		INSERT INTO market_regimes
			(date, regime_type, volatility_level, market_return, confidence,
			 benchmark_ticker, lookback_days, threshold_multiplier)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (date) DO UPDATE SET
			regime_type = EXCLUDED.regime_type,
			volatility_level = EXCLUDED.volatility_level,
			market_return = EXCLUDED.market_return,
			confidence = EXCLUDED.confidence,
			benchmark_ticker = EXCLUDED.benchmark_ticker,
			lookback_days = EXCLUDED.lookback_days,
			threshold_multiplier = EXCLUDED.threshold_multiplier,
			updated_at = NOW()
		RETURNING id`

	var id int64
	err := r.db.QueryRow(ctx, query,
		m.Date, m.Type, m.VolatilityLevel, m.MarketReturn, m.Confidence,
		m.BenchmarkTicker, m.LookbackDays, m.ThresholdMultiplier,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert market regime: %w", err)
	}
	return id, nil
}

// LatestRegime returns the newest regime on or before the date
func (r *Repository) LatestRegime(ctx context.Context, onOrBefore time.Time) (contracts.MarketRegime, bool, error) {
	query := `
		SELECT id, date, regime_type, volatility_level, market_return, confidence,
		       benchmark_ticker, lookback_days, threshold_multiplier
		FROM market_regimes
		WHERE date <= $1
		ORDER BY date DESC
		LIMIT 1`

	m, err := scanRegime(r.db.QueryRow(ctx, query, onOrBefore))
	if database.IsNoRows(err) {
		return contracts.MarketRegime{}, false, nil
	}
	if err != nil {
		return contracts.MarketRegime{}, false, fmt.Errorf("query latest regime: %w", err)
	}
	return m, true, nil
}

// RegimeHistory returns regimes in [from, to], oldest first
func (r *Repository) RegimeHistory(ctx context.Context, from, to time.Time) ([]contracts.MarketRegime, error) {
	query := `
		SELECT id, date, regime_type, volatility_level, market_return, confidence,
		       benchmark_ticker, lookback_days, threshold_multiplier
		FROM market_regimes
		WHERE date BETWEEN $1 AND $2
		ORDER BY date ASC`

	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query regime history: %w", err)
	}
	defer rows.Close()

	var out []contracts.MarketRegime
	for rows.Next() {
		m, err := scanRegime(rows)
		if err != nil {
			return nil, fmt.Errorf("scan regime: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanRegime(row pgx.Row) (contracts.MarketRegime, error) {
	var m contracts.MarketRegime
	var typ string
	err := row.Scan(&m.ID, &m.Date, &typ, &m.VolatilityLevel, &m.MarketReturn, &m.Confidence,
		&m.BenchmarkTicker, &m.LookbackDays, &m.ThresholdMultiplier)
	if err != nil {
		return m, err
	}
	m.Type, err = contracts.ParseRegimeType(typ)
	return m, err
}

// SaveModel upserts a model by (model_name, market, trained_on_date)
func (r *Repository) SaveModel(ctx context.Context, m contracts.HMMModel) (int64, error) {
	names, err := json.Marshal(m.StateNames)
	if err != nil {
		return 0, fmt.Errorf("marshal state names: %w", err)
	}
	transition, err := json.Marshal(m.Transition)
	if err != nil {
		return 0, fmt.Errorf("marshal transition: %w", err)
	}
	emission, err := json.Marshal(m.Emission)
	if err != nil {
		return 0, fmt.Errorf("marshal emission: %w", err)
	}

	query := `
		INSERT INTO hmm_models
			(model_name, market, trained_on_date, num_states, state_names,
			 transition_matrix, emission_params, observation_symbols,
			 training_data_start, training_data_end, model_accuracy)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (model_name, market, trained_on_date) DO UPDATE SET
			num_states = EXCLUDED.num_states,
			state_names = EXCLUDED.state_names,
			transition_matrix = EXCLUDED.transition_matrix,
			emission_params = EXCLUDED.emission_params,
			observation_symbols = EXCLUDED.observation_symbols,
			training_data_start = EXCLUDED.training_data_start,
			training_data_end = EXCLUDED.training_data_end,
			model_accuracy = EXCLUDED.model_accuracy
		RETURNING id`

	var id int64
	err = r.db.QueryRow(ctx, query,
		m.Name, m.Market, m.TrainedOn, m.NumStates, names,
		transition, emission, m.ObservationSymbols,
		m.TrainingStart, m.TrainingEnd, m.Accuracy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert hmm model: %w", err)
	}
	return id, nil
}

// LatestModel returns the most recently trained model for market, or ErrNoModel
func (r *Repository) LatestModel(ctx context.Context, market string) (contracts.HMMModel, error) {
	query := `
		SELECT id, model_name, market, trained_on_date, num_states, state_names,
		       transition_matrix, emission_params, observation_symbols,
		       training_data_start, training_data_end, model_accuracy
		FROM hmm_models
		WHERE market = $1
		ORDER BY trained_on_date DESC, id DESC
		LIMIT 1`

	var m contracts.HMMModel
	var names, transition, emission []byte
	err := r.db.QueryRow(ctx, query, market).Scan(
		&m.ID, &m.Name, &m.Market, &m.TrainedOn, &m.NumStates, &names,
		&transition, &emission, &m.ObservationSymbols,
		&m.TrainingStart, &m.TrainingEnd, &m.Accuracy,
	)
	if database.IsNoRows(err) {
		return m, ErrNoModel
	}
	if err != nil {
		return m, fmt.Errorf("query hmm model: %w", err)
	}

	if err := json.Unmarshal(names, &m.StateNames); err != nil {
		return m, fmt.Errorf("decode state names: %w", err)
	}
	if err := json.Unmarshal(transition, &m.Transition); err != nil {
		return m, fmt.Errorf("decode transition: %w", err)
	}
	if err := json.Unmarshal(emission, &m.Emission); err != nil {
		return m, fmt.Errorf("decode emission: %w", err)
	}
	return m, nil
}

// CleanupModels keeps the newest keep models for market
func (r *Repository) CleanupModels(ctx context.Context, market string, keep int) (int64, error) {
	query := `
		DELETE FROM hmm_models
		WHERE market = $1
		  AND id NOT IN (
			SELECT id FROM hmm_models
			WHERE market = $1
			ORDER BY trained_on_date DESC, id DESC
			LIMIT $2
		  )`

	tag, err := r.db.Exec(ctx, query, market, keep)
	if err != nil {
		return 0, fmt.Errorf("cleanup hmm models: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SaveForecast upserts by (forecast_date, horizon_days)
func (r *Repository) SaveForecast(ctx context.Context, f contracts.RegimeForecast) (int64, error) {
	probs, err := json.Marshal(f.Probabilities)
	if err != nil {
		return 0, fmt.Errorf("marshal probabilities: %w", err)
	}

	query := `
		INSERT INTO regime_forecasts
			(forecast_date, horizon_days, predicted_regime, regime_probabilities,
			 transition_probability, confidence_level, hmm_model_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (forecast_date, horizon_days) DO UPDATE SET
			predicted_regime = EXCLUDED.predicted_regime,
			regime_probabilities = EXCLUDED.regime_probabilities,
			transition_probability = EXCLUDED.transition_probability,
			confidence_level = EXCLUDED.confidence_level,
			hmm_model_id = EXCLUDED.hmm_model_id
		RETURNING id`

	var id int64
	err = r.db.QueryRow(ctx, query,
		f.ForecastDate, f.HorizonDays, f.PredictedRegime, probs,
		f.TransitionProbability, f.Confidence, f.ModelID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert regime forecast: %w", err)
	}
	return id, nil
}

// ForecastsFor returns the forecasts issued on date, by horizon
func (r *Repository) ForecastsFor(ctx context.Context, date time.Time) ([]contracts.RegimeForecast, error) {
	query := `
		SELECT id, forecast_date, horizon_days, predicted_regime, regime_probabilities,
		       transition_probability, confidence_level, hmm_model_id
		FROM regime_forecasts
		WHERE forecast_date = $1
		ORDER BY horizon_days ASC`

	rows, err := r.db.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("query regime forecasts: %w", err)
	}
	defer rows.Close()

	var out []contracts.RegimeForecast
	for rows.Next() {
		var f contracts.RegimeForecast
		var predicted, confidence string
		var probs []byte
		if err := rows.Scan(&f.ID, &f.ForecastDate, &f.HorizonDays, &predicted, &probs,
			&f.TransitionProbability, &confidence, &f.ModelID); err != nil {
			return nil, fmt.Errorf("scan forecast: %w", err)
		}
		if f.PredictedRegime, err = contracts.ParseRegimeType(predicted); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(probs, &f.Probabilities); err != nil {
			return nil, fmt.Errorf("decode probabilities: %w", err)
		}
		f.Confidence = contracts.ConfidenceLevel(confidence)
		out = append(out, f)
	}
	return out, rows.Err()
}

// CleanupForecasts removes forecasts issued before the cutoff
func (r *Repository) CleanupForecasts(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM regime_forecasts WHERE forecast_date < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("cleanup regime forecasts: %w", err)
	}
	return tag.RowsAffected(), nil
}
