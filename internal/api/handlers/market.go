package handlers

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/database"
	"github.com/wonny/folio/backend/pkg/logger"
)

// RegimeReader reads persisted regimes and forecasts
type RegimeReader interface {
	RegimeHistory(ctx context.Context, from, to time.Time) ([]contracts.MarketRegime, error)
	ForecastsFor(ctx context.Context, date time.Time) ([]contracts.RegimeForecast, error)
}

// PriceHistory reads stored daily prices
type PriceHistory interface {
	GetHistory(ctx context.Context, ticker string) ([]contracts.PricePoint, error)
	LatestClose(ctx context.Context, ticker string) (contracts.PricePoint, error)
}

// FailureLister lists live fetch-failure records
type FailureLister interface {
	Snapshot() []contracts.FailureRecord
}

// MarketHandler serves market-wide reads: regimes, prices, provider failures
type MarketHandler struct {
	regimes  RegimeReader
	prices   PriceHistory
	failures FailureLister
	logger   *logger.Logger
	now      func() time.Time
}

// NewMarketHandler creates a new market handler
func NewMarketHandler(regimes RegimeReader, prices PriceHistory, failures FailureLister, log *logger.Logger) *MarketHandler {
	return &MarketHandler{
		regimes:  regimes,
		prices:   prices,
		failures: failures,
		logger:   log,
		now:      time.Now,
	}
}

// parseDay reads a YYYY-MM-DD query parameter, def when absent
func parseDay(r *http.Request, key string, def time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return time.Parse("2006-01-02", raw)
}

// RegimeHistory lists classified regimes in [from, to]
// GET /api/regime/history?from=YYYY-MM-DD&to=YYYY-MM-DD (기본: 최근 90일)
func (h *MarketHandler) RegimeHistory(w http.ResponseWriter, r *http.Request) {
	today := h.now().UTC().Truncate(24 * time.Hour)

	to, err := parseDay(r, "to", today)
	if err != nil {
		respondError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}
	from, err := parseDay(r, "from", to.AddDate(0, 0, -90))
	if err != nil {
		respondError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	if from.After(to) {
		respondError(w, http.StatusBadRequest, "from must not be after to")
		return
	}

	list, err := h.regimes.RegimeHistory(r.Context(), from, to)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load regime history")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve regime history")
		return
	}
	if list == nil {
		list = []contracts.MarketRegime{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"from":    from.Format("2006-01-02"),
		"to":      to.Format("2006-01-02"),
		"regimes": list,
	})
}

// RegimeForecasts lists the forecasts issued on a date
// GET /api/regime/forecasts?date=YYYY-MM-DD
func (h *MarketHandler) RegimeForecasts(w http.ResponseWriter, r *http.Request) {
	date, err := parseDay(r, "date", h.now().UTC().Truncate(24*time.Hour))
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	list, err := h.regimes.ForecastsFor(r.Context(), date)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load regime forecasts")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve forecasts")
		return
	}
	if list == nil {
		list = []contracts.RegimeForecast{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"date":      date.Format("2006-01-02"),
		"forecasts": list,
	})
}

// Prices returns the stored daily series of a ticker
// GET /api/prices/{ticker}
func (h *MarketHandler) Prices(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(mux.Vars(r)["ticker"])
	ctx := r.Context()

	latest, err := h.prices.LatestClose(ctx, ticker)
	if err != nil {
		if database.IsNoRows(err) {
			respondError(w, http.StatusNotFound, "No prices stored for "+ticker)
			return
		}
		h.logger.WithError(err).Ticker(ticker).Error("Failed to load latest close")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve prices")
		return
	}

	history, err := h.prices.GetHistory(ctx, ticker)
	if err != nil {
		h.logger.WithError(err).Ticker(ticker).Error("Failed to load price history")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve prices")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ticker": ticker,
		"latest": latest,
		"count":  len(history),
		"prices": history,
	})
}

// Failures lists tickers whose fetches are currently suppressed
// GET /api/admin/failures
func (h *MarketHandler) Failures(w http.ResponseWriter, r *http.Request) {
	records := h.failures.Snapshot()
	if records == nil {
		records = []contracts.FailureRecord{}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Ticker < records[j].Ticker })

	type failureView struct {
		contracts.FailureRecord
		ExpiresAt time.Time `json:"expires_at"`
	}
	views := make([]failureView, len(records))
	for i, rec := range records {
		views[i] = failureView{FailureRecord: rec, ExpiresAt: rec.ExpiresAt()}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"failures": views,
		"count":    len(views),
	})
}
