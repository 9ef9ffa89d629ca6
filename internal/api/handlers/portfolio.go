package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/folio/backend/internal/alerts"
	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/database"
	"github.com/wonny/folio/backend/pkg/logger"
)

// PortfolioLookup resolves a portfolio id
type PortfolioLookup interface {
	Get(ctx context.Context, id string) (contracts.Portfolio, error)
}

// AlertStore reads alerts and edits the base threshold bands
type AlertStore interface {
	RecentAlerts(ctx context.Context, portfolioID string, limit int) ([]contracts.Alert, error)
	Thresholds(ctx context.Context, portfolioID string) (contracts.RiskThresholdSettings, error)
	SaveThresholds(ctx context.Context, t contracts.RiskThresholdSettings) error
}

// RegimeSource returns the regime in force on a date
type RegimeSource interface {
	Current(ctx context.Context, date time.Time) (contracts.MarketRegime, error)
}

// PortfolioHandler serves alerts and adaptive thresholds per portfolio
type PortfolioHandler struct {
	portfolios PortfolioLookup
	alerts     AlertStore
	regimes    RegimeSource
	logger     *logger.Logger
	now        func() time.Time
}

// NewPortfolioHandler creates a new portfolio handler
func NewPortfolioHandler(portfolios PortfolioLookup, store AlertStore, regimes RegimeSource, log *logger.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		portfolios: portfolios,
		alerts:     store,
		regimes:    regimes,
		logger:     log,
		now:        time.Now,
	}
}

// resolve writes a 404 and returns false for an unknown portfolio
func (h *PortfolioHandler) resolve(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if _, err := h.portfolios.Get(r.Context(), id); err != nil {
		if database.IsNoRows(err) {
			respondError(w, http.StatusNotFound, "Unknown portfolio: "+id)
			return "", false
		}
		h.logger.WithError(err).WithField("portfolio_id", id).Error("Failed to load portfolio")
		respondError(w, http.StatusInternalServerError, "Failed to load portfolio")
		return "", false
	}
	return id, true
}

// Alerts returns the newest alerts of a portfolio
// GET /api/risk/portfolios/{id}/alerts?limit=N
func (h *PortfolioHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resolve(w, r)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	list, err := h.alerts.RecentAlerts(r.Context(), id, limit)
	if err != nil {
		h.logger.WithError(err).WithField("portfolio_id", id).Error("Failed to load alerts")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve alerts")
		return
	}
	if list == nil {
		list = []contracts.Alert{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_id": id,
		"alerts":       list,
	})
}

// Thresholds returns the base bands and the bands in force under today's regime
// GET /api/risk/portfolios/{id}/thresholds
func (h *PortfolioHandler) Thresholds(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resolve(w, r)
	if !ok {
		return
	}
	h.writeThresholds(w, r, id, http.StatusOK)
}

// SaveThresholds replaces the base bands of a portfolio
// PUT /api/risk/portfolios/{id}/thresholds
func (h *PortfolioHandler) SaveThresholds(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var t contracts.RiskThresholdSettings
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	t.PortfolioID = id
	if err := t.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.alerts.SaveThresholds(r.Context(), t); err != nil {
		h.logger.WithError(err).WithField("portfolio_id", id).Error("Failed to save thresholds")
		respondError(w, http.StatusInternalServerError, "Failed to save thresholds")
		return
	}

	h.logger.WithField("portfolio_id", id).Info("Risk thresholds updated")
	h.writeThresholds(w, r, id, http.StatusOK)
}

func (h *PortfolioHandler) writeThresholds(w http.ResponseWriter, r *http.Request, id string, status int) {
	ctx := r.Context()

	base, err := h.alerts.Thresholds(ctx, id)
	if err != nil {
		h.logger.WithError(err).WithField("portfolio_id", id).Error("Failed to load thresholds")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve thresholds")
		return
	}
	regime, err := h.regimes.Current(ctx, h.now())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load market regime")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve market regime")
		return
	}

	respondJSON(w, status, map[string]interface{}{
		"portfolio_id": id,
		"regime":       regime.Type,
		"multiplier":   regime.Type.Multiplier(),
		"base":         base,
		"effective":    alerts.Effective(base, regime.Type),
	})
}

// PreferenceStore reads and writes user preferences
type PreferenceStore interface {
	Preferences(ctx context.Context, userID string) (contracts.UserPreferences, error)
	SavePreferences(ctx context.Context, p contracts.UserPreferences) error
}

// TransactionStore reads detected transactions
type TransactionStore interface {
	DetectedFor(ctx context.Context, accountID string, toDate time.Time) ([]contracts.DetectedTransaction, error)
}

// AccountHandler serves per-user preferences and per-account detections
type AccountHandler struct {
	preferences  PreferenceStore
	transactions TransactionStore
	logger       *logger.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(prefs PreferenceStore, txs TransactionStore, log *logger.Logger) *AccountHandler {
	return &AccountHandler{preferences: prefs, transactions: txs, logger: log}
}

// Preferences returns a user's preferences, defaults when none are saved
// GET /api/users/{id}/preferences
func (h *AccountHandler) Preferences(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	p, err := h.preferences.Preferences(r.Context(), id)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", id).Error("Failed to load preferences")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve preferences")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// SavePreferences validates and stores a user's preferences
// PUT /api/users/{id}/preferences
func (h *AccountHandler) SavePreferences(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var p contracts.UserPreferences
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p.UserID = id

	err := h.preferences.SavePreferences(r.Context(), p)
	switch {
	case errors.Is(err, contracts.ErrInvalidPreferences):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.WithError(err).WithField("user_id", id).Error("Failed to save preferences")
		respondError(w, http.StatusInternalServerError, "Failed to save preferences")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Transactions lists what was detected between the snapshot before date and date
// GET /api/accounts/{id}/transactions?date=YYYY-MM-DD
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	txs, err := h.transactions.DetectedFor(r.Context(), id, date)
	if err != nil {
		h.logger.WithError(err).WithField("account_id", id).Error("Failed to load detected transactions")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve transactions")
		return
	}
	if txs == nil {
		txs = []contracts.DetectedTransaction{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account_id":   id,
		"date":         date.Format("2006-01-02"),
		"transactions": txs,
	})
}
