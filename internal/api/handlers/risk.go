package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/folio/backend/internal/cachestore"
	"github.com/wonny/folio/backend/pkg/logger"
)

// RiskHandler serves cached portfolio analytics.
// It never computes: a miss means the cache job has not run yet.
type RiskHandler struct {
	cache             *cachestore.Store
	correlationWindow int
	logger            *logger.Logger
}

// NewRiskHandler creates a new risk handler
func NewRiskHandler(cache *cachestore.Store, correlationWindow int, log *logger.Logger) *RiskHandler {
	return &RiskHandler{
		cache:             cache,
		correlationWindow: correlationWindow,
		logger:            log,
	}
}

// cachedArtifact is one cache payload with its lifetime
type cachedArtifact struct {
	Data         json.RawMessage `json:"data"`
	CalculatedAt time.Time       `json:"calculated_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

// PortfolioRisk returns the optimization and correlation caches of a portfolio
// GET /api/risk/portfolios/{id}
func (h *RiskHandler) PortfolioRisk(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	optimization, err := h.artifact(r, cachestore.OptimizationKey(id))
	if err != nil {
		h.logger.WithError(err).WithField("portfolio_id", id).Error("Failed to read optimization cache")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve portfolio risk")
		return
	}
	correlations, err := h.artifact(r, cachestore.CorrelationsKey(id, h.correlationWindow))
	if err != nil {
		h.logger.WithError(err).WithField("portfolio_id", id).Error("Failed to read correlation cache")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve portfolio risk")
		return
	}
	if optimization == nil && correlations == nil {
		respondError(w, http.StatusNotFound, "No cached analytics for portfolio "+id)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_id": id,
		"optimization": optimization,
		"correlations": correlations,
	})
}

func (h *RiskHandler) artifact(r *http.Request, key cachestore.Key) (*cachedArtifact, error) {
	e, ok, err := h.cache.Entry(r.Context(), key)
	if err != nil || !ok {
		return nil, err
	}
	return &cachedArtifact{
		Data:         e.Payload,
		CalculatedAt: e.CalculatedAt,
		ExpiresAt:    e.ExpiresAt,
	}, nil
}
