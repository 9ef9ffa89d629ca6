package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/folio/backend/internal/api/handlers"
	"github.com/wonny/folio/backend/pkg/database"
	"github.com/wonny/folio/backend/pkg/logger"
)

// HealthChecker reports database health for /health
type HealthChecker interface {
	HealthCheck(ctx context.Context) (*database.HealthStatus, error)
}

// Handlers bundles everything the router mounts.
// Nil Market/Portfolio/Account handlers leave their routes unmounted.
type Handlers struct {
	Jobs      *handlers.JobHandler
	Risk      *handlers.RiskHandler
	Portfolio *handlers.PortfolioHandler
	Account   *handlers.AccountHandler
	Market    *handlers.MarketHandler

	Health   HealthChecker
	Gatherer prometheus.Gatherer
}

// NewRouter creates and configures the HTTP router.
// A nil gatherer leaves /metrics unmounted.
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler(h.Health)).Methods("GET")

	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Admin endpoints
	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/jobs", h.Jobs.List).Methods("GET")
	admin.HandleFunc("/jobs/{name}/trigger", h.Jobs.Trigger).Methods("POST")
	admin.HandleFunc("/jobs/{name}/history", h.Jobs.History).Methods("GET")

	// Risk endpoints
	api.HandleFunc("/risk/portfolios/{id}", h.Risk.PortfolioRisk).Methods("GET")
	if h.Portfolio != nil {
		api.HandleFunc("/risk/portfolios/{id}/alerts", h.Portfolio.Alerts).Methods("GET")
		api.HandleFunc("/risk/portfolios/{id}/thresholds", h.Portfolio.Thresholds).Methods("GET")
		api.HandleFunc("/risk/portfolios/{id}/thresholds", h.Portfolio.SaveThresholds).Methods("PUT")
	}

	// Account endpoints
	if h.Account != nil {
		api.HandleFunc("/users/{id}/preferences", h.Account.Preferences).Methods("GET")
		api.HandleFunc("/users/{id}/preferences", h.Account.SavePreferences).Methods("PUT")
		api.HandleFunc("/accounts/{id}/transactions", h.Account.Transactions).Methods("GET")
	}

	// Market endpoints
	if h.Market != nil {
		api.HandleFunc("/regime/history", h.Market.RegimeHistory).Methods("GET")
		api.HandleFunc("/regime/forecasts", h.Market.RegimeForecasts).Methods("GET")
		api.HandleFunc("/prices/{ticker}", h.Market.Prices).Methods("GET")
		admin.HandleFunc("/failures", h.Market.Failures).Methods("GET")
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status, 503 when the database is down
func healthCheckHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":  "ok",
			"service": "folio-analytics",
		}
		code := http.StatusOK

		if checker != nil {
			status, err := checker.HealthCheck(r.Context())
			body["database"] = status
			if err != nil {
				body["status"] = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(body)
	}
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
