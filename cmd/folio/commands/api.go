package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wonny/folio/backend/internal/api"
	"github.com/wonny/folio/backend/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "관리 API 서버 + 스케줄러 시작",
	Long: `관리용 HTTP API 서버를 스케줄러와 함께 시작합니다.

Endpoints:
  GET  /health                          - Health check
  GET  /metrics                         - Prometheus metrics
  GET  /api/admin/jobs                  - 등록된 작업과 통계
  POST /api/admin/jobs/{name}/trigger   - 작업 즉시 실행
  GET  /api/admin/jobs/{name}/history   - 작업 실행 이력
  GET  /api/admin/failures              - 조회 억제 중인 티커
  GET  /api/risk/portfolios/{id}        - 캐시된 최적화/상관관계 결과
  GET  /api/risk/portfolios/{id}/alerts - 최근 알림
  GET  /api/risk/portfolios/{id}/thresholds  - 기본/레짐 적용 임계값
  PUT  /api/risk/portfolios/{id}/thresholds  - 기본 임계값 저장
  GET  /api/users/{id}/preferences      - 사용자 설정
  PUT  /api/users/{id}/preferences      - 사용자 설정 저장
  GET  /api/accounts/{id}/transactions  - 감지된 거래 (?date=)
  GET  /api/regime/history              - 레짐 이력 (?from=&to=)
  GET  /api/regime/forecasts            - 레짐 예측 (?date=)
  GET  /api/prices/{ticker}             - 저장된 일별 종가

Example:
  go run ./cmd/folio api
  go run ./cmd/folio api --port 8090`,
	RunE: runAPIServer,
}

var (
	apiPort       string
	apiNoSchedule bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default PORT)")
	apiCmd.Flags().BoolVar(&apiNoSchedule, "no-schedule", false, "cron 스케줄 없이 수동 트리거만 허용")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Folio Admin API ===")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(ctx)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer eng.Close()

	if apiPort != "" {
		eng.cfg.Port = apiPort
	}

	sched, err := eng.newScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	if !apiNoSchedule {
		sched.Start()
	}

	var gatherer prometheus.Gatherer
	if eng.registry != nil {
		gatherer = eng.registry
	}

	router := api.NewRouter(api.Handlers{
		Jobs:      handlers.NewJobHandler(sched, eng.runs, eng.log),
		Risk:      handlers.NewRiskHandler(eng.cache, eng.cacheConfig().CorrelationWindow, eng.log),
		Portfolio: handlers.NewPortfolioHandler(eng.portfolios, eng.alerts, eng.regimes, eng.log),
		Account:   handlers.NewAccountHandler(eng.portfolios, eng.snapshots, eng.log),
		Market:    handlers.NewMarketHandler(eng.regimeRepo, eng.prices, eng.failures, eng.log),
		Health:    eng.db,
		Gatherer:  gatherer,
	}, eng.log)
	server := api.New(eng.cfg, eng.log, router)

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", eng.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	serveErr := server.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		eng.log.WithError(err).Warn("Scheduler did not stop cleanly")
	}

	if serveErr != nil {
		return serveErr
	}
	eng.log.Info("Server stopped")
	return nil
}
