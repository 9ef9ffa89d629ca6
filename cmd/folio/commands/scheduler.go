package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// stopGrace bounds how long shutdown waits for in-flight jobs
const stopGrace = 2 * time.Minute

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 (동기)
  status  - 최근 실행 이력 조회

Example:
  go run ./cmd/folio scheduler start
  go run ./cmd/folio scheduler list
  go run ./cmd/folio scheduler run refresh_prices`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업 (CRON_<JOB_NAME> 으로 변경 가능):
- refresh_prices:        매일 02:00
- generate_forecasts:    매일 04:00
- check_thresholds:      매시간
- daily_risk_snapshots:  매일 17:00
- market_regime_update:  매일 17:00
- regime_forecast:       매일 17:30
- optimization_cache:    6시간마다
- rolling_beta_cache:    6시간마다
- downside_risk_cache:   6시간마다
- watchlist_monitoring:  30분마다
- cleanup_cache:         일요일 03:00
- archive_snapshots:     일요일 03:30

잘못된 cron 표현식이 있으면 작업이 시작되기 전에 종료합니다.
스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "작업 실행 이력 조회",
		RunE:  showStatus,
	}
)

var statusLimit int

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)

	schedulerStatusCmd.Flags().IntVar(&statusLimit, "limit", 5, "runs shown per job")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Folio Scheduler ===")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(ctx)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer eng.Close()

	sched, err := eng.newScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down scheduler...")
	stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	eng, err := newEngine(ctx)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer eng.Close()

	sched, err := eng.newScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	stats := sched.GetJobStats()
	fmt.Println("Registered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %-22s %s\n", jobName, stats[jobName].Schedule)
	}

	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(ctx)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer eng.Close()

	sched, err := eng.newScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	PrintHeader("Manual run: " + jobName)
	run, err := sched.RunNow(ctx, jobName)
	printRun(run)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	PrintSuccess(fmt.Sprintf("%s completed in %.2fs", jobName, float64(run.DurationMs)/1000))
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	eng, err := newEngine(ctx)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer eng.Close()

	sched, err := eng.newScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Println("Job Runs:")
	fmt.Println()

	for _, jobName := range sched.GetAllJobs() {
		runs, err := eng.runs.History(ctx, jobName, statusLimit)
		if err != nil {
			return fmt.Errorf("load %s history: %w", jobName, err)
		}

		fmt.Printf("📊 %s\n", jobName)
		if len(runs) == 0 {
			fmt.Println("   (never run)")
			fmt.Println()
			continue
		}
		for _, run := range runs {
			printRun(run)
		}
		fmt.Println()
	}

	return nil
}
