package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// refreshCmd fetches one ticker on demand
var refreshCmd = &cobra.Command{
	Use:   "refresh [ticker]",
	Short: "단일 종목 가격 갱신",
	Long: `저장된 가격 이력을 최신으로 갱신합니다.

이미 최신이거나 실패 캐시에 남아있는 종목은 외부 호출 없이 건너뜁니다.

Example:
  go run ./cmd/folio refresh AAPL
  go run ./cmd/folio refresh SHOP.TO --days 365`,
	Args: cobra.ExactArgs(1),
	RunE: runRefresh,
}

var refreshDays int

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().IntVar(&refreshDays, "days", 0, "lookback in calendar days (default RISK_LOOKBACK_DAYS)")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	eng, err := newEngine(ctx)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer eng.Close()

	days := refreshDays
	if days <= 0 {
		days = eng.cfg.Analytics.LookbackDays
	}

	PrintHeader("Price refresh: " + args[0])
	res, err := eng.ingester.Refresh(ctx, args[0], days)
	if err != nil {
		if rec, ok := eng.failures.Check(res.Ticker); ok {
			PrintWarning(fmt.Sprintf("%s suppressed until %s (%s)", rec.Ticker, rec.ExpiresAt().Format("2006-01-02 15:04"), rec.Kind))
		}
		return fmt.Errorf("refresh %s: %w", args[0], err)
	}

	if res.Skipped {
		PrintSuccess(res.Ticker + " is already up to date")
		return nil
	}
	PrintSuccess(fmt.Sprintf("%s: %d points stored", res.Ticker, res.Points))
	return nil
}
