package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Folio - 포트폴리오 분석 스케줄러",
	Long: `Folio analytics engine CLI

가격 수집, 리스크 스냅샷, 시장 레짐, 분석 캐시를 주기적으로 갱신하는 엔진.

Usage:
  go run ./cmd/folio [command]

Examples:
  go run ./cmd/folio scheduler start
  go run ./cmd/folio scheduler run refresh_prices
  go run ./cmd/folio api
  go run ./cmd/folio refresh AAPL
  go run ./cmd/folio regime train`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (LOG_LEVEL=debug)")
}
