package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/folio/backend/internal/contracts"
)

// transactionsCmd groups holdings diff commands
var transactionsCmd = &cobra.Command{
	Use:   "transactions",
	Short: "보유 스냅샷 기반 거래 추론",
}

var transactionsDetectCmd = &cobra.Command{
	Use:   "detect [account_id]",
	Short: "두 스냅샷 사이 거래 추론",
	Long: `두 보유 스냅샷을 비교해 매수/매도/배당/분할 등을 추론하고 저장합니다.
같은 구간을 다시 실행하면 이전 결과를 대체합니다.

--from 을 생략하면 --to 직전 스냅샷과 비교합니다.

Example:
  go run ./cmd/folio transactions detect acc-1 --to 2026-03-02
  go run ./cmd/folio transactions detect acc-1 --from 2026-02-27 --to 2026-03-02`,
	Args: cobra.ExactArgs(1),
	RunE: runDetectTransactions,
}

var (
	detectFrom string
	detectTo   string
)

func init() {
	rootCmd.AddCommand(transactionsCmd)
	transactionsCmd.AddCommand(transactionsDetectCmd)

	transactionsDetectCmd.Flags().StringVar(&detectFrom, "from", "", "earlier snapshot date YYYY-MM-DD")
	transactionsDetectCmd.Flags().StringVar(&detectTo, "to", "", "later snapshot date YYYY-MM-DD (required)")
	_ = transactionsDetectCmd.MarkFlagRequired("to")
}

func runDetectTransactions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	accountID := args[0]

	to, err := time.Parse("2006-01-02", detectTo)
	if err != nil {
		return fmt.Errorf("invalid --to %q: %w", detectTo, err)
	}

	eng, err := newEngine(ctx)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer eng.Close()

	PrintHeader("Transaction detection: " + accountID)

	var txs []contracts.DetectedTransaction
	if detectFrom == "" {
		txs, err = eng.detector.DetectForNewSnapshot(ctx, accountID, to)
	} else {
		from, perr := time.Parse("2006-01-02", detectFrom)
		if perr != nil {
			return fmt.Errorf("invalid --from %q: %w", detectFrom, perr)
		}
		txs, err = eng.detector.Detect(ctx, accountID, from, to)
	}
	if err != nil {
		return fmt.Errorf("detect transactions: %w", err)
	}

	for _, tx := range txs {
		fmt.Printf("  %-10s %-10s qty=%s price=%s amount=%s  %s\n",
			tx.Type, tx.Ticker, tx.Quantity.String(), tx.Price.StringFixed(2), tx.Amount.StringFixed(2), tx.Description)
	}
	PrintSuccess(fmt.Sprintf("%d transactions stored for %s", len(txs), to.Format("2006-01-02")))
	return nil
}
