package snapshots

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/logger"
)

// HoldingsStore reads imported holdings snapshots
type HoldingsStore interface {
	HoldingsOn(ctx context.Context, accountID string, date time.Time) ([]contracts.HoldingSnapshot, error)
	PreviousSnapshotDate(ctx context.Context, accountID string, before time.Time) (time.Time, bool, error)
}

// TransactionStore replaces detections for an interval and keeps account totals current
type TransactionStore interface {
	ReplaceDetected(ctx context.Context, accountID string, toDate time.Time, txs []contracts.DetectedTransaction) error
	RefreshAccountTotal(ctx context.Context, accountID string, date time.Time) error
}

// Detector infers account transactions from consecutive holdings snapshots
type Detector struct {
	holdings HoldingsStore
	txs      TransactionStore
	logger   *logger.Logger
}

// NewDetector creates a transaction detector
func NewDetector(holdings HoldingsStore, txs TransactionStore, log *logger.Logger) *Detector {
	return &Detector{
		holdings: holdings,
		txs:      txs,
		logger:   log.Component("snapshots.detector"),
	}
}

// Detect diffs the snapshots at from and to and replaces any earlier detections
// for (account, to). Re-running yields the same set.
func (d *Detector) Detect(ctx context.Context, accountID string, from, to time.Time) ([]contracts.DetectedTransaction, error) {
	from, to = contracts.DateOnly(from), contracts.DateOnly(to)

	prev, err := d.holdings.HoldingsOn(ctx, accountID, from)
	if err != nil {
		return nil, fmt.Errorf("load holdings %s: %w", from.Format("2006-01-02"), err)
	}
	return d.detect(ctx, accountID, prev, from, to)
}

// DetectForNewSnapshot diffs newDate against the immediately prior snapshot.
// The first snapshot of an account is diffed against the empty state.
func (d *Detector) DetectForNewSnapshot(ctx context.Context, accountID string, newDate time.Time) ([]contracts.DetectedTransaction, error) {
	newDate = contracts.DateOnly(newDate)

	prevDate, ok, err := d.holdings.PreviousSnapshotDate(ctx, accountID, newDate)
	if err != nil {
		return nil, fmt.Errorf("find previous snapshot: %w", err)
	}
	if !ok {
		return d.detect(ctx, accountID, nil, time.Time{}, newDate)
	}
	return d.Detect(ctx, accountID, prevDate, newDate)
}

func (d *Detector) detect(ctx context.Context, accountID string, prev []contracts.HoldingSnapshot, from, to time.Time) ([]contracts.DetectedTransaction, error) {
	curr, err := d.holdings.HoldingsOn(ctx, accountID, to)
	if err != nil {
		return nil, fmt.Errorf("load holdings %s: %w", to.Format("2006-01-02"), err)
	}

	txs := Diff(accountID, prev, curr, from, to)
	if err := d.txs.ReplaceDetected(ctx, accountID, to, txs); err != nil {
		return nil, fmt.Errorf("store detected transactions: %w", err)
	}

	for _, tx := range txs {
		if tx.Type == contracts.TxDeposit || tx.Type == contracts.TxWithdrawal {
			if err := d.txs.RefreshAccountTotal(ctx, accountID, to); err != nil {
				return txs, fmt.Errorf("refresh account total: %w", err)
			}
			break
		}
	}

	d.logger.WithFields(map[string]interface{}{
		"account_id": accountID,
		"from":       from.Format("2006-01-02"),
		"to":         to.Format("2006-01-02"),
		"detected":   len(txs),
	}).Info("Transactions detected")
	return txs, nil
}
