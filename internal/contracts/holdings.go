package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// HoldingSnapshot is one imported brokerage line on a calendar date.
// A cash line carries an empty ticker.
type HoldingSnapshot struct {
	AccountID    string          `json:"account_id"`
	SnapshotDate time.Time       `json:"snapshot_date"`
	Ticker       string          `json:"ticker"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	BookValue    decimal.Decimal `json:"book_value"`
	MarketValue  decimal.Decimal `json:"market_value"`
}

// IsCash reports whether the line is the account's cash balance
func (h HoldingSnapshot) IsCash() bool {
	return h.Ticker == ""
}

// TransactionType labels an inferred account movement
type TransactionType string

const (
	TxBuy        TransactionType = "BUY"
	TxSell       TransactionType = "SELL"
	TxDividend   TransactionType = "DIVIDEND"
	TxSplit      TransactionType = "SPLIT"
	TxDeposit    TransactionType = "DEPOSIT"
	TxWithdrawal TransactionType = "WITHDRAWAL"
	TxOther      TransactionType = "OTHER"
)

// DetectedTransaction is inferred by diffing two holdings snapshots.
// (FromDate, ToDate) records the interval the inference came from.
type DetectedTransaction struct {
	ID              int64           `json:"id,omitempty"`
	AccountID       string          `json:"account_id"`
	Type            TransactionType `json:"transaction_type"`
	Ticker          string          `json:"ticker,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionDate time.Time       `json:"transaction_date"`
	FromDate        time.Time       `json:"from_snapshot_date"`
	ToDate          time.Time       `json:"to_snapshot_date"`
	Description     string          `json:"description"`
}

// NaturalKey identifies a detection independent of its row id
func (t DetectedTransaction) NaturalKey() string {
	return t.AccountID + "|" + t.ToDate.Format("2006-01-02") + "|" + t.Ticker + "|" + string(t.Type)
}

// Portfolio groups accounts for analytics
type Portfolio struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// Position is a current holding used for weighting
type Position struct {
	PortfolioID string  `json:"portfolio_id"`
	AccountID   string  `json:"account_id"`
	Ticker      string  `json:"ticker"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	MarketValue float64 `json:"market_value"`
	Sector      string  `json:"sector,omitempty"`
}
