package contracts

import (
	"encoding/json"
	"time"
)

// AlertKind is the origin rule family of an alert
type AlertKind string

const (
	AlertRiskSpike       AlertKind = "risk_spike"
	AlertThresholdBreach AlertKind = "threshold_breach"
	AlertWatchlist       AlertKind = "watchlist"
)

// Severity of an emitted alert
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is handed to the notification layer; it is not retried
type Alert struct {
	ID          int64           `json:"id,omitempty"`
	Kind        AlertKind       `json:"kind"`
	PortfolioID string          `json:"portfolio_id,omitempty"`
	Ticker      string          `json:"ticker,omitempty"`
	RuleID      *int64          `json:"rule_id,omitempty"`
	Metric      string          `json:"metric"`
	Previous    *float64        `json:"previous,omitempty"`
	Current     float64         `json:"current"`
	ChangePct   *float64        `json:"change_pct,omitempty"`
	Threshold   *float64        `json:"threshold,omitempty"`
	Severity    Severity        `json:"severity"`
	ObservedOn  time.Time       `json:"observed_on"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at,omitempty"`
}

// WatchRuleType selects how a watchlist rule is evaluated
type WatchRuleType string

const (
	RulePriceAbove     WatchRuleType = "price_above"
	RulePriceBelow     WatchRuleType = "price_below"
	RuleChangePct      WatchRuleType = "change_pct"
	RuleRSIOverbought  WatchRuleType = "rsi_overbought"
	RuleRSIOversold    WatchRuleType = "rsi_oversold"
	RuleSMACrossUp     WatchRuleType = "sma_cross_up"
	RuleSMACrossDown   WatchRuleType = "sma_cross_down"
	RuleSentimentShift WatchRuleType = "sentiment_shift"
)

// WatchlistRule is a user-configured condition on a watched ticker
type WatchlistRule struct {
	ID        int64         `json:"id"`
	UserID    string        `json:"user_id"`
	Ticker    string        `json:"ticker"`
	Type      WatchRuleType `json:"rule_type"`
	Threshold float64       `json:"threshold"`
	Cooldown  time.Duration `json:"cooldown"`
	Enabled   bool          `json:"enabled"`
}
