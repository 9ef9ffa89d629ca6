package snapshots

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/folio/backend/internal/contracts"
)

var (
	// QuantityTolerance ignores rounding noise between imports
	QuantityTolerance = decimal.RequireFromString("0.01")
	// CashTolerance ignores cash moves of a dollar or less
	CashTolerance = decimal.NewFromInt(1)
	// splitBookTolerance is the relative book-value drift still read as a split
	splitBookTolerance = decimal.RequireFromString("0.01")
)

type holding struct {
	quantity  decimal.Decimal
	price     decimal.Decimal
	bookValue decimal.Decimal
}

// Diff infers transactions between two holdings snapshots of one account.
// It is a pure function of its inputs; the output is ordered by ticker, then type.
func Diff(accountID string, from, to []contracts.HoldingSnapshot, fromDate, toDate time.Time) []contracts.DetectedTransaction {
	prev, prevCash := index(from)
	curr, currCash := index(to)

	tx := func(typ contracts.TransactionType, ticker string, qty, price decimal.Decimal, desc string) contracts.DetectedTransaction {
		return contracts.DetectedTransaction{
			AccountID:       accountID,
			Type:            typ,
			Ticker:          ticker,
			Quantity:        qty,
			Price:           price,
			Amount:          qty.Mul(price).Round(2),
			TransactionDate: toDate,
			FromDate:        fromDate,
			ToDate:          toDate,
			Description:     desc,
		}
	}

	var out []contracts.DetectedTransaction
	for ticker, c := range curr {
		p, ok := prev[ticker]
		if !ok {
			if c.quantity.GreaterThan(QuantityTolerance) {
				out = append(out, tx(contracts.TxBuy, ticker, c.quantity, c.price, "new position"))
			}
			continue
		}

		delta := c.quantity.Sub(p.quantity)
		if delta.Abs().LessThanOrEqual(QuantityTolerance) {
			continue
		}
		if ratio, ok := splitRatio(p, c); ok {
			out = append(out, tx(contracts.TxSplit, ticker, delta, decimal.Zero,
				fmt.Sprintf("split %s:1", ratio.String())))
			continue
		}
		if delta.IsPositive() {
			out = append(out, tx(contracts.TxBuy, ticker, delta, c.price,
				fmt.Sprintf("quantity %s -> %s", p.quantity, c.quantity)))
		} else {
			out = append(out, tx(contracts.TxSell, ticker, delta.Abs(), c.price,
				fmt.Sprintf("quantity %s -> %s", p.quantity, c.quantity)))
		}
	}
	for ticker, p := range prev {
		if _, ok := curr[ticker]; ok {
			continue
		}
		if p.quantity.GreaterThan(QuantityTolerance) {
			out = append(out, tx(contracts.TxSell, ticker, p.quantity, p.price, "position closed"))
		}
	}

	cashDelta := currCash.Sub(prevCash)
	if cashDelta.Abs().GreaterThan(CashTolerance) {
		typ := contracts.TxDeposit
		if cashDelta.IsNegative() {
			typ = contracts.TxWithdrawal
		}
		out = append(out, contracts.DetectedTransaction{
			AccountID:       accountID,
			Type:            typ,
			Amount:          cashDelta.Abs().Round(2),
			Quantity:        decimal.Zero,
			Price:           decimal.Zero,
			TransactionDate: toDate,
			FromDate:        fromDate,
			ToDate:          toDate,
			Description:     fmt.Sprintf("cash %s -> %s", prevCash.StringFixed(2), currCash.StringFixed(2)),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Ticker != out[j].Ticker {
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// index folds snapshot lines by ticker and totals the cash lines
func index(lines []contracts.HoldingSnapshot) (map[string]holding, decimal.Decimal) {
	out := make(map[string]holding, len(lines))
	cash := decimal.Zero
	for _, l := range lines {
		if l.IsCash() {
			cash = cash.Add(cashValue(l))
			continue
		}
		h := out[l.Ticker]
		h.quantity = h.quantity.Add(l.Quantity)
		h.bookValue = h.bookValue.Add(l.BookValue)
		if !l.Price.IsZero() {
			h.price = l.Price
		}
		out[l.Ticker] = h
	}
	return out, cash
}

// cashValue prefers market value and falls back to quantity for cash lines
func cashValue(l contracts.HoldingSnapshot) decimal.Decimal {
	if !l.MarketValue.IsZero() {
		return l.MarketValue
	}
	return l.Quantity
}

// splitRatio detects a forward or reverse split: an integral quantity ratio
// of at least 2 while book value stays put.
func splitRatio(prev, curr holding) (decimal.Decimal, bool) {
	if prev.quantity.IsZero() || curr.quantity.IsZero() || prev.bookValue.IsZero() {
		return decimal.Zero, false
	}
	drift := curr.bookValue.Sub(prev.bookValue).Abs().Div(prev.bookValue)
	if drift.GreaterThan(splitBookTolerance) {
		return decimal.Zero, false
	}

	ratio := curr.quantity.Div(prev.quantity)
	if ratio.LessThan(decimal.NewFromInt(1)) {
		ratio = prev.quantity.Div(curr.quantity)
	}
	rounded := ratio.Round(0)
	if rounded.LessThan(decimal.NewFromInt(2)) || ratio.Sub(rounded).Abs().GreaterThan(QuantityTolerance) {
		return decimal.Zero, false
	}
	return rounded, true
}
