package contracts

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxTickerLength is the longest accepted canonical ticker, exchange suffix included
const MaxTickerLength = 10

// ErrInvalidTicker is returned for empty or oversized symbols
var ErrInvalidTicker = errors.New("invalid ticker")

// CanonicalTicker normalizes a symbol into the identity key used by all price data.
// ⭐ SSOT: 티커 정규화는 여기서만
// Routing adornments such as ".TO" stay part of the key.
func CanonicalTicker(raw string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(raw))
	if t == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTicker)
	}
	if len(t) > MaxTickerLength {
		return "", fmt.Errorf("%w: %q longer than %d chars", ErrInvalidTicker, t, MaxTickerLength)
	}
	if strings.ContainsAny(t, " \t/\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidTicker, t)
	}
	return t, nil
}

// PricePoint is one daily close
type PricePoint struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"`
	Close  float64   `json:"close"`
}

// Closes extracts the close column of an ascending series
func Closes(points []PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Close
	}
	return out
}

// Dates extracts the date column of an ascending series
func Dates(points []PricePoint) []time.Time {
	out := make([]time.Time, len(points))
	for i, p := range points {
		out[i] = p.Date
	}
	return out
}

// DateOnly truncates t to midnight UTC of its calendar day
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
