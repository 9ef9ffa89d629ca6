package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/folio/backend/internal/contracts"
)

func TestAggregate(t *testing.T) {
	positions := []contracts.Position{
		{AccountID: "a1", Ticker: "MSFT", Quantity: 10, Price: 400, MarketValue: 4000},
		{AccountID: "a1", Ticker: "AAPL", Quantity: 10, Price: 200, MarketValue: 2000, Sector: "Technology"},
		{AccountID: "a2", Ticker: "AAPL", Quantity: 30, Price: 200, MarketValue: 6000},
		{AccountID: "a2", Ticker: "GONE", Quantity: 0, MarketValue: 0},
	}

	got := Aggregate(positions)
	require.Len(t, got, 2)
	assert.Equal(t, "AAPL", got[0].Ticker)
	assert.Equal(t, 40.0, got[0].Quantity)
	assert.Equal(t, 8000.0, got[0].MarketValue)
	assert.Equal(t, 200.0, got[0].Price)
	assert.Equal(t, "Technology", got[0].Sector)
	assert.Empty(t, got[0].AccountID)
	assert.Equal(t, "MSFT", got[1].Ticker)
}

func TestWeights(t *testing.T) {
	weights, total := Weights([]contracts.Position{
		{Ticker: "AAPL", MarketValue: 7500},
		{Ticker: "MSFT", MarketValue: 2500},
		{Ticker: "ZERO", MarketValue: 0},
	})
	assert.Equal(t, 10000.0, total)
	assert.InDelta(t, 0.75, weights["AAPL"], 1e-12)
	assert.InDelta(t, 0.25, weights["MSFT"], 1e-12)
	assert.NotContains(t, weights, "ZERO")

	empty, total := Weights(nil)
	assert.Empty(t, empty)
	assert.Zero(t, total)
}

func TestTickers(t *testing.T) {
	got := Tickers([]contracts.Position{{Ticker: "MSFT"}, {Ticker: "AAPL"}, {Ticker: "MSFT"}, {Ticker: ""}})
	assert.Equal(t, []string{"AAPL", "MSFT"}, got)
}
