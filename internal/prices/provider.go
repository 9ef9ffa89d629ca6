package prices

import (
	"context"

	"github.com/wonny/folio/backend/internal/contracts"
)

// Provider fetches daily closes for one ticker, oldest first.
// Errors are *FetchError.
type Provider interface {
	Name() string
	FetchDailyHistory(ctx context.Context, ticker string, days int) ([]contracts.PricePoint, error)
}

// SymbolMatch is one search hit
type SymbolMatch struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Region   string `json:"region"`
	Currency string `json:"currency"`
}

// Searcher is an optional provider capability; the ingestion path does not use it
type Searcher interface {
	SearchByKeyword(ctx context.Context, query string) ([]SymbolMatch, error)
}
