package alphavantage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/folio/backend/internal/prices"
	"github.com/wonny/folio/backend/pkg/httputil"
	"github.com/wonny/folio/backend/pkg/logger"
)

func newTestClient(t *testing.T, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "demo", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(httputil.New(5*time.Second, logger.Nop()), srv.URL, "demo", logger.Nop())
	c.now = func() time.Time { return time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC) }
	return c
}

func TestFetchDailyHistory(t *testing.T) {
	c := newTestClient(t, `{
		"Meta Data": {"2. Symbol": "IBM"},
		"Time Series (Daily)": {
			"2026-03-04": {"1. open": "1", "4. close": "250.10"},
			"2026-03-03": {"1. open": "1", "4. close": "249.00"},
			"2025-01-02": {"1. open": "1", "4. close": "180.00"}
		}
	}`)

	points, err := c.FetchDailyHistory(context.Background(), "IBM", 30)
	require.NoError(t, err)
	require.Len(t, points, 2, "rows older than the window are dropped")
	assert.Equal(t, "2026-03-03", points[0].Date.Format("2006-01-02"))
	assert.InDelta(t, 250.10, points[1].Close, 1e-9)
}

func TestFetchDailyHistoryNotices(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"note", `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`, prices.ErrRateLimited},
		{"information", `{"Information": "We have detected your API key and our standard API rate limit is 25 requests per day"}`, prices.ErrRateLimited},
		{"error", `{"Error Message": "Invalid API call."}`, prices.ErrNotFound},
		{"empty", `{"Time Series (Daily)": {}}`, prices.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestClient(t, tt.body).FetchDailyHistory(context.Background(), "IBM", 30)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSearchByKeyword(t *testing.T) {
	c := newTestClient(t, `{"bestMatches": [
		{"1. symbol": "SHOP.TRT", "2. name": "Shopify Inc", "4. region": "Toronto", "8. currency": "CAD"},
		{"1. symbol": "SHOP", "2. name": "Shopify Inc", "4. region": "United States", "8. currency": "USD"}
	]}`)

	matches, err := c.SearchByKeyword(context.Background(), "shopify")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "SHOP.TRT", matches[0].Symbol)
	assert.Equal(t, "CAD", matches[0].Currency)
}
