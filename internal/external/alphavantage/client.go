package alphavantage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/internal/prices"
	"github.com/wonny/folio/backend/pkg/httputil"
	"github.com/wonny/folio/backend/pkg/logger"
)

const providerName = "alphavantage"

// compactSize is how many rows outputsize=compact returns
const compactSize = 100

// Client fetches daily closes and symbol search from Alpha Vantage
// ⭐ SSOT: Alpha Vantage API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	apiKey     string
	now        func() time.Time
}

// NewClient creates an Alpha Vantage client
func NewClient(httpClient *httputil.Client, baseURL, apiKey string, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.Component("alphavantage"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		now:        time.Now,
	}
}

// Name returns the provider name
func (c *Client) Name() string {
	return providerName
}

// notices are returned with HTTP 200 when the key is throttled or the call is invalid
type notices struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

func (n notices) err(ticker string) error {
	switch {
	case n.Note != "":
		return prices.NewFetchError(providerName, ticker, prices.KindRateLimited, errors.New(n.Note))
	case n.Information != "":
		return prices.NewFetchError(providerName, ticker, prices.KindRateLimited, errors.New(n.Information))
	case n.ErrorMessage != "":
		return prices.NewFetchError(providerName, ticker, prices.KindNotFound, errors.New(n.ErrorMessage))
	}
	return nil
}

type dailyResponse struct {
	notices
	Series map[string]struct {
		Close string `json:"4. close"`
	} `json:"Time Series (Daily)"`
}

// FetchDailyHistory fetches closes for the last days calendar days
func (c *Client) FetchDailyHistory(ctx context.Context, ticker string, days int) ([]contracts.PricePoint, error) {
	outputSize := "compact"
	if days > compactSize {
		outputSize = "full"
	}

	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", ticker)
	params.Set("outputsize", outputSize)
	params.Set("apikey", c.apiKey)

	var resp dailyResponse
	if err := c.httpClient.GetJSON(ctx, c.baseURL+"/query?"+params.Encode(), nil, &resp); err != nil {
		return nil, prices.ClassifyHTTPError(providerName, ticker, err)
	}
	if err := resp.notices.err(ticker); err != nil {
		return nil, err
	}

	cutoff := contracts.DateOnly(c.now().AddDate(0, 0, -days))
	points := make([]contracts.PricePoint, 0, len(resp.Series))
	for day, bar := range resp.Series {
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			return nil, prices.NewFetchError(providerName, ticker, prices.KindParse, fmt.Errorf("date %q: %w", day, err))
		}
		if date.Before(cutoff) {
			continue
		}
		closePrice, err := strconv.ParseFloat(bar.Close, 64)
		if err != nil {
			return nil, prices.NewFetchError(providerName, ticker, prices.KindParse, fmt.Errorf("close %q: %w", bar.Close, err))
		}
		points = append(points, contracts.PricePoint{Ticker: ticker, Date: date, Close: closePrice})
	}

	if len(points) == 0 {
		return nil, prices.NewFetchError(providerName, ticker, prices.KindNotFound, errors.New("empty time series"))
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"count":  len(points),
	}).Debug("Fetched prices")
	return points, nil
}

type searchResponse struct {
	notices
	BestMatches []struct {
		Symbol   string `json:"1. symbol"`
		Name     string `json:"2. name"`
		Region   string `json:"4. region"`
		Currency string `json:"8. currency"`
	} `json:"bestMatches"`
}

// SearchByKeyword resolves a free-text query to symbols
func (c *Client) SearchByKeyword(ctx context.Context, query string) ([]prices.SymbolMatch, error) {
	params := url.Values{}
	params.Set("function", "SYMBOL_SEARCH")
	params.Set("keywords", query)
	params.Set("apikey", c.apiKey)

	var resp searchResponse
	if err := c.httpClient.GetJSON(ctx, c.baseURL+"/query?"+params.Encode(), nil, &resp); err != nil {
		return nil, prices.ClassifyHTTPError(providerName, query, err)
	}
	if err := resp.notices.err(query); err != nil {
		return nil, err
	}

	matches := make([]prices.SymbolMatch, 0, len(resp.BestMatches))
	for _, m := range resp.BestMatches {
		matches = append(matches, prices.SymbolMatch{
			Symbol:   m.Symbol,
			Name:     m.Name,
			Region:   m.Region,
			Currency: m.Currency,
		})
	}
	return matches, nil
}
