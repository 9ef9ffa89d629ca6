package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/internal/prices"
	"github.com/wonny/folio/backend/pkg/httputil"
	"github.com/wonny/folio/backend/pkg/logger"
)

const providerName = "yahoo"

// Client fetches daily closes from the Yahoo Finance chart endpoint.
// No API key; used first for TSX listings and as the last resort otherwise.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	now        func() time.Time
}

// NewClient creates a Yahoo Finance client
func NewClient(httpClient *httputil.Client, baseURL string, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.Component("yahoo"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		now:        time.Now,
	}
}

// Name returns the provider name
func (c *Client) Name() string {
	return providerName
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

var headers = map[string]string{
	"User-Agent": "Mozilla/5.0 (compatible; folio/1.0)",
	"Accept":     "application/json",
}

// FetchDailyHistory fetches closes for the last days calendar days
func (c *Client) FetchDailyHistory(ctx context.Context, ticker string, days int) ([]contracts.PricePoint, error) {
	now := c.now()
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("period1", fmt.Sprintf("%d", now.AddDate(0, 0, -days).Unix()))
	params.Set("period2", fmt.Sprintf("%d", now.Unix()))

	fullURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(ticker), params.Encode())

	var resp chartResponse
	if err := c.httpClient.GetJSON(ctx, fullURL, headers, &resp); err != nil {
		return nil, prices.ClassifyHTTPError(providerName, ticker, err)
	}

	if e := resp.Chart.Error; e != nil {
		kind := prices.KindBadResponse
		if e.Code == "Not Found" || strings.Contains(strings.ToLower(e.Description), "no data found") {
			kind = prices.KindNotFound
		}
		return nil, prices.NewFetchError(providerName, ticker, kind, errors.New(e.Description))
	}

	points := parseChart(ticker, resp)
	if len(points) == 0 {
		return nil, prices.NewFetchError(providerName, ticker, prices.KindNotFound, errors.New("empty chart"))
	}

	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"count":  len(points),
	}).Debug("Fetched prices")
	return points, nil
}

// parseChart zips timestamps with closes, skipping null closes and duplicate days
func parseChart(ticker string, resp chartResponse) []contracts.PricePoint {
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil
	}
	result := resp.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close

	points := make([]contracts.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		date := contracts.DateOnly(time.Unix(ts, 0).UTC())
		if n := len(points); n > 0 && points[n-1].Date.Equal(date) {
			points[n-1].Close = *closes[i]
			continue
		}
		points = append(points, contracts.PricePoint{Ticker: ticker, Date: date, Close: *closes[i]})
	}
	return points
}
