package twelvedata

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

const providerName = "twelvedata"

// Client fetches daily closes from Twelve Data
// ⭐ SSOT: Twelve Data API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	apiKey     string
	now        func() time.Time
}

// NewClient creates a Twelve Data client
func NewClient(httpClient *httputil.Client, baseURL, apiKey string, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.Component("twelvedata"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		now:        time.Now,
	}
}

// Name returns the provider name
func (c *Client) Name() string {
	return providerName
}

type timeSeriesResponse struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Values  []struct {
		Datetime string `json:"datetime"`
		Close    string `json:"close"`
	} `json:"values"`
}

// FetchDailyHistory fetches closes for the last days calendar days
func (c *Client) FetchDailyHistory(ctx context.Context, ticker string, days int) ([]contracts.PricePoint, error) {
	params := url.Values{}
	params.Set("symbol", ticker)
	params.Set("interval", "1day")
	params.Set("start_date", c.now().AddDate(0, 0, -days).Format("2006-01-02"))
	params.Set("outputsize", "5000")
	params.Set("apikey", c.apiKey)

	var resp timeSeriesResponse
	if err := c.httpClient.GetJSON(ctx, c.baseURL+"/time_series?"+params.Encode(), nil, &resp); err != nil {
		return nil, prices.ClassifyHTTPError(providerName, ticker, err)
	}

	if resp.Status == "error" {
		return nil, classifyAPIError(ticker, resp.Code, resp.Message)
	}

	points, err := parseValues(ticker, resp)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"count":  len(points),
	}).Debug("Fetched prices")
	return points, nil
}

// classifyAPIError maps the in-body error code; Twelve Data often answers 200 with status=error
func classifyAPIError(ticker string, code int, message string) error {
	err := errors.New(message)
	lower := strings.ToLower(message)
	switch {
	case code == 429 || strings.Contains(lower, "api credits") || strings.Contains(lower, "rate limit"):
		return prices.NewFetchError(providerName, ticker, prices.KindRateLimited, err)
	case code == 404 || code == 400 && strings.Contains(lower, "symbol"):
		return prices.NewFetchError(providerName, ticker, prices.KindNotFound, err)
	default:
		return prices.NewFetchError(providerName, ticker, prices.KindBadResponse, err)
	}
}

func parseValues(ticker string, resp timeSeriesResponse) ([]contracts.PricePoint, error) {
	points := make([]contracts.PricePoint, 0, len(resp.Values))
	for _, v := range resp.Values {
		date, err := time.Parse("2006-01-02", v.Datetime)
		if err != nil {
			return nil, prices.NewFetchError(providerName, ticker, prices.KindParse, fmt.Errorf("datetime %q: %w", v.Datetime, err))
		}
		closePrice, err := strconv.ParseFloat(v.Close, 64)
		if err != nil {
			return nil, prices.NewFetchError(providerName, ticker, prices.KindParse, fmt.Errorf("close %q: %w", v.Close, err))
		}
		points = append(points, contracts.PricePoint{Ticker: ticker, Date: date, Close: closePrice})
	}

	if len(points) == 0 {
		return nil, prices.NewFetchError(providerName, ticker, prices.KindNotFound, errors.New("no values"))
	}

	// newest first on the wire
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}
