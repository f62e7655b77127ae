// Package marketdata fetches quotes and option chains from the
// market-data API.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "ditm-screener/internal/errors"
	"ditm-screener/internal/models"
)

// Client talks to the market-data API over HTTP.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	log     zerolog.Logger
}

// NewClient creates a market-data client.
func NewClient(baseURL, token string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

type quoteResponse struct {
	Symbol string `json:"symbol"`
	Quote  struct {
		LastPrice float64 `json:"lastPrice"`
	} `json:"quote"`
}

// GetQuote fetches the latest price for a ticker.
func (c *Client) GetQuote(ctx context.Context, ticker string) (models.Quote, error) {
	var resp map[string]quoteResponse
	params := url.Values{"symbols": {ticker}}
	if err := c.get(ctx, ticker, "/quotes", params, &resp); err != nil {
		return models.Quote{}, err
	}
	q, ok := resp[ticker]
	if !ok || q.Quote.LastPrice <= 0 {
		return models.Quote{}, apperrors.NewDataError(ticker, "quote", apperrors.ErrDataUnavailable)
	}
	return models.Quote{Ticker: ticker, LastPrice: q.Quote.LastPrice}, nil
}

type contractJSON struct {
	Bid              float64  `json:"bid"`
	Ask              float64  `json:"ask"`
	Delta            *float64 `json:"delta"`
	OpenInterest     int64    `json:"openInterest"`
	Volatility       *float64 `json:"volatility"`
	DaysToExpiration int      `json:"daysToExpiration"`
}

type chainResponse struct {
	Symbol          string                               `json:"symbol"`
	UnderlyingPrice float64                              `json:"underlyingPrice"`
	CallExpDateMap  map[string]map[string][]contractJSON `json:"callExpDateMap"`
}

// GetOptionChain fetches the call chain for a ticker. The wire format
// keys expirations as "YYYY-MM-DD:DTE" and strikes as decimal strings.
func (c *Client) GetOptionChain(ctx context.Context, ticker string) (models.OptionChain, error) {
	var resp chainResponse
	params := url.Values{
		"symbol":       {ticker},
		"contractType": {"CALL"},
	}
	if err := c.get(ctx, ticker, "/chains", params, &resp); err != nil {
		return models.OptionChain{}, err
	}
	if resp.UnderlyingPrice <= 0 {
		return models.OptionChain{}, apperrors.NewDataError(ticker, "chain", apperrors.ErrDataUnavailable)
	}

	chain := models.OptionChain{
		Ticker:          ticker,
		UnderlyingPrice: resp.UnderlyingPrice,
	}
	for expKey, strikes := range resp.CallExpDateMap {
		expiration, dte, err := parseExpKey(expKey)
		if err != nil {
			c.log.Warn().Str("ticker", ticker).Str("key", expKey).Msg("skipping malformed expiration key")
			continue
		}
		for strikeStr, contracts := range strikes {
			strike, err := strconv.ParseFloat(strikeStr, 64)
			if err != nil || len(contracts) == 0 {
				continue
			}
			ct := contracts[0]
			q := models.OptionQuote{
				Strike:           strike,
				Bid:              ct.Bid,
				Ask:              ct.Ask,
				ImpliedVol:       math.NaN(),
				Delta:            math.NaN(),
				OpenInterest:     ct.OpenInterest,
				Expiration:       expiration,
				DaysToExpiration: dte,
			}
			if ct.Volatility != nil {
				q.ImpliedVol = *ct.Volatility
			}
			if ct.Delta != nil {
				q.Delta = *ct.Delta
			}
			chain.Quotes = append(chain.Quotes, q)
		}
	}

	sort.SliceStable(chain.Quotes, func(i, j int) bool {
		if !chain.Quotes[i].Expiration.Equal(chain.Quotes[j].Expiration) {
			return chain.Quotes[i].Expiration.Before(chain.Quotes[j].Expiration)
		}
		return chain.Quotes[i].Strike < chain.Quotes[j].Strike
	})
	return chain, nil
}

// parseExpKey splits a "YYYY-MM-DD:DTE" expiration map key.
func parseExpKey(key string) (time.Time, int, error) {
	parts := strings.SplitN(key, ":", 2)
	expiration, err := time.Parse("2006-01-02", parts[0])
	if err != nil {
		return time.Time{}, 0, err
	}
	dte := 0
	if len(parts) == 2 {
		dte, err = strconv.Atoi(parts[1])
		if err != nil {
			return time.Time{}, 0, err
		}
	}
	return expiration, dte, nil
}

func (c *Client) get(ctx context.Context, ticker, path string, params url.Values, out interface{}) error {
	if c.baseURL == "" {
		return apperrors.NewDataError(ticker, path, fmt.Errorf("market-data base_url not configured"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return apperrors.NewDataError(ticker, path, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return apperrors.NewDataError(ticker, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.NewDataError(ticker, path, apperrors.ErrRateLimited)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperrors.NewDataError(ticker, path, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewDataError(ticker, path, err)
	}
	return nil
}
