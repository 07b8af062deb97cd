// Package coingecko is a minimal client for the CoinGecko public API.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Default configuration values.
const (
	DefaultBaseURL       = "https://api.coingecko.com/api/v3"
	DefaultTimeout       = 30 * time.Second
	DefaultRatePerMinute = 30
	maxErrorBody         = 512
)

// Client fetches market data over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API root, e.g. for the pro endpoint or tests.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithAPIKey sets the demo API key sent as x-cg-demo-api-key.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithRateLimit caps outgoing requests per minute. Zero or less disables the limit.
func WithRateLimit(perMinute int) ClientOption {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// NewClient creates a new CoinGecko client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		client:  newHTTPClient(DefaultTimeout),
		limiter: rate.NewLimiter(rate.Every(time.Minute/DefaultRatePerMinute), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newHTTPClient builds an http.Client with bounded dial and handshake times.
func newHTTPClient(timeout time.Duration) *http.Client {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: t}
}

// MarketChart fetches `days` of price history for coinID quoted in vsCurrency.
// For 2-90 days the API returns hourly points.
func (c *Client) MarketChart(ctx context.Context, coinID, vsCurrency string, days int) (*MarketChart, error) {
	if coinID == "" {
		return nil, fmt.Errorf("coin id is required")
	}
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := fmt.Sprintf("%s/coins/%s/market_chart", c.baseURL, url.PathEscape(coinID))
	q := url.Values{}
	q.Set("vs_currency", vsCurrency)
	q.Set("days", strconv.Itoa(days))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	prices, err := decodePrices(body)
	if err != nil {
		return nil, err
	}

	return &MarketChart{Prices: prices, Raw: body}, nil
}

// decodePrices parses the prices array of a market_chart body.
func decodePrices(body []byte) ([]PricePoint, error) {
	var wire marketChartResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	prices := make([]PricePoint, 0, len(wire.Prices))
	for i, pair := range wire.Prices {
		if len(pair) != 2 {
			return nil, fmt.Errorf("price entry %d: expected [timestamp, price], got %d values", i, len(pair))
		}
		ms, err := pair[0].Float64()
		if err != nil {
			return nil, fmt.Errorf("price entry %d timestamp: %w", i, err)
		}
		// null prices decode to an empty number and surface as NaN
		price := math.NaN()
		if pair[1] != "" {
			price, err = pair[1].Float64()
			if err != nil {
				return nil, fmt.Errorf("price entry %d price: %w", i, err)
			}
		}
		prices = append(prices, PricePoint{
			Timestamp: time.UnixMilli(int64(ms)).UTC(),
			Price:     price,
		})
	}
	return prices, nil
}
