package polymarket

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

// IsRateLimited reports whether err is a venue 429.
func IsRateLimited(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == http.StatusTooManyRequests
}

// Client talks to the Gamma catalog API, the CLOB market-data API, and
// the public data API for trade history.
type Client struct {
	gammaHost  string
	clobHost   string
	dataHost   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(httpClient *http.Client, gammaHost, clobHost, dataHost string) *Client {
	if gammaHost == "" {
		gammaHost = "https://gamma-api.polymarket.com"
	}
	if clobHost == "" {
		clobHost = "https://clob.polymarket.com"
	}
	if dataHost == "" {
		dataHost = "https://data-api.polymarket.com"
	}
	return &Client{
		gammaHost:  strings.TrimRight(gammaHost, "/"),
		clobHost:   strings.TrimRight(clobHost, "/"),
		dataHost:   strings.TrimRight(dataHost, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
	}
}

func (c *Client) doRequest(ctx context.Context, host, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	fullURL := host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
