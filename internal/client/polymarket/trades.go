package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Trade is one public fill from the data API, reduced to the dollar
// notional the volume signals need.
type Trade struct {
	NotionalUSD float64
	ExecutedAt  time.Time
}

// RecentTrades fetches the latest public fills for a market, newest
// first. The data API keys trade history by condition id, not the Gamma
// market id.
func (c *Client) RecentTrades(ctx context.Context, conditionID string, limit int) ([]Trade, error) {
	if conditionID == "" {
		return nil, fmt.Errorf("condition id is required")
	}
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	query := url.Values{}
	query.Set("market", conditionID)
	query.Set("limit", strconv.Itoa(limit))
	body, err := c.doRequest(ctx, c.dataHost, "/trades", query)
	if err != nil {
		return nil, err
	}
	var raws []struct {
		Size      json.RawMessage `json:"size"`
		Price     json.RawMessage `json:"price"`
		Timestamp int64           `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("parse trades: %w", err)
	}
	out := make([]Trade, 0, len(raws))
	for _, r := range raws {
		size, err := parseDecimalRaw(r.Size)
		if err != nil {
			continue
		}
		price, err := parseDecimalRaw(r.Price)
		if err != nil {
			continue
		}
		notional := size.InexactFloat64() * price.InexactFloat64()
		if notional <= 0 || r.Timestamp <= 0 {
			continue
		}
		out = append(out, Trade{
			NotionalUSD: notional,
			ExecutedAt:  time.Unix(r.Timestamp, 0).UTC(),
		})
	}
	return out, nil
}
