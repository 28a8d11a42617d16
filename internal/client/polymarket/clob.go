package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"edgescout/internal/models"
)

// order is one CLOB book level. The API serialises levels either as
// {"price":"0.45","size":"120"} objects or [price, size] pairs.
type order struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

func (o *order) UnmarshalJSON(b []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(b, &arr); err == nil && len(arr) >= 2 {
		price, err := parseDecimalRaw(arr[0])
		if err != nil {
			return err
		}
		size, err := parseDecimalRaw(arr[1])
		if err != nil {
			return err
		}
		o.Price = price
		o.Size = size
		return nil
	}
	var obj struct {
		Price json.RawMessage `json:"price"`
		Size  json.RawMessage `json:"size"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("invalid order: %s", string(b))
	}
	price, err := parseDecimalRaw(obj.Price)
	if err != nil {
		return err
	}
	size, err := parseDecimalRaw(obj.Size)
	if err != nil {
		return err
	}
	o.Price = price
	o.Size = size
	return nil
}

func parseDecimalRaw(b json.RawMessage) (decimal.Decimal, error) {
	if len(b) == 0 || string(b) == "null" {
		return decimal.Zero, nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return decimal.NewFromString(s)
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		return decimal.NewFromFloat(f), nil
	}
	return decimal.Zero, fmt.Errorf("invalid decimal: %s", string(b))
}

// GetOrderbook fetches the CLOB book for a token. Bids come back sorted by
// price descending, asks ascending, regardless of source ordering.
func (c *Client) GetOrderbook(ctx context.Context, tokenID string) (*models.Orderbook, error) {
	if tokenID == "" {
		return nil, fmt.Errorf("token_id is required")
	}
	query := url.Values{}
	query.Set("token_id", tokenID)
	body, err := c.doRequest(ctx, c.clobHost, "/book", query)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Bids []order `json:"bids"`
		Asks []order `json:"asks"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse book: %w", err)
	}
	return buildBook(tokenID, raw.Bids, raw.Asks), nil
}

func buildBook(tokenID string, bids, asks []order) *models.Orderbook {
	book := &models.Orderbook{
		TokenID:   tokenID,
		Bids:      make([]models.Level, 0, len(bids)),
		Asks:      make([]models.Level, 0, len(asks)),
		FetchedAt: time.Now().UTC(),
	}
	for _, o := range bids {
		if o.Price.IsPositive() && o.Size.IsPositive() {
			book.Bids = append(book.Bids, models.Level{Price: o.Price.InexactFloat64(), Size: o.Size.InexactFloat64()})
		}
	}
	for _, o := range asks {
		if o.Price.IsPositive() && o.Size.IsPositive() {
			book.Asks = append(book.Asks, models.Level{Price: o.Price.InexactFloat64(), Size: o.Size.InexactFloat64()})
		}
	}
	sort.Slice(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })
	sort.Slice(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
	return book
}

// GetPriceHistory fetches up to count points at the given fidelity
// (minutes per point).
func (c *Client) GetPriceHistory(ctx context.Context, tokenID string, fidelity, count int) ([]models.PricePoint, error) {
	if tokenID == "" {
		return nil, fmt.Errorf("token_id is required")
	}
	if fidelity <= 0 {
		fidelity = 10
	}
	query := url.Values{}
	query.Set("market", tokenID)
	query.Set("fidelity", strconv.Itoa(fidelity))
	if count > 0 {
		start := time.Now().Add(-time.Duration(count*fidelity) * time.Minute).Unix()
		query.Set("startTs", strconv.FormatInt(start, 10))
	}
	body, err := c.doRequest(ctx, c.clobHost, "/prices-history", query)
	if err != nil {
		return nil, err
	}
	var raw struct {
		History []struct {
			T int64           `json:"t"`
			P json.RawMessage `json:"p"`
		} `json:"history"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse price history: %w", err)
	}
	points := make([]models.PricePoint, 0, len(raw.History))
	for _, h := range raw.History {
		p, err := parseDecimalRaw(h.P)
		if err != nil {
			continue
		}
		points = append(points, models.PricePoint{
			TS:    time.Unix(h.T, 0).UTC(),
			Price: p.InexactFloat64(),
		})
	}
	if count > 0 && len(points) > count {
		points = points[len(points)-count:]
	}
	return points, nil
}
