package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Market is the normalised Gamma market record. Gamma serialises most
// numerics as strings, so every numeric field is parsed leniently.
type Market struct {
	ID string
	// ConditionID keys the data API's trade history for this market.
	ConditionID string
	Question    string
	Slug        string
	GroupSlug   string
	NegRisk     bool
	Active      bool
	Closed      bool
	YesPrice    float64
	NoPrice     float64
	YesTokenID  string
	NoTokenID   string
	Volume24h   float64
	Liquidity   float64
	Spread      float64
	EndDate     *time.Time
	// Resolution is "YES"/"NO" when the market has settled; the engine
	// upper-cases whatever the venue reports.
	Resolution string
}

type rawMarket struct {
	ID            string          `json:"id"`
	ConditionID   string          `json:"conditionId"`
	Question      string          `json:"question"`
	Slug          string          `json:"slug"`
	GroupSlug     string          `json:"groupSlug"`
	NegRisk       bool            `json:"negRisk"`
	Active        bool            `json:"active"`
	Closed        bool            `json:"closed"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`
	ClobTokenIDs  json.RawMessage `json:"clobTokenIds"`
	Volume24hr    json.RawMessage `json:"volume24hr"`
	Liquidity     json.RawMessage `json:"liquidity"`
	Spread        json.RawMessage `json:"spread"`
	EndDate       string          `json:"endDate"`
	Resolution    string          `json:"resolution"`
	Events        []struct {
		Slug    string `json:"slug"`
		NegRisk bool   `json:"negRisk"`
	} `json:"events"`
}

// ListMarkets fetches active markets ordered by volume.
func (c *Client) ListMarkets(ctx context.Context, limit, offset int) ([]Market, error) {
	if limit <= 0 {
		limit = 100
	}
	query := url.Values{}
	query.Set("active", "true")
	query.Set("closed", "false")
	query.Set("order", "volume24hr")
	query.Set("ascending", "false")
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))
	body, err := c.doRequest(ctx, c.gammaHost, "/markets", query)
	if err != nil {
		return nil, err
	}
	var raws []rawMarket
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("parse markets: %w", err)
	}
	out := make([]Market, 0, len(raws))
	for _, r := range raws {
		m, err := normalizeMarket(r)
		if err != nil {
			// Data-integrity failure on one record never fails the batch.
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// GetMarketByID fetches a single market.
func (c *Client) GetMarketByID(ctx context.Context, marketID string) (*Market, error) {
	if marketID == "" {
		return nil, fmt.Errorf("market id is required")
	}
	body, err := c.doRequest(ctx, c.gammaHost, "/markets/"+url.PathEscape(marketID), nil)
	if err != nil {
		return nil, err
	}
	var r rawMarket
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("parse market: %w", err)
	}
	m, err := normalizeMarket(r)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetEventBySlug returns all markets under an event, used by group
// arbitrage to fill in missing sub-outcomes.
func (c *Client) GetEventBySlug(ctx context.Context, slug string) ([]Market, error) {
	if slug == "" {
		return nil, fmt.Errorf("event slug is required")
	}
	query := url.Values{}
	query.Set("slug", slug)
	body, err := c.doRequest(ctx, c.gammaHost, "/events", query)
	if err != nil {
		return nil, err
	}
	var events []struct {
		Slug    string      `json:"slug"`
		NegRisk bool        `json:"negRisk"`
		Markets []rawMarket `json:"markets"`
	}
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}
	var out []Market
	for _, ev := range events {
		for _, r := range ev.Markets {
			m, err := normalizeMarket(r)
			if err != nil {
				continue
			}
			if m.GroupSlug == "" {
				m.GroupSlug = ev.Slug
			}
			if ev.NegRisk {
				m.NegRisk = true
			}
			out = append(out, m)
		}
	}
	return out, nil
}

func normalizeMarket(r rawMarket) (Market, error) {
	if r.ID == "" {
		return Market{}, fmt.Errorf("market without id")
	}
	prices, err := parseStringFloats(r.OutcomePrices)
	if err != nil || len(prices) < 2 {
		return Market{}, fmt.Errorf("market %s: bad outcomePrices", r.ID)
	}
	tokens, err := parseStringList(r.ClobTokenIDs)
	if err != nil || len(tokens) < 2 {
		return Market{}, fmt.Errorf("market %s: bad clobTokenIds", r.ID)
	}
	m := Market{
		ID:          r.ID,
		ConditionID: r.ConditionID,
		Question:    r.Question,
		Slug:        r.Slug,
		GroupSlug:   r.GroupSlug,
		NegRisk:     r.NegRisk,
		Active:      r.Active,
		Closed:      r.Closed,
		YesPrice:    prices[0],
		NoPrice:     prices[1],
		YesTokenID:  tokens[0],
		NoTokenID:   tokens[1],
		Volume24h:   parseLenientFloat(r.Volume24hr),
		Liquidity:   parseLenientFloat(r.Liquidity),
		Spread:      parseLenientFloat(r.Spread),
		Resolution:  strings.ToUpper(strings.TrimSpace(r.Resolution)),
	}
	if m.GroupSlug == "" && len(r.Events) > 0 {
		m.GroupSlug = r.Events[0].Slug
		if r.Events[0].NegRisk {
			m.NegRisk = true
		}
	}
	if r.EndDate != "" {
		if ts, err := time.Parse(time.RFC3339, r.EndDate); err == nil {
			utc := ts.UTC()
			m.EndDate = &utc
		}
	}
	if m.Resolution == "" && m.Closed {
		// Settled markets pin outcome prices to 1/0.
		if m.YesPrice >= 0.99 {
			m.Resolution = "YES"
		} else if m.YesPrice <= 0.01 {
			m.Resolution = "NO"
		}
	}
	return m, nil
}

// parseStringFloats handles both `["0.45","0.55"]` and the double-encoded
// `"[\"0.45\",\"0.55\"]"` shape Gamma uses.
func parseStringFloats(raw json.RawMessage) ([]float64, error) {
	items, err := parseStringList(raw)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(items))
	for _, s := range items {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func parseStringList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty list")
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(encoded), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func parseLenientFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v
		}
	}
	return 0
}
