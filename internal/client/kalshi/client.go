package kalshi

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"edgescout/internal/config"
	"edgescout/internal/models"
)

// Client wraps the Kalshi trade API. Kalshi quotes prices in cents, so
// everything is normalised to [0,1] probabilities on the way in.
type Client struct {
	http *resty.Client
}

func New(cfg config.KalshiConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.elections.kalshi.com/trade-api/v2"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	http := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetHeader("Accept", "application/json")
	return &Client{http: http}
}

type rawKalshiMarket struct {
	Ticker      string  `json:"ticker"`
	EventTicker string  `json:"event_ticker"`
	Title       string  `json:"title"`
	Status      string  `json:"status"`
	YesBid      float64 `json:"yes_bid"`
	YesAsk      float64 `json:"yes_ask"`
	NoBid       float64 `json:"no_bid"`
	NoAsk       float64 `json:"no_ask"`
	LastPrice   float64 `json:"last_price"`
	Volume24h   float64 `json:"volume_24h"`
	Liquidity   float64 `json:"liquidity"`
	Result      string  `json:"result"`
	CloseTime   string  `json:"close_time"`
}

type marketsResponse struct {
	Markets []rawKalshiMarket `json:"markets"`
	Cursor  string            `json:"cursor"`
}

// ListMarkets fetches open markets, paging until limit is met or the
// cursor runs out.
func (c *Client) ListMarkets(ctx context.Context, limit int) ([]models.Snapshot, error) {
	if limit <= 0 {
		limit = 200
	}
	var out []models.Snapshot
	cursor := ""
	for len(out) < limit {
		pageSize := limit - len(out)
		if pageSize > 200 {
			pageSize = 200
		}
		req := c.http.R().
			SetContext(ctx).
			SetQueryParam("status", "open").
			SetQueryParam("limit", fmt.Sprintf("%d", pageSize))
		if cursor != "" {
			req.SetQueryParam("cursor", cursor)
		}
		var page marketsResponse
		resp, err := req.SetResult(&page).Get("/markets")
		if err != nil {
			return nil, fmt.Errorf("kalshi markets: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("kalshi markets: status %d", resp.StatusCode())
		}
		for _, raw := range page.Markets {
			snap, ok := normalize(raw)
			if !ok {
				continue
			}
			out = append(out, snap)
		}
		if page.Cursor == "" || len(page.Markets) == 0 {
			break
		}
		cursor = page.Cursor
	}
	return out, nil
}

func normalize(raw rawKalshiMarket) (models.Snapshot, bool) {
	if raw.Ticker == "" {
		return models.Snapshot{}, false
	}
	yes := centsToProb((raw.YesBid + raw.YesAsk) / 2)
	if yes <= 0 || yes >= 1 {
		yes = centsToProb(raw.LastPrice)
	}
	if yes <= 0 || yes >= 1 {
		return models.Snapshot{}, false
	}
	snap := models.Snapshot{
		ID:         "kalshi:" + raw.Ticker,
		Question:   raw.Title,
		Slug:       strings.ToLower(raw.Ticker),
		Venue:      models.VenueKalshi,
		YesPrice:   yes,
		NoPrice:    1 - yes,
		Volume24h:  raw.Volume24h,
		Liquidity:  raw.Liquidity / 100,
		Spread:     centsToProb(raw.YesAsk - raw.YesBid),
		GroupSlug:  strings.ToLower(raw.EventTicker),
		Resolution: strings.ToUpper(strings.TrimSpace(raw.Result)),
		FetchedAt:  time.Now().UTC(),
	}
	if raw.CloseTime != "" {
		if ts, err := time.Parse(time.RFC3339, raw.CloseTime); err == nil {
			utc := ts.UTC()
			snap.EndDate = &utc
		}
	}
	return snap, true
}

func centsToProb(cents float64) float64 {
	return cents / 100
}

// Trade is one public fill, normalised to dollar notional.
type Trade struct {
	NotionalUSD float64
	ExecutedAt  time.Time
}

type rawKalshiTrade struct {
	TradeID     string  `json:"trade_id"`
	Count       float64 `json:"count"`
	YesPrice    float64 `json:"yes_price"`
	CreatedTime string  `json:"created_time"`
}

type tradesResponse struct {
	Trades []rawKalshiTrade `json:"trades"`
	Cursor string           `json:"cursor"`
}

// GetTrades fetches the most recent fills for a ticker, newest first.
// Kalshi reports contract counts and cent prices; notional is count
// times price in dollars.
func (c *Client) GetTrades(ctx context.Context, ticker string, limit int) ([]Trade, error) {
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	var page tradesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("ticker", ticker).
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetResult(&page).
		Get("/markets/trades")
	if err != nil {
		return nil, fmt.Errorf("kalshi trades: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("kalshi trades: status %d", resp.StatusCode())
	}
	out := make([]Trade, 0, len(page.Trades))
	for _, raw := range page.Trades {
		ts, err := time.Parse(time.RFC3339, raw.CreatedTime)
		if err != nil {
			continue
		}
		notional := raw.Count * centsToProb(raw.YesPrice)
		if notional <= 0 {
			continue
		}
		out = append(out, Trade{
			NotionalUSD: notional,
			ExecutedAt:  ts.UTC(),
		})
	}
	return out, nil
}

type rawBookLevel [2]float64

type orderbookResponse struct {
	Orderbook struct {
		Yes []rawBookLevel `json:"yes"`
		No  []rawBookLevel `json:"no"`
	} `json:"orderbook"`
}

// GetOrderbook fetches the book for a ticker. Kalshi publishes resting
// bids on both sides; a NO bid at price p is equivalent to a YES ask at
// 1-p, which is how the normalised book represents it.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (*models.Orderbook, error) {
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}
	var page orderbookResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&page).
		Get("/markets/" + ticker + "/orderbook")
	if err != nil {
		return nil, fmt.Errorf("kalshi orderbook: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("kalshi orderbook: status %d", resp.StatusCode())
	}
	book := &models.Orderbook{
		TokenID:   ticker,
		FetchedAt: time.Now().UTC(),
	}
	for _, lvl := range page.Orderbook.Yes {
		price := centsToProb(lvl[0])
		if price > 0 && price < 1 && lvl[1] > 0 {
			book.Bids = append(book.Bids, models.Level{Price: price, Size: lvl[1]})
		}
	}
	for _, lvl := range page.Orderbook.No {
		price := 1 - centsToProb(lvl[0])
		if price > 0 && price < 1 && lvl[1] > 0 {
			book.Asks = append(book.Asks, models.Level{Price: price, Size: lvl[1]})
		}
	}
	sort.Slice(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })
	sort.Slice(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
	return book, nil
}
