package oddsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"edgescout/internal/config"
)

// Market keys supported by the odds feed.
const (
	MarketH2H       = "h2h"
	MarketSpreads   = "spreads"
	MarketTotals    = "totals"
	MarketOutrights = "outrights"
)

// Outcome is one priced outcome at one bookmaker, decimal odds.
type Outcome struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Point float64 `json:"point,omitempty"`
}

type BookMarket struct {
	Key      string    `json:"key"`
	Outcomes []Outcome `json:"outcomes"`
}

type Bookmaker struct {
	Key     string       `json:"key"`
	Title   string       `json:"title"`
	Markets []BookMarket `json:"markets"`
}

type Event struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	SportTitle   string      `json:"sport_title"`
	CommenceTime time.Time   `json:"commence_time"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Bookmakers   []Bookmaker `json:"bookmakers"`
}

type Sport struct {
	Key    string `json:"key"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// Quota mirrors the feed's request-budget headers.
type Quota struct {
	Remaining int
	Used      int
}

// Client fetches bookmaker odds with an on-disk cache; the upstream API is
// hard-quota'd so every fresh fetch is written through to the cache file.
type Client struct {
	http      *resty.Client
	regions   string
	cachePath string
	cacheTTL  time.Duration
	limiter   *rate.Limiter
	logger    *zap.Logger

	mu    sync.Mutex
	quota Quota
}

func New(cfg config.OddsAPIConfig, logger *zap.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.the-odds-api.com/v4"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	regions := cfg.Regions
	if regions == "" {
		regions = "us,uk"
	}
	rl := cfg.RateLimit
	if rl <= 0 {
		rl = 1.0
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Minute
	}
	http := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetQueryParam("apiKey", cfg.APIKey).
		SetHeader("Accept", "application/json")
	return &Client{
		http:      http,
		regions:   regions,
		cachePath: cfg.CachePath,
		cacheTTL:  cacheTTL,
		limiter:   rate.NewLimiter(rate.Limit(rl), 2),
		logger:    logger,
	}
}

// Quota returns the last quota reported by the feed.
func (c *Client) Quota() Quota {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quota
}

func (c *Client) recordQuota(resp *resty.Response) {
	remaining, err1 := strconv.Atoi(resp.Header().Get("x-requests-remaining"))
	used, err2 := strconv.Atoi(resp.Header().Get("x-requests-used"))
	if err1 != nil && err2 != nil {
		return
	}
	c.mu.Lock()
	if err1 == nil {
		c.quota.Remaining = remaining
	}
	if err2 == nil {
		c.quota.Used = used
	}
	c.mu.Unlock()
}

// ListSports fetches active sport keys.
func (c *Client) ListSports(ctx context.Context) ([]Sport, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var sports []Sport
	resp, err := c.http.R().SetContext(ctx).SetResult(&sports).Get("/sports")
	if err != nil {
		return nil, fmt.Errorf("odds sports: %w", err)
	}
	c.recordQuota(resp)
	if resp.IsError() {
		return nil, fmt.Errorf("odds sports: status %d", resp.StatusCode())
	}
	active := sports[:0]
	for _, s := range sports {
		if s.Active {
			active = append(active, s)
		}
	}
	return active, nil
}

// ListOdds fetches events with bookmaker prices for one sport and market
// key, consulting the disk cache first.
func (c *Client) ListOdds(ctx context.Context, sportKey, marketKey string) ([]Event, error) {
	if marketKey == "" {
		marketKey = MarketH2H
	}
	cacheKey := sportKey + "|" + marketKey
	if events, ok := c.cachedEvents(cacheKey); ok {
		return events, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var events []Event
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("regions", c.regions).
		SetQueryParam("markets", marketKey).
		SetQueryParam("oddsFormat", "decimal").
		SetResult(&events).
		Get("/sports/" + sportKey + "/odds")
	if err != nil {
		return nil, fmt.Errorf("odds %s/%s: %w", sportKey, marketKey, err)
	}
	c.recordQuota(resp)
	if resp.IsError() {
		return nil, fmt.Errorf("odds %s/%s: status %d", sportKey, marketKey, resp.StatusCode())
	}
	c.storeCache(cacheKey, events)
	return events, nil
}

type cacheFile struct {
	SavedAt time.Time          `json:"savedAt"`
	Entries map[string]cacheEn `json:"entries"`
}

type cacheEn struct {
	SavedAt time.Time `json:"savedAt"`
	Events  []Event   `json:"events"`
}

func (c *Client) cachedEvents(key string) ([]Event, bool) {
	if c.cachePath == "" {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	file, err := c.readCacheLocked()
	if err != nil {
		return nil, false
	}
	entry, ok := file.Entries[key]
	if !ok || time.Since(entry.SavedAt) > c.cacheTTL {
		return nil, false
	}
	return entry.Events, true
}

func (c *Client) storeCache(key string, events []Event) {
	if c.cachePath == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	file, err := c.readCacheLocked()
	if err != nil {
		file = &cacheFile{Entries: map[string]cacheEn{}}
	}
	now := time.Now().UTC()
	file.SavedAt = now
	file.Entries[key] = cacheEn{SavedAt: now, Events: events}
	data, err := json.Marshal(file)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.cachePath), 0o755); err != nil {
		return
	}
	tmp := c.cachePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	if err := os.Rename(tmp, c.cachePath); err != nil && c.logger != nil {
		c.logger.Warn("odds cache write failed", zap.Error(err))
	}
}

func (c *Client) readCacheLocked() (*cacheFile, error) {
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return nil, err
	}
	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if file.Entries == nil {
		file.Entries = map[string]cacheEn{}
	}
	return &file, nil
}
