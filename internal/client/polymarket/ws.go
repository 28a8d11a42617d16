package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"edgescout/internal/models"
)

const DefaultMarketWSSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

type subscribeFrame struct {
	Type      string   `json:"type"`
	Channel   string   `json:"channel,omitempty"`
	AssetsIDs []string `json:"assets_ids,omitempty"`
}

type updateFrame struct {
	AssetsIDs []string `json:"assets_ids"`
	Operation string   `json:"operation"`
}

// Envelope is the common header of every market-channel message.
type Envelope struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Timestamp string `json:"timestamp"`
}

// StreamHandler receives decoded stream events. Implementations must not
// block; the reader goroutine delivers sequentially.
type StreamHandler interface {
	OnBook(book *models.Orderbook)
	OnPriceChange(assetID string, price float64, ts time.Time)
	OnLastTrade(assetID string, price float64, ts time.Time)
}

type StreamOptions struct {
	URL               string
	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration
	BackoffBase       time.Duration
	BackoffFactor     float64
	BackoffMax        time.Duration
	MaxSubscriptions  int
	Logger            *zap.Logger
}

// Stream maintains the market WebSocket connection. Subscriptions are
// LRU-bounded: when the cap is reached the asset with the oldest update is
// unsubscribed first.
type Stream struct {
	opts    StreamOptions
	handler StreamHandler

	mu         sync.Mutex
	conn       *websocket.Conn
	lastUpdate map[string]time.Time

	// reconnects counts re-dials only; the first successful connect is
	// not a reconnect.
	everConnected bool
	reconnects    int64
}

func NewStream(opts StreamOptions, handler StreamHandler) *Stream {
	if opts.URL == "" {
		opts.URL = DefaultMarketWSSURL
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = 3 * time.Second
	}
	if opts.BackoffFactor == 0 {
		opts.BackoffFactor = 1.5
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.MaxSubscriptions == 0 {
		opts.MaxSubscriptions = 50
	}
	return &Stream{
		opts:       opts,
		handler:    handler,
		lastUpdate: map[string]time.Time{},
	}
}

// Subscribe adds asset ids to the live subscription set, evicting the
// least-recently-updated assets when over the cap.
func (s *Stream) Subscribe(ctx context.Context, assetIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make([]string, 0, len(assetIDs))
	for _, id := range assetIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := s.lastUpdate[id]; !ok {
			s.lastUpdate[id] = time.Now().UTC()
			added = append(added, id)
		}
	}
	evicted := s.evictLocked()

	if s.conn == nil {
		return nil
	}
	if len(evicted) > 0 {
		if err := s.writeLocked(ctx, updateFrame{AssetsIDs: evicted, Operation: "unsubscribe"}); err != nil {
			return err
		}
	}
	if len(added) > 0 {
		return s.writeLocked(ctx, updateFrame{AssetsIDs: added, Operation: "subscribe"})
	}
	return nil
}

func (s *Stream) evictLocked() []string {
	cap := s.opts.MaxSubscriptions
	if cap <= 0 || len(s.lastUpdate) <= cap {
		return nil
	}
	type entry struct {
		id string
		at time.Time
	}
	entries := make([]entry, 0, len(s.lastUpdate))
	for id, at := range s.lastUpdate {
		entries = append(entries, entry{id, at})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
	var evicted []string
	for _, e := range entries[:len(entries)-cap] {
		delete(s.lastUpdate, e.id)
		evicted = append(evicted, e.id)
	}
	return evicted
}

func (s *Stream) writeLocked(ctx context.Context, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, payload)
}

func (s *Stream) subscribedLocked() []string {
	out := make([]string, 0, len(s.lastUpdate))
	for id := range s.lastUpdate {
		out = append(out, id)
	}
	return out
}

// Reconnects reports how many times the stream re-dialled.
func (s *Stream) Reconnects() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

// Run maintains the connection until ctx is cancelled, reconnecting with
// exponential backoff plus jitter.
func (s *Stream) Run(ctx context.Context) error {
	backoff := s.opts.BackoffBase
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := s.connectAndConsume(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		if s.opts.Logger != nil {
			s.opts.Logger.Warn("market ws disconnected", zap.Error(err), zap.Duration("backoff", backoff))
		}
		if err := sleepWithJitter(ctx, backoff); err != nil {
			return err
		}
		backoff = time.Duration(float64(backoff) * s.opts.BackoffFactor)
		if backoff > s.opts.BackoffMax {
			backoff = s.opts.BackoffMax
		}
	}
}

func (s *Stream) connectAndConsume(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	conn, _, err := websocket.Dial(dialCtx, s.opts.URL, nil)
	cancel()
	if err != nil {
		return err
	}
	// Book messages can be large.
	conn.SetReadLimit(2 << 20)

	s.mu.Lock()
	s.conn = conn
	if s.everConnected {
		s.reconnects++
	}
	s.everConnected = true
	assets := s.subscribedLocked()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "reconnect")
	}()

	if len(assets) > 0 {
		s.mu.Lock()
		err := s.writeLocked(ctx, subscribeFrame{Type: "market", Channel: "market", AssetsIDs: assets})
		s.mu.Unlock()
		if err != nil {
			return err
		}
	}
	if s.opts.Logger != nil {
		s.opts.Logger.Info("market ws connected", zap.Int("assets", len(assets)))
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	heartbeatErr := make(chan error, 1)
	go func() {
		ticker := time.NewTicker(s.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				return
			case <-ticker.C:
				pingCtx, cancelPing := context.WithTimeout(heartbeatCtx, 5*time.Second)
				err := conn.Ping(pingCtx)
				cancelPing()
				if err != nil {
					heartbeatErr <- err
					return
				}
			}
		}
	}()

	for {
		select {
		case err := <-heartbeatErr:
			return err
		default:
		}
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		s.dispatch(data)
	}
}

// Market messages arrive either as single objects or arrays of objects.
func (s *Stream) dispatch(data []byte) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "ping" || trimmed == "pong" {
		return
	}
	if strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return
		}
		for _, item := range items {
			s.dispatchOne(item)
		}
		return
	}
	s.dispatchOne(data)
}

func (s *Stream) dispatchOne(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	if env.AssetID != "" {
		s.mu.Lock()
		if _, ok := s.lastUpdate[env.AssetID]; ok {
			s.lastUpdate[env.AssetID] = time.Now().UTC()
		}
		s.mu.Unlock()
	}
	if s.handler == nil {
		return
	}
	ts := parseMillis(env.Timestamp)
	switch env.EventType {
	case "book":
		var msg struct {
			Bids []order `json:"bids"`
			Asks []order `json:"asks"`
			// Some firehose payloads use buys/sells.
			Buys  []order `json:"buys"`
			Sells []order `json:"sells"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		bids, asks := msg.Bids, msg.Asks
		if len(bids) == 0 && len(asks) == 0 {
			bids, asks = msg.Buys, msg.Sells
		}
		s.handler.OnBook(buildBook(env.AssetID, bids, asks))
	case "price_change":
		var msg struct {
			Price json.RawMessage `json:"price"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		if p, err := parseDecimalRaw(msg.Price); err == nil {
			s.handler.OnPriceChange(env.AssetID, p.InexactFloat64(), ts)
		}
	case "last_trade_price":
		var msg struct {
			Price json.RawMessage `json:"price"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		if p, err := parseDecimalRaw(msg.Price); err == nil {
			s.handler.OnLastTrade(env.AssetID, p.InexactFloat64(), ts)
		}
	case "tick_size_change":
		// Tick size changes do not affect any consumer yet.
	}
}

func parseMillis(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Now().UTC()
	}
	var ms int64
	if _, err := fmt.Sscanf(s, "%d", &ms); err != nil {
		return time.Now().UTC()
	}
	if ms > 1_000_000_000_000 {
		return time.UnixMilli(ms).UTC()
	}
	return time.Unix(ms, 0).UTC()
}

func sleepWithJitter(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return nil
	}
	jitter := time.Duration(rand.Int63n(int64(base / 2)))
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
