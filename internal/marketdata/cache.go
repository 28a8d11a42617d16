package marketdata

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"edgescout/internal/client/polymarket"
	"edgescout/internal/models"
)

// PolySource lists markets from the Polymarket catalog.
type PolySource interface {
	ListMarkets(ctx context.Context, limit, offset int) ([]polymarket.Market, error)
}

// KalshiSource lists already-normalised Kalshi markets.
type KalshiSource interface {
	ListMarkets(ctx context.Context, limit int) ([]models.Snapshot, error)
}

type snapshotSet struct {
	byID    map[string]models.Snapshot
	ordered []models.Snapshot
}

// Cache holds the normalised market snapshots for the current scan. Only
// Refresh writes; readers get a consistent set via an atomic pointer swap,
// so lookups never block a refresh in flight.
type Cache struct {
	poly       PolySource
	kalshi     KalshiSource
	maxMarkets int
	logger     *zap.Logger

	current atomic.Pointer[snapshotSet]
}

func NewCache(poly PolySource, kalshi KalshiSource, maxMarkets int, logger *zap.Logger) *Cache {
	if maxMarkets <= 0 {
		maxMarkets = 200
	}
	c := &Cache{
		poly:       poly,
		kalshi:     kalshi,
		maxMarkets: maxMarkets,
		logger:     logger,
	}
	c.current.Store(&snapshotSet{byID: map[string]models.Snapshot{}})
	return c
}

// Refresh fetches and normalises fresh snapshots, returning how many
// survived normalisation. Per-record failures are dropped, not fatal.
func (c *Cache) Refresh(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	set := &snapshotSet{byID: map[string]models.Snapshot{}}

	markets, err := c.poly.ListMarkets(ctx, c.maxMarkets, 0)
	if err != nil {
		return 0, err
	}
	var dropped int
	for _, m := range markets {
		snap, ok := polySnapshot(m, now)
		if !ok {
			dropped++
			continue
		}
		set.byID[snap.ID] = snap
		set.ordered = append(set.ordered, snap)
	}

	if c.kalshi != nil {
		ks, err := c.kalshi.ListMarkets(ctx, c.maxMarkets)
		if err != nil {
			// Secondary venue failure degrades coverage, not the scan.
			if c.logger != nil {
				c.logger.Warn("kalshi refresh failed", zap.Error(err))
			}
		} else {
			for _, snap := range ks {
				if snap.YesPrice <= 0 || snap.YesPrice >= 1 {
					dropped++
					continue
				}
				set.byID[snap.ID] = snap
				set.ordered = append(set.ordered, snap)
			}
		}
	}

	c.current.Store(set)
	if c.logger != nil {
		c.logger.Debug("market cache refreshed",
			zap.Int("markets", len(set.ordered)),
			zap.Int("dropped", dropped))
	}
	return len(set.ordered), nil
}

func polySnapshot(m polymarket.Market, now time.Time) (models.Snapshot, bool) {
	if m.ID == "" || m.YesTokenID == "" || m.NoTokenID == "" {
		return models.Snapshot{}, false
	}
	if m.YesPrice <= 0 || m.YesPrice >= 1 {
		return models.Snapshot{}, false
	}
	return models.Snapshot{
		ID:          m.ID,
		Question:    m.Question,
		Slug:        m.Slug,
		Venue:       models.VenuePoly,
		ConditionID: m.ConditionID,
		YesPrice:    m.YesPrice,
		NoPrice:     m.NoPrice,
		YesTokenID:  m.YesTokenID,
		NoTokenID:   m.NoTokenID,
		Volume24h:   m.Volume24h,
		Liquidity:   m.Liquidity,
		Spread:      m.Spread,
		GroupSlug:   m.GroupSlug,
		NegRisk:     m.NegRisk,
		EndDate:     m.EndDate,
		Resolution:  m.Resolution,
		FetchedAt:   now,
	}, true
}

// ByID returns the snapshot for a market id, if present.
func (c *Cache) ByID(id string) (models.Snapshot, bool) {
	set := c.current.Load()
	snap, ok := set.byID[id]
	return snap, ok
}

// All returns the current snapshots in fetch order.
func (c *Cache) All() []models.Snapshot {
	set := c.current.Load()
	out := make([]models.Snapshot, len(set.ordered))
	copy(out, set.ordered)
	return out
}

// TopByVolume returns the n highest-volume snapshots.
func (c *Cache) TopByVolume(n int) []models.Snapshot {
	return c.top(n, func(a, b models.Snapshot) bool { return a.Volume24h > b.Volume24h })
}

// TopByLiquidity returns the n most liquid snapshots.
func (c *Cache) TopByLiquidity(n int) []models.Snapshot {
	return c.top(n, func(a, b models.Snapshot) bool { return a.Liquidity > b.Liquidity })
}

func (c *Cache) top(n int, less func(a, b models.Snapshot) bool) []models.Snapshot {
	out := c.All()
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
