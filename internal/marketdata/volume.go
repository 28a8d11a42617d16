package marketdata

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"edgescout/internal/client/kalshi"
	"edgescout/internal/client/polymarket"
	"edgescout/internal/models"
)

// volumeInterval matches the ten-minute fidelity the strategies use for
// price history, so volume buckets line up with price points.
const volumeInterval = 10 * time.Minute

const tradeFetchLimit = 500

// PolyTradeSource serves Polymarket public fills by condition id.
type PolyTradeSource interface {
	RecentTrades(ctx context.Context, conditionID string, limit int) ([]polymarket.Trade, error)
}

// KalshiTradeSource serves Kalshi public fills by ticker.
type KalshiTradeSource interface {
	GetTrades(ctx context.Context, ticker string, limit int) ([]kalshi.Trade, error)
}

type volumeEntry struct {
	vols      []float64
	fetchedAt time.Time
}

// VolumeSource buckets each venue's public fills into fixed intervals so
// the strategies can compare the latest interval against the trailing
// average. Results are cached for one interval per market; a scan pass
// touching the same market twice costs one fetch.
type VolumeSource struct {
	poly   PolyTradeSource
	kalshi KalshiTradeSource
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]volumeEntry
}

func NewVolumeSource(poly PolyTradeSource, kalshi KalshiTradeSource, logger *zap.Logger) *VolumeSource {
	return &VolumeSource{
		poly:   poly,
		kalshi: kalshi,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		cache:  map[string]volumeEntry{},
	}
}

// RecentVolumes implements strategy.VolumeProvider. The returned slice
// holds count buckets of dollar notional, oldest first, the last bucket
// being the interval ending now.
func (s *VolumeSource) RecentVolumes(ctx context.Context, snap models.Snapshot, count int) ([]float64, bool) {
	if count <= 0 {
		return nil, false
	}
	now := s.now()

	s.mu.Lock()
	entry, ok := s.cache[snap.ID]
	s.mu.Unlock()
	if ok && now.Sub(entry.fetchedAt) < volumeInterval && len(entry.vols) >= count {
		return entry.vols[len(entry.vols)-count:], true
	}

	fills, ok := s.fetch(ctx, snap)
	if !ok {
		return nil, false
	}
	vols := bucketFills(fills, volumeInterval, count, now)

	s.mu.Lock()
	s.cache[snap.ID] = volumeEntry{vols: vols, fetchedAt: now}
	s.mu.Unlock()
	return vols, true
}

type fill struct {
	notional float64
	at       time.Time
}

func (s *VolumeSource) fetch(ctx context.Context, snap models.Snapshot) ([]fill, bool) {
	if ticker, isKalshi := strings.CutPrefix(snap.ID, "kalshi:"); isKalshi {
		if s.kalshi == nil {
			return nil, false
		}
		trades, err := s.kalshi.GetTrades(ctx, ticker, tradeFetchLimit)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("kalshi trades fetch failed", zap.String("market", snap.ID), zap.Error(err))
			}
			return nil, false
		}
		fills := make([]fill, 0, len(trades))
		for _, t := range trades {
			fills = append(fills, fill{notional: t.NotionalUSD, at: t.ExecutedAt})
		}
		return fills, true
	}

	if s.poly == nil || snap.ConditionID == "" {
		return nil, false
	}
	trades, err := s.poly.RecentTrades(ctx, snap.ConditionID, tradeFetchLimit)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("poly trades fetch failed", zap.String("market", snap.ID), zap.Error(err))
		}
		return nil, false
	}
	fills := make([]fill, 0, len(trades))
	for _, t := range trades {
		fills = append(fills, fill{notional: t.NotionalUSD, at: t.ExecutedAt})
	}
	return fills, true
}

// bucketFills sums notional into count intervals ending at now. Fills
// older than the window or stamped in the future are dropped.
func bucketFills(fills []fill, interval time.Duration, count int, now time.Time) []float64 {
	vols := make([]float64, count)
	start := now.Add(-time.Duration(count) * interval)
	for _, f := range fills {
		if f.at.Before(start) || f.at.After(now) {
			continue
		}
		idx := int(f.at.Sub(start) / interval)
		if idx >= count {
			idx = count - 1
		}
		vols[idx] += f.notional
	}
	return vols
}
