package paper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"edgescout/internal/client/polymarket"
	"edgescout/internal/models"
)

const resolveBatchDefault = 15

// StateSource reports the current resolution state of a market: an
// explicit resolution when the venue has settled, otherwise the mid.
type StateSource interface {
	MarketState(ctx context.Context, marketID string) (resolution string, mid float64, err error)
}

// PolyStateSource adapts the Gamma client to StateSource.
type PolyStateSource struct {
	Client *polymarket.Client
}

func (s *PolyStateSource) MarketState(ctx context.Context, marketID string) (string, float64, error) {
	market, err := s.Client.GetMarketByID(ctx, marketID)
	if err != nil {
		return "", 0, err
	}
	return market.Resolution, market.YesPrice, nil
}

// Resolver periodically settles open trades against ground truth.
type Resolver struct {
	trader *Trader
	state  StateSource
	batch  int
	logger *zap.Logger
}

func NewResolver(trader *Trader, state StateSource, batch int, logger *zap.Logger) *Resolver {
	if batch <= 0 {
		batch = resolveBatchDefault
	}
	return &Resolver{trader: trader, state: state, batch: batch, logger: logger}
}

// CheckOnce scans up to one batch of open markets. A rate-limit response
// abandons the rest of the batch; it resumes next period.
func (r *Resolver) CheckOnce(ctx context.Context) (resolved int) {
	open := r.trader.OpenTrades()
	if len(open) == 0 {
		return 0
	}
	// One venue call per market, not per trade.
	byMarket := map[string][]models.PaperTrade{}
	var order []string
	for _, trade := range open {
		if _, seen := byMarket[trade.MarketID]; !seen {
			order = append(order, trade.MarketID)
		}
		byMarket[trade.MarketID] = append(byMarket[trade.MarketID], trade)
	}
	if len(order) > r.batch {
		order = order[:r.batch]
	}

	for _, marketID := range order {
		if ctx.Err() != nil {
			return resolved
		}
		resolution, mid, err := r.state.MarketState(ctx, marketID)
		if err != nil {
			if polymarket.IsRateLimited(err) {
				if r.logger != nil {
					r.logger.Warn("resolution batch rate limited", zap.String("market", marketID))
				}
				return resolved
			}
			if r.logger != nil {
				r.logger.Warn("resolution check failed", zap.String("market", marketID), zap.Error(err))
			}
			continue
		}
		outcome, settled := decideOutcome(resolution, mid)
		if !settled {
			continue
		}
		for _, trade := range byMarket[marketID] {
			if err := r.trader.ResolveTrade(ctx, trade.ID, outcome); err == nil {
				resolved++
			}
		}
	}
	return resolved
}

// decideOutcome settles on an explicit venue resolution or a pinned mid.
func decideOutcome(resolution string, mid float64) (string, bool) {
	switch resolution {
	case models.SideYes, models.SideNo:
		return resolution, true
	}
	if mid >= 0.95 {
		return models.SideYes, true
	}
	if mid <= 0.05 {
		return models.SideNo, true
	}
	return "", false
}

// Run drives CheckOnce on the given period until ctx ends.
func (r *Resolver) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CheckOnce(ctx)
		}
	}
}
