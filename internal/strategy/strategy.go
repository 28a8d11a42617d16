package strategy

import (
	"context"
	"encoding/json"
	"math"

	"gorm.io/datatypes"

	"edgescout/internal/models"
)

// Strategy names, also the dedup-key namespace.
const (
	NameCrossVenue   = "CROSS_PLATFORM"
	NameComplement   = "ARB_COMPLEMENT"
	NameGroupArb     = "ARB_GROUP"
	NameOrderbookArb = "ARB_ORDERBOOK"
	NameICT          = "ICT"
	NameMomentum     = "MOMENTUM"
	NameWhale        = "WHALE"
	NameManual       = "MANUAL"
)

// Evaluator is one strategy. Evaluate never fails the scan: per-market
// errors are skipped internally and the partial result returned.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, snaps []models.Snapshot, bankroll float64) []models.Opportunity
}

// OrderbookProvider serves spoof-cleaned books from the snapshot store.
type OrderbookProvider interface {
	CleanBook(tokenID string) (book *models.Orderbook, spoofScore float64, ok bool)
}

// HistoryProvider serves recent price history for a token.
type HistoryProvider interface {
	PriceHistory(ctx context.Context, tokenID string, fidelity, count int) ([]models.PricePoint, error)
}

// Consensus is a cross-bookmaker probability matched to a market.
type Consensus struct {
	Prob           float64
	Books          int
	PinnacleAgrees bool
}

// ConsensusSource matches markets to bookmaker consensus, when one exists.
type ConsensusSource interface {
	Consensus(snap models.Snapshot) (Consensus, bool)
}

// EventSource fills in the missing sub-outcomes of a mutually-exclusive
// group via the venue's event lookup.
type EventSource interface {
	EventMarkets(ctx context.Context, groupSlug string) ([]models.Snapshot, error)
}

// ThresholdSource exposes the learned per-strategy minimum score. It
// returns the configured default until enough resolutions accumulate.
type ThresholdSource interface {
	MinScore(strategy string) float64
}

type staticThreshold float64

func (t staticThreshold) MinScore(string) float64 { return float64(t) }

// StaticThreshold is a fixed minimum score, used before any learning
// state exists and in tests.
func StaticThreshold(v float64) ThresholdSource { return staticThreshold(v) }

// priceGate rejects markets too close to settled to trade.
func priceGate(snap models.Snapshot) bool {
	return snap.YesPrice > 0.05 && snap.YesPrice < 0.95
}

func marshalSignals(v any) datatypes.JSON {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}

func clampScore(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}

func capSize(size, bankroll, liquidity float64) float64 {
	size = math.Min(size, 0.05*bankroll)
	if liquidity > 0 {
		size = math.Min(size, 0.05*liquidity)
	}
	if size < 0 {
		return 0
	}
	return size
}
