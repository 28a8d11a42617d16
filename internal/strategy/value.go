package strategy

import (
	"context"
	"math"

	"go.uber.org/zap"

	"edgescout/internal/models"
	"edgescout/internal/pricing"
)

// CrossVenue trades the gap between a market's price and the bookmaker
// consensus for the same event.
type CrossVenue struct {
	Consensus  ConsensusSource
	Thresholds ThresholdSource
	Logger     *zap.Logger
}

func (s *CrossVenue) Name() string { return NameCrossVenue }

type crossVenueSignal struct {
	ConsensusProb  float64 `json:"consensus_prob"`
	Books          int     `json:"books"`
	PinnacleAgrees bool    `json:"pinnacle_agrees"`
	Divergence     float64 `json:"divergence"`
}

func (s *CrossVenue) Evaluate(ctx context.Context, snaps []models.Snapshot, bankroll float64) []models.Opportunity {
	if s.Consensus == nil {
		return nil
	}
	var out []models.Opportunity
	for _, snap := range snaps {
		if ctx.Err() != nil {
			return out
		}
		if opp, ok := s.evaluateOne(snap, bankroll); ok {
			out = append(out, opp)
		}
	}
	return out
}

func (s *CrossVenue) evaluateOne(snap models.Snapshot, bankroll float64) (models.Opportunity, bool) {
	if !priceGate(snap) || snap.Volume24h < 1000 || snap.Liquidity < 2000 {
		return models.Opportunity{}, false
	}
	consensus, ok := s.Consensus.Consensus(snap)
	if !ok || consensus.Books < 2 {
		return models.Opportunity{}, false
	}
	divergence := consensus.Prob - snap.YesPrice
	if math.Abs(divergence)-pricing.FeeRate <= 0.01 {
		return models.Opportunity{}, false
	}

	side := models.SideYes
	entry := snap.YesPrice
	trueProb := consensus.Prob
	if divergence < 0 {
		side = models.SideNo
		entry = snap.NoPrice
		trueProb = 1 - consensus.Prob
	}

	score := scoreCrossVenue(math.Abs(divergence), consensus, snap)
	if s.Thresholds != nil && score < s.Thresholds.MinScore(NameCrossVenue) {
		return models.Opportunity{}, false
	}

	size := pricing.Stake(trueProb, entry, bankroll, snap.Liquidity)
	if size <= 0 {
		return models.Opportunity{}, false
	}
	slip := pricing.Slippage(size, snap.Liquidity)
	netEV := pricing.NetEV(trueProb, entry, slip)
	if netEV <= 0 {
		return models.Opportunity{}, false
	}

	return models.Opportunity{
		Strategy:   NameCrossVenue,
		Venue:      snap.Venue,
		MarketID:   snap.ID,
		Question:   snap.Question,
		Side:       side,
		EntryPrice: entry,
		SizeUSD:    size,
		RawEdge:    math.Abs(divergence),
		NetEV:      netEV,
		Score:      score,
		Confidence: confidenceForBooks(consensus),
		RiskTier:   riskTierForScore(score),
		RiskNote:   "consensus may lag venue; worst case full stake lost at resolution",
		Signals: marshalSignals(map[string]any{
			"cross_venue": crossVenueSignal{
				ConsensusProb:  consensus.Prob,
				Books:          consensus.Books,
				PinnacleAgrees: consensus.PinnacleAgrees,
				Divergence:     divergence,
			},
		}),
	}, true
}

func scoreCrossVenue(divergence float64, consensus Consensus, snap models.Snapshot) float64 {
	score := math.Min(divergence*800, 50)
	if consensus.Books >= 20 {
		score += 15
	} else if consensus.Books >= 10 {
		score += 10
	}
	if consensus.PinnacleAgrees {
		score += 10
	}
	if snap.Liquidity >= 50000 {
		score += 10
	} else if snap.Liquidity >= 10000 {
		score += 5
	}
	if snap.Volume24h >= 100000 {
		score += 10
	} else if snap.Volume24h >= 20000 {
		score += 5
	}
	return clampScore(score)
}

func confidenceForBooks(consensus Consensus) string {
	switch {
	case consensus.Books >= 10 && consensus.PinnacleAgrees:
		return models.ConfidenceHigh
	case consensus.Books >= 5:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func riskTierForScore(score float64) string {
	switch {
	case score >= 70:
		return "LOW"
	case score >= 45:
		return "MED"
	default:
		return "HIGH"
	}
}
