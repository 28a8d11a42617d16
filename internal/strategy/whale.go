package strategy

import (
	"context"
	"math"

	"go.uber.org/zap"

	"edgescout/internal/models"
	"edgescout/internal/pricing"
)

const whaleMinScore = 40

// Whale follows large directional flow: volume spikes with consistent
// price impact suggest informed accumulation.
type Whale struct {
	History    HistoryProvider
	Volumes    VolumeProvider
	Thresholds ThresholdSource
	Logger     *zap.Logger
}

func (s *Whale) Name() string { return NameWhale }

type whaleSignal struct {
	SpikeRatio   float64 `json:"spike_ratio"`
	Direction    float64 `json:"direction"`
	Accumulation float64 `json:"accumulation"`
	PriceImpact  float64 `json:"price_impact"`
	WhaleScore   float64 `json:"whale_score"`
}

func (s *Whale) Evaluate(ctx context.Context, snaps []models.Snapshot, bankroll float64) []models.Opportunity {
	if s.History == nil {
		return nil
	}
	var out []models.Opportunity
	for _, snap := range snaps {
		if ctx.Err() != nil {
			return out
		}
		opp, ok, err := s.evaluateOne(ctx, snap, bankroll)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("whale evaluation failed", zap.String("market", snap.ID), zap.Error(err))
			}
			continue
		}
		if ok {
			out = append(out, opp)
		}
	}
	return out
}

func (s *Whale) evaluateOne(ctx context.Context, snap models.Snapshot, bankroll float64) (models.Opportunity, bool, error) {
	if !priceGate(snap) || snap.Volume24h < 20000 || snap.Liquidity < 10000 {
		return models.Opportunity{}, false, nil
	}
	history, err := s.History.PriceHistory(ctx, snap.YesTokenID, 10, 24)
	if err != nil {
		return models.Opportunity{}, false, err
	}
	if len(history) < 12 {
		return models.Opportunity{}, false, nil
	}

	var vols []float64
	if s.Volumes != nil {
		vols, _ = s.Volumes.RecentVolumes(ctx, snap, 20)
	}
	spike := spikeRatio(vols)
	direction, accumulation := flowDirection(history, vols)
	impact := priceImpact(history)

	score := whaleScore(spike, direction, accumulation, impact)
	minScore := float64(whaleMinScore)
	if s.Thresholds != nil {
		minScore = math.Max(minScore, s.Thresholds.MinScore(NameWhale))
	}
	if score < minScore || direction == 0 {
		return models.Opportunity{}, false, nil
	}

	side := models.SideYes
	entry := snap.YesPrice
	if direction < 0 {
		side = models.SideNo
		entry = snap.NoPrice
	}
	trueProb := math.Min(0.95, entry+score/1200)
	size := pricing.Stake(trueProb, entry, bankroll, snap.Liquidity)
	if size <= 0 {
		return models.Opportunity{}, false, nil
	}
	slip := pricing.Slippage(size, snap.Liquidity)
	netEV := pricing.NetEV(trueProb, entry, slip)
	if netEV <= 0 {
		return models.Opportunity{}, false, nil
	}

	return models.Opportunity{
		Strategy:   NameWhale,
		Venue:      snap.Venue,
		MarketID:   snap.ID,
		Question:   snap.Question,
		Side:       side,
		EntryPrice: entry,
		SizeUSD:    size,
		RawEdge:    trueProb - entry,
		NetEV:      netEV,
		Score:      clampScore(score),
		Confidence: models.ConfidenceMedium,
		RiskTier:   riskTierForScore(score),
		RiskNote:   "follows unverified large flow; worst case full stake lost at resolution",
		Signals: marshalSignals(map[string]any{
			"whale": whaleSignal{
				SpikeRatio:   spike,
				Direction:    direction,
				Accumulation: accumulation,
				PriceImpact:  impact,
				WhaleScore:   score,
			},
		}),
	}, true, nil
}

// spikeRatio compares the latest volume to the trailing average.
func spikeRatio(vols []float64) float64 {
	if len(vols) < 5 {
		return 1
	}
	var sum float64
	for _, v := range vols[:len(vols)-1] {
		sum += v
	}
	avg := sum / float64(len(vols)-1)
	if avg == 0 {
		return 1
	}
	return vols[len(vols)-1] / avg
}

// flowDirection weights recent price deltas by interval volume and
// measures how consistently they point the same way.
func flowDirection(history []models.PricePoint, vols []float64) (direction, accumulation float64) {
	n := len(history)
	if n < 2 {
		return 0, 0
	}
	var weighted, totalWeight float64
	consistent, moves := 0, 0
	var lastSign float64
	volumeIncreasing := len(vols) >= 4 && vols[len(vols)-1] > vols[len(vols)/2]
	for i := 1; i < n; i++ {
		delta := history[i].Price - history[i-1].Price
		weight := 1.0
		if len(vols) == n {
			weight = vols[i]
		}
		weighted += delta * weight
		totalWeight += weight
		if delta != 0 {
			sign := math.Copysign(1, delta)
			if sign == lastSign {
				consistent++
			}
			lastSign = sign
			moves++
		}
	}
	if totalWeight > 0 {
		direction = weighted / totalWeight
	}
	if math.Abs(direction) < 0.001 {
		direction = 0
	} else {
		direction = math.Copysign(1, direction)
	}
	if moves > 0 {
		accumulation = float64(consistent) / float64(moves)
		if volumeIncreasing {
			accumulation *= 1.25
		}
	}
	return direction, math.Min(accumulation, 1)
}

func priceImpact(history []models.PricePoint) float64 {
	n := len(history)
	if n < 6 {
		return 0
	}
	return math.Abs(history[n-1].Price - history[n-6].Price)
}

func whaleScore(spike, direction, accumulation, impact float64) float64 {
	if direction == 0 {
		return 0
	}
	score := math.Min((spike-1)*25, 40)
	if score < 0 {
		score = 0
	}
	score += accumulation * 35
	score += math.Min(impact*500, 25)
	return clampScore(score)
}
