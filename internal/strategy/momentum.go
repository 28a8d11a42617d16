package strategy

import (
	"context"
	"math"

	"go.uber.org/zap"

	"edgescout/internal/models"
	"edgescout/internal/pricing"
)

// VolumeProvider serves recent per-interval traded volume for a market.
// Markets without granular trade history return ok=false and momentum
// falls back to the stricter unconfirmed gate.
type VolumeProvider interface {
	RecentVolumes(ctx context.Context, snap models.Snapshot, count int) ([]float64, bool)
}

// Momentum trades trend continuation confirmed across EMAs, rate of
// change, acceleration, and breakout z-score.
type Momentum struct {
	History    HistoryProvider
	Volumes    VolumeProvider
	Thresholds ThresholdSource
	Logger     *zap.Logger
}

func (s *Momentum) Name() string { return NameMomentum }

type momentumSignal struct {
	EMAFast         float64 `json:"ema_fast"`
	EMASlow         float64 `json:"ema_slow"`
	ROC5            float64 `json:"roc5"`
	Acceleration    float64 `json:"acceleration"`
	VolumeRatio     float64 `json:"volume_ratio"`
	ZScore          float64 `json:"z_score"`
	TrendStrength   float64 `json:"trend_strength"`
	VolumeConfirmed bool    `json:"volume_confirmed"`
}

func (s *Momentum) Evaluate(ctx context.Context, snaps []models.Snapshot, bankroll float64) []models.Opportunity {
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
				s.Logger.Warn("momentum evaluation failed", zap.String("market", snap.ID), zap.Error(err))
			}
			continue
		}
		if ok {
			out = append(out, opp)
		}
	}
	return out
}

func (s *Momentum) evaluateOne(ctx context.Context, snap models.Snapshot, bankroll float64) (models.Opportunity, bool, error) {
	if !priceGate(snap) || snap.Volume24h < 10000 || snap.Liquidity < 5000 {
		return models.Opportunity{}, false, nil
	}
	history, err := s.History.PriceHistory(ctx, snap.YesTokenID, 10, 30)
	if err != nil {
		return models.Opportunity{}, false, err
	}
	if len(history) < 20 {
		return models.Opportunity{}, false, nil
	}
	prices := make([]float64, len(history))
	for i, p := range history {
		prices[i] = p.Price
	}

	emaFast := ema(prices, 5)
	emaSlow := ema(prices, 15)
	roc5 := roc(prices, 5)
	roc10 := roc(prices, 10)
	accel := roc5 - roc10
	z := zScore(prices, 20)

	volumeRatio := 1.0
	volumeConfirmed := false
	if s.Volumes != nil {
		if vols, ok := s.Volumes.RecentVolumes(ctx, snap, 20); ok && len(vols) >= 5 {
			var sum float64
			for _, v := range vols {
				sum += v
			}
			avg := sum / float64(len(vols))
			if avg > 0 {
				volumeRatio = vols[len(vols)-1] / avg
				volumeConfirmed = volumeRatio > 1.3
			}
		}
	}

	trend := trendStrength(emaFast, emaSlow, roc5, accel, z)
	gate := 40.0
	if volumeConfirmed {
		gate = 25.0
	}
	if s.Thresholds != nil {
		gate = math.Max(gate, s.Thresholds.MinScore(NameMomentum))
	}
	if math.Abs(trend) < gate {
		return models.Opportunity{}, false, nil
	}

	side := models.SideYes
	entry := snap.YesPrice
	if trend < 0 {
		side = models.SideNo
		entry = snap.NoPrice
	}
	trueProb := math.Min(0.95, entry+math.Abs(trend)/1000)
	size := pricing.Stake(trueProb, entry, bankroll, snap.Liquidity)
	if size <= 0 {
		return models.Opportunity{}, false, nil
	}
	slip := pricing.Slippage(size, snap.Liquidity)
	netEV := pricing.NetEV(trueProb, entry, slip)
	if netEV <= 0 {
		return models.Opportunity{}, false, nil
	}

	score := clampScore(math.Abs(trend))
	return models.Opportunity{
		Strategy:   NameMomentum,
		Venue:      snap.Venue,
		MarketID:   snap.ID,
		Question:   snap.Question,
		Side:       side,
		EntryPrice: entry,
		SizeUSD:    size,
		RawEdge:    trueProb - entry,
		NetEV:      netEV,
		Score:      score,
		Confidence: models.ConfidenceMedium,
		RiskTier:   riskTierForScore(score),
		RiskNote:   "trend reversal risk; worst case full stake lost at resolution",
		Signals: marshalSignals(map[string]any{
			"momentum": momentumSignal{
				EMAFast:         emaFast,
				EMASlow:         emaSlow,
				ROC5:            roc5,
				Acceleration:    accel,
				VolumeRatio:     volumeRatio,
				ZScore:          z,
				TrendStrength:   trend,
				VolumeConfirmed: volumeConfirmed,
			},
		}),
	}, true, nil
}

func trendStrength(emaFast, emaSlow, roc5, accel, z float64) float64 {
	var strength float64
	if emaSlow > 0 {
		strength += (emaFast - emaSlow) / emaSlow * 600
	}
	strength += roc5 * 400
	strength += accel * 300
	strength += clampAbs(z, 3) * 8
	return clampAbs(strength, 100)
}

func clampAbs(x, limit float64) float64 {
	if x > limit {
		return limit
	}
	if x < -limit {
		return -limit
	}
	return x
}

func ema(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	k := 2.0 / (float64(period) + 1)
	out := prices[0]
	for _, p := range prices[1:] {
		out = p*k + out*(1-k)
	}
	return out
}

// roc is the rate of change over the last n points.
func roc(prices []float64, n int) float64 {
	if len(prices) <= n {
		return 0
	}
	prev := prices[len(prices)-1-n]
	if prev == 0 {
		return 0
	}
	return (prices[len(prices)-1] - prev) / prev
}

func zScore(prices []float64, window int) float64 {
	if len(prices) < window {
		return 0
	}
	win := prices[len(prices)-window:]
	var sum float64
	for _, p := range win {
		sum += p
	}
	mean := sum / float64(len(win))
	var variance float64
	for _, p := range win {
		d := p - mean
		variance += d * d
	}
	variance /= float64(len(win) - 1)
	if variance == 0 {
		return 0
	}
	return (prices[len(prices)-1] - mean) / math.Sqrt(variance)
}
