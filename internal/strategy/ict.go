package strategy

import (
	"context"
	"math"

	"go.uber.org/zap"

	"edgescout/internal/models"
	"edgescout/internal/orderbook"
	"edgescout/internal/pricing"
)

// ICT reads institutional footprints off the spoof-cleaned orderbook:
// imbalance, liquidity sweeps, order blocks, and volume-price divergence.
type ICT struct {
	Books      OrderbookProvider
	History    HistoryProvider
	Thresholds ThresholdSource
	Logger     *zap.Logger
}

func (s *ICT) Name() string { return NameICT }

type ictSubSignal struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Direction int     `json:"direction"`
}

type ictSignal struct {
	Subs             []ictSubSignal `json:"subs"`
	BaseScore        float64        `json:"base_score"`
	SpoofPenalty     float64        `json:"spoof_penalty"`
	ConfidenceFactor float64        `json:"confidence_factor"`
	Thin             bool           `json:"thin"`
}

func (s *ICT) Evaluate(ctx context.Context, snaps []models.Snapshot, bankroll float64) []models.Opportunity {
	if s.Books == nil {
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
				s.Logger.Warn("ict evaluation failed", zap.String("market", snap.ID), zap.Error(err))
			}
			continue
		}
		if ok {
			out = append(out, opp)
		}
	}
	return out
}

func (s *ICT) evaluateOne(ctx context.Context, snap models.Snapshot, bankroll float64) (models.Opportunity, bool, error) {
	if !priceGate(snap) || snap.Volume24h < 5000 || snap.Liquidity < 5000 {
		return models.Opportunity{}, false, nil
	}
	book, spoofScore, ok := s.Books.CleanBook(snap.YesTokenID)
	if !ok || (len(book.Bids) == 0 && len(book.Asks) == 0) {
		return models.Opportunity{}, false, nil
	}
	depth := orderbook.AssessDepth(book, snap.YesPrice)
	if depth.Thin {
		return models.Opportunity{}, false, nil
	}

	var history []models.PricePoint
	if s.History != nil {
		var err error
		history, err = s.History.PriceHistory(ctx, snap.YesTokenID, 10, 24)
		if err != nil {
			return models.Opportunity{}, false, err
		}
	}

	subs := []ictSubSignal{
		imbalanceSub(book, snap.YesPrice),
		sweepSub(history),
		orderBlockSub(book, snap.YesPrice),
		divergenceSub(history, snap.Volume24h),
	}
	weights := []float64{0.40, 0.25, 0.20, 0.15}

	var base float64
	votesUp, votesDown := 0, 0
	for i, sub := range subs {
		base += sub.Score * weights[i]
		if sub.Direction > 0 {
			votesUp++
		} else if sub.Direction < 0 {
			votesDown++
		}
	}
	if votesUp == votesDown {
		return models.Opportunity{}, false, nil
	}

	penalty := math.Min(5*spoofScore, 25)
	score := math.Max(0, base*depth.ConfidenceFactor-penalty)
	minScore := 25.0
	if s.Thresholds != nil {
		minScore = s.Thresholds.MinScore(NameICT)
	}
	if score < minScore {
		return models.Opportunity{}, false, nil
	}

	side := models.SideYes
	entry := snap.YesPrice
	if votesDown > votesUp {
		side = models.SideNo
		entry = snap.NoPrice
	}
	// The composite score stands in for a posterior edge.
	trueProb := math.Min(0.95, entry+score/1000)
	size := pricing.Stake(trueProb, entry, bankroll, snap.Liquidity)
	size = math.Min(size, 0.02*bankroll) * depth.ConfidenceFactor
	if size <= 0 {
		return models.Opportunity{}, false, nil
	}
	slip := pricing.Slippage(size, snap.Liquidity)
	netEV := pricing.NetEV(trueProb, entry, slip)
	if netEV <= 0 {
		return models.Opportunity{}, false, nil
	}

	return models.Opportunity{
		Strategy:   NameICT,
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
		RiskNote:   "microstructure signal; worst case full stake lost at resolution",
		Signals: marshalSignals(map[string]any{
			"ict": ictSignal{
				Subs:             subs,
				BaseScore:        base,
				SpoofPenalty:     penalty,
				ConfidenceFactor: depth.ConfidenceFactor,
				Thin:             depth.Thin,
			},
		}),
	}, true, nil
}

// imbalanceSub compares tight-band to wide-band bid/ask pressure.
func imbalanceSub(book *models.Orderbook, mid float64) ictSubSignal {
	tightBid, tightAsk := bandVolumes(book, mid, 0.03)
	wideBid, wideAsk := bandVolumes(book, mid, 0.10)
	sub := ictSubSignal{Name: "imbalance"}
	if tightBid+tightAsk < 200 || wideBid+wideAsk < 200 {
		return sub
	}
	tight := ratio(tightBid, tightAsk)
	wide := ratio(wideBid, wideAsk)
	composite := 0.7*tight + 0.3*wide
	sub.Score = math.Min(math.Abs(composite)*120, 100)
	if composite > 0.05 {
		sub.Direction = 1
	} else if composite < -0.05 {
		sub.Direction = -1
	}
	return sub
}

func bandVolumes(book *models.Orderbook, mid, span float64) (bid, ask float64) {
	for _, lvl := range book.Bids {
		if math.Abs(lvl.Price-mid) <= span {
			bid += lvl.Size
		}
	}
	for _, lvl := range book.Asks {
		if math.Abs(lvl.Price-mid) <= span {
			ask += lvl.Size
		}
	}
	return bid, ask
}

func ratio(bid, ask float64) float64 {
	if bid+ask == 0 {
		return 0
	}
	return (bid - ask) / (bid + ask)
}

// sweepSub detects a stop-hunt: a spike beyond the recent range that
// snaps back. Needs at least 8 history points.
func sweepSub(history []models.PricePoint) ictSubSignal {
	sub := ictSubSignal{Name: "sweep"}
	if len(history) < 8 {
		return sub
	}
	window := history[:len(history)-2]
	low, high := window[0].Price, window[0].Price
	for _, p := range window {
		if p.Price < low {
			low = p.Price
		}
		if p.Price > high {
			high = p.Price
		}
	}
	spike := history[len(history)-2].Price
	last := history[len(history)-1].Price
	span := high - low
	if span < 0.005 {
		return sub
	}
	if spike < low-0.2*span && last > low {
		sub.Score = 80
		sub.Direction = 1
	} else if spike > high+0.2*span && last < high {
		sub.Score = 80
		sub.Direction = -1
	}
	return sub
}

// orderBlockSub looks for institutional-size resting clusters near price.
func orderBlockSub(book *models.Orderbook, mid float64) ictSubSignal {
	sub := ictSubSignal{Name: "order_block"}
	walls := orderbook.FindWalls(book, 5000)
	var bidSize, askSize float64
	for _, w := range walls {
		if math.Abs(w.Price-mid) > 0.08 {
			continue
		}
		if w.Side == orderbook.SideBid {
			bidSize += w.Size
		} else {
			askSize += w.Size
		}
	}
	if bidSize == 0 && askSize == 0 {
		return sub
	}
	dominant := math.Max(bidSize, askSize)
	sub.Score = math.Min(dominant/200, 100)
	if bidSize > askSize*1.5 {
		sub.Direction = 1
	} else if askSize > bidSize*1.5 {
		sub.Direction = -1
	}
	return sub
}

// divergenceSub flags price drifting against flat volume.
func divergenceSub(history []models.PricePoint, volume24h float64) ictSubSignal {
	sub := ictSubSignal{Name: "divergence"}
	if len(history) < 10 || volume24h <= 0 {
		return sub
	}
	first := history[len(history)-10].Price
	last := history[len(history)-1].Price
	move := last - first
	if math.Abs(move) < 0.02 {
		return sub
	}
	// A sizeable move on thin 24h volume tends to revert.
	if volume24h < 20000 {
		sub.Score = math.Min(math.Abs(move)*1500, 100)
		if move > 0 {
			sub.Direction = -1
		} else {
			sub.Direction = 1
		}
	}
	return sub
}
