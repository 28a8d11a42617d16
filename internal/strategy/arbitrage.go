package strategy

import (
	"context"
	"math"
	"regexp"

	"go.uber.org/zap"

	"edgescout/internal/models"
	"edgescout/internal/pricing"
)

const (
	complementMinEdge = 0.003
	arbProbeSize      = 100
	arbMinVolume      = 1000
	arbMinLiquidity   = 2000
)

// arbGate filters near-resolved and dead markets before any structural
// check runs. A 0.97/0.01 pair shows a parity gap on paper, but one leg
// is a settled longshot nobody will fill.
func arbGate(snap models.Snapshot) bool {
	return priceGate(snap) && snap.Volume24h >= arbMinVolume && snap.Liquidity >= arbMinLiquidity
}

// Complement trades single-market yes/no price pairs that fail to sum
// to 1 by more than fees and slippage.
type Complement struct {
	Logger *zap.Logger
}

func (s *Complement) Name() string { return NameComplement }

type complementSignal struct {
	YesPrice  float64 `json:"yes_price"`
	NoPrice   float64 `json:"no_price"`
	Deviation float64 `json:"deviation"`
	NetEdge   float64 `json:"net_edge"`
}

func (s *Complement) Evaluate(ctx context.Context, snaps []models.Snapshot, bankroll float64) []models.Opportunity {
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

func (s *Complement) evaluateOne(snap models.Snapshot, bankroll float64) (models.Opportunity, bool) {
	if snap.YesPrice <= 0 || snap.NoPrice <= 0 || !arbGate(snap) {
		return models.Opportunity{}, false
	}
	deviation := math.Abs(snap.YesPrice + snap.NoPrice - 1)
	if deviation == 0 {
		return models.Opportunity{}, false
	}
	feeOnProfit := pricing.FeeRate * deviation
	slip := pricing.Slippage(arbProbeSize, snap.Liquidity)
	netEdge := deviation - feeOnProfit - 2*slip
	if netEdge <= complementMinEdge {
		return models.Opportunity{}, false
	}
	score := math.Round(math.Min(netEdge*2000, 100))
	side := models.SideYes
	note := "buy both sides below parity; payoff locked at resolution"
	if snap.YesPrice+snap.NoPrice > 1 {
		side = models.SideNo
		note = "sell both sides above parity; payoff locked at resolution"
	}
	size := capSize(0.02*bankroll, bankroll, snap.Liquidity)
	return models.Opportunity{
		Strategy:   NameComplement,
		Venue:      snap.Venue,
		MarketID:   snap.ID,
		Question:   snap.Question,
		Side:       side,
		EntryPrice: snap.YesPrice,
		SizeUSD:    size,
		RawEdge:    deviation,
		NetEV:      netEdge,
		Score:      score,
		Confidence: models.ConfidenceHigh,
		RiskTier:   "LOW",
		RiskNote:   note,
		Signals: marshalSignals(map[string]any{
			"complement": complementSignal{
				YesPrice:  snap.YesPrice,
				NoPrice:   snap.NoPrice,
				Deviation: deviation,
				NetEdge:   netEdge,
			},
		}),
	}, true
}

// subMarketPattern excludes spread/total/prop questions from exclusivity
// groups; those are not mutually exclusive with the main outcome set.
var subMarketPattern = regexp.MustCompile(`(?i)\b(by (over|under|more|at least)|margin|spread|total|o/u|points?|\+\d|\-\d|handicap|first (half|quarter)|prop)\b`)

// GroupArb trades mutually-exclusive outcome groups whose YES prices sum
// away from 1. Only groups the exchange confirms exclusive (negRisk) are
// eligible.
type GroupArb struct {
	Events EventSource
	Logger *zap.Logger
}

func (s *GroupArb) Name() string { return NameGroupArb }

type groupArbSignal struct {
	GroupSlug string  `json:"group_slug"`
	Markets   int     `json:"markets"`
	Total     int     `json:"total"`
	SumYes    float64 `json:"sum_yes"`
	NetEdge   float64 `json:"net_edge"`
	Complete  bool    `json:"complete"`
}

func (s *GroupArb) Evaluate(ctx context.Context, snaps []models.Snapshot, bankroll float64) []models.Opportunity {
	groups := map[string][]models.Snapshot{}
	for _, snap := range snaps {
		if !snap.NegRisk || snap.GroupSlug == "" || !arbGate(snap) {
			continue
		}
		if subMarketPattern.MatchString(snap.Question) {
			continue
		}
		groups[snap.GroupSlug] = append(groups[snap.GroupSlug], snap)
	}
	var out []models.Opportunity
	for slug, members := range groups {
		if ctx.Err() != nil {
			return out
		}
		if len(members) < 2 {
			continue
		}
		if opp, ok := s.evaluateGroup(ctx, slug, members, bankroll); ok {
			out = append(out, opp)
		}
	}
	return out
}

func (s *GroupArb) evaluateGroup(ctx context.Context, slug string, members []models.Snapshot, bankroll float64) (models.Opportunity, bool) {
	totalInEvent := len(members)
	if s.Events != nil {
		eventMarkets, err := s.Events.EventMarkets(ctx, slug)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("event lookup failed", zap.String("group", slug), zap.Error(err))
			}
		} else if len(eventMarkets) > 0 {
			totalInEvent = len(eventMarkets)
			seen := map[string]bool{}
			for _, m := range members {
				seen[m.ID] = true
			}
			for _, m := range eventMarkets {
				if !seen[m.ID] && arbGate(m) && !subMarketPattern.MatchString(m.Question) {
					members = append(members, m)
				}
			}
		}
	}

	var sumYes, sumLiquidity float64
	for _, m := range members {
		sumYes += m.YesPrice
		sumLiquidity += m.Liquidity
	}
	deviation := math.Abs(sumYes - 1)
	feeOnProfit := pricing.FeeRate * deviation
	avgSlip := pricing.Slippage(arbProbeSize, sumLiquidity/float64(len(members)))
	netEdge := deviation - feeOnProfit - avgSlip
	if netEdge < complementMinEdge {
		return models.Opportunity{}, false
	}

	complete := len(members) >= totalInEvent
	score := math.Round(math.Min(netEdge*2000, 100))
	confidence := models.ConfidenceHigh
	if !complete {
		coverage := float64(len(members)) / float64(totalInEvent)
		score = math.Round(score * math.Max(coverage*0.6, 0.1))
		confidence = models.ConfidenceLow
	}

	lead := members[0]
	side := models.SideNo
	note := "sum of YES prices above 1: sell set; exposure if group is incomplete"
	if sumYes < 1 {
		side = models.SideYes
		note = "sum of YES prices below 1: buy set; exposure if group is incomplete"
	}
	size := capSize(0.02*bankroll, bankroll, lead.Liquidity)
	return models.Opportunity{
		Strategy:   NameGroupArb,
		Venue:      lead.Venue,
		MarketID:   lead.ID,
		Question:   lead.Question,
		Side:       side,
		EntryPrice: lead.YesPrice,
		SizeUSD:    size,
		RawEdge:    deviation,
		NetEV:      netEdge,
		Score:      clampScore(score),
		Confidence: confidence,
		RiskTier:   "LOW",
		RiskNote:   note,
		Signals: marshalSignals(map[string]any{
			"group": groupArbSignal{
				GroupSlug: slug,
				Markets:   len(members),
				Total:     totalInEvent,
				SumYes:    sumYes,
				NetEdge:   netEdge,
				Complete:  complete,
			},
		}),
	}, true
}

// OrderbookArb trades real bid/ask crossings between a market's YES and
// NO books from the live snapshot store.
type OrderbookArb struct {
	Books  OrderbookProvider
	Logger *zap.Logger
}

func (s *OrderbookArb) Name() string { return NameOrderbookArb }

type orderbookArbSignal struct {
	Mode     string  `json:"mode"`
	YesQuote float64 `json:"yes_quote"`
	NoQuote  float64 `json:"no_quote"`
	Fillable float64 `json:"fillable_usd"`
	NetEdge  float64 `json:"net_edge"`
}

func (s *OrderbookArb) Evaluate(ctx context.Context, snaps []models.Snapshot, bankroll float64) []models.Opportunity {
	if s.Books == nil {
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

func (s *OrderbookArb) evaluateOne(snap models.Snapshot, bankroll float64) (models.Opportunity, bool) {
	if !arbGate(snap) {
		return models.Opportunity{}, false
	}
	yesBook, _, okYes := s.Books.CleanBook(snap.YesTokenID)
	noBook, _, okNo := s.Books.CleanBook(snap.NoTokenID)
	if !okYes || !okNo {
		return models.Opportunity{}, false
	}
	var yesBid, yesAsk, noBid, noAsk float64
	if lvl, ok := yesBook.BestBid(); ok {
		yesBid = lvl.Price
	}
	if lvl, ok := yesBook.BestAsk(); ok {
		yesAsk = lvl.Price
	}
	if lvl, ok := noBook.BestBid(); ok {
		noBid = lvl.Price
	}
	if lvl, ok := noBook.BestAsk(); ok {
		noAsk = lvl.Price
	}

	var mode string
	var quoteSum, rawEdge float64
	var fillable float64
	switch {
	case yesBid > 0 && noBid > 0 && yesBid+noBid > 1.005:
		mode = "sell-sell"
		quoteSum = yesBid + noBid
		rawEdge = quoteSum - 1
		fillable = math.Min(fillableNear(yesBook.Bids, yesBid), fillableNear(noBook.Bids, noBid))
	case yesAsk > 0 && noAsk > 0 && yesAsk+noAsk < 0.995:
		mode = "buy-buy"
		quoteSum = yesAsk + noAsk
		rawEdge = 1 - quoteSum
		fillable = math.Min(fillableNear(yesBook.Asks, yesAsk), fillableNear(noBook.Asks, noAsk))
	default:
		return models.Opportunity{}, false
	}

	slip := pricing.Slippage(arbProbeSize, snap.Liquidity)
	netEdge := rawEdge - 2*slip - pricing.FeeRate*rawEdge
	if netEdge <= 0 || fillable <= 0 {
		return models.Opportunity{}, false
	}
	size := capSize(math.Min(fillable, 0.02*bankroll), bankroll, snap.Liquidity)
	score := math.Round(math.Min(netEdge*2000, 100))
	return models.Opportunity{
		Strategy:   NameOrderbookArb,
		Venue:      snap.Venue,
		MarketID:   snap.ID,
		Question:   snap.Question,
		Side:       models.SideYes,
		EntryPrice: snap.YesPrice,
		SizeUSD:    size,
		RawEdge:    rawEdge,
		NetEV:      netEdge,
		Score:      score,
		Confidence: models.ConfidenceHigh,
		RiskTier:   "LOW",
		RiskNote:   "risk-free only if both legs fill; quote may vanish before execution",
		Signals: marshalSignals(map[string]any{
			"orderbook_arb": orderbookArbSignal{
				Mode:     mode,
				YesQuote: quoteSum - noQuoteFor(mode, noBid, noAsk),
				NoQuote:  noQuoteFor(mode, noBid, noAsk),
				Fillable: fillable,
				NetEdge:  netEdge,
			},
		}),
	}, true
}

func noQuoteFor(mode string, noBid, noAsk float64) float64 {
	if mode == "sell-sell" {
		return noBid
	}
	return noAsk
}

// fillableNear sums liquidity within 2% of the best quote.
func fillableNear(levels []models.Level, best float64) float64 {
	var total float64
	for _, lvl := range levels {
		if math.Abs(lvl.Price-best) <= 0.02*best {
			total += lvl.Price * lvl.Size
		}
	}
	return total
}
