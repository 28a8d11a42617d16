package parlay

import (
	"fmt"
	"sort"
	"time"

	"edgescout/internal/client/oddsapi"
)

// Bet types a leg can carry.
const (
	BetMoneyline = "moneyline"
	BetSpread    = "spread"
	BetTotal     = "total"
)

// Leg is one priced outcome eligible for an accumulator.
type Leg struct {
	EventID         string  `json:"event_id"`
	SportKey        string  `json:"sport_key"`
	BetType         string  `json:"bet_type"`
	Label           string  `json:"label"`
	Line            float64 `json:"line,omitempty"`
	TrueProb        float64 `json:"true_prob"`
	SharpSource     string  `json:"sharp_source"`
	SharpConfidence string  `json:"sharp_confidence"`
	BestOdds        float64 `json:"best_odds"`
	BestBook        string  `json:"best_book"`
	BookIsSharp     bool    `json:"book_is_sharp"`
	LegEV           float64 `json:"leg_ev"`
	DataQuality     string  `json:"data_quality"`
	Commence        time.Time
}

var oddsBands = map[string][2]float64{
	BetMoneyline: {1.20, 4.50},
	BetSpread:    {1.40, 3.50},
	BetTotal:     {1.40, 3.00},
}

const (
	legEVMin = 0.02
	legEVMax = 0.10
)

// cleanEvents applies data hygiene: drop started events, events with too
// few books, and events already decided (a <=1.10 quote somewhere).
func cleanEvents(events []oddsapi.Event, now time.Time) []oddsapi.Event {
	var out []oddsapi.Event
	for _, ev := range events {
		if !ev.CommenceTime.After(now) || len(ev.Bookmakers) < 3 {
			continue
		}
		decided := false
		for _, bm := range ev.Bookmakers {
			for _, market := range bm.Markets {
				for _, outcome := range market.Outcomes {
					if outcome.Price <= 1.10 && outcome.Price > 0 {
						decided = true
					}
				}
			}
		}
		if decided {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// BuildLegs devigs every bookmaker market in the events and keeps
// outcomes that pass the sharp-match and EV filters.
func BuildLegs(events []oddsapi.Event, now time.Time) []Leg {
	var legs []Leg
	for _, ev := range cleanEvents(events, now) {
		for _, candidate := range eventOutcomes(ev) {
			leg, ok := buildLeg(ev, candidate)
			if ok {
				legs = append(legs, leg)
			}
		}
	}
	sort.Slice(legs, func(i, j int) bool { return legs[i].LegEV > legs[j].LegEV })
	return legs
}

type outcomeKey struct {
	betType string
	label   string
	line    float64
}

type outcomeQuotes struct {
	key outcomeKey
	// per-book devigged probability and raw best odds
	probs map[string]float64
	odds  map[string]float64
}

func betTypeFor(marketKey string) (string, bool) {
	switch marketKey {
	case oddsapi.MarketH2H:
		return BetMoneyline, true
	case oddsapi.MarketSpreads:
		return BetSpread, true
	case oddsapi.MarketTotals:
		return BetTotal, true
	default:
		return "", false
	}
}

// eventOutcomes groups each bookmaker's quotes per outcome, devigging
// within each book's own market.
func eventOutcomes(ev oddsapi.Event) []*outcomeQuotes {
	byKey := map[outcomeKey]*outcomeQuotes{}
	var order []outcomeKey
	for _, bm := range ev.Bookmakers {
		for _, market := range bm.Markets {
			betType, ok := betTypeFor(market.Key)
			if !ok || len(market.Outcomes) < 2 {
				continue
			}
			odds := make([]float64, len(market.Outcomes))
			for i, outcome := range market.Outcomes {
				odds[i] = outcome.Price
			}
			probs := Devig(odds)
			if probs == nil {
				continue
			}
			for i, outcome := range market.Outcomes {
				key := outcomeKey{betType: betType, label: outcome.Name, line: outcome.Point}
				oq := byKey[key]
				if oq == nil {
					oq = &outcomeQuotes{
						key:   key,
						probs: map[string]float64{},
						odds:  map[string]float64{},
					}
					byKey[key] = oq
					order = append(order, key)
				}
				oq.probs[bm.Key] = probs[i]
				oq.odds[bm.Key] = outcome.Price
			}
		}
	}
	out := make([]*outcomeQuotes, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return out
}

func buildLeg(ev oddsapi.Event, oq *outcomeQuotes) (Leg, bool) {
	trueProb, source, confidence, ok := SharpProb(oq.probs)
	if !ok {
		return Leg{}, false
	}
	bestOdds, bestBook, bookIsSharp, ok := BestOdds(oq.odds)
	if !ok {
		return Leg{}, false
	}
	band := oddsBands[oq.key.betType]
	if bestOdds < band[0] || bestOdds > band[1] {
		return Leg{}, false
	}
	probLo, probHi := 0.15, 0.85
	if oq.key.betType != BetMoneyline {
		probLo, probHi = 0.10, 0.90
	}
	if trueProb < probLo || trueProb > probHi {
		return Leg{}, false
	}
	legEV := trueProb*bestOdds - 1
	if legEV < legEVMin || legEV > legEVMax {
		return Leg{}, false
	}
	quality := "B"
	switch {
	case confidence == SharpHigh && len(oq.probs) >= 6:
		quality = "A"
	case confidence == SharpLow:
		quality = "C"
	}
	label := oq.key.label
	if oq.key.line != 0 {
		label = fmt.Sprintf("%s %.1f", oq.key.label, oq.key.line)
	}
	return Leg{
		EventID:         ev.ID,
		SportKey:        ev.SportKey,
		BetType:         oq.key.betType,
		Label:           label,
		Line:            oq.key.line,
		TrueProb:        trueProb,
		SharpSource:     source,
		SharpConfidence: confidence,
		BestOdds:        bestOdds,
		BestBook:        bestBook,
		BookIsSharp:     bookIsSharp,
		LegEV:           legEV,
		DataQuality:     quality,
		Commence:        ev.CommenceTime,
	}, true
}
