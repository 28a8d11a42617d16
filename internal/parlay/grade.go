package parlay

import "math"

// Grade tiers.
const (
	GradeS = "S"
	GradeA = "A"
	GradeB = "B"
	GradeC = "C"
)

// gradeScore sums bounded contributions and clamps into [0,100]. The EV
// band rewards the sweet spot and punishes too-good-to-be-true edges.
func gradeScore(p *Parlay) float64 {
	var score float64

	// EV, max 35. Past 0.10 the penalty grows, hitting -30 beyond 0.25.
	switch {
	case p.EV <= 0.10:
		score += p.EV / 0.10 * 35
	case p.EV <= 0.25:
		score += 35 - (p.EV-0.10)/0.15*65
	default:
		score += -30
	}

	// Data quality, max 20.
	var quality float64
	for _, leg := range p.Legs {
		switch leg.DataQuality {
		case "A":
			quality += 20
		case "B":
			quality += 12
		default:
			quality += 5
		}
	}
	score += quality / float64(len(p.Legs))

	// Correlation, max 15: the less the legs move together the better.
	score += math.Max(0, 15*(1-p.AvgCorrelation/0.15))

	// Leg count: 3 is the sweet spot.
	switch len(p.Legs) {
	case 3:
		score += 10
	case 2, 4:
		score += 6
	default:
		score += 3
	}

	// Cross-sport spread.
	sports := map[string]bool{}
	for _, leg := range p.Legs {
		sports[sportFamily(leg.SportKey)] = true
	}
	switch {
	case len(sports) >= 3:
		score += 10
	case len(sports) == 2:
		score += 6
	}

	// Sharp confidence: two HIGH legs is the best signal.
	high := 0
	for _, leg := range p.Legs {
		if leg.SharpConfidence == SharpHigh {
			high++
		}
	}
	switch {
	case high >= 2:
		score += 5
	case high == 1:
		score += 3
	}

	// Bet-type diversity, max 5.
	types := map[string]bool{}
	for _, leg := range p.Legs {
		types[leg.BetType] = true
	}
	score += math.Min(float64(len(types))*2.5, 5)

	return math.Max(0, math.Min(100, score))
}

func gradeTier(score float64) string {
	switch {
	case score >= 80:
		return GradeS
	case score >= 60:
		return GradeA
	case score >= 40:
		return GradeB
	default:
		return GradeC
	}
}

// KellyStake is quarter-Kelly on the combined line, capped at 3% of
// bankroll.
func KellyStake(odds, prob, bankroll float64) float64 {
	if odds <= 1 || prob <= 0 || prob >= 1 || bankroll <= 0 {
		return 0
	}
	b := odds - 1
	f := (b*prob - (1 - prob)) / b / 4
	if f <= 0 {
		return 0
	}
	return math.Min(f, 0.03) * bankroll
}
