package parlay

import (
	"math"
	"strings"
)

var sameLeagueRho = map[string]float64{
	"basketball":       0.12,
	"americanfootball": 0.08,
	"soccer":           0.10,
	"mma":              0.05,
	"baseball":         0.06,
	"icehockey":        0.10,
}

var sameSportRho = map[string]float64{
	"basketball": 0.04,
	"soccer":     0.03,
}

const (
	defaultSameLeagueRho = 0.08
	defaultSameSportRho  = 0.03
	crossSportRho        = 0.01
)

// sportFamily strips the league suffix from an odds-feed sport key
// (basketball_nba -> basketball).
func sportFamily(sportKey string) string {
	if i := strings.Index(sportKey, "_"); i > 0 {
		return sportKey[:i]
	}
	return sportKey
}

// Correlation estimates rho between two legs. Same event is 1 and
// forbidden upstream; everything else decays with distance.
func Correlation(a, b Leg) float64 {
	if a.EventID == b.EventID {
		return 1.0
	}
	if a.SportKey == b.SportKey {
		if rho, ok := sameLeagueRho[sportFamily(a.SportKey)]; ok {
			return rho
		}
		return defaultSameLeagueRho
	}
	if sportFamily(a.SportKey) == sportFamily(b.SportKey) {
		if rho, ok := sameSportRho[sportFamily(a.SportKey)]; ok {
			return rho
		}
		return defaultSameSportRho
	}
	return crossSportRho
}

// CombinedProb multiplies leg probabilities then subtracts a pairwise
// correlation penalty, floored at 0.001.
func CombinedProb(legs []Leg) (prob float64, avgRho float64) {
	prob = 1
	for _, leg := range legs {
		prob *= leg.TrueProb
	}
	var rhoSum float64
	pairs := 0
	for i := 0; i < len(legs); i++ {
		for j := i + 1; j < len(legs); j++ {
			rho := Correlation(legs[i], legs[j])
			rhoSum += rho
			pairs++
			pi, pj := legs[i].TrueProb, legs[j].TrueProb
			prob -= rho * 0.8 * math.Sqrt(pi*(1-pi)*pj*(1-pj))
		}
	}
	if prob < 0.001 {
		prob = 0.001
	}
	if pairs > 0 {
		avgRho = rhoSum / float64(pairs)
	}
	return prob, avgRho
}
