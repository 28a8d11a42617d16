package prob

import (
	"math"
	"strings"
)

// categoryTrust estimates how efficient each market category tends to be:
// heavily-traded sports lines leave little edge, niche categories more.
var categoryTrust = []struct {
	keywords []string
	trust    float64
}{
	{[]string{"nba", "nfl", "mlb", "nhl", "premier league", "champions league", "super bowl", "world cup", "ufc", " vs ", "beat ", "win the game", "match"}, 0.88},
	{[]string{"election", "president", "senate", "congress", "nominee", "primary", "governor", "parliament", "vote"}, 0.78},
	{[]string{"fed", "rate cut", "rate hike", "inflation", "cpi", "gdp", "recession", "unemployment"}, 0.72},
	{[]string{"bitcoin", "btc", "ethereum", "eth", "crypto", "solana", "token"}, 0.58},
	{[]string{"oscar", "grammy", "emmy", "box office", "album", "spotify"}, 0.65},
}

const defaultCategoryTrust = 0.62

// DetectCategoryTrust keyword-matches the question text.
func DetectCategoryTrust(question string) float64 {
	q := strings.ToLower(question)
	for _, cat := range categoryTrust {
		for _, kw := range cat.keywords {
			if strings.Contains(q, kw) {
				return cat.trust
			}
		}
	}
	return defaultCategoryTrust
}

// EfficiencyDamper shrinks the evidence sum on liquid, well-arbitraged
// markets where the posted price already embeds most information.
func EfficiencyDamper(volume24h, liquidity float64, question string) float64 {
	var volEff float64
	if volume24h > 1 {
		volEff += 0.55 * math.Min(math.Log10(volume24h)/6, 1)
	}
	if liquidity > 1 {
		volEff += 0.45 * math.Min(math.Log10(liquidity)/5.5, 1)
	}
	damper := 1 - volEff*DetectCategoryTrust(question)*0.25
	return clamp(damper, 0.78, 1.0)
}
