package parlay

import (
	"sort"
	"strings"
)

// Sharp books in preference order. Their devigged lines anchor the true
// probability; recreational books only contribute via the median
// fallback.
var sharpBooks = []string{"pinnacle", "matchbook", "betonlineag", "betfair_ex_uk"}

const (
	SharpHigh = "high"
	SharpMed  = "med"
	SharpLow  = "low"
)

func isSharpBook(key string) bool {
	for _, book := range sharpBooks {
		if key == book {
			return true
		}
	}
	return false
}

func isLayMarket(key string) bool {
	return strings.HasSuffix(key, "_lay")
}

// SharpProb estimates an outcome's true probability from per-book
// devigged probabilities. Agreement across sharps earns high confidence;
// a lone median over the field is the low-confidence fallback.
func SharpProb(byBook map[string]float64) (prob float64, source, confidence string, ok bool) {
	var sharps []float64
	for _, book := range sharpBooks {
		if p, present := byBook[book]; present && p > 0 && p < 1 {
			sharps = append(sharps, p)
		}
	}
	if len(sharps) > 0 {
		var sum, lo, hi float64
		lo, hi = sharps[0], sharps[0]
		for _, p := range sharps {
			sum += p
			if p < lo {
				lo = p
			}
			if p > hi {
				hi = p
			}
		}
		avg := sum / float64(len(sharps))
		conf := SharpMed
		if len(sharps) >= 2 && hi-lo < 0.05 {
			conf = SharpHigh
		}
		return avg, "sharp", conf, true
	}

	var all []float64
	for book, p := range byBook {
		if isLayMarket(book) || p <= 0 || p >= 1 {
			continue
		}
		all = append(all, p)
	}
	if len(all) < 3 {
		return 0, "", "", false
	}
	sort.Float64s(all)
	mid := len(all) / 2
	median := all[mid]
	if len(all)%2 == 0 {
		median = (all[mid-1] + all[mid]) / 2
	}
	return median, "median", SharpLow, true
}

// BestOdds picks the best available price with an outlier guard: a quote
// far above the field is treated as stale or a trap and the second-best
// is used instead.
func BestOdds(byBook map[string]float64) (odds float64, book string, sharp bool, ok bool) {
	type quote struct {
		book string
		odds float64
	}
	var quotes []quote
	for key, o := range byBook {
		if isLayMarket(key) || o <= 1 {
			continue
		}
		quotes = append(quotes, quote{book: key, odds: o})
	}
	if len(quotes) == 0 {
		return 0, "", false, false
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].odds > quotes[j].odds })
	best := quotes[0]
	if len(quotes) == 1 {
		return best.odds, best.book, isSharpBook(best.book), true
	}
	second := quotes[1]

	useSecond := best.odds > 1.15*second.odds
	if !useSecond {
		within := 0
		for _, q := range quotes {
			if q.odds >= best.odds*0.85 {
				within++
			}
		}
		useSecond = within < 2
	}
	if useSecond {
		best = second
	}
	return best.odds, best.book, isSharpBook(best.book), true
}
