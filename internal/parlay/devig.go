package parlay

import "math"

// MultiplicativeDevig normalises implied probabilities to sum to 1.
// Used directly for 2-way markets and as the Shin fallback.
func MultiplicativeDevig(odds []float64) []float64 {
	var sum float64
	implied := make([]float64, len(odds))
	for i, o := range odds {
		if o <= 1 {
			return nil
		}
		implied[i] = 1 / o
		sum += implied[i]
	}
	if sum == 0 {
		return nil
	}
	for i := range implied {
		implied[i] /= sum
	}
	return implied
}

// ShinZ solves for the insider-trading proportion z of a 3-way market.
// Returns ok=false when the solution leaves (0,1), in which case callers
// fall back to multiplicative devigging.
func ShinZ(odds []float64) (float64, bool) {
	n := float64(len(odds))
	var s float64
	for _, o := range odds {
		if o <= 1 {
			return 0, false
		}
		s += 1 / o
	}
	if s == n {
		return 0, false
	}
	disc := n*n + 4*(1-n)*s*s
	if disc < 0 {
		return 0, false
	}
	z := (math.Sqrt(disc) - n) / (2 * (s - n))
	if z <= 0 || z >= 1 {
		return 0, false
	}
	return z, true
}

// ShinDevig removes the vig from a 3-way market under the Shin model,
// which attributes the overround to informed money and so shades
// longshots harder than multiplicative scaling does.
func ShinDevig(odds []float64) []float64 {
	z, ok := ShinZ(odds)
	if !ok {
		return MultiplicativeDevig(odds)
	}
	var s float64
	for _, o := range odds {
		s += 1 / o
	}
	probs := make([]float64, len(odds))
	var total float64
	for i, o := range odds {
		pi := 1 / o
		probs[i] = (math.Sqrt(z*z+4*(1-z)*pi*pi/s) - z) / (2 * (1 - z))
		total += probs[i]
	}
	if total <= 0 {
		return MultiplicativeDevig(odds)
	}
	for i := range probs {
		probs[i] /= total
	}
	return probs
}

// Devig dispatches on market arity: Shin for 3-way, multiplicative
// otherwise.
func Devig(odds []float64) []float64 {
	if len(odds) == 3 {
		return ShinDevig(odds)
	}
	return MultiplicativeDevig(odds)
}
