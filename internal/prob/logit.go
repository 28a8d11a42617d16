package prob

import "math"

const (
	probFloor = 0.001
	probCeil  = 0.999
)

// ClampProb bounds p away from 0 and 1 so log-odds stay finite.
func ClampProb(p float64) float64 {
	if p < probFloor {
		return probFloor
	}
	if p > probCeil {
		return probCeil
	}
	return p
}

// Logit maps a probability to log-odds.
func Logit(p float64) float64 {
	p = ClampProb(p)
	return math.Log(p / (1 - p))
}

// Logistic maps log-odds back to a probability.
func Logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
