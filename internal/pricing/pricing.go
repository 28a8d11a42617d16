package pricing

import "math"

// FeeRate is charged on the winning payout only.
const (
	FeeRate      = 0.02
	SlippageBase = 0.003
	KellyFrac    = 0.25
	MaxExposure  = 0.05
)

// Slippage estimates execution cost for a stake against resting
// liquidity. Zero liquidity gets the worst-case flat estimate.
func Slippage(sizeUSD, liquidity float64) float64 {
	if liquidity <= 0 {
		return 0.009
	}
	return SlippageBase + 0.5*(sizeUSD/liquidity)
}

// NetEV is the fee- and slippage-adjusted expected value per unit stake
// of buying at price p when the true win probability is q.
func NetEV(q, p, slip float64) float64 {
	return q*(1-p)*(1-FeeRate) - (1-q)*p - slip
}

// BreakevenProb is the win probability at which NetEV is zero.
func BreakevenProb(p, slip float64) float64 {
	return (p + slip) / ((1-p)*(1-FeeRate) + p)
}

// KellyFraction is the fee-adjusted Kelly bet fraction, clamped at 0.
func KellyFraction(q, p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	b := (1/p - 1) * (1 - FeeRate)
	if b <= 0 {
		return 0
	}
	f := (b*q - (1 - q)) / b
	if f < 0 {
		return 0
	}
	return f
}

// Stake sizes a position: fractional Kelly, capped by max exposure and by
// a share of resting liquidity.
func Stake(q, p, bankroll, liquidity float64) float64 {
	f := KellyFraction(q, p)
	if f == 0 || bankroll <= 0 {
		return 0
	}
	stake := f * KellyFrac * bankroll
	stake = math.Min(stake, MaxExposure*bankroll)
	if liquidity > 0 {
		stake = math.Min(stake, 0.05*liquidity)
	}
	if stake < 0 {
		return 0
	}
	return stake
}
