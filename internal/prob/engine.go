package prob

import (
	"math"
	"time"

	"edgescout/internal/models"
)

// Confidence tiers of a posterior estimate.
const (
	TierHigh   = "HIGH"
	TierMedium = "MEDIUM"
	TierLow    = "LOW"
)

// Curve is a monotone calibration map from market price to observed rate.
type Curve interface {
	Interpolate(p float64) float64
}

// SignalPerformance is the calibration store's view of one signal's
// historical accuracy.
type SignalPerformance struct {
	Accuracy        float64
	Total           int
	DecayFlag       bool
	DecayFactor     float64
	RollingAccuracy float64
	RollingLen      int
}

// CalibrationView is the read-only contract the estimator needs from the
// calibration store. Estimation must see a consistent snapshot, so the
// store serves these behind its own lock.
type CalibrationView interface {
	Curve() Curve
	BucketRate(p float64) (rate float64, samples int, ok bool)
	TotalSamples() int
	TotalResolutions() int
	Performance(name string) (SignalPerformance, bool)
}

// Consensus is the cross-bookmaker probability for a matched event.
type Consensus struct {
	Prob  float64
	Books int
}

// NewsSignal is the collaborator-provided sentiment evidence; LLR is
// already in log-odds units.
type NewsSignal struct {
	AvgSentiment  float64
	HeadlineCount int
	Confidence    float64
	LLR           float64
}

// Inputs bundles everything the estimator may consult for one market.
type Inputs struct {
	Snapshot  models.Snapshot
	CleanBook *models.Orderbook
	History   []models.PricePoint
	News      *NewsSignal
	Consensus *Consensus
	Now       time.Time
}

// Estimate is the posterior with its evidence breakdown.
type Estimate struct {
	PosteriorProb  float64     `json:"posterior_prob"`
	MarketProb     float64     `json:"market_prob"`
	Edge           float64     `json:"edge"`
	ConfidenceTier string      `json:"confidence_tier"`
	Lower          float64     `json:"lower"`
	Upper          float64     `json:"upper"`
	ActiveSignals  int         `json:"active_signals"`
	SignalsAgree   bool        `json:"signals_agree"`
	Damper         float64     `json:"damper"`
	Contributions  []SignalLLR `json:"contributions"`
}

// Estimator fuses signal evidence into a posterior in log-odds space.
type Estimator struct {
	calibration CalibrationView
}

func NewEstimator(calibration CalibrationView) *Estimator {
	return &Estimator{calibration: calibration}
}

// Estimate computes the posterior for one market. Signals with zero LLR
// are omitted; everything combines additively in log-odds space, shrunk
// by the market-efficiency damper.
func (e *Estimator) Estimate(in Inputs) *Estimate {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	market := ClampProb(in.Snapshot.YesPrice)
	var contributions []SignalLLR

	add := func(name string, raw float64, weight float64, data any) {
		if raw == 0 {
			return
		}
		w := e.adaptiveWeight(name, weight)
		contributions = append(contributions, SignalLLR{
			Name:      name,
			RawLLR:    raw,
			Weight:    w,
			ScaledLLR: raw * w,
			Data:      data,
		})
	}

	llr, data := orderbookImbalance(in.CleanBook, market)
	add(SignalOrderbook, llr, defaultWeights[SignalOrderbook], data)

	llr, data = priceStability(in.History, market)
	add(SignalStability, llr, defaultWeights[SignalStability], data)

	llr, data = timeDecay(in.Snapshot.EndDate, market, now)
	add(SignalTimeDecay, llr, defaultWeights[SignalTimeDecay], data)

	if calLLR, sampleWeight, calData := historicalCalibration(e.calibration, market); calLLR != 0 {
		add(SignalCalibration, calLLR, defaultWeights[SignalCalibration]*sampleWeight, calData)
	}

	llr, data = depthProfile(in.CleanBook, market)
	add(SignalDepth, llr, defaultWeights[SignalDepth], data)

	if in.News != nil && in.News.HeadlineCount > 0 && math.Abs(in.News.AvgSentiment) > 0.5 {
		add(SignalNews, in.News.LLR, defaultWeights[SignalNews], *in.News)
	}

	if in.Consensus != nil && in.Consensus.Books > 1 {
		consensusLLR := Logit(in.Consensus.Prob) - Logit(market)
		weight := math.Min(float64(in.Consensus.Books)/8, 1) * defaultWeights[SignalBookmaker]
		add(SignalBookmaker, consensusLLR, weight, *in.Consensus)
	}

	damper := EfficiencyDamper(in.Snapshot.Volume24h, in.Snapshot.Liquidity, in.Snapshot.Question)

	var sum float64
	positive, negative := 0, 0
	for _, c := range contributions {
		sum += c.ScaledLLR
		if c.RawLLR > 0 {
			positive++
		} else if c.RawLLR < 0 {
			negative++
		}
	}
	posterior := Logistic(Logit(market) + damper*sum)

	active := len(contributions)
	agree := active > 0 && (positive == 0 || negative == 0)
	edge := posterior - market

	totalResolutions := 0
	if e.calibration != nil {
		totalResolutions = e.calibration.TotalResolutions()
	}
	lower, upper := credibleInterval(posterior, active, agree, totalResolutions)

	return &Estimate{
		PosteriorProb:  posterior,
		MarketProb:     market,
		Edge:           edge,
		ConfidenceTier: tier(edge, active, agree),
		Lower:          lower,
		Upper:          upper,
		ActiveSignals:  active,
		SignalsAgree:   agree,
		Damper:         damper,
		Contributions:  contributions,
	}
}

// adaptiveWeight scales the default by calibration-derived accuracy, decay
// penalty, and a hot-streak bonus.
func (e *Estimator) adaptiveWeight(name string, def float64) float64 {
	if e.calibration == nil {
		return def
	}
	perf, ok := e.calibration.Performance(name)
	if !ok || perf.Total < 20 {
		return def
	}
	w := def * math.Max(0.3, 2*perf.Accuracy)
	if perf.DecayFlag {
		w *= math.Max(0.4, perf.DecayFactor)
	}
	if perf.RollingLen >= 10 && perf.RollingAccuracy > 0.70 {
		w *= 1.15
	}
	return w
}

// credibleInterval treats the posterior as a Beta with effective sample
// size grown by signal agreement, using the normal approximation.
func credibleInterval(posterior float64, activeSignals int, agree bool, totalResolutions int) (float64, float64) {
	perSignal := 8.0
	if agree {
		perSignal = 15.0
	}
	effectiveN := 5 + float64(activeSignals)*perSignal + 0.1*float64(totalResolutions)
	alpha := math.Max(posterior*effectiveN, 0.5)
	beta := math.Max((1-posterior)*effectiveN, 0.5)
	variance := alpha * beta / ((alpha + beta) * (alpha + beta) * (alpha + beta + 1))
	sigma := math.Sqrt(variance)
	lower := clamp(posterior-1.96*sigma, 0.01, 0.99)
	upper := clamp(posterior+1.96*sigma, 0.01, 0.99)
	if lower > posterior {
		lower = clamp(posterior, 0.01, 0.99)
	}
	if upper < posterior {
		upper = clamp(posterior, 0.01, 0.99)
	}
	return lower, upper
}

func tier(edge float64, activeSignals int, agree bool) string {
	abs := math.Abs(edge)
	switch {
	case abs >= 0.015 && activeSignals >= 3 && agree:
		return TierHigh
	case abs >= 0.008 && activeSignals >= 2:
		return TierMedium
	default:
		return TierLow
	}
}
