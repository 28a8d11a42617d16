package prob

import (
	"math"
	"time"

	"edgescout/internal/models"
	"edgescout/internal/orderbook"
)

// Signal names shared with the calibration store.
const (
	SignalOrderbook   = "orderbook_imbalance"
	SignalStability   = "price_stability"
	SignalTimeDecay   = "time_decay"
	SignalCalibration = "historical_calibration"
	SignalDepth       = "depth_profile"
	SignalNews        = "news_sentiment"
	SignalBookmaker   = "bookmaker_consensus"
)

// Default base weights before calibration-derived adjustment.
var defaultWeights = map[string]float64{
	SignalOrderbook:   0.30,
	SignalStability:   0.20,
	SignalTimeDecay:   0.15,
	SignalCalibration: 0.35,
	SignalDepth:       0.15,
	SignalNews:        0.25,
	SignalBookmaker:   0.40,
}

// SignalLLR is one named evidence contribution in log-odds space.
type SignalLLR struct {
	Name      string  `json:"name"`
	RawLLR    float64 `json:"raw_llr"`
	Weight    float64 `json:"weight"`
	ScaledLLR float64 `json:"scaled_llr"`
	Data      any     `json:"data,omitempty"`
}

type imbalanceData struct {
	BandLLRs  []float64 `json:"band_llrs"`
	UsedBands int       `json:"used_bands"`
}

// orderbookImbalance measures distance-weighted bid/ask pressure in three
// concentric bands around the market price.
func orderbookImbalance(book *models.Orderbook, marketPrice float64) (float64, any) {
	if book == nil {
		return 0, nil
	}
	bands := []struct {
		span   float64
		weight float64
	}{
		{0.03, 0.50},
		{0.08, 0.35},
		{0.15, 0.15},
	}
	var weightedSum, weightTotal float64
	data := imbalanceData{}
	for _, band := range bands {
		var bidW, askW float64
		for _, lvl := range book.Bids {
			d := math.Abs(lvl.Price - marketPrice)
			if d <= band.span {
				bidW += lvl.Size * (1 - d/band.span)
			}
		}
		for _, lvl := range book.Asks {
			d := math.Abs(lvl.Price - marketPrice)
			if d <= band.span {
				askW += lvl.Size * (1 - d/band.span)
			}
		}
		if bidW+askW < 200 || bidW <= 0 || askW <= 0 {
			continue
		}
		llr := clamp(math.Log(bidW/askW)*0.15, -0.5, 0.5)
		weightedSum += llr * band.weight
		weightTotal += band.weight
		data.BandLLRs = append(data.BandLLRs, llr)
		data.UsedBands++
	}
	if weightTotal == 0 {
		return 0, nil
	}
	return weightedSum / weightTotal, data
}

type stabilityData struct {
	VolShort   float64 `json:"vol_short"`
	VolPrimary float64 `json:"vol_primary"`
	VolLong    float64 `json:"vol_long"`
	Converging bool    `json:"converging"`
}

// priceStability turns multi-timeframe volatility into a push toward or
// away from the prevailing price.
func priceStability(history []models.PricePoint, marketPrice float64) (float64, any) {
	if len(history) < 12 {
		return 0, nil
	}
	volShort := volatility(tail(history, 5))
	volPrimary := volatility(tail(history, 12))
	volLong := volatility(tail(history, 24))
	mean := meanPrice(tail(history, 12))

	converging := volLong > 0 && (volShort-volLong)/volLong < -0.20
	var llr float64
	switch {
	case volPrimary < 0.01 && mean >= 0.65:
		llr = 0.15
		if converging {
			llr *= 1.3
		}
	case volPrimary < 0.01 && mean <= 0.35:
		llr = -0.15
		if converging {
			llr *= 1.3
		}
	case volPrimary < 0.025:
		if mean >= 0.65 {
			llr = 0.06
		} else if mean <= 0.35 {
			llr = -0.06
		}
	case volPrimary > 0.05:
		// Volatile markets argue against the prevailing direction.
		if marketPrice >= 0.5 {
			llr = -clamp(volPrimary*2, 0, 0.25)
		} else {
			llr = clamp(volPrimary*2, 0, 0.25)
		}
	}
	return llr, stabilityData{
		VolShort:   volShort,
		VolPrimary: volPrimary,
		VolLong:    volLong,
		Converging: converging,
	}
}

func tail(history []models.PricePoint, n int) []models.PricePoint {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func volatility(points []models.PricePoint) float64 {
	if len(points) < 2 {
		return 0
	}
	mean := meanPrice(points)
	var sum float64
	for _, p := range points {
		d := p.Price - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(points)-1))
}

func meanPrice(points []models.PricePoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.Price
	}
	return sum / float64(len(points))
}

type timeDecayData struct {
	DaysLeft float64 `json:"days_left"`
	Factor   float64 `json:"factor"`
}

// timeDecay pushes toward the prevailing side as expiry approaches, but
// only for markets already priced confidently.
func timeDecay(endDate *time.Time, marketPrice float64, now time.Time) (float64, any) {
	if endDate == nil || marketPrice < 0.65 {
		return 0, nil
	}
	daysLeft := endDate.Sub(now).Hours() / 24
	if daysLeft <= 0 {
		return 0, nil
	}
	factor := math.Exp(-daysLeft / 3)
	llr := factor * 0.2
	return llr, timeDecayData{DaysLeft: daysLeft, Factor: factor}
}

type calibrationData struct {
	Calibrated float64 `json:"calibrated"`
	Source     string  `json:"source"`
	Weight     float64 `json:"sample_weight"`
}

// historicalCalibration compares the market price to what similarly-priced
// markets have historically resolved at.
func historicalCalibration(view CalibrationView, marketPrice float64) (float64, float64, any) {
	if view == nil {
		return 0, 0, nil
	}
	if curve := view.Curve(); curve != nil {
		calibrated := curve.Interpolate(marketPrice)
		weight := math.Min(float64(view.TotalSamples())/200, 1)
		llr := Logit(calibrated) - Logit(marketPrice)
		return llr, weight, calibrationData{Calibrated: calibrated, Source: "isotonic", Weight: weight}
	}
	rate, samples, ok := view.BucketRate(marketPrice)
	if !ok || samples == 0 {
		return 0, 0, nil
	}
	weight := math.Min(float64(samples)/80, 1)
	llr := Logit(rate) - Logit(marketPrice)
	return llr, weight, calibrationData{Calibrated: rate, Source: "bucket", Weight: weight}
}

type depthData struct {
	WallPrice float64 `json:"wall_price"`
	WallSize  float64 `json:"wall_size"`
}

// depthProfile looks for an unopposed near-price bid wall.
func depthProfile(book *models.Orderbook, marketPrice float64) (float64, any) {
	if book == nil {
		return 0, nil
	}
	walls := orderbook.FindWalls(book, 5000)
	var bestBid *orderbook.Wall
	hasOpposing := false
	for i := range walls {
		w := walls[i]
		if math.Abs(w.Price-marketPrice) > 0.05 {
			continue
		}
		if w.Side == orderbook.SideBid {
			if bestBid == nil || w.Size > bestBid.Size {
				bestBid = &walls[i]
			}
		} else {
			hasOpposing = true
		}
	}
	if bestBid == nil || hasOpposing {
		return 0, nil
	}
	llr := 0.12 * math.Min(bestBid.Size/20000, 1)
	return llr, depthData{WallPrice: bestBid.Price, WallSize: bestBid.Size}
}
