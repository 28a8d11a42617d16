package prob

import (
	"math"
	"testing"
	"time"

	"edgescout/internal/models"
)

func TestLogitLogisticRoundtrip(t *testing.T) {
	for _, p := range []float64{0.001, 0.05, 0.25, 0.5, 0.75, 0.95, 0.999} {
		if got := Logistic(Logit(p)); math.Abs(got-p) > 1e-12 {
			t.Fatalf("roundtrip(%v) = %v", p, got)
		}
	}
	if Logit(0) != Logit(0.001) {
		t.Fatal("logit must clamp at the floor")
	}
	if Logit(1) != Logit(0.999) {
		t.Fatal("logit must clamp at the ceiling")
	}
}

// Reference arithmetic: market 0.55 with orderbook evidence +0.12 at
// weight 0.30 and calibration evidence +0.08 at weight 0.35, damper 0.90.
func TestPosteriorFusionArithmetic(t *testing.T) {
	market := 0.55
	sum := 0.12*0.30 + 0.08*0.35
	if math.Abs(sum-0.064) > 1e-12 {
		t.Fatalf("weighted sum = %v, want 0.064", sum)
	}
	posterior := Logistic(Logit(market) + 0.90*sum)
	if math.Abs(posterior-0.5642) > 5e-4 {
		t.Fatalf("posterior = %v, want ~0.5642", posterior)
	}
	edge := posterior - market
	if math.Abs(edge-0.0142) > 5e-4 {
		t.Fatalf("edge = %v, want ~0.0142", edge)
	}
	if got := tier(edge, 2, true); got != TierMedium {
		t.Fatalf("tier = %q, want %q", got, TierMedium)
	}
}

func TestTier(t *testing.T) {
	cases := []struct {
		name   string
		edge   float64
		active int
		agree  bool
		want   string
	}{
		{"big edge, agreement", 0.02, 3, true, TierHigh},
		{"big edge, disagreement", 0.02, 3, false, TierMedium},
		{"medium edge", 0.01, 2, true, TierMedium},
		{"tiny edge", 0.003, 4, true, TierLow},
		{"no signals", 0.05, 0, true, TierLow},
		{"negative edge counts by magnitude", -0.02, 3, true, TierHigh},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tier(tc.edge, tc.active, tc.agree); got != tc.want {
				t.Fatalf("tier(%v, %d, %v) = %q, want %q", tc.edge, tc.active, tc.agree, got, tc.want)
			}
		})
	}
}

func TestCredibleIntervalBounds(t *testing.T) {
	lower, upper := credibleInterval(0.5, 3, true, 100)
	if lower >= 0.5 || upper <= 0.5 {
		t.Fatalf("interval [%v, %v] must bracket the posterior", lower, upper)
	}
	if lower < 0.01 || upper > 0.99 {
		t.Fatalf("interval [%v, %v] outside clamp range", lower, upper)
	}

	// More agreeing signals tighten the interval.
	looseLo, looseHi := credibleInterval(0.5, 1, false, 0)
	tightLo, tightHi := credibleInterval(0.5, 5, true, 500)
	if tightHi-tightLo >= looseHi-looseLo {
		t.Fatalf("more evidence should tighten: tight %v, loose %v", tightHi-tightLo, looseHi-looseLo)
	}

	// Extreme posteriors stay clamped and ordered.
	lo, hi := credibleInterval(0.995, 1, false, 0)
	if lo > hi || hi > 0.99 {
		t.Fatalf("extreme interval [%v, %v] invalid", lo, hi)
	}
}

func TestEfficiencyDamperRange(t *testing.T) {
	cases := []struct {
		name     string
		volume   float64
		liq      float64
		question string
	}{
		{"dead market", 0, 0, "Will X happen?"},
		{"huge sports market", 5_000_000, 1_000_000, "Will the Lakers beat the Celtics in the NBA finals?"},
		{"niche crypto market", 3000, 1500, "Will Bitcoin close above 100k?"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := EfficiencyDamper(tc.volume, tc.liq, tc.question)
			if d < 0.78 || d > 1.0 {
				t.Fatalf("damper %v outside [0.78, 1.0]", d)
			}
		})
	}
	// A liquid sports book must be damped harder than a dead market.
	dead := EfficiencyDamper(0, 0, "Will X happen?")
	sports := EfficiencyDamper(5_000_000, 1_000_000, "Will the Lakers beat the Celtics?")
	if sports >= dead {
		t.Fatalf("sports damper %v should be below dead-market damper %v", sports, dead)
	}
}

func TestOrderbookImbalanceSkipsThinBands(t *testing.T) {
	book := &models.Orderbook{
		TokenID: "tok",
		Bids:    []models.Level{{Price: 0.49, Size: 50}},
		Asks:    []models.Level{{Price: 0.51, Size: 40}},
	}
	llr, _ := orderbookImbalance(book, 0.50)
	if llr != 0 {
		t.Fatalf("thin book should contribute nothing, got %v", llr)
	}

	book = &models.Orderbook{
		TokenID: "tok",
		Bids:    []models.Level{{Price: 0.49, Size: 4000}},
		Asks:    []models.Level{{Price: 0.51, Size: 1000}},
	}
	llr, _ = orderbookImbalance(book, 0.50)
	if llr <= 0 {
		t.Fatalf("bid-heavy book should be positive, got %v", llr)
	}
	if llr > 0.5 {
		t.Fatalf("band LLR must be clamped at 0.5, got %v", llr)
	}
}

func TestTimeDecayGates(t *testing.T) {
	now := time.Now().UTC()
	soon := now.Add(24 * time.Hour)

	if llr, _ := timeDecay(&soon, 0.60, now); llr != 0 {
		t.Fatalf("price below 0.65 must not decay, got %v", llr)
	}
	if llr, _ := timeDecay(nil, 0.80, now); llr != 0 {
		t.Fatalf("missing end date must not decay, got %v", llr)
	}
	past := now.Add(-time.Hour)
	if llr, _ := timeDecay(&past, 0.80, now); llr != 0 {
		t.Fatalf("expired market must not decay, got %v", llr)
	}

	llr, _ := timeDecay(&soon, 0.80, now)
	want := math.Exp(-1.0/3) * 0.2
	if math.Abs(llr-want) > 1e-9 {
		t.Fatalf("one-day decay = %v, want %v", llr, want)
	}
}

type fakeCalibration struct {
	curve       Curve
	rate        float64
	samples     int
	resolutions int
	perf        map[string]SignalPerformance
}

func (f *fakeCalibration) Curve() Curve          { return f.curve }
func (f *fakeCalibration) TotalSamples() int     { return f.samples }
func (f *fakeCalibration) TotalResolutions() int { return f.resolutions }

func (f *fakeCalibration) BucketRate(p float64) (float64, int, bool) {
	return f.rate, f.samples, f.samples > 0
}
func (f *fakeCalibration) Performance(name string) (SignalPerformance, bool) {
	perf, ok := f.perf[name]
	return perf, ok
}

func TestAdaptiveWeight(t *testing.T) {
	e := NewEstimator(&fakeCalibration{perf: map[string]SignalPerformance{
		"cold":   {Accuracy: 0.9, Total: 5},
		"sharp":  {Accuracy: 0.8, Total: 50},
		"dull":   {Accuracy: 0.2, Total: 50},
		"fading": {Accuracy: 0.8, Total: 50, DecayFlag: true, DecayFactor: 0.5},
		"hot":    {Accuracy: 0.8, Total: 50, RollingAccuracy: 0.85, RollingLen: 12},
	}})

	if w := e.adaptiveWeight("cold", 0.30); w != 0.30 {
		t.Fatalf("below 20 samples weight stays default, got %v", w)
	}
	if w := e.adaptiveWeight("sharp", 0.30); math.Abs(w-0.30*1.6) > 1e-9 {
		t.Fatalf("sharp weight = %v, want %v", w, 0.30*1.6)
	}
	if w := e.adaptiveWeight("dull", 0.30); math.Abs(w-0.30*0.4) > 1e-9 {
		t.Fatalf("dull weight floors at 0.3 factor? got %v, want %v", w, 0.30*0.4)
	}
	if w := e.adaptiveWeight("fading", 0.30); math.Abs(w-0.30*1.6*0.5) > 1e-9 {
		t.Fatalf("fading weight = %v, want %v", w, 0.30*1.6*0.5)
	}
	if w := e.adaptiveWeight("hot", 0.30); math.Abs(w-0.30*1.6*1.15) > 1e-9 {
		t.Fatalf("hot weight = %v, want %v", w, 0.30*1.6*1.15)
	}
}

func TestEstimateConsensusEvidence(t *testing.T) {
	e := NewEstimator(nil)
	snap := models.Snapshot{
		ID:       "m1",
		Question: "Will the home side win?",
		YesPrice: 0.50,
	}

	est := e.Estimate(Inputs{Snapshot: snap, Consensus: &Consensus{Prob: 0.58, Books: 12}})
	if est.ActiveSignals != 1 {
		t.Fatalf("active signals = %d, want 1", est.ActiveSignals)
	}
	if est.PosteriorProb <= snap.YesPrice {
		t.Fatalf("bullish consensus should lift the posterior, got %v", est.PosteriorProb)
	}

	// A single book contributes nothing.
	est = e.Estimate(Inputs{Snapshot: snap, Consensus: &Consensus{Prob: 0.58, Books: 1}})
	if est.ActiveSignals != 0 {
		t.Fatalf("single-book consensus must be ignored, got %d signals", est.ActiveSignals)
	}
}

func TestEstimateNewsGate(t *testing.T) {
	e := NewEstimator(nil)
	snap := models.Snapshot{ID: "m1", Question: "q", YesPrice: 0.50}

	weak := &NewsSignal{AvgSentiment: 0.3, HeadlineCount: 8, LLR: 0.1}
	if est := e.Estimate(Inputs{Snapshot: snap, News: weak}); est.ActiveSignals != 0 {
		t.Fatalf("weak sentiment must be gated, got %d signals", est.ActiveSignals)
	}

	strong := &NewsSignal{AvgSentiment: 0.7, HeadlineCount: 8, LLR: 0.1}
	if est := e.Estimate(Inputs{Snapshot: snap, News: strong}); est.ActiveSignals != 1 {
		t.Fatalf("strong sentiment should count, got %d signals", est.ActiveSignals)
	}
}
