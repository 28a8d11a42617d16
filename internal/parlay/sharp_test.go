package parlay

import (
	"math"
	"testing"
)

func TestSharpProb(t *testing.T) {
	// Two agreeing sharps: high confidence, averaged. Recreational
	// quotes are ignored once a sharp anchors the line.
	prob, source, conf, ok := SharpProb(map[string]float64{
		"pinnacle":   0.55,
		"matchbook":  0.57,
		"draftkings": 0.70,
	})
	if !ok || source != "sharp" || conf != SharpHigh {
		t.Fatalf("got %v/%s/%s/%v", prob, source, conf, ok)
	}
	if math.Abs(prob-0.56) > 1e-12 {
		t.Fatalf("sharp average = %v, want 0.56", prob)
	}

	// Disagreeing sharps drop to med confidence.
	_, _, conf, ok = SharpProb(map[string]float64{
		"pinnacle":  0.50,
		"matchbook": 0.60,
	})
	if !ok || conf != SharpMed {
		t.Fatalf("disagreeing sharps conf = %q", conf)
	}

	// No sharps: median fallback over at least three books.
	prob, source, conf, ok = SharpProb(map[string]float64{
		"draftkings": 0.50,
		"fanduel":    0.54,
		"caesars":    0.60,
	})
	if !ok || source != "median" || conf != SharpLow {
		t.Fatalf("fallback got %v/%s/%s/%v", prob, source, conf, ok)
	}
	if prob != 0.54 {
		t.Fatalf("median = %v, want 0.54", prob)
	}

	// Two recreational books are not enough for an estimate.
	if _, _, _, ok := SharpProb(map[string]float64{"a": 0.5, "b": 0.6}); ok {
		t.Fatal("two recreational books must not produce an estimate")
	}
}

func TestSharpProbSkipsLayMarkets(t *testing.T) {
	_, _, _, ok := SharpProb(map[string]float64{
		"betfair_ex_uk_lay": 0.50,
		"draftkings":        0.54,
		"fanduel":           0.56,
	})
	if ok {
		t.Fatal("lay quotes must not count toward the median floor")
	}
}

func TestBestOddsOutlierGuard(t *testing.T) {
	// Best quote far above the field: use second best.
	odds, book, _, ok := BestOdds(map[string]float64{
		"stale":      3.00,
		"draftkings": 2.00,
		"fanduel":    1.98,
	})
	if !ok || book == "stale" {
		t.Fatalf("outlier guard failed: %v from %q", odds, book)
	}

	// Tight field keeps the true best and flags the sharp source.
	odds, book, sharp, ok := BestOdds(map[string]float64{
		"pinnacle":   2.05,
		"draftkings": 2.00,
		"fanduel":    1.98,
	})
	if !ok || book != "pinnacle" || odds != 2.05 || !sharp {
		t.Fatalf("tight field best = %v from %q sharp=%v", odds, book, sharp)
	}

	if _, _, _, ok := BestOdds(map[string]float64{"betfair_ex_uk_lay": 2.1}); ok {
		t.Fatal("lay-only books must not quote")
	}
}
