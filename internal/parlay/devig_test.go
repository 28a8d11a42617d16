package parlay

import (
	"math"
	"testing"
)

func TestMultiplicativeDevig(t *testing.T) {
	probs := MultiplicativeDevig([]float64{1.90, 1.95})
	if probs == nil {
		t.Fatal("expected probabilities")
	}
	sum := probs[0] + probs[1]
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("probabilities sum to %v, want 1", sum)
	}
	if probs[0] <= probs[1] {
		t.Fatal("shorter odds must get the higher probability")
	}

	if MultiplicativeDevig([]float64{1.90, 0.95}) != nil {
		t.Fatal("odds at or below 1 must be rejected")
	}
}

func TestShinZReference(t *testing.T) {
	z, ok := ShinZ([]float64{2.10, 3.40, 3.80})
	if !ok {
		t.Fatal("expected a Shin solution")
	}
	if math.Abs(z-0.587) > 0.01 {
		t.Fatalf("z = %v, want ~0.587", z)
	}
}

func TestShinDevigProperties(t *testing.T) {
	odds := []float64{2.10, 3.40, 3.80}
	probs := ShinDevig(odds)
	if len(probs) != 3 {
		t.Fatalf("got %d probabilities", len(probs))
	}
	var sum float64
	for _, p := range probs {
		sum += p
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Fatalf("probabilities sum to %v, want 1 within 1e-6", sum)
	}
	// Monotone in raw 1/odds order: shortest odds keeps the highest prob.
	if !(probs[0] > probs[1] && probs[1] > probs[2]) {
		t.Fatalf("probabilities not monotone: %v", probs)
	}
}

func TestDevigDispatch(t *testing.T) {
	twoWay := Devig([]float64{1.90, 1.95})
	if len(twoWay) != 2 {
		t.Fatalf("2-way devig returned %v", twoWay)
	}
	threeWay := Devig([]float64{2.10, 3.40, 3.80})
	multiplicative := MultiplicativeDevig([]float64{2.10, 3.40, 3.80})
	// Shin shades the longshot harder than multiplicative scaling.
	if threeWay[2] >= multiplicative[2] {
		t.Fatalf("Shin longshot %v should be below multiplicative %v", threeWay[2], multiplicative[2])
	}
}

func TestShinDevigUniformBook(t *testing.T) {
	probs := ShinDevig([]float64{3.0, 3.0, 3.0})
	if probs == nil {
		t.Fatal("expected probabilities")
	}
	var sum float64
	for _, p := range probs {
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("uniform book sums to %v", sum)
	}
	for _, p := range probs {
		if math.Abs(p-1.0/3) > 1e-9 {
			t.Fatalf("uniform book should devig to thirds: %v", probs)
		}
	}
}
