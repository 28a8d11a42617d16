package calibration

import (
	"math"
	"testing"
)

func TestTrainPAVAMergesViolatingPair(t *testing.T) {
	samples := []trainSample{
		{mid: 0.1, rate: 0.05, samples: 10},
		{mid: 0.2, rate: 0.18, samples: 10},
		{mid: 0.3, rate: 0.15, samples: 10},
		{mid: 0.4, rate: 0.40, samples: 10},
	}
	m := trainPAVA(samples)
	if m == nil {
		t.Fatal("expected a trained map")
	}
	want := []CurvePoint{
		{X: 0.1, Y: 0.05},
		{X: 0.25, Y: 0.165},
		{X: 0.4, Y: 0.40},
	}
	if len(m.Points) != len(want) {
		t.Fatalf("got %d points, want %d: %+v", len(m.Points), len(want), m.Points)
	}
	for i, p := range m.Points {
		if math.Abs(p.X-want[i].X) > 1e-9 || math.Abs(p.Y-want[i].Y) > 1e-9 {
			t.Fatalf("point %d = %+v, want %+v", i, p, want[i])
		}
	}
}

func TestTrainPAVAWeightedMerge(t *testing.T) {
	// Unequal bucket sizes: the merged block is the weighted mean.
	samples := []trainSample{
		{mid: 0.1, rate: 0.05, samples: 10},
		{mid: 0.2, rate: 0.30, samples: 30},
		{mid: 0.3, rate: 0.10, samples: 10},
	}
	m := trainPAVA(samples)
	if m == nil {
		t.Fatal("expected a trained map")
	}
	// Blocks 2 and 3 merge: rate (0.30*30 + 0.10*10)/40 = 0.25,
	// mid (0.2*30 + 0.3*10)/40 = 0.225.
	if len(m.Points) != 2 {
		t.Fatalf("got %d points, want 2: %+v", len(m.Points), m.Points)
	}
	if math.Abs(m.Points[1].X-0.225) > 1e-9 || math.Abs(m.Points[1].Y-0.25) > 1e-9 {
		t.Fatalf("merged point = %+v, want {0.225 0.25}", m.Points[1])
	}
}

func TestTrainPAVARequiresThreeBuckets(t *testing.T) {
	samples := []trainSample{
		{mid: 0.1, rate: 0.05, samples: 10},
		{mid: 0.2, rate: 0.18, samples: 10},
	}
	if m := trainPAVA(samples); m != nil {
		t.Fatalf("expected nil map below three buckets, got %+v", m)
	}
}

func TestInterpolate(t *testing.T) {
	m := &IsotonicMap{Points: []CurvePoint{
		{X: 0.1, Y: 0.05},
		{X: 0.25, Y: 0.165},
		{X: 0.4, Y: 0.40},
	}}
	cases := []struct {
		p, want float64
	}{
		{0.05, 0.05},    // clamp left
		{0.1, 0.05},     // on point
		{0.175, 0.1075}, // midway first segment
		{0.4, 0.40},     // on point
		{0.9, 0.40},     // clamp right
	}
	for _, tc := range cases {
		if got := m.Interpolate(tc.p); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("Interpolate(%v) = %v, want %v", tc.p, got, tc.want)
		}
	}

	empty := &IsotonicMap{}
	if got := empty.Interpolate(0.3); got != 0.3 {
		t.Fatalf("empty map should be identity, got %v", got)
	}
}

func TestInterpolateMonotone(t *testing.T) {
	m := trainPAVA([]trainSample{
		{mid: 0.1, rate: 0.3, samples: 10},
		{mid: 0.3, rate: 0.1, samples: 10},
		{mid: 0.5, rate: 0.6, samples: 10},
		{mid: 0.7, rate: 0.5, samples: 10},
		{mid: 0.9, rate: 0.9, samples: 10},
	})
	if m == nil {
		t.Fatal("expected a trained map")
	}
	prev := -1.0
	for p := 0.0; p <= 1.0; p += 0.01 {
		y := m.Interpolate(p)
		if y < prev-1e-12 {
			t.Fatalf("curve not monotone at p=%v: %v < %v", p, y, prev)
		}
		prev = y
	}
}
