package calibration

import "sort"

// CurvePoint is one step of the isotonic map: market price x maps to
// historically observed YES rate y.
type CurvePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsotonicMap is a non-decreasing calibration curve produced by PAVA.
type IsotonicMap struct {
	Points []CurvePoint `json:"points"`
}

// Interpolate evaluates the curve at p, linearly between adjacent points
// and clamped at the ends.
func (m *IsotonicMap) Interpolate(p float64) float64 {
	pts := m.Points
	if len(pts) == 0 {
		return p
	}
	if p <= pts[0].X {
		return pts[0].Y
	}
	if p >= pts[len(pts)-1].X {
		return pts[len(pts)-1].Y
	}
	for i := 1; i < len(pts); i++ {
		if p <= pts[i].X {
			lo, hi := pts[i-1], pts[i]
			if hi.X == lo.X {
				return hi.Y
			}
			t := (p - lo.X) / (hi.X - lo.X)
			return lo.Y + t*(hi.Y-lo.Y)
		}
	}
	return pts[len(pts)-1].Y
}

type trainSample struct {
	mid     float64
	rate    float64
	samples int
}

// trainPAVA runs Pool-Adjacent-Violators over bucket rates. Only buckets
// with at least minBucketSamples samples participate; returns nil until
// three such buckets exist.
func trainPAVA(samples []trainSample) *IsotonicMap {
	if len(samples) < 3 {
		return nil
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].mid < samples[j].mid })

	type block struct {
		sumX, sumY float64
		weight     float64
	}
	blocks := make([]block, 0, len(samples))
	for _, s := range samples {
		w := float64(s.samples)
		blocks = append(blocks, block{sumX: s.mid * w, sumY: s.rate * w, weight: w})
		// Merge backwards while monotonicity is violated.
		for len(blocks) > 1 {
			last := blocks[len(blocks)-1]
			prev := blocks[len(blocks)-2]
			if prev.sumY/prev.weight <= last.sumY/last.weight {
				break
			}
			merged := block{
				sumX:   prev.sumX + last.sumX,
				sumY:   prev.sumY + last.sumY,
				weight: prev.weight + last.weight,
			}
			blocks = append(blocks[:len(blocks)-2], merged)
		}
	}
	out := &IsotonicMap{Points: make([]CurvePoint, 0, len(blocks))}
	for _, b := range blocks {
		out.Points = append(out.Points, CurvePoint{X: b.sumX / b.weight, Y: b.sumY / b.weight})
	}
	return out
}
