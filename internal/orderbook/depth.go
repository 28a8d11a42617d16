package orderbook

import (
	"math"

	"edgescout/internal/models"
)

const thinMarketFloor = 3000

// DepthAssessment measures how much real liquidity sits near the current
// price and how trustworthy microstructure signals are on this book.
type DepthAssessment struct {
	NearVolume       float64
	OrderCount       int
	DepthScore       float64
	DiversityScore   float64
	ConfidenceFactor float64
	Thin             bool
}

// AssessDepth scores the clean book within a ±5% band of mid.
func AssessDepth(book *models.Orderbook, mid float64) DepthAssessment {
	var out DepthAssessment
	if book == nil || mid <= 0 {
		out.Thin = true
		return out
	}
	band := mid * 0.05
	scan := func(levels []models.Level) {
		for _, lvl := range levels {
			if math.Abs(lvl.Price-mid) <= band {
				out.NearVolume += lvl.Size
				out.OrderCount++
			}
		}
	}
	scan(book.Bids)
	scan(book.Asks)

	out.DepthScore = math.Min(out.NearVolume/50000, 1)
	if out.OrderCount < 5 {
		out.DiversityScore = math.Min(float64(out.OrderCount)/10, 1)
	} else {
		out.DiversityScore = math.Min(float64(out.OrderCount)/20, 1)
	}
	out.ConfidenceFactor = 0.6*out.DepthScore + 0.4*out.DiversityScore
	out.Thin = out.NearVolume < thinMarketFloor
	return out
}

// Wall is a clustered resting-size concentration at a 1-cent level.
type Wall struct {
	Side  string
	Price float64
	Size  float64
}

// FindWalls clusters resting orders into 1-cent levels and returns
// clusters at or above minSize.
func FindWalls(book *models.Orderbook, minSize float64) []Wall {
	if book == nil {
		return nil
	}
	var walls []Wall
	cluster := func(side string, levels []models.Level) {
		buckets := map[float64]float64{}
		for _, lvl := range levels {
			key := math.Floor(lvl.Price*100) / 100
			buckets[key] += lvl.Size
		}
		for price, size := range buckets {
			if size >= minSize {
				walls = append(walls, Wall{Side: side, Price: price, Size: size})
			}
		}
	}
	cluster(SideBid, book.Bids)
	cluster(SideAsk, book.Asks)
	return walls
}
