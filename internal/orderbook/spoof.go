package orderbook

import (
	"math"
	"time"

	"edgescout/internal/models"
)

const (
	SideBid = "BID"
	SideAsk = "ASK"

	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
)

// SuspiciousOrder is a large resting order that fails the persistence
// check against older snapshots.
type SuspiciousOrder struct {
	Side       string
	Price      float64
	Size       float64
	Confidence string
}

// SpoofReport summarises the persistence check for one book.
type SpoofReport struct {
	Suspicious []SuspiciousOrder
	HighCount  int
	MedCount   int
}

// Score weights HIGH-confidence hits double.
func (r SpoofReport) Score() float64 {
	return float64(2*r.HighCount + r.MedCount)
}

// Classify checks every large order in the latest book against older
// snapshots. An order is suspicious when at least two older snapshots
// exist and it matches fewer than 30% of them.
func Classify(latest *models.Orderbook, history []*models.Orderbook, now time.Time) SpoofReport {
	var report SpoofReport
	if latest == nil {
		return report
	}
	var older []*models.Orderbook
	for _, snap := range history {
		if snap == latest {
			continue
		}
		if now.Sub(snap.FetchedAt) > minMatchAge {
			older = append(older, snap)
		}
	}
	h := len(older)
	if h < 2 {
		return report
	}
	check := func(side string, levels []models.Level, pick func(*models.Orderbook) []models.Level) {
		for _, lvl := range levels {
			if lvl.Size < spoofMinSize {
				continue
			}
			persisted := 0
			for _, snap := range older {
				if hasMatch(pick(snap), lvl) {
					persisted++
				}
			}
			if float64(persisted) >= 0.3*float64(h) {
				continue
			}
			conf := ConfidenceMedium
			if persisted == 0 {
				conf = ConfidenceHigh
				report.HighCount++
			} else {
				report.MedCount++
			}
			report.Suspicious = append(report.Suspicious, SuspiciousOrder{
				Side:       side,
				Price:      lvl.Price,
				Size:       lvl.Size,
				Confidence: conf,
			})
		}
	}
	check(SideBid, latest.Bids, func(b *models.Orderbook) []models.Level { return b.Bids })
	check(SideAsk, latest.Asks, func(b *models.Orderbook) []models.Level { return b.Asks })
	return report
}

func hasMatch(levels []models.Level, target models.Level) bool {
	for _, lvl := range levels {
		if math.Abs(lvl.Price-target.Price) < priceMatchTol &&
			math.Abs(lvl.Size-target.Size)/target.Size < sizeMatchTol {
			return true
		}
	}
	return false
}

// CleanBook removes suspicious orders so downstream consumers never act
// on phantom liquidity.
func CleanBook(book *models.Orderbook, report SpoofReport) *models.Orderbook {
	if book == nil || len(report.Suspicious) == 0 {
		return book
	}
	flagged := func(side string, lvl models.Level) bool {
		for _, s := range report.Suspicious {
			if s.Side == side && s.Price == lvl.Price && s.Size == lvl.Size {
				return true
			}
		}
		return false
	}
	out := &models.Orderbook{TokenID: book.TokenID, FetchedAt: book.FetchedAt}
	for _, lvl := range book.Bids {
		if !flagged(SideBid, lvl) {
			out.Bids = append(out.Bids, lvl)
		}
	}
	for _, lvl := range book.Asks {
		if !flagged(SideAsk, lvl) {
			out.Asks = append(out.Asks, lvl)
		}
	}
	return out
}
