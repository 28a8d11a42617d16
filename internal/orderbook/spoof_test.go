package orderbook

import (
	"testing"
	"time"

	"edgescout/internal/models"
)

func bookAt(token string, at time.Time, bids, asks []models.Level) *models.Orderbook {
	return &models.Orderbook{TokenID: token, Bids: bids, Asks: asks, FetchedAt: at}
}

func TestClassifyFlagsVanishingWall(t *testing.T) {
	now := time.Now().UTC()
	steady := []models.Level{{Price: 0.40, Size: 800}}
	var history []*models.Orderbook
	for i := 3; i >= 1; i-- {
		history = append(history, bookAt("tok", now.Add(-time.Duration(i)*20*time.Second), steady, nil))
	}
	latest := bookAt("tok", now, []models.Level{
		{Price: 0.42, Size: 15000},
		{Price: 0.40, Size: 800},
	}, nil)
	history = append(history, latest)

	report := Classify(latest, history, now)
	if report.HighCount != 1 || report.MedCount != 0 {
		t.Fatalf("counts = %d high / %d med, want 1/0", report.HighCount, report.MedCount)
	}
	if report.Score() != 2 {
		t.Fatalf("score = %v, want 2", report.Score())
	}
	if len(report.Suspicious) != 1 {
		t.Fatalf("suspicious = %+v, want one entry", report.Suspicious)
	}
	s := report.Suspicious[0]
	if s.Side != SideBid || s.Price != 0.42 || s.Confidence != ConfidenceHigh {
		t.Fatalf("unexpected suspicious order %+v", s)
	}
}

func TestClassifyMediumWhenPartiallyPersisted(t *testing.T) {
	now := time.Now().UTC()
	wall := models.Level{Price: 0.42, Size: 15000}
	history := []*models.Orderbook{
		bookAt("tok", now.Add(-60*time.Second), []models.Level{wall}, nil),
		bookAt("tok", now.Add(-40*time.Second), nil, nil),
		bookAt("tok", now.Add(-20*time.Second), nil, nil),
		bookAt("tok", now.Add(-10*time.Second), nil, nil),
	}
	latest := bookAt("tok", now, []models.Level{wall}, nil)
	history = append(history, latest)

	// Persisted in 1 of 4 older books: 1 < 0.3*4 so still suspicious,
	// but not HIGH.
	report := Classify(latest, history, now)
	if report.HighCount != 0 || report.MedCount != 1 {
		t.Fatalf("counts = %d high / %d med, want 0/1", report.HighCount, report.MedCount)
	}
	if report.Score() != 1 {
		t.Fatalf("score = %v, want 1", report.Score())
	}
}

func TestClassifyNeedsTwoOlderSnapshots(t *testing.T) {
	now := time.Now().UTC()
	latest := bookAt("tok", now, []models.Level{{Price: 0.42, Size: 15000}}, nil)
	history := []*models.Orderbook{
		bookAt("tok", now.Add(-30*time.Second), nil, nil),
		latest,
	}
	report := Classify(latest, history, now)
	if len(report.Suspicious) != 0 {
		t.Fatalf("one older snapshot should not trigger: %+v", report.Suspicious)
	}
}

func TestClassifyIgnoresRecentSnapshots(t *testing.T) {
	now := time.Now().UTC()
	latest := bookAt("tok", now, []models.Level{{Price: 0.42, Size: 15000}}, nil)
	// All history is inside the 5s match-age window.
	history := []*models.Orderbook{
		bookAt("tok", now.Add(-2*time.Second), nil, nil),
		bookAt("tok", now.Add(-1*time.Second), nil, nil),
		latest,
	}
	report := Classify(latest, history, now)
	if len(report.Suspicious) != 0 {
		t.Fatalf("snapshots younger than the match age must not count: %+v", report.Suspicious)
	}
}

func TestClassifySkipsSmallOrders(t *testing.T) {
	now := time.Now().UTC()
	var history []*models.Orderbook
	for i := 3; i >= 1; i-- {
		history = append(history, bookAt("tok", now.Add(-time.Duration(i)*20*time.Second), nil, nil))
	}
	latest := bookAt("tok", now, []models.Level{{Price: 0.42, Size: 4999}}, nil)
	history = append(history, latest)
	report := Classify(latest, history, now)
	if len(report.Suspicious) != 0 {
		t.Fatalf("orders below the size floor must be ignored: %+v", report.Suspicious)
	}
}

func TestCleanBookRemovesFlaggedLevels(t *testing.T) {
	now := time.Now().UTC()
	book := bookAt("tok", now, []models.Level{
		{Price: 0.42, Size: 15000},
		{Price: 0.40, Size: 800},
	}, []models.Level{
		{Price: 0.45, Size: 600},
	})
	report := SpoofReport{
		Suspicious: []SuspiciousOrder{{Side: SideBid, Price: 0.42, Size: 15000, Confidence: ConfidenceHigh}},
		HighCount:  1,
	}
	clean := CleanBook(book, report)
	if len(clean.Bids) != 1 || clean.Bids[0].Price != 0.40 {
		t.Fatalf("bids after clean = %+v", clean.Bids)
	}
	if len(clean.Asks) != 1 {
		t.Fatalf("asks must be untouched, got %+v", clean.Asks)
	}

	// Empty report passes the book through unchanged.
	if got := CleanBook(book, SpoofReport{}); got != book {
		t.Fatal("clean of an empty report should return the same book")
	}
}
