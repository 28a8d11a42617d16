package orderbook

import (
	"testing"
	"time"

	"edgescout/internal/models"
)

func TestStoreRingCap(t *testing.T) {
	s := NewStore()
	now := time.Now().UTC()
	for i := 0; i < 15; i++ {
		s.Record(&models.Orderbook{
			TokenID:   "tok",
			Bids:      []models.Level{{Price: 0.4, Size: float64(i)}},
			FetchedAt: now.Add(time.Duration(i) * time.Second),
		})
	}
	history := s.History("tok")
	if len(history) != maxSnapshots {
		t.Fatalf("ring holds %d snapshots, want %d", len(history), maxSnapshots)
	}
	// Oldest retained is the sixth write.
	if history[0].Bids[0].Size != 5 {
		t.Fatalf("oldest retained = %v, want size 5", history[0].Bids[0].Size)
	}
	latest, ok := s.Latest("tok")
	if !ok || latest.Bids[0].Size != 14 {
		t.Fatalf("latest = %+v ok=%v", latest, ok)
	}
}

func TestStoreEvictsOldSnapshots(t *testing.T) {
	s := NewStore()
	s.Record(&models.Orderbook{
		TokenID:   "tok",
		FetchedAt: time.Now().Add(-retention - time.Second),
	})
	s.Record(&models.Orderbook{
		TokenID:   "tok",
		FetchedAt: time.Now().UTC(),
	})
	if got := len(s.History("tok")); got != 1 {
		t.Fatalf("history length = %d, want 1 after retention eviction", got)
	}
}

func TestStoreStaleLatest(t *testing.T) {
	s := NewStore()
	s.Record(&models.Orderbook{
		TokenID:   "tok",
		FetchedAt: time.Now().Add(-staleAfter - time.Second),
	})
	if _, ok := s.Latest("tok"); ok {
		t.Fatal("stale snapshot must not be served as latest")
	}
	if _, ok := s.Latest("unknown"); ok {
		t.Fatal("unknown token must not be served")
	}
}

func TestStoreSimplifiesDeepBooks(t *testing.T) {
	deep := &models.Orderbook{TokenID: "tok", FetchedAt: time.Now().UTC()}
	for i := 0; i < 40; i++ {
		deep.Bids = append(deep.Bids, models.Level{Price: 0.5 - float64(i)*0.01, Size: 100})
		deep.Asks = append(deep.Asks, models.Level{Price: 0.5 + float64(i)*0.01, Size: 100})
	}
	s := NewStore()
	s.Record(deep)
	latest, ok := s.Latest("tok")
	if !ok {
		t.Fatal("expected a recorded book")
	}
	if len(latest.Bids) != maxLevels || len(latest.Asks) != maxLevels {
		t.Fatalf("levels = %d/%d, want %d each side", len(latest.Bids), len(latest.Asks), maxLevels)
	}
}
