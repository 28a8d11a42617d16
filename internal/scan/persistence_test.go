package scan

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"edgescout/internal/models"
)

func trackedOpp(score float64) models.Opportunity {
	return models.Opportunity{
		Strategy: "MOMENTUM",
		MarketID: "m1",
		Side:     models.SideYes,
		Score:    score,
	}
}

func TestTrackerBoostsPersistentEdges(t *testing.T) {
	tr := NewTracker(0, "", nil)
	now := time.Now().UTC()

	// First sighting: tagged new, no boost.
	opps := []models.Opportunity{trackedOpp(50)}
	tr.Apply(opps, now)
	if opps[0].PersistenceTag != TagNew || opps[0].Score != 50 {
		t.Fatalf("first scan: tag %q score %v", opps[0].PersistenceTag, opps[0].Score)
	}

	// Second sighting: no tag yet.
	opps = []models.Opportunity{trackedOpp(50)}
	tr.Apply(opps, now.Add(time.Minute))
	if opps[0].PersistenceTag != "" || opps[0].Score != 50 {
		t.Fatalf("second scan: tag %q score %v", opps[0].PersistenceTag, opps[0].Score)
	}

	// Third sighting: 8% boost.
	opps = []models.Opportunity{trackedOpp(50)}
	tr.Apply(opps, now.Add(2*time.Minute))
	if opps[0].PersistenceTag != TagBoost8 || math.Abs(opps[0].Score-54) > 1e-9 {
		t.Fatalf("third scan: tag %q score %v", opps[0].PersistenceTag, opps[0].Score)
	}

	// Fifth sighting: 15% boost.
	tr.Apply([]models.Opportunity{trackedOpp(50)}, now.Add(3*time.Minute))
	opps = []models.Opportunity{trackedOpp(50)}
	tr.Apply(opps, now.Add(4*time.Minute))
	if opps[0].PersistenceTag != TagBoost15 || math.Abs(opps[0].Score-57.5) > 1e-9 {
		t.Fatalf("fifth scan: tag %q score %v", opps[0].PersistenceTag, opps[0].Score)
	}
}

func TestTrackerBoostCapsAtHundred(t *testing.T) {
	tr := NewTracker(0, "", nil)
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		opps := []models.Opportunity{trackedOpp(98)}
		tr.Apply(opps, now.Add(time.Duration(i)*time.Minute))
		if opps[0].Score > 100 {
			t.Fatalf("scan %d: score %v exceeds 100", i, opps[0].Score)
		}
	}
}

func TestTrackerExpiresSilentEntries(t *testing.T) {
	tr := NewTracker(5*time.Minute, "", nil)
	now := time.Now().UTC()
	tr.Apply([]models.Opportunity{trackedOpp(50)}, now)
	tr.Apply([]models.Opportunity{trackedOpp(50)}, now.Add(time.Minute))
	if got := tr.Count("m1|MOMENTUM|YES"); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}

	// Silence past the TTL resets the streak.
	opps := []models.Opportunity{trackedOpp(50)}
	tr.Apply(opps, now.Add(10*time.Minute))
	if opps[0].PersistenceTag != TagNew {
		t.Fatalf("post-expiry tag %q, want %q", opps[0].PersistenceTag, TagNew)
	}
	if got := tr.Count("m1|MOMENTUM|YES"); got != 1 {
		t.Fatalf("post-expiry count = %d, want 1", got)
	}
}

func TestTrackerSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal-persistence.json")
	now := time.Now().UTC()

	tr := NewTracker(time.Hour, path, nil)
	tr.Apply([]models.Opportunity{trackedOpp(50)}, now)
	tr.Apply([]models.Opportunity{trackedOpp(50)}, now.Add(time.Minute))

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("side file missing: %v", err)
	}
	var state struct {
		SavedAt time.Time `json:"savedAt"`
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("side file unreadable: %v", err)
	}
	if state.SavedAt.IsZero() {
		t.Fatal("side file must carry savedAt")
	}

	// A fresh tracker picks the streak back up from disk.
	reborn := NewTracker(time.Hour, path, nil)
	if got := reborn.Count("m1|MOMENTUM|YES"); got != 2 {
		t.Fatalf("restored count = %d, want 2", got)
	}
	opps := []models.Opportunity{trackedOpp(50)}
	reborn.Apply(opps, now.Add(2*time.Minute))
	if opps[0].PersistenceTag != TagBoost8 {
		t.Fatalf("post-restart tag = %q, want %q", opps[0].PersistenceTag, TagBoost8)
	}
}

func TestTrackerKeysBySide(t *testing.T) {
	tr := NewTracker(0, "", nil)
	now := time.Now().UTC()
	yes := trackedOpp(50)
	no := trackedOpp(50)
	no.Side = models.SideNo
	tr.Apply([]models.Opportunity{yes, no}, now)
	if tr.Count(yes.DedupKey()) != 1 || tr.Count(no.DedupKey()) != 1 {
		t.Fatal("sides must track independently")
	}
}
