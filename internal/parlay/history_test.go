package parlay

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func historyLeg(event string, odds float64, commence time.Time) Leg {
	leg := nflLeg(event, odds, 0.55)
	leg.Commence = commence
	return leg
}

func TestHistoryRecordsAndPrunesLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "line-history.json")
	h := NewHistory(path, "", nil)
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	stale := historyLeg("e1", 1.80, now.Add(time.Hour))
	h.RecordLegs([]Leg{stale}, now.Add(-72*time.Hour))
	h.RecordLegs([]Leg{historyLeg("e1", 1.90, now.Add(time.Hour))}, now)

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("side file missing: %v", err)
	}
	var state lineHistoryFile
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("side file unreadable: %v", err)
	}
	if state.SavedAt.IsZero() {
		t.Fatal("side file must carry savedAt")
	}
	series := state.Lines[legKey(stale)]
	if len(series) != 1 {
		t.Fatalf("series length %d, want the stale point pruned", len(series))
	}
	if series[0].Odds != 1.90 {
		t.Fatalf("surviving point odds %v, want 1.90", series[0].Odds)
	}

	// A fresh history picks the series back up from disk.
	reborn := NewHistory(path, "", nil)
	reborn.mu.Lock()
	restored := len(reborn.lines[legKey(stale)])
	reborn.mu.Unlock()
	if restored != 1 {
		t.Fatalf("restored series length %d, want 1", restored)
	}
}

func TestHistorySettlesCommencedParlays(t *testing.T) {
	dir := t.TempDir()
	linePath := filepath.Join(dir, "line-history.json")
	clvPath := filepath.Join(dir, "acca-clv.json")
	h := NewHistory(linePath, clvPath, nil)
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	commence := now.Add(-time.Hour)

	// Entry at 1.90 * 2.00 = 3.80; the lines drift to 1.80 * 1.90 = 3.42
	// by commence, so the entry beat the close.
	legA := historyLeg("e1", 1.90, commence)
	legB := historyLeg("e2", 2.00, commence)
	h.RecordLegs([]Leg{legA, legB}, commence.Add(-2*time.Hour))
	closeA, closeB := legA, legB
	closeA.BestOdds, closeB.BestOdds = 1.80, 1.90
	h.RecordLegs([]Leg{closeA, closeB}, commence.Add(-time.Minute))

	p := Parlay{
		Legs:         []Leg{legA, legB},
		CombinedOdds: 3.80,
		BuiltAt:      commence.Add(-2 * time.Hour),
	}
	if settled := h.SettleCommenced([]Parlay{p}, now); settled != 1 {
		t.Fatalf("settled = %d, want 1", settled)
	}

	raw, err := os.ReadFile(clvPath)
	if err != nil {
		t.Fatalf("clv file missing: %v", err)
	}
	var state clvFile
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("clv file unreadable: %v", err)
	}
	if len(state.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(state.Records))
	}
	rec := state.Records[0]
	if math.Abs(rec.ClosingOdds-3.42) > 1e-9 {
		t.Fatalf("closing odds %v, want 3.42", rec.ClosingOdds)
	}
	if math.Abs(rec.CLV-(3.80/3.42-1)) > 1e-9 {
		t.Fatalf("clv %v, want %v", rec.CLV, 3.80/3.42-1)
	}

	// Re-settling the same parlay must not duplicate the record.
	if settled := h.SettleCommenced([]Parlay{p}, now.Add(time.Minute)); settled != 0 {
		t.Fatalf("resettled = %d, want 0", settled)
	}

	// A restarted history remembers what it already settled.
	reborn := NewHistory(linePath, clvPath, nil)
	if settled := reborn.SettleCommenced([]Parlay{p}, now.Add(time.Minute)); settled != 0 {
		t.Fatalf("settled after restart = %d, want 0", settled)
	}
}

func TestHistorySkipsPendingAndUnpriced(t *testing.T) {
	dir := t.TempDir()
	h := NewHistory(filepath.Join(dir, "line-history.json"), filepath.Join(dir, "acca-clv.json"), nil)
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	pending := Parlay{
		Legs:         []Leg{historyLeg("e1", 1.90, now.Add(time.Hour))},
		CombinedOdds: 1.90,
	}
	if settled := h.SettleCommenced([]Parlay{pending}, now); settled != 0 {
		t.Fatalf("future parlay settled = %d, want 0", settled)
	}

	// Commenced but with no recorded line: no closing price to grade
	// against, so nothing is written.
	unpriced := Parlay{
		Legs:         []Leg{historyLeg("e2", 2.00, now.Add(-time.Hour))},
		CombinedOdds: 2.00,
	}
	if settled := h.SettleCommenced([]Parlay{unpriced}, now); settled != 0 {
		t.Fatalf("unpriced parlay settled = %d, want 0", settled)
	}
	if _, err := os.Stat(filepath.Join(dir, "acca-clv.json")); !os.IsNotExist(err) {
		t.Fatal("clv file must not be written when nothing settles")
	}
}
