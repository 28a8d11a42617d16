package paper

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"edgescout/internal/models"
)

func TestResolutionLogRecordsSettlements(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "edge-resolutions.json")
	trader := newTestTrader(Options{StartBankroll: 1000, ResolutionsPath: path})

	trade, err := trader.RecordManual(ctx, "m1", models.SideYes, 0.40, 10)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := trader.ResolveTrade(ctx, trade.ID, models.SideYes); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("side file missing: %v", err)
	}
	var state struct {
		Resolutions []resolutionRecord `json:"resolutions"`
		SavedAt     time.Time          `json:"savedAt"`
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("side file unreadable: %v", err)
	}
	if state.SavedAt.IsZero() {
		t.Fatal("side file must carry savedAt")
	}
	if len(state.Resolutions) != 1 {
		t.Fatalf("resolutions = %d, want 1", len(state.Resolutions))
	}
	rec := state.Resolutions[0]
	if rec.TradeID != trade.ID || rec.Outcome != models.SideYes {
		t.Fatalf("record = %+v", rec)
	}
	if math.Abs(rec.PnL-14.70) > 1e-9 {
		t.Fatalf("pnl = %v, want 14.70", rec.PnL)
	}

	// A restarted trader keeps appending to the same log.
	reborn := newTestTrader(Options{StartBankroll: 1000, ResolutionsPath: path})
	trade2, err := reborn.RecordManual(ctx, "m2", models.SideNo, 0.50, 10)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := reborn.ResolveTrade(ctx, trade2.ID, models.SideYes); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	raw, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("side file missing: %v", err)
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("side file unreadable: %v", err)
	}
	if len(state.Resolutions) != 2 {
		t.Fatalf("resolutions after restart = %d, want 2", len(state.Resolutions))
	}
}

func TestResolutionLogResetClears(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "edge-resolutions.json")
	trader := newTestTrader(Options{StartBankroll: 1000, ResolutionsPath: path})

	trade, err := trader.RecordManual(ctx, "m1", models.SideYes, 0.40, 10)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := trader.ResolveTrade(ctx, trade.ID, models.SideNo); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := trader.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("side file missing: %v", err)
	}
	var state resolutionsFile
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("side file unreadable: %v", err)
	}
	if len(state.Resolutions) != 0 {
		t.Fatalf("resolutions after reset = %d, want 0", len(state.Resolutions))
	}
}
