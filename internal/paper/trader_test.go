package paper

import (
	"context"
	"errors"
	"math"
	"testing"

	"edgescout/internal/models"
	gormrepository "edgescout/internal/repository/gorm"
)

func newTestTrader(opts Options) *Trader {
	return NewTrader(opts, nil, nil, nil, nil, nil, nil)
}

// Reference resolution: 25 shares at 0.40 resolving YES gross 15.00,
// fee on the winning payout 0.30, net 14.70.
func TestResolveWinArithmetic(t *testing.T) {
	ctx := context.Background()
	trader := newTestTrader(Options{StartBankroll: 1000})

	trade, err := trader.RecordManual(ctx, "m1", models.SideYes, 0.40, 10)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if math.Abs(trade.Shares-25) > 1e-12 {
		t.Fatalf("shares = %v, want 25", trade.Shares)
	}

	if err := trader.ResolveTrade(ctx, trade.ID, models.SideYes); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	stats := trader.Stats()
	if math.Abs(stats.Bankroll-1014.70) > 1e-9 {
		t.Fatalf("bankroll = %v, want 1014.70", stats.Bankroll)
	}
	if stats.WinStreak != 1 || stats.LoseStreak != 0 {
		t.Fatalf("streaks = %d/%d, want 1/0", stats.WinStreak, stats.LoseStreak)
	}
	if stats.ResolvedCount != 1 || stats.OpenTrades != 0 {
		t.Fatalf("resolved=%d open=%d", stats.ResolvedCount, stats.OpenTrades)
	}
}

func TestResolveLossNoFee(t *testing.T) {
	ctx := context.Background()
	trader := newTestTrader(Options{StartBankroll: 1000})

	trade, err := trader.RecordManual(ctx, "m1", models.SideYes, 0.40, 10)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := trader.ResolveTrade(ctx, trade.ID, models.SideNo); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// Loss is the full stake; no fee on a losing position.
	stats := trader.Stats()
	if math.Abs(stats.Bankroll-990) > 1e-9 {
		t.Fatalf("bankroll = %v, want 990", stats.Bankroll)
	}
	if stats.LoseStreak != 1 || stats.WinStreak != 0 {
		t.Fatalf("streaks = %d/%d, want 0/1", stats.WinStreak, stats.LoseStreak)
	}
	if math.Abs(stats.MaxDrawdown-10) > 1e-9 {
		t.Fatalf("drawdown = %v, want 10", stats.MaxDrawdown)
	}
}

func TestResolveTwiceRejected(t *testing.T) {
	ctx := context.Background()
	trader := newTestTrader(Options{StartBankroll: 1000})
	trade, _ := trader.RecordManual(ctx, "m1", models.SideYes, 0.40, 10)
	if err := trader.ResolveTrade(ctx, trade.ID, models.SideYes); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if err := trader.ResolveTrade(ctx, trade.ID, models.SideYes); !errors.Is(err, gormrepository.ErrAlreadyResolved) {
		t.Fatalf("second resolve err = %v", err)
	}
}

func TestBustedIsAbsorbing(t *testing.T) {
	ctx := context.Background()
	trader := newTestTrader(Options{StartBankroll: 5})

	trade, err := trader.RecordManual(ctx, "m1", models.SideYes, 0.50, 10)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := trader.ResolveTrade(ctx, trade.ID, models.SideNo); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	stats := trader.Stats()
	if !stats.Busted || stats.Bankroll != 0 {
		t.Fatalf("expected busted at zero, got %+v", stats)
	}

	if _, err := trader.RecordManual(ctx, "m2", models.SideYes, 0.50, 1); !errors.Is(err, ErrBusted) {
		t.Fatalf("manual entry while busted err = %v", err)
	}
	opp := models.Opportunity{Strategy: "COMPLEMENT", MarketID: "m3", Side: models.SideYes, EntryPrice: 0.40, SizeUSD: 5, Score: 90}
	if n := trader.RecordScanResults(ctx, []models.Opportunity{opp}, nil); n != 0 {
		t.Fatalf("scan recording while busted = %d, want 0", n)
	}

	if err := trader.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	stats = trader.Stats()
	if stats.Busted || stats.Bankroll != 5 || stats.MaxDrawdown != 0 {
		t.Fatalf("reset state %+v", stats)
	}
}

func TestRecordScanResultsDedup(t *testing.T) {
	ctx := context.Background()
	trader := newTestTrader(Options{StartBankroll: 1000, MinScore: 25})

	opp := models.Opportunity{
		Strategy:   "COMPLEMENT",
		MarketID:   "m1",
		Side:       models.SideYes,
		EntryPrice: 0.40,
		SizeUSD:    10,
		Score:      50,
	}
	// Duplicate within one batch: only the first files.
	if n := trader.RecordScanResults(ctx, []models.Opportunity{opp, opp}, nil); n != 1 {
		t.Fatalf("batch recorded %d, want 1", n)
	}
	// Same key inside the dedup window: nothing files.
	if n := trader.RecordScanResults(ctx, []models.Opportunity{opp}, nil); n != 0 {
		t.Fatalf("repeat recorded %d, want 0", n)
	}
	// A different side is a different key.
	flip := opp
	flip.Side = models.SideNo
	flip.EntryPrice = 0.60
	if n := trader.RecordScanResults(ctx, []models.Opportunity{flip}, nil); n != 1 {
		t.Fatalf("flipped side recorded %d, want 1", n)
	}
	if got := len(trader.OpenTrades()); got != 2 {
		t.Fatalf("open trades = %d, want 2", got)
	}
}

func TestRecordScanResultsScoreGate(t *testing.T) {
	ctx := context.Background()
	trader := newTestTrader(Options{StartBankroll: 1000, MinScore: 40})
	opp := models.Opportunity{Strategy: "MOMENTUM", MarketID: "m1", Side: models.SideYes, EntryPrice: 0.40, SizeUSD: 10, Score: 30}
	if n := trader.RecordScanResults(ctx, []models.Opportunity{opp}, nil); n != 0 {
		t.Fatalf("sub-threshold score recorded %d, want 0", n)
	}
}

func TestRecordScanResultsAppliesSlippage(t *testing.T) {
	ctx := context.Background()
	trader := newTestTrader(Options{StartBankroll: 1000})
	opp := models.Opportunity{Strategy: "WHALE", MarketID: "m1", Side: models.SideYes, EntryPrice: 0.40, SizeUSD: 10, Score: 60}
	if n := trader.RecordScanResults(ctx, []models.Opportunity{opp}, nil); n != 1 {
		t.Fatal("expected one trade")
	}
	trade := trader.OpenTrades()[0]
	// Unknown market means worst-case slippage on the raw entry.
	if math.Abs(trade.EntryPrice-0.40*1.009) > 1e-12 {
		t.Fatalf("entry = %v, want %v", trade.EntryPrice, 0.40*1.009)
	}
	if trade.RawEntryPrice != 0.40 {
		t.Fatalf("raw entry = %v", trade.RawEntryPrice)
	}
	if trade.Source != models.TradeSourceBot {
		t.Fatalf("source = %q", trade.Source)
	}
}
