package paper

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"edgescout/internal/calibration"
	"edgescout/internal/models"
	"edgescout/internal/pricing"
	"edgescout/internal/repository"
	gormrepository "edgescout/internal/repository/gorm"
)

// ErrBusted rejects writes against a depleted bankroll.
var ErrBusted = errors.New("bankroll busted; reset required")

// MarketLookup resolves a market id to its current snapshot.
type MarketLookup interface {
	ByID(id string) (models.Snapshot, bool)
}

// Notifier broadcasts engine events to stream consumers.
type Notifier interface {
	Publish(event string, payload any)
}

// CalibrationSink receives graded resolutions.
type CalibrationSink interface {
	RecordResolution(ctx context.Context, marketID string, marketPrice float64, outcomeYes bool, signals []calibration.SignalResult)
}

// Options tunes the trader; zero values take production defaults.
type Options struct {
	StartBankroll   float64
	MinScore        float64
	DedupWindow     time.Duration
	TradesPath      string
	ResolutionsPath string
}

// Trader owns the simulated book: open and resolved trades and the
// bankroll. All state transitions are serialised behind one mutex; the
// BUSTED state is absorbing until Reset.
type Trader struct {
	mu            sync.Mutex
	bankroll      float64
	startBankroll float64
	busted        bool
	winStreak     int
	loseStreak    int
	peakBankroll  float64
	maxDrawdown   float64
	recent        map[string]time.Time
	open          map[string]models.PaperTrade
	resolvedCount int

	opts        Options
	markets     MarketLookup
	repo        repository.Repository
	calib       CalibrationSink
	learning    *Learning
	notifier    Notifier
	resolutions *resolutionLog
	logger      *zap.Logger
}

func NewTrader(opts Options, markets MarketLookup, repo repository.Repository, calib CalibrationSink, learning *Learning, notifier Notifier, logger *zap.Logger) *Trader {
	if opts.StartBankroll <= 0 {
		opts.StartBankroll = 1000
	}
	if opts.MinScore <= 0 {
		opts.MinScore = 25
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = 180 * time.Second
	}
	t := &Trader{
		bankroll:      opts.StartBankroll,
		startBankroll: opts.StartBankroll,
		peakBankroll:  opts.StartBankroll,
		recent:        map[string]time.Time{},
		open:          map[string]models.PaperTrade{},
		opts:          opts,
		markets:       markets,
		repo:          repo,
		calib:         calib,
		learning:      learning,
		notifier:      notifier,
		resolutions:   newResolutionLog(opts.ResolutionsPath, logger),
		logger:        logger,
	}
	t.loadFile()
	return t
}

// Stats is a read-only view of the simulated book.
type Stats struct {
	Bankroll      float64 `json:"bankroll"`
	StartBankroll float64 `json:"start_bankroll"`
	Busted        bool    `json:"busted"`
	OpenTrades    int     `json:"open_trades"`
	ResolvedCount int     `json:"resolved_count"`
	WinStreak     int     `json:"win_streak"`
	LoseStreak    int     `json:"lose_streak"`
	MaxDrawdown   float64 `json:"max_drawdown"`
}

func (t *Trader) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		Bankroll:      t.bankroll,
		StartBankroll: t.startBankroll,
		Busted:        t.busted,
		OpenTrades:    len(t.open),
		ResolvedCount: t.resolvedCount,
		WinStreak:     t.winStreak,
		LoseStreak:    t.loseStreak,
		MaxDrawdown:   t.maxDrawdown,
	}
}

func (t *Trader) Bankroll() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bankroll
}

// RecordScanResults files paper trades for qualifying opportunities.
// Returns how many were recorded; a busted bankroll makes this a no-op.
func (t *Trader) RecordScanResults(ctx context.Context, opps []models.Opportunity, signals map[string][]models.ArchivedSignal) int {
	t.mu.Lock()
	if t.busted {
		t.mu.Unlock()
		return 0
	}
	now := time.Now().UTC()
	recorded := 0
	var newTrades []models.PaperTrade
	for _, opp := range opps {
		if opp.Score < t.opts.MinScore {
			continue
		}
		key := opp.DedupKey()
		if last, seen := t.recent[key]; seen && now.Sub(last) < t.opts.DedupWindow {
			continue
		}
		trade, ok := t.buildTradeLocked(opp, signals[opp.MarketID], now)
		if !ok {
			continue
		}
		t.recent[key] = now
		t.open[trade.ID] = trade
		newTrades = append(newTrades, trade)
		recorded++
	}
	t.pruneRecentLocked(now)
	t.mu.Unlock()

	for i := range newTrades {
		trade := newTrades[i]
		if t.repo != nil {
			if err := t.repo.InsertPaperTrade(ctx, &trade); err != nil && t.logger != nil {
				t.logger.Warn("trade insert failed", zap.String("trade", trade.ID), zap.Error(err))
			}
			t.upsertPosition(ctx, trade)
		}
		if t.notifier != nil {
			t.notifier.Publish("trade:new", trade)
		}
	}
	if recorded > 0 {
		t.saveFile()
	}
	return recorded
}

func (t *Trader) buildTradeLocked(opp models.Opportunity, archived []models.ArchivedSignal, now time.Time) (models.PaperTrade, bool) {
	var liquidity float64
	question := opp.Question
	if t.markets != nil {
		if snap, ok := t.markets.ByID(opp.MarketID); ok {
			liquidity = snap.Liquidity
			if question == "" {
				question = snap.Question
			}
		}
	}
	size := opp.SizeUSD
	if size > 0 {
		size = math.Min(size, 0.05*t.bankroll)
	} else {
		size = math.Min(10, 0.02*t.bankroll)
	}
	if size <= 0 {
		return models.PaperTrade{}, false
	}
	slip := pricing.Slippage(size, liquidity)
	entry := math.Min(0.99, opp.EntryPrice*(1+slip))
	if entry <= 0 {
		return models.PaperTrade{}, false
	}
	shares := size / entry

	var snapshot []byte
	if len(archived) > 0 {
		snapshot, _ = json.Marshal(archived)
	}
	return models.PaperTrade{
		ID:              uuid.NewString(),
		DedupKey:        opp.DedupKey(),
		MarketID:        opp.MarketID,
		Question:        question,
		Strategy:        opp.Strategy,
		Side:            opp.Side,
		EntryPrice:      entry,
		RawEntryPrice:   opp.EntryPrice,
		AppliedSlippage: slip,
		Shares:          shares,
		KellySize:       size,
		Score:           opp.Score,
		Confidence:      opp.Confidence,
		Source:          models.TradeSourceBot,
		SignalSnapshot:  snapshot,
		RecordedAt:      now,
	}, true
}

// RecordManual files a user-entered trade; it resolves like a bot trade
// but never feeds learning state.
func (t *Trader) RecordManual(ctx context.Context, marketID, side string, entryPrice, sizeUSD float64) (models.PaperTrade, error) {
	t.mu.Lock()
	if t.busted {
		t.mu.Unlock()
		return models.PaperTrade{}, ErrBusted
	}
	if entryPrice <= 0 || entryPrice >= 1 || sizeUSD <= 0 {
		t.mu.Unlock()
		return models.PaperTrade{}, errors.New("invalid entry price or size")
	}
	question := ""
	if t.markets != nil {
		if snap, ok := t.markets.ByID(marketID); ok {
			question = snap.Question
		}
	}
	now := time.Now().UTC()
	trade := models.PaperTrade{
		ID:            uuid.NewString(),
		DedupKey:      marketID + "|MANUAL|" + side,
		MarketID:      marketID,
		Question:      question,
		Strategy:      "MANUAL",
		Side:          side,
		EntryPrice:    entryPrice,
		RawEntryPrice: entryPrice,
		Shares:        sizeUSD / entryPrice,
		KellySize:     sizeUSD,
		Source:        models.TradeSourceManual,
		RecordedAt:    now,
	}
	t.open[trade.ID] = trade
	t.mu.Unlock()

	if t.repo != nil {
		if err := t.repo.InsertPaperTrade(ctx, &trade); err != nil {
			return trade, err
		}
	}
	if t.notifier != nil {
		t.notifier.Publish("trade:new", trade)
	}
	t.saveFile()
	return trade, nil
}

// OpenTrades returns the open book, oldest first.
func (t *Trader) OpenTrades() []models.PaperTrade {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.PaperTrade, 0, len(t.open))
	for _, trade := range t.open {
		out = append(out, trade)
	}
	sortTrades(out)
	return out
}

// ResolveTrade settles one open trade against a YES/NO outcome. Double
// resolution is rejected.
func (t *Trader) ResolveTrade(ctx context.Context, tradeID, outcome string) error {
	t.mu.Lock()
	trade, ok := t.open[tradeID]
	if !ok {
		t.mu.Unlock()
		return gormrepository.ErrAlreadyResolved
	}
	payout := 0.0
	if trade.Side == outcome {
		payout = 1.0
	}
	gross := (payout - trade.EntryPrice) * trade.Shares
	fee := math.Max(0, pricing.FeeRate*gross)
	net := gross - fee

	now := time.Now().UTC()
	delete(t.open, tradeID)
	t.bankroll += net
	t.resolvedCount++
	if net > 0 {
		t.winStreak++
		t.loseStreak = 0
	} else {
		t.loseStreak++
		t.winStreak = 0
	}
	if t.bankroll > t.peakBankroll {
		t.peakBankroll = t.bankroll
	}
	if dd := t.peakBankroll - t.bankroll; dd > t.maxDrawdown {
		t.maxDrawdown = dd
	}
	if t.bankroll <= 0 {
		t.bankroll = 0
		t.busted = true
		if t.logger != nil {
			t.logger.Warn("bankroll busted", zap.String("trade", tradeID))
		}
	}
	t.mu.Unlock()

	if t.repo != nil {
		err := t.repo.MarkTradeResolved(ctx, tradeID, outcome, net, now)
		if err != nil && !errors.Is(err, gormrepository.ErrAlreadyResolved) && t.logger != nil {
			t.logger.Warn("trade resolution write failed", zap.String("trade", tradeID), zap.Error(err))
		}
		if err := t.repo.DeletePosition(ctx, trade.MarketID, trade.Side); err != nil && t.logger != nil {
			t.logger.Warn("position delete failed", zap.Error(err))
		}
	}

	t.gradeSignals(ctx, trade, outcome)
	t.resolutions.Append(resolutionRecord{
		TradeID:    trade.ID,
		MarketID:   trade.MarketID,
		Strategy:   trade.Strategy,
		Side:       trade.Side,
		Outcome:    outcome,
		Score:      trade.Score,
		EntryPrice: trade.EntryPrice,
		PnL:        net,
		ResolvedAt: now,
	})
	if trade.Source == models.TradeSourceBot && t.learning != nil {
		t.learning.RecordOutcome(trade.Strategy, trade.Score, net)
	}
	if t.notifier != nil {
		t.notifier.Publish("trade:closed", map[string]any{
			"trade":   trade,
			"outcome": outcome,
			"pnl":     net,
		})
	}
	t.saveFile()
	return nil
}

// gradeSignals forwards per-signal verdicts from the archived snapshot
// into the calibration store.
func (t *Trader) gradeSignals(ctx context.Context, trade models.PaperTrade, outcome string) {
	if t.calib == nil {
		return
	}
	var archived []models.ArchivedSignal
	if len(trade.SignalSnapshot) > 0 {
		if err := json.Unmarshal(trade.SignalSnapshot, &archived); err != nil {
			archived = nil
		}
	}
	results := make([]calibration.SignalResult, 0, len(archived))
	for _, sig := range archived {
		results = append(results, calibration.SignalResult{
			Name:        sig.Name,
			WasCorrect:  sig.Direction == outcome,
			EdgeContrib: math.Abs(sig.RawLLR),
		})
	}
	t.calib.RecordResolution(ctx, trade.MarketID, trade.RawEntryPrice, outcome == models.SideYes, results)
}

// Reset restores the bankroll and clears all trade state.
func (t *Trader) Reset(ctx context.Context) error {
	t.mu.Lock()
	t.bankroll = t.startBankroll
	t.peakBankroll = t.startBankroll
	t.maxDrawdown = 0
	t.busted = false
	t.winStreak = 0
	t.loseStreak = 0
	t.resolvedCount = 0
	t.open = map[string]models.PaperTrade{}
	t.recent = map[string]time.Time{}
	t.mu.Unlock()

	if t.learning != nil {
		t.learning.Reset()
	}
	t.resolutions.Reset()
	t.saveFile()
	if t.repo != nil {
		return t.repo.DeleteAllTrades(ctx)
	}
	return nil
}

func (t *Trader) upsertPosition(ctx context.Context, trade models.PaperTrade) {
	pos := &models.Position{
		MarketID:  trade.MarketID,
		Side:      trade.Side,
		Shares:    decimal.NewFromFloat(trade.Shares),
		CostUSD:   decimal.NewFromFloat(trade.KellySize),
		AvgEntry:  decimal.NewFromFloat(trade.EntryPrice),
		OpenCount: 1,
	}
	if err := t.repo.UpsertPosition(ctx, pos); err != nil && t.logger != nil {
		t.logger.Warn("position upsert failed", zap.Error(err))
	}
}

func (t *Trader) pruneRecentLocked(now time.Time) {
	for key, seen := range t.recent {
		if now.Sub(seen) > t.opts.DedupWindow {
			delete(t.recent, key)
		}
	}
}

func sortTrades(trades []models.PaperTrade) {
	for i := 1; i < len(trades); i++ {
		for j := i; j > 0 && trades[j].RecordedAt.Before(trades[j-1].RecordedAt); j-- {
			trades[j], trades[j-1] = trades[j-1], trades[j]
		}
	}
}

type tradesFile struct {
	Bankroll      float64             `json:"bankroll"`
	Busted        bool                `json:"busted"`
	ResolvedCount int                 `json:"resolvedCount"`
	WinStreak     int                 `json:"winStreak"`
	LoseStreak    int                 `json:"loseStreak"`
	PeakBankroll  float64             `json:"peakBankroll"`
	MaxDrawdown   float64             `json:"maxDrawdown"`
	Open          []models.PaperTrade `json:"open"`
	SavedAt       time.Time           `json:"savedAt"`
}

func (t *Trader) loadFile() {
	if t.opts.TradesPath == "" {
		return
	}
	data, err := os.ReadFile(t.opts.TradesPath)
	if err != nil {
		return
	}
	var state tradesFile
	if err := json.Unmarshal(data, &state); err != nil {
		if t.logger != nil {
			t.logger.Warn("trades file unreadable", zap.Error(err))
		}
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if state.Bankroll > 0 || state.Busted {
		t.bankroll = state.Bankroll
	}
	t.busted = state.Busted
	t.resolvedCount = state.ResolvedCount
	t.winStreak = state.WinStreak
	t.loseStreak = state.LoseStreak
	if state.PeakBankroll > 0 {
		t.peakBankroll = state.PeakBankroll
	}
	t.maxDrawdown = state.MaxDrawdown
	for _, trade := range state.Open {
		t.open[trade.ID] = trade
	}
}

func (t *Trader) saveFile() {
	if t.opts.TradesPath == "" {
		return
	}
	t.mu.Lock()
	state := tradesFile{
		Bankroll:      t.bankroll,
		Busted:        t.busted,
		ResolvedCount: t.resolvedCount,
		WinStreak:     t.winStreak,
		LoseStreak:    t.loseStreak,
		PeakBankroll:  t.peakBankroll,
		MaxDrawdown:   t.maxDrawdown,
		Open:          make([]models.PaperTrade, 0, len(t.open)),
		SavedAt:       time.Now().UTC(),
	}
	for _, trade := range t.open {
		state.Open = append(state.Open, trade)
	}
	t.mu.Unlock()
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(t.opts.TradesPath), 0o755); err != nil {
		return
	}
	tmp := t.opts.TradesPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	if err := os.Rename(tmp, t.opts.TradesPath); err != nil && t.logger != nil {
		t.logger.Warn("trades file write failed", zap.Error(err))
	}
}
