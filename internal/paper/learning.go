package paper

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	learnEvery         = 10
	learnMinTrades     = 5
	consultMinSamples  = 10
	defaultCutoffScore = 50
	scoreBucketWidth   = 25
)

type tradeResult struct {
	Score float64 `json:"score"`
	PnL   float64 `json:"pnl"`
	Won   bool    `json:"won"`
}

// Threshold is the learned per-strategy gate.
type Threshold struct {
	OptimalMinScore float64 `json:"optimalMinScore"`
	ProfitCutoff    float64 `json:"profitCutoff"`
	SampleSize      int     `json:"sampleSize"`
	WinRate         float64 `json:"winRate"`
	AvgPnL          float64 `json:"avgPnL"`
}

// Learning derives per-strategy minimum scores from resolved outcomes.
// Manual trades never feed it.
type Learning struct {
	mu           sync.RWMutex
	results      map[string][]tradeResult
	thresholds   map[string]Threshold
	resolutions  int
	defaultScore float64

	path   string
	logger *zap.Logger
}

func NewLearning(defaultScore float64, path string, logger *zap.Logger) *Learning {
	if defaultScore <= 0 {
		defaultScore = 25
	}
	l := &Learning{
		results:      map[string][]tradeResult{},
		thresholds:   map[string]Threshold{},
		defaultScore: defaultScore,
		path:         path,
		logger:       logger,
	}
	l.load()
	return l
}

// MinScore implements strategy.ThresholdSource. The learned profit
// cutoff only applies once a strategy has enough resolved samples.
func (l *Learning) MinScore(strategy string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	th, ok := l.thresholds[strategy]
	if !ok || th.SampleSize < consultMinSamples {
		return l.defaultScore
	}
	return th.ProfitCutoff
}

// Thresholds returns a copy of the current learned state.
func (l *Learning) Thresholds() map[string]Threshold {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]Threshold, len(l.thresholds))
	for k, v := range l.thresholds {
		out[k] = v
	}
	return out
}

// RecordOutcome folds one resolved bot trade in and reruns the learning
// cycle every tenth resolution.
func (l *Learning) RecordOutcome(strategy string, score, pnl float64) {
	l.mu.Lock()
	l.results[strategy] = append(l.results[strategy], tradeResult{Score: score, PnL: pnl, Won: pnl > 0})
	l.resolutions++
	runCycle := l.resolutions%learnEvery == 0
	if runCycle {
		l.runCycleLocked()
	}
	l.mu.Unlock()
	if runCycle {
		l.save()
	}
}

func (l *Learning) runCycleLocked() {
	for strategy, results := range l.results {
		if len(results) < learnMinTrades {
			continue
		}
		l.thresholds[strategy] = deriveThreshold(results)
	}
	if l.logger != nil {
		l.logger.Info("learning cycle complete", zap.Int("strategies", len(l.thresholds)))
	}
}

func deriveThreshold(results []tradeResult) Threshold {
	sorted := make([]tradeResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	// Optimal minimum: the score above which cumulative PnL peaks.
	var cum, best float64
	optimal := sorted[0].Score
	best = math.Inf(-1)
	for _, r := range sorted {
		cum += r.PnL
		if cum > best {
			best = cum
			optimal = r.Score
		}
	}

	// Profit cutoff: lowest 25-wide score bucket that is reliably positive.
	type bucketAgg struct {
		n   int
		sum float64
	}
	buckets := map[int]*bucketAgg{}
	for _, r := range results {
		key := int(r.Score) / scoreBucketWidth
		agg := buckets[key]
		if agg == nil {
			agg = &bucketAgg{}
			buckets[key] = agg
		}
		agg.n++
		agg.sum += r.PnL
	}
	cutoff := float64(defaultCutoffScore)
	keys := make([]int, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		agg := buckets[k]
		if agg.n >= 3 && agg.sum/float64(agg.n) > 0 {
			cutoff = float64(k * scoreBucketWidth)
			break
		}
	}

	wins := 0
	var totalPnL float64
	for _, r := range results {
		if r.Won {
			wins++
		}
		totalPnL += r.PnL
	}
	return Threshold{
		OptimalMinScore: optimal,
		ProfitCutoff:    cutoff,
		SampleSize:      len(results),
		WinRate:         float64(wins) / float64(len(results)),
		AvgPnL:          totalPnL / float64(len(results)),
	}
}

type learningFile struct {
	Results     map[string][]tradeResult `json:"results"`
	Thresholds  map[string]Threshold     `json:"thresholds"`
	Resolutions int                      `json:"resolutions"`
	SavedAt     time.Time                `json:"savedAt"`
}

func (l *Learning) load() {
	if l.path == "" {
		return
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	var state learningFile
	if err := json.Unmarshal(data, &state); err != nil {
		if l.logger != nil {
			l.logger.Warn("learning file unreadable", zap.Error(err))
		}
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if state.Results != nil {
		l.results = state.Results
	}
	if state.Thresholds != nil {
		l.thresholds = state.Thresholds
	}
	l.resolutions = state.Resolutions
}

func (l *Learning) save() {
	if l.path == "" {
		return
	}
	l.mu.RLock()
	state := learningFile{
		Results:     l.results,
		Thresholds:  l.thresholds,
		Resolutions: l.resolutions,
		SavedAt:     time.Now().UTC(),
	}
	data, err := json.Marshal(state)
	l.mu.RUnlock()
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	if err := os.Rename(tmp, l.path); err != nil && l.logger != nil {
		l.logger.Warn("learning file write failed", zap.Error(err))
	}
}

// Reset clears all learned state.
func (l *Learning) Reset() {
	l.mu.Lock()
	l.results = map[string][]tradeResult{}
	l.thresholds = map[string]Threshold{}
	l.resolutions = 0
	l.mu.Unlock()
	l.save()
}
