package parlay

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	lineHistoryMaxAge    = 48 * time.Hour
	lineHistoryMaxPoints = 100
	maxCLVRecords        = 500
)

// linePoint is one best-price observation for a leg.
type linePoint struct {
	Odds float64   `json:"odds"`
	Book string    `json:"book"`
	At   time.Time `json:"at"`
}

type lineHistoryFile struct {
	Lines   map[string][]linePoint `json:"lines"`
	SavedAt time.Time              `json:"savedAt"`
}

// clvRecord compares a parlay's entry price against the closing line,
// the last quote recorded before its legs commenced. Beating the close
// shows as positive CLV.
type clvRecord struct {
	ParlayKey   string    `json:"parlayKey"`
	LegCount    int       `json:"legCount"`
	EntryOdds   float64   `json:"entryOdds"`
	ClosingOdds float64   `json:"closingOdds"`
	CLV         float64   `json:"clv"`
	BuiltAt     time.Time `json:"builtAt"`
	RecordedAt  time.Time `json:"recordedAt"`
}

type clvFile struct {
	Records []clvRecord `json:"records"`
	SavedAt time.Time   `json:"savedAt"`
}

// History tracks how leg prices move between rebuilds and grades built
// parlays against the closing line once their legs commence. Either
// path may be empty to disable that log.
type History struct {
	linePath string
	clvPath  string
	logger   *zap.Logger

	mu      sync.Mutex
	lines   map[string][]linePoint
	records []clvRecord
	settled map[string]bool
}

func NewHistory(linePath, clvPath string, logger *zap.Logger) *History {
	h := &History{
		linePath: linePath,
		clvPath:  clvPath,
		logger:   logger,
		lines:    map[string][]linePoint{},
		settled:  map[string]bool{},
	}
	h.load()
	return h
}

// RecordLegs appends the current best quote for every candidate leg and
// prunes stale series.
func (h *History) RecordLegs(legs []Leg, now time.Time) {
	if h.linePath == "" || len(legs) == 0 {
		return
	}
	h.mu.Lock()
	for _, leg := range legs {
		key := legKey(leg)
		series := append(h.lines[key], linePoint{Odds: leg.BestOdds, Book: leg.BestBook, At: now})
		if len(series) > lineHistoryMaxPoints {
			series = series[len(series)-lineHistoryMaxPoints:]
		}
		h.lines[key] = series
	}
	cutoff := now.Add(-lineHistoryMaxAge)
	for key, series := range h.lines {
		trimmed := series[:0]
		for _, pt := range series {
			if pt.At.After(cutoff) {
				trimmed = append(trimmed, pt)
			}
		}
		if len(trimmed) == 0 {
			delete(h.lines, key)
			continue
		}
		h.lines[key] = trimmed
	}
	h.mu.Unlock()
	h.saveLines()
}

// SettleCommenced records closing-line value for every parlay whose
// legs have all started, using each leg's last quote before commence.
func (h *History) SettleCommenced(parlays []Parlay, now time.Time) int {
	if h.clvPath == "" {
		return 0
	}
	settled := 0
	for _, p := range parlays {
		if !commenced(p, now) {
			continue
		}
		key := parlayKey(p)
		h.mu.Lock()
		done := h.settled[key]
		h.mu.Unlock()
		if done {
			continue
		}
		closing, ok := h.closingOdds(p)
		if !ok {
			continue
		}
		rec := clvRecord{
			ParlayKey:   key,
			LegCount:    len(p.Legs),
			EntryOdds:   p.CombinedOdds,
			ClosingOdds: closing,
			CLV:         p.CombinedOdds/closing - 1,
			BuiltAt:     p.BuiltAt,
			RecordedAt:  now,
		}
		h.mu.Lock()
		h.settled[key] = true
		h.records = append(h.records, rec)
		if len(h.records) > maxCLVRecords {
			h.records = h.records[len(h.records)-maxCLVRecords:]
		}
		h.mu.Unlock()
		settled++
	}
	if settled > 0 {
		h.saveCLV()
	}
	return settled
}

func commenced(p Parlay, now time.Time) bool {
	for _, leg := range p.Legs {
		if leg.Commence.IsZero() || leg.Commence.After(now) {
			return false
		}
	}
	return len(p.Legs) > 0
}

// closingOdds multiplies each leg's last pre-commence quote. A leg with
// no usable history blocks the record rather than skewing it.
func (h *History) closingOdds(p Parlay) (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	odds := 1.0
	for _, leg := range p.Legs {
		series := h.lines[legKey(leg)]
		closing := 0.0
		for _, pt := range series {
			if pt.At.After(leg.Commence) {
				break
			}
			closing = pt.Odds
		}
		if closing <= 0 {
			return 0, false
		}
		odds *= closing
	}
	return odds, true
}

func parlayKey(p Parlay) string {
	keys := make([]string, len(p.Legs))
	for i, leg := range p.Legs {
		keys[i] = legKey(leg)
	}
	sort.Strings(keys)
	return strings.Join(keys, "+")
}

func (h *History) load() {
	if h.linePath != "" {
		if data, err := os.ReadFile(h.linePath); err == nil {
			var state lineHistoryFile
			if err := json.Unmarshal(data, &state); err == nil && state.Lines != nil {
				h.lines = state.Lines
			}
		}
	}
	if h.clvPath != "" {
		if data, err := os.ReadFile(h.clvPath); err == nil {
			var state clvFile
			if err := json.Unmarshal(data, &state); err == nil {
				h.records = state.Records
				for _, rec := range state.Records {
					h.settled[rec.ParlayKey] = true
				}
			}
		}
	}
}

func (h *History) saveLines() {
	h.mu.Lock()
	data, err := json.Marshal(lineHistoryFile{Lines: h.lines, SavedAt: time.Now().UTC()})
	h.mu.Unlock()
	if err != nil {
		return
	}
	writeSideFile(h.linePath, data, h.logger, "line history write failed")
}

func (h *History) saveCLV() {
	h.mu.Lock()
	data, err := json.Marshal(clvFile{Records: h.records, SavedAt: time.Now().UTC()})
	h.mu.Unlock()
	if err != nil {
		return
	}
	writeSideFile(h.clvPath, data, h.logger, "clv log write failed")
}

func writeSideFile(path string, data []byte, logger *zap.Logger, failMsg string) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	if err := os.Rename(tmp, path); err != nil && logger != nil {
		logger.Warn(failMsg, zap.Error(err))
	}
}
