package paper

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const maxResolutionRecords = 500

// resolutionRecord is one settled trade in the edge-resolution log. The
// log is what post-hoc edge analysis reads; the relational store may be
// absent in in-memory deployments.
type resolutionRecord struct {
	TradeID    string    `json:"tradeId"`
	MarketID   string    `json:"marketId"`
	Strategy   string    `json:"strategy"`
	Side       string    `json:"side"`
	Outcome    string    `json:"outcome"`
	Score      float64   `json:"score"`
	EntryPrice float64   `json:"entryPrice"`
	PnL        float64   `json:"pnl"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

type resolutionsFile struct {
	Resolutions []resolutionRecord `json:"resolutions"`
	SavedAt     time.Time          `json:"savedAt"`
}

// resolutionLog is a bounded on-disk history of settled trades, newest
// last. An empty path disables it.
type resolutionLog struct {
	mu      sync.Mutex
	path    string
	logger  *zap.Logger
	records []resolutionRecord
}

func newResolutionLog(path string, logger *zap.Logger) *resolutionLog {
	l := &resolutionLog{path: path, logger: logger}
	l.load()
	return l
}

func (l *resolutionLog) Append(rec resolutionRecord) {
	if l.path == "" {
		return
	}
	l.mu.Lock()
	l.records = append(l.records, rec)
	if len(l.records) > maxResolutionRecords {
		l.records = l.records[len(l.records)-maxResolutionRecords:]
	}
	l.mu.Unlock()
	l.save()
}

func (l *resolutionLog) Reset() {
	l.mu.Lock()
	l.records = nil
	l.mu.Unlock()
	l.save()
}

func (l *resolutionLog) load() {
	if l.path == "" {
		return
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	var state resolutionsFile
	if err := json.Unmarshal(data, &state); err != nil {
		if l.logger != nil {
			l.logger.Warn("resolution log unreadable", zap.Error(err))
		}
		return
	}
	l.mu.Lock()
	l.records = state.Resolutions
	l.mu.Unlock()
}

func (l *resolutionLog) save() {
	if l.path == "" {
		return
	}
	l.mu.Lock()
	state := resolutionsFile{Resolutions: l.records, SavedAt: time.Now().UTC()}
	data, err := json.Marshal(state)
	l.mu.Unlock()
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
		l.logger.Warn("resolution log write failed", zap.Error(err))
	}
}
