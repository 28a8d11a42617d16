package scan

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"edgescout/internal/models"
)

const (
	persistenceTTL  = 5 * time.Minute
	maxRecentScores = 10

	TagBoost15 = "+15%"
	TagBoost8  = "+8%"
	TagNew     = "new"
)

type persistenceEntry struct {
	FirstSeen    time.Time `json:"firstSeen"`
	LastSeen     time.Time `json:"lastSeen"`
	Count        int       `json:"count"`
	RecentScores []float64 `json:"recentScores"`
}

// Tracker boosts opportunities that keep showing up across scans and
// tags one-offs as new. Entries silent for five minutes are dropped.
// State survives restarts through the persistence side file, so streaks
// do not reset on every deploy.
type Tracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*persistenceEntry
	path    string
	logger  *zap.Logger
}

func NewTracker(ttl time.Duration, path string, logger *zap.Logger) *Tracker {
	if ttl <= 0 {
		ttl = persistenceTTL
	}
	t := &Tracker{
		ttl:     ttl,
		entries: map[string]*persistenceEntry{},
		path:    path,
		logger:  logger,
	}
	t.load()
	return t
}

// Apply updates persistence state for this scan's opportunities and
// adjusts scores in place.
func (t *Tracker) Apply(opps []models.Opportunity, now time.Time) {
	t.mu.Lock()
	for key, entry := range t.entries {
		if now.Sub(entry.LastSeen) > t.ttl {
			delete(t.entries, key)
		}
	}
	for i := range opps {
		key := opps[i].DedupKey()
		entry := t.entries[key]
		if entry == nil {
			entry = &persistenceEntry{FirstSeen: now}
			t.entries[key] = entry
		}
		entry.LastSeen = now
		entry.Count++
		entry.RecentScores = append(entry.RecentScores, opps[i].Score)
		if len(entry.RecentScores) > maxRecentScores {
			entry.RecentScores = entry.RecentScores[len(entry.RecentScores)-maxRecentScores:]
		}
		switch {
		case entry.Count >= 5:
			opps[i].Score = math.Min(100, opps[i].Score*1.15)
			opps[i].PersistenceTag = TagBoost15
		case entry.Count >= 3:
			opps[i].Score = math.Min(100, opps[i].Score*1.08)
			opps[i].PersistenceTag = TagBoost8
		case entry.Count == 1:
			opps[i].PersistenceTag = TagNew
		}
	}
	t.mu.Unlock()
	t.save()
}

// Count reports how many scans in a row a key has been seen.
func (t *Tracker) Count(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[key]
	if !ok {
		return 0
	}
	return entry.Count
}

type trackerFile struct {
	Entries map[string]*persistenceEntry `json:"entries"`
	SavedAt time.Time                    `json:"savedAt"`
}

func (t *Tracker) load() {
	if t.path == "" {
		return
	}
	data, err := os.ReadFile(t.path)
	if err != nil {
		return
	}
	var state trackerFile
	if err := json.Unmarshal(data, &state); err != nil {
		if t.logger != nil {
			t.logger.Warn("persistence file unreadable", zap.Error(err))
		}
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if state.Entries != nil {
		t.entries = state.Entries
	}
}

func (t *Tracker) save() {
	if t.path == "" {
		return
	}
	t.mu.Lock()
	state := trackerFile{Entries: t.entries, SavedAt: time.Now().UTC()}
	data, err := json.Marshal(state)
	t.mu.Unlock()
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	if err := os.Rename(tmp, t.path); err != nil && t.logger != nil {
		t.logger.Warn("persistence file write failed", zap.Error(err))
	}
}
