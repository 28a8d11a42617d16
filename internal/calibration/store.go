package calibration

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"edgescout/internal/models"
	"edgescout/internal/prob"
	"edgescout/internal/repository"
)

const (
	bucketWidth       = 40 // 2.5% slices
	minBucketSamples  = 5
	retrainEvery      = 25
	decayCheckEvery   = 10
	rollingWindowMax  = 30
	decayMinRolling   = 10
	decayRatio        = 0.85
	minDecayReference = 0.01
)

// SignalResult is one signal's verdict at resolution time.
type SignalResult struct {
	Name        string
	WasCorrect  bool
	EdgeContrib float64
}

type bucket struct {
	Samples     int `json:"samples"`
	ResolvedYes int `json:"resolvedYes"`
}

type perfRecord struct {
	Correct     int     `json:"correct"`
	Total       int     `json:"total"`
	SumEdge     float64 `json:"sumEdge"`
	Rolling     []bool  `json:"rolling"`
	DecayFlag   bool    `json:"decayFlag"`
	DecayFactor float64 `json:"decayFactor"`
}

// Store owns the calibration buckets, isotonic map, and per-signal
// accuracy records. Resolution writes are the only mutations; the
// estimator reads behind the same lock so it always sees a consistent
// snapshot.
type Store struct {
	mu          sync.RWMutex
	buckets     map[float64]*bucket
	perf        map[string]*perfRecord
	curve       *IsotonicMap
	resolutions int

	repo   repository.Repository
	path   string
	logger *zap.Logger
}

func NewStore(repo repository.Repository, path string, logger *zap.Logger) *Store {
	s := &Store{
		buckets: map[float64]*bucket{},
		perf:    map[string]*perfRecord{},
		repo:    repo,
		path:    path,
		logger:  logger,
	}
	s.load()
	return s
}

// BucketKey maps a probability to its 2.5% slice.
func BucketKey(p float64) float64 {
	return math.Floor(p*bucketWidth) / bucketWidth
}

// RecordResolution folds one resolved market into the buckets and signal
// records, retraining the isotonic map and re-checking decay on their
// cadences.
func (s *Store) RecordResolution(ctx context.Context, marketID string, marketPrice float64, outcomeYes bool, signals []SignalResult) {
	s.mu.Lock()
	key := BucketKey(marketPrice)
	b := s.buckets[key]
	if b == nil {
		b = &bucket{}
		s.buckets[key] = b
	}
	b.Samples++
	if outcomeYes {
		b.ResolvedYes++
	}
	s.resolutions++

	for _, sig := range signals {
		rec := s.perf[sig.Name]
		if rec == nil {
			rec = &perfRecord{DecayFactor: 1}
			s.perf[sig.Name] = rec
		}
		rec.Total++
		if sig.WasCorrect {
			rec.Correct++
		}
		rec.SumEdge += sig.EdgeContrib
		rec.Rolling = append(rec.Rolling, sig.WasCorrect)
		if len(rec.Rolling) > rollingWindowMax {
			rec.Rolling = rec.Rolling[len(rec.Rolling)-rollingWindowMax:]
		}
	}

	if s.resolutions%retrainEvery == 0 {
		s.retrainLocked()
	}
	if s.resolutions%decayCheckEvery == 0 {
		s.checkDecayLocked()
	}
	snapshot := *b
	s.mu.Unlock()

	s.persist(ctx, key, snapshot, marketID, signals)
}

func (s *Store) retrainLocked() {
	samples := make([]trainSample, 0, len(s.buckets))
	for key, b := range s.buckets {
		if b.Samples < minBucketSamples {
			continue
		}
		samples = append(samples, trainSample{
			mid:     key + 1.0/(2*bucketWidth),
			rate:    float64(b.ResolvedYes) / float64(b.Samples),
			samples: b.Samples,
		})
	}
	if curve := trainPAVA(samples); curve != nil {
		s.curve = curve
	}
}

func (s *Store) checkDecayLocked() {
	for _, rec := range s.perf {
		if len(rec.Rolling) < decayMinRolling || rec.Total == 0 {
			continue
		}
		allTime := float64(rec.Correct) / float64(rec.Total)
		rolling := rollingAccuracy(rec.Rolling)
		rec.DecayFlag = allTime > 0 && rolling < decayRatio*allTime
		if rec.DecayFlag {
			rec.DecayFactor = rolling / math.Max(allTime, minDecayReference)
		} else {
			rec.DecayFactor = 1
		}
	}
}

func rollingAccuracy(window []bool) float64 {
	if len(window) == 0 {
		return 0
	}
	correct := 0
	for _, ok := range window {
		if ok {
			correct++
		}
	}
	return float64(correct) / float64(len(window))
}

func (s *Store) persist(ctx context.Context, key float64, b bucket, marketID string, signals []SignalResult) {
	if s.repo != nil {
		now := time.Now().UTC()
		err := s.repo.UpsertCalibrationBucket(ctx, &models.CalibrationBucket{
			Bucket:      key,
			Samples:     b.Samples,
			ResolvedYes: b.ResolvedYes,
			UpdatedAt:   now,
		})
		if err != nil && s.logger != nil {
			s.logger.Warn("calibration bucket write failed", zap.Error(err))
		}
		if len(signals) > 0 {
			rows := make([]models.SignalOutcome, 0, len(signals))
			for _, sig := range signals {
				rows = append(rows, models.SignalOutcome{
					Name:        sig.Name,
					MarketID:    marketID,
					WasCorrect:  sig.WasCorrect,
					EdgeContrib: sig.EdgeContrib,
				})
			}
			if err := s.repo.InsertSignalOutcomes(ctx, rows); err != nil && s.logger != nil {
				s.logger.Warn("signal outcome write failed", zap.Error(err))
			}
		}
	}
	s.saveFile()
}

// --- prob.CalibrationView ---

func (s *Store) Curve() prob.Curve {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.curve == nil {
		return nil
	}
	return s.curve
}

func (s *Store) BucketRate(p float64) (float64, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[BucketKey(p)]
	if !ok || b.Samples == 0 {
		return 0, 0, false
	}
	return float64(b.ResolvedYes) / float64(b.Samples), b.Samples, true
}

func (s *Store) TotalSamples() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, b := range s.buckets {
		total += b.Samples
	}
	return total
}

func (s *Store) TotalResolutions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolutions
}

func (s *Store) Performance(name string) (prob.SignalPerformance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.perf[name]
	if !ok || rec.Total == 0 {
		return prob.SignalPerformance{}, false
	}
	return prob.SignalPerformance{
		Accuracy:        float64(rec.Correct) / float64(rec.Total),
		Total:           rec.Total,
		DecayFlag:       rec.DecayFlag,
		DecayFactor:     rec.DecayFactor,
		RollingAccuracy: rollingAccuracy(rec.Rolling),
		RollingLen:      len(rec.Rolling),
	}, true
}

// --- file persistence ---

type fileState struct {
	Buckets     map[string]bucket      `json:"buckets"`
	Signals     map[string]*perfRecord `json:"signals"`
	Resolutions int                    `json:"resolutions"`
	Curve       *IsotonicMap           `json:"curve,omitempty"`
	SavedAt     time.Time              `json:"savedAt"`
}

func (s *Store) load() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		if s.logger != nil {
			s.logger.Warn("calibration file unreadable", zap.Error(err))
		}
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, b := range state.Buckets {
		k, err := strconv.ParseFloat(key, 64)
		if err != nil {
			continue
		}
		copied := b
		s.buckets[k] = &copied
	}
	if state.Signals != nil {
		s.perf = state.Signals
	}
	s.resolutions = state.Resolutions
	s.curve = state.Curve
}

func (s *Store) saveFile() {
	if s.path == "" {
		return
	}
	s.mu.RLock()
	state := fileState{
		Buckets:     make(map[string]bucket, len(s.buckets)),
		Signals:     s.perf,
		Resolutions: s.resolutions,
		Curve:       s.curve,
		SavedAt:     time.Now().UTC(),
	}
	for key, b := range s.buckets {
		state.Buckets[strconv.FormatFloat(key, 'f', 4, 64)] = *b
	}
	data, err := json.Marshal(state)
	s.mu.RUnlock()
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	if err := os.Rename(tmp, s.path); err != nil && s.logger != nil {
		s.logger.Warn("calibration file write failed", zap.Error(err))
	}
}
