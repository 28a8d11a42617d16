package parlay

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

const (
	combinedOddsMin = 3.0
	combinedOddsMax = 50.0
	evMin           = 0.015
	evMax           = 0.35
	avgRhoMax       = 0.15
	candidatePool   = 15
	overlapLimit    = 0.40
)

// Parlay is one graded accumulator.
type Parlay struct {
	Legs             []Leg     `json:"legs"`
	CombinedOdds     float64   `json:"combined_odds"`
	TrueCombinedProb float64   `json:"true_combined_prob"`
	BookImpliedProb  float64   `json:"book_implied_prob"`
	EV               float64   `json:"ev"`
	AvgCorrelation   float64   `json:"avg_correlation"`
	Score            float64   `json:"score"`
	Grade            string    `json:"grade"`
	KellyStake       float64   `json:"kelly_stake"`
	BuiltAt          time.Time `json:"built_at"`
}

// BuilderOptions tunes combination search and output volume.
type BuilderOptions struct {
	MaxLegs  int
	MaxAccas int
	LegReuse int
	Bankroll float64
	Logger   *zap.Logger
}

// Builder enumerates leg combinations and keeps valid, well-graded,
// mutually diverse accumulators.
type Builder struct {
	opts BuilderOptions
}

func NewBuilder(opts BuilderOptions) *Builder {
	if opts.MaxLegs <= 1 {
		opts.MaxLegs = 4
	}
	if opts.MaxAccas <= 0 {
		opts.MaxAccas = 10
	}
	if opts.LegReuse <= 0 {
		opts.LegReuse = 3
	}
	if opts.Bankroll <= 0 {
		opts.Bankroll = 1000
	}
	return &Builder{opts: opts}
}

// Build assembles graded parlays from the candidate legs.
func (b *Builder) Build(legs []Leg) []Parlay {
	if len(legs) < 2 {
		return nil
	}
	if len(legs) > candidatePool {
		legs = legs[:candidatePool]
	}
	availableSports := map[string]bool{}
	for _, leg := range legs {
		availableSports[sportFamily(leg.SportKey)] = true
	}

	var candidates []Parlay
	var combo []Leg
	var walk func(start int)
	walk = func(start int) {
		if len(combo) >= 2 {
			if p, ok := b.assemble(combo, len(availableSports)); ok {
				candidates = append(candidates, p)
			}
		}
		if len(combo) == b.opts.MaxLegs {
			return
		}
		for i := start; i < len(legs); i++ {
			if sharesEvent(combo, legs[i]) {
				continue
			}
			combo = append(combo, legs[i])
			walk(i + 1)
			combo = combo[:len(combo)-1]
		}
	}
	walk(0)

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	return b.selectDiverse(candidates)
}

func sharesEvent(combo []Leg, leg Leg) bool {
	for _, existing := range combo {
		if existing.EventID == leg.EventID {
			return true
		}
	}
	return false
}

func (b *Builder) assemble(combo []Leg, availableSports int) (Parlay, bool) {
	odds := 1.0
	for _, leg := range combo {
		odds *= leg.BestOdds
	}
	if odds < combinedOddsMin || odds > combinedOddsMax {
		return Parlay{}, false
	}
	prob, avgRho := CombinedProb(combo)
	if avgRho > avgRhoMax {
		return Parlay{}, false
	}
	ev := prob*odds - 1
	if ev < evMin || ev > evMax {
		return Parlay{}, false
	}
	if len(combo) >= 3 && availableSports >= 3 {
		sports := map[string]bool{}
		for _, leg := range combo {
			sports[sportFamily(leg.SportKey)] = true
		}
		if len(sports) < 2 {
			return Parlay{}, false
		}
	}
	legs := make([]Leg, len(combo))
	copy(legs, combo)
	p := Parlay{
		Legs:             legs,
		CombinedOdds:     odds,
		TrueCombinedProb: prob,
		BookImpliedProb:  1 / odds,
		EV:               ev,
		AvgCorrelation:   avgRho,
		BuiltAt:          time.Now().UTC(),
	}
	p.Score = gradeScore(&p)
	p.Grade = gradeTier(p.Score)
	p.KellyStake = KellyStake(odds, prob, b.opts.Bankroll)
	return p, true
}

// selectDiverse walks candidates best-first, rejecting heavy leg overlap
// and capping per-leg reuse.
func (b *Builder) selectDiverse(candidates []Parlay) []Parlay {
	var kept []Parlay
	reuse := map[string]int{}
	for _, candidate := range candidates {
		if len(kept) == b.opts.MaxAccas {
			break
		}
		if overlapsKept(candidate, kept) {
			continue
		}
		overused := false
		for _, leg := range candidate.Legs {
			if reuse[legKey(leg)] >= b.opts.LegReuse {
				overused = true
				break
			}
		}
		if overused {
			continue
		}
		for _, leg := range candidate.Legs {
			reuse[legKey(leg)]++
		}
		kept = append(kept, candidate)
	}
	return kept
}

func legKey(leg Leg) string {
	return leg.EventID + "|" + leg.BetType + "|" + leg.Label
}

func overlapsKept(candidate Parlay, kept []Parlay) bool {
	for _, existing := range kept {
		shared := 0
		for _, leg := range candidate.Legs {
			for _, other := range existing.Legs {
				if legKey(leg) == legKey(other) {
					shared++
				}
			}
		}
		if float64(shared)/float64(len(candidate.Legs)) > overlapLimit {
			return true
		}
	}
	return false
}

type cacheFile struct {
	Parlays []Parlay  `json:"parlays"`
	SavedAt time.Time `json:"savedAt"`
}

// SaveCache writes the kept parlays to the acca cache file.
func SaveCache(path string, parlays []Parlay, logger *zap.Logger) {
	if path == "" {
		return
	}
	data, err := json.Marshal(cacheFile{Parlays: parlays, SavedAt: time.Now().UTC()})
	if err != nil {
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
		logger.Warn("acca cache write failed", zap.Error(err))
	}
}

// LoadCache reads previously built parlays, if any.
func LoadCache(path string) []Parlay {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var state cacheFile
	if err := json.Unmarshal(data, &state); err != nil {
		return nil
	}
	return state.Parlays
}
