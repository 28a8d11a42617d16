package consensus

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"edgescout/internal/client/oddsapi"
	"edgescout/internal/models"
	"edgescout/internal/parlay"
	"edgescout/internal/strategy"
)

const (
	pinnacleTolerance = 0.03
	staleAfter        = 30 * time.Minute
)

// OddsSource is the slice of the odds client the matcher needs.
type OddsSource interface {
	ListSports(ctx context.Context) ([]oddsapi.Sport, error)
	ListOdds(ctx context.Context, sportKey, marketKey string) ([]oddsapi.Event, error)
}

type teamLine struct {
	team     string
	tokens   []string
	prob     float64
	pinnacle float64 // 0 when pinnacle did not price the event
	books    int
}

// Matcher indexes moneyline consensus by team name and answers lookups
// against market questions. Refresh is periodic; lookups hit the index
// only.
type Matcher struct {
	odds   OddsSource
	sports []string
	logger *zap.Logger

	mu        sync.RWMutex
	lines     []teamLine
	refreshed time.Time
}

func NewMatcher(odds OddsSource, sports []string, logger *zap.Logger) *Matcher {
	return &Matcher{odds: odds, sports: sports, logger: logger}
}

// Refresh rebuilds the team index from fresh h2h odds.
func (m *Matcher) Refresh(ctx context.Context) error {
	sports := m.sports
	if len(sports) == 0 {
		active, err := m.odds.ListSports(ctx)
		if err != nil {
			return err
		}
		for i, sport := range active {
			if i >= 6 {
				break
			}
			sports = append(sports, sport.Key)
		}
	}

	var lines []teamLine
	for _, key := range sports {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		events, err := m.odds.ListOdds(ctx, key, oddsapi.MarketH2H)
		if err != nil {
			if m.logger != nil {
				m.logger.Warn("consensus odds fetch failed", zap.String("sport", key), zap.Error(err))
			}
			continue
		}
		for _, event := range events {
			lines = append(lines, eventLines(event)...)
		}
	}

	m.mu.Lock()
	m.lines = lines
	m.refreshed = time.Now().UTC()
	m.mu.Unlock()
	if m.logger != nil {
		m.logger.Info("consensus index rebuilt", zap.Int("teams", len(lines)))
	}
	return nil
}

// Run refreshes the index on the given period until ctx ends.
func (m *Matcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if err := m.Refresh(ctx); err != nil && m.logger != nil {
		m.logger.Warn("consensus refresh failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Refresh(ctx); err != nil && m.logger != nil {
				m.logger.Warn("consensus refresh failed", zap.Error(err))
			}
		}
	}
}

// Consensus implements strategy.ConsensusSource. A market matches when
// the question names a team the index knows; the first-mentioned team is
// taken as the YES side.
func (m *Matcher) Consensus(snap models.Snapshot) (strategy.Consensus, bool) {
	m.mu.RLock()
	lines := m.lines
	refreshed := m.refreshed
	m.mu.RUnlock()
	if len(lines) == 0 || time.Since(refreshed) > staleAfter {
		return strategy.Consensus{}, false
	}

	question := " " + normalize(snap.Question) + " "
	bestIdx := -1
	bestPos := len(question)
	for i, line := range lines {
		pos := matchPosition(question, line.tokens)
		if pos >= 0 && pos < bestPos {
			bestIdx = i
			bestPos = pos
		}
	}
	if bestIdx < 0 {
		return strategy.Consensus{}, false
	}

	line := lines[bestIdx]
	agrees := line.pinnacle > 0 &&
		line.pinnacle-line.prob < pinnacleTolerance &&
		line.prob-line.pinnacle < pinnacleTolerance
	return strategy.Consensus{
		Prob:           line.prob,
		Books:          line.books,
		PinnacleAgrees: agrees,
	}, true
}

// eventLines devigs every book's moneyline and folds them into one
// consensus line per team.
func eventLines(event oddsapi.Event) []teamLine {
	byTeam := map[string]map[string]float64{} // team -> book -> devigged prob
	for _, book := range event.Bookmakers {
		for _, market := range book.Markets {
			if market.Key != oddsapi.MarketH2H || len(market.Outcomes) < 2 {
				continue
			}
			odds := make([]float64, len(market.Outcomes))
			for i, outcome := range market.Outcomes {
				odds[i] = outcome.Price
			}
			probs := parlay.Devig(odds)
			if probs == nil {
				continue
			}
			for i, outcome := range market.Outcomes {
				if byTeam[outcome.Name] == nil {
					byTeam[outcome.Name] = map[string]float64{}
				}
				byTeam[outcome.Name][book.Key] = probs[i]
			}
		}
	}

	var out []teamLine
	for team, byBook := range byTeam {
		prob, _, _, ok := parlay.SharpProb(byBook)
		if !ok {
			// Thin coverage: a plain average still anchors the line.
			var sum float64
			for _, p := range byBook {
				sum += p
			}
			if len(byBook) == 0 {
				continue
			}
			prob = sum / float64(len(byBook))
		}
		tokens := teamTokens(team)
		if len(tokens) == 0 {
			continue
		}
		out = append(out, teamLine{
			team:     team,
			tokens:   tokens,
			prob:     prob,
			pinnacle: byBook["pinnacle"],
			books:    len(byBook),
		})
	}
	return out
}

func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

var genericTeamWords = map[string]bool{
	"fc": true, "sc": true, "afc": true, "cf": true, "club": true,
	"the": true, "de": true, "city": true, "united": true, "state": true,
	"real": true, "los": true, "las": true, "new": true, "st": true,
}

// teamTokens keeps the distinctive words of a team name. "Real Madrid"
// matches on "madrid"; bare generic names keep everything.
func teamTokens(team string) []string {
	fields := strings.Fields(normalize(team))
	var tokens []string
	for _, f := range fields {
		if genericTeamWords[f] || len(f) < 3 {
			continue
		}
		tokens = append(tokens, f)
	}
	if len(tokens) == 0 {
		tokens = fields
	}
	return tokens
}

// matchPosition returns the index of the earliest token hit, or -1 when
// any token is missing. Tokens are matched on word boundaries.
func matchPosition(question string, tokens []string) int {
	first := -1
	for _, token := range tokens {
		pos := strings.Index(question, " "+token+" ")
		if pos < 0 {
			return -1
		}
		if first < 0 || pos < first {
			first = pos
		}
	}
	return first
}
