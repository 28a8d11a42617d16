package consensus

import (
	"context"
	"errors"
	"math"
	"testing"

	"edgescout/internal/client/oddsapi"
	"edgescout/internal/models"
)

type fakeOdds struct {
	sports    []oddsapi.Sport
	sportsErr error
	events    map[string][]oddsapi.Event
}

func (f *fakeOdds) ListSports(ctx context.Context) ([]oddsapi.Sport, error) {
	return f.sports, f.sportsErr
}

func (f *fakeOdds) ListOdds(ctx context.Context, sportKey, marketKey string) ([]oddsapi.Event, error) {
	return f.events[sportKey], nil
}

func h2hEvent(home, away string, books map[string][2]float64) oddsapi.Event {
	event := oddsapi.Event{ID: home + "-" + away, HomeTeam: home, AwayTeam: away}
	for key, odds := range books {
		event.Bookmakers = append(event.Bookmakers, oddsapi.Bookmaker{
			Key: key,
			Markets: []oddsapi.BookMarket{{
				Key: oddsapi.MarketH2H,
				Outcomes: []oddsapi.Outcome{
					{Name: home, Price: odds[0]},
					{Name: away, Price: odds[1]},
				},
			}},
		})
	}
	return event
}

func TestConsensusMatchesFirstMentionedTeam(t *testing.T) {
	odds := &fakeOdds{events: map[string][]oddsapi.Event{
		"americanfootball_nfl": {h2hEvent("Kansas City Chiefs", "Baltimore Ravens", map[string][2]float64{
			"pinnacle":   {1.80, 2.10},
			"draftkings": {1.85, 2.05},
		})},
	}}
	m := NewMatcher(odds, []string{"americanfootball_nfl"}, nil)
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	snap := models.Snapshot{Question: "Will the Kansas City Chiefs beat the Baltimore Ravens?"}
	got, ok := m.Consensus(snap)
	if !ok {
		t.Fatal("expected a consensus match")
	}
	// Pinnacle anchors the line: devig of 1.80/2.10 gives 0.5385.
	if math.Abs(got.Prob-0.5385) > 1e-3 {
		t.Fatalf("prob = %v, want ~0.5385", got.Prob)
	}
	if got.Books != 2 {
		t.Fatalf("books = %d, want 2", got.Books)
	}
	if !got.PinnacleAgrees {
		t.Fatal("pinnacle priced the line and must agree with itself")
	}

	// Reversed question order flips the YES side to the Ravens.
	snap.Question = "Will the Baltimore Ravens beat the Kansas City Chiefs?"
	got, ok = m.Consensus(snap)
	if !ok {
		t.Fatal("expected a consensus match")
	}
	if got.Prob >= 0.5 {
		t.Fatalf("underdog prob = %v, want below 0.5", got.Prob)
	}
}

func TestConsensusNoPinnacleNoAgreement(t *testing.T) {
	odds := &fakeOdds{events: map[string][]oddsapi.Event{
		"basketball_nba": {h2hEvent("Boston Celtics", "Denver Nuggets", map[string][2]float64{
			"draftkings": {1.70, 2.20},
			"fanduel":    {1.72, 2.18},
		})},
	}}
	m := NewMatcher(odds, []string{"basketball_nba"}, nil)
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	got, ok := m.Consensus(models.Snapshot{Question: "Will the Boston Celtics win the title?"})
	if !ok {
		t.Fatal("expected a match")
	}
	if got.PinnacleAgrees {
		t.Fatal("no pinnacle line means no agreement flag")
	}
	// Two recreational books fall back to the plain average.
	if got.Prob <= 0.5 {
		t.Fatalf("favourite prob = %v, want above 0.5", got.Prob)
	}
}

func TestConsensusRequiresAllTokens(t *testing.T) {
	odds := &fakeOdds{events: map[string][]oddsapi.Event{
		"americanfootball_nfl": {h2hEvent("Baltimore Ravens", "Cincinnati Bengals", map[string][2]float64{
			"pinnacle": {2.00, 1.90},
		})},
	}}
	m := NewMatcher(odds, []string{"americanfootball_nfl"}, nil)
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, ok := m.Consensus(models.Snapshot{Question: "Will Bitcoin close above 100k?"}); ok {
		t.Fatal("unrelated question must not match")
	}
	// One token alone is not a team mention.
	if _, ok := m.Consensus(models.Snapshot{Question: "Will Baltimore legalize sports betting?"}); ok {
		t.Fatal("a single shared word must not match a team")
	}
}

func TestConsensusEmptyIndex(t *testing.T) {
	m := NewMatcher(&fakeOdds{}, []string{"soccer_epl"}, nil)
	if _, ok := m.Consensus(models.Snapshot{Question: "Will the Celtics win?"}); ok {
		t.Fatal("unrefreshed matcher must not answer")
	}
}

func TestRefreshAutoPicksSports(t *testing.T) {
	odds := &fakeOdds{
		sports: []oddsapi.Sport{{Key: "basketball_nba"}, {Key: "soccer_epl"}},
		events: map[string][]oddsapi.Event{
			"basketball_nba": {h2hEvent("Boston Celtics", "Denver Nuggets", map[string][2]float64{
				"pinnacle": {1.70, 2.20},
			})},
		},
	}
	m := NewMatcher(odds, nil, nil)
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, ok := m.Consensus(models.Snapshot{Question: "Will the Boston Celtics beat the Denver Nuggets?"}); !ok {
		t.Fatal("auto-picked sport should be indexed")
	}
}

func TestRefreshSportsListFailure(t *testing.T) {
	odds := &fakeOdds{sportsErr: errors.New("quota exhausted")}
	m := NewMatcher(odds, nil, nil)
	if err := m.Refresh(context.Background()); err == nil {
		t.Fatal("sports list failure must surface when no sports are configured")
	}
}
