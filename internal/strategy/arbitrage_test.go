package strategy

import (
	"context"
	"math"
	"testing"
	"time"

	"edgescout/internal/models"
)

func snapBase() models.Snapshot {
	return models.Snapshot{
		ID:         "m1",
		Question:   "Will the home side win?",
		Venue:      models.VenuePoly,
		YesTokenID: "yes-tok",
		NoTokenID:  "no-tok",
		Volume24h:  10000,
		Liquidity:  50000,
		FetchedAt:  time.Now().UTC(),
	}
}

func TestComplementEmitsOnParityGap(t *testing.T) {
	snap := snapBase()
	snap.YesPrice = 0.48
	snap.NoPrice = 0.50

	s := &Complement{}
	opps := s.Evaluate(context.Background(), []models.Snapshot{snap}, 1000)
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	opp := opps[0]
	if opp.Strategy != NameComplement {
		t.Fatalf("strategy = %q", opp.Strategy)
	}
	// deviation 0.02, fee 0.0004, slippage 0.004 per side:
	// net = 0.02 - 0.0004 - 0.008 = 0.0116 -> round(23.2) = 23
	if opp.Score != 23 {
		t.Fatalf("score = %v, want 23", opp.Score)
	}
	if math.Abs(opp.NetEV-0.0116) > 1e-9 {
		t.Fatalf("net edge = %v, want 0.0116", opp.NetEV)
	}
	if opp.Side != models.SideYes {
		t.Fatalf("below-parity pair should buy the set, got %q", opp.Side)
	}
}

func TestComplementSkipsParityAndThinEdges(t *testing.T) {
	cases := []struct {
		name    string
		yes, no float64
		liq     float64
	}{
		{"exact parity", 0.48, 0.52, 50000},
		{"edge below threshold", 0.495, 0.50, 50000},
		{"edge eaten by slippage", 0.48, 0.50, 100},
		{"missing no price", 0.48, 0, 50000},
	}
	s := &Complement{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := snapBase()
			snap.YesPrice = tc.yes
			snap.NoPrice = tc.no
			snap.Liquidity = tc.liq
			if opps := s.Evaluate(context.Background(), []models.Snapshot{snap}, 1000); len(opps) != 0 {
				t.Fatalf("expected no opportunity, got %+v", opps)
			}
		})
	}
}

func TestComplementRejectsNearResolvedPair(t *testing.T) {
	// A 0.97/0.01 pair carries a paper edge of ~0.0136 on a deep book,
	// but the YES leg is outside the tradable price band.
	snap := snapBase()
	snap.YesPrice = 0.97
	snap.NoPrice = 0.01
	snap.Liquidity = 1_000_000

	s := &Complement{}
	if opps := s.Evaluate(context.Background(), []models.Snapshot{snap}, 1000); len(opps) != 0 {
		t.Fatalf("near-resolved pair must not emit, got %+v", opps)
	}
}

func TestComplementRejectsDeadMarkets(t *testing.T) {
	cases := []struct {
		name   string
		volume float64
		liq    float64
	}{
		{"volume below floor", 500, 50000},
		{"liquidity below floor", 10000, 1500},
	}
	s := &Complement{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := snapBase()
			snap.YesPrice = 0.48
			snap.NoPrice = 0.50
			snap.Volume24h = tc.volume
			snap.Liquidity = tc.liq
			if opps := s.Evaluate(context.Background(), []models.Snapshot{snap}, 1000); len(opps) != 0 {
				t.Fatalf("dead market must not emit, got %+v", opps)
			}
		})
	}
}

func TestComplementAboveParitySellsSet(t *testing.T) {
	snap := snapBase()
	snap.YesPrice = 0.53
	snap.NoPrice = 0.50
	s := &Complement{}
	opps := s.Evaluate(context.Background(), []models.Snapshot{snap}, 1000)
	if len(opps) != 1 || opps[0].Side != models.SideNo {
		t.Fatalf("above-parity pair should sell the set, got %+v", opps)
	}
}

func groupSnap(id, slug, question string, yes float64) models.Snapshot {
	snap := snapBase()
	snap.ID = id
	snap.GroupSlug = slug
	snap.Question = question
	snap.YesPrice = yes
	snap.NegRisk = true
	return snap
}

func TestGroupArbRequiresNegRisk(t *testing.T) {
	a := groupSnap("a", "election", "Will candidate A win?", 0.40)
	b := groupSnap("b", "election", "Will candidate B win?", 0.45)
	a.NegRisk = false
	b.NegRisk = false

	s := &GroupArb{}
	if opps := s.Evaluate(context.Background(), []models.Snapshot{a, b}, 1000); len(opps) != 0 {
		t.Fatalf("non-negRisk group must never emit, got %+v", opps)
	}
}

func TestGroupArbExcludesSubMarkets(t *testing.T) {
	a := groupSnap("a", "game", "Will team A win?", 0.40)
	b := groupSnap("b", "game", "Will team B win by over 10 points?", 0.45)

	s := &GroupArb{}
	// Only one eligible member remains, so no group forms.
	if opps := s.Evaluate(context.Background(), []models.Snapshot{a, b}, 1000); len(opps) != 0 {
		t.Fatalf("spread questions must be excluded from groups, got %+v", opps)
	}
}

type staticEvents struct {
	markets []models.Snapshot
}

func (s *staticEvents) EventMarkets(ctx context.Context, groupSlug string) ([]models.Snapshot, error) {
	return s.markets, nil
}

func TestGroupArbIncompleteCoverageScalesScore(t *testing.T) {
	a := groupSnap("a", "election", "Will candidate A win?", 0.30)
	b := groupSnap("b", "election", "Will candidate B win?", 0.30)
	c := groupSnap("c", "election", "Will candidate C win?", 0.20)
	d := groupSnap("d", "election", "Will candidate D win?", 0.06)

	full := &GroupArb{Events: &staticEvents{markets: []models.Snapshot{a, b, c, d}}}
	fullOpps := full.Evaluate(context.Background(), []models.Snapshot{a, b, c, d}, 1000)
	if len(fullOpps) != 1 {
		t.Fatalf("complete group should emit, got %d", len(fullOpps))
	}
	if fullOpps[0].Confidence != models.ConfidenceHigh {
		t.Fatalf("complete group confidence = %q", fullOpps[0].Confidence)
	}

	// Same event, but the scan only saw two members and the event lookup
	// reports four without filling them (sub-market questions).
	aOnly := a
	bOnly := b
	partialEvents := []models.Snapshot{a, b,
		groupSnap("c", "election", "Will candidate C win by over 10 points?", 0.20),
		groupSnap("d", "election", "Will candidate D win by over 10 points?", 0.06),
	}
	partial := &GroupArb{Events: &staticEvents{markets: partialEvents}}
	partialOpps := partial.Evaluate(context.Background(), []models.Snapshot{aOnly, bOnly}, 1000)
	if len(partialOpps) != 1 {
		t.Fatalf("incomplete group should still emit scaled, got %d", len(partialOpps))
	}
	if partialOpps[0].Confidence != models.ConfidenceLow {
		t.Fatalf("incomplete group confidence = %q", partialOpps[0].Confidence)
	}
	if partialOpps[0].Score >= fullOpps[0].Score {
		t.Fatalf("incomplete score %v should be below complete score %v",
			partialOpps[0].Score, fullOpps[0].Score)
	}
}

type staticBooks struct {
	books map[string]*models.Orderbook
}

func (s *staticBooks) CleanBook(tokenID string) (*models.Orderbook, float64, bool) {
	book, ok := s.books[tokenID]
	return book, 0, ok
}

func TestOrderbookArbSellSell(t *testing.T) {
	books := &staticBooks{books: map[string]*models.Orderbook{
		"yes-tok": {
			TokenID: "yes-tok",
			Bids:    []models.Level{{Price: 0.55, Size: 2000}},
			Asks:    []models.Level{{Price: 0.58, Size: 2000}},
		},
		"no-tok": {
			TokenID: "no-tok",
			Bids:    []models.Level{{Price: 0.50, Size: 2000}},
			Asks:    []models.Level{{Price: 0.53, Size: 2000}},
		},
	}}
	snap := snapBase()
	snap.YesPrice = 0.56

	s := &OrderbookArb{Books: books}
	opps := s.Evaluate(context.Background(), []models.Snapshot{snap}, 1000)
	if len(opps) != 1 {
		t.Fatalf("crossed books should emit, got %d", len(opps))
	}
	// raw edge 0.05, slippage 0.004 per side, fee 0.001:
	// net = 0.05 - 0.008 - 0.001 = 0.041
	if math.Abs(opps[0].NetEV-0.041) > 1e-9 {
		t.Fatalf("net edge = %v, want 0.041", opps[0].NetEV)
	}
}

func TestGroupArbDropsGatedMembers(t *testing.T) {
	a := groupSnap("a", "election", "Will candidate A win?", 0.40)
	b := groupSnap("b", "election", "Will candidate B win?", 0.97)

	s := &GroupArb{}
	// The 0.97 member fails the price band, leaving a one-market group.
	if opps := s.Evaluate(context.Background(), []models.Snapshot{a, b}, 1000); len(opps) != 0 {
		t.Fatalf("gated members must not anchor a group, got %+v", opps)
	}
}

func TestOrderbookArbRejectsNearResolved(t *testing.T) {
	books := &staticBooks{books: map[string]*models.Orderbook{
		"yes-tok": {
			TokenID: "yes-tok",
			Bids:    []models.Level{{Price: 0.97, Size: 2000}},
		},
		"no-tok": {
			TokenID: "no-tok",
			Bids:    []models.Level{{Price: 0.05, Size: 2000}},
		},
	}}
	snap := snapBase()
	snap.YesPrice = 0.97

	s := &OrderbookArb{Books: books}
	if opps := s.Evaluate(context.Background(), []models.Snapshot{snap}, 1000); len(opps) != 0 {
		t.Fatalf("near-resolved market must not emit, got %+v", opps)
	}
}

func TestOrderbookArbNoCross(t *testing.T) {
	books := &staticBooks{books: map[string]*models.Orderbook{
		"yes-tok": {
			TokenID: "yes-tok",
			Bids:    []models.Level{{Price: 0.48, Size: 2000}},
			Asks:    []models.Level{{Price: 0.52, Size: 2000}},
		},
		"no-tok": {
			TokenID: "no-tok",
			Bids:    []models.Level{{Price: 0.47, Size: 2000}},
			Asks:    []models.Level{{Price: 0.51, Size: 2000}},
		},
	}}
	snap := snapBase()
	snap.YesPrice = 0.50

	s := &OrderbookArb{Books: books}
	if opps := s.Evaluate(context.Background(), []models.Snapshot{snap}, 1000); len(opps) != 0 {
		t.Fatalf("uncrossed books must not emit, got %+v", opps)
	}
}
