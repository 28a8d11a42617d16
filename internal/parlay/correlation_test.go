package parlay

import (
	"math"
	"testing"
)

func TestCorrelationTiers(t *testing.T) {
	a := nflLeg("e1", 1.90, 0.56)
	b := nflLeg("e2", 1.95, 0.55)
	if rho := Correlation(a, b); rho != 0.08 {
		t.Fatalf("same-league NFL rho = %v, want 0.08", rho)
	}

	nba := nflLeg("e5", 1.90, 0.56)
	nba.SportKey = "basketball_nba"
	nba2 := nflLeg("e6", 1.95, 0.55)
	nba2.SportKey = "basketball_nba"
	if rho := Correlation(nba, nba2); rho != 0.12 {
		t.Fatalf("same-league NBA rho = %v, want 0.12", rho)
	}

	sameEvent := nflLeg("e1", 2.00, 0.50)
	if rho := Correlation(a, sameEvent); rho != 1.0 {
		t.Fatalf("same-event rho = %v, want 1", rho)
	}

	ncaa := nflLeg("e3", 1.90, 0.56)
	ncaa.SportKey = "americanfootball_ncaaf"
	if rho := Correlation(a, ncaa); rho != defaultSameSportRho {
		t.Fatalf("same-sport rho = %v, want %v", rho, defaultSameSportRho)
	}

	tennis := nflLeg("e4", 1.90, 0.56)
	tennis.SportKey = "tennis_atp"
	if rho := Correlation(a, tennis); rho != crossSportRho {
		t.Fatalf("cross-sport rho = %v, want %v", rho, crossSportRho)
	}
}

func TestCombinedProbPenalty(t *testing.T) {
	legs := []Leg{
		nflLeg("e1", 1.90, 0.56),
		nflLeg("e2", 1.95, 0.55),
		nflLeg("e3", 2.10, 0.50),
	}
	prob, avgRho := CombinedProb(legs)
	raw := 0.56 * 0.55 * 0.50
	penalty := raw - prob
	if math.Abs(penalty-0.0476) > 2e-3 {
		t.Fatalf("penalty = %v, want ~0.047", penalty)
	}
	if math.Abs(avgRho-0.08) > 1e-12 {
		t.Fatalf("avgRho = %v, want 0.08", avgRho)
	}
	if prob >= raw {
		t.Fatal("correlation must reduce the combined probability")
	}
}

func TestCombinedProbFloor(t *testing.T) {
	legs := []Leg{
		nflLeg("e1", 10, 0.05),
		nflLeg("e2", 10, 0.05),
		nflLeg("e3", 10, 0.05),
	}
	prob, _ := CombinedProb(legs)
	if prob < 0.001 {
		t.Fatalf("probability floored at 0.001, got %v", prob)
	}
}
