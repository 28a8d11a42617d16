package strategy

import (
	"context"
	"testing"
	"time"

	"edgescout/internal/models"
)

type staticHistory struct {
	points []models.PricePoint
}

func (s *staticHistory) PriceHistory(ctx context.Context, tokenID string, fidelity, count int) ([]models.PricePoint, error) {
	return s.points, nil
}

type staticVolumes struct {
	vols []float64
}

func (s *staticVolumes) RecentVolumes(ctx context.Context, snap models.Snapshot, count int) ([]float64, bool) {
	if s.vols == nil {
		return nil, false
	}
	return s.vols, true
}

func pricePoints(prices []float64) []models.PricePoint {
	start := time.Now().UTC().Add(-time.Duration(len(prices)*10) * time.Minute)
	out := make([]models.PricePoint, len(prices))
	for i, p := range prices {
		out[i] = models.PricePoint{TS: start.Add(time.Duration(i*10) * time.Minute), Price: p}
	}
	return out
}

// gentleTrend yields a trend strength around 32: below the unconfirmed
// gate of 40, above the volume-confirmed gate of 25.
func gentleTrend() []float64 {
	prices := make([]float64, 0, 30)
	for i := 0; i < 24; i++ {
		prices = append(prices, 0.50)
	}
	for i := 1; i <= 6; i++ {
		prices = append(prices, 0.50+0.002*float64(i))
	}
	return prices
}

func TestMomentumVolumeConfirmationLowersGate(t *testing.T) {
	snap := snapBase()
	snap.YesPrice = 0.51
	snap.NoPrice = 0.49
	history := &staticHistory{points: pricePoints(gentleTrend())}

	bare := &Momentum{History: history}
	if opps := bare.Evaluate(context.Background(), []models.Snapshot{snap}, 1000); len(opps) != 0 {
		t.Fatalf("unconfirmed trend below 40 must not emit, got %+v", opps)
	}

	// Latest interval trades at ~1.9x the trailing average.
	vols := make([]float64, 20)
	for i := range vols {
		vols[i] = 100
	}
	vols[19] = 200
	confirmed := &Momentum{History: history, Volumes: &staticVolumes{vols: vols}}
	opps := confirmed.Evaluate(context.Background(), []models.Snapshot{snap}, 1000)
	if len(opps) != 1 {
		t.Fatalf("volume-confirmed trend must emit, got %d", len(opps))
	}
	if opps[0].Strategy != NameMomentum || opps[0].Side != models.SideYes {
		t.Fatalf("opportunity = %+v", opps[0])
	}

	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 100
	}
	unconfirmed := &Momentum{History: history, Volumes: &staticVolumes{vols: flat}}
	if opps := unconfirmed.Evaluate(context.Background(), []models.Snapshot{snap}, 1000); len(opps) != 0 {
		t.Fatalf("flat volume must keep the strict gate, got %+v", opps)
	}
}
