package marketdata

import (
	"context"
	"time"

	"edgescout/internal/client/polymarket"
	"edgescout/internal/models"
)

// HistoryAdapter exposes the CLOB price history under the method name the
// strategies consume.
type HistoryAdapter struct {
	Client *polymarket.Client
}

func (a *HistoryAdapter) PriceHistory(ctx context.Context, tokenID string, fidelity, count int) ([]models.PricePoint, error) {
	return a.Client.GetPriceHistory(ctx, tokenID, fidelity, count)
}

// EventAdapter resolves an event slug to normalised snapshots, used to
// fill in the sub-outcomes a scan page missed.
type EventAdapter struct {
	Client *polymarket.Client
}

func (a *EventAdapter) EventMarkets(ctx context.Context, groupSlug string) ([]models.Snapshot, error) {
	markets, err := a.Client.GetEventBySlug(ctx, groupSlug)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]models.Snapshot, 0, len(markets))
	for _, m := range markets {
		snap, ok := polySnapshot(m, now)
		if !ok {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}
