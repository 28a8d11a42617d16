package orderbook

import (
	"time"

	"edgescout/internal/models"
)

// CleanProvider serves spoof-cleaned books from the store, with the spoof
// score of everything it removed.
type CleanProvider struct {
	Store *Store
}

func (p *CleanProvider) CleanBook(tokenID string) (*models.Orderbook, float64, bool) {
	latest, ok := p.Store.Latest(tokenID)
	if !ok {
		return nil, 0, false
	}
	report := Classify(latest, p.Store.History(tokenID), time.Now())
	return CleanBook(latest, report), report.Score(), true
}
