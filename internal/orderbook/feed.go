package orderbook

import (
	"time"

	"edgescout/internal/models"
)

// Feed records live stream events into the snapshot store. Price ticks
// are ignored: the spoof detector only needs full book frames, and price
// history comes from the REST side.
type Feed struct {
	Store *Store
}

func (f *Feed) OnBook(book *models.Orderbook) {
	if book == nil {
		return
	}
	f.Store.Record(book)
}

func (f *Feed) OnPriceChange(assetID string, price float64, ts time.Time) {}

func (f *Feed) OnLastTrade(assetID string, price float64, ts time.Time) {}
