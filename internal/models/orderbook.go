package models

import "time"

// Level is one orderbook price level.
type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Orderbook holds bids sorted by price descending and asks ascending.
// Immutable per timestamp.
type Orderbook struct {
	TokenID   string    `json:"token_id"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	FetchedAt time.Time `json:"fetched_at"`
}

// BestBid returns the highest bid, or false when the side is empty.
func (b *Orderbook) BestBid() (Level, bool) {
	if b == nil || len(b.Bids) == 0 {
		return Level{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask, or false when the side is empty.
func (b *Orderbook) BestAsk() (Level, bool) {
	if b == nil || len(b.Asks) == 0 {
		return Level{}, false
	}
	return b.Asks[0], true
}

// Mid returns the midpoint of best bid and ask.
func (b *Orderbook) Mid() (float64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}
