package models

import "time"

// Venue tags for normalised market snapshots.
const (
	VenuePoly   = "POLY"
	VenueKalshi = "KALSHI"
)

// Snapshot is a normalised point-in-time view of a binary market. It is
// immutable per scan: the cache builds a fresh set on refresh and downstream
// components only read it.
type Snapshot struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Slug     string `json:"slug"`
	Venue    string `json:"venue"`
	// ConditionID keys Polymarket trade history; empty on other venues.
	ConditionID string     `json:"condition_id,omitempty"`
	YesPrice    float64    `json:"yes_price"`
	NoPrice     float64    `json:"no_price"`
	YesTokenID  string     `json:"yes_token_id"`
	NoTokenID   string     `json:"no_token_id"`
	Volume24h   float64    `json:"volume_24h"`
	Liquidity   float64    `json:"liquidity"`
	Spread      float64    `json:"spread"`
	GroupSlug   string     `json:"group_slug"`
	NegRisk     bool       `json:"neg_risk"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	// Resolution is "YES" or "NO" once the venue reports an outcome; the
	// engine upper-cases it at normalisation.
	Resolution string    `json:"resolution,omitempty"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// PricePoint is one sample of a token's price history.
type PricePoint struct {
	TS    time.Time `json:"ts"`
	Price float64   `json:"price"`
}
