package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Trade sides and confidence tiers shared across the pipeline.
const (
	SideYes = "YES"
	SideNo  = "NO"

	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
	ConfidenceLow    = "LOW"
)

// Opportunity is the normalised output of every strategy. Persisted rows
// land in the edges table; the in-scan list is ranked and deduplicated by
// the orchestrator before anything is recorded.
type Opportunity struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ScanID   uint64 `gorm:"index" json:"scan_id"`
	Strategy string `gorm:"type:varchar(50);not null;index" json:"strategy"`
	Venue    string `gorm:"type:varchar(10);not null" json:"venue"`
	MarketID string `gorm:"type:varchar(100);not null;index" json:"market_id"`
	Question string `gorm:"type:text" json:"question"`
	Side     string `gorm:"type:varchar(3);not null" json:"side"`

	EntryPrice float64 `gorm:"not null" json:"entry_price"`
	SizeUSD    float64 `gorm:"not null" json:"size_usd"`
	RawEdge    float64 `gorm:"not null" json:"raw_edge"`
	NetEV      float64 `gorm:"not null" json:"net_ev"`
	Score      float64 `gorm:"not null;index" json:"score"`

	Confidence string `gorm:"type:varchar(10)" json:"confidence"`
	RiskTier   string `gorm:"type:varchar(10)" json:"risk_tier"`
	RiskNote   string `gorm:"type:text" json:"risk_note"`

	// Signals carries the strategy-specific structured payload, keyed by
	// signal name (imbalance, sweep, whale, ...).
	Signals datatypes.JSON `gorm:"type:json" json:"signals,omitempty"`

	PersistenceTag string    `gorm:"type:varchar(20)" json:"persistence_tag,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Opportunity) TableName() string {
	return "edges"
}

// DedupKey identifies an opportunity across scans.
func (o Opportunity) DedupKey() string {
	return fmt.Sprintf("%s|%s|%s", o.MarketID, o.Strategy, o.Side)
}
