package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	TradeSourceBot    = "BOT"
	TradeSourceManual = "MANUAL"
)

// PaperTrade is a simulated fill. Lifecycle: OPEN -> RESOLVED via the
// resolver; never mutated after resolution except through an explicit reset.
type PaperTrade struct {
	ID       string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DedupKey string `gorm:"type:varchar(200);index" json:"dedup_key"`
	MarketID string `gorm:"type:varchar(100);not null;index" json:"market_id"`
	Question string `gorm:"type:text" json:"question"`
	Strategy string `gorm:"type:varchar(50);not null;index" json:"strategy"`
	Side     string `gorm:"type:varchar(3);not null" json:"side"`

	EntryPrice      float64 `gorm:"not null" json:"entry_price"`
	RawEntryPrice   float64 `gorm:"not null" json:"raw_entry_price"`
	AppliedSlippage float64 `gorm:"not null" json:"applied_slippage"`
	Shares          float64 `gorm:"not null" json:"shares"`
	KellySize       float64 `gorm:"not null" json:"kelly_size"`
	Score           float64 `gorm:"not null" json:"score"`
	Confidence      string  `gorm:"type:varchar(10)" json:"confidence"`
	Source          string  `gorm:"type:varchar(10);not null" json:"source"`

	// SignalSnapshot archives (name, rawLLR, direction) per signal at record
	// time so resolution can grade each signal.
	SignalSnapshot datatypes.JSON `gorm:"type:json" json:"signal_snapshot,omitempty"`

	RecordedAt time.Time  `gorm:"not null;index" json:"recorded_at"`
	Resolved   bool       `gorm:"not null;default:false;index" json:"resolved"`
	Outcome    *string    `gorm:"type:varchar(3)" json:"outcome,omitempty"`
	PnL        *float64   `gorm:"column:pnl" json:"pnl,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func (PaperTrade) TableName() string {
	return "trades"
}

// ArchivedSignal is one entry of PaperTrade.SignalSnapshot.
type ArchivedSignal struct {
	Name      string  `json:"name"`
	RawLLR    float64 `json:"raw_llr"`
	Direction string  `json:"direction"`
}
