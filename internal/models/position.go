package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position aggregates open simulated exposure per market and side.
type Position struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	MarketID  string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_positions_market_side" json:"market_id"`
	Side      string          `gorm:"type:varchar(3);not null;uniqueIndex:idx_positions_market_side" json:"side"`
	Shares    decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"shares"`
	CostUSD   decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"cost_usd"`
	AvgEntry  decimal.Decimal `gorm:"type:numeric(20,10);not null" json:"avg_entry"`
	OpenCount int             `gorm:"not null" json:"open_count"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}
