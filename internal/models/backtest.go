package models

import (
	"time"

	"gorm.io/datatypes"
)

// Backtest is one completed backtest run. Outstanding trades at the end of a
// run are force-resolved NO, matching the live resolver's conservative bias.
type Backtest struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	StartedAt  time.Time      `gorm:"not null" json:"started_at"`
	FinishedAt time.Time      `gorm:"not null" json:"finished_at"`
	Trades     int            `gorm:"not null" json:"trades"`
	Wins       int            `gorm:"not null" json:"wins"`
	WinRate    float64        `json:"win_rate"`
	NetPnL     float64        `json:"net_pnl"`
	EndBank    float64        `json:"end_bank"`
	Params     datatypes.JSON `gorm:"type:json" json:"params,omitempty"`
}

func (Backtest) TableName() string {
	return "backtests"
}
