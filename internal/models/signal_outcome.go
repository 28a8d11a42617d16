package models

import "time"

// SignalOutcome is one graded signal contribution written at resolution
// time. These rows feed per-signal accuracy and decay detection.
type SignalOutcome struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"type:varchar(50);not null;index" json:"name"`
	MarketID    string    `gorm:"type:varchar(100);index" json:"market_id"`
	WasCorrect  bool      `gorm:"not null" json:"was_correct"`
	EdgeContrib float64   `gorm:"not null" json:"edge_contrib"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (SignalOutcome) TableName() string {
	return "signals"
}
