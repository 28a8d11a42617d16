package models

import (
	"time"

	"gorm.io/datatypes"
)

// Scan is one orchestrator cycle's aggregate record.
type Scan struct {
	ID            uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	StartedAt     time.Time      `gorm:"not null;index" json:"started_at"`
	DurationMs    int64          `gorm:"not null" json:"duration_ms"`
	Markets       int            `gorm:"not null" json:"markets"`
	Opportunities int            `gorm:"not null" json:"opportunities"`
	Recorded      int            `gorm:"not null" json:"recorded"`
	TopScore      float64        `json:"top_score"`
	Strategies    datatypes.JSON `gorm:"type:json" json:"strategies,omitempty"`
}

func (Scan) TableName() string {
	return "scans"
}
