package models

import "time"

// CalibrationBucket is one 2.5% slice of market price. Bucket keys are
// floor(p*40)/40; the sum of Samples across buckets equals the total
// resolution count.
type CalibrationBucket struct {
	Bucket      float64   `gorm:"primaryKey" json:"bucket"`
	Samples     int       `gorm:"not null" json:"samples"`
	ResolvedYes int       `gorm:"not null" json:"resolved_yes"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CalibrationBucket) TableName() string {
	return "calibration"
}
