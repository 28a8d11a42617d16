package db

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"edgescout/internal/models"
)

// AutoMigrate is idempotent; it is safe to run at every startup.
func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil {
		return nil
	}
	return db.Gorm.AutoMigrate(
		&models.PaperTrade{},
		&models.Opportunity{},
		&models.CalibrationBucket{},
		&models.Position{},
		&models.SignalOutcome{},
		&models.Scan{},
		&models.Backtest{},
	)
}

// legacyState mirrors the JSON blobs written by earlier file-only deployments.
type legacyState struct {
	Trades  []models.PaperTrade        `json:"trades"`
	Buckets []models.CalibrationBucket `json:"buckets"`
	SavedAt time.Time                  `json:"savedAt"`
}

// ImportLegacyJSON imports a legacy JSON state file into the relational
// store. The whole import runs in one transaction with insert-or-ignore
// semantics, so re-running it yields the same row counts.
func ImportLegacyJSON(db *DB, path string) (int64, error) {
	if db == nil || db.Gorm == nil {
		return 0, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var state legacyState
	if err := json.Unmarshal(raw, &state); err != nil {
		return 0, fmt.Errorf("parse legacy state: %w", err)
	}

	var imported int64
	err = db.Gorm.Transaction(func(tx *gorm.DB) error {
		if len(state.Trades) > 0 {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&state.Trades)
			if res.Error != nil {
				return res.Error
			}
			imported += res.RowsAffected
		}
		if len(state.Buckets) > 0 {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&state.Buckets)
			if res.Error != nil {
				return res.Error
			}
			imported += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}
