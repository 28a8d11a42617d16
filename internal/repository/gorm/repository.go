package gormrepository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"edgescout/internal/models"
	"edgescout/internal/repository"
)

var ErrAlreadyResolved = errors.New("trade already resolved")

type store struct {
	db *gorm.DB
}

func New(db *gorm.DB) repository.Repository {
	return &store{db: db}
}

func (s *store) InsertScan(ctx context.Context, scan *models.Scan) error {
	return s.db.WithContext(ctx).Create(scan).Error
}

func (s *store) InsertOpportunities(ctx context.Context, opps []models.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&opps).Error
}

func (s *store) ListRecentOpportunities(ctx context.Context, limit int) ([]models.Opportunity, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []models.Opportunity
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *store) ListRecentScans(ctx context.Context, limit int) ([]models.Scan, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.Scan
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *store) InsertPaperTrade(ctx context.Context, trade *models.PaperTrade) error {
	return s.db.WithContext(ctx).Create(trade).Error
}

func (s *store) ListOpenTrades(ctx context.Context, limit int) ([]models.PaperTrade, error) {
	q := s.db.WithContext(ctx).Where("resolved = ?", false).Order("recorded_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.PaperTrade
	err := q.Find(&out).Error
	return out, err
}

func (s *store) ListResolvedTrades(ctx context.Context, limit int) ([]models.PaperTrade, error) {
	q := s.db.WithContext(ctx).Where("resolved = ?", true).Order("resolved_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.PaperTrade
	err := q.Find(&out).Error
	return out, err
}

func (s *store) MarkTradeResolved(ctx context.Context, id, outcome string, pnl float64, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.PaperTrade{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]any{
			"resolved":    true,
			"outcome":     outcome,
			"pnl":         pnl,
			"resolved_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

func (s *store) DeleteAllTrades(ctx context.Context) error {
	return s.db.WithContext(ctx).Where("1 = 1").Delete(&models.PaperTrade{}).Error
}

func (s *store) UpsertCalibrationBucket(ctx context.Context, bucket *models.CalibrationBucket) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "bucket"}},
			DoUpdates: clause.AssignmentColumns([]string{"samples", "resolved_yes", "updated_at"}),
		}).
		Create(bucket).Error
}

func (s *store) ListCalibrationBuckets(ctx context.Context) ([]models.CalibrationBucket, error) {
	var out []models.CalibrationBucket
	err := s.db.WithContext(ctx).Order("bucket ASC").Find(&out).Error
	return out, err
}

func (s *store) InsertSignalOutcomes(ctx context.Context, outcomes []models.SignalOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&outcomes).Error
}

func (s *store) UpsertPosition(ctx context.Context, pos *models.Position) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "market_id"}, {Name: "side"}},
			DoUpdates: clause.AssignmentColumns([]string{"shares", "cost_usd", "avg_entry", "open_count", "updated_at"}),
		}).
		Create(pos).Error
}

func (s *store) DeletePosition(ctx context.Context, marketID, side string) error {
	return s.db.WithContext(ctx).
		Where("market_id = ? AND side = ?", marketID, side).
		Delete(&models.Position{}).Error
}

func (s *store) InsertBacktest(ctx context.Context, bt *models.Backtest) error {
	return s.db.WithContext(ctx).Create(bt).Error
}

func (s *store) SumResolvedPnLSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var sum *float64
	err := s.db.WithContext(ctx).
		Model(&models.PaperTrade{}).
		Where("resolved = ? AND resolved_at >= ?", true, since).
		Select("SUM(pnl)").
		Scan(&sum).Error
	if err != nil || sum == nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(*sum), nil
}
