package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"edgescout/internal/models"
)

// Repository is the persistence boundary. The engine degrades to in-memory
// operation when the store is unavailable, so every caller must tolerate a
// nil Repository.
type Repository interface {
	// Scans and opportunities.
	InsertScan(ctx context.Context, scan *models.Scan) error
	InsertOpportunities(ctx context.Context, opps []models.Opportunity) error
	ListRecentOpportunities(ctx context.Context, limit int) ([]models.Opportunity, error)
	ListRecentScans(ctx context.Context, limit int) ([]models.Scan, error)

	// Paper trades.
	InsertPaperTrade(ctx context.Context, trade *models.PaperTrade) error
	ListOpenTrades(ctx context.Context, limit int) ([]models.PaperTrade, error)
	ListResolvedTrades(ctx context.Context, limit int) ([]models.PaperTrade, error)
	MarkTradeResolved(ctx context.Context, id, outcome string, pnl float64, at time.Time) error
	DeleteAllTrades(ctx context.Context) error

	// Calibration.
	UpsertCalibrationBucket(ctx context.Context, bucket *models.CalibrationBucket) error
	ListCalibrationBuckets(ctx context.Context) ([]models.CalibrationBucket, error)
	InsertSignalOutcomes(ctx context.Context, outcomes []models.SignalOutcome) error

	// Positions.
	UpsertPosition(ctx context.Context, pos *models.Position) error
	DeletePosition(ctx context.Context, marketID, side string) error

	// Backtests and aggregates.
	InsertBacktest(ctx context.Context, bt *models.Backtest) error
	SumResolvedPnLSince(ctx context.Context, since time.Time) (decimal.Decimal, error)
}
