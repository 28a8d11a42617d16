package parlay

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"edgescout/internal/client/oddsapi"
)

const maxSportsPerCycle = 6

// OddsSource is the bookmaker feed the service builds from.
type OddsSource interface {
	ListSports(ctx context.Context) ([]oddsapi.Sport, error)
	ListOdds(ctx context.Context, sportKey, marketKey string) ([]oddsapi.Event, error)
}

// ServiceOptions names the board's cache and analysis side files.
type ServiceOptions struct {
	CachePath       string
	LineHistoryPath string
	CLVPath         string
	Logger          *zap.Logger
}

// Service periodically rebuilds the accumulator board from fresh odds.
type Service struct {
	odds      OddsSource
	builder   *Builder
	history   *History
	cachePath string
	logger    *zap.Logger

	mu      sync.RWMutex
	current []Parlay
}

func NewService(odds OddsSource, builder *Builder, opts ServiceOptions) *Service {
	s := &Service{
		odds:      odds,
		builder:   builder,
		history:   NewHistory(opts.LineHistoryPath, opts.CLVPath, opts.Logger),
		cachePath: opts.CachePath,
		logger:    opts.Logger,
	}
	s.current = LoadCache(opts.CachePath)
	return s
}

// Current returns the latest built parlays.
func (s *Service) Current() []Parlay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Parlay, len(s.current))
	copy(out, s.current)
	return out
}

// RebuildOnce pulls odds across active sports and rebuilds the board.
func (s *Service) RebuildOnce(ctx context.Context) error {
	sports, err := s.odds.ListSports(ctx)
	if err != nil {
		return err
	}
	if len(sports) > maxSportsPerCycle {
		sports = sports[:maxSportsPerCycle]
	}
	now := time.Now().UTC()
	var events []oddsapi.Event
	for _, sport := range sports {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, marketKey := range []string{oddsapi.MarketH2H, oddsapi.MarketSpreads, oddsapi.MarketTotals} {
			batch, err := s.odds.ListOdds(ctx, sport.Key, marketKey)
			if err != nil {
				if s.logger != nil {
					s.logger.Warn("odds fetch failed",
						zap.String("sport", sport.Key),
						zap.String("market", marketKey),
						zap.Error(err))
				}
				continue
			}
			events = append(events, batch...)
		}
	}

	legs := BuildLegs(events, now)
	s.history.RecordLegs(legs, now)
	built := s.builder.Build(legs)

	s.mu.Lock()
	previous := s.current
	s.current = built
	s.mu.Unlock()
	settled := s.history.SettleCommenced(previous, now)
	SaveCache(s.cachePath, built, s.logger)
	if s.logger != nil {
		s.logger.Info("parlay board rebuilt",
			zap.Int("events", len(events)),
			zap.Int("legs", len(legs)),
			zap.Int("parlays", len(built)),
			zap.Int("clv_settled", settled))
	}
	return nil
}

// Run rebuilds on the given period until ctx ends.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if err := s.RebuildOnce(ctx); err != nil && s.logger != nil {
		s.logger.Warn("parlay rebuild failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RebuildOnce(ctx); err != nil && s.logger != nil {
				s.logger.Warn("parlay rebuild failed", zap.Error(err))
			}
		}
	}
}
