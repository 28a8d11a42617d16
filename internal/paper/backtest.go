package paper

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"edgescout/internal/models"
	"edgescout/internal/pricing"
	"edgescout/internal/repository"
)

// BacktestParams configures one replay run.
type BacktestParams struct {
	StartBankroll float64 `json:"start_bankroll"`
	MinScore      float64 `json:"min_score"`
	StakeUSD      float64 `json:"stake_usd"`
}

// BacktestTrade is one simulated fill in a replay.
type BacktestTrade struct {
	MarketID string
	Side     string
	Entry    float64
	Score    float64
	// Outcome empty means never resolved during the replay window.
	Outcome string
}

// RunBacktest settles a replayed trade list against the supplied
// outcomes. Trades still outstanding at the end are force-resolved NO,
// the same conservative bias the live resolver carries.
func RunBacktest(ctx context.Context, params BacktestParams, trades []BacktestTrade, repo repository.Repository, logger *zap.Logger) models.Backtest {
	if params.StartBankroll <= 0 {
		params.StartBankroll = 1000
	}
	if params.StakeUSD <= 0 {
		params.StakeUSD = 10
	}
	start := time.Now().UTC()
	bank := params.StartBankroll
	wins, total := 0, 0
	var netPnL float64
	for _, trade := range trades {
		if trade.Score < params.MinScore || trade.Entry <= 0 || trade.Entry >= 1 {
			continue
		}
		if bank <= 0 {
			break
		}
		outcome := trade.Outcome
		if outcome == "" {
			outcome = models.SideNo
		}
		payout := 0.0
		if trade.Side == outcome {
			payout = 1.0
		}
		shares := params.StakeUSD / trade.Entry
		gross := (payout - trade.Entry) * shares
		fee := 0.0
		if gross > 0 {
			fee = pricing.FeeRate * gross
		}
		net := gross - fee
		bank += net
		netPnL += net
		total++
		if net > 0 {
			wins++
		}
	}
	result := models.Backtest{
		StartedAt:  start,
		FinishedAt: time.Now().UTC(),
		Trades:     total,
		Wins:       wins,
		NetPnL:     netPnL,
		EndBank:    bank,
	}
	if total > 0 {
		result.WinRate = float64(wins) / float64(total)
	}
	if data, err := json.Marshal(params); err == nil {
		result.Params = data
	}
	if repo != nil {
		if err := repo.InsertBacktest(ctx, &result); err != nil && logger != nil {
			logger.Warn("backtest insert failed", zap.Error(err))
		}
	}
	return result
}
