package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"edgescout/internal/marketdata"
	"edgescout/internal/models"
	"edgescout/internal/paper"
	"edgescout/internal/parlay"
	"edgescout/internal/repository"
	"edgescout/internal/scan"
)

// ParlaySource serves the most recently built accumulators.
type ParlaySource interface {
	Current() []parlay.Parlay
}

// Handler wires the read/trigger REST surface over the engine.
type Handler struct {
	cache        *marketdata.Cache
	trader       *paper.Trader
	learning     *paper.Learning
	repo         repository.Repository
	orchestrator *scan.Orchestrator
	parlays      ParlaySource
	broker       *Broker
	registry     *prometheus.Registry
	logger       *zap.Logger
}

func New(
	cache *marketdata.Cache,
	trader *paper.Trader,
	learning *paper.Learning,
	repo repository.Repository,
	orchestrator *scan.Orchestrator,
	parlays ParlaySource,
	broker *Broker,
	registry *prometheus.Registry,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		cache:        cache,
		trader:       trader,
		learning:     learning,
		repo:         repo,
		orchestrator: orchestrator,
		parlays:      parlays,
		broker:       broker,
		registry:     registry,
		logger:       logger,
	}
}

// Router builds the gin engine with all routes attached.
func (h *Handler) Router(mode string) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), cors())

	r.GET("/healthz", h.health)
	if h.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})))
	}
	if h.broker != nil {
		r.GET("/api/stream", h.broker.Stream)
	}

	api := r.Group("/api")
	{
		api.GET("/markets", h.listMarkets)
		api.GET("/opportunities", h.listOpportunities)
		api.GET("/trades", h.listTrades)
		api.GET("/scans", h.listScans)
		api.GET("/calibration", h.listCalibration)
		api.GET("/parlays", h.listParlays)
		api.GET("/stats", h.stats)
		api.GET("/thresholds", h.thresholds)
		api.POST("/scan", h.triggerScan)
		api.POST("/trades", h.recordManual)
		api.POST("/backtest", h.runBacktest)
		api.POST("/reset", h.resetBankroll)
	}
	return r
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": apiError{Code: code, Message: message}})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listMarkets(c *gin.Context) {
	n := queryInt(c, "limit", 50)
	c.JSON(http.StatusOK, gin.H{"markets": h.cache.TopByVolume(n)})
}

func (h *Handler) listOpportunities(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusOK, gin.H{"opportunities": []models.Opportunity{}})
		return
	}
	opps, err := h.repo.ListRecentOpportunities(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		fail(c, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"opportunities": opps})
}

func (h *Handler) listTrades(c *gin.Context) {
	ctx := c.Request.Context()
	limit := queryInt(c, "limit", 100)
	if h.repo == nil {
		// Without the store only the live book survives; resolved
		// trades have nothing to be listed from.
		trades := []models.PaperTrade{}
		if c.Query("status") != "resolved" {
			trades = h.trader.OpenTrades()
			if len(trades) > limit {
				trades = trades[:limit]
			}
		}
		c.JSON(http.StatusOK, gin.H{"trades": trades})
		return
	}
	var (
		trades []models.PaperTrade
		err    error
	)
	if c.Query("status") == "resolved" {
		trades, err = h.repo.ListResolvedTrades(ctx, limit)
	} else {
		trades, err = h.repo.ListOpenTrades(ctx, limit)
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (h *Handler) listScans(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusOK, gin.H{"scans": []models.Scan{}})
		return
	}
	scans, err := h.repo.ListRecentScans(c.Request.Context(), queryInt(c, "limit", 50))
	if err != nil {
		fail(c, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": scans})
}

func (h *Handler) listCalibration(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusOK, gin.H{"buckets": []models.CalibrationBucket{}})
		return
	}
	buckets, err := h.repo.ListCalibrationBuckets(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"buckets": buckets})
}

func (h *Handler) listParlays(c *gin.Context) {
	if h.parlays == nil {
		c.JSON(http.StatusOK, gin.H{"parlays": []parlay.Parlay{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"parlays": h.parlays.Current()})
}

func (h *Handler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.trader.Stats())
}

func (h *Handler) thresholds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"thresholds": h.learning.Thresholds()})
}

func (h *Handler) triggerScan(c *gin.Context) {
	// Detach from the request context so a closed connection does not
	// abort the scan midway.
	go h.orchestrator.RunOnce(context.WithoutCancel(c.Request.Context()))
	c.JSON(http.StatusAccepted, gin.H{"status": "scan started"})
}

type manualTradeRequest struct {
	MarketID string  `json:"market_id" binding:"required"`
	Side     string  `json:"side" binding:"required,oneof=YES NO"`
	Entry    float64 `json:"entry" binding:"required,gt=0,lt=1"`
	SizeUSD  float64 `json:"size_usd" binding:"required,gt=0"`
}

func (h *Handler) recordManual(c *gin.Context) {
	var req manualTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	trade, err := h.trader.RecordManual(c.Request.Context(), req.MarketID, req.Side, req.Entry, req.SizeUSD)
	if err != nil {
		if errors.Is(err, paper.ErrBusted) {
			fail(c, http.StatusConflict, "bankroll_busted", err.Error())
			return
		}
		fail(c, http.StatusBadRequest, "invalid_trade", err.Error())
		return
	}
	c.JSON(http.StatusCreated, trade)
}

type backtestRequest struct {
	Params paper.BacktestParams `json:"params"`
	Trades []backtestTradeBody  `json:"trades" binding:"required,min=1"`
}

type backtestTradeBody struct {
	MarketID string  `json:"market_id" binding:"required"`
	Side     string  `json:"side" binding:"required,oneof=YES NO"`
	Entry    float64 `json:"entry" binding:"required,gt=0,lt=1"`
	Score    float64 `json:"score"`
	Outcome  string  `json:"outcome" binding:"omitempty,oneof=YES NO"`
}

func (h *Handler) runBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	trades := make([]paper.BacktestTrade, 0, len(req.Trades))
	for _, t := range req.Trades {
		trades = append(trades, paper.BacktestTrade{
			MarketID: t.MarketID,
			Side:     t.Side,
			Entry:    t.Entry,
			Score:    t.Score,
			Outcome:  t.Outcome,
		})
	}
	result := paper.RunBacktest(c.Request.Context(), req.Params, trades, h.repo, h.logger)
	c.JSON(http.StatusOK, result)
}

func (h *Handler) resetBankroll(c *gin.Context) {
	if err := h.trader.Reset(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, "reset_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, h.trader.Stats())
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
