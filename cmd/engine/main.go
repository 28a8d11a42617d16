package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"edgescout/internal/calibration"
	"edgescout/internal/client/kalshi"
	"edgescout/internal/client/news"
	"edgescout/internal/client/oddsapi"
	"edgescout/internal/client/polymarket"
	"edgescout/internal/config"
	"edgescout/internal/consensus"
	cronrunner "edgescout/internal/cron"
	"edgescout/internal/db"
	"edgescout/internal/handler"
	"edgescout/internal/logger"
	"edgescout/internal/marketdata"
	"edgescout/internal/metrics"
	"edgescout/internal/models"
	"edgescout/internal/orderbook"
	"edgescout/internal/paper"
	"edgescout/internal/parlay"
	"edgescout/internal/prob"
	"edgescout/internal/repository"
	gormrepository "edgescout/internal/repository/gorm"
	"edgescout/internal/scan"
	"edgescout/internal/strategy"
)

func main() {
	cfgPath := os.Getenv("ES_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := false
	if raw := os.Getenv("ES_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	store, dbConn := openStore(cfg, log)
	defer db.Close(dbConn)

	registry := prometheus.NewRegistry()
	engineMetrics := metrics.New(registry)

	polyClient := polymarket.NewClient(&http.Client{Timeout: cfg.Gamma.Timeout}, cfg.Gamma.BaseURL, cfg.ClobREST.BaseURL, cfg.DataAPI.BaseURL)
	var kalshiSrc marketdata.KalshiSource
	var kalshiTrades marketdata.KalshiTradeSource
	if cfg.Kalshi.Enabled {
		kalshiClient := kalshi.New(cfg.Kalshi)
		kalshiSrc = kalshiClient
		kalshiTrades = kalshiClient
	}
	cache := marketdata.NewCache(polyClient, kalshiSrc, cfg.Scan.MaxMarkets, log)
	volumes := marketdata.NewVolumeSource(polyClient, kalshiTrades, log)

	books := orderbook.NewStore()
	stream := polymarket.NewStream(polymarket.StreamOptions{
		URL:               cfg.ClobWS.URL,
		ConnectTimeout:    cfg.ClobWS.ConnectTimeout,
		HeartbeatInterval: cfg.ClobWS.HeartbeatInterval,
		BackoffBase:       cfg.ClobWS.BackoffBase,
		BackoffFactor:     cfg.ClobWS.BackoffFactor,
		BackoffMax:        cfg.ClobWS.BackoffMax,
		MaxSubscriptions:  cfg.ClobWS.MaxSubscriptions,
		Logger:            log,
	}, &orderbook.Feed{Store: books})

	calibStore := calibration.NewStore(store, cfg.Calibration.Path, log)
	estimator := prob.NewEstimator(calibStore)
	learning := paper.NewLearning(cfg.Trading.MinScore, cfg.Paper.LearningPath, log)

	broker := handler.NewBroker(log)
	if store == nil {
		broker.MarkMemoryOnly()
		broker.Publish("status:update", gin.H{"persistence": "memory"})
	}
	trader := paper.NewTrader(paper.Options{
		StartBankroll:   cfg.Paper.StartBankroll,
		MinScore:        cfg.Trading.MinScore,
		DedupWindow:     cfg.Paper.DedupWindow,
		TradesPath:      cfg.Paper.TradesPath,
		ResolutionsPath: cfg.Paper.ResolutionsPath,
	}, cache, store, calibStore, learning, broker, log)

	bookProv := &orderbook.CleanProvider{Store: books}
	history := &marketdata.HistoryAdapter{Client: polyClient}
	events := &marketdata.EventAdapter{Client: polyClient}

	var oddsClient *oddsapi.Client
	var matcher *consensus.Matcher
	if cfg.OddsAPI.Enabled {
		oddsClient = oddsapi.New(cfg.OddsAPI, log)
		matcher = consensus.NewMatcher(oddsClient, nil, log)
	}

	strategies := []strategy.Evaluator{
		&strategy.Complement{Logger: log},
		&strategy.GroupArb{Events: events, Logger: log},
		&strategy.OrderbookArb{Books: bookProv, Logger: log},
		&strategy.ICT{Books: bookProv, History: history, Thresholds: learning, Logger: log},
		&strategy.Momentum{History: history, Volumes: volumes, Thresholds: learning, Logger: log},
		&strategy.Whale{History: history, Volumes: volumes, Thresholds: learning, Logger: log},
	}
	if matcher != nil {
		strategies = append(strategies, &strategy.CrossVenue{Consensus: matcher, Thresholds: learning, Logger: log})
	}

	tracker := scan.NewTracker(cfg.Scan.PersistenceTTL, cfg.Scan.PersistencePath, log)
	orchestrator := scan.NewOrchestrator(scan.Options{
		Interval:      cfg.Scan.Interval,
		TopN:          cfg.Scan.TopN,
		StrategyLimit: cfg.Scan.StrategyLimit,
	}, cache, books, polyClient, strategies, estimator, trader, tracker, store, broker, engineMetrics, log)

	var analyzer scan.NewsAnalyzer
	if cfg.News.Enabled {
		analyzer = news.New(cfg.News)
	}
	var consensusSrc strategy.ConsensusSource
	if matcher != nil {
		consensusSrc = matcher
	}
	orchestrator.SetEvidenceSources(analyzer, consensusSrc, history)

	var parlaySvc *parlay.Service
	if oddsClient != nil && cfg.Parlay.Enabled {
		builder := parlay.NewBuilder(parlay.BuilderOptions{
			MaxLegs:  cfg.Parlay.MaxLegs,
			MaxAccas: cfg.Parlay.MaxAccas,
			LegReuse: cfg.Parlay.LegReuse,
			Bankroll: cfg.Parlay.Bankroll,
			Logger:   log,
		})
		parlaySvc = parlay.NewService(oddsClient, builder, parlay.ServiceOptions{
			CachePath:       cfg.Parlay.CachePath,
			LineHistoryPath: cfg.Parlay.LineHistoryPath,
			CLVPath:         cfg.Parlay.CLVPath,
			Logger:          log,
		})
	}

	resolver := paper.NewResolver(trader, &paper.PolyStateSource{Client: polyClient}, cfg.Paper.ResolveBatch, log)

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	var parlaySource handler.ParlaySource
	if parlaySvc != nil {
		parlaySource = parlaySvc
	}
	h := handler.New(cache, trader, learning, store, orchestrator, parlaySource, broker, registry, log)
	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: h.Router(""),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(log, ctx)

	_, err = cronRunner.Add("@every "+cfg.Paper.ResolutionCheck.String(), func(ctx context.Context) {
		if resolved := resolver.CheckOnce(ctx); resolved > 0 {
			engineMetrics.TradesResolved.Add(float64(resolved))
			log.Info("trades resolved", zap.Int("count", resolved))
		}
	})
	if err != nil {
		log.Warn("cron register resolution check failed", zap.Error(err))
	}

	// Keep the live book feed pointed at what the scanner cares about.
	_, err = cronRunner.Add("@every 60s", func(ctx context.Context) {
		top := cache.TopByLiquidity(cfg.ClobWS.MaxSubscriptions)
		assets := make([]string, 0, len(top))
		for _, snap := range top {
			if snap.Venue == models.VenuePoly && snap.YesTokenID != "" {
				assets = append(assets, snap.YesTokenID)
			}
		}
		if len(assets) == 0 {
			return
		}
		subCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := stream.Subscribe(subCtx, assets); err != nil {
			log.Warn("ws subscribe failed", zap.Error(err))
		}
	})
	if err != nil {
		log.Warn("cron register ws subscribe failed", zap.Error(err))
	}

	var lastReconnects int64
	_, err = cronRunner.Add("@every 60s", func(context.Context) {
		now := stream.Reconnects()
		if delta := now - lastReconnects; delta > 0 {
			engineMetrics.WSReconnects.Add(float64(delta))
		}
		lastReconnects = now
	})
	if err != nil {
		log.Warn("cron register ws metrics failed", zap.Error(err))
	}

	cronRunner.Start()
	defer cronRunner.Stop()

	go func() {
		if err := stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("market stream stopped", zap.Error(err))
		}
	}()
	if matcher != nil {
		go matcher.Run(ctx, cfg.OddsAPI.CacheTTL)
	}
	if parlaySvc != nil {
		go parlaySvc.Run(ctx, cfg.OddsAPI.CacheTTL)
	}
	go orchestrator.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// openStore opens and migrates the durable store. When it is unreachable
// the engine keeps running on in-memory state alone, so both returns are
// nil and repo-backed consumers skip persistence.
func openStore(cfg config.Config, log *zap.Logger) (repository.Repository, *db.DB) {
	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		log.Warn("db open failed, continuing in-memory", zap.Error(err))
		return nil, nil
	}
	if err := db.Ping(dbConn); err != nil {
		log.Warn("db ping failed, continuing in-memory", zap.Error(err))
		_ = db.Close(dbConn)
		return nil, nil
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		log.Warn("auto-migrate failed, continuing in-memory", zap.Error(err))
		_ = db.Close(dbConn)
		return nil, nil
	}
	if imported, err := db.ImportLegacyJSON(dbConn, cfg.Paper.TradesPath); err != nil {
		log.Warn("legacy state import failed", zap.Error(err))
	} else if imported > 0 {
		log.Info("legacy state imported", zap.Int64("rows", imported))
	}
	return gormrepository.New(dbConn.Gorm), dbConn
}
