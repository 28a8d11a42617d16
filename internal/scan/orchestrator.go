package scan

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"edgescout/internal/client/news"
	"edgescout/internal/marketdata"
	"edgescout/internal/metrics"
	"edgescout/internal/models"
	"edgescout/internal/orderbook"
	"edgescout/internal/paper"
	"edgescout/internal/prob"
	"edgescout/internal/repository"
	"edgescout/internal/strategy"
)

// BookFetcher backfills REST orderbooks for tokens with no live feed.
type BookFetcher interface {
	GetOrderbook(ctx context.Context, tokenID string) (*models.Orderbook, error)
}

// NewsAnalyzer scores recent coverage of a market question.
type NewsAnalyzer interface {
	Analyze(ctx context.Context, question string) (*news.Sentiment, error)
}

// Options tunes one orchestrator.
type Options struct {
	Interval      time.Duration
	TopN          int
	StrategyLimit int
	BookBackfill  int
}

// Orchestrator drives the scan cycle: refresh, fan out strategies,
// dedup, rank, boost, and hand the best to the paper trader. A tick
// arriving while a scan runs is dropped.
type Orchestrator struct {
	opts       Options
	cache      *marketdata.Cache
	books      *orderbook.Store
	fetcher    BookFetcher
	strategies []strategy.Evaluator
	estimator  *prob.Estimator
	bookProv   strategy.OrderbookProvider
	trader     *paper.Trader
	tracker    *Tracker
	repo       repository.Repository
	notifier   paper.Notifier
	metrics    *metrics.Metrics
	logger     *zap.Logger

	news      NewsAnalyzer
	consensus strategy.ConsensusSource
	history   strategy.HistoryProvider

	running atomic.Bool
}

// SetEvidenceSources attaches the optional evidence feeds consulted when
// archiving the estimator's view of a market about to be traded.
func (o *Orchestrator) SetEvidenceSources(analyzer NewsAnalyzer, consensus strategy.ConsensusSource, history strategy.HistoryProvider) {
	o.news = analyzer
	o.consensus = consensus
	o.history = history
}

func NewOrchestrator(
	opts Options,
	cache *marketdata.Cache,
	books *orderbook.Store,
	fetcher BookFetcher,
	strategies []strategy.Evaluator,
	estimator *prob.Estimator,
	trader *paper.Trader,
	tracker *Tracker,
	repo repository.Repository,
	notifier paper.Notifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Orchestrator {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.TopN <= 0 {
		opts.TopN = 20
	}
	if opts.StrategyLimit <= 0 {
		opts.StrategyLimit = 8
	}
	if opts.BookBackfill <= 0 {
		opts.BookBackfill = 20
	}
	return &Orchestrator{
		opts:       opts,
		cache:      cache,
		books:      books,
		fetcher:    fetcher,
		strategies: strategies,
		estimator:  estimator,
		bookProv:   &orderbook.CleanProvider{Store: books},
		trader:     trader,
		tracker:    tracker,
		repo:       repo,
		notifier:   notifier,
		metrics:    m,
		logger:     logger,
	}
}

// Run executes scans on the configured period until ctx ends.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.opts.Interval)
	defer ticker.Stop()
	o.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single scan cycle. Returns false if a scan was
// already in flight.
func (o *Orchestrator) RunOnce(ctx context.Context) bool {
	if !o.running.CompareAndSwap(false, true) {
		if o.metrics != nil {
			o.metrics.ScansSkipped.Inc()
		}
		return false
	}
	defer o.running.Store(false)

	started := time.Now().UTC()
	marketCount, err := o.cache.Refresh(ctx)
	if err != nil {
		if o.logger != nil {
			o.logger.Warn("market refresh failed", zap.Error(err))
		}
		return true
	}
	if o.metrics != nil {
		o.metrics.MarketsCached.Set(float64(marketCount))
	}
	snaps := o.cache.All()
	o.backfillBooks(ctx)

	opps := o.fanOut(ctx, snaps)
	opps = dedupByMarketStrategy(opps)
	sort.SliceStable(opps, func(i, j int) bool { return opps[i].Score > opps[j].Score })
	if o.tracker != nil {
		o.tracker.Apply(opps, started)
		// Boosts can reorder the ranking.
		sort.SliceStable(opps, func(i, j int) bool { return opps[i].Score > opps[j].Score })
	}

	top := opps
	if len(top) > o.opts.TopN {
		top = top[:o.opts.TopN]
	}
	recorded := 0
	if o.trader != nil {
		recorded = o.trader.RecordScanResults(ctx, top, o.archiveSignals(ctx, top))
	}

	duration := time.Since(started)
	o.persistScan(ctx, started, duration, marketCount, opps, recorded)
	o.publish(top, marketCount, duration, recorded)
	if o.metrics != nil {
		o.metrics.ScansTotal.Inc()
		o.metrics.ScanDuration.Observe(duration.Seconds())
		o.metrics.Opportunities.Add(float64(len(opps)))
		o.metrics.TradesRecorded.Add(float64(recorded))
		if o.trader != nil {
			o.metrics.Bankroll.Set(o.trader.Bankroll())
		}
	}
	if o.logger != nil {
		o.logger.Info("scan complete",
			zap.Int("markets", marketCount),
			zap.Int("opportunities", len(opps)),
			zap.Int("recorded", recorded),
			zap.Duration("duration", duration))
	}
	return true
}

// backfillBooks fetches REST books for the most liquid tokens that have
// no fresh WebSocket snapshot.
func (o *Orchestrator) backfillBooks(ctx context.Context) {
	if o.fetcher == nil || o.books == nil {
		return
	}
	top := o.cache.TopByLiquidity(o.opts.BookBackfill)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, snap := range top {
		if snap.YesTokenID == "" {
			continue
		}
		if _, fresh := o.books.Latest(snap.YesTokenID); fresh {
			continue
		}
		tokenID := snap.YesTokenID
		g.Go(func() error {
			book, err := o.fetcher.GetOrderbook(gctx, tokenID)
			if err != nil {
				if o.logger != nil {
					o.logger.Debug("book backfill failed", zap.String("token", tokenID), zap.Error(err))
				}
				return nil
			}
			o.books.Record(book)
			return nil
		})
	}
	_ = g.Wait()
}

// fanOut runs every strategy concurrently and collects the results.
// A failed or timed-out strategy is omitted without aborting the scan.
func (o *Orchestrator) fanOut(ctx context.Context, snaps []models.Snapshot) []models.Opportunity {
	bankroll := 0.0
	if o.trader != nil {
		bankroll = o.trader.Bankroll()
	}
	var mu sync.Mutex
	var out []models.Opportunity
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.StrategyLimit)
	for _, ev := range o.strategies {
		ev := ev
		g.Go(func() error {
			opps := ev.Evaluate(gctx, snaps, bankroll)
			mu.Lock()
			out = append(out, opps...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// archiveSignals runs the estimator over the markets about to be traded
// so each recorded trade carries the evidence that backed it.
func (o *Orchestrator) archiveSignals(ctx context.Context, top []models.Opportunity) map[string][]models.ArchivedSignal {
	if o.estimator == nil {
		return nil
	}
	out := map[string][]models.ArchivedSignal{}
	for _, opp := range top {
		if _, done := out[opp.MarketID]; done {
			continue
		}
		snap, ok := o.cache.ByID(opp.MarketID)
		if !ok {
			continue
		}
		var clean *models.Orderbook
		if o.bookProv != nil {
			clean, _, _ = o.bookProv.CleanBook(snap.YesTokenID)
		}
		est := o.estimator.Estimate(o.buildInputs(ctx, snap, clean))
		archived := make([]models.ArchivedSignal, 0, len(est.Contributions))
		for _, c := range est.Contributions {
			direction := models.SideYes
			if c.RawLLR < 0 {
				direction = models.SideNo
			}
			archived = append(archived, models.ArchivedSignal{
				Name:      c.Name,
				RawLLR:    c.RawLLR,
				Direction: direction,
			})
		}
		out[opp.MarketID] = archived
	}
	return out
}

// buildInputs gathers what the optional evidence sources can provide;
// any source failing just leaves its slot empty.
func (o *Orchestrator) buildInputs(ctx context.Context, snap models.Snapshot, clean *models.Orderbook) prob.Inputs {
	in := prob.Inputs{Snapshot: snap, CleanBook: clean}
	if o.history != nil && snap.YesTokenID != "" {
		if points, err := o.history.PriceHistory(ctx, snap.YesTokenID, 1, 30); err == nil {
			in.History = points
		}
	}
	if o.consensus != nil {
		if c, ok := o.consensus.Consensus(snap); ok {
			in.Consensus = &prob.Consensus{Prob: c.Prob, Books: c.Books}
		}
	}
	if o.news != nil {
		newsCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		sentiment, err := o.news.Analyze(newsCtx, snap.Question)
		cancel()
		if err == nil && sentiment != nil {
			in.News = &prob.NewsSignal{
				AvgSentiment:  sentiment.AvgSentiment,
				HeadlineCount: sentiment.HeadlineCount,
				Confidence:    sentiment.Confidence,
				LLR:           sentiment.LLR,
			}
		}
	}
	return in
}

func dedupByMarketStrategy(opps []models.Opportunity) []models.Opportunity {
	best := map[string]int{}
	var out []models.Opportunity
	for _, opp := range opps {
		key := opp.MarketID + "|" + opp.Strategy
		if idx, seen := best[key]; seen {
			if opp.Score > out[idx].Score {
				out[idx] = opp
			}
			continue
		}
		best[key] = len(out)
		out = append(out, opp)
	}
	return out
}

func (o *Orchestrator) persistScan(ctx context.Context, started time.Time, duration time.Duration, markets int, opps []models.Opportunity, recorded int) {
	if o.repo == nil {
		return
	}
	counts := map[string]int{}
	topScore := 0.0
	for _, opp := range opps {
		counts[opp.Strategy]++
		if opp.Score > topScore {
			topScore = opp.Score
		}
	}
	strategies, _ := json.Marshal(counts)
	row := &models.Scan{
		StartedAt:     started,
		DurationMs:    duration.Milliseconds(),
		Markets:       markets,
		Opportunities: len(opps),
		Recorded:      recorded,
		TopScore:      topScore,
		Strategies:    strategies,
	}
	if err := o.repo.InsertScan(ctx, row); err != nil {
		if o.logger != nil {
			o.logger.Warn("scan insert failed", zap.Error(err))
		}
		return
	}
	if len(opps) > 0 {
		for i := range opps {
			opps[i].ScanID = row.ID
		}
		if err := o.repo.InsertOpportunities(ctx, opps); err != nil && o.logger != nil {
			o.logger.Warn("opportunity insert failed", zap.Error(err))
		}
	}
}

func (o *Orchestrator) publish(top []models.Opportunity, markets int, duration time.Duration, recorded int) {
	if o.notifier == nil {
		return
	}
	for _, opp := range top {
		o.notifier.Publish("edge:detected", opp)
	}
	o.notifier.Publish("scan:complete", map[string]any{
		"markets":       markets,
		"opportunities": len(top),
		"recorded":      recorded,
		"duration_ms":   duration.Milliseconds(),
	})
}
