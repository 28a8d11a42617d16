package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects engine-level counters and gauges.
type Metrics struct {
	ScanDuration   prometheus.Histogram
	ScansTotal     prometheus.Counter
	ScansSkipped   prometheus.Counter
	Opportunities  prometheus.Counter
	TradesRecorded prometheus.Counter
	TradesResolved prometheus.Counter
	Bankroll       prometheus.Gauge
	MarketsCached  prometheus.Gauge
	WSReconnects   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "edgescout",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of one full scan cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		ScansTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "edgescout",
			Name:      "scans_total",
			Help:      "Completed scan cycles.",
		}),
		ScansSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "edgescout",
			Name:      "scans_skipped_total",
			Help:      "Ticks dropped because a scan was already running.",
		}),
		Opportunities: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "edgescout",
			Name:      "opportunities_total",
			Help:      "Opportunities emitted after dedup and ranking.",
		}),
		TradesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "edgescout",
			Name:      "paper_trades_recorded_total",
			Help:      "Paper trades filed by the trader.",
		}),
		TradesResolved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "edgescout",
			Name:      "paper_trades_resolved_total",
			Help:      "Paper trades settled by the resolver.",
		}),
		Bankroll: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "edgescout",
			Name:      "bankroll_usd",
			Help:      "Current simulated bankroll.",
		}),
		MarketsCached: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "edgescout",
			Name:      "markets_cached",
			Help:      "Snapshots in the market cache after the last refresh.",
		}),
		WSReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "edgescout",
			Name:      "ws_reconnects_total",
			Help:      "Market WebSocket re-dials.",
		}),
	}
}
