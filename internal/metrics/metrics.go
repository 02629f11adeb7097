// Package metrics provides Prometheus metrics for monitoring.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Skip classes recorded by RecordSkip.
const (
	SkipMissingEntity       = "missing_entity"
	SkipMalformedEvent      = "malformed_event"
	SkipUnresolvableNetwork = "unresolvable_network"
	SkipChainCall           = "chain_call"
	SkipUnresolvedToken     = "unresolved_token"
)

// Metrics holds all Prometheus metrics for the indexer.
type Metrics struct {
	// Engine
	EventsProcessed *prometheus.CounterVec
	EventsSkipped   *prometheus.CounterVec
	EventLatency    *prometheus.HistogramVec

	// Processor
	CommitDuration  prometheus.Histogram
	CursorBlock     prometheus.Gauge
	DuplicateEvents prometheus.Counter

	// Feed
	FeedLogs   *prometheus.CounterVec
	FeedHead   prometheus.Gauge
	RPCLatency *prometheus.HistogramVec

	// Store
	CacheRequests *prometheus.CounterVec

	// Valuation
	NativeCurrencyPrice prometheus.Gauge
	TotalLiquidityUSD   prometheus.Gauge
	TotalVolumeUSD      prometheus.Gauge
	PairCount           prometheus.Gauge
}

// NewMetrics registers the metrics with the default registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers the metrics with reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "honeyswap_indexer"
	}
	f := promauto.With(reg)

	return &Metrics{
		EventsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "events_processed_total",
			Help:      "Total number of events handled by event name and outcome",
		}, []string{"event", "outcome"}),
		EventsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "events_skipped_total",
			Help:      "Total number of events skipped by class",
		}, []string{"class"}),
		EventLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "event_latency_seconds",
			Help:      "Event handling latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),

		CommitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "commit_duration_seconds",
			Help:      "Block commit latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		CursorBlock: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "cursor_block",
			Help:      "Block number of the last committed event",
		}),
		DuplicateEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "duplicate_events_total",
			Help:      "Total number of redelivered events ignored by the cursor",
		}),

		FeedLogs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "logs_total",
			Help:      "Total number of raw events delivered by source",
		}, []string{"source"}),
		FeedHead: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "head_block",
			Help:      "Latest confirmed block seen by the feed",
		}),
		RPCLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		CacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "cache_requests_total",
			Help:      "Entity cache lookups by result",
		}, []string{"result"}),

		NativeCurrencyPrice: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dex",
			Name:      "native_currency_price_usd",
			Help:      "Bundle native currency price in USD",
		}),
		TotalLiquidityUSD: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dex",
			Name:      "total_liquidity_usd",
			Help:      "Factory tracked liquidity in USD",
		}),
		TotalVolumeUSD: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dex",
			Name:      "total_volume_usd",
			Help:      "Factory tracked volume in USD",
		}),
		PairCount: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dex",
			Name:      "pair_count",
			Help:      "Number of pairs created by the factory",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEvent counts a handled event and its latency.
func RecordEvent(event, outcome string, elapsed time.Duration) {
	DefaultMetrics.EventsProcessed.WithLabelValues(event, outcome).Inc()
	DefaultMetrics.EventLatency.WithLabelValues(event).Observe(elapsed.Seconds())
}

// RecordSkip counts a skipped event by class.
func RecordSkip(class string) {
	DefaultMetrics.EventsSkipped.WithLabelValues(class).Inc()
}

// RecordCommit records a block commit and advances the cursor gauge.
func RecordCommit(block uint64, elapsed time.Duration) {
	DefaultMetrics.CommitDuration.Observe(elapsed.Seconds())
	DefaultMetrics.CursorBlock.Set(float64(block))
}

func RecordDuplicate() {
	DefaultMetrics.DuplicateEvents.Inc()
}

// RecordFeedLogs counts raw events delivered by a source.
func RecordFeedLogs(source string, n int) {
	DefaultMetrics.FeedLogs.WithLabelValues(source).Add(float64(n))
}

func UpdateFeedHead(block uint64) {
	DefaultMetrics.FeedHead.Set(float64(block))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, elapsed time.Duration) {
	DefaultMetrics.RPCLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// RecordCache counts a cache hit or miss.
func RecordCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CacheRequests.WithLabelValues(result).Inc()
}

// UpdateDexStats sets the valuation gauges.
func UpdateDexStats(nativePrice, liquidityUSD, volumeUSD float64, pairs int64) {
	DefaultMetrics.NativeCurrencyPrice.Set(nativePrice)
	DefaultMetrics.TotalLiquidityUSD.Set(liquidityUSD)
	DefaultMetrics.TotalVolumeUSD.Set(volumeUSD)
	DefaultMetrics.PairCount.Set(float64(pairs))
}
