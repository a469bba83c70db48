package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 指标收集器
type Metrics struct {
	// 索引器
	eventsProcessed *prometheus.CounterVec
	eventsDeduped   *prometheus.CounterVec
	handlerErrors   *prometheus.CounterVec
	indexerBlock    *prometheus.GaugeVec
	indexerLag      *prometheus.GaugeVec
	openInterest    *prometheus.GaugeVec
	// 消息队列
	messageQueueSize      prometheus.Gauge
	messageQueueFullTotal prometheus.Counter
	// 批量写入器
	batchWriteSize         prometheus.Histogram
	batchWriteDurationSecs prometheus.Histogram
	batchWriteErrors       *prometheus.CounterVec
	// 缓存
	cacheHitTotal  *prometheus.CounterVec
	cacheMissTotal *prometheus.CounterVec
	// NATS
	natsConnected     prometheus.Gauge
	natsPublished     *prometheus.CounterVec
	natsPublishErrors *prometheus.CounterVec
	// 行情刷新
	refreshCycles   *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	readFailures    *prometheus.CounterVec
	chainViolations *prometheus.CounterVec
	markPrice       *prometheus.GaugeVec
	indexPrice      *prometheus.GaugeVec
	fundingRate     *prometheus.GaugeVec
	spread          *prometheus.GaugeVec
	bookLevels      *prometheus.GaugeVec
	// keeper
	keeperTx *prometheus.CounterVec
}

// NewMetrics 创建并注册指标
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Total number of exchange events applied by the indexer",
		}, []string{"market", "event"}),
		eventsDeduped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_deduplicated_total",
			Help:      "Total number of re-delivered events skipped",
		}, []string{"market"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Total number of event handler errors",
		}, []string{"event"}),
		indexerBlock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexer_block",
			Help:      "Last block fully processed by the indexer",
		}, []string{"market"}),
		indexerLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexer_lag_blocks",
			Help:      "Blocks between chain head and the indexer cursor",
		}, []string{"market"}),
		messageQueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "message_queue_size",
			Help:      "消息队列当前大小",
		}),
		messageQueueFullTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_queue_full_total",
			Help:      "消息队列满、生产者阻塞的次数",
		}),
		batchWriteSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_write_size",
			Help:      "批量写入大小分布",
			Buckets:   []float64{1, 10, 25, 50, 100, 200, 500},
		}),
		batchWriteDurationSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_write_duration_seconds",
			Help:      "批量写入耗时分布（秒）",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		batchWriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_write_errors_total",
			Help:      "Total number of failed batch upserts",
		}, []string{"table"}),
		cacheHitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hit_total",
			Help:      "缓存命中总数（按缓存类型）",
		}, []string{"cache_type"}),
		cacheMissTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_miss_total",
			Help:      "缓存未命中总数（按缓存类型）",
		}, []string{"cache_type"}),
		natsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nats_connected",
			Help:      "NATS connection status (1=connected, 0=disconnected)",
		}),
		natsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nats_published_total",
			Help:      "Total number of messages published to NATS",
		}, []string{"kind"}),
		natsPublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nats_publish_errors_total",
			Help:      "Total number of NATS publish errors",
		}, []string{"kind"}),
		refreshCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Market refresh cycles by result (ok, partial, skipped)",
		}, []string{"market", "result"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Market refresh cycle duration",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		}, []string{"market"}),
		readFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_failures_total",
			Help:      "Transient contract read failures",
		}, []string{"market", "read"}),
		chainViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_chain_violations_total",
			Help:      "Order chain traversals halted by a cycle or the hop limit",
		}, []string{"market"}),
		openInterest: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_interest",
			Help:      "Sum of long position sizes per market",
		}, []string{"market"}),
		markPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mark_price",
			Help:      "Last known mark price",
		}, []string{"market"}),
		indexPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_price",
			Help:      "Last known index price",
		}, []string{"market"}),
		fundingRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "funding_rate_estimate",
			Help:      "Estimated funding rate",
		}, []string{"market"}),
		spread: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "book_spread",
			Help:      "Best ask minus best bid",
		}, []string{"market"}),
		bookLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "book_levels",
			Help:      "Aggregated price levels per side",
		}, []string{"market", "side"}),
		keeperTx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keeper_transactions_total",
			Help:      "Keeper transactions by outcome",
		}, []string{"keeper", "market", "status"}),
	}

	reg.MustRegister(
		m.eventsProcessed,
		m.eventsDeduped,
		m.handlerErrors,
		m.indexerBlock,
		m.indexerLag,
		m.openInterest,
		m.messageQueueSize,
		m.messageQueueFullTotal,
		m.batchWriteSize,
		m.batchWriteDurationSecs,
		m.batchWriteErrors,
		m.cacheHitTotal,
		m.cacheMissTotal,
		m.natsConnected,
		m.natsPublished,
		m.natsPublishErrors,
		m.refreshCycles,
		m.refreshDuration,
		m.readFailures,
		m.chainViolations,
		m.markPrice,
		m.indexPrice,
		m.fundingRate,
		m.spread,
		m.bookLevels,
		m.keeperTx,
	)

	return m
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics 获取全局指标收集器
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = NewMetrics("perp", prometheus.DefaultRegisterer)
	})
	return globalMetrics
}

// InitMetrics 初始化指标收集器（供main使用）
func InitMetrics() {
	GetMetrics()
}
