package monitor

// 便捷函数供外部调用，无需访问 Metrics 实例

func IncEventProcessed(market, event string) {
	GetMetrics().eventsProcessed.WithLabelValues(market, event).Inc()
}

func IncEventDeduped(market string) {
	GetMetrics().eventsDeduped.WithLabelValues(market).Inc()
}

func IncHandlerError(event string) {
	GetMetrics().handlerErrors.WithLabelValues(event).Inc()
}

// SetIndexerBlock 记录已处理区块和与链头的差距
func SetIndexerBlock(market string, block, head uint64) {
	m := GetMetrics()
	m.indexerBlock.WithLabelValues(market).Set(float64(block))
	lag := float64(0)
	if head > block {
		lag = float64(head - block)
	}
	m.indexerLag.WithLabelValues(market).Set(lag)
}

// SetMessageQueueSize 设置消息队列大小
func SetMessageQueueSize(size int) {
	GetMetrics().messageQueueSize.Set(float64(size))
}

// IncMessageQueueFull 增加消息队列满事件计数
func IncMessageQueueFull() {
	GetMetrics().messageQueueFullTotal.Inc()
}

// ObserveBatchWriteSize 观察批量写入大小
func ObserveBatchWriteSize(size int) {
	GetMetrics().batchWriteSize.Observe(float64(size))
}

// ObserveBatchWriteDuration 观察批量写入耗时
func ObserveBatchWriteDuration(seconds float64) {
	GetMetrics().batchWriteDurationSecs.Observe(seconds)
}

func IncBatchWriteError(table string) {
	GetMetrics().batchWriteErrors.WithLabelValues(table).Inc()
}

// IncCacheHit 增加缓存命中计数
func IncCacheHit(cacheType string) {
	GetMetrics().cacheHitTotal.WithLabelValues(cacheType).Inc()
}

// IncCacheMiss 增加缓存未命中计数
func IncCacheMiss(cacheType string) {
	GetMetrics().cacheMissTotal.WithLabelValues(cacheType).Inc()
}

func SetNATSConnected(connected bool) {
	v := float64(0)
	if connected {
		v = 1
	}
	GetMetrics().natsConnected.Set(v)
}

func IncNATSPublished(kind string) {
	GetMetrics().natsPublished.WithLabelValues(kind).Inc()
}

func IncNATSPublishError(kind string) {
	GetMetrics().natsPublishErrors.WithLabelValues(kind).Inc()
}

// IncRefreshCycle result: ok / partial / skipped
func IncRefreshCycle(market, result string) {
	GetMetrics().refreshCycles.WithLabelValues(market, result).Inc()
}

func ObserveRefreshDuration(market string, seconds float64) {
	GetMetrics().refreshDuration.WithLabelValues(market).Observe(seconds)
}

func IncReadFailure(market, read string) {
	GetMetrics().readFailures.WithLabelValues(market, read).Inc()
}

func IncChainViolation(market string) {
	GetMetrics().chainViolations.WithLabelValues(market).Inc()
}

func SetOpenInterest(market string, oi float64) {
	GetMetrics().openInterest.WithLabelValues(market).Set(oi)
}

// SetMarketGauges 价格类指标，单位为人类可读的浮点数
func SetMarketGauges(market string, mark, index, fundingRate, spread float64, bids, asks int) {
	m := GetMetrics()
	m.markPrice.WithLabelValues(market).Set(mark)
	m.indexPrice.WithLabelValues(market).Set(index)
	m.fundingRate.WithLabelValues(market).Set(fundingRate)
	m.spread.WithLabelValues(market).Set(spread)
	m.bookLevels.WithLabelValues(market, "bid").Set(float64(bids))
	m.bookLevels.WithLabelValues(market, "ask").Set(float64(asks))
}

// IncKeeperTx status: success / failed / error
func IncKeeperTx(keeper, market, status string) {
	GetMetrics().keeperTx.WithLabelValues(keeper, market, status).Inc()
}
