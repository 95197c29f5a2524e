package telemetry

// FetchBuckets for daemon request/reply round trips
var FetchBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Cache Metrics
var (
	// CacheEntriesActive tracks live cache entries
	CacheEntriesActive Gauge = NoopStat{}

	// CacheEvictionsTotal counts evicted cache entries
	CacheEvictionsTotal Counter = NoopStat{}

	// FetchesTotal counts query fetches by result (success, failed, decode_failed)
	FetchesTotal CounterVec = noopCounterVec{}

	// FetchDurationSeconds measures query fetch latency
	FetchDurationSeconds Histogram = NoopStat{}
)

// Push Synchronization Metrics
var (
	// SubscriptionsActive tracks established push subscriptions
	SubscriptionsActive Gauge = NoopStat{}

	// SubscribeFailuresTotal counts subscribe calls that never produced a handle
	SubscribeFailuresTotal Counter = NoopStat{}

	// PushesTotal counts push events by outcome (mutated, refetched, skipped, deduped)
	PushesTotal CounterVec = noopCounterVec{}

	// DedupeInsertFailuresTotal counts pushes the saturated dedupe filter
	// could not record
	DedupeInsertFailuresTotal Counter = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after the registry exists; until then every metric is a no-op.
func InitMetrics() {
	CacheEntriesActive = NewGauge(
		"cache_entries_active",
		"Number of live cache entries",
	)
	CacheEvictionsTotal = NewCounter(
		"cache_evictions_total",
		"Total cache entries evicted",
	)
	FetchesTotal = NewCounterVec(
		"fetches_total",
		"Query fetches by result",
		[]string{"result"},
	)
	FetchDurationSeconds = NewHistogram(
		"fetch_duration_seconds",
		"Query fetch latency in seconds",
		FetchBuckets,
	)

	SubscriptionsActive = NewGauge(
		"subscriptions_active",
		"Number of established push subscriptions",
	)
	SubscribeFailuresTotal = NewCounter(
		"subscribe_failures_total",
		"Subscribe calls that failed before producing a handle",
	)
	PushesTotal = NewCounterVec(
		"pushes_total",
		"Push events by outcome",
		[]string{"outcome"},
	)
	DedupeInsertFailuresTotal = NewCounter(
		"dedupe_insert_failures_total",
		"Pushes the saturated dedupe filter could not record",
	)
}
