// Package metrics provides Prometheus metrics for the yap scoring service.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the yap service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Cache
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	cacheCoalesced    prometheus.Counter
	cacheDegraded     prometheus.Counter
	cacheSize         prometheus.Gauge
	cacheInFlight     prometheus.Gauge
	cacheMirrorErrors prometheus.Counter

	// Fetcher
	fetchLatency prometheus.Histogram
	fetchErrors  *prometheus.CounterVec

	// Scoring
	scoringLatency prometheus.Histogram
	scoringErrors  *prometheus.CounterVec
	yapsQualified  prometheus.Counter

	// Persistence
	yapsPersisted           prometheus.Counter
	yapsDeleted             prometheus.Counter
	totalYaps               prometheus.Gauge
	repositoryQueryLatency  prometheus.Histogram
	repositoryUpdateLatency prometheus.Histogram

	// Batch
	batchRequests *prometheus.CounterVec
	batchItems    *prometheus.CounterVec
	batchInFlight prometheus.Gauge

	// Registry
	registryVersion          prometheus.Gauge
	registryProfiles         *prometheus.GaugeVec
	registryRebuildDuration  prometheus.Histogram
	registryRefreshErrors    prometheus.Counter
	registrySnapshotLastUnix prometheus.Gauge

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueDuplicates        prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "yap",
		subsystem:        "engine",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(auto promauto.Factory, name, help string) prometheus.Counter {
	return auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(auto promauto.Factory, name, help string, labels ...string) *prometheus.CounterVec {
	return auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(auto promauto.Factory, name, help string) prometheus.Gauge {
	return auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(auto promauto.Factory, name, help string, buckets []float64) prometheus.Histogram {
	return auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	b := m.histogramBuckets

	m.cacheHits = m.counter(auto, "cache_hits_total", "Score lookups served from the cache")
	m.cacheMisses = m.counter(auto, "cache_misses_total", "Score lookups that required a computation")
	m.cacheCoalesced = m.counter(auto, "cache_coalesced_total", "Callers attached to an in-flight computation")
	m.cacheDegraded = m.counter(auto, "cache_degraded_total", "Lookups computed without the cache after a lock timeout")
	m.cacheSize = m.gauge(auto, "cache_entries", "Number of stored scores")
	m.cacheInFlight = m.gauge(auto, "cache_in_flight", "Computations currently in flight")
	m.cacheMirrorErrors = m.counter(auto, "cache_mirror_errors_total", "Failed reads or writes against the cache mirror")

	m.fetchLatency = m.histogram(auto, "fetch_latency_milliseconds", "Comment fetch latency in milliseconds", b)
	m.fetchErrors = m.counterVec(auto, "fetch_errors_total", "Comment fetch failures by kind", "kind")

	m.scoringLatency = m.histogram(auto, "scoring_latency_milliseconds", "End to end score computation latency in milliseconds", b)
	m.scoringErrors = m.counterVec(auto, "scoring_errors_total", "Score computation failures by kind", "kind")
	m.yapsQualified = m.counter(auto, "yaps_qualified_total", "Computed scores that qualified as a yap")

	m.yapsPersisted = m.counter(auto, "yaps_persisted_total", "Yaps created or updated in the store")
	m.yapsDeleted = m.counter(auto, "yaps_deleted_total", "Yaps removed from the store")
	m.totalYaps = m.gauge(auto, "yaps", "Number of yaps in the store")
	m.repositoryQueryLatency = m.histogram(auto, "repository_query_latency_milliseconds", "Store read latency in milliseconds", b)
	m.repositoryUpdateLatency = m.histogram(auto, "repository_update_latency_milliseconds", "Store write latency in milliseconds", b)

	m.batchRequests = m.counterVec(auto, "batch_requests_total", "Batch requests by outcome", "outcome")
	m.batchItems = m.counterVec(auto, "batch_items_total", "Batch items by status", "status")
	m.batchInFlight = m.gauge(auto, "batch_in_flight", "Batch items currently computing")

	m.registryVersion = m.gauge(auto, "registry_snapshot_version", "Version of the published registry snapshot")
	m.registryProfiles = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "registry_profiles", Help: "Profiles in the published snapshot by state",
	}, []string{"state"})
	m.registryRebuildDuration = m.histogram(auto, "registry_rebuild_duration_milliseconds", "Time to load and build a registry snapshot", b)
	m.registryRefreshErrors = m.counter(auto, "registry_refresh_errors_total", "Failed registry refreshes")
	m.registrySnapshotLastUnix = m.gauge(auto, "registry_snapshot_last_unix", "Unix time of the last published snapshot")

	m.queueSize = m.gauge(auto, "queue_size", "Jobs waiting in the process queue")
	m.queueCapacity = m.gauge(auto, "queue_capacity", "Capacity of the process queue")
	m.queueUtilization = m.gauge(auto, "queue_utilization_ratio", "Queue size divided by capacity")
	m.queueEnqueued = m.counter(auto, "queue_enqueued_total", "Jobs accepted by the queue")
	m.queueDequeued = m.counter(auto, "queue_dequeued_total", "Jobs taken from the queue")
	m.queueEnqueueErrors = m.counter(auto, "queue_enqueue_errors_total", "Jobs rejected by the queue")
	m.queueDuplicates = m.counter(auto, "queue_duplicates_total", "Jobs skipped because the same URL was already pending")
	m.queueProcessingLatency = m.histogram(auto, "queue_processing_latency_milliseconds", "Time from enqueue to dequeue in milliseconds", b)

	m.workerCount = m.gauge(auto, "worker_count", "Configured number of workers")
	m.workerActiveCount = m.gauge(auto, "worker_active_count", "Workers processing a job")
	m.workerIdleCount = m.gauge(auto, "worker_idle_count", "Workers waiting for a job")
	m.workerProcessingLatency = m.histogram(auto, "worker_processing_latency_milliseconds", "Job processing latency in milliseconds", b)
	m.workerErrors = m.counter(auto, "worker_errors_total", "Jobs that failed in a worker")

	m.httpRequests = m.counterVec(auto, "http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "http_request_duration_milliseconds", Help: "HTTP request duration in milliseconds", Buckets: b,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = m.counterVec(auto, "errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByEndpoint = m.counterVec(auto, "errors_by_endpoint_total", "Errors by endpoint, method and type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge(auto, "system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge(auto, "system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram(auto, "system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Cache.

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() { globalManager.cacheHits.Inc() }

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() { globalManager.cacheMisses.Inc() }

// RecordCacheCoalesced increments the counter of callers that joined an in-flight computation.
func RecordCacheCoalesced() { globalManager.cacheCoalesced.Inc() }

// RecordCacheDegraded increments the lock-timeout fallback counter.
func RecordCacheDegraded() { globalManager.cacheDegraded.Inc() }

// UpdateCacheSize sets the number of stored entries.
func UpdateCacheSize(size int) { globalManager.cacheSize.Set(float64(size)) }

// UpdateCacheInFlight sets the number of running computations.
func UpdateCacheInFlight(n int) { globalManager.cacheInFlight.Set(float64(n)) }

// RecordCacheMirrorError increments the mirror failure counter.
func RecordCacheMirrorError() { globalManager.cacheMirrorErrors.Inc() }

// Fetcher.

// RecordFetchLatency records a comment fetch latency in milliseconds.
func RecordFetchLatency(latencyMs float64) { globalManager.fetchLatency.Observe(latencyMs) }

// RecordFetchError increments fetch failures for an error kind.
func RecordFetchError(kind string) { globalManager.fetchErrors.WithLabelValues(kind).Inc() }

// Scoring.

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) { globalManager.scoringLatency.Observe(latencyMs) }

// RecordScoringError increments scoring failures for an error kind.
func RecordScoringError(kind string) { globalManager.scoringErrors.WithLabelValues(kind).Inc() }

// RecordYapQualified increments the qualified score counter.
func RecordYapQualified() { globalManager.yapsQualified.Inc() }

// Persistence.

// RecordYapPersisted increments the persisted yap counter.
func RecordYapPersisted() { globalManager.yapsPersisted.Inc() }

// RecordYapDeleted increments the deleted yap counter.
func RecordYapDeleted() { globalManager.yapsDeleted.Inc() }

// UpdateTotalYaps sets the number of stored yaps.
func UpdateTotalYaps(count int) { globalManager.totalYaps.Set(float64(count)) }

// RecordRepositoryQueryLatency records store read latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// RecordRepositoryUpdateLatency records store write latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// Batch.

// RecordBatchRequest counts a batch request by outcome ("accepted" or "rejected").
func RecordBatchRequest(outcome string) { globalManager.batchRequests.WithLabelValues(outcome).Inc() }

// RecordBatchItem counts a batch item by status ("ok", "failed", "invalid").
func RecordBatchItem(status string) { globalManager.batchItems.WithLabelValues(status).Inc() }

// UpdateBatchInFlight sets the number of batch items currently computing.
func UpdateBatchInFlight(n int) { globalManager.batchInFlight.Set(float64(n)) }

// Registry.

// UpdateRegistrySnapshot publishes the current snapshot's version and sizes.
func UpdateRegistrySnapshot(version uint64, profiles, reachable, seeds int, builtUnix int64) {
	globalManager.registryVersion.Set(float64(version))
	globalManager.registryProfiles.WithLabelValues("total").Set(float64(profiles))
	globalManager.registryProfiles.WithLabelValues("reachable").Set(float64(reachable))
	globalManager.registryProfiles.WithLabelValues("seed").Set(float64(seeds))
	globalManager.registrySnapshotLastUnix.Set(float64(builtUnix))
}

// RecordRegistryRebuildDuration records how long a refresh took.
func RecordRegistryRebuildDuration(ms float64) { globalManager.registryRebuildDuration.Observe(ms) }

// RecordRegistryRefreshError increments the failed refresh counter.
func RecordRegistryRefreshError() { globalManager.registryRefreshErrors.Inc() }

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// RecordQueueDuplicate increments the pending-duplicate counter.
func RecordQueueDuplicate() { globalManager.queueDuplicates.Inc() }

// RecordQueueProcessingLatency records time spent waiting in the queue.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) { globalManager.workerIdleCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method string, statusCode int) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, strconv.Itoa(statusCode)).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method string, statusCode int, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, strconv.Itoa(statusCode)).Observe(durationMs)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the heap memory in use.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Values gathers the custom registry and flattens counters and gauges into
// name -> value. Labelled series are summed per metric family.
func Values() (map[string]float64, error) {
	families, err := customRegistry.Gather()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGatherFailed, err)
	}
	out := make(map[string]float64, len(families))
	for _, mf := range families {
		var sum float64
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				sum += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				sum += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				sum += float64(metric.GetHistogram().GetSampleCount())
			}
		}
		out[mf.GetName()] = sum
	}
	return out, nil
}
