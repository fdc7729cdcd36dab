// Package metrics provides Prometheus metrics for the arena rating service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the arena service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Voting
	votes          *prometheus.CounterVec
	voteErrors     *prometheus.CounterVec
	votesDuplicate prometheus.Counter
	ratingDelta    prometheus.Histogram
	voteLatency    prometheus.Histogram

	// Matchmaking
	matchmakingPicks    *prometheus.CounterVec
	matchmakingFailures prometheus.Counter

	// Normalization
	normalizeRuns    *prometheus.CounterVec
	normalizeDrift   *prometheus.GaugeVec
	normalizeLatency prometheus.Histogram
	normalizeDropped prometheus.Counter

	// Store
	itemsTotal   prometheus.Gauge
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "arena",
		subsystem:        "rating",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.votes = auto.NewCounterVec(m.counterOpts("votes_total",
		"Total number of applied votes by dimension and outcome"),
		[]string{"dimension", "outcome"})
	m.voteErrors = auto.NewCounterVec(m.counterOpts("vote_errors_total",
		"Total number of rejected or failed votes by reason"),
		[]string{"reason"})
	m.votesDuplicate = auto.NewCounter(m.counterOpts("votes_duplicate_total",
		"Total number of replayed ballots ignored"))
	m.ratingDelta = auto.NewHistogram(m.histogramOpts("rating_delta_points",
		"Absolute rating change applied to the first item of a vote",
		[]float64{1, 2, 5, 10, 15, 20, 25, 30, 40, 50, 60}))
	m.voteLatency = auto.NewHistogram(m.histogramOpts("vote_latency_milliseconds",
		"End to end vote handling latency in milliseconds", m.histogramBuckets))

	m.matchmakingPicks = auto.NewCounterVec(m.counterOpts("matchmaking_picks_total",
		"Total number of pairs produced by selection mode"),
		[]string{"mode"})
	m.matchmakingFailures = auto.NewCounter(m.counterOpts("matchmaking_failures_total",
		"Total number of pair requests that could not be served"))

	m.normalizeRuns = auto.NewCounterVec(m.counterOpts("normalize_runs_total",
		"Total number of per-dimension normalization outcomes by status"),
		[]string{"dimension", "status"})
	m.normalizeDrift = auto.NewGaugeVec(m.gaugeOpts("normalize_drift_points",
		"Last observed drift of the dimension mean from the baseline"),
		[]string{"dimension"})
	m.normalizeLatency = auto.NewHistogram(m.histogramOpts("normalize_latency_milliseconds",
		"Normalization pass latency in milliseconds", m.histogramBuckets))
	m.normalizeDropped = auto.NewCounter(m.counterOpts("normalize_dropped_total",
		"Total number of normalization requests dropped because the queue was full or closed"))

	m.itemsTotal = auto.NewGauge(m.gaugeOpts("items_total",
		"Number of items in the store"))
	m.storeLatency = auto.NewHistogramVec(m.histogramOpts("store_latency_milliseconds",
		"Store operation latency in milliseconds", m.histogramBuckets),
		[]string{"operation"})
	m.storeErrors = auto.NewCounterVec(m.counterOpts("store_errors_total",
		"Total number of store operation errors"),
		[]string{"operation"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size",
		"Current size of the normalization queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity",
		"Maximum queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio",
		"Queue utilization ratio (current size / capacity)"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total",
		"Total number of messages enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total",
		"Total number of messages dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total",
		"Total number of enqueue errors"))

	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count",
		"Number of active workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Worker processing latency in milliseconds", m.histogramBuckets))
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total",
		"Total number of worker errors"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"Total number of errors by endpoint"),
		[]string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes",
		"System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count",
		"Number of goroutines"))
}

// Enabled reports whether recording is turned on for the global manager.
func Enabled() bool {
	return globalManager.enabled
}

// RefreshInterval returns how often gauge samplers should refresh.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// Voting Metrics Functions.

// RecordVote counts an applied vote.
func RecordVote(dimension, outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.votes.WithLabelValues(dimension, outcome).Inc()
}

// RecordVoteError counts a rejected or failed vote.
func RecordVoteError(reason string) {
	if !globalManager.enabled {
		return
	}
	globalManager.voteErrors.WithLabelValues(reason).Inc()
}

// RecordVoteDuplicate counts a replayed ballot.
func RecordVoteDuplicate() {
	if !globalManager.enabled {
		return
	}
	globalManager.votesDuplicate.Inc()
}

// RecordRatingDelta records the size of a rating change.
func RecordRatingDelta(delta float64) {
	if !globalManager.enabled {
		return
	}
	if delta < 0 {
		delta = -delta
	}
	globalManager.ratingDelta.Observe(delta)
}

// RecordVoteLatency records vote latency in milliseconds.
func RecordVoteLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.voteLatency.Observe(latencyMs)
}

// Matchmaking Metrics Functions.

// RecordMatchmakingPick counts a produced pair by mode.
func RecordMatchmakingPick(mode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.matchmakingPicks.WithLabelValues(mode).Inc()
}

// RecordMatchmakingFailure counts a pair request that could not be served.
func RecordMatchmakingFailure() {
	if !globalManager.enabled {
		return
	}
	globalManager.matchmakingFailures.Inc()
}

// Normalization Metrics Functions.

// RecordNormalizeRun counts a per-dimension normalization outcome.
// Status is one of applied, skipped, empty or failed.
func RecordNormalizeRun(dimension, status string) {
	if !globalManager.enabled {
		return
	}
	globalManager.normalizeRuns.WithLabelValues(dimension, status).Inc()
}

// UpdateNormalizeDrift records the last drift measured for a dimension.
func UpdateNormalizeDrift(dimension string, drift float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.normalizeDrift.WithLabelValues(dimension).Set(drift)
}

// RecordNormalizeLatency records a normalization pass duration.
func RecordNormalizeLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.normalizeLatency.Observe(latencyMs)
}

// RecordNormalizeDropped counts a normalization request that was not queued.
func RecordNormalizeDropped() {
	if !globalManager.enabled {
		return
	}
	globalManager.normalizeDropped.Inc()
}

// Store Metrics Functions.

// UpdateItemsTotal sets the item population gauge.
func UpdateItemsTotal(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.itemsTotal.Set(float64(count))
}

// RecordStoreLatency records a store operation latency.
func RecordStoreLatency(operation string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.storeLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(operation string) {
	if !globalManager.enabled {
		return
	}
	globalManager.storeErrors.WithLabelValues(operation).Inc()
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueEnqueueErrors.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if !globalManager.enabled {
		return
	}
	globalManager.workerErrorRate.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
