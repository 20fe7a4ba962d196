// Package metrics provides Prometheus metrics for the dailyboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Leaderboard
	scoreUpdates          prometheus.Counter
	membersRemoved        prometheus.Counter
	expiryRefreshes       prometheus.Counter
	expiryRefreshFailures prometheus.Counter
	topQueries            prometheus.Counter
	boardsExpired         prometheus.Counter
	trackedBoards         prometheus.Gauge

	// Backing store
	storeCommandDuration *prometheus.HistogramVec
	storeErrors          *prometheus.CounterVec
	connectionInflight   prometheus.Gauge

	// Ingestion
	eventsAccepted   prometheus.Counter
	eventsDuplicate  prometheus.Counter
	eventsApplied    prometheus.Counter
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueRejected    *prometheus.CounterVec
	workerCount      prometheus.Gauge
	workerLatency    prometheus.Histogram
	workerErrors     prometheus.Counter
	dedupeSize       prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	// Process
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "dailyboard",
		subsystem:        "leaderboard",
		histogramBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.scoreUpdates = m.counter("score_updates_total", "Successful score increments")
	m.membersRemoved = m.counter("members_removed_total", "Members removed from leaderboards")
	m.expiryRefreshes = m.counter("expiry_refreshes_total", "Midnight expiry refreshes after a score write")
	m.expiryRefreshFailures = m.counter("expiry_refresh_failures_total", "Score writes whose expiry refresh failed")
	m.topQueries = m.counter("top_queries_total", "Top-N leaderboard queries")
	m.boardsExpired = m.counter("boards_expired_total", "Leaderboards dropped by the in-memory sweeper")
	m.trackedBoards = m.gauge("tracked_boards", "Leaderboards currently held by the in-memory store")

	m.storeCommandDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "store_command_duration_milliseconds",
		Help:        "Backing store command latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"command"})

	m.storeErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "store_errors_total",
		Help:        "Backing store failures by command and kind",
		ConstLabels: m.constLabels,
	}, []string{"command", "kind"})

	m.connectionInflight = m.gauge("connection_inflight", "Commands currently holding the shared connection")

	m.eventsAccepted = m.counter("events_accepted_total", "Score events accepted for asynchronous processing")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Score events rejected as duplicates")
	m.eventsApplied = m.counter("events_applied_total", "Score events applied by workers")
	m.queueSize = m.gauge("queue_size", "Current event queue length")
	m.queueCapacity = m.gauge("queue_capacity", "Event queue capacity")
	m.queueUtilization = m.gauge("queue_utilization", "Event queue length over capacity")

	m.queueRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "queue_rejected_total",
		Help:        "Events the queue refused, by reason",
		ConstLabels: m.constLabels,
	}, []string{"reason"})

	m.workerCount = m.gauge("worker_count", "Running ingestion workers")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds", "Time to apply one event")
	m.workerErrors = m.counter("worker_errors_total", "Events a worker failed to apply")
	m.dedupeSize = m.gauge("dedupe_size", "Event ids held by the dedupe cache")

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "HTTP requests by endpoint, method and status",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_errors_total",
		Help:        "HTTP error responses by endpoint, method and error type",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause in milliseconds")
}

// Leaderboard.

// RecordScoreUpdate counts a successful score increment.
func RecordScoreUpdate() { globalManager.scoreUpdates.Inc() }

// RecordMembersRemoved counts removed members.
func RecordMembersRemoved(n int64) { globalManager.membersRemoved.Add(float64(n)) }

// RecordExpiryRefresh counts a successful expiry refresh.
func RecordExpiryRefresh() { globalManager.expiryRefreshes.Inc() }

// RecordExpiryRefreshFailure counts a score write left without a fresh expiry.
func RecordExpiryRefreshFailure() { globalManager.expiryRefreshFailures.Inc() }

// RecordTopQuery counts a top-N read.
func RecordTopQuery() { globalManager.topQueries.Inc() }

// RecordBoardsExpired counts boards dropped at their midnight.
func RecordBoardsExpired(n int) { globalManager.boardsExpired.Add(float64(n)) }

// UpdateTrackedBoards sets the number of live in-memory boards.
func UpdateTrackedBoards(n int) { globalManager.trackedBoards.Set(float64(n)) }

// Backing store.

// RecordStoreCommand records the latency of one backing store command.
func RecordStoreCommand(command string, latencyMs float64) {
	globalManager.storeCommandDuration.WithLabelValues(command).Observe(latencyMs)
}

// RecordStoreError counts a failed command by error kind.
func RecordStoreError(command, kind string) {
	globalManager.storeErrors.WithLabelValues(command, kind).Inc()
}

// AddConnectionInflight moves the in-flight gauge by delta.
func AddConnectionInflight(delta float64) { globalManager.connectionInflight.Add(delta) }

// Ingestion.

// RecordEventAccepted counts an event accepted into the queue.
func RecordEventAccepted() { globalManager.eventsAccepted.Inc() }

// RecordEventDuplicate counts a duplicate event.
func RecordEventDuplicate() { globalManager.eventsDuplicate.Inc() }

// RecordEventApplied counts an event a worker applied to the store.
func RecordEventApplied() { globalManager.eventsApplied.Inc() }

// UpdateQueue sets queue length and utilization.
func UpdateQueue(size, capacity int) {
	globalManager.queueSize.Set(float64(size))
	if capacity > 0 {
		globalManager.queueUtilization.Set(float64(size) / float64(capacity))
	}
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueRejected counts an event the queue refused.
func RecordQueueRejected(reason string) { globalManager.queueRejected.WithLabelValues(reason).Inc() }

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordWorkerLatency records how long a worker took on one event.
func RecordWorkerLatency(latencyMs float64) { globalManager.workerLatency.Observe(latencyMs) }

// RecordWorkerError counts a failed event.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// UpdateDedupeSize sets the number of remembered event ids.
func UpdateDedupeSize(n int64) { globalManager.dedupeSize.Set(float64(n)) }

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordHTTPError records an error response.
func RecordHTTPError(endpoint, method, errorType string) {
	globalManager.httpErrors.WithLabelValues(endpoint, method, errorType).Inc()
}

// Process.

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the registry the service metrics live on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
