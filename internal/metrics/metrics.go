// Package metrics provides metrics collection and reporting for the MCP server.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Prometheus metric labels
const (
	labelOperation = "operation"
	labelKind      = "kind"
	labelClass     = "class"
)

// Metrics tracks operational metrics with both internal counters and Prometheus metrics
type Metrics struct {
	// Upstream request metrics (internal atomic counters for fast access)
	totalRequests      atomic.Uint64
	successfulRequests atomic.Uint64
	failedRequests     atomic.Uint64
	retriedRequests    atomic.Uint64

	// Cache metrics
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64

	// Latency tracking
	totalLatency atomic.Int64 // microseconds
	latencyCount atomic.Uint64
	maxLatency   atomic.Int64
	minLatency   atomic.Int64

	// Error tracking by taxonomy kind
	errorsMu     sync.RWMutex
	errorsByKind map[string]uint64

	// Operation usage tracking
	opsMu     sync.RWMutex
	opUsage   map[string]uint64
	opErrors  map[string]uint64
	opLatency map[string]int64 // microseconds

	logger *zap.Logger

	// Prometheus metrics
	promRequestsTotal      prometheus.Counter
	promRequestsSuccessful prometheus.Counter
	promRequestsFailed     prometheus.Counter
	promRequestsRetried    prometheus.Counter
	promCacheHits          *prometheus.CounterVec
	promCacheMisses        *prometheus.CounterVec
	promActiveSessions     prometheus.Gauge
	promRequestLatency     prometheus.Histogram
	promErrorsByKind       *prometheus.CounterVec
	promOperationCalls     *prometheus.CounterVec
	promOperationErrors    *prometheus.CounterVec
	promOperationLatency   *prometheus.HistogramVec
}

// New creates a new metrics tracker with Prometheus integration
func New(logger *zap.Logger) *Metrics {
	m := &Metrics{
		errorsByKind: make(map[string]uint64),
		opUsage:      make(map[string]uint64),
		opErrors:     make(map[string]uint64),
		opLatency:    make(map[string]int64),
		logger:       logger,

		// Initialize Prometheus metrics using promauto (auto-registers with default registry)
		promRequestsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "lightdash_mcp",
			Name:      "upstream_requests_total",
			Help:      "Total number of API requests made to the Lightdash instance",
		}),
		promRequestsSuccessful: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "lightdash_mcp",
			Name:      "upstream_requests_successful_total",
			Help:      "Total number of successful upstream requests",
		}),
		promRequestsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "lightdash_mcp",
			Name:      "upstream_requests_failed_total",
			Help:      "Total number of failed upstream requests",
		}),
		promRequestsRetried: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "lightdash_mcp",
			Name:      "upstream_requests_retried_total",
			Help:      "Total number of retried upstream requests",
		}),
		promCacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lightdash_mcp",
			Name:      "cache_hits_total",
			Help:      "Cache hits, labeled by TTL class (schema, listing, search)",
		}, []string{labelClass}),
		promCacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lightdash_mcp",
			Name:      "cache_misses_total",
			Help:      "Cache misses, labeled by TTL class",
		}, []string{labelClass}),
		promActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "lightdash_mcp",
			Name:      "active_sessions",
			Help:      "Number of currently active sessions",
		}),
		promRequestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lightdash_mcp",
			Name:      "upstream_latency_seconds",
			Help:      "Upstream request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}),
		promErrorsByKind: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lightdash_mcp",
			Name:      "errors_by_kind_total",
			Help:      "Errors by taxonomy kind (unauthorized, rate_limited, upstream_unavailable, ...)",
		}, []string{labelKind}),

		// Operation-specific metrics, labeled by operation name
		promOperationCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lightdash_mcp",
			Name:      "operation_calls_total",
			Help:      "Total number of operation invocations, labeled by operation (e.g. run_query, list_explores)",
		}, []string{labelOperation}),
		promOperationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lightdash_mcp",
			Name:      "operation_errors_total",
			Help:      "Total number of operation errors, labeled by operation",
		}, []string{labelOperation}),
		promOperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lightdash_mcp",
			Name:      "operation_latency_seconds",
			Help:      "Operation execution latency in seconds, labeled by operation",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{labelOperation}),
	}

	// Initialize min latency to max value
	m.minLatency.Store(int64(time.Hour))

	return m
}

// RecordUpstreamRequest records one upstream attempt.
func (m *Metrics) RecordUpstreamRequest(success bool, latency time.Duration, errorKind string) {
	m.totalRequests.Add(1)
	m.promRequestsTotal.Inc()
	m.promRequestLatency.Observe(latency.Seconds())

	if success {
		m.successfulRequests.Add(1)
		m.promRequestsSuccessful.Inc()
	} else {
		m.failedRequests.Add(1)
		m.promRequestsFailed.Inc()
		m.recordErrorKind(errorKind)
	}

	m.recordLatency(latency)
}

// RecordRetry records a retry attempt
func (m *Metrics) RecordRetry() {
	m.retriedRequests.Add(1)
	m.promRequestsRetried.Inc()
}

// RecordCacheHit records a cache hit for the given TTL class.
func (m *Metrics) RecordCacheHit(class string) {
	m.cacheHits.Add(1)
	m.promCacheHits.WithLabelValues(class).Inc()
}

// RecordCacheMiss records a cache miss for the given TTL class.
func (m *Metrics) RecordCacheMiss(class string) {
	m.cacheMisses.Add(1)
	m.promCacheMisses.WithLabelValues(class).Inc()
}

// SetActiveSessions updates the active session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.promActiveSessions.Set(float64(n))
}

// RecordOperation records an operation invocation with its outcome and latency.
func (m *Metrics) RecordOperation(operation string, success bool, latency time.Duration) {
	m.opsMu.Lock()
	m.opUsage[operation]++
	if !success {
		m.opErrors[operation]++
	}

	// Rolling average to avoid integer overflow
	if latency > 0 && m.opUsage[operation] > 0 {
		currentLatency := m.opLatency[operation]
		count := float64(m.opUsage[operation])
		avgLatency := (float64(currentLatency)*(count-1) + float64(latency.Microseconds())) / count
		m.opLatency[operation] = int64(avgLatency)
	}
	m.opsMu.Unlock()

	m.promOperationCalls.WithLabelValues(operation).Inc()
	m.promOperationLatency.WithLabelValues(operation).Observe(latency.Seconds())
	if !success {
		m.promOperationErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) recordLatency(latency time.Duration) {
	latencyUs := latency.Microseconds()

	m.totalLatency.Add(latencyUs)
	m.latencyCount.Add(1)

	for {
		currentMax := m.maxLatency.Load()
		if latencyUs <= currentMax {
			break
		}
		if m.maxLatency.CompareAndSwap(currentMax, latencyUs) {
			break
		}
	}

	for {
		currentMin := m.minLatency.Load()
		if latencyUs >= currentMin {
			break
		}
		if m.minLatency.CompareAndSwap(currentMin, latencyUs) {
			break
		}
	}
}

func (m *Metrics) recordErrorKind(kind string) {
	if kind == "" {
		return
	}

	m.errorsMu.Lock()
	m.errorsByKind[kind]++
	m.errorsMu.Unlock()

	m.promErrorsByKind.WithLabelValues(kind).Inc()
}

// GetStats returns current statistics
func (m *Metrics) GetStats() Stats {
	m.errorsMu.RLock()
	errorsByKind := make(map[string]uint64, len(m.errorsByKind))
	for k, v := range m.errorsByKind {
		errorsByKind[k] = v
	}
	m.errorsMu.RUnlock()

	m.opsMu.RLock()
	opUsage := make(map[string]uint64, len(m.opUsage))
	opErrors := make(map[string]uint64, len(m.opErrors))
	opLatency := make(map[string]time.Duration, len(m.opLatency))
	for k, v := range m.opUsage {
		opUsage[k] = v
	}
	for k, v := range m.opErrors {
		opErrors[k] = v
	}
	for k, v := range m.opLatency {
		opLatency[k] = time.Duration(v) * time.Microsecond
	}
	m.opsMu.RUnlock()

	totalReq := m.totalRequests.Load()
	latencyCount := m.latencyCount.Load()

	var avgLatency time.Duration
	if latencyCount > 0 {
		avgLatencyMicros := float64(m.totalLatency.Load()) / float64(latencyCount)
		avgLatency = time.Duration(avgLatencyMicros) * time.Microsecond
	}

	return Stats{
		TotalRequests:      totalReq,
		SuccessfulRequests: m.successfulRequests.Load(),
		FailedRequests:     m.failedRequests.Load(),
		RetriedRequests:    m.retriedRequests.Load(),
		CacheHits:          m.cacheHits.Load(),
		CacheMisses:        m.cacheMisses.Load(),
		AverageLatency:     avgLatency,
		MaxLatency:         time.Duration(m.maxLatency.Load()) * time.Microsecond,
		MinLatency:         time.Duration(m.minLatency.Load()) * time.Microsecond,
		ErrorsByKind:       errorsByKind,
		OperationUsage:     opUsage,
		OperationErrors:    opErrors,
		OperationLatency:   opLatency,
	}
}

// LogStats logs current statistics
func (m *Metrics) LogStats() {
	stats := m.GetStats()

	var errorRate float64
	if stats.TotalRequests > 0 {
		errorRate = float64(stats.FailedRequests) / float64(stats.TotalRequests) * 100
	}

	var hitRate float64
	if lookups := stats.CacheHits + stats.CacheMisses; lookups > 0 {
		hitRate = float64(stats.CacheHits) / float64(lookups) * 100
	}

	m.logger.Info("Operational metrics",
		zap.Uint64("total_requests", stats.TotalRequests),
		zap.Uint64("successful_requests", stats.SuccessfulRequests),
		zap.Uint64("failed_requests", stats.FailedRequests),
		zap.Float64("error_rate_pct", errorRate),
		zap.Uint64("retried_requests", stats.RetriedRequests),
		zap.Float64("cache_hit_rate_pct", hitRate),
		zap.Duration("avg_latency", stats.AverageLatency),
		zap.Duration("max_latency", stats.MaxLatency),
		zap.Duration("min_latency", stats.MinLatency),
		zap.Any("errors_by_kind", stats.ErrorsByKind),
		zap.Any("operation_usage", stats.OperationUsage),
	)
}

// Stats represents current metrics
type Stats struct {
	TotalRequests      uint64
	SuccessfulRequests uint64
	FailedRequests     uint64
	RetriedRequests    uint64
	CacheHits          uint64
	CacheMisses        uint64
	AverageLatency     time.Duration
	MaxLatency         time.Duration
	MinLatency         time.Duration
	ErrorsByKind       map[string]uint64
	OperationUsage     map[string]uint64
	OperationErrors    map[string]uint64
	OperationLatency   map[string]time.Duration
}
