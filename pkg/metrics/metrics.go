// Package metrics 提供 Prometheus 指标采集功能
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "webforge"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// 业务指标 - 生成会话
	GenerationSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "sessions_total",
			Help:      "Total number of generation sessions",
		},
		[]string{"status"}, // completed/failed/timeout
	)

	GenerationSessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "session_duration_seconds",
			Help:      "End-to-end generation session duration in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	GenerationPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "phase_duration_seconds",
			Help:      "Duration of each orchestration phase in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"phase"},
	)

	GenerationRepairAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "repair_attempts_total",
			Help:      "Total number of automatic build repair attempts",
		},
	)

	// 打包指标
	PackagerEmbeddedBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "packager",
			Name:      "embedded_bytes",
			Help:      "Bytes embedded in the worker per package",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	PackagerOffloadedBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "packager",
			Name:      "offloaded_bytes",
			Help:      "Bytes offloaded to the CDN per package",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	PackagerSizeViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "packager",
			Name:      "size_violations_total",
			Help:      "Total number of packages rejected for exceeding the hard size limit",
		},
	)

	// 部署指标
	DeploymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "total",
			Help:      "Total number of deployments",
		},
		[]string{"environment", "status"},
	)

	DeployRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "retries_total",
			Help:      "Total number of deployment retry attempts",
		},
	)

	// 广播指标
	BroadcastEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "events_total",
			Help:      "Total number of progress events published",
		},
		[]string{"kind"},
	)

	BroadcastSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Current number of progress subscribers",
		},
	)

	// 队列指标
	RedisStreamLag = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "stream_lag",
			Help:      "Redis stream consumer lag",
		},
		[]string{"stream", "consumer_group"},
	)

	RedisStreamProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "stream_processed_total",
			Help:      "Total number of Redis stream messages processed",
		},
		[]string{"stream", "status"},
	)

	// 活跃会话指标
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "active_sessions",
			Help:      "Current number of in-flight generation sessions",
		},
	)
)
