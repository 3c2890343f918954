// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 网关指标
	gatewayAttemptsTotal    *prometheus.CounterVec
	gatewayDispatchDuration *prometheus.HistogramVec
	gatewayDispatchesTotal  *prometheus.CounterVec
	throttleWait            *prometheus.HistogramVec

	// 流水线指标
	pipelineRunsTotal    *prometheus.CounterVec
	pipelineTasksTotal   *prometheus.CounterVec
	pipelineTaskDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// NewCollector 创建指标收集器并注册到默认 registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, prometheus.DefaultGatherer, logger)
}

// NewCollectorWithRegistry 创建指标收集器并注册到指定 registry
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		gatherer: gatherer,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	// 网关指标
	c.gatewayAttemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_attempts_total",
			Help:      "Total number of outbound call attempts",
		},
		[]string{"gateway", "outcome"}, // outcome: success, failure, timeout
	)

	c.gatewayDispatchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_dispatches_total",
			Help:      "Total number of dispatches through the call gateway",
		},
		[]string{"gateway", "status"},
	)

	c.gatewayDispatchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_dispatch_duration_seconds",
			Help:      "Dispatch duration including throttling and retries",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 180, 600},
		},
		[]string{"gateway"},
	)

	c.throttleWait = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ratelimit_wait_seconds",
			Help:      "Time spent waiting at the rate limiter before dispatch",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"gateway"},
	)

	// 流水线指标
	c.pipelineRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs by final status",
		},
		[]string{"crew", "status"},
	)

	c.pipelineTasksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_tasks_total",
			Help:      "Total number of pipeline task executions",
		},
		[]string{"crew", "task", "status"},
	)

	c.pipelineTaskDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_task_duration_seconds",
			Help:      "Pipeline task execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"crew", "task"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🚦 网关指标记录
// =============================================================================

// RecordAttempt 记录一次出站调用尝试
func (c *Collector) RecordAttempt(gateway, outcome string) {
	c.gatewayAttemptsTotal.WithLabelValues(gateway, outcome).Inc()
}

// RecordDispatch 记录一次完整的网关调用
func (c *Collector) RecordDispatch(gateway, status string, duration time.Duration) {
	c.gatewayDispatchesTotal.WithLabelValues(gateway, status).Inc()
	c.gatewayDispatchDuration.WithLabelValues(gateway).Observe(duration.Seconds())
}

// RecordThrottleWait 记录限流等待
func (c *Collector) RecordThrottleWait(gateway string, wait time.Duration) {
	c.throttleWait.WithLabelValues(gateway).Observe(wait.Seconds())
}

// =============================================================================
// 🧵 流水线指标记录
// =============================================================================

// RecordRun 记录一次流水线运行的最终状态
func (c *Collector) RecordRun(crew, status string) {
	c.pipelineRunsTotal.WithLabelValues(crew, status).Inc()
}

// RecordTask 记录一次任务执行
func (c *Collector) RecordTask(crew, task, status string, duration time.Duration) {
	c.pipelineTasksTotal.WithLabelValues(crew, task, status).Inc()
	c.pipelineTaskDuration.WithLabelValues(crew, task).Observe(duration.Seconds())
}

// Handler 返回 /metrics 的 HTTP 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
