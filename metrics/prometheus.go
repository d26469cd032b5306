package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// 回测运行指标
	backtestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxmesh_backtest_total",
			Help: "Total number of backtest runs by terminal status",
		},
		[]string{"status"},
	)

	backtestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fxmesh_backtest_duration_seconds",
			Help:    "Backtest run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	backtestRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fxmesh_backtest_running",
			Help: "Number of backtest runs currently in progress",
		},
	)

	// 策略求值指标
	evaluationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxmesh_evaluation_total",
			Help: "Total number of strategy evaluations",
		},
		[]string{"result"}, // signal, no_signal
	)

	sandboxFaultTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxmesh_sandbox_fault_total",
			Help: "Total number of sandbox faults by reason",
		},
		[]string{"reason"}, // timeout, exception, schema
	)

	sandboxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fxmesh_sandbox_duration_seconds",
			Help:    "Strategy script execution duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// 交易判定指标
	tradeResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxmesh_trade_resolved_total",
			Help: "Total number of resolved trades by outcome",
		},
		[]string{"outcome"}, // win, loss, no_outcome
	)

	positionsUpsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxmesh_positions_upserted_total",
			Help: "Total number of position rows written by upsert result",
		},
		[]string{"result"}, // inserted, existing
	)

	// 行情数据指标
	marketFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxmesh_market_fetch_total",
			Help: "Total number of market data fetches",
		},
		[]string{"timeframe", "source"}, // source: cache, remote
	)

	// 实时信号指标
	liveSignalTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxmesh_live_signal_total",
			Help: "Total number of live signals generated by schedules",
		},
		[]string{"operation"},
	)

	signalDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxmesh_signal_dispatch_total",
			Help: "Total number of signal webhook dispatches",
		},
		[]string{"status"}, // success, failure
	)

	// 分布式锁指标
	lockAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxmesh_lock_acquire_total",
			Help: "Total number of distributed lock acquire attempts",
		},
		[]string{"key", "status"},
	)

	// 运行时指标
	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fxmesh_goroutine_count",
			Help: "Number of goroutines",
		},
	)

	memoryAlloc = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fxmesh_memory_alloc_bytes",
			Help: "Allocated heap memory in bytes",
		},
	)

	gcPauseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fxmesh_gc_pause_seconds",
			Help:    "GC pause duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)
)

// PrometheusMetrics Prometheus 指标收集器
type PrometheusMetrics struct{}

// NewPrometheusMetrics 创建 Prometheus 指标收集器
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{}
}

// 回测运行指标记录

// RecordBacktestStarted 记录回测启动
func (pm *PrometheusMetrics) RecordBacktestStarted() {
	backtestRunning.Inc()
}

// RecordBacktestFinished 记录回测终态与耗时
func (pm *PrometheusMetrics) RecordBacktestFinished(status string, duration time.Duration) {
	backtestRunning.Dec()
	backtestTotal.WithLabelValues(status).Inc()
	backtestDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// 策略求值指标记录

// RecordEvaluation 记录一次策略求值
func (pm *PrometheusMetrics) RecordEvaluation(hasSignal bool) {
	if hasSignal {
		evaluationTotal.WithLabelValues("signal").Inc()
	} else {
		evaluationTotal.WithLabelValues("no_signal").Inc()
	}
}

// RecordSandboxFault 记录沙箱故障
func (pm *PrometheusMetrics) RecordSandboxFault(reason string) {
	sandboxFaultTotal.WithLabelValues(reason).Inc()
}

// RecordSandboxDuration 记录脚本执行耗时
func (pm *PrometheusMetrics) RecordSandboxDuration(duration time.Duration) {
	sandboxDuration.Observe(duration.Seconds())
}

// 交易判定指标记录

// RecordTradeResolved 记录交易判定结果
func (pm *PrometheusMetrics) RecordTradeResolved(outcome string) {
	if outcome == "" {
		outcome = "no_outcome"
	}
	tradeResolvedTotal.WithLabelValues(outcome).Inc()
}

// RecordPositionsUpserted 记录持仓写入结果
func (pm *PrometheusMetrics) RecordPositionsUpserted(inserted, existing int) {
	positionsUpsertedTotal.WithLabelValues("inserted").Add(float64(inserted))
	positionsUpsertedTotal.WithLabelValues("existing").Add(float64(existing))
}

// 行情与信号指标记录

// RecordMarketFetch 记录行情数据获取
func (pm *PrometheusMetrics) RecordMarketFetch(timeframe, source string) {
	marketFetchTotal.WithLabelValues(timeframe, source).Inc()
}

// RecordLiveSignal 记录实时信号
func (pm *PrometheusMetrics) RecordLiveSignal(operation string) {
	liveSignalTotal.WithLabelValues(operation).Inc()
}

// RecordSignalDispatch 记录信号下发结果
func (pm *PrometheusMetrics) RecordSignalDispatch(success bool) {
	if success {
		signalDispatchTotal.WithLabelValues("success").Inc()
	} else {
		signalDispatchTotal.WithLabelValues("failure").Inc()
	}
}

// RecordLockAcquire 记录分布式锁获取
func (pm *PrometheusMetrics) RecordLockAcquire(key, status string) {
	lockAcquireTotal.WithLabelValues(key, status).Inc()
}

// 运行时指标记录

// SetGoroutineCount 设置协程数
func (pm *PrometheusMetrics) SetGoroutineCount(count int) {
	goroutineCount.Set(float64(count))
}

// SetMemoryAlloc 设置堆内存占用
func (pm *PrometheusMetrics) SetMemoryAlloc(bytes uint64) {
	memoryAlloc.Set(float64(bytes))
}

// RecordGCPause 记录GC停顿
func (pm *PrometheusMetrics) RecordGCPause(duration time.Duration) {
	gcPauseDuration.Observe(duration.Seconds())
}

// 全局实例
var globalPrometheusMetrics *PrometheusMetrics

// GetPrometheusMetrics 获取全局 Prometheus 指标收集器
func GetPrometheusMetrics() *PrometheusMetrics {
	once.Do(func() {
		globalPrometheusMetrics = NewPrometheusMetrics()
	})
	return globalPrometheusMetrics
}
