package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fxmesh/database"
	"fxmesh/event"
	"fxmesh/logger"
	"fxmesh/market"
	"fxmesh/metrics"
	"fxmesh/sandbox"
)

// ScriptExecutor 策略脚本执行接口（由 sandbox.Executor 实现）
type ScriptExecutor interface {
	Execute(ctx context.Context, language, script string, window []market.Bar) (*sandbox.Intent, error)
}

// RunnerConfig 回测编排配置
type RunnerConfig struct {
	PipScale          float64 // 全局点值换算系数
	MarginBars        int     // 行情取数前后余量（K线根数）
	ResolveWorkers    int     // 结果判定并发数
	MaxConcurrentRuns int     // 同时运行的回测上限
}

// Runner 回测编排器：接受已落库的 running 任务，异步执行完整流水线，
// 并保证 running→completed|failed 只发生一次。
type Runner struct {
	db       database.Database
	provider market.Provider
	executor ScriptExecutor
	eventBus *event.EventBus
	cfg      *RunnerConfig

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewRunner 创建回测编排器
func NewRunner(db database.Database, provider market.Provider, executor ScriptExecutor, eventBus *event.EventBus, cfg *RunnerConfig) *Runner {
	maxRuns := cfg.MaxConcurrentRuns
	if maxRuns <= 0 {
		maxRuns = 1
	}
	return &Runner{
		db:       db,
		provider: provider,
		executor: executor,
		eventBus: eventBus,
		cfg:      cfg,
		sem:      make(chan struct{}, maxRuns),
	}
}

// Submit 异步启动一次回测。任务此刻已以 running 状态落库，
// 并发上限满时在后台排队。
func (r *Runner) Submit(bt *database.Backtest, algo *database.Algorithm, symbol *database.Symbol) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.sem <- struct{}{}
		defer func() { <-r.sem }()
		r.run(bt, algo, symbol)
	}()
}

// Wait 等待所有在途回测结束（用于优雅关闭）
func (r *Runner) Wait() {
	r.wg.Wait()
}

// run 执行完整回测流水线
func (r *Runner) run(bt *database.Backtest, algo *database.Algorithm, symbol *database.Symbol) {
	ctx := context.Background()
	pm := metrics.GetPrometheusMetrics()
	started := time.Now()

	pm.RecordBacktestStarted()
	r.publish(event.EventTypeRunStarted, bt, nil)
	logger.Info("🚀 回测 #%d 启动: %s %s %s → %s 窗口 %d",
		bt.ID, symbol.Pair, bt.Timeframe,
		bt.DateFrom.UTC().Format("2006-01-02 15:04"),
		bt.DateTo.UTC().Format("2006-01-02 15:04"),
		bt.WindowSize)

	result, err := r.pipeline(ctx, bt, algo, symbol)
	duration := time.Since(started)

	if err != nil {
		pm.RecordBacktestFinished(database.BacktestStatusFailed, duration)
		r.fail(ctx, bt, err)
		return
	}

	ok, dbErr := r.db.CompleteBacktest(ctx, bt.ID, result)
	if dbErr != nil {
		logger.Error("❌ 回测 #%d 写入结果失败: %v", bt.ID, dbErr)
		pm.RecordBacktestFinished(database.BacktestStatusFailed, duration)
		r.fail(ctx, bt, fmt.Errorf("persist result: %w", dbErr))
		return
	}
	if !ok {
		logger.Warn("⚠️ 回测 #%d 状态已被抢先变更，完成结果被丢弃", bt.ID)
		return
	}

	pm.RecordBacktestFinished(database.BacktestStatusCompleted, duration)
	r.publish(event.EventTypeRunCompleted, bt, map[string]interface{}{
		"total_trades": result.TotalTrades,
		"net_pips":     result.NetPips,
		"duration_ms":  duration.Milliseconds(),
	})
	logger.Info("✅ 回测 #%d 完成: %d 笔交易 (赢 %d / 输 %d), 净点数 %.2f, 耗时 %s",
		bt.ID, result.TotalTrades, result.Win, result.Loss, result.NetPips, duration.Round(time.Millisecond))
}

// pipeline 时间轴 → 窗口 → 沙箱求值 → 结果判定 → 落库 → 汇总
func (r *Runner) pipeline(ctx context.Context, bt *database.Backtest, algo *database.Algorithm, symbol *database.Symbol) (*database.BacktestResult, error) {
	axis, err := GenerateTimeAxis(bt.DateFrom, bt.DateTo, bt.Timeframe, ForexCalendar{})
	if err != nil {
		return nil, err
	}

	buffer := bt.WindowSize
	if r.cfg.MarginBars > buffer {
		buffer = r.cfg.MarginBars
	}
	bars, err := r.provider.FetchBars(ctx, symbol.Pair, bt.Timeframe, bt.DateFrom, bt.DateTo, buffer)
	if err != nil {
		return nil, fmt.Errorf("fetch %s bars: %w", bt.Timeframe, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoMarketData, symbol.Pair, bt.Timeframe)
	}

	windows, err := ExtractWindows(bars, bt.DateFrom, bt.WindowSize)
	if err != nil {
		return nil, err
	}

	intents, err := r.evaluate(ctx, bt, algo, axis, windows)
	if err != nil {
		return nil, err
	}

	minuteBars := bars
	if bt.Timeframe != market.Timeframe1m {
		minuteBars, err = r.provider.FetchBars(ctx, symbol.Pair, market.Timeframe1m, bt.DateFrom, bt.DateTo, r.cfg.MarginBars)
		if err != nil {
			return nil, fmt.Errorf("fetch 1m bars: %w", err)
		}
		if len(minuteBars) == 0 {
			return nil, fmt.Errorf("%w: %s 1m", ErrNoMarketData, symbol.Pair)
		}
	}

	pipScale := r.cfg.PipScale
	if symbol.PipScale > 0 {
		pipScale = symbol.PipScale
	}
	resolver := NewResolver(pipScale)
	trades := resolver.ResolveAll(intents, minuteBars, r.cfg.ResolveWorkers)

	pm := metrics.GetPrometheusMetrics()
	for _, t := range trades {
		pm.RecordTradeResolved(t.Outcome)
	}

	writer := NewWriter(r.db)
	if _, _, err := writer.Write(ctx, bt, symbol.Pair, trades); err != nil {
		return nil, fmt.Errorf("persist positions: %w", err)
	}

	return Aggregate(trades), nil
}

// evaluate 沿时间轴逐点执行策略脚本。
// 起始时间戳本身对应热身窗口不求值（起始点落在休市时段被轴过滤时
// 没有热身点）；沙箱超时、异常、返回值格式错误都降级为"本点无信号"；
// 不支持的脚本语言终止整个回测。
func (r *Runner) evaluate(ctx context.Context, bt *database.Backtest, algo *database.Algorithm, axis []time.Time, windows []Window) ([]TradeIntent, error) {
	byEnd := make(map[int64]Window, len(windows))
	for _, w := range windows {
		byEnd[w.End.UnixMilli()] = w
	}

	pm := metrics.GetPrometheusMetrics()
	intents := make([]TradeIntent, 0)
	evaluated := 0

	for _, ts := range axis {
		if ts.Equal(bt.DateFrom) {
			continue // 热身窗口
		}
		w, ok := byEnd[ts.UnixMilli()]
		if !ok {
			// 交易时段内的行情缺口：跳过该求值点
			logger.Warn("⚠️ 回测 #%d 在 %s 缺少对应K线窗口，跳过",
				bt.ID, ts.UTC().Format(time.RFC3339))
			continue
		}

		evaluated++
		execStart := time.Now()
		intent, err := r.executor.Execute(ctx, algo.Language, algo.Script, w.Bars)
		pm.RecordSandboxDuration(time.Since(execStart))

		if err != nil {
			if errors.Is(err, sandbox.ErrUnsupportedLanguage) {
				return nil, err
			}
			pm.RecordSandboxFault(faultReason(err))
			pm.RecordEvaluation(false)
			logger.Debug("⚠️ 回测 #%d 在 %s 求值失败: %v", bt.ID, ts.UTC().Format(time.RFC3339), err)
			continue
		}

		pm.RecordEvaluation(intent != nil)
		if intent == nil {
			continue
		}

		intents = append(intents, TradeIntent{
			OpenTimestamp: ts,
			Operation:     intent.Operation,
			EntryPrice:    intent.EntryPrice,
			TakeProfit:    intent.TakeProfit,
			StopLoss:      intent.StopLoss,
		})
	}

	logger.Info("📊 回测 #%d 求值完成: %d 个求值点, %d 个交易意图", bt.ID, evaluated, len(intents))
	return intents, nil
}

// fail 把运行标记为失败（同样受单次终态变更保护）
func (r *Runner) fail(ctx context.Context, bt *database.Backtest, cause error) {
	logger.Error("❌ 回测 #%d 失败: %v", bt.ID, cause)

	ok, err := r.db.FailBacktest(ctx, bt.ID, cause.Error())
	if err != nil {
		logger.Error("❌ 回测 #%d 标记失败状态出错: %v", bt.ID, err)
		return
	}
	if !ok {
		logger.Warn("⚠️ 回测 #%d 状态已被抢先变更，失败原因被丢弃", bt.ID)
		return
	}

	r.publish(event.EventTypeRunFailed, bt, map[string]interface{}{"reason": cause.Error()})
}

// publish 发布运行生命周期事件
func (r *Runner) publish(t event.EventType, bt *database.Backtest, extra map[string]interface{}) {
	if r.eventBus == nil {
		return
	}
	data := map[string]interface{}{
		"backtest_id":  bt.ID,
		"symbol_id":    bt.SymbolID,
		"algorithm_id": bt.AlgorithmID,
		"timeframe":    bt.Timeframe,
	}
	for k, v := range extra {
		data[k] = v
	}
	r.eventBus.Publish(&event.Event{Type: t, Data: data})
}

// faultReason 沙箱错误归类（用于指标标签）
func faultReason(err error) string {
	switch {
	case errors.Is(err, sandbox.ErrTimeout):
		return "timeout"
	case errors.Is(err, sandbox.ErrSchema):
		return "schema"
	default:
		return "exception"
	}
}
