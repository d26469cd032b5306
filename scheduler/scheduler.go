package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fxmesh/backtest"
	"fxmesh/database"
	"fxmesh/event"
	"fxmesh/lock"
	"fxmesh/logger"
	"fxmesh/market"
	"fxmesh/metrics"
	"fxmesh/notify"
)

// Config 调度器配置
type Config struct {
	Enabled           bool
	ReconcileInterval time.Duration // 对账周期
	LockTTL           time.Duration // 单次求值锁的过期时间
}

// Scheduler 实时信号调度器。
// 以数据库中的 active 调度为准维护一张显式注册表：对账循环负责
// 增删改，注册表里的每个条目有自己的周期循环，按K线周期对活跃
// 算法做一次最新窗口求值，产生的信号下发给订阅方。
// 每次求值先抢分布式锁，多实例部署时同一调度只执行一次。
type Scheduler struct {
	db         database.Database
	provider   market.Provider
	executor   backtest.ScriptExecutor
	dispatcher *notify.Dispatcher
	eventBus   *event.EventBus
	dlock      lock.DistributedLock
	cfg        *Config

	mu      sync.Mutex
	entries map[uint]*entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// entry 注册表条目
type entry struct {
	schedule  *database.Schedule
	updatedAt time.Time
	cancel    context.CancelFunc
}

// NewScheduler 创建调度器
func NewScheduler(db database.Database, provider market.Provider, executor backtest.ScriptExecutor, dispatcher *notify.Dispatcher, eventBus *event.EventBus, dlock lock.DistributedLock, cfg *Config) *Scheduler {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 30 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		db:         db,
		provider:   provider,
		executor:   executor,
		dispatcher: dispatcher,
		eventBus:   eventBus,
		dlock:      dlock,
		cfg:        cfg,
		entries:    make(map[uint]*entry),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		logger.Info("⏸️ 实时调度器未启用")
		return nil
	}

	logger.Info("🚀 启动实时调度器...")
	if err := s.reconcile(); err != nil {
		return fmt.Errorf("初始对账失败: %w", err)
	}

	s.wg.Add(1)
	go s.reconcileLoop()

	logger.Info("✅ 实时调度器已启动")
	return nil
}

// Stop 停止调度器及所有在途调度
func (s *Scheduler) Stop() {
	logger.Info("🛑 停止实时调度器...")
	s.cancel()
	s.wg.Wait()
	logger.Info("✅ 实时调度器已停止")
}

// reconcileLoop 周期性与数据库对账
func (s *Scheduler) reconcileLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.reconcile(); err != nil {
				logger.Error("❌ 调度对账失败: %v", err)
			}
		}
	}
}

// reconcile 把注册表同步到数据库中的 active 调度：
// 新增的启动，消失的停掉，变更过的重启。
func (s *Scheduler) reconcile() error {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	schedules, err := s.db.ListSchedules(ctx, database.StatusActive)
	if err != nil {
		return err
	}

	desired := make(map[uint]*database.Schedule, len(schedules))
	for _, sched := range schedules {
		desired[sched.ID] = sched
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		sched, keep := desired[id]
		if keep && sched.UpdatedAt.Equal(e.updatedAt) {
			continue
		}
		e.cancel()
		delete(s.entries, id)
		if keep {
			logger.Info("🔄 调度 #%d 配置变更，重启", id)
		} else {
			logger.Info("🛑 调度 #%d 已停用", id)
		}
	}

	for id, sched := range desired {
		if _, running := s.entries[id]; running {
			continue
		}
		if err := s.launch(sched); err != nil {
			logger.Error("❌ 调度 #%d 启动失败: %v", id, err)
		}
	}

	return nil
}

// launch 启动单个调度的周期循环（调用方持有 s.mu）
func (s *Scheduler) launch(sched *database.Schedule) error {
	interval, err := market.TimeframeDuration(sched.Timeframe)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.entries[sched.ID] = &entry{schedule: sched, updatedAt: sched.UpdatedAt, cancel: cancel}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		logger.Info("👀 调度 #%d (%s) 开始运行, 周期 %s", sched.ID, sched.Name, sched.Timeframe)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.evaluateOnce(ctx, sched)
			}
		}
	}()
	return nil
}

// evaluateOnce 执行一次实时求值
func (s *Scheduler) evaluateOnce(ctx context.Context, sched *database.Schedule) {
	now := time.Now().UTC()
	if !(backtest.ForexCalendar{}).IsTradingTime(now) {
		return
	}

	lockKey := fmt.Sprintf("schedule:%d", sched.ID)
	acquired, err := s.dlock.TryLock(ctx, lockKey, s.cfg.LockTTL)
	if err != nil {
		logger.Error("❌ 调度 #%d 获取锁失败: %v", sched.ID, err)
		return
	}
	if !acquired {
		logger.Debug("⏳ 调度 #%d 锁被其他实例持有，跳过本轮", sched.ID)
		return
	}
	defer func() {
		if err := s.dlock.Unlock(ctx, lockKey); err != nil {
			logger.Warn("⚠️ 调度 #%d 释放锁失败: %v", sched.ID, err)
		}
	}()

	algo, err := s.db.GetAlgorithm(ctx, sched.AlgorithmID)
	if err != nil {
		logger.Error("❌ 调度 #%d 加载算法失败: %v", sched.ID, err)
		return
	}
	if algo.Status != database.StatusActive {
		return
	}
	symbol, err := s.db.GetSymbol(ctx, sched.SymbolID)
	if err != nil {
		logger.Error("❌ 调度 #%d 加载交易对失败: %v", sched.ID, err)
		return
	}

	window, err := s.latestWindow(ctx, symbol.Pair, sched)
	if err != nil {
		logger.Error("❌ 调度 #%d 获取最新窗口失败: %v", sched.ID, err)
		return
	}

	intent, err := s.executor.Execute(ctx, algo.Language, algo.Script, window)
	if err != nil {
		logger.Warn("⚠️ 调度 #%d 求值失败: %v", sched.ID, err)
		return
	}
	if intent == nil {
		return
	}

	metrics.GetPrometheusMetrics().RecordLiveSignal(intent.Operation)
	logger.Info("📊 调度 #%d 产生信号: %s %s @%.5f", sched.ID, intent.Operation, symbol.Pair, intent.EntryPrice)

	payload := map[string]interface{}{
		"schedule_id":  sched.ID,
		"algorithm_id": algo.ID,
		"symbol":       symbol.Pair,
		"timeframe":    sched.Timeframe,
		"timestamp":    now.Format(time.RFC3339),
		"operation":    intent.Operation,
		"entry_price":  intent.EntryPrice,
		"take_profit":  intent.TakeProfit,
		"stop_loss":    intent.StopLoss,
	}

	if s.eventBus != nil {
		s.eventBus.Publish(&event.Event{Type: event.EventTypeSignalGenerated, Data: payload})
	}

	s.dispatch(ctx, algo.ID, payload)
}

// latestWindow 取最近 CandleNumber 根已收盘的K线
func (s *Scheduler) latestWindow(ctx context.Context, pair string, sched *database.Schedule) ([]market.Bar, error) {
	step, err := market.TimeframeDuration(sched.Timeframe)
	if err != nil {
		return nil, err
	}

	to := time.Now().UTC().Truncate(step)
	from := to.Add(-time.Duration(sched.CandleNumber) * step)

	bars, err := s.provider.FetchBars(ctx, pair, sched.Timeframe, from, to, 0)
	if err != nil {
		return nil, err
	}
	if len(bars) < sched.CandleNumber {
		return nil, fmt.Errorf("窗口K线不足: 需要 %d, 实际 %d", sched.CandleNumber, len(bars))
	}
	return bars[len(bars)-sched.CandleNumber:], nil
}

// dispatch 把信号投递给该算法的所有活跃订阅
func (s *Scheduler) dispatch(ctx context.Context, algorithmID uint, payload map[string]interface{}) {
	subs, err := s.db.ListSubscriptionsByAlgorithm(ctx, algorithmID)
	if err != nil {
		logger.Error("❌ 加载订阅失败: %v", err)
		return
	}

	for _, sub := range subs {
		if !sub.Active || sub.TargetURL == "" {
			continue
		}
		if err := s.dispatcher.Dispatch(ctx, sub.TargetURL, payload); err != nil {
			logger.Warn("⚠️ 订阅 #%d 信号下发失败: %v", sub.ID, err)
			continue
		}
		if s.eventBus != nil {
			s.eventBus.Publish(&event.Event{
				Type: event.EventTypeSignalDispatched,
				Data: map[string]interface{}{"subscription_id": sub.ID, "algorithm_id": algorithmID},
			})
		}
	}
}
