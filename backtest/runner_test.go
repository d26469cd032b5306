package backtest

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"testing"
	"time"

	"fxmesh/database"
	"fxmesh/event"
	"fxmesh/market"
	"fxmesh/sandbox"
)

// fakeProvider 按请求区间合成单调上涨的K线
type fakeProvider struct{}

func (p *fakeProvider) FetchBars(ctx context.Context, symbol, timeframe string, from, to time.Time, bufferBars int) ([]market.Bar, error) {
	step, err := market.TimeframeDuration(timeframe)
	if err != nil {
		return nil, err
	}
	base := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	// K线网格对齐到周期整点
	start := from.Add(-time.Duration(bufferBars) * step).Truncate(step)
	end := to.Add(time.Duration(bufferBars) * step)

	bars := make([]market.Bar, 0)
	for cur := start; cur.Before(end); cur = cur.Add(step) {
		// 价格随时间线性上涨: 每分钟 +0.00002
		price := 1.1000 + cur.Sub(base).Minutes()*0.00002
		bars = append(bars, market.Bar{
			Timestamp: cur,
			Open:      price,
			High:      price + 0.0003,
			Low:       price - 0.0003,
			Close:     price + 0.0001,
			Volume:    1000,
		})
	}
	return bars, nil
}

func newRunnerTestDB(t *testing.T) database.Database {
	t.Helper()
	db, err := database.NewDatabase(&database.Config{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "runner.db"),
	})
	if err != nil {
		t.Fatalf("创建测试数据库失败: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRunner(db database.Database) *Runner {
	return NewRunner(db, &fakeProvider{}, sandbox.NewExecutor(time.Second), event.NewEventBus(100), &RunnerConfig{
		PipScale:          10000,
		MarginBars:        120,
		ResolveWorkers:    2,
		MaxConcurrentRuns: 2,
	})
}

func createRunFixtures(t *testing.T, db database.Database, script, language string) (*database.Backtest, *database.Algorithm, *database.Symbol) {
	t.Helper()
	ctx := context.Background()

	symbol := &database.Symbol{Pair: "EURUSD", LongName: "Euro / US Dollar"}
	if err := db.CreateSymbol(ctx, symbol); err != nil {
		t.Fatalf("创建交易对失败: %v", err)
	}

	algo := &database.Algorithm{
		Name:       "test-strategy",
		Script:     base64.StdEncoding.EncodeToString([]byte(script)),
		Language:   language,
		WindowSize: 3,
		Status:     database.StatusActive,
	}
	if err := db.CreateAlgorithm(ctx, algo); err != nil {
		t.Fatalf("创建算法失败: %v", err)
	}

	bt := &database.Backtest{
		SymbolID:    symbol.ID,
		AlgorithmID: algo.ID,
		Timeframe:   "1h",
		DateFrom:    time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		DateTo:      time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC),
		WindowSize:  3,
		CloseMethod: "fixed_tp_sl",
	}
	if err := db.CreateBacktest(ctx, bt); err != nil {
		t.Fatalf("创建回测任务失败: %v", err)
	}
	return bt, algo, symbol
}

// TestRunnerNullStrategy 测试空策略端到端：运行完成，零交易全零指标
func TestRunnerNullStrategy(t *testing.T) {
	db := newRunnerTestDB(t)
	runner := newTestRunner(db)

	bt, algo, symbol := createRunFixtures(t, db, `function main(data) { return null; }`, "javascript")
	runner.Submit(bt, algo, symbol)
	runner.Wait()

	got, err := db.GetBacktest(context.Background(), bt.ID)
	if err != nil {
		t.Fatalf("查询回测失败: %v", err)
	}
	if got.Status != database.BacktestStatusCompleted {
		t.Fatalf("空策略应完成, 实际状态 %s (%s)", got.Status, got.StatusMessage)
	}
	if got.Result.TotalTrades != 0 || got.Result.NetPips != 0 {
		t.Errorf("零交易应返回全零指标, 实际 %+v", got.Result)
	}
}

// TestRunnerBuyStrategy 测试始终买入的策略：上涨行情全部止盈，持仓落库
func TestRunnerBuyStrategy(t *testing.T) {
	db := newRunnerTestDB(t)
	runner := newTestRunner(db)

	script := `
function main(data) {
	var last = data[data.length - 1];
	return {
		operation: "buy",
		entryPrice: last.close,
		takeProfit: last.close + 0.0005,
		stopLoss: last.close - 0.0050
	};
}`
	bt, algo, symbol := createRunFixtures(t, db, script, "javascript")
	runner.Submit(bt, algo, symbol)
	runner.Wait()

	ctx := context.Background()
	got, err := db.GetBacktest(ctx, bt.ID)
	if err != nil {
		t.Fatalf("查询回测失败: %v", err)
	}
	if got.Status != database.BacktestStatusCompleted {
		t.Fatalf("回测应完成, 实际状态 %s (%s)", got.Status, got.StatusMessage)
	}

	// 时间轴 10:00-14:00 有4个点，首点热身，其余3个点各产生一笔买入
	if got.Result.TotalTrades != 3 || got.Result.Win != 3 {
		t.Errorf("应有3笔全胜交易, 实际 %+v", got.Result)
	}
	if got.Result.ProfitFactor != 3 {
		t.Errorf("零输单盈利因子应为3, 实际 %.2f", got.Result.ProfitFactor)
	}

	positions, err := db.ListPositions(ctx, &database.PositionFilter{BacktestID: bt.ID})
	if err != nil {
		t.Fatalf("查询持仓失败: %v", err)
	}
	if len(positions) != 3 {
		t.Errorf("应落库3条持仓, 实际 %d", len(positions))
	}
	for _, p := range positions {
		if p.Outcome != database.OutcomeWin || p.Pips < 4.99 {
			t.Errorf("持仓应为止盈单: %+v", p)
		}
	}
}

// TestRunnerClosedMarketStart 测试起始时间落在休市时段：
// 起点被时间轴剔除后没有热身点，周日开盘后的每个轴点都应求值
func TestRunnerClosedMarketStart(t *testing.T) {
	db := newRunnerTestDB(t)
	runner := newTestRunner(db)

	script := `
function main(data) {
	var last = data[data.length - 1];
	return {
		operation: "buy",
		entryPrice: last.close,
		takeProfit: last.close + 0.0005,
		stopLoss: last.close - 0.0050
	};
}`
	_, algo, symbol := createRunFixtures(t, db, script, "javascript")

	// 2024-03-09 是周六，整天休市；周日 22:00 开盘后到周一 00:00 有两个1小时轴点
	bt := &database.Backtest{
		SymbolID:    symbol.ID,
		AlgorithmID: algo.ID,
		Timeframe:   "1h",
		DateFrom:    time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC),
		DateTo:      time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		WindowSize:  3,
		CloseMethod: "fixed_tp_sl",
	}
	if err := db.CreateBacktest(context.Background(), bt); err != nil {
		t.Fatalf("创建回测任务失败: %v", err)
	}

	runner.Submit(bt, algo, symbol)
	runner.Wait()

	got, err := db.GetBacktest(context.Background(), bt.ID)
	if err != nil {
		t.Fatalf("查询回测失败: %v", err)
	}
	if got.Status != database.BacktestStatusCompleted {
		t.Fatalf("回测应完成, 实际状态 %s (%s)", got.Status, got.StatusMessage)
	}
	if got.Result.TotalTrades != 2 || got.Result.Win != 2 {
		t.Errorf("周日 22:00 与 23:00 各应产生一笔止盈交易, 实际 %+v", got.Result)
	}
}

// TestRunnerUnsupportedLanguage 测试不支持的语言导致运行失败
func TestRunnerUnsupportedLanguage(t *testing.T) {
	db := newRunnerTestDB(t)
	runner := newTestRunner(db)

	bt, algo, symbol := createRunFixtures(t, db, `print(1)`, "python")
	runner.Submit(bt, algo, symbol)
	runner.Wait()

	got, err := db.GetBacktest(context.Background(), bt.ID)
	if err != nil {
		t.Fatalf("查询回测失败: %v", err)
	}
	if got.Status != database.BacktestStatusFailed {
		t.Errorf("不支持的语言应使运行失败, 实际状态 %s", got.Status)
	}
	if got.StatusMessage == "" {
		t.Error("失败原因应被记录")
	}
}

// TestRunnerMisalignedStart 测试起始时间与K线错位导致运行失败
func TestRunnerMisalignedStart(t *testing.T) {
	db := newRunnerTestDB(t)
	runner := newTestRunner(db)

	bt, algo, symbol := createRunFixtures(t, db, `function main(data) { return null; }`, "javascript")
	bt2 := &database.Backtest{
		SymbolID:    symbol.ID,
		AlgorithmID: algo.ID,
		Timeframe:   bt.Timeframe,
		DateFrom:    bt.DateFrom.Add(30 * time.Minute), // 不落在1小时整点序列上
		DateTo:      bt.DateTo,
		WindowSize:  bt.WindowSize,
		CloseMethod: bt.CloseMethod,
	}
	if err := db.CreateBacktest(context.Background(), bt2); err != nil {
		t.Fatalf("创建回测任务失败: %v", err)
	}

	runner.Submit(bt2, algo, symbol)
	runner.Wait()

	got, err := db.GetBacktest(context.Background(), bt2.ID)
	if err != nil {
		t.Fatalf("查询回测失败: %v", err)
	}
	if got.Status != database.BacktestStatusFailed {
		t.Errorf("错位的起始时间应使运行失败, 实际状态 %s", got.Status)
	}
}
