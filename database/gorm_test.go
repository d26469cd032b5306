package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// newTestDB 创建临时 SQLite 数据库
func newTestDB(t *testing.T) Database {
	t.Helper()
	db, err := NewDatabase(&Config{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("创建测试数据库失败: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testPositions(backtestID uint) []*Position {
	open := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	return []*Position{
		{
			BacktestID:     backtestID,
			SymbolPair:     "EURUSD",
			AlgorithmID:    1,
			Timeframe:      "1h",
			Operation:      OperationBuy,
			Outcome:        OutcomeWin,
			OpenTimestamp:  open,
			CloseTimestamp: open.Add(2 * time.Hour),
			EntryPrice:     1.1000,
			ClosePrice:     1.1020,
			StopLoss:       1.0990,
			TakeProfit:     1.1020,
			Pips:           20.00,
		},
		{
			BacktestID:     backtestID,
			SymbolPair:     "EURUSD",
			AlgorithmID:    1,
			Timeframe:      "1h",
			Operation:      OperationSell,
			Outcome:        OutcomeLoss,
			OpenTimestamp:  open.Add(3 * time.Hour),
			CloseTimestamp: open.Add(5 * time.Hour),
			EntryPrice:     1.1030,
			ClosePrice:     1.1040,
			StopLoss:       1.1040,
			TakeProfit:     1.1010,
			Pips:           -10.00,
		},
	}
}

// TestUpsertPositionsIdempotent 测试持仓 upsert 幂等性：
// 同一批记录写两次，第二次不新增任何行。
func TestUpsertPositionsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	inserted, existing, err := db.UpsertPositions(ctx, testPositions(1))
	if err != nil {
		t.Fatalf("首次写入失败: %v", err)
	}
	if inserted != 2 || existing != 0 {
		t.Errorf("首次写入应插入2条, 实际 inserted=%d existing=%d", inserted, existing)
	}

	inserted, existing, err = db.UpsertPositions(ctx, testPositions(1))
	if err != nil {
		t.Fatalf("重复写入失败: %v", err)
	}
	if inserted != 0 || existing != 2 {
		t.Errorf("重复写入不应插入新行, 实际 inserted=%d existing=%d", inserted, existing)
	}

	positions, err := db.ListPositions(ctx, &PositionFilter{BacktestID: 1})
	if err != nil {
		t.Fatalf("查询持仓失败: %v", err)
	}
	if len(positions) != 2 {
		t.Errorf("持仓总数应为2, 实际 %d", len(positions))
	}
}

// TestBacktestStatusTransitionGuard 测试回测状态只允许一次终态变更
func TestBacktestStatusTransitionGuard(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	bt := &Backtest{
		SymbolID:    1,
		AlgorithmID: 1,
		Timeframe:   "1h",
		DateFrom:    time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		DateTo:      time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		WindowSize:  14,
		CloseMethod: "fixed_tp_sl",
	}
	if err := db.CreateBacktest(ctx, bt); err != nil {
		t.Fatalf("创建回测任务失败: %v", err)
	}

	// 先失败
	ok, err := db.FailBacktest(ctx, bt.ID, "market data error")
	if err != nil {
		t.Fatalf("标记失败出错: %v", err)
	}
	if !ok {
		t.Fatal("首次终态变更应成功")
	}

	// 迟到的完成回调不应覆盖失败状态
	ok, err = db.CompleteBacktest(ctx, bt.ID, &BacktestResult{TotalTrades: 5})
	if err != nil {
		t.Fatalf("完成回调出错: %v", err)
	}
	if ok {
		t.Error("任务已失败，迟到的完成回调不应生效")
	}

	got, err := db.GetBacktest(ctx, bt.ID)
	if err != nil {
		t.Fatalf("查询回测任务失败: %v", err)
	}
	if got.Status != BacktestStatusFailed {
		t.Errorf("状态应保持 failed, 实际 %s", got.Status)
	}
	if got.StatusMessage != "market data error" {
		t.Errorf("失败原因应保留, 实际 %q", got.StatusMessage)
	}
}

// TestDeleteBacktestCascade 测试删除回测任务及其持仓
func TestDeleteBacktestCascade(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	bt := &Backtest{SymbolID: 1, AlgorithmID: 1, Timeframe: "1h"}
	if err := db.CreateBacktest(ctx, bt); err != nil {
		t.Fatalf("创建回测任务失败: %v", err)
	}
	if _, _, err := db.UpsertPositions(ctx, testPositions(bt.ID)); err != nil {
		t.Fatalf("写入持仓失败: %v", err)
	}

	if err := db.DeletePositionsByBacktest(ctx, bt.ID); err != nil {
		t.Fatalf("删除持仓失败: %v", err)
	}
	if err := db.DeleteBacktest(ctx, bt.ID); err != nil {
		t.Fatalf("删除回测任务失败: %v", err)
	}

	if _, err := db.GetBacktest(ctx, bt.ID); !IsNotFound(err) {
		t.Errorf("回测任务应已删除, 实际错误: %v", err)
	}
	positions, err := db.ListPositions(ctx, &PositionFilter{BacktestID: bt.ID})
	if err != nil {
		t.Fatalf("查询持仓失败: %v", err)
	}
	if len(positions) != 0 {
		t.Errorf("持仓应已清空, 实际 %d 条", len(positions))
	}
}

// TestAlgorithmCRUD 测试算法增删改查
func TestAlgorithmCRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	algo := &Algorithm{
		Name:       "ma-cross",
		Script:     "ZnVuY3Rpb24gbWFpbihkYXRhKSB7IHJldHVybiBudWxsOyB9",
		Language:   "javascript",
		WindowSize: 14,
		Status:     StatusActive,
	}
	if err := db.CreateAlgorithm(ctx, algo); err != nil {
		t.Fatalf("创建算法失败: %v", err)
	}

	got, err := db.GetAlgorithm(ctx, algo.ID)
	if err != nil {
		t.Fatalf("查询算法失败: %v", err)
	}
	if got.Name != "ma-cross" || got.WindowSize != 14 {
		t.Errorf("算法字段不一致: %+v", got)
	}

	got.Status = StatusInactive
	if err := db.UpdateAlgorithm(ctx, got); err != nil {
		t.Fatalf("更新算法失败: %v", err)
	}

	actives, err := db.ListAlgorithms(ctx, StatusActive, 0, 0)
	if err != nil {
		t.Fatalf("查询算法列表失败: %v", err)
	}
	if len(actives) != 0 {
		t.Errorf("active 算法应为0, 实际 %d", len(actives))
	}
}
