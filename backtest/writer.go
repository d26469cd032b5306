package backtest

import (
	"context"

	"fxmesh/database"
	"fxmesh/logger"
	"fxmesh/metrics"
)

// Writer 把判定完成的交易批量落库，自然键去重保证幂等
type Writer struct {
	db database.Database
}

// NewWriter 创建结果写入器
func NewWriter(db database.Database) *Writer {
	return &Writer{db: db}
}

// Write 持久化一次运行的全部交易。无结果的交易被跳过，
// 返回实际插入与命中已有记录的数量。
func (w *Writer) Write(ctx context.Context, bt *database.Backtest, symbolPair string, trades []ResolvedTrade) (inserted, existing int, err error) {
	positions := make([]*database.Position, 0, len(trades))
	for _, t := range trades {
		if t.Outcome == "" {
			continue
		}
		positions = append(positions, &database.Position{
			BacktestID:     bt.ID,
			SymbolPair:     symbolPair,
			AlgorithmID:    bt.AlgorithmID,
			Timeframe:      bt.Timeframe,
			Operation:      t.Operation,
			Outcome:        t.Outcome,
			OpenTimestamp:  t.OpenTimestamp,
			CloseTimestamp: t.CloseTimestamp,
			EntryPrice:     t.EntryPrice,
			ClosePrice:     t.ClosePrice,
			StopLoss:       t.StopLoss,
			TakeProfit:     t.TakeProfit,
			Pips:           t.Pips,
		})
	}

	if len(positions) == 0 {
		return 0, 0, nil
	}

	inserted, existing, err = w.db.UpsertPositions(ctx, positions)
	if err != nil {
		return 0, 0, err
	}

	metrics.GetPrometheusMetrics().RecordPositionsUpserted(inserted, existing)
	logger.Info("💾 持仓写入完成: 回测 #%d 新增 %d 条, 已存在 %d 条", bt.ID, inserted, existing)
	return inserted, existing, nil
}
