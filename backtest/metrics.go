package backtest

import (
	"fxmesh/database"
)

// Aggregate 把一批已判定的交易汇总为回测指标。
// 无结果的交易不计入任何统计；零笔交易返回全零记录。
//
//	profitFactor  = 赢单数 / max(输单数, 1)
//	expectedPayoff = 赢单占比 × profitFactor − 输单占比
func Aggregate(trades []ResolvedTrade) *database.BacktestResult {
	result := &database.BacktestResult{}

	for _, t := range trades {
		switch t.Outcome {
		case database.OutcomeWin:
			result.Win++
		case database.OutcomeLoss:
			result.Loss++
		default:
			continue
		}
		result.NetPips += truncPips(t.Pips)
	}

	result.TotalTrades = result.Win + result.Loss
	if result.TotalTrades == 0 {
		return result
	}

	total := float64(result.TotalTrades)
	result.PercentageWinningTrades = float64(result.Win) / total * 100
	result.PercentageLosingTrades = float64(result.Loss) / total * 100

	losses := result.Loss
	if losses == 0 {
		losses = 1
	}
	result.ProfitFactor = float64(result.Win) / float64(losses)
	result.ExpectedPayoff = result.PercentageWinningTrades*result.ProfitFactor -
		result.PercentageLosingTrades

	return result
}
