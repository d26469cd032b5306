package backtest

import (
	"math"
	"testing"

	"fxmesh/database"
)

// TestAggregate 测试指标汇总
func TestAggregate(t *testing.T) {
	trades := []ResolvedTrade{
		{Outcome: database.OutcomeWin, Pips: 20.00},
		{Outcome: database.OutcomeWin, Pips: 15.50},
		{Outcome: database.OutcomeWin, Pips: 10.00},
		{Outcome: database.OutcomeLoss, Pips: -10.00},
		{Outcome: "", Pips: 0}, // 无结果，不计入
	}

	result := Aggregate(trades)

	if result.TotalTrades != 4 {
		t.Errorf("总交易数应为4, 实际 %d", result.TotalTrades)
	}
	if result.Win != 3 || result.Loss != 1 {
		t.Errorf("赢/输应为3/1, 实际 %d/%d", result.Win, result.Loss)
	}
	if result.PercentageWinningTrades != 75 || result.PercentageLosingTrades != 25 {
		t.Errorf("胜率应为75/25, 实际 %.2f/%.2f",
			result.PercentageWinningTrades, result.PercentageLosingTrades)
	}
	if result.ProfitFactor != 3 {
		t.Errorf("盈利因子应为3, 实际 %.2f", result.ProfitFactor)
	}
	// 75×3 − 25 = 200
	if result.ExpectedPayoff != 200 {
		t.Errorf("期望收益应为200, 实际 %.2f", result.ExpectedPayoff)
	}
	if math.Abs(result.NetPips-35.50) > 1e-9 {
		t.Errorf("净点数应为35.50, 实际 %.2f", result.NetPips)
	}
}

// TestAggregateZeroLosses 测试零输单时盈利因子的除数下限
func TestAggregateZeroLosses(t *testing.T) {
	trades := []ResolvedTrade{
		{Outcome: database.OutcomeWin, Pips: 20.00},
		{Outcome: database.OutcomeWin, Pips: 10.00},
	}

	result := Aggregate(trades)
	if result.ProfitFactor != 2 {
		t.Errorf("零输单盈利因子应为 win/1 = 2, 实际 %.2f", result.ProfitFactor)
	}
}

// TestAggregateEmpty 测试零交易返回全零记录
func TestAggregateEmpty(t *testing.T) {
	for _, trades := range [][]ResolvedTrade{nil, {{Outcome: "", Pips: 5}}} {
		result := Aggregate(trades)
		if result.TotalTrades != 0 || result.ProfitFactor != 0 ||
			result.ExpectedPayoff != 0 || result.NetPips != 0 {
			t.Errorf("零交易应返回全零记录, 实际 %+v", result)
		}
	}
}
