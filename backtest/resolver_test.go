package backtest

import (
	"testing"
	"time"

	"fxmesh/database"
	"fxmesh/market"
)

func minuteBar(ts time.Time, high, low float64) market.Bar {
	return market.Bar{Timestamp: ts, Open: (high + low) / 2, High: high, Low: low, Close: (high + low) / 2, Volume: 100}
}

// TestResolveBuyWin 测试买入止盈：
// entry=1.1000, SL=1.0990, TP=1.1020, 后续K线 high=1.1025
// → WIN, 平仓价=1.1020, 点数=20.00
func TestResolveBuyWin(t *testing.T) {
	open := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	resolver := NewResolver(10000)

	intent := TradeIntent{
		OpenTimestamp: open,
		Operation:     database.OperationBuy,
		EntryPrice:    1.1000,
		StopLoss:      1.0990,
		TakeProfit:    1.1020,
	}
	bars := []market.Bar{
		minuteBar(open, 1.1030, 1.0980),             // 开仓当根，必须跳过
		minuteBar(open.Add(time.Minute), 1.1005, 1.0995),
		minuteBar(open.Add(2*time.Minute), 1.1025, 1.1000),
	}

	trade := resolver.Resolve(intent, bars)
	if trade == nil {
		t.Fatal("有效意图不应被丢弃")
	}
	if trade.Outcome != database.OutcomeWin {
		t.Errorf("应判为赢, 实际 %q", trade.Outcome)
	}
	if trade.ClosePrice != 1.1020 {
		t.Errorf("平仓价应为止盈价1.1020, 实际 %.5f", trade.ClosePrice)
	}
	if trade.Pips != 20.00 {
		t.Errorf("点数应为20.00, 实际 %.2f", trade.Pips)
	}
	if !trade.CloseTimestamp.Equal(open.Add(2 * time.Minute)) {
		t.Errorf("平仓时间应为触发K线时间, 实际 %v", trade.CloseTimestamp)
	}
}

// TestResolveBuyLoss 测试买入止损
func TestResolveBuyLoss(t *testing.T) {
	open := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	resolver := NewResolver(10000)

	intent := TradeIntent{
		OpenTimestamp: open,
		Operation:     database.OperationBuy,
		EntryPrice:    1.1000,
		StopLoss:      1.0990,
		TakeProfit:    1.1020,
	}
	bars := []market.Bar{
		minuteBar(open.Add(time.Minute), 1.1005, 1.0985),
	}

	trade := resolver.Resolve(intent, bars)
	if trade.Outcome != database.OutcomeLoss {
		t.Errorf("应判为输, 实际 %q", trade.Outcome)
	}
	if trade.ClosePrice != 1.0990 {
		t.Errorf("平仓价应为止损价1.0990, 实际 %.5f", trade.ClosePrice)
	}
	if trade.Pips != -10.00 {
		t.Errorf("点数应为-10.00, 实际 %.2f", trade.Pips)
	}
}

// TestResolveTakeProfitPriority 测试同一根K线同时越过止盈止损时止盈优先
func TestResolveTakeProfitPriority(t *testing.T) {
	open := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	resolver := NewResolver(10000)

	intent := TradeIntent{
		OpenTimestamp: open,
		Operation:     database.OperationBuy,
		EntryPrice:    1.1000,
		StopLoss:      1.0990,
		TakeProfit:    1.1020,
	}
	// 一根K线同时触及两个阈值
	bars := []market.Bar{minuteBar(open.Add(time.Minute), 1.1030, 1.0980)}

	trade := resolver.Resolve(intent, bars)
	if trade.Outcome != database.OutcomeWin {
		t.Errorf("止盈应优先于止损, 实际 %q", trade.Outcome)
	}
}

// TestResolveSell 测试卖出方向的对称规则
func TestResolveSell(t *testing.T) {
	open := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	resolver := NewResolver(10000)

	intent := TradeIntent{
		OpenTimestamp: open,
		Operation:     database.OperationSell,
		EntryPrice:    1.1000,
		StopLoss:      1.1015,
		TakeProfit:    1.0980,
	}
	bars := []market.Bar{
		minuteBar(open.Add(time.Minute), 1.1010, 1.0995),
		minuteBar(open.Add(2*time.Minute), 1.1005, 1.0975), // low 触及止盈
	}

	trade := resolver.Resolve(intent, bars)
	if trade.Outcome != database.OutcomeWin {
		t.Errorf("卖出触及止盈应判为赢, 实际 %q", trade.Outcome)
	}
	if trade.ClosePrice != 1.0980 {
		t.Errorf("平仓价应为止盈价1.0980, 实际 %.5f", trade.ClosePrice)
	}
	if trade.Pips != 20.00 {
		t.Errorf("卖出点数应为20.00, 实际 %.2f", trade.Pips)
	}
}

// TestResolveExhausted 测试序列耗尽无结果
func TestResolveExhausted(t *testing.T) {
	open := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	resolver := NewResolver(10000)

	intent := TradeIntent{
		OpenTimestamp: open,
		Operation:     database.OperationBuy,
		EntryPrice:    1.1000,
		StopLoss:      1.0990,
		TakeProfit:    1.1020,
	}
	bars := []market.Bar{
		minuteBar(open.Add(time.Minute), 1.1005, 1.0995),
		minuteBar(open.Add(2*time.Minute), 1.1010, 1.1000),
	}

	trade := resolver.Resolve(intent, bars)
	if trade == nil {
		t.Fatal("耗尽序列应返回无结果交易而非丢弃")
	}
	if trade.Outcome != "" {
		t.Errorf("序列耗尽应无结果, 实际 %q", trade.Outcome)
	}
}

// TestResolveInvalidIntent 测试无效意图被丢弃
func TestResolveInvalidIntent(t *testing.T) {
	open := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	resolver := NewResolver(10000)
	bars := []market.Bar{minuteBar(open.Add(time.Minute), 1.1030, 1.0980)}

	cases := []TradeIntent{
		// 买入入场价不高于止损
		{OpenTimestamp: open, Operation: database.OperationBuy, EntryPrice: 1.0990, StopLoss: 1.0990, TakeProfit: 1.1020},
		// 卖出入场价不低于止损
		{OpenTimestamp: open, Operation: database.OperationSell, EntryPrice: 1.1020, StopLoss: 1.1010, TakeProfit: 1.0980},
		// 未知方向
		{OpenTimestamp: open, Operation: "hold", EntryPrice: 1.1000, StopLoss: 1.0990, TakeProfit: 1.1020},
	}
	for i, intent := range cases {
		if trade := resolver.Resolve(intent, bars); trade != nil {
			t.Errorf("用例 %d: 无效意图应被丢弃, 实际 %+v", i, trade)
		}
	}
}

// TestResolveAllOrderAndFiltering 测试批量判定保持输入顺序并剔除无效意图
func TestResolveAllOrderAndFiltering(t *testing.T) {
	open := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	resolver := NewResolver(10000)
	bars := []market.Bar{minuteBar(open.Add(time.Minute), 1.1030, 1.0980)}

	intents := []TradeIntent{
		{OpenTimestamp: open, Operation: database.OperationBuy, EntryPrice: 1.1000, StopLoss: 1.0990, TakeProfit: 1.1020},
		{OpenTimestamp: open, Operation: "hold"}, // 无效，剔除
		{OpenTimestamp: open, Operation: database.OperationSell, EntryPrice: 1.1000, StopLoss: 1.1015, TakeProfit: 1.0985},
	}

	trades := resolver.ResolveAll(intents, bars, 4)
	if len(trades) != 2 {
		t.Fatalf("应剩2笔交易, 实际 %d", len(trades))
	}
	if trades[0].Operation != database.OperationBuy || trades[1].Operation != database.OperationSell {
		t.Errorf("批量判定应保持输入顺序: %+v", trades)
	}
}

// TestPipsTruncation 测试点数截断（非四舍五入）到两位小数
func TestPipsTruncation(t *testing.T) {
	resolver := NewResolver(10000)

	cases := []struct {
		operation    string
		entry, close float64
		want         float64
	}{
		{database.OperationBuy, 1.0, 1.00123456, 12.34},   // 12.3456 截断
		{database.OperationBuy, 1.0, 1.00129999, 12.99},   // 12.9999 不进位
		{database.OperationSell, 1.00123456, 1.0, 12.34},  // 卖出取反
		{database.OperationBuy, 1.00123456, 1.0, -12.34},  // 负值向零截断
	}
	for i, tc := range cases {
		if got := resolver.pips(tc.operation, tc.entry, tc.close); got != tc.want {
			t.Errorf("用例 %d: 期望 %.2f, 实际 %v", i, tc.want, got)
		}
	}
}
