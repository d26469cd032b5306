package backtest

import (
	"math"
	"sync"
	"time"

	"fxmesh/database"
	"fxmesh/logger"
	"fxmesh/market"
)

// TradeIntent 带求值时间的交易意图
type TradeIntent struct {
	OpenTimestamp time.Time
	Operation     string
	EntryPrice    float64
	TakeProfit    float64
	StopLoss      float64
}

// ResolvedTrade 前向扫描得出的平仓结果。
// Outcome 为空字符串表示1分钟序列耗尽仍未触及任一阈值（无结果），
// 此类记录不参与持久化和指标统计。
type ResolvedTrade struct {
	Operation      string
	Outcome        string
	OpenTimestamp  time.Time
	CloseTimestamp time.Time
	EntryPrice     float64
	ClosePrice     float64
	StopLoss       float64
	TakeProfit     float64
	Pips           float64
}

// Resolver 在1分钟K线上逐意图前向扫描判定输赢
type Resolver struct {
	pipScale float64
}

// NewResolver 创建结果判定器。pipScale 为价格到点数的换算系数，
// 传 0 使用默认值 10000（四位小数货币对）。
func NewResolver(pipScale float64) *Resolver {
	if pipScale <= 0 {
		pipScale = 10000
	}
	return &Resolver{pipScale: pipScale}
}

// Resolve 判定单个意图的结局。返回 nil 表示意图本身无效（买入入场价
// 不高于止损，或卖出入场价不低于止损），直接丢弃。
// 扫描严格从开仓时间之后的1分钟K线开始；同一根K线内止盈优先于止损。
func (r *Resolver) Resolve(intent TradeIntent, minuteBars []market.Bar) *ResolvedTrade {
	switch intent.Operation {
	case database.OperationBuy:
		if intent.EntryPrice <= intent.StopLoss {
			logger.Debug("⚠️ 丢弃无效买入意图: entry=%.5f <= stopLoss=%.5f",
				intent.EntryPrice, intent.StopLoss)
			return nil
		}
	case database.OperationSell:
		if intent.EntryPrice >= intent.StopLoss {
			logger.Debug("⚠️ 丢弃无效卖出意图: entry=%.5f >= stopLoss=%.5f",
				intent.EntryPrice, intent.StopLoss)
			return nil
		}
	default:
		return nil
	}

	trade := &ResolvedTrade{
		Operation:     intent.Operation,
		OpenTimestamp: intent.OpenTimestamp,
		EntryPrice:    intent.EntryPrice,
		StopLoss:      intent.StopLoss,
		TakeProfit:    intent.TakeProfit,
	}

	for _, bar := range minuteBars {
		if !bar.Timestamp.After(intent.OpenTimestamp) {
			continue
		}

		var outcome string
		var closePrice float64

		if intent.Operation == database.OperationBuy {
			// 止盈优先：同一根K线同时越过两个阈值时记为赢
			if bar.High >= intent.TakeProfit {
				outcome, closePrice = database.OutcomeWin, intent.TakeProfit
			} else if bar.Low <= intent.StopLoss {
				outcome, closePrice = database.OutcomeLoss, intent.StopLoss
			}
		} else {
			if bar.Low <= intent.TakeProfit {
				outcome, closePrice = database.OutcomeWin, intent.TakeProfit
			} else if bar.High >= intent.StopLoss {
				outcome, closePrice = database.OutcomeLoss, intent.StopLoss
			}
		}

		if outcome != "" {
			trade.Outcome = outcome
			trade.ClosePrice = closePrice
			trade.CloseTimestamp = bar.Timestamp
			trade.Pips = r.pips(intent.Operation, intent.EntryPrice, closePrice)
			return trade
		}
	}

	// 序列耗尽，无结果
	return trade
}

// ResolveAll 用工作协程池并发判定一批意图，返回顺序与输入一致。
// 无效意图被剔除，无结果的交易保留（由调用方过滤）。
func (r *Resolver) ResolveAll(intents []TradeIntent, minuteBars []market.Bar, workers int) []ResolvedTrade {
	if workers <= 0 {
		workers = 1
	}

	results := make([]*ResolvedTrade, len(intents))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = r.Resolve(intents[i], minuteBars)
			}
		}()
	}

	for i := range intents {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	trades := make([]ResolvedTrade, 0, len(intents))
	for _, t := range results {
		if t != nil {
			trades = append(trades, *t)
		}
	}
	return trades
}

// pips 计算点数收益：买入为 (平仓价−入场价)×换算系数，卖出取反，
// 截断（非四舍五入）到两位小数。
func (r *Resolver) pips(operation string, entry, close float64) float64 {
	var p float64
	if operation == database.OperationBuy {
		p = (close - entry) * r.pipScale
	} else {
		p = (entry - close) * r.pipScale
	}
	return truncPips(p)
}

// truncPips 截断到两位小数。先在第六位小数上消除浮点误差，
// 避免 19.999999999 被截成 19.99。
func truncPips(p float64) float64 {
	return math.Trunc(math.Round(p*1e6)/1e4) / 100
}
