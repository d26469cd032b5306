package market

import (
	"context"
	"fmt"
	"time"
)

// Bar 一根K线（OHLCV）
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// 支持的K线周期
const (
	Timeframe1m  = "1m"
	Timeframe5m  = "5m"
	Timeframe15m = "15m"
	Timeframe1h  = "1h"
	Timeframe4h  = "4h"
	Timeframe1d  = "1d"
)

// timeframeMinutes 各周期对应的分钟数
var timeframeMinutes = map[string]int{
	Timeframe1m:  1,
	Timeframe5m:  5,
	Timeframe15m: 15,
	Timeframe1h:  60,
	Timeframe4h:  240,
	Timeframe1d:  1440,
}

// TimeframeMinutes 返回周期对应的分钟数，未知周期返回错误
func TimeframeMinutes(timeframe string) (int, error) {
	minutes, ok := timeframeMinutes[timeframe]
	if !ok {
		return 0, fmt.Errorf("unknown timeframe: %s", timeframe)
	}
	return minutes, nil
}

// TimeframeDuration 返回周期对应的时长
func TimeframeDuration(timeframe string) (time.Duration, error) {
	minutes, err := TimeframeMinutes(timeframe)
	if err != nil {
		return 0, err
	}
	return time.Duration(minutes) * time.Minute, nil
}

// Provider 行情数据提供者。
// FetchBars 返回覆盖 [from − bufferBars×周期, to + bufferBars×周期] 的
// 连续K线序列，按时间升序且无重复时间戳。空结果视为致命输入错误，
// 由调用方（回测编排器）决定处置。
type Provider interface {
	FetchBars(ctx context.Context, symbol, timeframe string, from, to time.Time, bufferBars int) ([]Bar, error)
}
