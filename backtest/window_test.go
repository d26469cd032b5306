package backtest

import (
	"errors"
	"testing"
	"time"

	"fxmesh/market"
)

// hourlyBars 生成 n 根从 start 开始的1小时K线
func hourlyBars(start time.Time, n int) []market.Bar {
	bars := make([]market.Bar, n)
	for i := range bars {
		price := 1.1000 + float64(i)*0.0001
		bars[i] = market.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price + 0.0005,
			Low:       price - 0.0005,
			Close:     price + 0.0002,
			Volume:    1000,
		}
	}
	return bars
}

// TestExtractWindows 测试窗口数量与边界
func TestExtractWindows(t *testing.T) {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	bars := hourlyBars(start, 30)
	dateFrom := start.Add(14 * time.Hour) // alignIndex = 14
	size := 10

	windows, err := ExtractWindows(bars, dateFrom, size)
	if err != nil {
		t.Fatalf("窗口提取失败: %v", err)
	}

	// len(bars) − alignIndex = 30 − 14 = 16
	if len(windows) != 16 {
		t.Errorf("窗口数应为16, 实际 %d", len(windows))
	}

	first := windows[0]
	if len(first.Bars) != size {
		t.Errorf("窗口长度应为 %d, 实际 %d", size, len(first.Bars))
	}
	if !first.End.Equal(dateFrom) {
		t.Errorf("首窗口终点应为 dateFrom, 实际 %v", first.End)
	}

	// 相邻窗口恰好滑动一根K线
	second := windows[1]
	if !second.Bars[0].Timestamp.Equal(first.Bars[1].Timestamp) {
		t.Error("相邻窗口应恰好滑动一根K线")
	}
	last := windows[len(windows)-1]
	if !last.End.Equal(bars[len(bars)-1].Timestamp) {
		t.Errorf("末窗口终点应为最后一根K线, 实际 %v", last.End)
	}
}

// TestExtractWindowsMisaligned 测试起始时间不在序列中
func TestExtractWindowsMisaligned(t *testing.T) {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	bars := hourlyBars(start, 30)

	var alignErr *AlignmentError
	_, err := ExtractWindows(bars, start.Add(14*time.Hour+30*time.Minute), 10)
	if !errors.As(err, &alignErr) {
		t.Errorf("错位的起始时间应返回 AlignmentError, 实际: %v", err)
	}
}

// TestExtractWindowsInsufficientHistory 测试热身历史不足
func TestExtractWindowsInsufficientHistory(t *testing.T) {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	bars := hourlyBars(start, 30)

	var alignErr *AlignmentError
	_, err := ExtractWindows(bars, start.Add(5*time.Hour), 10)
	if !errors.As(err, &alignErr) {
		t.Errorf("对齐点前历史不足应返回 AlignmentError, 实际: %v", err)
	}
}
