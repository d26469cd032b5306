package backtest

import (
	"fmt"
	"time"

	"fxmesh/market"
)

// Window 一个滑动窗口：size 根按时间升序的K线，End 为最后一根的时间戳
type Window struct {
	Bars []market.Bar
	End  time.Time
}

// ExtractWindows 在K线序列上提取所有滑动窗口。
// dateFrom 必须与某根K线时间戳精确相等（对齐点），且对齐点之前
// 至少有 size−1 根历史K线，否则返回 AlignmentError。
// 返回 len(bars)−alignIndex 个窗口，第一个窗口终点恰为 dateFrom。
func ExtractWindows(bars []market.Bar, dateFrom time.Time, size int) ([]Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window size must be positive: %d", size)
	}

	alignIndex := -1
	for i, bar := range bars {
		if bar.Timestamp.Equal(dateFrom) {
			alignIndex = i
			break
		}
	}
	if alignIndex < 0 {
		return nil, &AlignmentError{DateFrom: dateFrom, Reason: "no bar matches start timestamp"}
	}
	if alignIndex+1 < size {
		return nil, &AlignmentError{
			DateFrom: dateFrom,
			Reason: fmt.Sprintf("insufficient history: need %d bars before start, have %d",
				size-1, alignIndex),
		}
	}

	windows := make([]Window, 0, len(bars)-alignIndex)
	for end := alignIndex; end < len(bars); end++ {
		w := bars[end-size+1 : end+1]
		windows = append(windows, Window{Bars: w, End: w[size-1].Timestamp})
	}
	return windows, nil
}
