package backtest

import (
	"errors"
	"fmt"
	"time"
)

// 回测致命错误。任一错误都会把运行标记为 failed 并记录原因。
var (
	ErrInvalidTimeframe = errors.New("invalid timeframe")
	ErrEmptyRange       = errors.New("empty time range")
	ErrNoMarketData     = errors.New("no market data in range")
)

// AlignmentError 窗口对齐失败：起始时间在K线序列中找不到精确匹配，
// 或对齐点之前的历史不足以构成一个完整窗口。
type AlignmentError struct {
	DateFrom time.Time
	Reason   string
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("window alignment failed at %s: %s",
		e.DateFrom.UTC().Format(time.RFC3339), e.Reason)
}
