package backtest

import (
	"fmt"
	"time"

	"fxmesh/market"
)

// Calendar 判断某一时刻市场是否开盘
type Calendar interface {
	IsTradingTime(t time.Time) bool
}

// ForexCalendar 外汇交易日历。
// 市场在周五 22:00 UTC 收盘，周日 22:00 UTC 开盘，
// 其间（含整个周六）不产生求值点。
type ForexCalendar struct{}

// IsTradingTime 判断 t 是否落在交易时段内
func (ForexCalendar) IsTradingTime(t time.Time) bool {
	u := t.UTC()
	switch u.Weekday() {
	case time.Saturday:
		return false
	case time.Friday:
		return u.Hour() < 22
	case time.Sunday:
		return u.Hour() >= 22
	default:
		return true
	}
}

// GenerateTimeAxis 生成回测时间轴：从 from 起按周期步进、严格递增、
// 不含 to 本身的UTC时间序列，并剔除休市时段。
// from 本身落在交易时段内时会成为序列首点（热身窗口的终点，不参与求值）；
// from 落在休市时段时被剔除，首点即为第一个求值点。
func GenerateTimeAxis(from, to time.Time, timeframe string, cal Calendar) ([]time.Time, error) {
	step, err := market.TimeframeDuration(timeframe)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimeframe, timeframe)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: %s >= %s", ErrEmptyRange,
			from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	}

	axis := make([]time.Time, 0, int(to.Sub(from)/step))
	for cur := from.UTC(); cur.Before(to); cur = cur.Add(step) {
		if cal != nil && !cal.IsTradingTime(cur) {
			continue
		}
		axis = append(axis, cur)
	}

	if len(axis) == 0 {
		return nil, fmt.Errorf("%w: all points fall outside trading hours", ErrEmptyRange)
	}
	return axis, nil
}
