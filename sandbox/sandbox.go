package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fxmesh/market"
)

// 沙箱错误分类。不支持的语言是致命错误，终止整个回测；
// 其余错误只使本次求值视为"无信号"。
var (
	ErrUnsupportedLanguage = errors.New("unsupported script language")
	ErrTimeout             = errors.New("script execution timeout")
	ErrExecution           = errors.New("script execution failed")
	ErrSchema              = errors.New("invalid signal schema")
)

// Intent 策略脚本产生的交易意图
type Intent struct {
	Operation      string  `json:"operation"`
	EntryPrice     float64 `json:"entryPrice"`
	TakeProfit     float64 `json:"takeProfit"`
	StopLoss       float64 `json:"stopLoss"`
	TakeProfitPerc float64 `json:"takeProfitPerc,omitempty"`
	StopLossPerc   float64 `json:"stopLossPerc,omitempty"`
}

// Runtime 单一语言的脚本运行时
type Runtime interface {
	Name() string
	Execute(ctx context.Context, script string, window []market.Bar) (*Intent, error)
}

// Executor 按语言分发的脚本执行器
type Executor struct {
	runtimes map[string]Runtime
}

// NewExecutor 创建执行器并注册内置运行时
func NewExecutor(timeout time.Duration) *Executor {
	e := &Executor{runtimes: make(map[string]Runtime)}
	e.Register(NewJavaScriptRuntime(timeout))
	return e
}

// Register 注册脚本运行时
func (e *Executor) Register(rt Runtime) {
	e.runtimes[rt.Name()] = rt
}

// Execute 在对应语言的沙箱中执行策略脚本。
// 返回 (nil, nil) 表示脚本显式放弃信号。
func (e *Executor) Execute(ctx context.Context, language, script string, window []market.Bar) (*Intent, error) {
	rt, ok := e.runtimes[language]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
	return rt.Execute(ctx, script, window)
}
