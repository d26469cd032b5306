package sandbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"fxmesh/market"
)

// JavaScriptRuntime 基于 goja 的 JavaScript 沙箱。
// 每次执行都新建 VM：无文件系统、无网络、无宿主状态，
// 随机数源固定种子、时钟固定为窗口末根K线时间，
// 保证同一窗口重放结果一致。
type JavaScriptRuntime struct {
	timeout time.Duration
}

// clockPrelude 用固定时刻的 Date 替换 VM 内置 Date，
// 脚本里的 Date.now() / new Date() 都只能看到窗口终点时间
const clockPrelude = `Date = (function (RealDate, fixed) {
	function FrozenDate() {
		if (arguments.length === 0) {
			return new RealDate(fixed);
		}
		var args = Array.prototype.slice.call(arguments);
		return new (Function.prototype.bind.apply(RealDate, [null].concat(args)))();
	}
	FrozenDate.prototype = RealDate.prototype;
	FrozenDate.now = function () { return fixed; };
	FrozenDate.parse = RealDate.parse;
	FrozenDate.UTC = RealDate.UTC;
	return FrozenDate;
})(Date, %d);`

// NewJavaScriptRuntime 创建 JavaScript 运行时
func NewJavaScriptRuntime(timeout time.Duration) *JavaScriptRuntime {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &JavaScriptRuntime{timeout: timeout}
}

// Name 返回语言标识
func (r *JavaScriptRuntime) Name() string { return "javascript" }

// Execute 解码并执行策略脚本，脚本约定导出 main(data) 函数。
// data 是按时间升序的K线数组，最后一个元素为求值点。
func (r *JavaScriptRuntime) Execute(ctx context.Context, script string, window []market.Bar) (*Intent, error) {
	source, err := base64.StdEncoding.DecodeString(script)
	if err != nil {
		// 兼容未编码的明文脚本
		source = []byte(script)
	}

	vm := goja.New()
	vm.SetRandSource(newSeededRand(window))

	var frozenMs int64
	if len(window) > 0 {
		frozenMs = window[len(window)-1].Timestamp.UnixMilli()
	}
	if _, err := vm.RunString(fmt.Sprintf(clockPrelude, frozenMs)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecution, err)
	}

	data := make([]map[string]interface{}, len(window))
	for i, bar := range window {
		data[i] = map[string]interface{}{
			"timestamp": bar.Timestamp.UnixMilli(),
			"open":      bar.Open,
			"high":      bar.High,
			"low":       bar.Low,
			"close":     bar.Close,
			"volume":    bar.Volume,
		}
	}
	if err := vm.Set("data", data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecution, err)
	}

	timer := time.AfterFunc(r.timeout, func() {
		vm.Interrupt("execution timeout")
	})
	defer timer.Stop()

	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < r.timeout {
		timer.Reset(time.Until(deadline))
	}

	value, err := vm.RunString(string(source) + "\n;main(data);")
	if err != nil {
		if _, ok := err.(*goja.InterruptedError); ok {
			return nil, fmt.Errorf("%w (%s)", ErrTimeout, r.timeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrExecution, err)
	}

	if value == nil || goja.IsNull(value) || goja.IsUndefined(value) {
		return nil, nil
	}

	raw, ok := value.Export().(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: result is not an object", ErrSchema)
	}
	return parseIntent(raw)
}

// parseIntent 校验脚本返回值并转换为交易意图
func parseIntent(raw map[string]interface{}) (*Intent, error) {
	operation, ok := raw["operation"].(string)
	if !ok || (operation != "buy" && operation != "sell") {
		return nil, fmt.Errorf("%w: operation must be buy or sell", ErrSchema)
	}

	intent := &Intent{Operation: operation}

	required := map[string]*float64{
		"entryPrice": &intent.EntryPrice,
		"takeProfit": &intent.TakeProfit,
		"stopLoss":   &intent.StopLoss,
	}
	for field, dst := range required {
		v, ok := numField(raw, field)
		if !ok || v <= 0 {
			return nil, fmt.Errorf("%w: %s must be a positive number", ErrSchema, field)
		}
		*dst = v
	}

	if v, ok := numField(raw, "takeProfitPerc"); ok {
		intent.TakeProfitPerc = v
	}
	if v, ok := numField(raw, "stopLossPerc"); ok {
		intent.StopLossPerc = v
	}

	return intent, nil
}

// numField 读取数值字段（goja 导出可能是 int64 或 float64）
func numField(raw map[string]interface{}, key string) (float64, bool) {
	switch v := raw[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// newSeededRand 以窗口首根K线时间戳为种子的确定性随机数源
func newSeededRand(window []market.Bar) goja.RandSource {
	var seed uint64 = 0x9E3779B97F4A7C15
	if len(window) > 0 {
		seed ^= uint64(window[0].Timestamp.UnixMilli())
	}
	state := seed
	return func() float64 {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		return float64(state>>11) / float64(1<<53)
	}
}
