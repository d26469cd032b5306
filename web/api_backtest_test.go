package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"fxmesh/backtest"
	"fxmesh/config"
	"fxmesh/database"
	"fxmesh/event"
	"fxmesh/market"
	"fxmesh/sandbox"
)

// testProvider 合成上涨行情
type testProvider struct{}

func (p *testProvider) FetchBars(ctx context.Context, symbol, timeframe string, from, to time.Time, bufferBars int) ([]market.Bar, error) {
	step, err := market.TimeframeDuration(timeframe)
	if err != nil {
		return nil, err
	}
	base := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	start := from.Add(-time.Duration(bufferBars) * step).Truncate(step)
	end := to.Add(time.Duration(bufferBars) * step)

	bars := make([]market.Bar, 0)
	for cur := start; cur.Before(end); cur = cur.Add(step) {
		price := 1.1000 + cur.Sub(base).Minutes()*0.00002
		bars = append(bars, market.Bar{
			Timestamp: cur, Open: price, High: price + 0.0003, Low: price - 0.0003, Close: price + 0.0001, Volume: 1000,
		})
	}
	return bars, nil
}

// newTestServer 组装带真实依赖的测试服务
func newTestServer(t *testing.T) (*gin.Engine, database.Database) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewDatabase(&database.Config{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "web.db"),
	})
	if err != nil {
		t.Fatalf("创建测试数据库失败: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.Server.AdminUsername = "admin"
	cfg.Server.AdminPassword = "test-password"

	runner := backtest.NewRunner(db, &testProvider{}, sandbox.NewExecutor(time.Second), event.NewEventBus(10), &backtest.RunnerConfig{
		PipScale:          10000,
		MarginBars:        120,
		ResolveWorkers:    2,
		MaxConcurrentRuns: 2,
	})

	SetDatabase(db)
	SetRunner(runner)
	SetConfig(cfg)
	InitSessionManager(time.Hour)

	r := gin.New()
	SetupRoutes(r)
	t.Cleanup(runner.Wait)
	return r, db
}

// authedRequest 构造带会话 Cookie 的请求
func authedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("序列化请求失败: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	session, err := GetSessionManager().CreateSession(1, "admin", database.RoleAdmin, "127.0.0.1")
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: "session_id", Value: session.SessionID})
	return req
}

func createTestFixtures(t *testing.T, db database.Database) (symbolID, algoID uint) {
	t.Helper()
	ctx := context.Background()

	symbol := &database.Symbol{Pair: "EURUSD", LongName: "Euro / US Dollar"}
	if err := db.CreateSymbol(ctx, symbol); err != nil {
		t.Fatalf("创建交易对失败: %v", err)
	}
	algo := &database.Algorithm{
		Name:       "null-strategy",
		Script:     base64.StdEncoding.EncodeToString([]byte(`function main(data) { return null; }`)),
		Language:   "javascript",
		WindowSize: 3,
		Status:     database.StatusActive,
	}
	if err := db.CreateAlgorithm(ctx, algo); err != nil {
		t.Fatalf("创建算法失败: %v", err)
	}
	return symbol.ID, algo.ID
}

// TestBacktestAPIRequiresAuth 测试未登录请求被拒绝
func TestBacktestAPIRequiresAuth(t *testing.T) {
	r, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/backtests", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("未登录应返回401, 实际 %d", w.Code)
	}
}

// TestCreateBacktestAsync 测试回测创建异步受理并最终完成
func TestCreateBacktestAsync(t *testing.T) {
	r, db := newTestServer(t)
	symbolID, algoID := createTestFixtures(t, db)

	body := map[string]interface{}{
		"symbol_id":    symbolID,
		"algorithm_id": algoID,
		"timeframe":    "1h",
		"date_from":    "2024-03-04T10:00:00Z",
		"date_to":      "2024-03-04T14:00:00Z",
		"close_method": "fixed_tp_sl",
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/backtests", body))

	if w.Code != http.StatusCreated {
		t.Fatalf("创建回测应返回201, 实际 %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			ID     uint   `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Data.ID == 0 || resp.Data.Status != database.BacktestStatusRunning {
		t.Fatalf("应返回任务ID与 running 状态, 实际 %+v", resp.Data)
	}

	// 等待异步运行结束
	deadline := time.After(10 * time.Second)
	for {
		bt, err := db.GetBacktest(context.Background(), resp.Data.ID)
		if err != nil {
			t.Fatalf("查询回测失败: %v", err)
		}
		if bt.Status != database.BacktestStatusRunning {
			if bt.Status != database.BacktestStatusCompleted {
				t.Fatalf("回测应完成, 实际 %s (%s)", bt.Status, bt.StatusMessage)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("等待回测完成超时")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// TestCreateBacktestValidation 测试创建参数校验
func TestCreateBacktestValidation(t *testing.T) {
	r, db := newTestServer(t)
	symbolID, algoID := createTestFixtures(t, db)

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"未知周期", map[string]interface{}{
			"symbol_id": symbolID, "algorithm_id": algoID, "timeframe": "30m",
			"date_from": "2024-03-04T10:00:00Z", "date_to": "2024-03-04T14:00:00Z", "close_method": "fixed_tp_sl",
		}},
		{"时间区间颠倒", map[string]interface{}{
			"symbol_id": symbolID, "algorithm_id": algoID, "timeframe": "1h",
			"date_from": "2024-03-04T14:00:00Z", "date_to": "2024-03-04T10:00:00Z", "close_method": "fixed_tp_sl",
		}},
		{"非法平仓方式", map[string]interface{}{
			"symbol_id": symbolID, "algorithm_id": algoID, "timeframe": "1h",
			"date_from": "2024-03-04T10:00:00Z", "date_to": "2024-03-04T14:00:00Z", "close_method": "trailing",
		}},
		{"结束时间在未来", map[string]interface{}{
			"symbol_id": symbolID, "algorithm_id": algoID, "timeframe": "1h",
			"date_from": "2024-03-04T10:00:00Z", "close_method": "fixed_tp_sl",
			"date_to": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/backtests", tc.body))
			if w.Code != http.StatusBadRequest {
				t.Errorf("应返回400, 实际 %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

// TestDeleteBacktestCascade 测试删除回测时持仓一并清除
func TestDeleteBacktestCascadeAPI(t *testing.T) {
	r, db := newTestServer(t)
	ctx := context.Background()

	bt := &database.Backtest{SymbolID: 1, AlgorithmID: 1, Timeframe: "1h"}
	if err := db.CreateBacktest(ctx, bt); err != nil {
		t.Fatalf("创建回测失败: %v", err)
	}
	open := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	positions := []*database.Position{{
		BacktestID: bt.ID, SymbolPair: "EURUSD", AlgorithmID: 1, Timeframe: "1h",
		Operation: database.OperationBuy, Outcome: database.OutcomeWin,
		OpenTimestamp: open, CloseTimestamp: open.Add(time.Hour),
		EntryPrice: 1.1, ClosePrice: 1.102, StopLoss: 1.099, TakeProfit: 1.102, Pips: 20,
	}}
	if _, _, err := db.UpsertPositions(ctx, positions); err != nil {
		t.Fatalf("写入持仓失败: %v", err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(t, http.MethodDelete, "/api/backtests/1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("删除应返回200, 实际 %d: %s", w.Code, w.Body.String())
	}

	if _, err := db.GetBacktest(ctx, bt.ID); !database.IsNotFound(err) {
		t.Errorf("回测应已删除, 实际: %v", err)
	}
	remaining, err := db.ListPositions(ctx, &database.PositionFilter{BacktestID: bt.ID})
	if err != nil {
		t.Fatalf("查询持仓失败: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("持仓应已清空, 实际 %d", len(remaining))
	}
}
