package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fxmesh/database"
	"fxmesh/logger"
	"fxmesh/market"
)

// 支持的平仓方式
var validCloseMethods = map[string]bool{
	"fixed_tp_sl":     true,
	"manual":          true,
	"opposite_signal": true,
}

// BacktestRequest 回测创建请求
type BacktestRequest struct {
	SymbolID    uint      `json:"symbol_id" binding:"required"`
	AlgorithmID uint      `json:"algorithm_id" binding:"required"`
	Timeframe   string    `json:"timeframe" binding:"required"`
	DateFrom    time.Time `json:"date_from" binding:"required"`
	DateTo      time.Time `json:"date_to" binding:"required"`
	WindowSize  int       `json:"window_size"` // 缺省取算法的窗口大小
	CloseMethod string    `json:"close_method" binding:"required"`
}

// createBacktest 创建并异步启动回测。
// 任务先以 running 状态落库，立刻返回 201 和任务 ID，结果通过查询接口获取。
func createBacktest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	if _, err := market.TimeframeMinutes(req.Timeframe); err != nil {
		respondError(c, http.StatusBadRequest, "不支持的K线周期: "+req.Timeframe)
		return
	}
	if !req.DateFrom.Before(req.DateTo) {
		respondError(c, http.StatusBadRequest, "开始时间必须早于结束时间")
		return
	}
	if req.DateTo.After(time.Now()) {
		respondError(c, http.StatusBadRequest, "结束时间不能晚于当前时间")
		return
	}
	if !validCloseMethods[req.CloseMethod] {
		respondError(c, http.StatusBadRequest, "不支持的平仓方式: "+req.CloseMethod)
		return
	}

	ctx := c.Request.Context()
	algo, err := apiDB.GetAlgorithm(ctx, req.AlgorithmID)
	if err != nil {
		respondError(c, http.StatusNotFound, "算法不存在")
		return
	}
	if algo.Status != database.StatusActive {
		respondError(c, http.StatusBadRequest, "算法未激活")
		return
	}
	symbol, err := apiDB.GetSymbol(ctx, req.SymbolID)
	if err != nil {
		respondError(c, http.StatusNotFound, "交易对不存在")
		return
	}

	windowSize := req.WindowSize
	if windowSize <= 0 {
		windowSize = algo.WindowSize
	}
	if windowSize < 2 {
		respondError(c, http.StatusBadRequest, "窗口大小至少为2")
		return
	}

	bt := &database.Backtest{
		SymbolID:    symbol.ID,
		AlgorithmID: algo.ID,
		Timeframe:   req.Timeframe,
		DateFrom:    req.DateFrom.UTC(),
		DateTo:      req.DateTo.UTC(),
		WindowSize:  windowSize,
		CloseMethod: req.CloseMethod,
	}
	if err := apiDB.CreateBacktest(ctx, bt); err != nil {
		respondError(c, http.StatusInternalServerError, "创建回测任务失败")
		return
	}

	apiRunner.Submit(bt, algo, symbol)
	logger.Info("📊 回测任务 #%d 已受理: %s %s", bt.ID, symbol.Pair, bt.Timeframe)

	respondSuccess(c, http.StatusCreated, gin.H{
		"id":     bt.ID,
		"status": bt.Status,
	})
}

// getBacktest 查询单个回测任务
func getBacktest(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	bt, err := apiDB.GetBacktest(c.Request.Context(), id)
	if err != nil {
		if database.IsNotFound(err) {
			respondError(c, http.StatusNotFound, "回测任务不存在")
		} else {
			respondError(c, http.StatusInternalServerError, "查询回测任务失败")
		}
		return
	}
	respondSuccess(c, http.StatusOK, bt)
}

// listBacktests 回测任务列表，支持状态/算法/交易对过滤与分页
func listBacktests(c *gin.Context) {
	limit, offset := parsePagination(c)
	filter := &database.BacktestFilter{
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	}
	if id, err := parseQueryUint(c, "algorithm_id"); err == nil {
		filter.AlgorithmID = id
	}
	if id, err := parseQueryUint(c, "symbol_id"); err == nil {
		filter.SymbolID = id
	}

	backtests, err := apiDB.ListBacktests(c.Request.Context(), filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询回测列表失败")
		return
	}
	respondSuccess(c, http.StatusOK, backtests)
}

// listBacktestsByAlgorithm 查询某个算法的所有回测
func listBacktestsByAlgorithm(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	backtests, err := apiDB.ListBacktestsByAlgorithm(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询回测列表失败")
		return
	}
	respondSuccess(c, http.StatusOK, backtests)
}

// listBacktestPositions 查询回测持仓，支持开仓/平仓时间范围过滤
func listBacktestPositions(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	limit, offset := parsePagination(c)
	filter := &database.PositionFilter{
		BacktestID: id,
		Limit:      limit,
		Offset:     offset,
	}
	if t, err := time.Parse(time.RFC3339, c.Query("open_from")); err == nil {
		filter.OpenFrom = &t
	}
	if t, err := time.Parse(time.RFC3339, c.Query("close_to")); err == nil {
		filter.CloseTo = &t
	}

	positions, err := apiDB.ListPositions(c.Request.Context(), filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询持仓失败")
		return
	}
	respondSuccess(c, http.StatusOK, positions)
}

// deleteBacktest 删除回测任务及其全部持仓
func deleteBacktest(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := apiDB.GetBacktest(ctx, id); err != nil {
		respondError(c, http.StatusNotFound, "回测任务不存在")
		return
	}

	if err := apiDB.DeletePositionsByBacktest(ctx, id); err != nil {
		respondError(c, http.StatusInternalServerError, "删除持仓失败")
		return
	}
	if err := apiDB.DeleteBacktest(ctx, id); err != nil {
		respondError(c, http.StatusInternalServerError, "删除回测任务失败")
		return
	}

	logger.Info("🧹 回测任务 #%d 及其持仓已删除", id)
	respondSuccess(c, http.StatusOK, gin.H{"id": id})
}
