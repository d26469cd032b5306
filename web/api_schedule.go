package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fxmesh/database"
	"fxmesh/market"
)

// ScheduleRequest 调度创建/更新请求
type ScheduleRequest struct {
	Name         string `json:"name" binding:"required"`
	SymbolID     uint   `json:"symbol_id" binding:"required"`
	AlgorithmID  uint   `json:"algorithm_id" binding:"required"`
	Timeframe    string `json:"timeframe" binding:"required"`
	CandleNumber int    `json:"candle_number" binding:"required,min=2"`
	Status       string `json:"status"`
}

// validateScheduleRequest 校验周期与状态枚举
func validateScheduleRequest(req *ScheduleRequest) string {
	if _, err := market.TimeframeMinutes(req.Timeframe); err != nil {
		return "不支持的K线周期: " + req.Timeframe
	}
	switch req.Status {
	case "", database.StatusActive, database.StatusPaused:
		return ""
	default:
		return "状态必须是 active 或 paused"
	}
}

// createSchedule 创建调度。active 调度会在下一轮对账时被调度器接管。
func createSchedule(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	if msg := validateScheduleRequest(&req); msg != "" {
		respondError(c, http.StatusBadRequest, msg)
		return
	}

	ctx := c.Request.Context()
	if _, err := apiDB.GetAlgorithm(ctx, req.AlgorithmID); err != nil {
		respondError(c, http.StatusNotFound, "算法不存在")
		return
	}
	if _, err := apiDB.GetSymbol(ctx, req.SymbolID); err != nil {
		respondError(c, http.StatusNotFound, "交易对不存在")
		return
	}

	status := req.Status
	if status == "" {
		status = database.StatusActive
	}
	schedule := &database.Schedule{
		Name:         req.Name,
		SymbolID:     req.SymbolID,
		AlgorithmID:  req.AlgorithmID,
		Timeframe:    req.Timeframe,
		CandleNumber: req.CandleNumber,
		Status:       status,
	}
	if err := apiDB.CreateSchedule(ctx, schedule); err != nil {
		respondError(c, http.StatusInternalServerError, "创建调度失败")
		return
	}
	respondSuccess(c, http.StatusCreated, schedule)
}

// listSchedules 调度列表，支持状态过滤
func listSchedules(c *gin.Context) {
	schedules, err := apiDB.ListSchedules(c.Request.Context(), c.Query("status"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询调度列表失败")
		return
	}
	respondSuccess(c, http.StatusOK, schedules)
}

// updateSchedule 更新调度，变更由调度器对账循环感知
func updateSchedule(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	if msg := validateScheduleRequest(&req); msg != "" {
		respondError(c, http.StatusBadRequest, msg)
		return
	}

	schedule, err := apiDB.GetSchedule(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusNotFound, "调度不存在")
		return
	}

	schedule.Name = req.Name
	schedule.SymbolID = req.SymbolID
	schedule.AlgorithmID = req.AlgorithmID
	schedule.Timeframe = req.Timeframe
	schedule.CandleNumber = req.CandleNumber
	if req.Status != "" {
		schedule.Status = req.Status
	}
	if err := apiDB.UpdateSchedule(c.Request.Context(), schedule); err != nil {
		respondError(c, http.StatusInternalServerError, "更新调度失败")
		return
	}
	respondSuccess(c, http.StatusOK, schedule)
}

// deleteSchedule 删除调度
func deleteSchedule(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := apiDB.DeleteSchedule(c.Request.Context(), id); err != nil {
		respondError(c, http.StatusInternalServerError, "删除调度失败")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"id": id})
}
