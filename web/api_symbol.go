package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fxmesh/database"
)

// SymbolRequest 交易对创建/更新请求
type SymbolRequest struct {
	Pair     string  `json:"pair" binding:"required"`
	LongName string  `json:"long_name"`
	PipScale float64 `json:"pip_scale"` // 0 表示使用全局默认
}

// createSymbol 创建交易对
func createSymbol(c *gin.Context) {
	var req SymbolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	if req.PipScale < 0 {
		respondError(c, http.StatusBadRequest, "点值换算系数不能为负")
		return
	}

	symbol := &database.Symbol{
		Pair:     req.Pair,
		LongName: req.LongName,
		PipScale: req.PipScale,
	}
	if err := apiDB.CreateSymbol(c.Request.Context(), symbol); err != nil {
		respondError(c, http.StatusConflict, "创建交易对失败，可能已存在")
		return
	}
	respondSuccess(c, http.StatusCreated, symbol)
}

// listSymbols 交易对列表
func listSymbols(c *gin.Context) {
	symbols, err := apiDB.ListSymbols(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询交易对失败")
		return
	}
	respondSuccess(c, http.StatusOK, symbols)
}

// updateSymbol 更新交易对
func updateSymbol(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req SymbolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	symbol, err := apiDB.GetSymbol(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusNotFound, "交易对不存在")
		return
	}

	symbol.Pair = req.Pair
	symbol.LongName = req.LongName
	symbol.PipScale = req.PipScale
	if err := apiDB.UpdateSymbol(c.Request.Context(), symbol); err != nil {
		respondError(c, http.StatusInternalServerError, "更新交易对失败")
		return
	}
	respondSuccess(c, http.StatusOK, symbol)
}

// deleteSymbol 删除交易对
func deleteSymbol(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := apiDB.DeleteSymbol(c.Request.Context(), id); err != nil {
		respondError(c, http.StatusInternalServerError, "删除交易对失败")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"id": id})
}
