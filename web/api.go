package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fxmesh/backtest"
	"fxmesh/config"
	"fxmesh/database"
)

// 全局依赖（从 main.go 注入）
var (
	apiDB     database.Database
	apiRunner *backtest.Runner
	apiConfig *config.Config
)

// SetDatabase 注入数据库
func SetDatabase(db database.Database) {
	apiDB = db
}

// SetRunner 注入回测编排器
func SetRunner(runner *backtest.Runner) {
	apiRunner = runner
}

// SetConfig 注入配置
func SetConfig(cfg *config.Config) {
	apiConfig = cfg
}

// respondError 统一错误响应
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"message": message,
	})
}

// respondSuccess 统一成功响应
func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// parseIDParam 解析路径中的数字 ID
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		respondError(c, http.StatusBadRequest, "无效的ID")
		return 0, false
	}
	return uint(id), true
}

// parseQueryUint 解析查询串中的数字参数
func parseQueryUint(c *gin.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Query(name), 10, 32)
	return uint(v), err
}

// parsePagination 解析分页参数，page 从1开始
func parsePagination(c *gin.Context) (limit, offset int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if limit < 1 || limit > 500 {
		limit = 50
	}
	return limit, (page - 1) * limit
}
