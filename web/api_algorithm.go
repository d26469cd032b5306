package web

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"fxmesh/database"
)

// AlgorithmRequest 算法创建/更新请求。脚本以 base64 编码提交。
type AlgorithmRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Script      string `json:"script" binding:"required"`
	Language    string `json:"language" binding:"required"`
	WindowSize  int    `json:"window_size" binding:"required,min=2"`
	Status      string `json:"status"`
}

// validateAlgorithmRequest 校验脚本编码与状态枚举
func validateAlgorithmRequest(req *AlgorithmRequest) string {
	if _, err := base64.StdEncoding.DecodeString(req.Script); err != nil {
		return "脚本必须是合法的 base64 编码"
	}
	if req.Status != "" && req.Status != database.StatusActive && req.Status != database.StatusInactive {
		return "状态必须是 active 或 inactive"
	}
	return ""
}

// createAlgorithm 创建算法
func createAlgorithm(c *gin.Context) {
	var req AlgorithmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	if msg := validateAlgorithmRequest(&req); msg != "" {
		respondError(c, http.StatusBadRequest, msg)
		return
	}

	status := req.Status
	if status == "" {
		status = database.StatusActive
	}
	algo := &database.Algorithm{
		Name:        req.Name,
		Description: req.Description,
		Script:      req.Script,
		Language:    req.Language,
		WindowSize:  req.WindowSize,
		Status:      status,
	}
	if err := apiDB.CreateAlgorithm(c.Request.Context(), algo); err != nil {
		respondError(c, http.StatusInternalServerError, "创建算法失败")
		return
	}
	respondSuccess(c, http.StatusCreated, algo)
}

// getAlgorithm 查询单个算法
func getAlgorithm(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	algo, err := apiDB.GetAlgorithm(c.Request.Context(), id)
	if err != nil {
		if database.IsNotFound(err) {
			respondError(c, http.StatusNotFound, "算法不存在")
		} else {
			respondError(c, http.StatusInternalServerError, "查询算法失败")
		}
		return
	}
	respondSuccess(c, http.StatusOK, algo)
}

// listAlgorithms 算法列表，支持状态过滤与分页
func listAlgorithms(c *gin.Context) {
	limit, offset := parsePagination(c)
	algos, err := apiDB.ListAlgorithms(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询算法列表失败")
		return
	}
	respondSuccess(c, http.StatusOK, algos)
}

// updateAlgorithm 更新算法
func updateAlgorithm(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req AlgorithmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	if msg := validateAlgorithmRequest(&req); msg != "" {
		respondError(c, http.StatusBadRequest, msg)
		return
	}

	algo, err := apiDB.GetAlgorithm(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusNotFound, "算法不存在")
		return
	}

	algo.Name = req.Name
	algo.Description = req.Description
	algo.Script = req.Script
	algo.Language = req.Language
	algo.WindowSize = req.WindowSize
	if req.Status != "" {
		algo.Status = req.Status
	}
	if err := apiDB.UpdateAlgorithm(c.Request.Context(), algo); err != nil {
		respondError(c, http.StatusInternalServerError, "更新算法失败")
		return
	}
	respondSuccess(c, http.StatusOK, algo)
}

// deleteAlgorithm 删除算法
func deleteAlgorithm(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := apiDB.DeleteAlgorithm(c.Request.Context(), id); err != nil {
		respondError(c, http.StatusInternalServerError, "删除算法失败")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"id": id})
}
