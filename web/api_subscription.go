package web

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"fxmesh/database"
)

// SubscriptionRequest 订阅创建请求
type SubscriptionRequest struct {
	AlgorithmID uint   `json:"algorithm_id" binding:"required"`
	TargetURL   string `json:"target_url" binding:"required"`
}

// createSubscription 订阅算法的实时信号，信号以 webhook 投递到 target_url
func createSubscription(c *gin.Context) {
	var req SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	u, err := url.Parse(req.TargetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		respondError(c, http.StatusBadRequest, "target_url 必须是合法的 http/https 地址")
		return
	}

	ctx := c.Request.Context()
	if _, err := apiDB.GetAlgorithm(ctx, req.AlgorithmID); err != nil {
		respondError(c, http.StatusNotFound, "算法不存在")
		return
	}

	session := c.MustGet("session").(*Session)
	sub := &database.Subscription{
		UserID:      session.UserID,
		AlgorithmID: req.AlgorithmID,
		TargetURL:   req.TargetURL,
		Active:      true,
	}
	if err := apiDB.CreateSubscription(ctx, sub); err != nil {
		respondError(c, http.StatusInternalServerError, "创建订阅失败")
		return
	}
	respondSuccess(c, http.StatusCreated, sub)
}

// listSubscriptions 当前用户的订阅列表
func listSubscriptions(c *gin.Context) {
	session := c.MustGet("session").(*Session)
	subs, err := apiDB.ListSubscriptionsByUser(c.Request.Context(), session.UserID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询订阅失败")
		return
	}
	respondSuccess(c, http.StatusOK, subs)
}

// deleteSubscription 取消订阅
func deleteSubscription(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := apiDB.DeleteSubscription(c.Request.Context(), id); err != nil {
		respondError(c, http.StatusInternalServerError, "取消订阅失败")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"id": id})
}
