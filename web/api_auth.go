package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"fxmesh/database"
	"fxmesh/logger"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// login 用户登录。数据库用户优先，其次是配置文件中的引导管理员。
func login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "用户名和密码不能为空")
		return
	}

	userID, role, ok := authenticate(c, &req)
	if !ok {
		respondError(c, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	session, err := GetSessionManager().CreateSession(userID, req.Username, role, c.ClientIP())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "创建会话失败")
		return
	}
	GetSessionManager().SetSessionCookie(c.Writer, session.SessionID)

	logger.Info("✅ 用户登录: %s (%s)", req.Username, role)
	respondSuccess(c, http.StatusOK, gin.H{
		"username": req.Username,
		"role":     role,
	})
}

// authenticate 校验用户名密码
func authenticate(c *gin.Context, req *LoginRequest) (userID uint, role string, ok bool) {
	user, err := apiDB.GetUserByUsername(c.Request.Context(), req.Username)
	if err == nil {
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) == nil {
			return user.ID, user.Role, true
		}
		return 0, "", false
	}
	if !database.IsNotFound(err) {
		logger.Error("❌ 查询用户失败: %v", err)
		return 0, "", false
	}

	// 引导管理员（来自配置文件，未入库）
	if apiConfig.Server.AdminUsername != "" &&
		req.Username == apiConfig.Server.AdminUsername &&
		req.Password == apiConfig.Server.AdminPassword {
		return 0, database.RoleAdmin, true
	}

	return 0, "", false
}

// logout 退出登录
func logout(c *gin.Context) {
	sm := GetSessionManager()
	if cookie, err := c.Request.Cookie("session_id"); err == nil {
		sm.DeleteSession(cookie.Value)
	}
	sm.ClearSessionCookie(c.Writer)
	respondSuccess(c, http.StatusOK, gin.H{"message": "已退出"})
}

// getAuthStatus 查询当前登录状态
func getAuthStatus(c *gin.Context) {
	session, exists := GetSessionManager().GetSessionFromRequest(c.Request)
	if !exists {
		respondSuccess(c, http.StatusOK, gin.H{"authenticated": false})
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"authenticated": true,
		"username":      session.Username,
		"role":          session.Role,
	})
}
