package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fxmesh/database"
	"fxmesh/logger"
)

// authMiddleware 认证中间件
func authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sm := GetSessionManager()

		session, exists := sm.GetSessionFromRequest(c.Request)
		if !exists || session == nil {
			respondError(c, http.StatusUnauthorized, "未登录")
			c.Abort()
			return
		}

		c.Set("session", session)
		c.Set("username", session.Username)
		c.Set("role", session.Role)

		c.Next()
	}
}

// adminMiddleware 管理员权限中间件（在 authMiddleware 之后使用）
func adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != database.RoleAdmin {
			respondError(c, http.StatusForbidden, "需要管理员权限")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GinLoggerMiddleware 自定义 Gin 日志中间件
// logAll=true 时全量输出；否则仅记录错误请求 (状态码 >= 400)
func GinLoggerMiddleware(logAll bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		statusCode := c.Writer.Status()
		if !logAll && statusCode < 400 {
			return
		}

		latency := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}

		message := fmt.Sprintf("[GIN] %d | %v | %s | %-7s %s",
			statusCode, latency, c.ClientIP(), c.Request.Method, path)
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			message += " | Error: " + errs
		}

		logger.WriteWebLog(message)
		if statusCode >= 500 {
			logger.Error("%s", message)
		}
	}
}
