package web

import (
	"net/http"
	"net/http/pprof"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes 设置路由
func SetupRoutes(r *gin.Engine) {
	// 健康检查（不需要认证）
	r.GET("/healthz", healthCheck)

	// Prometheus metrics 端点（不需要认证，供 Prometheus 抓取）
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// pprof 性能分析端点（调试用，生产环境建议通过防火墙限制访问）
	pprofGroup := r.Group("/debug/pprof")
	{
		pprofGroup.GET("/", gin.WrapF(pprof.Index))
		pprofGroup.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pprofGroup.GET("/profile", gin.WrapF(pprof.Profile))
		pprofGroup.GET("/trace", gin.WrapF(pprof.Trace))
		pprofGroup.GET("/allocs", gin.WrapH(pprof.Handler("allocs")))
		pprofGroup.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
		pprofGroup.GET("/heap", gin.WrapH(pprof.Handler("heap")))
	}

	// API 路由
	api := r.Group("/api")
	{
		// 公开的认证路由
		auth := api.Group("/auth")
		{
			auth.GET("/status", getAuthStatus)
			auth.POST("/login", login)
			auth.POST("/logout", logout)
		}

		// 需要认证的业务API
		protected := api.Group("")
		protected.Use(authMiddleware())
		{
			// 回测
			protected.POST("/backtests", createBacktest)
			protected.GET("/backtests", listBacktests)
			protected.GET("/backtests/:id", getBacktest)
			protected.GET("/backtests/:id/positions", listBacktestPositions)
			protected.DELETE("/backtests/:id", deleteBacktest)

			// 算法
			protected.POST("/algorithms", createAlgorithm)
			protected.GET("/algorithms", listAlgorithms)
			protected.GET("/algorithms/:id", getAlgorithm)
			protected.GET("/algorithms/:id/backtests", listBacktestsByAlgorithm)
			protected.PUT("/algorithms/:id", updateAlgorithm)
			protected.DELETE("/algorithms/:id", deleteAlgorithm)

			// 交易对
			protected.POST("/symbols", createSymbol)
			protected.GET("/symbols", listSymbols)
			protected.PUT("/symbols/:id", updateSymbol)
			protected.DELETE("/symbols/:id", deleteSymbol)

			// 实时调度
			protected.POST("/schedules", createSchedule)
			protected.GET("/schedules", listSchedules)
			protected.PUT("/schedules/:id", updateSchedule)
			protected.DELETE("/schedules/:id", deleteSchedule)

			// 信号订阅
			protected.POST("/subscriptions", createSubscription)
			protected.GET("/subscriptions", listSubscriptions)
			protected.DELETE("/subscriptions/:id", deleteSubscription)

			// 用户管理（仅管理员）
			admin := protected.Group("/users")
			admin.Use(adminMiddleware())
			{
				admin.POST("", createUser)
				admin.GET("", listUsers)
				admin.DELETE("/:id", deleteUser)
			}
		}
	}

	// WebSocket 事件流
	r.GET("/ws", handleWebSocket)
}

// healthCheck 健康检查：数据库连通即为健康
func healthCheck(c *gin.Context) {
	if err := apiDB.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
