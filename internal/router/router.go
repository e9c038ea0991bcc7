package router

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/xiushen/internal/config"
	"github.com/xiushen/internal/handler"
)

// Setup 配置 Gin 引擎和路由
func Setup(cfg config.AppConfig, api *handler.API) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	r := gin.Default()

	// 配置会话中间件
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	r.Use(sessions.Sessions("xiushen_session", store))
	r.Use(handler.RateLimit(cfg.RateLimitPerMinute))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/register", api.Register)
		apiGroup.POST("/login", api.Login)
		apiGroup.POST("/logout", api.Logout)

		// 需要登录的每日修身路由
		daily := apiGroup.Group("/daily")
		daily.Use(handler.AuthRequired())
		{
			daily.GET("/today", api.GetToday)
			daily.POST("/tasks/:id/submit", api.SubmitTask)
			daily.POST("/tasks/:id/skip", api.SkipTask)
			daily.GET("/history", api.GetHistory)
			daily.GET("/stats", api.GetStats)
		}

		// AI 设置管理
		settings := apiGroup.Group("/settings")
		settings.Use(handler.AuthRequired())
		{
			settings.GET("", api.GetSettings)
			settings.PUT("", api.UpdateSettings)
		}
	}

	return r
}
