// internal/api/router.go
package api

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/Corphon/PersonaChat/internal/config"
	"github.com/Corphon/PersonaChat/internal/di"
	"github.com/Corphon/PersonaChat/internal/services"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	// 获取配置
	cfg := config.GetCurrentConfig()

	// 获取依赖注入容器
	container := di.GetContainer()

	// ✅ 只从容器获取服务，不再创建新实例
	chatService, ok := container.Get("chat").(*services.ChatService)
	if !ok {
		return nil, fmt.Errorf("聊天服务未正确初始化")
	}

	catalogService, ok := container.Get("catalog").(*services.CatalogService)
	if !ok {
		return nil, fmt.Errorf("目录服务未正确初始化")
	}

	promptService, ok := container.Get("prompt").(*services.PromptService)
	if !ok {
		return nil, fmt.Errorf("提示词服务未正确初始化")
	}

	sessionService, ok := container.Get("session").(*services.SessionService)
	if !ok {
		return nil, fmt.Errorf("会话服务未正确初始化")
	}

	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		return nil, fmt.Errorf("模型服务未正确初始化")
	}

	// ✅ 创建API处理器 - 只传递从容器获取的服务
	handler := NewHandler(
		chatService,
		catalogService,
		promptService,
		sessionService,
		llmService,
	)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	r := gin.Default()

	// 启用CORS
	r.Use(corsMiddleware())

	// 静态文件服务
	r.Static("/static", cfg.StaticDir)
	r.StaticFile("/", filepath.Join(cfg.StaticDir, "index.html"))

	// WebSocket 支持
	r.GET("/ws/chat", handler.ChatWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	api.Use(DefaultRateLimit())
	{
		api.GET("", handler.ServiceInfo)

		// ===============================
		// 聊天与生成相关路由
		// ===============================
		chatGroup := api.Group("/chat")
		chatGroup.Use(ChatRateLimit())
		{
			chatGroup.POST("", handler.Chat)
			chatGroup.POST("/retry", handler.RetryChat)
		}

		api.POST("/generate", ChatRateLimit(), handler.Generate)

		// ===============================
		// 目录相关路由
		// ===============================
		api.GET("/personas", handler.GetPersonas)
		api.GET("/cultures", handler.GetCultures)
		api.GET("/combinations", handler.GetCombinations)
		api.GET("/styles", handler.GetStyles)
		api.GET("/test-persona/:persona/:culture", handler.TestPersona)

		// ===============================
		// 模型管理相关路由
		// ===============================
		api.GET("/health", handler.HealthCheck)
		api.GET("/model-info", handler.GetModelInfo)
		api.POST("/reload-model", ReloadRateLimit(), handler.ReloadModel)

		// ===============================
		// 会话相关路由
		// ===============================
		sessionsGroup := api.Group("/sessions")
		{
			sessionsGroup.POST("", handler.CreateSession)
			sessionsGroup.GET("/:id", handler.GetSession)
			sessionsGroup.POST("/:id/clear", handler.ClearSession)
			sessionsGroup.DELETE("/:id", handler.DeleteSession)
		}

		// ===============================
		// 设置相关路由
		// ===============================
		settingsGroup := api.Group("/settings")
		{
			settingsGroup.GET("", handler.GetSettings)
			settingsGroup.POST("/llm", ReloadRateLimit(), handler.UpdateLLMSettings)
		}

		// ===============================
		// 统计相关路由
		// ===============================
		api.GET("/stats", handler.GetStats)
	}

	return r, nil
}

// corsMiddleware 实现跨域资源共享
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Session-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
