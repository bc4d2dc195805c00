// internal/app/app.go
package app

import (
	"fmt"

	"github.com/Corphon/PersonaChat/internal/config"
	"github.com/Corphon/PersonaChat/internal/di"
	"github.com/Corphon/PersonaChat/internal/services"
	"github.com/Corphon/PersonaChat/internal/storage"
	"github.com/Corphon/PersonaChat/internal/utils"

	// 注册生成后端
	_ "github.com/Corphon/PersonaChat/internal/llm/providers/gemini"
	_ "github.com/Corphon/PersonaChat/internal/llm/providers/local"
	_ "github.com/Corphon/PersonaChat/internal/llm/providers/simulation"
)

// InitServices 按依赖顺序初始化所有服务并注册到容器
// 顺序：目录 → 提示词 → 存储 → 会话 → 模型 → 聊天编排
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	// 1. 人格目录服务（无依赖）
	catalogService := services.NewCatalogService()
	container.Register("catalog", catalogService)

	// 2. 提示词服务（依赖目录）
	promptService := services.NewPromptService(catalogService)
	container.Register("prompt", promptService)

	// 3. 会话持久化存储
	// 打开失败时降级为纯内存会话，服务照常启动
	store, err := storage.OpenConversationStore(cfg.DataDir)
	if err != nil {
		utils.GetLogger().Warn("会话存储打开失败，会话仅保留在内存中", map[string]interface{}{
			"data_dir": cfg.DataDir,
			"error":    err.Error(),
		})
		store = nil
	} else {
		container.Register("store", store)
	}

	// 4. 会话服务（依赖存储，store可为nil）
	sessionService := services.NewSessionService(store)
	container.Register("session", sessionService)

	// 5. 模型服务（依赖配置中的回退链）
	llmService, err := services.NewLLMService()
	if err != nil {
		return fmt.Errorf("初始化模型服务失败: %w", err)
	}
	container.Register("llm", llmService)

	// 6. 聊天编排服务（依赖以上全部）
	chatService := services.NewChatService(catalogService, promptService, sessionService, llmService)
	container.Register("chat", chatService)

	return nil
}

// Cleanup 释放服务持有的资源
func Cleanup() {
	container := di.GetContainer()

	if llmService, ok := container.Get("llm").(*services.LLMService); ok && llmService != nil {
		llmService.Unload()
	}

	if store, ok := container.Get("store").(*storage.ConversationStore); ok && store != nil {
		if err := store.Close(); err != nil {
			utils.GetLogger().Warn("关闭会话存储失败", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	container.Clear()
}
