// internal/api/handlers.go
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Corphon/PersonaChat/internal/config"
	apperrors "github.com/Corphon/PersonaChat/internal/errors"
	"github.com/Corphon/PersonaChat/internal/llm"
	"github.com/Corphon/PersonaChat/internal/models"
	"github.com/Corphon/PersonaChat/internal/services"
	"github.com/Corphon/PersonaChat/internal/utils"
	"github.com/gin-gonic/gin"
)

// Handler 处理API请求
type Handler struct {
	// 核心服务
	ChatService    *services.ChatService    // 聊天编排服务
	CatalogService *services.CatalogService // 人格目录服务
	PromptService  *services.PromptService  // 提示词服务
	SessionService *services.SessionService // 会话服务
	LLMService     *services.LLMService     // 模型服务
	Response       *ResponseHelper          // 响应助手
}

// NewHandler 创建API处理器
func NewHandler(
	chatService *services.ChatService,
	catalogService *services.CatalogService,
	promptService *services.PromptService,
	sessionService *services.SessionService,
	llmService *services.LLMService) *Handler {

	return &Handler{
		ChatService:    chatService,
		CatalogService: catalogService,
		PromptService:  promptService,
		SessionService: sessionService,
		LLMService:     llmService,
		Response:       NewResponseHelper(),
	}
}

// ChatRequest 聊天请求结构
type ChatRequest struct {
	Message             string               `json:"message"`                        // 用户消息
	Persona             string               `json:"persona"`                        // 人格ID
	Culture             string               `json:"culture"`                        // 文化背景ID
	SessionID           string               `json:"session_id"`                     // 会话ID，为空时走无状态模式
	ConversationHistory []models.ChatMessage `json:"conversation_history,omitempty"` // 无状态模式下的客户端历史
}

// ChatResponse 聊天响应结构（扁平信封，聊天端点不走APIResponse包装）
type ChatResponse struct {
	Response     string `json:"response"`
	Persona      string `json:"persona"`
	Culture      string `json:"culture"`
	SessionID    string `json:"session_id,omitempty"`
	Simulated    bool   `json:"simulated"`
	Success      bool   `json:"success"`
	Note         string `json:"note,omitempty"` // 非错误的提示，如无可重试消息
	ErrorMessage string `json:"error_message,omitempty"`
}

// GenerateRequest 文本生成请求结构
type GenerateRequest struct {
	Prompt    string `json:"prompt"`     // 生成提示
	Style     string `json:"style"`      // 写作风格ID
	MaxTokens int    `json:"max_tokens"` // 最大生成长度，0表示默认值
}

// GenerateResponse 文本生成响应结构
type GenerateResponse struct {
	GeneratedText string `json:"generated_text"`
	Style         string `json:"style"`
	Simulated     bool   `json:"simulated"`
	Success       bool   `json:"success"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// RetryRequest 重试请求结构
// 人格与文化由会话自身决定，请求中只需要会话ID
type RetryRequest struct {
	SessionID string `json:"session_id"` // 会话ID
}

// ------------------------------------------------

// Chat 处理聊天请求
func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ChatResponse{
			Success:      false,
			ErrorMessage: "无效的请求格式: " + err.Error(),
		})
		return
	}

	result, err := h.ChatService.Chat(c.Request.Context(), services.ChatInput{
		SessionID: req.SessionID,
		Message:   req.Message,
		Persona:   req.Persona,
		Culture:   req.Culture,
		History:   req.ConversationHistory,
	})
	if err != nil {
		h.chatError(c, &req, err)
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		Response:  result.Response,
		Persona:   result.Persona,
		Culture:   result.Culture,
		SessionID: result.SessionID,
		Simulated: result.Simulated,
		Success:   true,
	})
}

// RetryChat 重新提交会话中最近一条用户消息
func (h *Handler) RetryChat(c *gin.Context) {
	var req RetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ChatResponse{
			Success:      false,
			ErrorMessage: "无效的请求格式: " + err.Error(),
		})
		return
	}

	result, err := h.ChatService.Retry(c.Request.Context(), req.SessionID)
	if err != nil {
		h.chatError(c, &ChatRequest{SessionID: req.SessionID}, err)
		return
	}
	if result == nil {
		// 会话中没有可重试的用户消息，明确告知调用方这是一次空操作
		c.JSON(http.StatusOK, ChatResponse{
			SessionID: req.SessionID,
			Success:   true,
			Note:      "no_retryable_message",
		})
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		Response:  result.Response,
		Persona:   result.Persona,
		Culture:   result.Culture,
		SessionID: result.SessionID,
		Simulated: result.Simulated,
		Success:   true,
	})
}

// chatError 把编排层错误转换为扁平的聊天错误信封
func (h *Handler) chatError(c *gin.Context, req *ChatRequest, err error) {
	utils.GetLogger().Error("聊天请求失败", map[string]interface{}{
		"persona": req.Persona,
		"culture": req.Culture,
		"error":   err.Error(),
	})

	c.JSON(statusForError(err), ChatResponse{
		Persona:      req.Persona,
		Culture:      req.Culture,
		SessionID:    req.SessionID,
		Success:      false,
		ErrorMessage: sanitizeErrorMessage(err.Error()),
	})
}

// Generate 处理风格化文本生成请求
func (h *Handler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenerateResponse{
			Success:      false,
			ErrorMessage: "无效的请求格式: " + err.Error(),
		})
		return
	}

	result, err := h.ChatService.Generate(c.Request.Context(), services.GenerateInput{
		Prompt:    req.Prompt,
		Style:     req.Style,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		utils.GetLogger().Error("文本生成失败", map[string]interface{}{
			"style": req.Style,
			"error": err.Error(),
		})
		c.JSON(statusForError(err), GenerateResponse{
			Style:        req.Style,
			Success:      false,
			ErrorMessage: sanitizeErrorMessage(err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, GenerateResponse{
		GeneratedText: result.Text,
		Style:         result.Style,
		Simulated:     result.Simulated,
		Success:       true,
	})
}

// ------------------------------------------------
// 目录端点
// ------------------------------------------------

// GetPersonas 返回全部人格定义
func (h *Handler) GetPersonas(c *gin.Context) {
	personas := make(map[string]*models.Persona)
	for _, p := range h.CatalogService.ListPersonas() {
		personas[p.ID] = p
	}

	c.JSON(http.StatusOK, gin.H{
		"personas": personas,
		"success":  true,
	})
}

// GetCultures 返回全部文化背景定义
func (h *Handler) GetCultures(c *gin.Context) {
	cultures := make(map[string]*models.Culture)
	for _, cu := range h.CatalogService.ListCultures() {
		cultures[cu.ID] = cu
	}

	c.JSON(http.StatusOK, gin.H{
		"cultures": cultures,
		"success":  true,
	})
}

// GetCombinations 返回人格与文化的全部组合
func (h *Handler) GetCombinations(c *gin.Context) {
	c.JSON(http.StatusOK, h.CatalogService.ListCombinations())
}

// GetStyles 返回全部写作风格定义
func (h *Handler) GetStyles(c *gin.Context) {
	styles := make(map[string]*models.StyleProfile)
	for _, st := range h.CatalogService.ListStyles() {
		styles[st.ID] = st
	}

	c.JSON(http.StatusOK, gin.H{
		"styles":  styles,
		"success": true,
	})
}

// TestPersona 预览指定人格与文化组合的系统提示词
func (h *Handler) TestPersona(c *gin.Context) {
	persona := c.Param("persona")
	culture := c.Param("culture")

	prompt, err := h.PromptService.BuildPersonaPrompt(persona, culture)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			h.Response.NotFound(c, err.Error())
		} else {
			h.Response.InternalError(c, "生成提示词失败", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"persona": persona,
		"culture": culture,
		"prompt":  prompt,
		"success": true,
	})
}

// ------------------------------------------------
// 模型管理端点
// ------------------------------------------------

// HealthCheck 服务健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	ready, note := h.LLMService.GetProviderStatus()

	status := "healthy"
	if !ready {
		// 服务仍可用（模拟回退），但标记为降级
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"model_loaded": ready,
		"detail":       note,
		"timestamp":    time.Now().Format(time.RFC3339),
	})
}

// GetModelInfo 返回当前活跃模型信息
func (h *Handler) GetModelInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.LLMService.GetModelInfo())
}

// ReloadModel 重新加载生成后端
// 幂等：重载进行中时重复调用直接返回，不会并发加载
func (h *Handler) ReloadModel(c *gin.Context) {
	if err := h.LLMService.Reload(c.Request.Context()); err != nil {
		utils.GetLogger().Error("模型重载失败", map[string]interface{}{
			"error": err.Error(),
		})
		c.JSON(statusForError(err), gin.H{
			"success":       false,
			"error_message": sanitizeErrorMessage(err.Error()),
		})
		return
	}

	info := h.LLMService.GetModelInfo()
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    fmt.Sprintf("模型已就绪: %s", info.ModelName),
		"model_info": info,
	})
}

// ------------------------------------------------
// 会话端点
// ------------------------------------------------

// CreateSession 分配一个服务端生成的会话ID
// 客户端无法生成可靠随机ID时使用
func (h *Handler) CreateSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"session_id": h.SessionService.NewSessionID(),
		"success":    true,
	})
}

// GetSession 返回指定会话的完整历史
func (h *Handler) GetSession(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		h.Response.BadRequest(c, "会话ID不能为空")
		return
	}

	history := h.SessionService.History(sessionID, 0)
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   history,
		"turn_count": len(history),
		"success":    true,
	})
}

// ClearSession 清空指定会话的历史，会话本身保留
func (h *Handler) ClearSession(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		h.Response.BadRequest(c, "会话ID不能为空")
		return
	}

	h.SessionService.Clear(sessionID)
	h.Response.Success(c, gin.H{"session_id": sessionID}, "会话已清空")
}

// DeleteSession 删除指定会话
func (h *Handler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		h.Response.BadRequest(c, "会话ID不能为空")
		return
	}

	h.SessionService.Remove(sessionID)
	h.Response.Success(c, gin.H{"session_id": sessionID}, "会话已删除")
}

// ------------------------------------------------
// 统计端点
// ------------------------------------------------

// GetStats 返回运行期计数器与延迟直方图
func (h *Handler) GetStats(c *gin.Context) {
	counters, histograms := utils.GetMetricsCollector().Snapshot()
	h.Response.Success(c, gin.H{
		"counters":   counters,
		"histograms": histograms,
	})
}

// ------------------------------------------------
// 设置端点
// ------------------------------------------------

// UpdateLLMSettingsRequest LLM设置更新请求
type UpdateLLMSettingsRequest struct {
	Provider string            `json:"provider,omitempty"` // 要更新配置的提供者
	Config   map[string]string `json:"config,omitempty"`   // 提供者配置（api_key等）
	Chain    []string          `json:"chain,omitempty"`    // 新的回退链
}

// GetSettings 返回当前的LLM设置，API密钥做掩码处理
func (h *Handler) GetSettings(c *gin.Context) {
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		h.Response.InternalError(c, "配置系统未初始化")
		return
	}

	masked := make(map[string]map[string]string, len(cfg.LLMConfigs))
	for name, providerCfg := range cfg.LLMConfigs {
		inner := make(map[string]string, len(providerCfg))
		for k, v := range providerCfg {
			if k == "api_key" && v != "" {
				inner[k] = "********"
				continue
			}
			inner[k] = v
		}
		masked[name] = inner
	}

	h.Response.Success(c, gin.H{
		"providers":       cfg.LLMProviders,
		"llm_configs":     masked,
		"context_window":  cfg.ContextWindow,
		"request_timeout": cfg.RequestTimeout,
	})
}

// UpdateLLMSettings 更新提供者配置与回退链并持久化
// 更新后需要调用 /api/reload-model 才会作用到运行中的后端
func (h *Handler) UpdateLLMSettings(c *gin.Context) {
	var req UpdateLLMSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式: "+err.Error())
		return
	}
	if req.Provider == "" && len(req.Chain) == 0 {
		h.Response.BadRequest(c, "请求中必须包含provider或chain")
		return
	}

	registered := llm.ListProviders()
	known := func(name string) bool {
		for _, p := range registered {
			if p == name {
				return true
			}
		}
		return false
	}

	if req.Provider != "" {
		if !known(req.Provider) {
			h.Response.BadRequest(c, fmt.Sprintf("未注册的提供者: %s", req.Provider))
			return
		}
		if err := config.UpdateLLMConfig(req.Provider, req.Config); err != nil {
			h.Response.InternalError(c, "保存提供者配置失败")
			return
		}
	}

	if len(req.Chain) > 0 {
		for _, name := range req.Chain {
			if !known(name) {
				h.Response.BadRequest(c, fmt.Sprintf("未注册的提供者: %s", name))
				return
			}
		}
		if err := config.UpdateProviderChain(req.Chain); err != nil {
			h.Response.InternalError(c, "保存提供者链失败")
			return
		}
	}

	utils.GetLogger().Info("LLM设置已更新", map[string]interface{}{
		"provider": req.Provider,
		"chain":    req.Chain,
	})
	h.Response.Success(c, gin.H{"reload_required": true}, "设置已保存")
}

// ServiceInfo 根路径的服务描述
func (h *Handler) ServiceInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   "PersonaChat",
		"version":   "1.0.0",
		"endpoints": []string{"/api/chat", "/api/generate", "/api/personas", "/api/cultures", "/api/combinations", "/api/styles", "/api/health", "/api/model-info", "/api/reload-model", "/api/sessions", "/api/settings"},
	})
}
