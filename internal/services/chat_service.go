// internal/services/chat_service.go
package services

import (
	"context"
	"strings"

	"github.com/Corphon/PersonaChat/internal/config"
	apperrors "github.com/Corphon/PersonaChat/internal/errors"
	"github.com/Corphon/PersonaChat/internal/llm"
	"github.com/Corphon/PersonaChat/internal/models"
)

// 聊天模式的默认采样参数
const (
	chatMaxTokens   = 150
	chatTemperature = 0.8
	chatTopP        = 0.9

	generateDefaultMaxTokens = 512
)

// ChatService 编排一次完整的聊天/生成请求：
// 校验 → 拼装提示词 → 调用生成后端 → 维护会话状态
// 会话状态以本服务为准，客户端只做展示镜像
type ChatService struct {
	Catalog  *CatalogService
	Prompts  *PromptService
	Sessions *SessionService
	LLM      *LLMService

	contextWindow int
}

// NewChatService 创建聊天编排服务
func NewChatService(catalog *CatalogService, prompts *PromptService, sessions *SessionService, llmService *LLMService) *ChatService {
	window := config.DefaultContextWindow
	if cfg := config.GetCurrentConfig(); cfg != nil && cfg.ContextWindow > 0 {
		window = cfg.ContextWindow
	}

	return &ChatService{
		Catalog:       catalog,
		Prompts:       prompts,
		Sessions:      sessions,
		LLM:           llmService,
		contextWindow: window,
	}
}

// ChatInput 一次聊天请求的输入
type ChatInput struct {
	SessionID string
	Message   string
	Persona   string
	Culture   string
	// History 仅在无SessionID的无状态调用中生效，
	// 有SessionID时以服务端历史为准
	History []models.ChatMessage
}

// ChatResult 聊天请求的结果
type ChatResult struct {
	Response  string
	Persona   string
	Culture   string
	SessionID string
	Simulated bool
}

// Chat 处理一次聊天请求
// 成功时用户消息与助手回复一起写入会话；失败时两者都不写入，
// 会话轮数保持调用前的值（要么都记录要么都不记录）
func (s *ChatService) Chat(ctx context.Context, input ChatInput) (*ChatResult, error) {
	return s.chat(ctx, input, true)
}

// Retry 重新提交会话中最近一条用户消息
// 紧随其后的assistant回复被移除（视为已取代）后重新走完整流水线
// 人格与文化沿用会话当前绑定的值，避免触发切换分支清空会话
// 会话中没有用户消息时静默返回nil结果
func (s *ChatService) Retry(ctx context.Context, sessionID string) (*ChatResult, error) {
	if sessionID == "" {
		return nil, apperrors.NewValidationError("重试需要会话ID", nil)
	}

	persona, culture, ok := s.Sessions.PersonaCulture(sessionID)
	if !ok {
		return nil, nil
	}

	message, ok := s.Sessions.PrepareRetry(sessionID)
	if !ok {
		return nil, nil
	}

	// 用户消息已在历史中，成功后只追加assistant回复
	return s.chat(ctx, ChatInput{
		SessionID: sessionID,
		Message:   message,
		Persona:   persona,
		Culture:   culture,
	}, false)
}

func (s *ChatService) chat(ctx context.Context, input ChatInput, appendUser bool) (*ChatResult, error) {
	if strings.TrimSpace(input.Message) == "" {
		return nil, apperrors.NewValidationError("消息不能为空", nil)
	}
	if _, err := s.Catalog.GetPersona(input.Persona); err != nil {
		return nil, err
	}
	if _, err := s.Catalog.GetCulture(input.Culture); err != nil {
		return nil, err
	}

	var history []models.ChatMessage
	sessionBacked := input.SessionID != ""
	if sessionBacked {
		s.Sessions.GetOrCreate(input.SessionID, input.Persona, input.Culture)
		history = s.Sessions.History(input.SessionID, s.contextWindow)
		if !appendUser && len(history) > 0 {
			// 重试时最后一条就是待重发的用户消息，不重复进入上下文
			history = history[:len(history)-1]
		}
	} else {
		history = capHistory(input.History, s.contextWindow)
	}

	prompt, err := s.Prompts.AssembleChat(input.Persona, input.Culture, history, input.Message)
	if err != nil {
		return nil, err
	}

	resp, err := s.LLM.Generate(ctx, llm.GenerationRequest{
		Prompt:      prompt,
		MaxTokens:   chatMaxTokens,
		Temperature: chatTemperature,
		TopP:        chatTopP,
		Persona:     input.Persona,
		Culture:     input.Culture,
		UserMessage: input.Message,
	})
	if err != nil {
		return nil, err
	}

	if sessionBacked {
		if appendUser {
			s.Sessions.Append(input.SessionID, models.RoleUser, input.Message)
		}
		s.Sessions.Append(input.SessionID, models.RoleAssistant, resp.Text)
	}

	return &ChatResult{
		Response:  resp.Text,
		Persona:   input.Persona,
		Culture:   input.Culture,
		SessionID: input.SessionID,
		Simulated: resp.Simulated,
	}, nil
}

// StreamChat 以流式方式处理一次聊天请求
// 返回分片通道和提交函数：调用方收完全部分片后用完整回复调用commit，
// 用户消息与助手回复才会写入会话（流中断时会话保持原状）
func (s *ChatService) StreamChat(ctx context.Context, input ChatInput) (<-chan llm.StreamChunk, func(string), error) {
	if strings.TrimSpace(input.Message) == "" {
		return nil, nil, apperrors.NewValidationError("消息不能为空", nil)
	}
	if _, err := s.Catalog.GetPersona(input.Persona); err != nil {
		return nil, nil, err
	}
	if _, err := s.Catalog.GetCulture(input.Culture); err != nil {
		return nil, nil, err
	}

	var history []models.ChatMessage
	sessionBacked := input.SessionID != ""
	if sessionBacked {
		s.Sessions.GetOrCreate(input.SessionID, input.Persona, input.Culture)
		history = s.Sessions.History(input.SessionID, s.contextWindow)
	} else {
		history = capHistory(input.History, s.contextWindow)
	}

	prompt, err := s.Prompts.AssembleChat(input.Persona, input.Culture, history, input.Message)
	if err != nil {
		return nil, nil, err
	}

	chunks, err := s.LLM.Stream(ctx, llm.GenerationRequest{
		Prompt:      prompt,
		MaxTokens:   chatMaxTokens,
		Temperature: chatTemperature,
		TopP:        chatTopP,
		Persona:     input.Persona,
		Culture:     input.Culture,
		UserMessage: input.Message,
	})
	if err != nil {
		return nil, nil, err
	}

	commit := func(response string) {
		if !sessionBacked {
			return
		}
		s.Sessions.Append(input.SessionID, models.RoleUser, input.Message)
		s.Sessions.Append(input.SessionID, models.RoleAssistant, response)
	}

	return chunks, commit, nil
}

// GenerateInput 一次文本生成请求的输入
type GenerateInput struct {
	Prompt    string
	Style     string
	MaxTokens int
}

// GenerateResult 文本生成请求的结果
type GenerateResult struct {
	Text      string
	Style     string
	Simulated bool
}

// Generate 处理一次风格化文本生成请求，无人格、无历史
func (s *ChatService) Generate(ctx context.Context, input GenerateInput) (*GenerateResult, error) {
	prompt, style, err := s.Prompts.AssembleStyled(input.Style, input.Prompt)
	if err != nil {
		return nil, err
	}

	maxTokens := input.MaxTokens
	if maxTokens <= 0 {
		maxTokens = generateDefaultMaxTokens
	}

	resp, err := s.LLM.Generate(ctx, llm.GenerationRequest{
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: style.Temperature,
		TopP:        style.TopP,
		Style:       style.ID,
		UserMessage: input.Prompt,
	})
	if err != nil {
		return nil, err
	}

	return &GenerateResult{
		Text:      resp.Text,
		Style:     style.ID,
		Simulated: resp.Simulated,
	}, nil
}

// ContextWindow 返回拼装上下文时使用的窗口大小
func (s *ChatService) ContextWindow() int {
	return s.contextWindow
}

// capHistory 把无状态调用传入的历史截断到上下文窗口
func capHistory(history []models.ChatMessage, limit int) []models.ChatMessage {
	if limit > 0 && len(history) > limit {
		return history[len(history)-limit:]
	}
	return history
}
