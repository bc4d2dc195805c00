// internal/llm/providers/gemini/gemini.go
package gemini

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	apperrors "github.com/Corphon/PersonaChat/internal/errors"
	"github.com/Corphon/PersonaChat/internal/llm"
	"google.golang.org/genai"
)

func init() {
	llm.Register("gemini", func() llm.Provider {
		return &Provider{}
	})
}

// Provider 通过Google genai SDK访问托管的Gemini API
type Provider struct {
	client       *genai.Client
	defaultModel string
	healthy      atomic.Bool
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return errors.New("Gemini API密钥未提供")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return err
	}
	p.client = client

	if model, exists := config["default_model"]; exists && model != "" {
		p.defaultModel = model
	} else {
		p.defaultModel = "gemini-2.5-flash"
	}

	p.healthy.Store(true)
	return nil
}

func (p *Provider) GetName() string {
	return "Gemini"
}

func (p *Provider) Backend() string {
	return llm.BackendHosted
}

func (p *Provider) GetModelName() string {
	return p.defaultModel
}

// IsReady 托管API没有本地加载过程，只要客户端初始化成功
// 且最近的调用没有失败就认为可用
func (p *Provider) IsReady(ctx context.Context) bool {
	return p.client != nil && p.healthy.Load()
}

// Load 对托管API是空操作，只重置健康标志
func (p *Provider) Load(ctx context.Context) error {
	if p.client == nil {
		return apperrors.NewModelUnavailableError("Gemini客户端未初始化", nil)
	}
	p.healthy.Store(true)
	return nil
}

func (p *Provider) Unload() error {
	p.healthy.Store(false)
	return nil
}

func (p *Provider) CompleteText(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationResponse, error) {
	if p.client == nil {
		return nil, apperrors.NewModelUnavailableError("Gemini客户端未初始化", nil)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, apperrors.NewValidationError("条件文本为空", nil)
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	config := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(req.Temperature)
	}
	if req.TopP > 0 {
		config.TopP = genai.Ptr(req.TopP)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	res, err := p.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, p.classifyError(err)
	}

	text := strings.TrimSpace(res.Text())
	if text == "" {
		return nil, apperrors.NewUpstreamError("Gemini返回了空响应", nil)
	}

	p.healthy.Store(true)
	return &llm.GenerationResponse{
		Text:         text,
		ModelName:    model,
		ProviderName: "gemini",
	}, nil
}

func (p *Provider) StreamCompletion(ctx context.Context, req llm.GenerationRequest) (<-chan llm.StreamChunk, error) {
	if p.client == nil {
		return nil, apperrors.NewModelUnavailableError("Gemini客户端未初始化", nil)
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	config := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(req.Temperature)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	out := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(out)
		for res, err := range p.client.Models.GenerateContentStream(ctx, model, genai.Text(req.Prompt), config) {
			if err != nil {
				p.healthy.Store(false)
				return
			}
			text := res.Text()
			if text == "" {
				continue
			}
			select {
			case out <- llm.StreamChunk{Text: text}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- llm.StreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

// classifyError 把SDK错误映射为可区分的失败类型
func (p *Provider) classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError("Gemini调用超时", err)
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.NewProcessingError("Gemini调用被取消", err)
	}

	// 配额或认证类失败意味着后端暂时不可用，标记不健康等待下次重载
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "quota") ||
		strings.Contains(msg, "401") || strings.Contains(msg, "403") {
		p.healthy.Store(false)
	}
	return apperrors.NewUpstreamError("Gemini调用失败", err)
}
