// internal/llm/interface.go
package llm

import (
	"context"
	"errors"
)

// 错误定义
var ErrUnknownProvider = errors.New("未知的生成后端")

// 后端类型常量
const (
	BackendLocal      = "local"
	BackendHosted     = "hosted"
	BackendSimulation = "simulation"
)

// GenerationRequest 请求参数标准化
// Prompt/SystemPrompt由提示词拼装层生成，提供者只负责推理
// Persona/Culture/Style/UserMessage 是条件标签，
// 离线模拟后端需要它们来构造确定性回复，真实后端可以忽略
type GenerationRequest struct {
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float32 `json:"temperature,omitempty"`
	TopP         float32 `json:"top_p,omitempty"`
	Model        string  `json:"model,omitempty"`

	Persona     string `json:"persona,omitempty"`
	Culture     string `json:"culture,omitempty"`
	Style       string `json:"style,omitempty"`
	UserMessage string `json:"user_message,omitempty"`
}

// GenerationResponse 响应结构标准化
type GenerationResponse struct {
	Text         string `json:"text"`
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
	// Simulated 标记响应来自离线模拟器而非真实模型
	Simulated bool `json:"simulated,omitempty"`
}

// StreamChunk 流式响应的单个片段
type StreamChunk struct {
	Text      string `json:"text"`
	Done      bool   `json:"done"`
	Simulated bool   `json:"simulated,omitempty"`
}

// Provider 定义所有生成后端必须实现的接口
type Provider interface {
	// 初始化提供者，传入配置
	Initialize(config map[string]string) error

	// 获取提供者名称
	GetName() string

	// 后端类型：local / hosted / simulation
	Backend() string

	// 当前使用的模型名称
	GetModelName() string

	// 健康状态，与生成调用区分开，供轮询使用
	// 轮询结果可能过期，生成调用自身仍需干净地失败
	IsReady(ctx context.Context) bool

	// 加载底层模型。对托管API和模拟器是空操作
	Load(ctx context.Context) error

	// 卸载底层模型
	Unload() error

	// 文本生成
	CompleteText(ctx context.Context, req GenerationRequest) (*GenerationResponse, error)

	// 流式响应生成
	StreamCompletion(ctx context.Context, req GenerationRequest) (<-chan StreamChunk, error)
}

// 注册表和工厂函数类型
type ProviderFactory func() Provider

var providers = make(map[string]ProviderFactory)

// Register 注册提供者工厂
func Register(name string, factory ProviderFactory) {
	providers[name] = factory
}

// GetProvider 创建指定名称的提供者实例
func GetProvider(name string, config map[string]string) (Provider, error) {
	factory, exists := providers[name]
	if !exists {
		return nil, ErrUnknownProvider
	}

	provider := factory()
	err := provider.Initialize(config)
	return provider, err
}

// ListProviders 返回所有已注册的提供者名称
func ListProviders() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}
