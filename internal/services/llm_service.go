// internal/services/llm_service.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Corphon/PersonaChat/internal/config"
	apperrors "github.com/Corphon/PersonaChat/internal/errors"
	"github.com/Corphon/PersonaChat/internal/llm"
	"github.com/Corphon/PersonaChat/internal/models"
	"github.com/Corphon/PersonaChat/internal/utils"
)

// 模型加载生命周期状态
const (
	StateUninitialized = "uninitialized"
	StateLoading       = "loading"
	StateReady         = "ready"
	StateFailed        = "failed"
)

// LLMService 提供统一的生成后端调用接口
// 持有按回退顺序排列的提供者链：链上靠前的不可用时尝试后面的
// 加载状态是进程级可变状态，读取方应把它当作最终一致的：
// 健康轮询可能过期，生成调用自身仍会以ModelUnavailable干净失败
type LLMService struct {
	mu        sync.RWMutex
	chain     []llm.Provider
	active    llm.Provider
	state     string
	stateNote string
	reloading bool
	timeout   time.Duration
}

// NewLLMService 根据当前配置创建生成后端服务
// 初始化失败的提供者被跳过而不是让服务整体失败
func NewLLMService() (*LLMService, error) {
	service := &LLMService{
		state:     StateUninitialized,
		stateNote: "Uninitialized",
		timeout:   time.Duration(config.DefaultRequestTimeout) * time.Second,
	}

	cfg := config.GetCurrentConfig()
	if cfg == nil {
		service.stateNote = "Failed to retrieve configuration"
		return service, nil
	}

	if cfg.RequestTimeout > 0 {
		service.timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}

	for _, name := range cfg.LLMProviders {
		provider, err := llm.GetProvider(name, cfg.LLMConfigs[name])
		if err != nil {
			utils.GetLogger().Warn("生成后端初始化失败，已从回退链中移除", map[string]interface{}{
				"provider": name,
				"error":    err.Error(),
			})
			continue
		}
		service.chain = append(service.chain, provider)
	}

	if len(service.chain) == 0 {
		service.stateNote = "No usable generation backend configured"
	}

	return service, nil
}

// NewEmptyLLMService 创建一个空的生成后端服务作为后备方案
func NewEmptyLLMService() *LLMService {
	return &LLMService{
		state:     StateUninitialized,
		stateNote: "Standby mode - no generation backend configured",
		timeout:   time.Duration(config.DefaultRequestTimeout) * time.Second,
	}
}

// Reload 加载（或重新加载）生成后端，从ready和failed状态都允许调用
// 并发的重载请求是幂等的：已有一次在进行时直接返回
func (s *LLMService) Reload(ctx context.Context) error {
	s.mu.Lock()
	if s.reloading {
		s.mu.Unlock()
		return nil
	}
	if len(s.chain) == 0 {
		s.mu.Unlock()
		return apperrors.NewModelUnavailableError("没有可用的生成后端", nil)
	}
	s.reloading = true
	s.state = StateLoading
	s.stateNote = "Loading model"
	chain := append([]llm.Provider(nil), s.chain...)
	s.mu.Unlock()

	var active llm.Provider
	var lastErr error
	for _, provider := range chain {
		if err := provider.Load(ctx); err != nil {
			lastErr = err
			utils.GetLogger().Warn("生成后端加载失败，尝试下一个", map[string]interface{}{
				"provider": provider.GetName(),
				"error":    err.Error(),
			})
			continue
		}
		active = provider
		break
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloading = false

	if active == nil {
		s.state = StateFailed
		s.stateNote = fmt.Sprintf("All backends failed to load: %v", lastErr)
		s.active = nil
		return apperrors.NewModelUnavailableError("所有生成后端均加载失败", lastErr)
	}

	s.active = active
	s.state = StateReady
	s.stateNote = fmt.Sprintf("Ready (%s)", active.GetName())
	utils.GetLogger().Info("生成后端就绪", map[string]interface{}{
		"provider": active.GetName(),
		"model":    active.GetModelName(),
	})
	return nil
}

// Unload 卸载当前后端，释放模型资源
func (s *LLMService) Unload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		if err := s.active.Unload(); err != nil {
			utils.GetLogger().Warn("卸载生成后端失败", map[string]interface{}{
				"provider": s.active.GetName(),
				"error":    err.Error(),
			})
		}
	}
	s.active = nil
	s.state = StateUninitialized
	s.stateNote = "Unloaded"
}

// IsReady 返回后端是否可用，供健康轮询使用，不触发生成
func (s *LLMService) IsReady() bool {
	s.mu.RLock()
	active := s.active
	state := s.state
	s.mu.RUnlock()

	if state != StateReady || active == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return active.IsReady(ctx)
}

// GetProviderStatus 返回服务是否就绪以及可读描述
func (s *LLMService) GetProviderStatus() (bool, string) {
	if s == nil {
		return false, "生成后端服务未初始化"
	}
	if s.IsReady() {
		s.mu.RLock()
		note := s.stateNote
		s.mu.RUnlock()
		return true, note
	}
	s.mu.RLock()
	note := s.stateNote
	s.mu.RUnlock()
	return false, note
}

// GetState 返回当前生命周期状态
func (s *LLMService) GetState() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// GetModelInfo 返回已加载模型的诊断信息
func (s *LLMService) GetModelInfo() models.ModelInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := models.ModelInfo{
		IsLoaded:   s.state == StateReady,
		ReadyState: s.stateNote,
	}
	if s.active != nil {
		info.ModelName = s.active.GetModelName()
		info.ProviderName = s.active.GetName()
		info.Backend = s.active.Backend()
	}
	return info
}

// Generate 执行一次文本生成
// 活跃后端失败且错误可重试时，沿回退链尝试后续的后端
// 每次调用相互独立，不缓存过往结果（采样生成不保证确定性）
func (s *LLMService) Generate(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationResponse, error) {
	s.mu.RLock()
	active := s.active
	state := s.state
	chain := s.chain
	timeout := s.timeout
	s.mu.RUnlock()

	if state != StateReady || active == nil {
		return nil, apperrors.NewModelUnavailableError("生成后端未就绪", nil)
	}

	genCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	metrics := utils.GetMetricsCollector()
	started := time.Now()

	resp, err := active.CompleteText(genCtx, req)
	if err == nil {
		metrics.IncrementCounter("llm.generate.success")
		metrics.ObserveDuration("llm.generate.latency", time.Since(started))
		return resp, nil
	}

	metrics.IncrementCounter("llm.generate.failure")

	// 超时直接上抛，换后端重试只会让调用方等得更久
	if apperrors.IsTimeoutError(err) || !apperrors.IsRetryable(err) {
		return nil, err
	}

	// 沿回退链尝试活跃后端之后的提供者
	fallthroughStarted := false
	for _, provider := range chain {
		if provider == active {
			fallthroughStarted = true
			continue
		}
		if !fallthroughStarted {
			continue
		}
		if !provider.IsReady(genCtx) {
			continue
		}

		utils.GetLogger().Warn("生成后端失败，回退到下一个提供者", map[string]interface{}{
			"failed":   active.GetName(),
			"fallback": provider.GetName(),
		})
		resp, fbErr := provider.CompleteText(genCtx, req)
		if fbErr == nil {
			metrics.IncrementCounter("llm.generate.fallback_success")
			metrics.ObserveDuration("llm.generate.latency", time.Since(started))
			return resp, nil
		}
		err = fbErr
	}

	return nil, err
}

// Stream 执行一次流式生成，语义与Generate一致但不做回退
// 流一旦开始就无法换后端重放
func (s *LLMService) Stream(ctx context.Context, req llm.GenerationRequest) (<-chan llm.StreamChunk, error) {
	s.mu.RLock()
	active := s.active
	state := s.state
	timeout := s.timeout
	s.mu.RUnlock()

	if state != StateReady || active == nil {
		return nil, apperrors.NewModelUnavailableError("生成后端未就绪", nil)
	}

	// 流式调用的超时覆盖整个流的生命周期
	genCtx, cancel := context.WithTimeout(ctx, timeout)
	chunks, err := active.StreamCompletion(genCtx, req)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(out)
		defer cancel()
		for chunk := range chunks {
			select {
			case out <- chunk:
			case <-genCtx.Done():
				return
			}
			if chunk.Done {
				return
			}
		}
	}()
	return out, nil
}
