package services

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/Corphon/PersonaChat/internal/errors"
	"github.com/Corphon/PersonaChat/internal/llm"

	_ "github.com/Corphon/PersonaChat/internal/llm/providers/simulation"
)

// stubProvider 可编程的测试后端
type stubProvider struct {
	name      string
	loadErr   error
	genErr    error
	genText   string
	ready     bool
	loadCalls int
}

func (p *stubProvider) Initialize(config map[string]string) error { return nil }
func (p *stubProvider) GetName() string                           { return p.name }
func (p *stubProvider) Backend() string                           { return llm.BackendLocal }
func (p *stubProvider) GetModelName() string                      { return p.name + "-model" }
func (p *stubProvider) IsReady(ctx context.Context) bool          { return p.ready }
func (p *stubProvider) Unload() error                             { return nil }

func (p *stubProvider) Load(ctx context.Context) error {
	p.loadCalls++
	return p.loadErr
}

func (p *stubProvider) CompleteText(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationResponse, error) {
	if p.genErr != nil {
		return nil, p.genErr
	}
	return &llm.GenerationResponse{Text: p.genText, ProviderName: p.name}, nil
}

func (p *stubProvider) StreamCompletion(ctx context.Context, req llm.GenerationRequest) (<-chan llm.StreamChunk, error) {
	if p.genErr != nil {
		return nil, p.genErr
	}
	out := make(chan llm.StreamChunk, 2)
	out <- llm.StreamChunk{Text: p.genText}
	out <- llm.StreamChunk{Done: true}
	close(out)
	return out, nil
}

func newStubLLMService(chain ...llm.Provider) *LLMService {
	return &LLMService{
		chain:     chain,
		state:     StateUninitialized,
		stateNote: "Uninitialized",
		timeout:   5 * time.Second,
	}
}

// TestReloadLifecycle 测试加载生命周期状态迁移
func TestReloadLifecycle(t *testing.T) {
	provider := &stubProvider{name: "primary", ready: true, genText: "hello"}
	svc := newStubLLMService(provider)

	if svc.GetState() != StateUninitialized {
		t.Fatalf("初始状态应该是uninitialized，实际: %s", svc.GetState())
	}

	// 未加载时生成应该干净失败
	if _, err := svc.Generate(context.Background(), llm.GenerationRequest{Prompt: "hi"}); !apperrors.IsModelUnavailableError(err) {
		t.Fatalf("未就绪时应该返回model_unavailable，实际: %v", err)
	}

	if err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if svc.GetState() != StateReady {
		t.Fatalf("加载后状态应该是ready，实际: %s", svc.GetState())
	}
	if !svc.IsReady() {
		t.Fatal("加载后IsReady应该为true")
	}

	info := svc.GetModelInfo()
	if info.ModelName != "primary-model" || !info.IsLoaded {
		t.Fatalf("模型信息不正确: %+v", info)
	}
}

// TestReloadFallsThroughChain 测试加载失败时沿回退链尝试
func TestReloadFallsThroughChain(t *testing.T) {
	broken := &stubProvider{name: "broken", loadErr: errors.New("connection refused")}
	backup := &stubProvider{name: "backup", ready: true, genText: "from backup"}
	svc := newStubLLMService(broken, backup)

	if err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("备用后端可用时加载不应该失败: %v", err)
	}

	info := svc.GetModelInfo()
	if info.ProviderName != "backup" {
		t.Fatalf("应该回退到backup后端，实际: %s", info.ProviderName)
	}
}

// TestReloadAllFail 测试所有后端都失败时进入failed状态
func TestReloadAllFail(t *testing.T) {
	a := &stubProvider{name: "a", loadErr: errors.New("boom")}
	b := &stubProvider{name: "b", loadErr: errors.New("boom too")}
	svc := newStubLLMService(a, b)

	err := svc.Reload(context.Background())
	if !apperrors.IsModelUnavailableError(err) {
		t.Fatalf("应该返回model_unavailable，实际: %v", err)
	}
	if svc.GetState() != StateFailed {
		t.Fatalf("状态应该是failed，实际: %s", svc.GetState())
	}

	// failed状态允许再次加载
	a.loadErr = nil
	a.ready = true
	if err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("修复后重载应该成功: %v", err)
	}
	if svc.GetState() != StateReady {
		t.Fatalf("重载后状态应该是ready，实际: %s", svc.GetState())
	}
}

// TestGenerateFallback 测试可重试错误触发生成回退
func TestGenerateFallback(t *testing.T) {
	flaky := &stubProvider{
		name:   "flaky",
		ready:  true,
		genErr: apperrors.NewUpstreamError("rate limited", nil),
	}
	backup := &stubProvider{name: "backup", ready: true, genText: "from backup"}
	svc := newStubLLMService(flaky, backup)
	if err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	resp, err := svc.Generate(context.Background(), llm.GenerationRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("回退后生成应该成功: %v", err)
	}
	if resp.ProviderName != "backup" {
		t.Fatalf("响应应该来自backup，实际: %s", resp.ProviderName)
	}
}

// TestGenerateTimeoutNoFallback 测试超时直接上抛不回退
func TestGenerateTimeoutNoFallback(t *testing.T) {
	slow := &stubProvider{
		name:   "slow",
		ready:  true,
		genErr: apperrors.NewTimeoutError("generation timed out", nil),
	}
	backup := &stubProvider{name: "backup", ready: true, genText: "unused"}
	svc := newStubLLMService(slow, backup)
	if err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	_, err := svc.Generate(context.Background(), llm.GenerationRequest{Prompt: "hi"})
	if !apperrors.IsTimeoutError(err) {
		t.Fatalf("超时应该直接上抛，实际: %v", err)
	}
}

// TestGenerateNonRetryableNoFallback 测试不可重试错误不触发回退
func TestGenerateNonRetryableNoFallback(t *testing.T) {
	bad := &stubProvider{
		name:   "bad",
		ready:  true,
		genErr: apperrors.NewValidationError("prompt rejected", nil),
	}
	backup := &stubProvider{name: "backup", ready: true, genText: "unused"}
	svc := newStubLLMService(bad, backup)
	if err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	_, err := svc.Generate(context.Background(), llm.GenerationRequest{Prompt: "hi"})
	if !apperrors.IsValidationError(err) {
		t.Fatalf("validation错误应该直接上抛，实际: %v", err)
	}
}

// TestUnload 测试卸载后回到未初始化状态
func TestUnload(t *testing.T) {
	provider := &stubProvider{name: "p", ready: true}
	svc := newStubLLMService(provider)
	if err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	svc.Unload()
	if svc.GetState() != StateUninitialized {
		t.Fatalf("卸载后状态应该是uninitialized，实际: %s", svc.GetState())
	}
	if svc.IsReady() {
		t.Fatal("卸载后IsReady应该为false")
	}
}

// TestSimulationProviderThroughService 测试模拟后端经服务调用时保留Simulated标记
func TestSimulationProviderThroughService(t *testing.T) {
	provider, err := llm.GetProvider("simulation", nil)
	if err != nil {
		t.Fatalf("创建模拟后端失败: %v", err)
	}

	svc := newStubLLMService(provider)
	if err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("加载模拟后端失败: %v", err)
	}

	resp, err := svc.Generate(context.Background(), llm.GenerationRequest{
		Prompt:      "system prompt",
		Persona:     "friend",
		Culture:     "delhi",
		UserMessage: "I'm so happy today!",
	})
	if err != nil {
		t.Fatalf("模拟生成失败: %v", err)
	}
	if !resp.Simulated {
		t.Fatal("模拟响应必须带Simulated标记")
	}
	if resp.Text == "" {
		t.Fatal("模拟响应不应该为空")
	}
}
