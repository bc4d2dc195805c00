// internal/llm/providers/local/local.go
package local

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Corphon/PersonaChat/internal/errors"
	"github.com/Corphon/PersonaChat/internal/llm"
)

func init() {
	llm.Register("local", func() llm.Provider {
		return &Provider{
			baseURL: "http://localhost:11434",
		}
	})
}

// Provider 通过Ollama风格的HTTP接口访问本地推理服务
type Provider struct {
	baseURL      string
	defaultModel string
	client       *http.Client

	mu     sync.RWMutex
	loaded bool
}

func (p *Provider) Initialize(config map[string]string) error {
	if baseURL, exists := config["base_url"]; exists && baseURL != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}

	if model, exists := config["default_model"]; exists && model != "" {
		p.defaultModel = model
	} else {
		p.defaultModel = "gemma2:2b"
	}

	p.client = &http.Client{}
	return nil
}

func (p *Provider) GetName() string {
	return "Local"
}

func (p *Provider) Backend() string {
	return llm.BackendLocal
}

func (p *Provider) GetModelName() string {
	return p.defaultModel
}

// IsReady 探测本地服务是否在线且模型已加载
func (p *Provider) IsReady(ctx context.Context) bool {
	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if !loaded {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, "GET", p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// Load 确认推理服务可达并预热模型
// 成功后健康状态从不可用转为就绪，这是本提供者唯一的持久可变状态
func (p *Provider) Load(ctx context.Context) error {
	// 先确认模型存在于本地服务
	available, err := p.listModels(ctx)
	if err != nil {
		return apperrors.NewModelUnavailableError("本地推理服务不可达", err)
	}

	found := false
	for _, name := range available {
		if name == p.defaultModel || strings.HasPrefix(name, p.defaultModel+":") {
			found = true
			break
		}
	}
	if !found {
		return apperrors.NewModelUnavailableError(
			fmt.Sprintf("本地服务中不存在模型 %s", p.defaultModel), nil)
	}

	// 空提示词预热，让服务把权重载入内存
	warmup := map[string]interface{}{
		"model":      p.defaultModel,
		"prompt":     "",
		"stream":     false,
		"keep_alive": "10m",
	}
	if err := p.post(ctx, "/api/generate", warmup, nil); err != nil {
		return apperrors.NewModelUnavailableError("模型预热失败", err)
	}

	p.mu.Lock()
	p.loaded = true
	p.mu.Unlock()
	return nil
}

// Unload 释放模型占用的内存
func (p *Provider) Unload() error {
	p.mu.Lock()
	p.loaded = false
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// keep_alive为0时服务立即卸载模型
	body := map[string]interface{}{
		"model":      p.defaultModel,
		"prompt":     "",
		"stream":     false,
		"keep_alive": 0,
	}
	return p.post(ctx, "/api/generate", body, nil)
}

// listModels 获取本地服务已有的模型列表
func (p *Provider) listModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("获取模型列表失败(%d): %s", resp.StatusCode, string(body))
	}

	var response struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(response.Models))
	for _, m := range response.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (p *Provider) CompleteText(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, apperrors.NewValidationError("条件文本为空", nil)
	}

	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if !loaded {
		return nil, apperrors.NewModelUnavailableError("本地模型未加载", nil)
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	requestBody := map[string]interface{}{
		"model":  model,
		"prompt": req.Prompt,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": req.Temperature,
		},
	}
	if req.SystemPrompt != "" {
		requestBody["system"] = req.SystemPrompt
	}
	if req.MaxTokens > 0 {
		requestBody["options"].(map[string]interface{})["num_predict"] = req.MaxTokens
	}
	if req.TopP > 0 {
		requestBody["options"].(map[string]interface{})["top_p"] = req.TopP
	}

	var response struct {
		Response  string `json:"response"`
		Model     string `json:"model"`
		EvalCount int    `json:"eval_count"`
	}
	if err := p.post(ctx, "/api/generate", requestBody, &response); err != nil {
		return nil, classifyTransportError(err)
	}

	return &llm.GenerationResponse{
		Text:         strings.TrimSpace(response.Response),
		ModelName:    response.Model,
		ProviderName: "local",
		TokensUsed:   response.EvalCount,
	}, nil
}

func (p *Provider) StreamCompletion(ctx context.Context, req llm.GenerationRequest) (<-chan llm.StreamChunk, error) {
	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if !loaded {
		return nil, apperrors.NewModelUnavailableError("本地模型未加载", nil)
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	requestBody := map[string]interface{}{
		"model":  model,
		"prompt": req.Prompt,
		"stream": true,
		"options": map[string]interface{}{
			"temperature": req.Temperature,
		},
	}
	if req.SystemPrompt != "" {
		requestBody["system"] = req.SystemPrompt
	}
	if req.MaxTokens > 0 {
		requestBody["options"].(map[string]interface{})["num_predict"] = req.MaxTokens
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		return nil, apperrors.NewUpstreamError(
			fmt.Sprintf("本地推理服务错误(%d): %s", httpResp.StatusCode, string(body)), nil)
	}

	// 服务按JSONL逐行返回增量结果
	out := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(out)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var chunk struct {
				Response string `json:"response"`
				Done     bool   `json:"done"`
			}
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				continue
			}
			select {
			case out <- llm.StreamChunk{Text: chunk.Response, Done: chunk.Done}:
			case <-ctx.Done():
				return
			}
			if chunk.Done {
				return
			}
		}
	}()

	return out, nil
}

// post 发送JSON请求并可选地解析响应
func (p *Provider) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("本地推理服务错误(%d): %s", httpResp.StatusCode, string(respBody))
	}

	if result != nil {
		return json.NewDecoder(httpResp.Body).Decode(result)
	}
	return nil
}

// classifyTransportError 把传输层错误映射为可区分的失败类型
func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError("本地推理调用超时", err)
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.NewProcessingError("本地推理调用被取消", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewTimeoutError("本地推理调用超时", err)
	}
	return apperrors.NewUpstreamError("本地推理调用失败", err)
}
