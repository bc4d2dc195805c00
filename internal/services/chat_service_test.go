package services

import (
	"context"
	"strings"
	"testing"

	apperrors "github.com/Corphon/PersonaChat/internal/errors"
	"github.com/Corphon/PersonaChat/internal/llm"
	"github.com/Corphon/PersonaChat/internal/models"
)

func newTestChatService(t *testing.T) *ChatService {
	catalog := NewCatalogService()
	prompts := NewPromptService(catalog)
	sessions := NewSessionService(nil)

	provider, err := llm.GetProvider("simulation", nil)
	if err != nil {
		t.Fatalf("创建模拟后端失败: %v", err)
	}
	llmSvc := newStubLLMService(provider)
	if err := llmSvc.Reload(context.Background()); err != nil {
		t.Fatalf("加载模拟后端失败: %v", err)
	}

	return NewChatService(catalog, prompts, sessions, llmSvc)
}

// TestChatAppendsOnSuccess 测试成功的聊天把两条消息写入会话
func TestChatAppendsOnSuccess(t *testing.T) {
	svc := newTestChatService(t)

	result, err := svc.Chat(context.Background(), ChatInput{
		SessionID: "s1",
		Message:   "I'm so happy today!",
		Persona:   "friend",
		Culture:   "delhi",
	})
	if err != nil {
		t.Fatalf("聊天请求失败: %v", err)
	}
	if result.Response == "" {
		t.Fatal("响应不应该为空")
	}
	if !result.Simulated {
		t.Fatal("模拟后端的响应必须带Simulated标记")
	}
	if result.Persona != "friend" || result.Culture != "delhi" {
		t.Fatalf("响应应该回显人格与文化: %+v", result)
	}

	history := svc.Sessions.History("s1", 0)
	if len(history) != 2 {
		t.Fatalf("成功后会话应该有2条消息，实际%d条", len(history))
	}
	if history[0].Role != models.RoleUser || history[1].Role != models.RoleAssistant {
		t.Fatal("会话消息的角色顺序不正确")
	}
}

// TestChatFailureLeavesSessionUntouched 测试失败时会话轮数保持不变
func TestChatFailureLeavesSessionUntouched(t *testing.T) {
	svc := newTestChatService(t)

	// 正常写入一轮
	if _, err := svc.Chat(context.Background(), ChatInput{
		SessionID: "s1", Message: "hello", Persona: "friend", Culture: "delhi",
	}); err != nil {
		t.Fatalf("第一次聊天失败: %v", err)
	}

	// 替换为必定失败的后端
	svc.LLM = newStubLLMService(&stubProvider{
		name: "broken", ready: true,
		genErr: apperrors.NewProcessingError("generation exploded", nil),
	})
	if err := svc.LLM.Reload(context.Background()); err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	if _, err := svc.Chat(context.Background(), ChatInput{
		SessionID: "s1", Message: "this will fail", Persona: "friend", Culture: "delhi",
	}); err == nil {
		t.Fatal("后端失败时聊天应该返回错误")
	}

	if got := svc.Sessions.TurnCount("s1"); got != 2 {
		t.Fatalf("失败的请求不应该改变会话，应该仍是2条，实际%d条", got)
	}
}

// TestChatValidation 测试输入校验
func TestChatValidation(t *testing.T) {
	svc := newTestChatService(t)
	ctx := context.Background()

	if _, err := svc.Chat(ctx, ChatInput{Message: "  ", Persona: "friend", Culture: "delhi"}); !apperrors.IsValidationError(err) {
		t.Errorf("空消息应该返回validation错误，实际: %v", err)
	}
	if _, err := svc.Chat(ctx, ChatInput{Message: "hi", Persona: "pirate", Culture: "delhi"}); !apperrors.IsNotFoundError(err) {
		t.Errorf("未知人格应该返回not_found错误，实际: %v", err)
	}
	if _, err := svc.Chat(ctx, ChatInput{Message: "hi", Persona: "friend", Culture: "atlantis"}); !apperrors.IsNotFoundError(err) {
		t.Errorf("未知文化应该返回not_found错误，实际: %v", err)
	}
}

// TestChatStateless 测试无会话ID时使用请求携带的历史
func TestChatStateless(t *testing.T) {
	svc := newTestChatService(t)

	result, err := svc.Chat(context.Background(), ChatInput{
		Message: "and what happened next?",
		Persona: "mentor",
		Culture: "japanese",
		History: []models.ChatMessage{
			{Role: models.RoleUser, Content: "tell me a story"},
			{Role: models.RoleAssistant, Content: "once there was a fox"},
		},
	})
	if err != nil {
		t.Fatalf("无状态聊天失败: %v", err)
	}
	if result.SessionID != "" {
		t.Fatal("无状态聊天不应该产生会话ID")
	}
}

// TestRetryReplacesSupersededReply 测试重试替换被取代的回复
func TestRetryReplacesSupersededReply(t *testing.T) {
	svc := newTestChatService(t)
	ctx := context.Background()

	if _, err := svc.Chat(ctx, ChatInput{
		SessionID: "s1", Message: "I'm so happy today!", Persona: "friend", Culture: "delhi",
	}); err != nil {
		t.Fatalf("聊天失败: %v", err)
	}

	result, err := svc.Retry(ctx, "s1")
	if err != nil {
		t.Fatalf("重试失败: %v", err)
	}
	if result == nil || result.Response == "" {
		t.Fatal("重试应该产生新的回复")
	}

	// 重试后轮数不变：用户消息保留，旧回复被新回复取代
	history := svc.Sessions.History("s1", 0)
	if len(history) != 2 {
		t.Fatalf("重试后会话应该仍是2条，实际%d条", len(history))
	}
	if history[0].Role != models.RoleUser {
		t.Fatal("用户消息应该保留在历史中")
	}
}

// TestRetryKeepsSessionBinding 重试必须沿用会话绑定的人格与文化
// 不能触发切换分支把会话清空成只剩一条assistant消息
func TestRetryKeepsSessionBinding(t *testing.T) {
	svc := newTestChatService(t)
	ctx := context.Background()

	if _, err := svc.Chat(ctx, ChatInput{
		SessionID: "s1", Message: "hello there", Persona: "friend", Culture: "delhi",
	}); err != nil {
		t.Fatalf("聊天失败: %v", err)
	}

	result, err := svc.Retry(ctx, "s1")
	if err != nil {
		t.Fatalf("重试失败: %v", err)
	}
	if result.Persona != "friend" || result.Culture != "delhi" {
		t.Errorf("重试应该沿用会话绑定的friend/delhi，实际%s/%s", result.Persona, result.Culture)
	}

	history := svc.Sessions.History("s1", 0)
	if len(history) != 2 {
		t.Fatalf("重试后会话应该是用户+assistant两条，实际%d条", len(history))
	}
	if history[0].Role != models.RoleUser || history[1].Role != models.RoleAssistant {
		t.Fatalf("重试后历史角色错乱: %s/%s", history[0].Role, history[1].Role)
	}
}

// TestRetryEmptySession 测试空会话的重试静默跳过
func TestRetryEmptySession(t *testing.T) {
	svc := newTestChatService(t)

	result, err := svc.Retry(context.Background(), "empty")
	if err != nil {
		t.Fatalf("空会话重试不应该报错: %v", err)
	}
	if result != nil {
		t.Fatal("空会话重试应该返回nil结果")
	}

	if _, err := svc.Retry(context.Background(), ""); !apperrors.IsValidationError(err) {
		t.Errorf("缺少会话ID应该返回validation错误，实际: %v", err)
	}
}

// TestGenerate 测试风格化文本生成
func TestGenerate(t *testing.T) {
	svc := newTestChatService(t)

	result, err := svc.Generate(context.Background(), GenerateInput{
		Prompt: "a story about a lighthouse",
		Style:  "poetic",
	})
	if err != nil {
		t.Fatalf("文本生成失败: %v", err)
	}
	if result.Style != "poetic" {
		t.Errorf("结果应该回显风格: %s", result.Style)
	}
	if !result.Simulated {
		t.Fatal("模拟后端的结果必须带Simulated标记")
	}
	if !strings.Contains(result.Text, "lighthouse") {
		t.Errorf("模拟生成应该围绕请求主题: %s", result.Text)
	}

	if _, err := svc.Generate(context.Background(), GenerateInput{Prompt: "x", Style: "noir"}); !apperrors.IsNotFoundError(err) {
		t.Errorf("未知风格应该返回not_found错误，实际: %v", err)
	}
	if _, err := svc.Generate(context.Background(), GenerateInput{Prompt: "", Style: "casual"}); !apperrors.IsValidationError(err) {
		t.Errorf("空提示应该返回validation错误，实际: %v", err)
	}
}

// TestStreamChat 测试流式聊天分片拼接与提交
func TestStreamChat(t *testing.T) {
	svc := newTestChatService(t)

	chunks, commit, err := svc.StreamChat(context.Background(), ChatInput{
		SessionID: "s1",
		Message:   "I'm so happy today!",
		Persona:   "friend",
		Culture:   "delhi",
	})
	if err != nil {
		t.Fatalf("流式聊天失败: %v", err)
	}

	var full strings.Builder
	done := false
	for chunk := range chunks {
		if chunk.Done {
			done = true
			break
		}
		full.WriteString(chunk.Text)
	}
	if !done {
		t.Fatal("流应该以Done分片结束")
	}
	if full.Len() == 0 {
		t.Fatal("分片拼接结果不应该为空")
	}

	// 提交前会话为空，提交后写入完整一轮
	if got := svc.Sessions.TurnCount("s1"); got != 0 {
		t.Fatalf("提交前会话应该为空，实际%d条", got)
	}
	commit(full.String())
	if got := svc.Sessions.TurnCount("s1"); got != 2 {
		t.Fatalf("提交后会话应该有2条，实际%d条", got)
	}
}
