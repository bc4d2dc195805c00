package services

import (
	"strings"
	"testing"

	apperrors "github.com/Corphon/PersonaChat/internal/errors"
	"github.com/Corphon/PersonaChat/internal/models"
)

func newTestPromptService() *PromptService {
	return NewPromptService(NewCatalogService())
}

// TestBuildPersonaPrompt 测试系统指令的确定性推导
func TestBuildPersonaPrompt(t *testing.T) {
	svc := newTestPromptService()

	prompt, err := svc.BuildPersonaPrompt("mentor", "japanese")
	if err != nil {
		t.Fatalf("生成系统指令失败: %v", err)
	}

	// 固定的五段结构
	for _, section := range []string{
		"You are a Wise Mentor with a",
		"PERSONALITY TRAITS:",
		"CULTURAL BACKGROUND:",
		"COMMUNICATION STYLE:",
		"SPECIFIC INSTRUCTIONS:",
		"Remember: You are having a natural conversation.",
	} {
		if !strings.Contains(prompt, section) {
			t.Errorf("系统指令缺少片段: %q", section)
		}
	}

	// 相同输入必须产生完全相同的输出
	again, err := svc.BuildPersonaPrompt("mentor", "japanese")
	if err != nil {
		t.Fatalf("第二次生成失败: %v", err)
	}
	if prompt != again {
		t.Fatal("相同的人格与文化应该生成相同的系统指令")
	}
}

// TestBuildPersonaPromptUnknown 测试未知标签不静默回退
func TestBuildPersonaPromptUnknown(t *testing.T) {
	svc := newTestPromptService()

	if _, err := svc.BuildPersonaPrompt("pirate", "delhi"); !apperrors.IsNotFoundError(err) {
		t.Errorf("未知人格应该返回not_found错误，实际: %v", err)
	}
	if _, err := svc.BuildPersonaPrompt("friend", "atlantis"); !apperrors.IsNotFoundError(err) {
		t.Errorf("未知文化应该返回not_found错误，实际: %v", err)
	}
}

// TestAssembleChat 测试聊天条件文本的拼装顺序
func TestAssembleChat(t *testing.T) {
	svc := newTestPromptService()

	history := []models.ChatMessage{
		{Role: models.RoleUser, Content: "I got a new job!"},
		{Role: models.RoleAssistant, Content: "That's wonderful news!"},
	}

	prompt, err := svc.AssembleChat("friend", "delhi", history, "Thanks, I start Monday")
	if err != nil {
		t.Fatalf("拼装聊天条件文本失败: %v", err)
	}

	// 顺序固定：系统指令 → 历史（从旧到新）→ 新消息
	sysIdx := strings.Index(prompt, "You are a Friendly Companion")
	histIdx := strings.Index(prompt, "User: I got a new job!\nAssistant: That's wonderful news!")
	tailIdx := strings.Index(prompt, "User: Thanks, I start Monday\nAssistant:")

	if sysIdx < 0 || histIdx < 0 || tailIdx < 0 {
		t.Fatalf("条件文本缺少必要片段:\n%s", prompt)
	}
	if !(sysIdx < histIdx && histIdx < tailIdx) {
		t.Fatal("条件文本的片段顺序不正确")
	}
	if !strings.HasSuffix(prompt, "Assistant:") {
		t.Fatal("条件文本应该以Assistant:结尾")
	}
}

// TestAssembleChatEmptyMessage 测试空消息被拒绝
func TestAssembleChatEmptyMessage(t *testing.T) {
	svc := newTestPromptService()

	if _, err := svc.AssembleChat("friend", "delhi", nil, "   "); !apperrors.IsValidationError(err) {
		t.Errorf("空消息应该返回validation错误，实际: %v", err)
	}
}

// TestAssembleStyled 测试风格化生成的条件文本与采样参数
func TestAssembleStyled(t *testing.T) {
	svc := newTestPromptService()

	text, style, err := svc.AssembleStyled("poetic", "a poem about rain")
	if err != nil {
		t.Fatalf("拼装生成条件文本失败: %v", err)
	}
	if !strings.Contains(text, "User Request: a poem about rain") {
		t.Error("条件文本应该包含用户请求")
	}
	if !strings.Contains(text, "poetic style") {
		t.Error("条件文本应该点名风格")
	}
	if style.ID != "poetic" {
		t.Errorf("返回的风格不正确: %s", style.ID)
	}

	if _, _, err := svc.AssembleStyled("poetic", ""); !apperrors.IsValidationError(err) {
		t.Errorf("空提示应该返回validation错误，实际: %v", err)
	}
	if _, _, err := svc.AssembleStyled("noir", "x"); !apperrors.IsNotFoundError(err) {
		t.Errorf("未知风格应该返回not_found错误，实际: %v", err)
	}
}
