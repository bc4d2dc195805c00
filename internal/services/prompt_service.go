// internal/services/prompt_service.go
package services

import (
	"fmt"
	"strings"

	apperrors "github.com/Corphon/PersonaChat/internal/errors"
	"github.com/Corphon/PersonaChat/internal/models"
)

// PromptService 把人格、文化、历史与新输入拼装成单一条件文本
// 所有方法都是纯函数：相同输入必然产生相同输出，没有隐藏状态和I/O
type PromptService struct {
	catalog *CatalogService
}

// NewPromptService 创建提示词拼装服务
func NewPromptService(catalog *CatalogService) *PromptService {
	return &PromptService{catalog: catalog}
}

// BuildPersonaPrompt 由人格与文化字段确定性地推导系统指令
func (s *PromptService) BuildPersonaPrompt(personaID, cultureID string) (string, error) {
	persona, err := s.catalog.GetPersona(personaID)
	if err != nil {
		return "", err
	}
	culture, err := s.catalog.GetCulture(cultureID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a %s with a %s cultural background.\n\n", persona.Name, culture.Name)

	sb.WriteString("PERSONALITY TRAITS:\n")
	sb.WriteString(titleJoin(persona.Traits))
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "CULTURAL BACKGROUND:\nYou embody the following %s characteristics:\n", culture.Name)
	for _, ch := range culture.Characteristics {
		fmt.Fprintf(&sb, "- %s\n", ch)
	}
	sb.WriteString("\n")

	sb.WriteString("COMMUNICATION STYLE:\n")
	fmt.Fprintf(&sb, "- Be %s\n", strings.ToLower(persona.Description))
	fmt.Fprintf(&sb, "- Naturally incorporate cultural elements: %s\n", strings.Join(culture.CulturalElements, ", "))
	fmt.Fprintf(&sb, "- Use appropriate greetings when suitable: %s\n", strings.Join(culture.Greetings, ", "))
	sb.WriteString("- Maintain authenticity without stereotyping\n")
	sb.WriteString("- Be conversational and engaging\n\n")

	sb.WriteString("SPECIFIC INSTRUCTIONS:\n")
	sb.WriteString(persona.Instructions)

	fmt.Fprintf(&sb, "\n\nRemember: You are having a natural conversation. "+
		"Don't announce your role or cultural background unless it comes up naturally. "+
		"Let your personality and cultural awareness show through your responses, word choices, and perspectives. "+
		"Be authentic, helpful, and engaging while staying true to your %s nature and %s cultural background.",
		persona.Name, culture.Name)

	return sb.String(), nil
}

// AssembleChat 拼装聊天模式的条件文本：
// 系统指令、截断后的历史（从旧到新）、新的用户消息，顺序固定
// 只有历史轮次受窗口上限约束，新消息绝不截断
func (s *PromptService) AssembleChat(personaID, cultureID string, history []models.ChatMessage, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", apperrors.NewValidationError("消息不能为空", nil)
	}

	personaPrompt, err := s.BuildPersonaPrompt(personaID, cultureID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(personaPrompt)
	sb.WriteString("\n\nConversation:\n")
	for _, msg := range history {
		fmt.Fprintf(&sb, "%s: %s\n", capitalize(msg.Role), msg.Content)
	}
	fmt.Fprintf(&sb, "User: %s\nAssistant:", message)

	return sb.String(), nil
}

// AssembleStyled 拼装文本生成模式的条件文本
// 风格标签不在固定枚举内时返回命名错误
func (s *PromptService) AssembleStyled(styleID, prompt string) (string, *models.StyleProfile, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", nil, apperrors.NewValidationError("生成提示不能为空", nil)
	}

	style, err := s.catalog.GetStyle(styleID)
	if err != nil {
		return "", nil, err
	}

	text := fmt.Sprintf("%s\n\nUser Request: %s\n\nPlease write a response that fulfills this request in the %s style described above:",
		style.Prompt, prompt, strings.ToLower(style.Name))

	return text, style, nil
}

// titleJoin 把特质列表连接为首字母大写的串
func titleJoin(traits []string) string {
	titled := make([]string, 0, len(traits))
	for _, t := range traits {
		words := strings.Fields(t)
		for i, w := range words {
			words[i] = capitalize(w)
		}
		titled = append(titled, strings.Join(words, " "))
	}
	return strings.Join(titled, ", ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
