// internal/llm/providers/simulation/simulation.go
package simulation

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/Corphon/PersonaChat/internal/errors"
	"github.com/Corphon/PersonaChat/internal/llm"
)

func init() {
	llm.Register("simulation", func() llm.Provider {
		return &Provider{}
	})
}

// Provider 离线演示用的确定性模拟后端
// 不依赖任何模型，从人格/文化/风格标签直接构造合理的回复
// 所有响应都带Simulated标记，调用方必须把它透传给前端，
// 保证模拟结果永远不会被误认为真实生成
type Provider struct{}

func (p *Provider) Initialize(config map[string]string) error {
	return nil
}

func (p *Provider) GetName() string {
	return "Simulation"
}

func (p *Provider) Backend() string {
	return llm.BackendSimulation
}

func (p *Provider) GetModelName() string {
	return "offline-simulation"
}

// IsReady 模拟器永远可用
func (p *Provider) IsReady(ctx context.Context) bool {
	return true
}

func (p *Provider) Load(ctx context.Context) error {
	return nil
}

func (p *Provider) Unload() error {
	return nil
}

// 按人格×文化组合的回复模板，移植自早期的离线演示逻辑
var personaTemplates = map[string]map[string]string{
	"friend": {
		"delhi":    "Hey! %s What do you think about this? I'm here to support you!",
		"japanese": "Hello friend! %s Please share more of your thoughts with me.",
		"parisian": "Bonjour mon ami! %s I find this quite fascinating!",
		"berlin":   "Hey there! %s Let's talk about this honestly.",
	},
	"mentor": {
		"delhi":    "I see you're thinking about: '%s'. This is a great learning opportunity. What insights have you gained so far?",
		"japanese": "Thank you for sharing: '%s'. Let's explore this wisdom together mindfully.",
		"parisian": "Ah, '%s' - how intellectually stimulating! Let me guide you through this thought.",
		"berlin":   "Good question about '%s'. Let's approach this systematically and learn together.",
	},
	"romantic": {
		"delhi":    "My dear, when you say '%s', it touches my heart. Tell me more about what you're feeling.",
		"japanese": "Sweetheart, '%s' shows your beautiful mind. I love how you think about things.",
		"parisian": "Mon amour, '%s' is so poetic. Share more of your beautiful thoughts with me.",
		"berlin":   "My love, I appreciate you sharing '%s' with me. You always make me think.",
	},
	"therapist": {
		"delhi":    "Thank you for sharing '%s' with me. How does this make you feel? I'm here to listen.",
		"japanese": "I hear you saying '%s'. Let's explore these feelings together in this safe space.",
		"parisian": "You mentioned '%s' - that sounds important to you. What emotions are you experiencing?",
		"berlin":   "When you say '%s', I want to understand. Can you tell me more about this honestly?",
	},
	"professional": {
		"delhi":    "Regarding '%s' - let's analyze this professionally. What are your objectives here?",
		"japanese": "About '%s' - I think we can work on this efficiently. What's our next step?",
		"parisian": "Concerning '%s' - this is an excellent point. How shall we proceed creatively?",
		"berlin":   "About '%s' - let's be direct and solution-focused. What do you need to achieve?",
	},
}

// friend人格对消息内容做简单的情感匹配
func respondAsFriend(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(message, "?"):
		return "That's a really interesting question!"
	case containsAny(lower, "sad", "upset", "worried", "stressed"):
		return "I can hear that you're going through something tough."
	case containsAny(lower, "happy", "excited", "good", "great", "awesome"):
		return "I love hearing positive energy from you!"
	case containsAny(lower, "work", "job", "career"):
		return "Work stuff can be really challenging sometimes."
	case containsAny(lower, "love", "relationship", "partner"):
		return "Relationships are such an important part of life."
	default:
		return "I find what you're saying really interesting."
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// 按风格标签的文本生成模板
var styleTemplates = map[string]string{
	"creative": "Once upon a quiet evening, the idea of \"%s\" unfolded like a map of undiscovered places, each detail glowing with possibility.",
	"formal":   "This document addresses the request \"%s\". The following considerations outline a structured and professional treatment of the topic.",
	"casual":   "So, about \"%s\" - honestly, it's a fun one to think about. Here's a relaxed take on it.",
	"academic": "The present analysis examines \"%s\" through an evidence-based lens, identifying key themes and their implications.",
	"poetic":   "Of \"%s\" I sing: a small bright thread of thought, woven through the fabric of an ordinary day.",
	"humorous": "Ah yes, \"%s\" - a topic so serious that scientists recommend reading about it only while wearing comfortable socks.",
}

func (p *Provider) CompleteText(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" && strings.TrimSpace(req.UserMessage) == "" {
		return nil, apperrors.NewValidationError("条件文本为空", nil)
	}

	text := p.fabricate(req)
	return &llm.GenerationResponse{
		Text:         text,
		ModelName:    "offline-simulation",
		ProviderName: "simulation",
		Simulated:    true,
	}, nil
}

// fabricate 确定性地构造回复：相同输入必然产生相同输出
func (p *Provider) fabricate(req llm.GenerationRequest) string {
	// 文本生成模式；未知风格不做静默替换，落到末尾的通用回复
	if req.Style != "" {
		if template, ok := styleTemplates[req.Style]; ok {
			subject := req.UserMessage
			if subject == "" {
				subject = firstLine(req.Prompt)
			}
			return fmt.Sprintf(template, truncate(subject, 120))
		}
	}

	// 聊天模式
	message := req.UserMessage
	if message == "" {
		message = firstLine(req.Prompt)
	}

	if cultures, ok := personaTemplates[req.Persona]; ok {
		if template, ok := cultures[req.Culture]; ok {
			if req.Persona == "friend" {
				return fmt.Sprintf(template, respondAsFriend(message))
			}
			return fmt.Sprintf(template, truncate(message, 120))
		}
	}

	return fmt.Sprintf("Thank you for sharing '%s' with me. I'd love to hear more about your thoughts on this topic!", truncate(message, 120))
}

func (p *Provider) StreamCompletion(ctx context.Context, req llm.GenerationRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.CompleteText(ctx, req)
	if err != nil {
		return nil, err
	}

	// 按词切分模拟流式输出
	out := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(out)
		words := strings.Fields(resp.Text)
		for i, word := range words {
			chunk := word
			if i < len(words)-1 {
				chunk += " "
			}
			select {
			case out <- llm.StreamChunk{Text: chunk, Simulated: true}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- llm.StreamChunk{Done: true, Simulated: true}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return s
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
