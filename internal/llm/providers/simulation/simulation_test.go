package simulation

import (
	"context"
	"strings"
	"testing"

	"github.com/Corphon/PersonaChat/internal/llm"
)

// TestFabricateDeterministic 测试相同输入产生相同输出
func TestFabricateDeterministic(t *testing.T) {
	p := &Provider{}
	req := llm.GenerationRequest{
		Prompt:      "system prompt",
		Persona:     "mentor",
		Culture:     "berlin",
		UserMessage: "how do I learn Go?",
	}

	first, err := p.CompleteText(context.Background(), req)
	if err != nil {
		t.Fatalf("模拟生成失败: %v", err)
	}
	second, err := p.CompleteText(context.Background(), req)
	if err != nil {
		t.Fatalf("第二次模拟生成失败: %v", err)
	}
	if first.Text != second.Text {
		t.Fatal("相同输入应该产生相同输出")
	}
	if !first.Simulated {
		t.Fatal("模拟响应必须带Simulated标记")
	}
}

// TestPersonaCultureTemplates 测试每个人格×文化组合都有专属模板
func TestPersonaCultureTemplates(t *testing.T) {
	p := &Provider{}

	personas := []string{"friend", "mentor", "romantic", "therapist", "professional"}
	cultures := []string{"delhi", "japanese", "parisian", "berlin"}

	seen := make(map[string]bool)
	for _, persona := range personas {
		for _, culture := range cultures {
			resp, err := p.CompleteText(context.Background(), llm.GenerationRequest{
				Persona:     persona,
				Culture:     culture,
				UserMessage: "tell me something",
			})
			if err != nil {
				t.Fatalf("%s/%s 生成失败: %v", persona, culture, err)
			}
			if resp.Text == "" {
				t.Fatalf("%s/%s 应该有回复", persona, culture)
			}
			seen[resp.Text] = true
		}
	}

	// 模板按组合区分，不应该所有组合都吐同一句话
	if len(seen) < 10 {
		t.Fatalf("不同组合应该产生不同回复，实际只有%d种", len(seen))
	}
}

// TestFriendMoodMatching 测试friend人格的简单情感匹配
func TestFriendMoodMatching(t *testing.T) {
	p := &Provider{}

	cases := []struct {
		message string
		keyword string
	}{
		{"I'm feeling sad today", "tough"},
		{"I got an awesome promotion!", "positive energy"},
		{"what do you think about this?", "interesting question"},
	}

	for _, tc := range cases {
		resp, err := p.CompleteText(context.Background(), llm.GenerationRequest{
			Persona: "friend", Culture: "delhi", UserMessage: tc.message,
		})
		if err != nil {
			t.Fatalf("生成失败: %v", err)
		}
		if !strings.Contains(resp.Text, tc.keyword) {
			t.Errorf("消息%q的回复应该包含%q，实际: %s", tc.message, tc.keyword, resp.Text)
		}
	}
}

// TestStyleTemplates 测试风格化生成围绕请求主题
func TestStyleTemplates(t *testing.T) {
	p := &Provider{}

	for _, style := range []string{"creative", "formal", "casual", "academic", "poetic", "humorous"} {
		resp, err := p.CompleteText(context.Background(), llm.GenerationRequest{
			Style:       style,
			UserMessage: "the history of lighthouses",
		})
		if err != nil {
			t.Fatalf("%s风格生成失败: %v", style, err)
		}
		if !strings.Contains(resp.Text, "the history of lighthouses") {
			t.Errorf("%s风格的输出应该包含请求主题: %s", style, resp.Text)
		}
	}
}

// TestUnknownStyleGenericReply 未知风格不套用其他风格的模板
func TestUnknownStyleGenericReply(t *testing.T) {
	p := &Provider{}

	resp, err := p.CompleteText(context.Background(), llm.GenerationRequest{
		Style: "noir", UserMessage: "the history of lighthouses",
	})
	if err != nil {
		t.Fatalf("生成失败: %v", err)
	}
	if strings.Contains(resp.Text, "Once upon") {
		t.Errorf("未知风格不应该套用creative模板: %s", resp.Text)
	}
	if !strings.Contains(resp.Text, "Thank you for sharing") {
		t.Errorf("未知风格应该使用通用回复: %s", resp.Text)
	}
}

// TestUnknownComboFallsBack 测试未知组合使用通用回复
func TestUnknownComboFallsBack(t *testing.T) {
	p := &Provider{}

	resp, err := p.CompleteText(context.Background(), llm.GenerationRequest{
		Persona: "friend", Culture: "unknown", UserMessage: "hello",
	})
	if err != nil {
		t.Fatalf("生成失败: %v", err)
	}
	if resp.Text == "" {
		t.Fatal("未知组合应该有通用回复")
	}
}

// TestStreamMatchesComplete 测试流式分片拼接等于一次性生成
func TestStreamMatchesComplete(t *testing.T) {
	p := &Provider{}
	req := llm.GenerationRequest{
		Persona: "mentor", Culture: "delhi", UserMessage: "teach me patience",
	}

	complete, err := p.CompleteText(context.Background(), req)
	if err != nil {
		t.Fatalf("一次性生成失败: %v", err)
	}

	chunks, err := p.StreamCompletion(context.Background(), req)
	if err != nil {
		t.Fatalf("流式生成失败: %v", err)
	}

	var sb strings.Builder
	done := false
	for chunk := range chunks {
		if !chunk.Simulated {
			t.Fatal("每个分片都必须带Simulated标记")
		}
		if chunk.Done {
			done = true
			continue
		}
		sb.WriteString(chunk.Text)
	}
	if !done {
		t.Fatal("流应该以Done分片结束")
	}
	if sb.String() != complete.Text {
		t.Fatalf("分片拼接应该等于一次性生成:\n%q\n%q", sb.String(), complete.Text)
	}
}

// TestEmptyInput 测试空条件文本被拒绝
func TestEmptyInput(t *testing.T) {
	p := &Provider{}

	if _, err := p.CompleteText(context.Background(), llm.GenerationRequest{}); err == nil {
		t.Fatal("空输入应该返回错误")
	}
}
