// internal/models/style.go
package models

// StyleProfile 文本生成风格模板
// 每种风格带有自己的指令文本与采样参数
type StyleProfile struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Prompt      string  `json:"prompt"`
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p"`
}
