// internal/models/conversation.go
package models

import "time"

// ChatMessage 会话中的一条消息
// 排序按插入顺序，时间戳单调递增
type ChatMessage struct {
	Role      string    `json:"role"` // user 或 assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ConversationRecord 会话快照，用于持久化存储
type ConversationRecord struct {
	ID        string        `json:"id"`
	Persona   string        `json:"persona"`
	Culture   string        `json:"culture"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ModelInfo 已加载模型的诊断信息
type ModelInfo struct {
	ModelName    string `json:"model_name"`
	ProviderName string `json:"provider_name"`
	Backend      string `json:"backend"` // local / hosted / simulation
	IsLoaded     bool   `json:"is_loaded"`
	ReadyState   string `json:"ready_state"`
}
