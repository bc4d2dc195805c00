// internal/models/persona.go
package models

// 消息角色常量
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Persona 人格设定，决定对话机器人的身份与说话方式
// 目录在进程启动时加载一次，运行期间不可变
type Persona struct {
	ID          string   `json:"id"`          // 人格标识（friend/mentor/romantic/professional/therapist）
	Name        string   `json:"name"`        // 展示名称
	Description string   `json:"description"` // 自由文本描述
	Traits      []string `json:"traits"`      // 有序的性格特质列表
	Avatar      string   `json:"avatar"`      // 头像符号
	Color       string   `json:"color"`       // 展示颜色
	Greeting    string   `json:"greeting"`    // 开场问候语
	// 人格专属的生成指令，拼装系统提示词时使用
	Instructions string `json:"-"`
}

// Culture 文化背景设定，叠加在人格之上调节语气与风格
type Culture struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Characteristics  []string `json:"characteristics"`
	Greetings        []string `json:"greetings"`
	CulturalElements []string `json:"cultural_elements"`
}

// PersonaCombination 人格×文化的有效组合，供前端选择列表使用
type PersonaCombination struct {
	Persona     string `json:"persona"`
	Culture     string `json:"culture"`
	PersonaName string `json:"persona_name"`
	CultureName string `json:"culture_name"`
	Description string `json:"description"`
	Avatar      string `json:"avatar"`
	Color       string `json:"color"`
	Greeting    string `json:"greeting"`
}
