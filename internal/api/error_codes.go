// internal/api/error_codes.go
package api

import "time"

// 标准化错误代码常量
const (
	// 通用错误
	ErrorInvalidRequest = "INVALID_REQUEST"
	ErrorBadRequest     = "BAD_REQUEST"
	ErrorNotFound       = "NOT_FOUND"
	ErrorInternalError  = "INTERNAL_ERROR"
	ErrorUnauthorized   = "UNAUTHORIZED"

	// 业务逻辑错误
	ErrorPersonaNotFound = "PERSONA_NOT_FOUND"
	ErrorCultureNotFound = "CULTURE_NOT_FOUND"
	ErrorStyleNotFound   = "STYLE_NOT_FOUND"
	ErrorSessionNotFound = "SESSION_NOT_FOUND"
	ErrorEmptyMessage    = "EMPTY_MESSAGE"

	// 模型相关错误
	ErrorModelUnavailable   = "MODEL_UNAVAILABLE"
	ErrorModelLoadFailed    = "MODEL_LOAD_FAILED"
	ErrorGenerationFailed   = "GENERATION_FAILED"
	ErrorGenerationTimeout  = "GENERATION_TIMEOUT"
	ErrorUpstreamFailure    = "UPSTREAM_FAILURE"
	ErrorBackendUnavailable = "BACKEND_UNAVAILABLE"
)

// APIResponse 统一API响应结构
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError API错误详情
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
