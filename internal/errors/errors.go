// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeError      ErrorType = "processing_error"
	ErrorTypeTimeout    ErrorType = "timeout"

	// 生成后端相关错误类型
	ErrorTypeModelUnavailable ErrorType = "model_unavailable"
	ErrorTypeUpstream         ErrorType = "upstream_error"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// NewTimeoutError 创建超时错误
func NewTimeoutError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeTimeout, message, originalError)
}

// NewModelUnavailableError 创建模型不可用错误
func NewModelUnavailableError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeModelUnavailable, message, originalError)
}

// NewUpstreamError 创建上游服务错误
func NewUpstreamError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUpstream, message, originalError)
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsTimeoutError 检查是否为超时错误
func IsTimeoutError(err error) bool {
	return isType(err, ErrorTypeTimeout)
}

// IsModelUnavailableError 检查是否为模型不可用错误
func IsModelUnavailableError(err error) bool {
	return isType(err, ErrorTypeModelUnavailable)
}

// IsUpstreamError 检查是否为上游服务错误
func IsUpstreamError(err error) bool {
	return isType(err, ErrorTypeUpstream)
}

// IsRetryable 判断错误是否值得调用方重试
// 超时与上游瞬时故障可以重试，验证类错误不行
func IsRetryable(err error) bool {
	return IsTimeoutError(err) || IsUpstreamError(err) || IsModelUnavailableError(err)
}

func isType(err error, errType ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == errType
	}
	return false
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeModelUnavailable:
		return "MODEL_UNAVAILABLE"
	case ErrorTypeUpstream:
		return "UPSTREAM_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，只更新消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	// 否则创建新的 AppError
	return NewAppError(errType, message, err)
}
