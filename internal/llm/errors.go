package llm

import "fmt"

// ModelError 模型推理错误类型
// 推理失败不在管线层面重试，由调用方决定跳过或中止
type ModelError struct {
	Code    int    // 错误码
	Message string // 错误消息
}

// Error 实现error接口
func (e ModelError) Error() string {
	return fmt.Sprintf("model error (code=%d): %s", e.Code, e.Message)
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey  = 1001 // 无效的API密钥
	ErrCodeInvalidRequest = 1002 // 无效的请求
	ErrCodeNetworkError   = 1003 // 网络连接错误
	ErrCodeRateLimited    = 1004 // 请求频率超限
	ErrCodeServerError    = 1005 // 服务器错误
	ErrCodeTimeout        = 1006 // 请求超时
	ErrCodeEmptyInput     = 1007 // 输入文本为空
	ErrCodeContentFilter  = 1008 // 内容安全过滤
	ErrCodeModelOverload  = 1009 // 模型过载
	ErrCodeInputTooLong   = 1010 // 输入超出模型上限
)

// 错误消息常量
const (
	ErrMsgInvalidAPIKey = "invalid API key"
	ErrMsgEmptyInput    = "input text cannot be empty"
	ErrMsgTimeout       = "request timed out"
	ErrMsgServerError   = "server error occurred"
)

// NewModelError 创建新的模型错误
func NewModelError(code int, message string) ModelError {
	return ModelError{
		Code:    code,
		Message: message,
	}
}

// WrapError 包装普通错误为模型错误
func WrapError(err error, code int) ModelError {
	if err == nil {
		return ModelError{Code: code, Message: "unknown error"}
	}

	if modelErr, ok := err.(ModelError); ok {
		return modelErr
	}

	return ModelError{
		Code:    code,
		Message: err.Error(),
	}
}
