// Package errors 提供统一的错误定义
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeForbidden          ErrorCode = "1003"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 资源错误 (2xxx)
	CodeProjectNotFound    ErrorCode = "2001"
	CodeFileNotFound       ErrorCode = "2002"
	CodeVersionNotFound    ErrorCode = "2003"
	CodeDeploymentNotFound ErrorCode = "2004"

	// 生成流程错误 (3xxx)
	CodeValidationFailed       ErrorCode = "3001"
	CodeSessionAlreadyRunning  ErrorCode = "3002"
	CodeSessionTimeout         ErrorCode = "3003"
	CodeConcurrentModification ErrorCode = "3004"
	CodeGenerationFailed       ErrorCode = "3005"

	// 构建/打包/部署错误 (4xxx)
	CodeCompileError  ErrorCode = "4001"
	CodeToolingError  ErrorCode = "4002"
	CodeSizeViolation ErrorCode = "4003"
	CodeDeployFailed  ErrorCode = "4004"

	// 外部服务错误 (5xxx)
	CodeDatabaseError     ErrorCode = "5001"
	CodeCacheError        ErrorCode = "5002"
	CodeStorageError      ErrorCode = "5003"
	CodeCodeGenCallFailed ErrorCode = "5004"
)

// AppError 应用错误
type AppError struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	Detail      string    `json:"detail,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
	HTTPStatus  int       `json:"-"`
	Err         error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 支持 errors.Is 按错误码比较
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail 添加详细信息
func (e *AppError) WithDetail(detail string) *AppError {
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithSuggestions 添加面向用户的修复建议
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	clone := *e
	clone.Suggestions = suggestions
	return &clone
}

// WithError 添加底层错误
func (e *AppError) WithError(err error) *AppError {
	clone := *e
	clone.Err = err
	return &clone
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeValidationFailed:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound, CodeProjectNotFound, CodeFileNotFound, CodeVersionNotFound, CodeDeploymentNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeSessionAlreadyRunning, CodeConcurrentModification:
		return http.StatusConflict
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeSizeViolation:
		return http.StatusUnprocessableEntity
	case CodeSessionTimeout:
		return http.StatusGatewayTimeout
	case CodeServiceUnavailable, CodeToolingError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized       = New(CodeUnauthorized, "unauthorized")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrConflict           = New(CodeConflict, "resource conflict")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrProjectNotFound    = New(CodeProjectNotFound, "project not found")
	ErrFileNotFound       = New(CodeFileNotFound, "file not found")
	ErrVersionNotFound    = New(CodeVersionNotFound, "version not found")
	ErrDeploymentNotFound = New(CodeDeploymentNotFound, "deployment not found")

	ErrValidationFailed       = New(CodeValidationFailed, "request validation failed")
	ErrAlreadyRunning         = New(CodeSessionAlreadyRunning, "a generation session is already running for this project")
	ErrSessionTimeout         = New(CodeSessionTimeout, "generation session exceeded its time budget")
	ErrConcurrentModification = New(CodeConcurrentModification, "write conflicts with an in-flight snapshot")
	ErrGenerationFailed       = New(CodeGenerationFailed, "generation failed")

	ErrCompile       = New(CodeCompileError, "generated code failed to compile")
	ErrTooling       = New(CodeToolingError, "build tooling failed to run")
	ErrSizeViolation = New(CodeSizeViolation, "packaged worker exceeds the hard size limit")
	ErrDeployFailed  = New(CodeDeployFailed, "deployment failed after retries")

	ErrCodeGenCallFailed = New(CodeCodeGenCallFailed, "content generation call failed")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}
