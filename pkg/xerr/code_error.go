package xerr

import (
	"errors"
	"fmt"
)

// Kind 稳定的错误分类，供调用方映射处理策略（重试/跳过/硬失败）
type Kind string

const (
	KindNotFound   Kind = "not_found"  // 实体/会话/消息不存在
	KindValidation Kind = "validation" // 非法入参，永不重试
	KindProvider   Kind = "provider"   // LLM/Embedding 提供方失败，由后台任务重试
	KindRetrieval  Kind = "retrieval"  // 记忆候选检索时的存储失败
	KindInternal   Kind = "internal"
)

// CodeError 自定义错误结构，携带分类与原始原因
type CodeError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error 实现 error 接口
func (e *CodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *CodeError) Unwrap() error { return e.Cause }

// New 创建新的 CodeError
func New(kind Kind, msg string) *CodeError {
	return &CodeError{Kind: kind, Message: msg}
}

// Wrap 包装原始错误并赋予分类；同分类的 CodeError 不重复包装
func Wrap(kind Kind, msg string, cause error) *CodeError {
	var ce *CodeError
	if errors.As(cause, &ce) && ce.Kind == kind {
		return ce
	}
	return &CodeError{Kind: kind, Message: msg, Cause: cause}
}

func NotFoundf(format string, args ...any) *CodeError {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func Validationf(format string, args ...any) *CodeError {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

// IsKind 判断错误链上是否存在指定分类
func IsKind(err error, kind Kind) bool {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
