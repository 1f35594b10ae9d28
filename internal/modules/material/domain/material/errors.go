package material

import (
	"errors"
	"fmt"
	"time"
)

// 处理流水线的错误分类：瞬时错误进入退避重试，永久错误直接标记失败

// ValidationError 输入不合法（永久错误，不重试）
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("参数校验失败: %s %s", e.Field, e.Reason)
}

// CorruptDocumentError 文档损坏或格式不可解析（永久错误）
type CorruptDocumentError struct {
	Reason string
}

func (e *CorruptDocumentError) Error() string {
	return fmt.Sprintf("文档损坏: %s", e.Reason)
}

// ExtractionError 文本抽取产出不可用（永久错误）
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("文本抽取失败: %s", e.Reason)
}

// TransientIOError 网络/下载等可恢复故障（瞬时错误，可重试）
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("IO 瞬时故障 [%s]: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// RateLimitError 上游限流（瞬时错误）；RetryAfter>0 时按服务端指示等待
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("上游限流: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// DatabaseError 持久化故障（瞬时错误）
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("数据库操作失败 [%s]: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// ErrNotFound 资料不存在
var ErrNotFound = errors.New("资料不存在")

// IsTransient 判断错误是否可重试
func IsTransient(err error) bool {
	var (
		ioErr   *TransientIOError
		rateErr *RateLimitError
		dbErr   *DatabaseError
	)
	return errors.As(err, &ioErr) || errors.As(err, &rateErr) || errors.As(err, &dbErr)
}
