package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorKind 错误类别
type ErrorKind int

const (
	// 采样点级错误（可恢复：重试耗尽后降级为SampleError记录）
	KindTransport ErrorKind = iota // 连接/HTTP层失败
	KindTimeout                    // 请求超时
	KindNotFound                   // 节点报告区块不存在

	// 运行级错误（直接向调用方传播，不产生报告）
	KindInvalidRange     // 非法的区块范围参数
	KindInsufficientData // 所有采样点全部失败
	KindCancelled        // 外部取消
	KindConfig           // 配置错误
)

// 错误类别字符串映射
var kindNames = map[ErrorKind]string{
	KindTransport:        "transport",
	KindTimeout:          "timeout",
	KindNotFound:         "not_found",
	KindInvalidRange:     "invalid_range",
	KindInsufficientData: "insufficient_data",
	KindCancelled:        "cancelled",
	KindConfig:           "config",
}

// String 返回错误类别的字符串表示
func (k ErrorKind) String() string {
	if name, exists := kindNames[k]; exists {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Retryable 判断该类别是否可重试
// NotFound不可重试：区块在该节点永久不可达，重试只会浪费时间
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTransport, KindTimeout:
		return true
	default:
		return false
	}
}

// StabilityError 自定义错误类型
type StabilityError struct {
	Kind      ErrorKind `json:"kind"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
	Block     *uint64   `json:"block,omitempty"`
}

// Error 实现error接口
func (e *StabilityError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *StabilityError) Unwrap() error {
	return e.Cause
}

// IsRetryable 判断是否可重试
func (e *StabilityError) IsRetryable() bool {
	return e.Kind.Retryable()
}

// WithBlock 附加区块高度
func (e *StabilityError) WithBlock(block uint64) *StabilityError {
	e.Block = &block
	return e
}

// New 创建新的错误
func New(kind ErrorKind, code, message string) *StabilityError {
	return &StabilityError{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Wrap 包装现有错误
func Wrap(err error, kind ErrorKind, code, message string) *StabilityError {
	return &StabilityError{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Cause:     err,
		Timestamp: time.Now(),
	}
}

// KindOf 提取错误链中StabilityError的类别
func KindOf(err error) (ErrorKind, bool) {
	var se *StabilityError
	if stderrors.As(err, &se) {
		return se.Kind, true
	}
	return KindTransport, false
}

// IsKind 判断错误链中是否存在指定类别的StabilityError
func IsKind(err error, kind ErrorKind) bool {
	var se *StabilityError
	if stderrors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// NewInvalidRange 区块范围参数非法，在任何网络调用之前返回
func NewInvalidRange(message string) *StabilityError {
	return New(KindInvalidRange, "INVALID_RANGE", message)
}

// NewInsufficientData 所有采样点均失败，不能断言稳定或不稳定
func NewInsufficientData(message string) *StabilityError {
	return New(KindInsufficientData, "INSUFFICIENT_DATA", message)
}

// NewCancelled 运行被外部取消
func NewCancelled(cause error) *StabilityError {
	return Wrap(cause, KindCancelled, "CANCELLED", "运行被取消")
}

// NewConfigError 配置错误
func NewConfigError(message string, cause error) *StabilityError {
	return Wrap(cause, KindConfig, "CONFIG_INVALID", message)
}
