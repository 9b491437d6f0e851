package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "transport", KindTransport.String())
	assert.Equal(t, "timeout", KindTimeout.String())
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "invalid_range", KindInvalidRange.String())
	assert.Equal(t, "insufficient_data", KindInsufficientData.String())
	assert.Equal(t, "cancelled", KindCancelled.String())
	assert.Equal(t, "config", KindConfig.String())
}

func TestErrorKind_Retryable(t *testing.T) {
	assert.True(t, KindTransport.Retryable())
	assert.True(t, KindTimeout.Retryable())
	// NotFound是永久性失败，不重试
	assert.False(t, KindNotFound.Retryable())
	assert.False(t, KindInvalidRange.Retryable())
	assert.False(t, KindInsufficientData.Retryable())
	assert.False(t, KindCancelled.Retryable())
	assert.False(t, KindConfig.Retryable())
}

func TestStabilityError_Error(t *testing.T) {
	err := New(KindTransport, "RPC_TRANSPORT", "连接失败")
	assert.Equal(t, "[RPC_TRANSPORT] 连接失败", err.Error())

	cause := stderrors.New("dial tcp: connection refused")
	wrapped := Wrap(cause, KindTransport, "RPC_TRANSPORT", "连接失败")
	assert.Equal(t, "[RPC_TRANSPORT] 连接失败: dial tcp: connection refused", wrapped.Error())
}

func TestStabilityError_Unwrap(t *testing.T) {
	cause := stderrors.New("底层错误")
	wrapped := Wrap(cause, KindTimeout, "RPC_TIMEOUT", "请求超时")

	assert.ErrorIs(t, wrapped, cause)
}

func TestStabilityError_WithBlock(t *testing.T) {
	err := New(KindNotFound, "BLOCK_NOT_FOUND", "区块不存在").WithBlock(12345)

	require.NotNil(t, err.Block)
	assert.Equal(t, uint64(12345), *err.Block)
}

func TestKindOf(t *testing.T) {
	kind, ok := KindOf(New(KindNotFound, "BLOCK_NOT_FOUND", "区块不存在"))
	assert.True(t, ok)
	assert.Equal(t, KindNotFound, kind)

	// 错误链中间有fmt.Errorf包装时仍能提取
	inner := New(KindTimeout, "RPC_TIMEOUT", "请求超时")
	wrapped := fmt.Errorf("重试 3 次后失败: %w", inner)
	kind, ok = KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindTimeout, kind)

	_, ok = KindOf(stderrors.New("普通错误"))
	assert.False(t, ok)
}

func TestIsKind(t *testing.T) {
	err := NewInvalidRange("起始区块不能大于结束区块")

	assert.True(t, IsKind(err, KindInvalidRange))
	assert.False(t, IsKind(err, KindTransport))
	assert.False(t, IsKind(stderrors.New("普通错误"), KindInvalidRange))
	assert.False(t, IsKind(nil, KindInvalidRange))
}

func TestConstructors(t *testing.T) {
	assert.True(t, IsKind(NewInvalidRange("x"), KindInvalidRange))
	assert.True(t, IsKind(NewInsufficientData("x"), KindInsufficientData))
	assert.True(t, IsKind(NewCancelled(stderrors.New("x")), KindCancelled))
	assert.True(t, IsKind(NewConfigError("x", nil), KindConfig))
	assert.Equal(t, "INVALID_RANGE", NewInvalidRange("x").Code)
	assert.Equal(t, "INSUFFICIENT_DATA", NewInsufficientData("x").Code)
}
