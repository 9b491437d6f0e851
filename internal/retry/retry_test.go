package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stberrors "github.com/casks-mutters/zk-bytecode-stability/internal/errors"
)

func newTestRetrier(policy *Policy) *Retrier {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewRetrier(policy, logger)
}

var fastPolicy = &Policy{
	MaxAttempts:     3,
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
	BackoffFactor:   2.0,
}

func TestExecute_SuccessFirstTry(t *testing.T) {
	r := newTestRetrier(fastPolicy)

	attempts := 0
	err := r.Execute(context.Background(), "测试操作", func() error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestExecute_RetriesTransientError(t *testing.T) {
	r := newTestRetrier(fastPolicy)

	attempts := 0
	err := r.Execute(context.Background(), "测试操作", func() error {
		attempts++
		if attempts < 3 {
			return stberrors.New(stberrors.KindTransport, "RPC_TRANSPORT", "连接失败")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExecute_NoRetryOnNotFound(t *testing.T) {
	r := newTestRetrier(fastPolicy)

	attempts := 0
	notFound := stberrors.New(stberrors.KindNotFound, "BLOCK_NOT_FOUND", "区块不存在")
	err := r.Execute(context.Background(), "测试操作", func() error {
		attempts++
		return notFound
	})

	// NotFound不可重试，立即失败
	assert.Equal(t, 1, attempts)
	assert.True(t, stberrors.IsKind(err, stberrors.KindNotFound))
}

func TestExecute_ExhaustsAttempts(t *testing.T) {
	r := newTestRetrier(fastPolicy)

	attempts := 0
	transient := stberrors.New(stberrors.KindTimeout, "RPC_TIMEOUT", "请求超时")
	err := r.Execute(context.Background(), "测试操作", func() error {
		attempts++
		return transient
	})

	assert.Equal(t, fastPolicy.MaxAttempts, attempts)
	require.Error(t, err)
	// 耗尽后的错误保留原始错误链
	assert.True(t, stberrors.IsKind(err, stberrors.KindTimeout))
}

func TestExecute_ContextCancelled(t *testing.T) {
	r := newTestRetrier(fastPolicy)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := r.Execute(ctx, "测试操作", func() error {
		attempts++
		return nil
	})

	assert.Equal(t, 0, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecute_ContextCancelledDuringBackoff(t *testing.T) {
	policy := &Policy{
		MaxAttempts:     3,
		InitialInterval: time.Second, // 足够长，取消先于重试发生
		MaxInterval:     time.Second,
		BackoffFactor:   1.0,
	}
	r := newTestRetrier(policy)

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := r.Execute(ctx, "测试操作", func() error {
		attempts++
		return stberrors.New(stberrors.KindTransport, "RPC_TRANSPORT", "连接失败")
	})

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))

	// StabilityError按类别判断
	assert.True(t, IsRetryableError(stberrors.New(stberrors.KindTransport, "T", "x")))
	assert.True(t, IsRetryableError(stberrors.New(stberrors.KindTimeout, "T", "x")))
	assert.False(t, IsRetryableError(stberrors.New(stberrors.KindNotFound, "T", "x")))
	assert.False(t, IsRetryableError(stberrors.New(stberrors.KindInvalidRange, "T", "x")))

	// 其他错误回退到字符串特征检测
	assert.True(t, IsRetryableError(errors.New("dial tcp: connection refused")))
	assert.True(t, IsRetryableError(errors.New("read: i/o timeout")))
	assert.True(t, IsRetryableError(errors.New("429 too many requests")))
	assert.False(t, IsRetryableError(errors.New("execution reverted")))
}

func TestCalculateDelay_ExponentialBackoff(t *testing.T) {
	policy := &Policy{
		MaxAttempts:     5,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		BackoffFactor:   2.0,
	}
	r := newTestRetrier(policy)

	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 400*time.Millisecond, r.calculateDelay(3))
	// 超过上限后封顶
	assert.Equal(t, time.Second, r.calculateDelay(5))
}

func TestCalculateDelay_JitterWithinBounds(t *testing.T) {
	policy := &Policy{
		MaxAttempts:         3,
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         time.Second,
		BackoffFactor:       2.0,
		RandomizationFactor: 0.2,
		EnableJitter:        true,
	}
	r := newTestRetrier(policy)

	for i := 0; i < 100; i++ {
		delay := r.calculateDelay(1)
		assert.GreaterOrEqual(t, delay, 80*time.Millisecond)
		assert.LessOrEqual(t, delay, 120*time.Millisecond)
	}
}

func TestNewRetrier_NilPolicyUsesDefault(t *testing.T) {
	r := newTestRetrier(nil)
	assert.Equal(t, DefaultPolicy, r.Policy())
}
