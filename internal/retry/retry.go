package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	stberrors "github.com/casks-mutters/zk-bytecode-stability/internal/errors"
)

// Policy 重试策略
// 独立于ChainReader的纯值对象，无需网络即可单元测试
type Policy struct {
	MaxAttempts         int           `json:"max_attempts" mapstructure:"max_attempts"`                 // 最大尝试次数
	InitialInterval     time.Duration `json:"initial_interval" mapstructure:"initial_interval"`         // 初始重试间隔
	MaxInterval         time.Duration `json:"max_interval" mapstructure:"max_interval"`                 // 最大重试间隔
	BackoffFactor       float64       `json:"backoff_factor" mapstructure:"backoff_factor"`             // 退避因子
	RandomizationFactor float64       `json:"randomization_factor" mapstructure:"randomization_factor"` // 随机化因子
	EnableJitter        bool          `json:"enable_jitter" mapstructure:"enable_jitter"`               // 启用抖动
}

// DefaultPolicy 默认重试策略
var DefaultPolicy = &Policy{
	MaxAttempts:         3,
	InitialInterval:     500 * time.Millisecond,
	MaxInterval:         10 * time.Second,
	BackoffFactor:       2.0,
	RandomizationFactor: 0.2,
	EnableJitter:        true,
}

// NoRetryPolicy 只尝试一次，不做重试
var NoRetryPolicy = &Policy{
	MaxAttempts:     1,
	InitialInterval: 0,
	MaxInterval:     0,
	BackoffFactor:   1.0,
}

// IsRetryableError 判断是否为可重试错误
// 优先按StabilityError的类别判断；其他错误回退到字符串特征检测
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if kind, ok := stberrors.KindOf(err); ok {
		return kind.Retryable()
	}

	// 网络相关的常见可重试错误
	errStr := strings.ToLower(err.Error())
	networkErrors := []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"timeout",
		"temporary failure",
		"service unavailable",
		"too many requests", // 429
		"rate limit",
		"i/o timeout",
		"no such host",
		"network is unreachable",
		"broken pipe",
	}

	for _, networkErr := range networkErrors {
		if strings.Contains(errStr, networkErr) {
			return true
		}
	}

	return false
}

// Retrier 重试器
type Retrier struct {
	policy *Policy
	logger *logrus.Logger
	rand   *rand.Rand
}

// NewRetrier 创建重试器
func NewRetrier(policy *Policy, logger *logrus.Logger) *Retrier {
	if policy == nil {
		policy = DefaultPolicy
	}

	return &Retrier{
		policy: policy,
		logger: logger,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ExecuteFunc 执行函数类型
type ExecuteFunc func() error

// Execute 执行重试逻辑
func (r *Retrier) Execute(ctx context.Context, operation string, fn ExecuteFunc) error {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		// 检查上下文是否被取消
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// 执行操作
		err := fn()
		if err == nil {
			if attempt > 1 {
				r.logger.Debugf("操作 '%s' 在第 %d 次尝试后成功", operation, attempt)
			}
			return nil
		}

		lastErr = err

		// 不可重试的错误直接返回
		if !IsRetryableError(err) {
			r.logger.Debugf("操作 '%s' 失败且不可重试: %v", operation, err)
			return err
		}

		// 最后一次尝试，直接返回错误
		if attempt == r.policy.MaxAttempts {
			r.logger.Debugf("操作 '%s' 在 %d 次尝试后最终失败: %v", operation, attempt, err)
			return fmt.Errorf("重试 %d 次后失败: %w", attempt, err)
		}

		// 计算延迟时间
		delay := r.calculateDelay(attempt)
		r.logger.Debugf("操作 '%s' 第 %d 次失败: %v，%v 后重试", operation, attempt, err, delay)

		// 等待重试
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

// calculateDelay 计算延迟时间
func (r *Retrier) calculateDelay(attempt int) time.Duration {
	// 指数退避计算
	delay := float64(r.policy.InitialInterval) * math.Pow(r.policy.BackoffFactor, float64(attempt-1))

	// 限制最大延迟
	if delay > float64(r.policy.MaxInterval) {
		delay = float64(r.policy.MaxInterval)
	}

	// 添加抖动避免惊群效应
	if r.policy.EnableJitter {
		jitter := delay * r.policy.RandomizationFactor
		jitterRange := jitter * 2
		delay = delay - jitter + (r.rand.Float64() * jitterRange)

		if delay < 0 {
			delay = float64(r.policy.InitialInterval)
		}
	}

	return time.Duration(delay)
}

// Policy 获取重试策略
func (r *Retrier) Policy() *Policy {
	return r.policy
}
