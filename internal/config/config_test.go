package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casks-mutters/zk-bytecode-stability/internal/retry"
)

func TestGetDefaultConfig(t *testing.T) {
	config := GetDefaultConfig()

	require.NotNil(t, config.Node)
	require.NotNil(t, config.Sampler)
	require.NotNil(t, config.Retry)
	require.NotNil(t, config.Output)
	require.NotNil(t, config.History)
	require.NotNil(t, config.Logging)

	assert.Equal(t, uint64(100000), config.Sampler.DefaultStep)
	assert.Equal(t, 3, config.Retry.MaxAttempts)
	assert.Equal(t, "info", config.Logging.Level)
	assert.False(t, config.Output.Kafka.Enabled)
}

func TestLoadConfigFromFile_MissingFileUsesDefaults(t *testing.T) {
	config, err := LoadConfigFromFile("/不存在/config.yaml")

	require.NoError(t, err)
	assert.Equal(t, uint64(100000), config.Sampler.DefaultStep)
}

func TestLoadConfigFromFile_YAML(t *testing.T) {
	content := `
node:
  name: "测试节点"
  url: "http://localhost:8545"
  timeout: "10s"
sampler:
  default_step: 5000
  watch_interval: "5m"
retry:
  max_attempts: 5
  initial_interval: "100ms"
  max_interval: "2s"
  backoff_factor: 3.0
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "测试节点", config.Node.Name)
	assert.Equal(t, "http://localhost:8545", config.Node.URL)
	assert.Equal(t, 10*time.Second, config.Node.RequestTimeout())
	assert.Equal(t, uint64(5000), config.Sampler.DefaultStep)
	assert.Equal(t, 5*time.Minute, config.Sampler.WatchIntervalDuration())
	assert.Equal(t, 5, config.Retry.MaxAttempts)

	// 未出现的配置段补齐默认值
	require.NotNil(t, config.Output)
	require.NotNil(t, config.Logging)
}

func TestLoadConfigFromFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node: [此处格式非法"), 0644))

	_, err := LoadConfigFromFile(path)
	assert.Error(t, err)
}

func TestRetryConfig_ToPolicy(t *testing.T) {
	rc := &RetryConfig{
		MaxAttempts:         5,
		InitialInterval:     "100ms",
		MaxInterval:         "2s",
		BackoffFactor:       3.0,
		RandomizationFactor: 0.1,
		EnableJitter:        true,
	}

	policy := rc.ToPolicy()
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, policy.InitialInterval)
	assert.Equal(t, 2*time.Second, policy.MaxInterval)
	assert.Equal(t, 3.0, policy.BackoffFactor)
	assert.True(t, policy.EnableJitter)
}

func TestRetryConfig_ToPolicy_InvalidValuesFallBack(t *testing.T) {
	rc := &RetryConfig{
		MaxAttempts:     0,
		InitialInterval: "不是时长",
		MaxInterval:     "",
		BackoffFactor:   -1,
	}

	policy := rc.ToPolicy()
	assert.Equal(t, retry.DefaultPolicy.MaxAttempts, policy.MaxAttempts)
	assert.Equal(t, retry.DefaultPolicy.InitialInterval, policy.InitialInterval)
	assert.Equal(t, retry.DefaultPolicy.MaxInterval, policy.MaxInterval)
	assert.Equal(t, retry.DefaultPolicy.BackoffFactor, policy.BackoffFactor)
}

func TestRetryConfig_ToPolicy_Nil(t *testing.T) {
	var rc *RetryConfig
	assert.Equal(t, retry.DefaultPolicy, rc.ToPolicy())
}

func TestNodeConfig_RequestTimeout_Fallback(t *testing.T) {
	n := &NodeConfig{Timeout: "无效"}
	assert.Equal(t, 30*time.Second, n.RequestTimeout())

	n = &NodeConfig{Timeout: "-5s"}
	assert.Equal(t, 30*time.Second, n.RequestTimeout())
}
