package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/casks-mutters/zk-bytecode-stability/internal/logging"
	"github.com/casks-mutters/zk-bytecode-stability/internal/retry"
)

// Config 主配置
type Config struct {
	Node    *NodeConfig        `mapstructure:"node"`
	Sampler *SamplerConfig     `mapstructure:"sampler"`
	Retry   *RetryConfig       `mapstructure:"retry"`
	Output  *OutputConfig      `mapstructure:"output"`
	History *HistoryConfig     `mapstructure:"history"`
	Logging *logging.LogConfig `mapstructure:"logging"`
}

// NodeConfig RPC节点配置
type NodeConfig struct {
	Name    string `mapstructure:"name"`
	URL     string `mapstructure:"url"`
	Timeout string `mapstructure:"timeout"` // 单次请求超时，如 "30s"
}

// SamplerConfig 采样器配置
type SamplerConfig struct {
	DefaultStep   uint64 `mapstructure:"default_step"`   // 默认采样步长
	WatchInterval string `mapstructure:"watch_interval"` // 监控模式轮询间隔
}

// RetryConfig 重试配置（时长以字符串表示，加载后解析为策略对象）
type RetryConfig struct {
	MaxAttempts         int     `mapstructure:"max_attempts"`
	InitialInterval     string  `mapstructure:"initial_interval"`
	MaxInterval         string  `mapstructure:"max_interval"`
	BackoffFactor       float64 `mapstructure:"backoff_factor"`
	RandomizationFactor float64 `mapstructure:"randomization_factor"`
	EnableJitter        bool    `mapstructure:"enable_jitter"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	Directory string       `mapstructure:"directory"` // 报告文件输出目录
	Kafka     *KafkaConfig `mapstructure:"kafka"`
}

// HistoryConfig 历史存储配置
type HistoryConfig struct {
	Path string `mapstructure:"path"` // bbolt数据库路径
}

// RequestTimeout 解析节点请求超时
func (n *NodeConfig) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(n.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ToPolicy 将重试配置解析为策略对象
func (r *RetryConfig) ToPolicy() *retry.Policy {
	if r == nil {
		return retry.DefaultPolicy
	}

	policy := &retry.Policy{
		MaxAttempts:         r.MaxAttempts,
		BackoffFactor:       r.BackoffFactor,
		RandomizationFactor: r.RandomizationFactor,
		EnableJitter:        r.EnableJitter,
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = retry.DefaultPolicy.MaxAttempts
	}
	if policy.BackoffFactor <= 0 {
		policy.BackoffFactor = retry.DefaultPolicy.BackoffFactor
	}

	if d, err := time.ParseDuration(r.InitialInterval); err == nil && d > 0 {
		policy.InitialInterval = d
	} else {
		policy.InitialInterval = retry.DefaultPolicy.InitialInterval
	}
	if d, err := time.ParseDuration(r.MaxInterval); err == nil && d > 0 {
		policy.MaxInterval = d
	} else {
		policy.MaxInterval = retry.DefaultPolicy.MaxInterval
	}

	return policy
}

// WatchIntervalDuration 解析监控模式轮询间隔
func (s *SamplerConfig) WatchIntervalDuration() time.Duration {
	d, err := time.ParseDuration(s.WatchInterval)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// LoadConfig 加载配置（自动检测配置源）
// 优先从环境变量指定的数据库加载，否则回退到YAML文件
func LoadConfig(configPath string) (*Config, error) {
	dbDSN := os.Getenv("ZKSTAB_DB_DSN")
	if dbDSN != "" {
		logger := logrus.New()
		dbConfig, err := NewDatabaseConfig(dbDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("连接配置数据库失败: %w", err)
		}
		defer dbConfig.Close()

		config, err := dbConfig.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("从数据库加载配置失败: %w", err)
		}

		logger.Info("已从数据库加载配置")
		return applyDefaults(config), nil
	}

	return LoadConfigFromFile(configPath)
}

// LoadConfigFromFile 从YAML文件加载配置
func LoadConfigFromFile(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err != nil {
		// 配置文件不存在时使用默认配置，节点地址从环境变量读取
		return GetDefaultConfig(), nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return applyDefaults(&config), nil
}

// applyDefaults 补齐缺失的配置段
func applyDefaults(config *Config) *Config {
	defaults := GetDefaultConfig()

	if config.Node == nil {
		config.Node = defaults.Node
	}
	if config.Sampler == nil {
		config.Sampler = defaults.Sampler
	}
	if config.Retry == nil {
		config.Retry = defaults.Retry
	}
	if config.Output == nil {
		config.Output = defaults.Output
	}
	if config.History == nil {
		config.History = defaults.History
	}
	if config.Logging == nil {
		config.Logging = defaults.Logging
	}

	return config
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Node: &NodeConfig{
			Name:    "default",
			URL:     os.Getenv("RPC_URL"), // 未配置文件时从环境变量读取
			Timeout: "30s",
		},
		Sampler: &SamplerConfig{
			DefaultStep:   100000,
			WatchInterval: "15m",
		},
		Retry: &RetryConfig{
			MaxAttempts:         3,
			InitialInterval:     "500ms",
			MaxInterval:         "10s",
			BackoffFactor:       2.0,
			RandomizationFactor: 0.2,
			EnableJitter:        true,
		},
		Output: &OutputConfig{
			Directory: "./reports",
			Kafka: &KafkaConfig{
				Enabled: false,
				Brokers: []string{"localhost:9092"},
				Topic:   "bytecode_stability_reports",
			},
		},
		History: &HistoryConfig{
			Path: "./data/history.db",
		},
		Logging: &logging.LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}
