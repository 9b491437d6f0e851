package config

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DatabaseConfig 数据库配置管理器
// 运维侧将节点和采样参数集中存放在Postgres时使用
type DatabaseConfig struct {
	DB     *sql.DB
	logger *logrus.Logger
}

// NewDatabaseConfig 创建数据库配置管理器
func NewDatabaseConfig(dsn string, logger *logrus.Logger) (*DatabaseConfig, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return &DatabaseConfig{
		DB:     db,
		logger: logger,
	}, nil
}

// LoadConfig 从数据库加载完整配置
func (dc *DatabaseConfig) LoadConfig() (*Config, error) {
	config := &Config{}

	nodeConfig, err := dc.loadNodeConfig()
	if err != nil {
		return nil, fmt.Errorf("加载节点配置失败: %w", err)
	}
	config.Node = nodeConfig

	samplerConfig, retryConfig, err := dc.loadSamplerConfig()
	if err != nil {
		return nil, fmt.Errorf("加载采样器配置失败: %w", err)
	}
	config.Sampler = samplerConfig
	config.Retry = retryConfig

	return config, nil
}

// loadNodeConfig 加载RPC节点配置（按优先级取第一个活跃节点）
func (dc *DatabaseConfig) loadNodeConfig() (*NodeConfig, error) {
	query := `SELECT name, url, request_timeout FROM chain_nodes WHERE is_active = true ORDER BY priority LIMIT 1`

	var node NodeConfig
	err := dc.DB.QueryRow(query).Scan(&node.Name, &node.URL, &node.Timeout)
	if err != nil {
		return nil, err
	}

	return &node, nil
}

// loadSamplerConfig 加载采样器和重试配置（键值对表）
func (dc *DatabaseConfig) loadSamplerConfig() (*SamplerConfig, *RetryConfig, error) {
	query := `SELECT config_key, config_value FROM sampler_config WHERE is_active = true`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	defaults := GetDefaultConfig()
	sampler := defaults.Sampler
	retryCfg := defaults.Retry

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, nil, err
		}

		switch key {
		case "default_step":
			if v, err := strconv.ParseUint(value, 10, 64); err == nil && v > 0 {
				sampler.DefaultStep = v
			}
		case "watch_interval":
			sampler.WatchInterval = value
		case "retry_max_attempts":
			if v, err := strconv.Atoi(value); err == nil && v > 0 {
				retryCfg.MaxAttempts = v
			}
		case "retry_initial_interval":
			retryCfg.InitialInterval = value
		case "retry_max_interval":
			retryCfg.MaxInterval = value
		case "retry_backoff_factor":
			if v, err := strconv.ParseFloat(value, 64); err == nil && v > 0 {
				retryCfg.BackoffFactor = v
			}
		default:
			dc.logger.Debugf("忽略未知配置项: %s", key)
		}
	}

	return sampler, retryCfg, rows.Err()
}

// Close 关闭数据库连接
func (dc *DatabaseConfig) Close() error {
	if dc.DB != nil {
		return dc.DB.Close()
	}
	return nil
}
