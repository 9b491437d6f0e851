package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`    // 日志级别 (debug, info, warn, error)
	Format string `json:"format" yaml:"format" mapstructure:"format"` // 日志格式 (json, text)
	Output string `json:"output" yaml:"output" mapstructure:"output"` // 输出路径 (stdout, stderr, 文件路径)
}

// DefaultLogConfig 默认日志配置
var DefaultLogConfig = &LogConfig{
	Level:  "info",
	Format: "json",
	Output: "stdout",
}

// StructuredLogger 结构化日志器
// 长驻模式（watch/api）下使用，按组件附加字段
type StructuredLogger struct {
	slogger *slog.Logger
	config  *LogConfig
	writer  io.Writer
}

// NewStructuredLogger 创建结构化日志器
func NewStructuredLogger(config *LogConfig) (*StructuredLogger, error) {
	if config == nil {
		config = DefaultLogConfig
	}

	level, err := parseLogLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("无效的日志级别 '%s': %w", config.Level, err)
	}

	writer, err := getLogWriter(config)
	if err != nil {
		return nil, fmt.Errorf("创建日志输出失败: %w", err)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	}

	switch config.Format {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	case "text":
		handler = slog.NewTextHandler(writer, opts)
	default:
		return nil, fmt.Errorf("不支持的日志格式: %s", config.Format)
	}

	return &StructuredLogger{
		slogger: slog.New(handler),
		config:  config,
		writer:  writer,
	}, nil
}

// parseLogLevel 解析日志级别
func parseLogLevel(levelStr string) (slog.Level, error) {
	switch levelStr {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("未知的日志级别: %s", levelStr)
	}
}

// getLogWriter 获取日志输出
func getLogWriter(config *LogConfig) (io.Writer, error) {
	switch config.Output {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		dir := filepath.Dir(config.Output)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}

		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("打开日志文件失败: %w", err)
		}

		return file, nil
	}
}

// replaceAttr 自定义属性替换函数
func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{
			Key:   a.Key,
			Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
		}
	}
	return a
}

// Slogger 获取底层slog.Logger
func (sl *StructuredLogger) Slogger() *slog.Logger {
	return sl.slogger
}

// WithFields 带字段的日志器
func (sl *StructuredLogger) WithFields(fields map[string]any) *slog.Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return sl.slogger.With(args...)
}

// NewCheckLogger 单次检查专用日志器
func NewCheckLogger(base *StructuredLogger, address string, fromBlock, toBlock uint64) *slog.Logger {
	return base.WithFields(map[string]any{
		"component":  "sampler",
		"address":    address,
		"from_block": fromBlock,
		"to_block":   toBlock,
	})
}

// NewRPCLogger RPC调用专用日志器
func NewRPCLogger(base *StructuredLogger, nodeURL string) *slog.Logger {
	return base.WithFields(map[string]any{
		"component": "rpc_client",
		"node_url":  nodeURL,
	})
}
