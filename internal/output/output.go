package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/casks-mutters/zk-bytecode-stability/pkg/models"
)

// Output 报告输出接口
type Output interface {
	WriteReport(report *models.StabilityReport) error
	Close() error
}

// RenderJSON 将报告序列化为机器可读的JSON
func RenderJSON(report *models.StabilityReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化报告失败: %w", err)
	}
	return data, nil
}

// RenderText 将报告渲染为人类可读的摘要
func RenderText(report *models.StabilityReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🔧 zk-bytecode-stability\n")
	fmt.Fprintf(&b, "🏷️ 地址: %s\n", report.Address)
	if report.ChainID > 0 {
		fmt.Fprintf(&b, "🧭 链ID: %d\n", report.ChainID)
	}
	fmt.Fprintf(&b, "🧱 区块范围: %d → %d (步长 %d)\n",
		report.Range.FromBlock, report.Range.ToBlock, report.Range.Step)
	fmt.Fprintf(&b, "📊 采样点数: %d\n", report.SampledCount)

	if report.Baseline != nil {
		fmt.Fprintf(&b, "📌 基准: 区块=%d 字节码大小=%d 哈希=%s\n",
			report.Baseline.Block, report.Baseline.CodeSize, shortHash(report.Baseline.CodeHash))
	}

	switch report.Status {
	case models.StatusStable:
		fmt.Fprintf(&b, "✅ 合约字节码在所有采样区块上保持稳定\n")
	case models.StatusUnstable:
		fmt.Fprintf(&b, "🚨 区块 %d 检测到字节码分歧（基准区块 %d），变化字段: %s\n",
			report.Divergence.Block, report.Divergence.BaselineBlock,
			strings.Join(report.Divergence.ChangedFields, ", "))
	case models.StatusCancelled:
		fmt.Fprintf(&b, "⚠️ 检查被取消，结果不完整\n")
	}

	for _, sampleErr := range report.Errors {
		fmt.Fprintf(&b, "❌ 区块 %d 采样失败 (%s): %s\n",
			sampleErr.Block, sampleErr.Kind, sampleErr.Message)
	}

	fmt.Fprintf(&b, "⏱️ 耗时 %.2fs\n", report.Elapsed.Seconds())

	return b.String()
}

// shortHash 截断哈希用于摘要显示
func shortHash(hash string) string {
	if len(hash) <= 18 {
		return hash
	}
	return hash[:10] + "…" + hash[len(hash)-8:]
}

// FileOutput 报告文件输出器，JSON行格式追加写入
type FileOutput struct {
	file   *os.File
	logger *logrus.Logger
}

// NewFileOutput 创建报告文件输出器
func NewFileOutput(outputDir string, logger *logrus.Logger) (*FileOutput, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	path := filepath.Join(outputDir, fmt.Sprintf("reports_%s.json", timestamp))

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("创建报告文件失败: %w", err)
	}

	logger.Infof("报告文件输出: %s", path)

	return &FileOutput{
		file:   file,
		logger: logger,
	}, nil
}

// WriteReport 写入报告
func (o *FileOutput) WriteReport(report *models.StabilityReport) error {
	if report == nil {
		return nil
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("序列化报告失败: %w", err)
	}

	data = append(data, '\n')

	if _, err := o.file.Write(data); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	// 强制刷新到磁盘
	if err := o.file.Sync(); err != nil {
		return fmt.Errorf("刷新报告文件失败: %w", err)
	}

	return nil
}

// Close 关闭文件
func (o *FileOutput) Close() error {
	if o.file != nil {
		if err := o.file.Close(); err != nil {
			return fmt.Errorf("关闭报告文件失败: %w", err)
		}
	}
	return nil
}

// MultiOutput 将报告同时写入多个输出器
type MultiOutput struct {
	outputs []Output
}

// NewMultiOutput 创建组合输出器
func NewMultiOutput(outputs ...Output) *MultiOutput {
	return &MultiOutput{outputs: outputs}
}

// WriteReport 依次写入所有输出器，任一失败立即返回
func (m *MultiOutput) WriteReport(report *models.StabilityReport) error {
	for _, out := range m.outputs {
		if err := out.WriteReport(report); err != nil {
			return err
		}
	}
	return nil
}

// Close 关闭所有输出器
func (m *MultiOutput) Close() error {
	var errs []error
	for _, out := range m.outputs {
		if err := out.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("关闭输出器时发生错误: %v", errs)
	}
	return nil
}
