package models

import (
	"fmt"
	"strings"
	"time"
)

// 运行状态常量
const (
	StatusStable    = "stable"    // 所有采样字节码一致
	StatusUnstable  = "unstable"  // 检测到字节码分歧
	StatusCancelled = "cancelled" // 运行被外部取消，结果不完整
)

// 分歧字段名称
const (
	FieldBytecode = "bytecode"
	FieldCodeSize = "code_size"
	FieldNonce    = "nonce"
)

// Divergence 首次检测到的与基准快照的分歧
// 只有字节码不一致才会触发分歧记录；code_size/nonce的差异仅作为附加说明
type Divergence struct {
	Block         uint64   `json:"block"`          // 发现分歧的区块高度
	BaselineBlock uint64   `json:"baseline_block"` // 基准快照所在区块高度
	ChangedFields []string `json:"changed_fields"` // 发生变化的字段集合
}

// SampleError 单个采样点的失败记录，累积保留，不会丢弃
type SampleError struct {
	Block   uint64 `json:"block"`   // 失败的区块高度
	Kind    string `json:"kind"`    // 错误类别（transport/timeout/not_found）
	Message string `json:"message"` // 错误描述
}

// BlockRange 采样的区块范围
type BlockRange struct {
	FromBlock uint64 `json:"from_block"`
	ToBlock   uint64 `json:"to_block"`
	Step      uint64 `json:"step"`
}

// StabilityReport 单次稳定性检查的完整结果
// 每次运行产生一份，之后不再修改，交给调用方做格式化和退出码映射
type StabilityReport struct {
	Address      string            `json:"address"`              // 检查的合约地址
	ChainID      uint64            `json:"chain_id"`             // 链ID
	Range        BlockRange        `json:"block_range"`          // 采样范围
	SampledCount int               `json:"sampled_count"`        // 实际尝试的采样点数（成功+失败）
	Stable       bool              `json:"stable"`               // 是否稳定
	Status       string            `json:"status"`               // stable/unstable/cancelled
	Baseline     *ContractSnapshot `json:"baseline,omitempty"`   // 基准快照
	Divergence   *Divergence       `json:"divergence,omitempty"` // 首次分歧（如有）
	Errors       []SampleError     `json:"errors"`               // 按发生顺序排列的采样错误
	Elapsed      time.Duration     `json:"-"`                    // 运行耗时
	ElapsedMS    int64             `json:"elapsed_ms"`           // 运行耗时（毫秒，用于序列化）
	StartedAt    time.Time         `json:"started_at"`           // 运行开始时间
}

// Summary 生成单行摘要，用于日志输出
func (r *StabilityReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "address=%s chain=%d range=[%d,%d] step=%d sampled=%d status=%s",
		r.Address, r.ChainID, r.Range.FromBlock, r.Range.ToBlock, r.Range.Step,
		r.SampledCount, r.Status)
	if r.Divergence != nil {
		fmt.Fprintf(&b, " divergence_block=%d", r.Divergence.Block)
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, " errors=%d", len(r.Errors))
	}
	return b.String()
}
