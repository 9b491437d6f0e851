package sampler

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/casks-mutters/zk-bytecode-stability/internal/chain"
	stberrors "github.com/casks-mutters/zk-bytecode-stability/internal/errors"
	"github.com/casks-mutters/zk-bytecode-stability/internal/retry"
	"github.com/casks-mutters/zk-bytecode-stability/pkg/models"
)

// Params 单次稳定性检查的范围参数
type Params struct {
	Address   common.Address // 检查的合约地址
	FromBlock uint64         // 起始区块
	ToBlock   uint64         // 结束区块
	Step      uint64         // 采样步长
}

// Sampler 字节码稳定性采样器
// 持有比较策略、重试策略和提前终止决策；每次Run相互独立，无跨运行共享状态
type Sampler struct {
	reader  chain.Reader
	retrier *retry.Retrier
	logger  *logrus.Logger
}

// New 创建采样器
func New(reader chain.Reader, policy *retry.Policy, logger *logrus.Logger) *Sampler {
	return &Sampler{
		reader:  reader,
		retrier: retry.NewRetrier(policy, logger),
		logger:  logger,
	}
}

// Heights 计算递增的采样高度序列
// from, from+step, ... 直到不超过to；若最后一个生成值不是to，额外追加to，
// 保证边界区块始终被检查
func Heights(from, to, step uint64) []uint64 {
	heights := make([]uint64, 0, (to-from)/step+2)

	h := from
	for {
		heights = append(heights, h)
		// 下一个点会越过to（或溢出）时停止
		if to-h < step {
			break
		}
		h += step
	}

	if heights[len(heights)-1] != to {
		heights = append(heights, to)
	}

	return heights
}

// validateParams 校验范围参数，在任何网络调用之前执行
func validateParams(params Params) error {
	if params.Step < 1 {
		return stberrors.NewInvalidRange(fmt.Sprintf("步长必须为正整数，当前值: %d", params.Step))
	}
	if params.FromBlock > params.ToBlock {
		return stberrors.NewInvalidRange(fmt.Sprintf("起始区块(%d)不能大于结束区块(%d)",
			params.FromBlock, params.ToBlock))
	}
	return nil
}

// Run 执行一次稳定性检查
// 按递增区块顺序采样，第一个成功的快照作为基准；后续快照的字节码与基准
// 逐字节比较，发现分歧立即停止。所有采样点失败时返回InsufficientData错误。
// 外部取消时返回累积的部分报告，状态为cancelled，不会断言稳定
func (s *Sampler) Run(ctx context.Context, params Params) (*models.StabilityReport, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	start := time.Now()

	report := &models.StabilityReport{
		Address: params.Address.Hex(),
		Range: models.BlockRange{
			FromBlock: params.FromBlock,
			ToBlock:   params.ToBlock,
			Step:      params.Step,
		},
		Errors:    make([]models.SampleError, 0),
		StartedAt: start,
	}

	// 链ID仅用于报告标注，获取失败不影响检查本身
	if chainID, err := s.reader.ChainID(ctx); err != nil {
		s.logger.Warnf("获取链ID失败: %v", err)
	} else {
		report.ChainID = chainID
	}

	heights := Heights(params.FromBlock, params.ToBlock, params.Step)
	s.logger.Infof("开始稳定性检查: 地址=%s 范围=[%d,%d] 步长=%d 采样点=%d",
		report.Address, params.FromBlock, params.ToBlock, params.Step, len(heights))

	var baseline *models.ContractSnapshot
	cancelled := false

	for _, height := range heights {
		// 取消信号在采样点之间检查（粗粒度，不打断重试中的请求）
		if ctx.Err() != nil {
			s.logger.Warnf("检查被取消，已完成 %d 个采样点", report.SampledCount)
			cancelled = true
			break
		}

		snapshot, err := s.sampleAt(ctx, params.Address, height)
		report.SampledCount++

		if err != nil {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			// 单个采样点失败不中止整个运行，记录后继续
			kind, _ := stberrors.KindOf(err)
			report.Errors = append(report.Errors, models.SampleError{
				Block:   height,
				Kind:    kind.String(),
				Message: err.Error(),
			})
			s.logger.Warnf("区块 %d 采样失败: %v", height, err)
			continue
		}

		if baseline == nil {
			baseline = snapshot
			report.Baseline = baseline
			s.logger.Infof("基准快照已建立: 区块=%d 字节码大小=%d nonce=%d",
				height, snapshot.CodeSize, snapshot.Nonce)
			continue
		}

		if !baseline.BytecodeEquals(snapshot) {
			report.Divergence = buildDivergence(baseline, snapshot)
			s.logger.Warnf("区块 %d 检测到字节码分歧（基准区块 %d），停止采样",
				height, baseline.Block)
			// 不稳定已确认，后续采样点不再访问
			break
		}

		s.logger.Debugf("区块 %d 字节码与基准一致", height)
	}

	if baseline == nil && !cancelled {
		// 全部失败的运行绝不能报告为稳定
		return nil, stberrors.NewInsufficientData(
			fmt.Sprintf("全部 %d 个采样点均失败，无法建立基准", report.SampledCount))
	}

	report.Elapsed = time.Since(start)
	report.ElapsedMS = report.Elapsed.Milliseconds()

	switch {
	case cancelled:
		report.Status = models.StatusCancelled
	case report.Divergence != nil:
		report.Status = models.StatusUnstable
	default:
		report.Status = models.StatusStable
		report.Stable = true
	}

	s.logger.Infof("检查完成: %s 耗时=%v", report.Summary(), report.Elapsed)
	return report, nil
}

// sampleAt 在重试策略下采样单个区块高度
func (s *Sampler) sampleAt(ctx context.Context, address common.Address, height uint64) (*models.ContractSnapshot, error) {
	var snapshot *models.ContractSnapshot

	err := s.retrier.Execute(ctx, fmt.Sprintf("采样区块%d", height), func() error {
		var sampleErr error
		snapshot, sampleErr = s.reader.Snapshot(ctx, address, height)
		return sampleErr
	})

	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// buildDivergence 构造分歧记录
// 字节码始终在变化字段中；code_size和nonce仅在同时不一致时附加说明
func buildDivergence(baseline, current *models.ContractSnapshot) *models.Divergence {
	changed := []string{models.FieldBytecode}
	if baseline.CodeSize != current.CodeSize {
		changed = append(changed, models.FieldCodeSize)
	}
	if baseline.Nonce != current.Nonce {
		changed = append(changed, models.FieldNonce)
	}

	return &models.Divergence{
		Block:         current.Block,
		BaselineBlock: baseline.Block,
		ChangedFields: changed,
	}
}
