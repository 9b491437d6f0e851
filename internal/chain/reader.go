package chain

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	stberrors "github.com/casks-mutters/zk-bytecode-stability/internal/errors"
	"github.com/casks-mutters/zk-bytecode-stability/pkg/models"
)

// DefaultRequestTimeout 默认单次RPC请求超时
const DefaultRequestTimeout = 30 * time.Second

// Reader 链上历史状态的只读抽象
// 每次读取都以显式的区块号发起，保证结果不受当前链头影响
type Reader interface {
	// Snapshot 获取地址在指定历史区块上的字节码和账户属性
	Snapshot(ctx context.Context, address common.Address, block uint64) (*models.ContractSnapshot, error)

	// ChainID 获取链ID（每次运行读取一次，写入报告）
	ChainID(ctx context.Context) (uint64, error)

	// Close 关闭底层连接
	Close()
}

// ReaderConfig 节点连接配置
// 显式传入构造函数，生命周期与一次运行绑定，不使用进程级全局客户端
type ReaderConfig struct {
	URL            string        // RPC节点地址
	RequestTimeout time.Duration // 单次请求超时，0表示使用默认值
}

// EthReader 基于go-ethereum ethclient的Reader实现
// 本层不做重试，重试策略属于调用方
type EthReader struct {
	client  *ethclient.Client
	url     string
	timeout time.Duration
	logger  *logrus.Logger
}

// NewEthReader 创建并连接节点
func NewEthReader(cfg ReaderConfig, logger *logrus.Logger) (*EthReader, error) {
	if cfg.URL == "" {
		return nil, stberrors.NewConfigError("RPC节点地址不能为空", nil)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	client, err := ethclient.Dial(cfg.URL)
	if err != nil {
		return nil, stberrors.NewConfigError(fmt.Sprintf("连接RPC节点失败: %s", cfg.URL), err)
	}

	logger.Infof("已连接到RPC节点: %s", cfg.URL)

	return &EthReader{
		client:  client,
		url:     cfg.URL,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Snapshot 获取地址在指定历史区块上的快照
// 区块号作为显式参数传给每个RPC调用，绝不使用"latest"
func (r *EthReader) Snapshot(ctx context.Context, address common.Address, block uint64) (*models.ContractSnapshot, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	blockNumber := new(big.Int).SetUint64(block)

	code, err := r.client.CodeAt(callCtx, address, blockNumber)
	if err != nil {
		return nil, classifyRPCError(err, block, "获取合约字节码失败")
	}

	nonce, err := r.client.NonceAt(callCtx, address, blockNumber)
	if err != nil {
		return nil, classifyRPCError(err, block, "获取账户nonce失败")
	}

	snapshot := &models.ContractSnapshot{
		Block:    block,
		Bytecode: code,
		CodeHex:  hexutil.Encode(code),
		CodeSize: len(code),
		Nonce:    nonce,
	}
	if len(code) > 0 {
		snapshot.CodeHash = crypto.Keccak256Hash(code).Hex()
	}

	return snapshot, nil
}

// ChainID 获取链ID
func (r *EthReader) ChainID(ctx context.Context) (uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	id, err := r.client.ChainID(callCtx)
	if err != nil {
		return 0, classifyRPCError(err, 0, "获取链ID失败")
	}
	return id.Uint64(), nil
}

// Close 关闭连接
func (r *EthReader) Close() {
	if r.client != nil {
		r.client.Close()
	}
}

// 节点报告区块不存在时的常见错误特征
var notFoundPatterns = []string{
	"not found",
	"header not found",
	"missing trie node",
	"block not found",
	"unknown block",
	"state not available",
	"pruning",
}

// classifyRPCError 将底层RPC错误映射到错误分类
func classifyRPCError(err error, block uint64, message string) *stberrors.StabilityError {
	kind := classifyKind(err)

	var code string
	switch kind {
	case stberrors.KindTimeout:
		code = "RPC_TIMEOUT"
	case stberrors.KindNotFound:
		code = "BLOCK_NOT_FOUND"
	default:
		code = "RPC_TRANSPORT"
	}

	classified := stberrors.Wrap(err, kind, code, message)
	if block > 0 {
		classified.WithBlock(block)
	}
	return classified
}

// classifyKind 判断底层错误的类别
func classifyKind(err error) stberrors.ErrorKind {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return stberrors.KindTimeout
	}

	if stderrors.Is(err, ethereum.NotFound) {
		return stberrors.KindNotFound
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range notFoundPatterns {
		if strings.Contains(errStr, pattern) {
			return stberrors.KindNotFound
		}
	}

	return stberrors.KindTransport
}
