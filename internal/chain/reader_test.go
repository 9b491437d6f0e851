package chain

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stberrors "github.com/casks-mutters/zk-bytecode-stability/internal/errors"
)

func TestClassifyKind_Timeout(t *testing.T) {
	assert.Equal(t, stberrors.KindTimeout, classifyKind(context.DeadlineExceeded))
}

func TestClassifyKind_EthereumNotFound(t *testing.T) {
	assert.Equal(t, stberrors.KindNotFound, classifyKind(ethereum.NotFound))
}

func TestClassifyKind_NotFoundPatterns(t *testing.T) {
	// 不同节点实现对历史状态缺失的报错措辞各异
	cases := []string{
		"missing trie node a1b2c3",
		"header not found",
		"Block Not Found",
		"unknown block",
		"state not available, pruning enabled",
	}

	for _, msg := range cases {
		assert.Equal(t, stberrors.KindNotFound, classifyKind(stderrors.New(msg)), msg)
	}
}

func TestClassifyKind_DefaultTransport(t *testing.T) {
	assert.Equal(t, stberrors.KindTransport, classifyKind(stderrors.New("dial tcp: connection refused")))
	assert.Equal(t, stberrors.KindTransport, classifyKind(stderrors.New("EOF")))
}

func TestClassifyRPCError(t *testing.T) {
	cause := stderrors.New("missing trie node")
	err := classifyRPCError(cause, 12345, "获取合约字节码失败")

	assert.Equal(t, stberrors.KindNotFound, err.Kind)
	assert.Equal(t, "BLOCK_NOT_FOUND", err.Code)
	require.NotNil(t, err.Block)
	assert.Equal(t, uint64(12345), *err.Block)
	assert.ErrorIs(t, err, cause)
}

func TestClassifyRPCError_TimeoutCode(t *testing.T) {
	err := classifyRPCError(context.DeadlineExceeded, 100, "获取账户nonce失败")

	assert.Equal(t, stberrors.KindTimeout, err.Kind)
	assert.Equal(t, "RPC_TIMEOUT", err.Code)
}

func TestNewEthReader_EmptyURL(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	reader, err := NewEthReader(ReaderConfig{URL: ""}, logger)

	assert.Nil(t, reader)
	assert.True(t, stberrors.IsKind(err, stberrors.KindConfig))
}
