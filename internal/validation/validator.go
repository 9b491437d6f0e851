package validation

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	stberrors "github.com/casks-mutters/zk-bytecode-stability/internal/errors"
)

// ValidateAddress 校验以太坊地址格式
// 在任何网络调用之前执行
func ValidateAddress(address string) (common.Address, error) {
	if address == "" {
		return common.Address{}, stberrors.New(stberrors.KindConfig,
			"INVALID_ADDRESS", "合约地址不能为空")
	}
	if !common.IsHexAddress(address) {
		return common.Address{}, stberrors.New(stberrors.KindConfig,
			"INVALID_ADDRESS", fmt.Sprintf("无效的以太坊地址格式: %s", address))
	}
	return common.HexToAddress(address), nil
}

// ValidateRange 校验区块范围参数
func ValidateRange(fromBlock, toBlock, step uint64) error {
	if step < 1 {
		return stberrors.NewInvalidRange(fmt.Sprintf("步长必须为正整数，当前值: %d", step))
	}
	if fromBlock > toBlock {
		return stberrors.NewInvalidRange(
			fmt.Sprintf("起始区块(%d)不能大于结束区块(%d)", fromBlock, toBlock))
	}
	return nil
}
