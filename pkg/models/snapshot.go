package models

import "bytes"

// ContractSnapshot 某个历史区块高度上合约的不可变快照
// 成功采样时创建一次，之后不再修改
type ContractSnapshot struct {
	Block    uint64 `json:"block"`     // 区块高度
	Bytecode []byte `json:"-"`         // 部署的字节码
	CodeHex  string `json:"bytecode"`  // 字节码的十六进制表示（用于输出）
	CodeHash string `json:"code_hash"` // 字节码的keccak哈希
	CodeSize int    `json:"code_size"` // 字节码长度，恒等于 len(Bytecode)
	Nonce    uint64 `json:"nonce"`     // 账户nonce
}

// BytecodeEquals 按字节逐一比较两个快照的字节码
// 空字节码（自毁/未部署）与非空字节码不一致时视为普通分歧，不做特殊处理
func (s *ContractSnapshot) BytecodeEquals(other *ContractSnapshot) bool {
	if other == nil {
		return false
	}
	return bytes.Equal(s.Bytecode, other.Bytecode)
}
