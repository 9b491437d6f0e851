package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stberrors "github.com/casks-mutters/zk-bytecode-stability/internal/errors"
)

func TestValidateAddress_Valid(t *testing.T) {
	addr, err := ValidateAddress("0x1234567890abcdef1234567890abcdef12345678")

	require.NoError(t, err)
	assert.Equal(t, "0x1234567890abcdef1234567890abcdef12345678", strings.ToLower(addr.Hex()))
}

func TestValidateAddress_Invalid(t *testing.T) {
	cases := []string{
		"",
		"0x123",                                       // 太短
		"1234567890abcdef1234567890abcdef12345678ab",  // 长度不对
		"0xZZ34567890abcdef1234567890abcdef12345678",  // 非法字符
		"0x1234567890abcdef1234567890abcdef123456789", // 41位
	}

	for _, input := range cases {
		_, err := ValidateAddress(input)
		assert.True(t, stberrors.IsKind(err, stberrors.KindConfig), "地址: %q", input)
	}
}

func TestValidateAddress_WithoutPrefix(t *testing.T) {
	// go-ethereum接受不带0x前缀的40位十六进制地址
	_, err := ValidateAddress("1234567890abcdef1234567890abcdef12345678")
	assert.NoError(t, err)
}

func TestValidateRange(t *testing.T) {
	assert.NoError(t, ValidateRange(100, 200, 10))
	assert.NoError(t, ValidateRange(100, 100, 1))

	assert.True(t, stberrors.IsKind(ValidateRange(200, 100, 10), stberrors.KindInvalidRange))
	assert.True(t, stberrors.IsKind(ValidateRange(100, 200, 0), stberrors.KindInvalidRange))
}
