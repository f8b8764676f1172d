package parser

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSwapCommand(t *testing.T) {
	tests := []struct {
		command string
		want    SwapIntent
	}{
		{"swap 1000 USDC to WETH on 2", SwapIntent{Amount: "1000", SrcSymbol: "USDC", DstSymbol: "WETH", ToChainID: 2}},
		{"1.5 usdc TO usdc on 137", SwapIntent{Amount: "1.5", SrcSymbol: "USDC", DstSymbol: "USDC", ToChainID: 137}},
		{"  swap   100 USDC   to WETH ", SwapIntent{Amount: "100", SrcSymbol: "USDC", DstSymbol: "WETH"}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			got, err := ParseSwapCommand(tt.command)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}

	for _, bad := range []string{"", "swap USDC to WETH", "swap 1 USDC WETH", "swap 1 USDC to WETH on x"} {
		_, err := ParseSwapCommand(bad)
		assert.Error(t, err, bad)
	}
}

func TestValidateSwapIntent(t *testing.T) {
	intent := &SwapIntent{Amount: "1", SrcSymbol: "USDC", DstSymbol: "WETH"}
	require.Error(t, ValidateSwapIntent(intent))

	intent.ToChainID = 2
	require.NoError(t, ValidateSwapIntent(intent))
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("1.5", 6)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_500_000), v)

	v, err = ParseAmount("42", 0)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), v)

	v, err = ParseAmount(".25", 2)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(25), v)

	_, err = ParseAmount("0.001", 2)
	require.Error(t, err)

	_, err = ParseAmount("abc", 6)
	require.Error(t, err)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1.5", FormatAmount(big.NewInt(1_500_000), 6))
	assert.Equal(t, "0.000001", FormatAmount(big.NewInt(1), 6))
	assert.Equal(t, "3", FormatAmount(big.NewInt(3_000), 3))
	assert.Equal(t, "-0.5", FormatAmount(big.NewInt(-50), 2))
	assert.Equal(t, "7", FormatAmount(big.NewInt(7), 0))
	assert.Equal(t, "0", FormatAmount(nil, 6))
}
