package fee

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xswap/pkg/types"
)

func fivePercent() *types.FeeStructure {
	return &types.FeeStructure{
		IsSet:        true,
		GasEstimate:  big.NewInt(4),
		Min:          big.NewInt(10),
		Max:          big.NewInt(100),
		Rate:         big.NewInt(5),
		DecimalScale: 2,
	}
}

func TestTotalClamps(t *testing.T) {
	fs := fivePercent()

	tests := []struct {
		amount int64
		want   int64
	}{
		{amount: 50, want: 10},    // 2.5 raised to min
		{amount: 3000, want: 100}, // 150 capped at max
		{amount: 1000, want: 50},
		{amount: 0, want: 10},
	}

	for _, tt := range tests {
		got, err := Total(fs, big.NewInt(tt.amount))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.Int64(), "amount %d", tt.amount)
	}
}

func TestTotalNotSet(t *testing.T) {
	_, err := Total(&types.FeeStructure{}, big.NewInt(1))
	require.ErrorIs(t, err, types.ErrFeeNotSet)

	_, err = Total(nil, big.NewInt(1))
	require.ErrorIs(t, err, types.ErrFeeNotSet)
}

func TestSplit(t *testing.T) {
	protocolFee, gasFee, err := Split(fivePercent(), big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(46), protocolFee.Int64())
	assert.Equal(t, int64(4), gasFee.Int64())
}

func TestSplitDoesNotAliasStructure(t *testing.T) {
	fs := fivePercent()
	_, gasFee, err := Split(fs, big.NewInt(1000))
	require.NoError(t, err)

	gasFee.SetInt64(999)
	assert.Equal(t, int64(4), fs.GasEstimate.Int64())
}

func TestMinSwapAmount(t *testing.T) {
	local := fivePercent()
	remote := fivePercent()
	remote.Min = big.NewInt(25)

	min, err := MinSwapAmount(local, remote)
	require.NoError(t, err)
	assert.Equal(t, int64(25), min.Int64())

	min, err = MinSwapAmount(remote, local)
	require.NoError(t, err)
	assert.Equal(t, int64(25), min.Int64())

	_, err = MinSwapAmount(local, &types.FeeStructure{})
	require.ErrorIs(t, err, types.ErrFeeNotSet)
}

func TestFeeStructureValidate(t *testing.T) {
	require.NoError(t, fivePercent().Validate())

	bad := fivePercent()
	bad.Max = big.NewInt(10)
	require.ErrorIs(t, bad.Validate(), types.ErrInvalidFeeStructure)

	bad = fivePercent()
	bad.GasEstimate = big.NewInt(11)
	require.ErrorIs(t, bad.Validate(), types.ErrInvalidFeeStructure)
}
