package fee

import (
	"fmt"
	"math/big"

	"xswap/pkg/types"
)

// Total returns clamp(amount * rate / 10^decimalScale, min, max)
func Total(fs *types.FeeStructure, amount *big.Int) (*big.Int, error) {
	if fs == nil || !fs.IsSet {
		return nil, types.ErrFeeNotSet
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(fs.DecimalScale)), nil)
	total := new(big.Int).Mul(amount, fs.Rate)
	total.Div(total, scale)

	if total.Cmp(fs.Min) < 0 {
		total.Set(fs.Min)
	}
	if total.Cmp(fs.Max) > 0 {
		total.Set(fs.Max)
	}
	return total, nil
}

// Split returns the protocol fee and gas fee for amount. The gas fee is the
// configured estimate; the protocol fee is whatever remains of the total.
func Split(fs *types.FeeStructure, amount *big.Int) (protocolFee, gasFee *big.Int, err error) {
	total, err := Total(fs, amount)
	if err != nil {
		return nil, nil, err
	}
	gasFee = new(big.Int).Set(fs.GasEstimate)
	protocolFee = new(big.Int).Sub(total, gasFee)
	if protocolFee.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: gas estimate exceeds total fee", types.ErrInvalidFeeStructure)
	}
	return protocolFee, gasFee, nil
}

// MinSwapAmount returns the smallest pool asset amount that both chains can
// settle: the larger of the two configured fee minimums.
func MinSwapAmount(local, remote *types.FeeStructure) (*big.Int, error) {
	if local == nil || !local.IsSet || remote == nil || !remote.IsSet {
		return nil, types.ErrFeeNotSet
	}
	if local.Min.Cmp(remote.Min) > 0 {
		return new(big.Int).Set(local.Min), nil
	}
	return new(big.Int).Set(remote.Min), nil
}
