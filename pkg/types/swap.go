package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAsset is the identity used for a chain's native coin
var NativeAsset = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// SwapStatus is the lifecycle state of a swap request on its source chain
type SwapStatus uint8

const (
	StatusOpen   SwapStatus = iota // Request recorded, funds held by the registry
	StatusClosed                   // Claimed, batch-claimed or refunded
)

// String returns a human readable status
func (s SwapStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// CloseOutcome records what happened when a remote request was closed on the target chain
type CloseOutcome uint8

const (
	OutcomeNonSwapped CloseOutcome = iota // Pool asset paid out directly
	OutcomeSuccess                        // Adapter converted into the destination asset
	OutcomeFailed                         // Adapter failed, pool asset refunded to the receiver
	OutcomeLocked                         // Validators locked the remote id, no funds moved
)

// String returns a human readable outcome
func (o CloseOutcome) String() string {
	switch o {
	case OutcomeNonSwapped:
		return "non_swapped"
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeLocked:
		return "locked"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(o))
	}
}

// SwapRequest is a swap intent recorded by the registry on its source chain
type SwapRequest struct {
	ToChainID       uint64         `json:"to_chain_id"`
	SwapID          uint64         `json:"swap_id"`
	Sender          common.Address `json:"sender"`
	Receiver        common.Address `json:"receiver"`
	PoolAsset       common.Address `json:"pool_asset"`
	PoolAssetAmount *big.Int       `json:"pool_asset_amount"`
	ProtocolFee     *big.Int       `json:"protocol_fee"`
	GasFee          *big.Int       `json:"gas_fee"`
	DstAsset        common.Address `json:"dst_asset"`         // Asset the receiver wants on the target chain
	MinReturnAmount *big.Int       `json:"min_return_amount"` // Lower bound for the target-chain conversion
	RequestedAt     uint64         `json:"requested_at"`      // Unix seconds on the source chain clock
	Status          SwapStatus     `json:"status"`
	RefundGasFee    *big.Int       `json:"refund_gas_fee"` // Local gas estimate kept back if the request is refunded
}

// IsOpen returns true if the request can still be claimed or refunded
func (r *SwapRequest) IsOpen() bool {
	return r.Status == StatusOpen
}

// Fees returns protocol fee plus gas fee
func (r *SwapRequest) Fees() *big.Int {
	return new(big.Int).Add(r.ProtocolFee, r.GasFee)
}

// NetAmount returns the pool asset amount left after fees
func (r *SwapRequest) NetAmount() *big.Int {
	return new(big.Int).Sub(r.PoolAssetAmount, r.Fees())
}

// CloseRecord marks a remote swap id as handled on the target chain. Once
// written it is never removed.
type CloseRecord struct {
	FromChainID uint64         `json:"from_chain_id"`
	FromSwapID  uint64         `json:"from_swap_id"`
	Outcome     CloseOutcome   `json:"outcome"`
	Receiver    common.Address `json:"receiver"`
	DstAsset    common.Address `json:"dst_asset"`
	AmountOut   *big.Int       `json:"amount_out"`
	ClosedAt    uint64         `json:"closed_at"`
}

// TargetChainDesc describes where and to whom a swap should be delivered
type TargetChainDesc struct {
	ToChainID       uint64         `json:"to_chain_id"`
	Receiver        common.Address `json:"receiver"`
	DstAsset        common.Address `json:"dst_asset"`
	MinReturnAmount *big.Int       `json:"min_return_amount"`
}

// SwapDescription is handed to an exchange adapter
type SwapDescription struct {
	SrcAsset        common.Address `json:"src_asset"`
	DstAsset        common.Address `json:"dst_asset"`
	Receiver        common.Address `json:"receiver"`
	Amount          *big.Int       `json:"amount"`
	MinReturnAmount *big.Int       `json:"min_return_amount"`
}

// FeeStructure configures fees charged for swaps to a (chain, asset) pair
type FeeStructure struct {
	IsSet        bool     `json:"is_set"`
	GasEstimate  *big.Int `json:"gas_estimate"`
	Min          *big.Int `json:"min"`
	Max          *big.Int `json:"max"`
	Rate         *big.Int `json:"rate"`
	DecimalScale uint8    `json:"decimal_scale"`
}

// Validate checks max > min >= gasEstimate
func (f *FeeStructure) Validate() error {
	if f.GasEstimate == nil || f.Min == nil || f.Max == nil || f.Rate == nil {
		return fmt.Errorf("%w: missing fields", ErrInvalidFeeStructure)
	}
	if f.GasEstimate.Sign() < 0 || f.Rate.Sign() < 0 {
		return fmt.Errorf("%w: negative values", ErrInvalidFeeStructure)
	}
	if f.Max.Cmp(f.Min) <= 0 {
		return fmt.Errorf("%w: max must be greater than min", ErrInvalidFeeStructure)
	}
	if f.Min.Cmp(f.GasEstimate) < 0 {
		return fmt.Errorf("%w: min must cover the gas estimate", ErrInvalidFeeStructure)
	}
	return nil
}

// ValidatorSet is a snapshot of a quorum's membership
type ValidatorSet struct {
	Validators []common.Address `json:"validators"`
	Count      uint64           `json:"count"`
	Threshold  uint64           `json:"threshold"`
	Nonce      uint64           `json:"nonce"`
}
