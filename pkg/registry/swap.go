package registry

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"xswap/pkg/fee"
	"xswap/pkg/ledger"
	"xswap/pkg/store"
	"xswap/pkg/types"
)

// SwapParams describes what the sender pays in and which pool asset it
// should become
type SwapParams struct {
	Adapter   common.Address `json:"adapter"`
	SrcAsset  common.Address `json:"src_asset"`
	PoolAsset common.Address `json:"pool_asset"`
	AmountIn  *big.Int       `json:"amount_in"`
	Data      []byte         `json:"data"`
}

// Swap records a swap request on the source chain. It pulls AmountIn from
// the caller, converts it into the pool asset when needed and stores an Open
// request priced with the destination chain's fees.
func (r *Registry) Swap(ctx context.Context, call Call, params SwapParams, target types.TargetChainDesc) (req *types.SwapRequest, err error) {
	defer func(start time.Time) { r.observe("swap", start, err) }(time.Now())

	release, err := r.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	err = r.store.Update(func(tx *store.Tx) error {
		var err error
		req, err = r.swap(ctx, tx, call, params, target)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("swap requested",
		zap.Uint64("swap_id", req.SwapID),
		zap.Uint64("to_chain", req.ToChainID),
		zap.String("sender", req.Sender.Hex()),
		zap.String("pool_asset", req.PoolAsset.Hex()),
		zap.Stringer("amount", req.PoolAssetAmount))
	r.publish(types.TopicSwapRequested, types.SwapRequestedEvent{ChainID: r.chainID, Request: *req})
	return req, nil
}

func (r *Registry) swap(ctx context.Context, tx *store.Tx, call Call, params SwapParams, target types.TargetChainDesc) (*types.SwapRequest, error) {
	// Gate
	accepting, err := tx.GetBool(acceptKey)
	if err != nil {
		return nil, err
	}
	if !accepting {
		return nil, types.ErrNotAccepting
	}
	if err := r.requireNotPaused(tx); err != nil {
		return nil, err
	}

	// Validate the request
	if params.AmountIn == nil || params.AmountIn.Sign() <= 0 {
		return nil, types.ErrInvalidAmount
	}
	if target.ToChainID == 0 || target.ToChainID == r.chainID {
		return nil, fmt.Errorf("%w: %d", types.ErrInvalidChain, target.ToChainID)
	}
	if target.Receiver == (common.Address{}) {
		return nil, types.ErrZeroAddress
	}
	maxAmount, err := maxSwapAmount(tx, params.PoolAsset)
	if err != nil {
		return nil, err
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	if params.SrcAsset == types.NativeAsset {
		if value.Cmp(params.AmountIn) != 0 {
			return nil, fmt.Errorf("%w: attached %s, amount %s", types.ErrValueMismatch, value, params.AmountIn)
		}
	} else if value.Sign() != 0 {
		return nil, fmt.Errorf("%w: attached %s to a token swap", types.ErrValueMismatch, value)
	}

	// Pull the input into custody
	l := ledger.New(tx)
	if err := l.Transfer(params.SrcAsset, call.Caller, r.address, params.AmountIn); err != nil {
		return nil, fmt.Errorf("pull input: %w", err)
	}

	// Convert, measuring what actually arrived
	poolAmount := new(big.Int).Set(params.AmountIn)
	if params.SrcAsset != params.PoolAsset {
		poolAmount, err = r.convertInput(ctx, tx, l, params)
		if err != nil {
			return nil, err
		}
	}

	// Bounds and fees
	localFee, err := loadFee(tx, r.chainID, params.PoolAsset)
	if err != nil {
		return nil, err
	}
	destFee, err := loadFee(tx, target.ToChainID, params.PoolAsset)
	if err != nil {
		return nil, err
	}
	minAmount, err := fee.MinSwapAmount(localFee, destFee)
	if err != nil {
		return nil, err
	}
	if poolAmount.Cmp(minAmount) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", types.ErrAmountTooLow, poolAmount, minAmount)
	}
	if poolAmount.Cmp(maxAmount) > 0 {
		return nil, fmt.Errorf("%w: %s > %s", types.ErrAmountTooHigh, poolAmount, maxAmount)
	}
	protocolFee, gasFee, err := fee.Split(destFee, poolAmount)
	if err != nil {
		return nil, err
	}
	// The receiver must be left something to be paid
	if fees := new(big.Int).Add(protocolFee, gasFee); fees.Cmp(poolAmount) >= 0 {
		return nil, fmt.Errorf("%w: fees %s leave nothing of %s", types.ErrAmountTooLow, fees, poolAmount)
	}
	refundGas := new(big.Int).Set(localFee.GasEstimate)
	if refundGas.Cmp(poolAmount) > 0 {
		refundGas.Set(poolAmount)
	}

	// Allocate the id and store the request
	id, err := tx.GetUint64(nextSwapIDKey)
	if err != nil {
		return nil, err
	}
	minReturn := target.MinReturnAmount
	if minReturn == nil {
		minReturn = new(big.Int)
	}
	req := &types.SwapRequest{
		ToChainID:       target.ToChainID,
		SwapID:          id,
		Sender:          call.Caller,
		Receiver:        target.Receiver,
		PoolAsset:       params.PoolAsset,
		PoolAssetAmount: poolAmount,
		ProtocolFee:     protocolFee,
		GasFee:          gasFee,
		DstAsset:        target.DstAsset,
		MinReturnAmount: new(big.Int).Set(minReturn),
		RequestedAt:     uint64(r.clock().Unix()),
		Status:          types.StatusOpen,
		RefundGasFee:    refundGas,
	}
	if err := tx.PutRLP(swapKey(id), req); err != nil {
		return nil, err
	}
	if err := tx.PutUint64(nextSwapIDKey, id+1); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *Registry) convertInput(ctx context.Context, tx *store.Tx, l *ledger.Ledger, params SwapParams) (*big.Int, error) {
	if err := adapterAllowed(tx, params.Adapter); err != nil {
		return nil, err
	}
	adapter, err := r.adapters.Lookup(params.Adapter)
	if err != nil {
		return nil, err
	}

	before, err := l.BalanceOf(params.PoolAsset, r.address)
	if err != nil {
		return nil, err
	}
	_, err = adapter.Swap(ctx, l, r.address, types.SwapDescription{
		SrcAsset:        params.SrcAsset,
		DstAsset:        params.PoolAsset,
		Receiver:        r.address,
		Amount:          params.AmountIn,
		MinReturnAmount: new(big.Int),
	}, params.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrConversionFailed, err)
	}
	after, err := l.BalanceOf(params.PoolAsset, r.address)
	if err != nil {
		return nil, err
	}
	return after.Sub(after, before), nil
}
