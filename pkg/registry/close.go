package registry

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"xswap/pkg/attest"
	"xswap/pkg/ledger"
	"xswap/pkg/store"
	"xswap/pkg/types"
)

// CloseSwap fulfils remote swap (fromChainID, fromSwapID) on this chain. It
// draws desc.Amount of the pool asset desc.SrcAsset from the vault and
// delivers desc.DstAsset to desc.Receiver through adapter.
//
// The close record is reserved before any adapter runs and survives every
// outcome. An adapter that fails, or delivers less than
// desc.MinReturnAmount, has its writes rolled back and the receiver gets the
// pool asset instead; that is reported as OutcomeFailed, not as an error.
func (r *Registry) CloseSwap(ctx context.Context, call Call, adapter common.Address, desc types.SwapDescription, fromChainID, fromSwapID uint64) (rec *types.CloseRecord, err error) {
	defer func(start time.Time) { r.observe("close_swap", start, err) }(time.Now())

	release, err := r.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	var res *closeResult
	err = r.store.Update(func(tx *store.Tx) error {
		var err error
		res, err = r.closeSwap(ctx, tx, call, adapter, desc, fromChainID, fromSwapID)
		return err
	})
	if err != nil {
		return nil, err
	}
	rec = res.record

	fields := []zap.Field{
		zap.Uint64("from_chain", fromChainID),
		zap.Uint64("from_swap_id", fromSwapID),
		zap.Stringer("outcome", rec.Outcome),
		zap.Stringer("amount_out", rec.AmountOut),
	}
	if res.cause != nil {
		r.log.Warn("swap closed with pool asset refund", append(fields, zap.Error(res.cause))...)
	} else {
		r.log.Info("swap closed", fields...)
	}

	r.metrics.CloseOutcome(r.chainID, rec.Outcome)
	r.publish(types.TopicSwapClosed, types.SwapClosedEvent{
		ChainID:     r.chainID,
		FromChainID: fromChainID,
		FromSwapID:  fromSwapID,
		Outcome:     rec.Outcome,
		Receiver:    rec.Receiver,
		DstAsset:    rec.DstAsset,
		AmountOut:   new(big.Int).Set(rec.AmountOut),
	})
	return rec, nil
}

type closeResult struct {
	record *types.CloseRecord
	cause  error // adapter failure absorbed into OutcomeFailed
}

func (r *Registry) closeSwap(ctx context.Context, tx *store.Tx, call Call, adapterID common.Address, desc types.SwapDescription, fromChainID, fromSwapID uint64) (*closeResult, error) {
	if err := r.authorize(tx, call.Caller, RoleWorker); err != nil {
		return nil, err
	}
	if err := r.requireNotPaused(tx); err != nil {
		return nil, err
	}

	// Reserve the remote id before anything external runs
	key := closeKey(fromChainID, fromSwapID)
	closed, err := tx.Has(key)
	if err != nil {
		return nil, err
	}
	if closed {
		return nil, fmt.Errorf("%w: %d/%d", types.ErrAlreadyClosed, fromChainID, fromSwapID)
	}
	rec := &types.CloseRecord{
		FromChainID: fromChainID,
		FromSwapID:  fromSwapID,
		Outcome:     types.OutcomeFailed,
		Receiver:    desc.Receiver,
		DstAsset:    desc.DstAsset,
		AmountOut:   new(big.Int),
		ClosedAt:    uint64(r.clock().Unix()),
	}
	if err := tx.PutRLP(key, rec); err != nil {
		return nil, err
	}

	// Validate the payout
	if desc.Amount == nil || desc.Amount.Sign() <= 0 {
		return nil, types.ErrInvalidAmount
	}
	if desc.Receiver == (common.Address{}) {
		return nil, types.ErrZeroAddress
	}
	if desc.MinReturnAmount == nil {
		desc.MinReturnAmount = new(big.Int)
	}
	maxAmount, err := maxSwapAmount(tx, desc.SrcAsset)
	if err != nil {
		return nil, err
	}
	if desc.Amount.Cmp(maxAmount) > 0 {
		return nil, fmt.Errorf("%w: %s > %s", types.ErrAmountTooHigh, desc.Amount, maxAmount)
	}

	// Draw the pool asset
	if err := r.vault.TransferToSettlement(tx, desc.SrcAsset, desc.Amount); err != nil {
		return nil, err
	}

	l := ledger.New(tx)
	var cause error
	if desc.DstAsset == desc.SrcAsset {
		if err := l.Transfer(desc.SrcAsset, r.address, desc.Receiver, desc.Amount); err != nil {
			return nil, err
		}
		rec.Outcome = types.OutcomeNonSwapped
		rec.AmountOut = new(big.Int).Set(desc.Amount)
	} else {
		if err := adapterAllowed(tx, adapterID); err != nil {
			return nil, err
		}

		sp := tx.Savepoint()
		out, err := r.convertOutput(ctx, l, adapterID, desc)
		if err != nil {
			// The adapter's writes are discarded; the receiver keeps the pool asset
			tx.RollbackTo(sp)
			if err := l.Transfer(desc.SrcAsset, r.address, desc.Receiver, desc.Amount); err != nil {
				return nil, err
			}
			cause = err
			rec.Outcome = types.OutcomeFailed
			rec.AmountOut = new(big.Int).Set(desc.Amount)
		} else {
			rec.Outcome = types.OutcomeSuccess
			rec.AmountOut = out
		}
	}

	if err := tx.PutRLP(key, rec); err != nil {
		return nil, err
	}
	return &closeResult{record: rec, cause: cause}, nil
}

// convertOutput runs the adapter and returns the receiver's balance delta.
// Every failure, including the balance probes, is returned to the caller to
// be absorbed.
func (r *Registry) convertOutput(ctx context.Context, l *ledger.Ledger, adapterID common.Address, desc types.SwapDescription) (*big.Int, error) {
	adapter, err := r.adapters.Lookup(adapterID)
	if err != nil {
		return nil, err
	}

	before, err := l.BalanceOf(desc.DstAsset, desc.Receiver)
	if err != nil {
		return nil, fmt.Errorf("probe destination balance: %w", err)
	}
	if _, err := adapter.Swap(ctx, l, r.address, desc, nil); err != nil {
		return nil, err
	}
	after, err := l.BalanceOf(desc.DstAsset, desc.Receiver)
	if err != nil {
		return nil, fmt.Errorf("probe destination balance: %w", err)
	}

	delta := after.Sub(after, before)
	if delta.Cmp(desc.MinReturnAmount) < 0 {
		return nil, fmt.Errorf("delivered %s, below minimum %s", delta, desc.MinReturnAmount)
	}
	return delta, nil
}

// LockCloseSwap permanently closes remote swap (fromChainID, fromSwapID)
// without moving funds, so no worker can fulfil it afterwards.
func (r *Registry) LockCloseSwap(fromChainID, fromSwapID uint64, sigs [][]byte) (rec *types.CloseRecord, err error) {
	defer func(start time.Time) { r.observe("lock_close_swap", start, err) }(time.Now())

	release, err := r.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	err = r.store.Update(func(tx *store.Tx) error {
		key := closeKey(fromChainID, fromSwapID)
		closed, err := tx.Has(key)
		if err != nil {
			return err
		}
		if closed {
			return fmt.Errorf("%w: %d/%d", types.ErrAlreadyClosed, fromChainID, fromSwapID)
		}

		hash := attest.LockCloseHash(r.address, r.quorum.Address(), r.chainID, fromChainID, fromSwapID)
		if err := r.quorum.Verify(tx, hash, sigs); err != nil {
			return err
		}

		rec = &types.CloseRecord{
			FromChainID: fromChainID,
			FromSwapID:  fromSwapID,
			Outcome:     types.OutcomeLocked,
			AmountOut:   new(big.Int),
			ClosedAt:    uint64(r.clock().Unix()),
		}
		return tx.PutRLP(key, rec)
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("remote swap locked", zap.Uint64("from_chain", fromChainID), zap.Uint64("from_swap_id", fromSwapID))
	r.metrics.CloseOutcome(r.chainID, types.OutcomeLocked)
	r.publish(types.TopicCloseLocked, types.CloseLockedEvent{
		ChainID:     r.chainID,
		FromChainID: fromChainID,
		FromSwapID:  fromSwapID,
	})
	return rec, nil
}
