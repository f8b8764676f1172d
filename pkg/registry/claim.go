package registry

import (
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

// Claim closes an Open request after the quorum attests it was fulfilled on
// the target chain, moving its pool asset and fees into the vault.
func (r *Registry) Claim(swapID uint64, sigs [][]byte) (req *types.SwapRequest, err error) {
	defer func(start time.Time) { r.observe("claim", start, err) }(time.Now())

	release, err := r.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	err = r.store.Update(func(tx *store.Tx) error {
		var err error
		if req, err = loadOpenSwap(tx, swapID); err != nil {
			return err
		}

		hash := attest.ClaimHash(r.address, r.quorum.Address(), r.chainID, swapID)
		if err := r.quorum.Verify(tx, hash, sigs); err != nil {
			return err
		}

		req.Status = types.StatusClosed
		if err := tx.PutRLP(swapKey(swapID), req); err != nil {
			return err
		}
		return r.vault.ReceiveFromSettlement(tx, req.PoolAsset, req.NetAmount(), req.ProtocolFee, req.GasFee)
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("swap claimed", zap.Uint64("swap_id", swapID), zap.Stringer("amount", req.PoolAssetAmount))
	r.metrics.Settled(r.chainID, "claim", 1)
	r.publish(types.TopicSwapClaimed, types.SwapClaimedEvent{
		ChainID:     r.chainID,
		SwapID:      swapID,
		PoolAsset:   req.PoolAsset,
		Amount:      req.NetAmount(),
		ProtocolFee: new(big.Int).Set(req.ProtocolFee),
		GasFee:      new(big.Int).Set(req.GasFee),
	})
	return req, nil
}

// BatchClaim closes every request in swapIDs at once. All of them must be
// Open and hold poolAsset; the vault is credited once with the sums. Any
// failure leaves every id untouched.
func (r *Registry) BatchClaim(swapIDs []uint64, poolAsset common.Address, sigs [][]byte) (ev *types.BatchClaimedEvent, err error) {
	defer func(start time.Time) { r.observe("batch_claim", start, err) }(time.Now())

	if len(swapIDs) == 0 {
		return nil, types.ErrEmptyBatch
	}

	release, err := r.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	ev = &types.BatchClaimedEvent{
		ChainID:     r.chainID,
		SwapIDs:     append([]uint64(nil), swapIDs...),
		PoolAsset:   poolAsset,
		Amount:      new(big.Int),
		ProtocolFee: new(big.Int),
		GasFee:      new(big.Int),
	}

	err = r.store.Update(func(tx *store.Tx) error {
		hash := attest.BatchClaimHash(r.address, r.quorum.Address(), r.chainID, poolAsset, swapIDs)
		if err := r.quorum.Verify(tx, hash, sigs); err != nil {
			return err
		}

		for _, id := range swapIDs {
			// A repeated id fails here: its first occurrence already closed it
			req, err := loadOpenSwap(tx, id)
			if err != nil {
				return err
			}
			if req.PoolAsset != poolAsset {
				return fmt.Errorf("%w: swap %d holds %s", types.ErrAssetMismatch, id, req.PoolAsset.Hex())
			}

			req.Status = types.StatusClosed
			if err := tx.PutRLP(swapKey(id), req); err != nil {
				return err
			}
			ev.Amount.Add(ev.Amount, req.NetAmount())
			ev.ProtocolFee.Add(ev.ProtocolFee, req.ProtocolFee)
			ev.GasFee.Add(ev.GasFee, req.GasFee)
		}

		return r.vault.ReceiveFromSettlement(tx, poolAsset, ev.Amount, ev.ProtocolFee, ev.GasFee)
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("batch claimed", zap.Int("swaps", len(swapIDs)), zap.Stringer("amount", ev.Amount))
	r.metrics.Settled(r.chainID, "batch_claim", len(swapIDs))
	r.publish(types.TopicBatchClaimed, *ev)
	return ev, nil
}

// Refund closes an Open request the quorum judged unfulfillable. The sender
// gets the pool amount minus the local gas estimate recorded when the request
// was made, which goes to gasFeeReceiver.
func (r *Registry) Refund(swapID uint64, gasFeeReceiver common.Address, sigs [][]byte) (ev *types.SwapRefundedEvent, err error) {
	defer func(start time.Time) { r.observe("refund", start, err) }(time.Now())

	release, err := r.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	err = r.store.Update(func(tx *store.Tx) error {
		req, err := loadOpenSwap(tx, swapID)
		if err != nil {
			return err
		}

		hash := attest.RefundHash(r.address, r.quorum.Address(), r.chainID, swapID, gasFeeReceiver)
		if err := r.quorum.Verify(tx, hash, sigs); err != nil {
			return err
		}

		gas := new(big.Int)
		if req.RefundGasFee != nil {
			gas.Set(req.RefundGasFee)
		}
		if gasFeeReceiver == (common.Address{}) && gas.Sign() > 0 {
			return types.ErrZeroAddress
		}
		amount := new(big.Int).Sub(req.PoolAssetAmount, gas)

		req.Status = types.StatusClosed
		if err := tx.PutRLP(swapKey(swapID), req); err != nil {
			return err
		}

		l := ledger.New(tx)
		if err := l.Transfer(req.PoolAsset, r.address, req.Sender, amount); err != nil {
			return err
		}
		if err := l.Transfer(req.PoolAsset, r.address, gasFeeReceiver, gas); err != nil {
			return err
		}

		ev = &types.SwapRefundedEvent{
			ChainID:        r.chainID,
			SwapID:         swapID,
			Sender:         req.Sender,
			Amount:         amount,
			GasFeeReceiver: gasFeeReceiver,
			GasFee:         gas,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("swap refunded",
		zap.Uint64("swap_id", swapID),
		zap.Stringer("amount", ev.Amount),
		zap.Stringer("gas_fee", ev.GasFee))
	r.metrics.Settled(r.chainID, "refund", 1)
	r.publish(types.TopicSwapRefunded, *ev)
	return ev, nil
}
