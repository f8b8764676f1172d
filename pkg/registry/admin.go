package registry

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"xswap/pkg/store"
	"xswap/pkg/types"
)

// Initialize grants admin the admin role. It can only run once.
func (r *Registry) Initialize(admin common.Address) error {
	if admin == (common.Address{}) {
		return types.ErrZeroAddress
	}
	err := r.store.Update(func(tx *store.Tx) error {
		done, err := tx.GetBool(initKey)
		if err != nil {
			return err
		}
		if done {
			return types.ErrAlreadyInit
		}
		if err := tx.PutBool(initKey, true); err != nil {
			return err
		}
		return tx.PutBool(roleKey(RoleAdmin, admin), true)
	})
	if err != nil {
		return err
	}
	r.log.Info("registry initialized", zap.String("admin", admin.Hex()))
	return nil
}

// GrantRole gives account role
func (r *Registry) GrantRole(call Call, role string, account common.Address) error {
	return r.admin("grant_role", call, func(tx *store.Tx) error {
		if role != RoleAdmin && role != RoleWorker {
			return fmt.Errorf("%w: unknown role %q", types.ErrUnauthorized, role)
		}
		return tx.PutBool(roleKey(role, account), true)
	}, zap.String("role", role), zap.String("account", account.Hex()))
}

// RevokeRole takes role away from account
func (r *Registry) RevokeRole(call Call, role string, account common.Address) error {
	return r.admin("revoke_role", call, func(tx *store.Tx) error {
		return tx.PutBool(roleKey(role, account), false)
	}, zap.String("role", role), zap.String("account", account.Hex()))
}

// SetFeeStructure configures fees for swaps of asset settled on chainID
func (r *Registry) SetFeeStructure(call Call, chainID uint64, asset common.Address, fs types.FeeStructure) error {
	return r.admin("set_fee_structure", call, func(tx *store.Tx) error {
		if err := fs.Validate(); err != nil {
			return err
		}
		fs.IsSet = true
		return tx.PutRLP(feeKey(chainID, asset), &fs)
	}, zap.Uint64("fee_chain", chainID), zap.String("asset", asset.Hex()))
}

// SetSupportedAsset allows asset as a pool asset with a cap on single swaps
func (r *Registry) SetSupportedAsset(call Call, asset common.Address, maxAmount *big.Int) error {
	return r.admin("set_supported_asset", call, func(tx *store.Tx) error {
		if maxAmount == nil || maxAmount.Sign() <= 0 {
			return types.ErrInvalidAmount
		}
		return tx.Put(store.Key(assetPrefix, asset.Bytes()), maxAmount.Bytes())
	}, zap.String("asset", asset.Hex()), zap.Stringer("max", maxAmount))
}

// RemoveSupportedAsset stops accepting asset as a pool asset
func (r *Registry) RemoveSupportedAsset(call Call, asset common.Address) error {
	return r.admin("remove_supported_asset", call, func(tx *store.Tx) error {
		return tx.Delete(store.Key(assetPrefix, asset.Bytes()))
	}, zap.String("asset", asset.Hex()))
}

// SetAdapter adds or removes adapter from the whitelist
func (r *Registry) SetAdapter(call Call, adapter common.Address, allowed bool) error {
	return r.admin("set_adapter", call, func(tx *store.Tx) error {
		return tx.PutBool(store.Key(adapterPrefix, adapter.Bytes()), allowed)
	}, zap.String("adapter", adapter.Hex()), zap.Bool("allowed", allowed))
}

// SetPaused pauses or unpauses swap and closeSwap
func (r *Registry) SetPaused(call Call, paused bool) error {
	return r.admin("set_paused", call, func(tx *store.Tx) error {
		return tx.PutBool(pausedKey, paused)
	}, zap.Bool("paused", paused))
}

// SetAccepting toggles whether new swap requests are accepted
func (r *Registry) SetAccepting(call Call, accepting bool) error {
	return r.admin("set_accepting", call, func(tx *store.Tx) error {
		return tx.PutBool(acceptKey, accepting)
	}, zap.Bool("accepting", accepting))
}

// SetStartSwapID sets the first swap id. It can only be set once, before
// any swap has been requested.
func (r *Registry) SetStartSwapID(call Call, id uint64) error {
	return r.admin("set_start_swap_id", call, func(tx *store.Tx) error {
		set, err := tx.GetBool(startSetKey)
		if err != nil {
			return err
		}
		next, err := tx.GetUint64(nextSwapIDKey)
		if err != nil {
			return err
		}
		start, err := tx.GetUint64(startSwapIDKey)
		if err != nil {
			return err
		}
		if set || next != start {
			return types.ErrStartIDAlreadySet
		}
		if err := tx.PutBool(startSetKey, true); err != nil {
			return err
		}
		if err := tx.PutUint64(startSwapIDKey, id); err != nil {
			return err
		}
		return tx.PutUint64(nextSwapIDKey, id)
	}, zap.Uint64("start_swap_id", id))
}

// WithdrawFees pays the vault's accrued fees for asset to receiver
func (r *Registry) WithdrawFees(call Call, asset, receiver common.Address) (paid *big.Int, err error) {
	err = r.admin("withdraw_fees", call, func(tx *store.Tx) error {
		var err error
		paid, err = r.vault.WithdrawFees(tx, asset, receiver)
		return err
	}, zap.String("asset", asset.Hex()), zap.String("receiver", receiver.Hex()))
	return paid, err
}

func (r *Registry) admin(op string, call Call, fn func(tx *store.Tx) error, fields ...zap.Field) (err error) {
	defer func(start time.Time) { r.observe(op, start, err) }(time.Now())

	err = r.store.Update(func(tx *store.Tx) error {
		if err := r.authorize(tx, call.Caller, RoleAdmin); err != nil {
			return err
		}
		return fn(tx)
	})
	if err != nil {
		return err
	}
	r.log.Info(op, append(fields, zap.String("by", call.Caller.Hex()))...)
	return nil
}
