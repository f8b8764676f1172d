package registry

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"xswap/pkg/ledger"
	"xswap/pkg/store"
	"xswap/pkg/types"
	"xswap/pkg/vault"
)

// Status is a snapshot of the registry's switches and id range
type Status struct {
	ChainID     uint64         `json:"chain_id"`
	Address     common.Address `json:"address"`
	Quorum      common.Address `json:"quorum"`
	StartSwapID uint64         `json:"start_swap_id"`
	NextSwapID  uint64         `json:"next_swap_id"`
	Paused      bool           `json:"paused"`
	Accepting   bool           `json:"accepting"`
}

// Status returns the current switches and id range
func (r *Registry) Status() (*Status, error) {
	st := &Status{ChainID: r.chainID, Address: r.address, Quorum: r.quorum.Address()}
	err := r.view(func(tx *store.Tx) error {
		var err error
		if st.StartSwapID, err = tx.GetUint64(startSwapIDKey); err != nil {
			return err
		}
		if st.NextSwapID, err = tx.GetUint64(nextSwapIDKey); err != nil {
			return err
		}
		if st.Paused, err = tx.GetBool(pausedKey); err != nil {
			return err
		}
		st.Accepting, err = tx.GetBool(acceptKey)
		return err
	})
	return st, err
}

// GetSwap returns the request with id
func (r *Registry) GetSwap(id uint64) (*types.SwapRequest, error) {
	var req *types.SwapRequest
	err := r.view(func(tx *store.Tx) error {
		var err error
		req, err = loadSwap(tx, id)
		return err
	})
	return req, err
}

// Swaps returns up to limit requests starting at id from, in id order
func (r *Registry) Swaps(from uint64, limit int) ([]types.SwapRequest, error) {
	out := make([]types.SwapRequest, 0)
	err := r.view(func(tx *store.Tx) error {
		start, err := tx.GetUint64(startSwapIDKey)
		if err != nil {
			return err
		}
		next, err := tx.GetUint64(nextSwapIDKey)
		if err != nil {
			return err
		}
		if from < start {
			from = start
		}
		for id := from; id < next && len(out) < limit; id++ {
			req, err := loadSwap(tx, id)
			if err != nil {
				return err
			}
			out = append(out, *req)
		}
		return nil
	})
	return out, err
}

// GetCloseRecord returns the close record of a remote swap, or nil if it was
// never closed here
func (r *Registry) GetCloseRecord(fromChainID, fromSwapID uint64) (*types.CloseRecord, error) {
	var rec *types.CloseRecord
	err := r.view(func(tx *store.Tx) error {
		var c types.CloseRecord
		err := tx.GetRLP(closeKey(fromChainID, fromSwapID), &c)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		rec = &c
		return nil
	})
	return rec, err
}

// EverClosed reports whether a remote swap has a close record
func (r *Registry) EverClosed(fromChainID, fromSwapID uint64) (bool, error) {
	rec, err := r.GetCloseRecord(fromChainID, fromSwapID)
	return rec != nil, err
}

// FeeStructure returns the fees for asset settled on chainID. IsSet is false
// when none are configured.
func (r *Registry) FeeStructure(chainID uint64, asset common.Address) (*types.FeeStructure, error) {
	var fs *types.FeeStructure
	err := r.view(func(tx *store.Tx) error {
		var err error
		fs, err = loadFee(tx, chainID, asset)
		return err
	})
	return fs, err
}

// MaxSwapAmount returns the single-swap cap for a supported pool asset
func (r *Registry) MaxSwapAmount(asset common.Address) (*big.Int, error) {
	var amount *big.Int
	err := r.view(func(tx *store.Tx) error {
		var err error
		amount, err = maxSwapAmount(tx, asset)
		return err
	})
	return amount, err
}

// HasRole reports whether account holds role
func (r *Registry) HasRole(role string, account common.Address) (bool, error) {
	var ok bool
	err := r.view(func(tx *store.Tx) error {
		var err error
		ok, err = tx.GetBool(roleKey(role, account))
		return err
	})
	return ok, err
}

// AdapterAllowed reports whether adapter is whitelisted
func (r *Registry) AdapterAllowed(adapter common.Address) (bool, error) {
	var ok bool
	err := r.view(func(tx *store.Tx) error {
		var err error
		ok, err = tx.GetBool(store.Key(adapterPrefix, adapter.Bytes()))
		return err
	})
	return ok, err
}

// BalanceOf returns account's ledger balance of asset on this chain
func (r *Registry) BalanceOf(asset, account common.Address) (*big.Int, error) {
	var bal *big.Int
	err := r.view(func(tx *store.Tx) error {
		var err error
		bal, err = ledger.New(tx).BalanceOf(asset, account)
		return err
	})
	return bal, err
}

// Assets lists the assets registered in this chain's ledger
func (r *Registry) Assets() ([]ledger.AssetInfo, error) {
	var assets []ledger.AssetInfo
	err := r.view(func(tx *store.Tx) error {
		var err error
		assets, err = ledger.New(tx).Assets()
		return err
	})
	return assets, err
}

// Accrued returns the vault's uncollected fees for asset
func (r *Registry) Accrued(asset common.Address) (*vault.Accrued, error) {
	var acc *vault.Accrued
	err := r.view(func(tx *store.Tx) error {
		var err error
		acc, err = r.vault.Accrued(tx, asset)
		return err
	})
	return acc, err
}

func (r *Registry) view(fn func(tx *store.Tx) error) error {
	return r.store.View(fn)
}
