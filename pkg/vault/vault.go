package vault

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"xswap/pkg/ledger"
	"xswap/pkg/store"
	"xswap/pkg/types"
)

var (
	protocolFeePrefix = []byte("vt/fee/")
	gasFeePrefix      = []byte("vt/gas/")
	sharePrefix       = []byte("vt/share/")
)

// Vault is the pool-asset liquidity pool of one chain. Its holdings are the
// ledger balances of its own address.
type Vault struct {
	Address  common.Address
	Registry common.Address
}

// New creates a vault that serves the registry at registry
func New(address, registry common.Address) *Vault {
	return &Vault{Address: address, Registry: registry}
}

// Accrued holds the fees a vault has collected for one asset
type Accrued struct {
	ProtocolFees *big.Int `json:"protocol_fees"`
	GasFees      *big.Int `json:"gas_fees"`
}

// TransferToSettlement moves amount of asset from the vault to the registry
func (v *Vault) TransferToSettlement(tx *store.Tx, asset common.Address, amount *big.Int) error {
	if err := ledger.New(tx).Transfer(asset, v.Address, v.Registry, amount); err != nil {
		return fmt.Errorf("vault draw: %w", err)
	}
	return nil
}

// ReceiveFromSettlement moves amount plus fees of asset from the registry
// into the vault and books the fees.
func (v *Vault) ReceiveFromSettlement(tx *store.Tx, asset common.Address, amount, protocolFee, gasFee *big.Int) error {
	if amount.Sign() < 0 || protocolFee.Sign() < 0 || gasFee.Sign() < 0 {
		return types.ErrInvalidAmount
	}

	total := new(big.Int).Add(amount, protocolFee)
	total.Add(total, gasFee)
	if err := ledger.New(tx).Transfer(asset, v.Registry, v.Address, total); err != nil {
		return fmt.Errorf("vault credit: %w", err)
	}

	if err := addBig(tx, store.Key(protocolFeePrefix, asset.Bytes()), protocolFee); err != nil {
		return err
	}
	return addBig(tx, store.Key(gasFeePrefix, asset.Bytes()), gasFee)
}

// Deposit adds provider's liquidity to the pool
func (v *Vault) Deposit(tx *store.Tx, provider, asset common.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return types.ErrInvalidAmount
	}
	if err := ledger.New(tx).Transfer(asset, provider, v.Address, amount); err != nil {
		return err
	}
	return addBig(tx, shareKey(asset, provider), amount)
}

// Withdraw returns up to the liquidity provider has deposited
func (v *Vault) Withdraw(tx *store.Tx, provider, asset common.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return types.ErrInvalidAmount
	}

	share, err := tx.GetBig(shareKey(asset, provider))
	if err != nil {
		return err
	}
	if share.Cmp(amount) < 0 {
		return fmt.Errorf("%w: provided %s, requested %s", types.ErrWithdrawExceedsShare, share, amount)
	}

	if err := ledger.New(tx).Transfer(asset, v.Address, provider, amount); err != nil {
		return err
	}
	return tx.PutBig(shareKey(asset, provider), share.Sub(share, amount))
}

// Share returns the liquidity provider has in the pool for asset
func (v *Vault) Share(tx *store.Tx, provider, asset common.Address) (*big.Int, error) {
	return tx.GetBig(shareKey(asset, provider))
}

// Accrued returns the fees collected for asset and not yet withdrawn
func (v *Vault) Accrued(tx *store.Tx, asset common.Address) (*Accrued, error) {
	protocolFees, err := tx.GetBig(store.Key(protocolFeePrefix, asset.Bytes()))
	if err != nil {
		return nil, err
	}
	gasFees, err := tx.GetBig(store.Key(gasFeePrefix, asset.Bytes()))
	if err != nil {
		return nil, err
	}
	return &Accrued{ProtocolFees: protocolFees, GasFees: gasFees}, nil
}

// WithdrawFees pays every accrued fee for asset to receiver and resets the
// counters. It returns the amount paid.
func (v *Vault) WithdrawFees(tx *store.Tx, asset, receiver common.Address) (*big.Int, error) {
	acc, err := v.Accrued(tx, asset)
	if err != nil {
		return nil, err
	}
	total := new(big.Int).Add(acc.ProtocolFees, acc.GasFees)
	if err := ledger.New(tx).Transfer(asset, v.Address, receiver, total); err != nil {
		return nil, err
	}
	if err := tx.PutBig(store.Key(protocolFeePrefix, asset.Bytes()), new(big.Int)); err != nil {
		return nil, err
	}
	if err := tx.PutBig(store.Key(gasFeePrefix, asset.Bytes()), new(big.Int)); err != nil {
		return nil, err
	}
	return total, nil
}

func shareKey(asset, provider common.Address) []byte {
	return store.Key(sharePrefix, asset.Bytes(), provider.Bytes())
}

func addBig(tx *store.Tx, key []byte, delta *big.Int) error {
	cur, err := tx.GetBig(key)
	if err != nil {
		return err
	}
	return tx.PutBig(key, cur.Add(cur, delta))
}
