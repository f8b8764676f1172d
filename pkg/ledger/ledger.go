package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"xswap/pkg/store"
	"xswap/pkg/types"
)

var (
	assetPrefix   = []byte("lg/asset/")
	balancePrefix = []byte("lg/bal/")
)

// AssetInfo describes a registered asset
type AssetInfo struct {
	Asset    common.Address `json:"asset"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// Ledger keeps per-account asset balances. It is bound to one store
// transaction, so its writes commit or roll back with the caller's.
type Ledger struct {
	tx *store.Tx
}

// New binds a ledger to tx
func New(tx *store.Tx) *Ledger {
	return &Ledger{tx: tx}
}

// RegisterAsset adds an asset that balances can be held in
func (l *Ledger) RegisterAsset(info AssetInfo) error {
	key := store.Key(assetPrefix, info.Asset.Bytes())
	exists, err := l.tx.Has(key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("asset %s already registered", info.Asset.Hex())
	}
	return l.tx.PutRLP(key, &info)
}

// Asset returns the registration of asset
func (l *Ledger) Asset(asset common.Address) (*AssetInfo, error) {
	var info AssetInfo
	err := l.tx.GetRLP(store.Key(assetPrefix, asset.Bytes()), &info)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownAsset, asset.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Assets lists every registered asset
func (l *Ledger) Assets() ([]AssetInfo, error) {
	assets := make([]AssetInfo, 0)
	err := l.tx.Iterate(assetPrefix, func(_, value []byte) error {
		var info AssetInfo
		if err := store.Decode(value, &info); err != nil {
			return err
		}
		assets = append(assets, info)
		return nil
	})
	return assets, err
}

// BalanceOf returns account's balance of asset
func (l *Ledger) BalanceOf(asset, account common.Address) (*big.Int, error) {
	if _, err := l.Asset(asset); err != nil {
		return nil, err
	}
	return l.tx.GetBig(balanceKey(asset, account))
}

// Transfer moves amount of asset from one account to another
func (l *Ledger) Transfer(asset, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return types.ErrInvalidAmount
	}
	if amount.Sign() == 0 || from == to {
		_, err := l.Asset(asset)
		return err
	}

	fromBal, err := l.BalanceOf(asset, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s of %s, needs %s",
			types.ErrInsufficientBalance, from.Hex(), fromBal, asset.Hex(), amount)
	}
	toBal, err := l.tx.GetBig(balanceKey(asset, to))
	if err != nil {
		return err
	}

	if err := l.tx.PutBig(balanceKey(asset, from), fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	return l.tx.PutBig(balanceKey(asset, to), toBal.Add(toBal, amount))
}

// Mint credits amount of asset to an account
func (l *Ledger) Mint(asset, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return types.ErrInvalidAmount
	}
	bal, err := l.BalanceOf(asset, to)
	if err != nil {
		return err
	}
	return l.tx.PutBig(balanceKey(asset, to), bal.Add(bal, amount))
}

// Burn debits amount of asset from an account
func (l *Ledger) Burn(asset, from common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return types.ErrInvalidAmount
	}
	bal, err := l.BalanceOf(asset, from)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: burn %s from %s", types.ErrInsufficientBalance, amount, from.Hex())
	}
	return l.tx.PutBig(balanceKey(asset, from), bal.Sub(bal, amount))
}

func balanceKey(asset, account common.Address) []byte {
	return store.Key(balancePrefix, asset.Bytes(), account.Bytes())
}
