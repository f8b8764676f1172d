package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"xswap/pkg/ledger"
	"xswap/pkg/registry"
	"xswap/pkg/store"
	"xswap/pkg/types"
)

// Genesis is the initial state of a chain
type Genesis struct {
	Admin       common.Address
	Workers     []common.Address
	Validators  []common.Address
	Threshold   uint64
	StartSwapID uint64
	Assets      []AssetGenesis
	Fees        []FeeGenesis
	Adapters    []common.Address
	Balances    []BalanceGenesis
	Liquidity   []BalanceGenesis // deposited into the vault by Account
}

// AssetGenesis registers an asset in the ledger. A non-nil MaxSwapAmount
// also makes it a pool asset.
type AssetGenesis struct {
	ledger.AssetInfo
	MaxSwapAmount *big.Int
}

// FeeGenesis configures fees for swaps of Asset settled on ChainID
type FeeGenesis struct {
	ChainID uint64
	Asset   common.Address
	Fee     types.FeeStructure
}

// BalanceGenesis is an initial balance
type BalanceGenesis struct {
	Asset   common.Address
	Account common.Address
	Amount  *big.Int
}

// Bootstrap applies g to a fresh chain. A chain whose quorum is already
// initialized is left as it is.
func (c *Chain) Bootstrap(g Genesis) error {
	set, err := c.quorum.ValidatorSet()
	if err != nil {
		return err
	}
	if set.Count > 0 {
		c.log.Info("chain already bootstrapped", zap.Uint64("validators", set.Count))
		return nil
	}

	// Ledger
	err = c.update(func(tx *store.Tx) error {
		l := ledger.New(tx)
		for _, a := range g.Assets {
			if err := l.RegisterAsset(a.AssetInfo); err != nil {
				return err
			}
		}
		for _, b := range g.Balances {
			if err := l.Mint(b.Asset, b.Account, b.Amount); err != nil {
				return fmt.Errorf("mint %s to %s: %w", b.Asset.Hex(), b.Account.Hex(), err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to bootstrap ledger: %w", err)
	}

	for _, lp := range g.Liquidity {
		if err := c.Deposit(lp.Account, lp.Asset, lp.Amount); err != nil {
			return fmt.Errorf("failed to seed vault: %w", err)
		}
	}

	if err := c.quorum.Initialize(g.Validators, g.Threshold); err != nil {
		return fmt.Errorf("failed to initialize quorum: %w", err)
	}

	err = c.Execute(func(r *registry.Registry) error {
		if err := r.Initialize(g.Admin); err != nil {
			return err
		}

		as := registry.Call{Caller: g.Admin}
		for _, w := range g.Workers {
			if err := r.GrantRole(as, registry.RoleWorker, w); err != nil {
				return err
			}
		}
		for _, a := range g.Assets {
			if a.MaxSwapAmount == nil {
				continue
			}
			if err := r.SetSupportedAsset(as, a.Asset, a.MaxSwapAmount); err != nil {
				return err
			}
		}
		for _, f := range g.Fees {
			if err := r.SetFeeStructure(as, f.ChainID, f.Asset, f.Fee); err != nil {
				return fmt.Errorf("fee for chain %d asset %s: %w", f.ChainID, f.Asset.Hex(), err)
			}
		}
		for _, id := range g.Adapters {
			if err := r.SetAdapter(as, id, true); err != nil {
				return err
			}
		}
		if g.StartSwapID > 0 {
			if err := r.SetStartSwapID(as, g.StartSwapID); err != nil {
				return err
			}
		}
		return r.SetAccepting(as, true)
	})
	if err != nil {
		return fmt.Errorf("failed to configure registry: %w", err)
	}

	c.log.Info("chain bootstrapped",
		zap.Int("assets", len(g.Assets)),
		zap.Int("validators", len(g.Validators)),
		zap.Uint64("threshold", g.Threshold))
	return nil
}
