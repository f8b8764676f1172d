package chain

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"xswap/pkg/exchange"
	"xswap/pkg/ledger"
	"xswap/pkg/metrics"
	"xswap/pkg/quorum"
	"xswap/pkg/registry"
	"xswap/pkg/store"
	"xswap/pkg/vault"
)

// Config describes one chain
type Config struct {
	ID       uint64
	Registry common.Address
	Quorum   common.Address
	Vault    common.Address
	DataDir  string // empty keeps the chain in memory
	Metrics  *metrics.Metrics
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Chain bundles the state and components of one chain: its store, quorum,
// vault, registry, adapter directory and event bus. State-mutating calls go
// through Execute and run one at a time.
type Chain struct {
	mu       sync.Mutex
	id       uint64
	store    *store.Store
	bus      evbus.Bus
	quorum   *quorum.Quorum
	vault    *vault.Vault
	adapters *exchange.Directory
	registry *registry.Registry
	log      *zap.Logger
}

// Open opens the chain's store and wires its components
func Open(cfg Config) (*Chain, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.Uint64("chain", cfg.ID))

	var (
		s   *store.Store
		err error
	)
	if cfg.DataDir == "" {
		s, err = store.OpenInMemory(log)
	} else {
		s, err = store.Open(cfg.DataDir, log)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open chain %d store: %w", cfg.ID, err)
	}

	bus := evbus.New()
	q := quorum.New(quorum.Config{
		Address: cfg.Quorum,
		ChainID: cfg.ID,
		Store:   s,
		Bus:     bus,
		Logger:  log,
	})
	v := vault.New(cfg.Vault, cfg.Registry)
	adapters := exchange.NewDirectory()
	reg := registry.New(registry.Config{
		Address:  cfg.Registry,
		ChainID:  cfg.ID,
		Store:    s,
		Quorum:   q,
		Vault:    v,
		Adapters: adapters,
		Bus:      bus,
		Metrics:  cfg.Metrics,
		Clock:    cfg.Clock,
		Logger:   log,
	})

	return &Chain{
		id:       cfg.ID,
		store:    s,
		bus:      bus,
		quorum:   q,
		vault:    v,
		adapters: adapters,
		registry: reg,
		log:      log.Named("chain"),
	}, nil
}

// ID returns the chain id
func (c *Chain) ID() uint64 {
	return c.id
}

// Bus returns the chain's event bus
func (c *Chain) Bus() evbus.Bus {
	return c.bus
}

// Registry returns the settlement registry for read-only queries. Use
// Execute for calls that change state.
func (c *Chain) Registry() *registry.Registry {
	return c.registry
}

// Quorum returns the chain's validator quorum
func (c *Chain) Quorum() *quorum.Quorum {
	return c.quorum
}

// Vault returns the chain's liquidity vault
func (c *Chain) Vault() *vault.Vault {
	return c.vault
}

// Adapters returns the directory of exchange adapters deployed on the chain
func (c *Chain) Adapters() *exchange.Directory {
	return c.adapters
}

// Execute runs fn with exclusive access to the chain
func (c *Chain) Execute(fn func(r *registry.Registry) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.registry)
}

// ExecuteQuorum runs fn against the quorum with exclusive access to the chain
func (c *Chain) ExecuteQuorum(fn func(q *quorum.Quorum) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.quorum)
}

// Deposit adds provider's liquidity of asset to the vault
func (c *Chain) Deposit(provider, asset common.Address, amount *big.Int) error {
	return c.update(func(tx *store.Tx) error {
		return c.vault.Deposit(tx, provider, asset, amount)
	})
}

// Withdraw returns liquidity of asset to provider
func (c *Chain) Withdraw(provider, asset common.Address, amount *big.Int) error {
	return c.update(func(tx *store.Tx) error {
		return c.vault.Withdraw(tx, provider, asset, amount)
	})
}

// Share returns the liquidity provider has in the vault for asset
func (c *Chain) Share(provider, asset common.Address) (*big.Int, error) {
	var share *big.Int
	err := c.store.View(func(tx *store.Tx) error {
		var err error
		share, err = c.vault.Share(tx, provider, asset)
		return err
	})
	return share, err
}

// Mint credits amount of asset to account. Used by devnet faucets.
func (c *Chain) Mint(asset, account common.Address, amount *big.Int) error {
	return c.update(func(tx *store.Tx) error {
		return ledger.New(tx).Mint(asset, account, amount)
	})
}

// Close closes the chain's store
func (c *Chain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Close()
}

func (c *Chain) update(fn func(tx *store.Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Update(fn)
}
