package registry

import (
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"xswap/pkg/exchange"
	"xswap/pkg/metrics"
	"xswap/pkg/store"
	"xswap/pkg/types"
	"xswap/pkg/vault"
)

// Roles
const (
	RoleAdmin  = "admin"
	RoleWorker = "worker"
)

var (
	nextSwapIDKey  = []byte("xs/meta/next")
	startSwapIDKey = []byte("xs/meta/start")
	startSetKey    = []byte("xs/meta/start_set")
	pausedKey      = []byte("xs/meta/paused")
	acceptKey      = []byte("xs/meta/accept")
	initKey        = []byte("xs/meta/init")
	swapPrefix     = []byte("xs/swap/")
	closePrefix    = []byte("xs/close/")
	feePrefix      = []byte("xs/fee/")
	assetPrefix    = []byte("xs/asset/")
	adapterPrefix  = []byte("xs/adaptor/")
	rolePrefix     = []byte("xs/role/")
)

// Call is the authorization context of a registry call: who is calling and
// how much native value they attached
type Call struct {
	Caller common.Address
	Value  *big.Int
}

// Verifier checks quorum signatures inside a registry transaction
type Verifier interface {
	Address() common.Address
	Verify(tx *store.Tx, hash common.Hash, sigs [][]byte) error
}

// Config configures a Registry
type Config struct {
	Address  common.Address
	ChainID  uint64
	Store    *store.Store
	Quorum   Verifier
	Vault    *vault.Vault
	Adapters *exchange.Directory
	Bus      evbus.Bus
	Metrics  *metrics.Metrics
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Registry is the settlement registry of one chain. On the source chain it
// records swap requests and releases or refunds them on quorum attestation;
// on the target chain it fulfils remote requests exactly once.
//
// Callers must serialize calls; the registry only rejects calls that re-enter
// it while another call is in progress.
type Registry struct {
	address  common.Address
	chainID  uint64
	store    *store.Store
	quorum   Verifier
	vault    *vault.Vault
	adapters *exchange.Directory
	bus      evbus.Bus
	metrics  *metrics.Metrics
	clock    func() time.Time
	log      *zap.Logger

	busy atomic.Bool
}

// New creates a registry
func New(cfg Config) *Registry {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	adapters := cfg.Adapters
	if adapters == nil {
		adapters = exchange.NewDirectory()
	}

	return &Registry{
		address:  cfg.Address,
		chainID:  cfg.ChainID,
		store:    cfg.Store,
		quorum:   cfg.Quorum,
		vault:    cfg.Vault,
		adapters: adapters,
		bus:      cfg.Bus,
		metrics:  cfg.Metrics,
		clock:    clock,
		log:      log.Named("registry").With(zap.Uint64("chain", cfg.ChainID)),
	}
}

// Address returns the registry's identity
func (r *Registry) Address() common.Address {
	return r.address
}

// ChainID returns the chain the registry lives on
func (r *Registry) ChainID() uint64 {
	return r.chainID
}

// QuorumAddress returns the identity of the quorum bound into attestations
func (r *Registry) QuorumAddress() common.Address {
	return r.quorum.Address()
}

// Adapters returns the adapter directory
func (r *Registry) Adapters() *exchange.Directory {
	return r.adapters
}

// enter takes the reentrancy guard. The returned func releases it.
func (r *Registry) enter() (func(), error) {
	if !r.busy.CompareAndSwap(false, true) {
		return nil, types.ErrReentrantCall
	}
	return func() { r.busy.Store(false) }, nil
}

// authorize is the single capability check: caller must hold role
func (r *Registry) authorize(tx *store.Tx, caller common.Address, role string) error {
	ok, err := tx.GetBool(roleKey(role, caller))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s lacks %s", types.ErrUnauthorized, caller.Hex(), role)
	}
	return nil
}

func (r *Registry) requireNotPaused(tx *store.Tx) error {
	paused, err := tx.GetBool(pausedKey)
	if err != nil {
		return err
	}
	if paused {
		return types.ErrPaused
	}
	return nil
}

func (r *Registry) publish(topic string, ev interface{}) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(topic, ev)
}

func (r *Registry) observe(op string, started time.Time, err error) {
	r.metrics.ObserveOperation(r.chainID, op, started, err)
	if err != nil {
		r.log.Debug("operation rejected", zap.String("op", op), zap.String("reason", types.ReasonCode(err)), zap.Error(err))
	}
}

// loadSwap returns the request with id, rejecting ids outside [start, next)
func loadSwap(tx *store.Tx, id uint64) (*types.SwapRequest, error) {
	start, err := tx.GetUint64(startSwapIDKey)
	if err != nil {
		return nil, err
	}
	next, err := tx.GetUint64(nextSwapIDKey)
	if err != nil {
		return nil, err
	}
	if id < start || id >= next {
		return nil, fmt.Errorf("%w: %d not in [%d, %d)", types.ErrSwapNotFound, id, start, next)
	}

	var req types.SwapRequest
	if err := tx.GetRLP(swapKey(id), &req); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", types.ErrSwapNotFound, id)
		}
		return nil, err
	}
	return &req, nil
}

func loadOpenSwap(tx *store.Tx, id uint64) (*types.SwapRequest, error) {
	req, err := loadSwap(tx, id)
	if err != nil {
		return nil, err
	}
	if !req.IsOpen() {
		return nil, fmt.Errorf("%w: %d", types.ErrSwapClosed, id)
	}
	return req, nil
}

func loadFee(tx *store.Tx, chainID uint64, asset common.Address) (*types.FeeStructure, error) {
	var fs types.FeeStructure
	err := tx.GetRLP(feeKey(chainID, asset), &fs)
	if errors.Is(err, store.ErrNotFound) {
		return &types.FeeStructure{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &fs, nil
}

// maxSwapAmount returns the cap for asset, or ErrAssetNotSupported
func maxSwapAmount(tx *store.Tx, asset common.Address) (*big.Int, error) {
	raw, err := tx.Get(store.Key(assetPrefix, asset.Bytes()))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", types.ErrAssetNotSupported, asset.Hex())
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

func adapterAllowed(tx *store.Tx, id common.Address) error {
	ok, err := tx.GetBool(store.Key(adapterPrefix, id.Bytes()))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrAdapterNotAllowed, id.Hex())
	}
	return nil
}

func swapKey(id uint64) []byte {
	return store.Key(swapPrefix, store.Uint64(id))
}

func closeKey(fromChainID, fromSwapID uint64) []byte {
	return store.Key(closePrefix, store.Uint64(fromChainID), store.Uint64(fromSwapID))
}

func feeKey(chainID uint64, asset common.Address) []byte {
	return store.Key(feePrefix, store.Uint64(chainID), asset.Bytes())
}

func roleKey(role string, account common.Address) []byte {
	return store.Key(rolePrefix, []byte(role), []byte("/"), account.Bytes())
}
