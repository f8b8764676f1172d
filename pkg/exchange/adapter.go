package exchange

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"xswap/pkg/ledger"
	"xswap/pkg/types"
)

var (
	// ErrNoRoute is returned when an adapter can not convert between two assets
	ErrNoRoute = errors.New("no route between assets")

	// ErrReturnTooLow is returned when the conversion would deliver less than
	// the requested minimum
	ErrReturnTooLow = errors.New("return amount below minimum")
)

// Adapter converts one asset into another. Swap pulls desc.Amount of
// desc.SrcAsset from payer and delivers desc.DstAsset to desc.Receiver.
// It must fail rather than deliver less than desc.MinReturnAmount. The
// returned amount is what the adapter claims to have delivered; callers that
// care measure the receiver's balance instead.
type Adapter interface {
	Swap(ctx context.Context, l *ledger.Ledger, payer common.Address, desc types.SwapDescription, data []byte) (*big.Int, error)
}

// AdapterFunc lets an ordinary function act as an Adapter
type AdapterFunc func(ctx context.Context, l *ledger.Ledger, payer common.Address, desc types.SwapDescription, data []byte) (*big.Int, error)

// Swap calls f
func (f AdapterFunc) Swap(ctx context.Context, l *ledger.Ledger, payer common.Address, desc types.SwapDescription, data []byte) (*big.Int, error) {
	return f(ctx, l, payer, desc, data)
}

// Directory resolves adapter identities to implementations. Whether an
// identity may be used is decided by the registry's whitelist, not here.
type Directory struct {
	mu       sync.RWMutex
	adapters map[common.Address]Adapter
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{adapters: make(map[common.Address]Adapter)}
}

// Register binds id to adapter, replacing any previous binding
func (d *Directory) Register(id common.Address, adapter Adapter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.adapters[id] = adapter
}

// Lookup returns the adapter bound to id
func (d *Directory) Lookup(id common.Address) (Adapter, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrAdapterNotAllowed, id.Hex())
	}
	return a, nil
}

// IDs returns every registered identity
func (d *Directory) IDs() []common.Address {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]common.Address, 0, len(d.adapters))
	for id := range d.adapters {
		ids = append(ids, id)
	}
	return ids
}

// settle moves the input to inventory and pays out from it, the way every
// inventory-backed adapter completes a conversion
func settle(l *ledger.Ledger, inventory, payer common.Address, desc types.SwapDescription, delivered *big.Int) error {
	if delivered.Cmp(desc.MinReturnAmount) < 0 {
		return fmt.Errorf("%w: %s < %s", ErrReturnTooLow, delivered, desc.MinReturnAmount)
	}
	if err := l.Transfer(desc.SrcAsset, payer, inventory, desc.Amount); err != nil {
		return fmt.Errorf("pull input: %w", err)
	}
	if err := l.Transfer(desc.DstAsset, inventory, desc.Receiver, delivered); err != nil {
		return fmt.Errorf("pay output: %w", err)
	}
	return nil
}
