package exchange

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"xswap/pkg/ledger"
	"xswap/pkg/types"
)

type pair struct {
	src, dst common.Address
}

// RateAdapter converts at fixed rates against a market maker's inventory
// account. An optional haircut models assets that charge a fee on transfer:
// the receiver gets less than the adapter reports.
type RateAdapter struct {
	inventory  common.Address
	haircutBps int64
	mu         sync.RWMutex
	rates      map[pair]*big.Rat
}

// NewRateAdapter creates an adapter that pays out of inventory
func NewRateAdapter(inventory common.Address) *RateAdapter {
	return &RateAdapter{
		inventory: inventory,
		rates:     make(map[pair]*big.Rat),
	}
}

// Inventory returns the market maker account
func (a *RateAdapter) Inventory() common.Address {
	return a.inventory
}

// SetRate sets how many base units of dst one base unit of src buys
func (a *RateAdapter) SetRate(src, dst common.Address, rate *big.Rat) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rates[pair{src, dst}] = new(big.Rat).Set(rate)
}

// SetHaircut withholds bps basis points of every payout
func (a *RateAdapter) SetHaircut(bps int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.haircutBps = bps
}

// Quote returns the amount Swap would report for amount of src
func (a *RateAdapter) Quote(src, dst common.Address, amount *big.Int) (*big.Int, error) {
	a.mu.RLock()
	rate, ok := a.rates[pair{src, dst}]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, src.Hex(), dst.Hex())
	}
	return applyRate(amount, rate), nil
}

// Swap implements Adapter
func (a *RateAdapter) Swap(_ context.Context, l *ledger.Ledger, payer common.Address, desc types.SwapDescription, _ []byte) (*big.Int, error) {
	out, err := a.Quote(desc.SrcAsset, desc.DstAsset, desc.Amount)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	bps := a.haircutBps
	a.mu.RUnlock()

	delivered := new(big.Int).Set(out)
	if bps > 0 {
		cut := new(big.Int).Mul(out, big.NewInt(bps))
		cut.Div(cut, big.NewInt(10_000))
		delivered.Sub(delivered, cut)
	}

	if err := settle(l, a.inventory, payer, desc, delivered); err != nil {
		return nil, err
	}
	return out, nil
}

func applyRate(amount *big.Int, rate *big.Rat) *big.Int {
	out := new(big.Int).Mul(amount, rate.Num())
	return out.Div(out, rate.Denom())
}
