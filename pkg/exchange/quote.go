package exchange

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"xswap/pkg/ledger"
	"xswap/pkg/types"
)

// Quoter prices one whole unit of src in whole units of dst
type Quoter interface {
	Price(ctx context.Context, src, dst ledger.AssetInfo) (*big.Rat, error)
}

// QuoteAdapter converts at market prices fetched from a Quoter and settles
// against a market maker's inventory account
type QuoteAdapter struct {
	inventory common.Address
	quoter    Quoter
}

// NewQuoteAdapter creates an adapter that prices with quoter
func NewQuoteAdapter(inventory common.Address, quoter Quoter) *QuoteAdapter {
	return &QuoteAdapter{inventory: inventory, quoter: quoter}
}

// Swap implements Adapter
func (a *QuoteAdapter) Swap(ctx context.Context, l *ledger.Ledger, payer common.Address, desc types.SwapDescription, _ []byte) (*big.Int, error) {
	src, err := l.Asset(desc.SrcAsset)
	if err != nil {
		return nil, err
	}
	dst, err := l.Asset(desc.DstAsset)
	if err != nil {
		return nil, err
	}

	price, err := a.quoter.Price(ctx, *src, *dst)
	if err != nil {
		return nil, fmt.Errorf("failed to price %s -> %s: %w", src.Symbol, dst.Symbol, err)
	}
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, src.Symbol, dst.Symbol)
	}

	// Rescale whole-unit price to base units
	rate := new(big.Rat).Mul(price, new(big.Rat).SetFrac(pow10(dst.Decimals), pow10(src.Decimals)))
	out := applyRate(desc.Amount, rate)

	if err := settle(l, a.inventory, payer, desc, out); err != nil {
		return nil, err
	}
	return out, nil
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
