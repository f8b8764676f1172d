package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"xswap/pkg/store"
	"xswap/pkg/types"
)

var (
	usdc  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenInMemory(zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Update(func(tx *store.Tx) error {
		return New(tx).RegisterAsset(AssetInfo{Asset: usdc, Symbol: "USDC", Decimals: 6})
	}))
	return s
}

func TestTransfer(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update(func(tx *store.Tx) error {
		l := New(tx)
		require.NoError(t, l.Mint(usdc, alice, big.NewInt(100)))
		return l.Transfer(usdc, alice, bob, big.NewInt(40))
	}))

	require.NoError(t, s.View(func(tx *store.Tx) error {
		l := New(tx)
		a, err := l.BalanceOf(usdc, alice)
		require.NoError(t, err)
		b, err := l.BalanceOf(usdc, bob)
		require.NoError(t, err)
		assert.Equal(t, int64(60), a.Int64())
		assert.Equal(t, int64(40), b.Int64())
		return nil
	}))
}

func TestTransferInsufficientBalance(t *testing.T) {
	s := newTestStore(t)

	err := s.Update(func(tx *store.Tx) error {
		l := New(tx)
		require.NoError(t, l.Mint(usdc, alice, big.NewInt(10)))
		return l.Transfer(usdc, alice, bob, big.NewInt(11))
	})
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
	assert.Equal(t, "insufficient_balance", types.ReasonCode(err))

	// the mint in the failed transaction is gone too
	require.NoError(t, s.View(func(tx *store.Tx) error {
		a, err := New(tx).BalanceOf(usdc, alice)
		require.NoError(t, err)
		assert.Zero(t, a.Sign())
		return nil
	}))
}

func TestUnknownAsset(t *testing.T) {
	s := newTestStore(t)
	other := common.HexToAddress("0x9999999999999999999999999999999999999999")

	require.NoError(t, s.View(func(tx *store.Tx) error {
		_, err := New(tx).BalanceOf(other, alice)
		assert.ErrorIs(t, err, types.ErrUnknownAsset)
		return nil
	}))
}

func TestRegisterAssetTwice(t *testing.T) {
	s := newTestStore(t)

	err := s.Update(func(tx *store.Tx) error {
		return New(tx).RegisterAsset(AssetInfo{Asset: usdc, Symbol: "USDC", Decimals: 6})
	})
	require.Error(t, err)

	require.NoError(t, s.View(func(tx *store.Tx) error {
		assets, err := New(tx).Assets()
		require.NoError(t, err)
		require.Len(t, assets, 1)
		assert.Equal(t, "USDC", assets[0].Symbol)
		return nil
	}))
}

func TestBurn(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update(func(tx *store.Tx) error {
		l := New(tx)
		require.NoError(t, l.Mint(usdc, alice, big.NewInt(5)))
		require.ErrorIs(t, l.Burn(usdc, alice, big.NewInt(6)), types.ErrInsufficientBalance)
		return l.Burn(usdc, alice, big.NewInt(5))
	}))
}
