package vault

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"xswap/pkg/ledger"
	"xswap/pkg/store"
	"xswap/pkg/types"
)

var (
	usdc     = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	vaultAcc = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	registry = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	lp       = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000dd")
)

func setup(t *testing.T) (*store.Store, *Vault) {
	t.Helper()
	s, err := store.OpenInMemory(zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Update(func(tx *store.Tx) error {
		l := ledger.New(tx)
		require.NoError(t, l.RegisterAsset(ledger.AssetInfo{Asset: usdc, Symbol: "USDC", Decimals: 6}))
		return l.Mint(usdc, lp, big.NewInt(1000))
	}))
	return s, New(vaultAcc, registry)
}

func balance(t *testing.T, tx *store.Tx, account common.Address) int64 {
	t.Helper()
	b, err := ledger.New(tx).BalanceOf(usdc, account)
	require.NoError(t, err)
	return b.Int64()
}

func TestDepositWithdraw(t *testing.T) {
	s, v := setup(t)

	require.NoError(t, s.Update(func(tx *store.Tx) error {
		return v.Deposit(tx, lp, usdc, big.NewInt(600))
	}))

	err := s.Update(func(tx *store.Tx) error {
		return v.Withdraw(tx, lp, usdc, big.NewInt(601))
	})
	require.ErrorIs(t, err, types.ErrWithdrawExceedsShare)

	require.NoError(t, s.Update(func(tx *store.Tx) error {
		return v.Withdraw(tx, lp, usdc, big.NewInt(100))
	}))

	require.NoError(t, s.View(func(tx *store.Tx) error {
		assert.Equal(t, int64(500), balance(t, tx, vaultAcc))
		assert.Equal(t, int64(500), balance(t, tx, lp))
		share, err := v.Share(tx, lp, usdc)
		require.NoError(t, err)
		assert.Equal(t, int64(500), share.Int64())
		return nil
	}))
}

func TestSettlementRoundTrip(t *testing.T) {
	s, v := setup(t)

	require.NoError(t, s.Update(func(tx *store.Tx) error {
		require.NoError(t, v.Deposit(tx, lp, usdc, big.NewInt(500)))
		return v.TransferToSettlement(tx, usdc, big.NewInt(200))
	}))

	require.NoError(t, s.Update(func(tx *store.Tx) error {
		return v.ReceiveFromSettlement(tx, usdc, big.NewInt(180), big.NewInt(15), big.NewInt(5))
	}))

	require.NoError(t, s.View(func(tx *store.Tx) error {
		assert.Equal(t, int64(500), balance(t, tx, vaultAcc))
		assert.Zero(t, balance(t, tx, registry))

		acc, err := v.Accrued(tx, usdc)
		require.NoError(t, err)
		assert.Equal(t, int64(15), acc.ProtocolFees.Int64())
		assert.Equal(t, int64(5), acc.GasFees.Int64())
		return nil
	}))

	require.NoError(t, s.Update(func(tx *store.Tx) error {
		paid, err := v.WithdrawFees(tx, usdc, treasury)
		require.NoError(t, err)
		assert.Equal(t, int64(20), paid.Int64())
		return nil
	}))

	require.NoError(t, s.View(func(tx *store.Tx) error {
		assert.Equal(t, int64(20), balance(t, tx, treasury))
		acc, err := v.Accrued(tx, usdc)
		require.NoError(t, err)
		assert.Zero(t, acc.ProtocolFees.Sign())
		return nil
	}))
}

func TestTransferToSettlementEmptyVault(t *testing.T) {
	s, v := setup(t)
	err := s.Update(func(tx *store.Tx) error {
		return v.TransferToSettlement(tx, usdc, big.NewInt(1))
	})
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
}
