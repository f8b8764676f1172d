package registry

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xswap/pkg/attest"
	"xswap/pkg/exchange"
	"xswap/pkg/ledger"
	"xswap/pkg/types"
)

func payout(dst common.Address, amount, minReturn int64) types.SwapDescription {
	return types.SwapDescription{
		SrcAsset:        usdc,
		DstAsset:        dst,
		Receiver:        bob,
		Amount:          big.NewInt(amount),
		MinReturnAmount: big.NewInt(minReturn),
	}
}

func (f *fixture) close(adapter common.Address, desc types.SwapDescription, fromSwapID uint64) (*types.CloseRecord, error) {
	return f.reg.CloseSwap(context.Background(), Call{Caller: worker}, adapter, desc, remoteChain, fromSwapID)
}

func TestCloseSwapNonSwapped(t *testing.T) {
	f := newFixture(t)

	var events []types.SwapClosedEvent
	require.NoError(t, f.bus.Subscribe(types.TopicSwapClosed, func(ev types.SwapClosedEvent) {
		events = append(events, ev)
	}))

	rec, err := f.close(common.Address{}, payout(usdc, 950, 950), 7)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeNonSwapped, rec.Outcome)
	assert.Equal(t, int64(950), rec.AmountOut.Int64())
	assert.Equal(t, int64(950), f.balance(usdc, bob))
	assert.Equal(t, int64(99_050), f.balance(usdc, vaultAddr))

	require.Len(t, events, 1)
	assert.Equal(t, uint64(7), events[0].FromSwapID)
	assert.Equal(t, types.OutcomeNonSwapped, events[0].Outcome)
}

func TestNoDoubleFulfillment(t *testing.T) {
	f := newFixture(t)

	_, err := f.close(common.Address{}, payout(usdc, 950, 0), 7)
	require.NoError(t, err)

	_, err = f.close(common.Address{}, payout(usdc, 950, 0), 7)
	require.ErrorIs(t, err, types.ErrAlreadyClosed)

	hash := attest.LockCloseHash(regAddr, quorumAddr, localChain, remoteChain, 7)
	_, err = f.reg.LockCloseSwap(remoteChain, 7, f.sign(hash, 2))
	require.ErrorIs(t, err, types.ErrAlreadyClosed)

	assert.Equal(t, int64(950), f.balance(usdc, bob))

	// the same id from another source chain is a different request
	_, err = f.reg.CloseSwap(context.Background(), Call{Caller: worker}, common.Address{}, payout(usdc, 10, 0), 3, 7)
	require.NoError(t, err)
}

func TestCloseSwapConverts(t *testing.T) {
	f := newFixture(t)

	rec, err := f.close(adapterID, payout(weth, 1000, 500), 1)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSuccess, rec.Outcome)
	assert.Equal(t, int64(500), rec.AmountOut.Int64())
	assert.Equal(t, int64(500), f.balance(weth, bob))
	assert.Equal(t, int64(1_001_000), f.balance(usdc, maker))
}

func TestCloseSwapAdapterFailureRefundsReceiver(t *testing.T) {
	f := newFixture(t)

	// the rate only yields 500, asking for 600 makes the adapter fail
	rec, err := f.close(adapterID, payout(weth, 1000, 600), 1)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeFailed, rec.Outcome)
	assert.Equal(t, int64(1000), rec.AmountOut.Int64())

	assert.Equal(t, int64(1000), f.balance(usdc, bob))
	assert.Zero(t, f.balance(weth, bob))
	assert.Equal(t, int64(1_000_000), f.balance(usdc, maker))
	assert.Equal(t, int64(1_000_000), f.balance(weth, maker))

	stored, err := f.reg.GetCloseRecord(remoteChain, 1)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, types.OutcomeFailed, stored.Outcome)

	// a failed close can not be retried
	_, err = f.close(adapterID, payout(weth, 1000, 400), 1)
	require.ErrorIs(t, err, types.ErrAlreadyClosed)
}

func TestCloseSwapRollsBackPartialAdapterWrites(t *testing.T) {
	f := newFixture(t)

	// pulls the input, then fails before paying out
	partialID := common.HexToAddress("0x000000000000000000000000000000000000a0fd")
	f.reg.Adapters().Register(partialID, exchange.AdapterFunc(
		func(_ context.Context, l *ledger.Ledger, payer common.Address, desc types.SwapDescription, _ []byte) (*big.Int, error) {
			if err := l.Transfer(desc.SrcAsset, payer, maker, desc.Amount); err != nil {
				return nil, err
			}
			return nil, exchange.ErrNoRoute
		}))
	require.NoError(t, f.reg.SetAdapter(Call{Caller: admin}, partialID, true))

	rec, err := f.close(partialID, payout(weth, 1000, 0), 2)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeFailed, rec.Outcome)
	assert.Equal(t, int64(1000), f.balance(usdc, bob))
	assert.Equal(t, int64(1_000_000), f.balance(usdc, maker))
}

func TestCloseSwapProbeFailure(t *testing.T) {
	f := newFixture(t)
	unknown := common.HexToAddress("0x000000000000000000000000000000000000e0aa")

	rec, err := f.close(adapterID, payout(unknown, 1000, 0), 3)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeFailed, rec.Outcome)
	assert.Equal(t, int64(1000), f.balance(usdc, bob))
}

func TestCloseSwapReentrancy(t *testing.T) {
	f := newFixture(t)

	var inner error
	reentrantID := common.HexToAddress("0x000000000000000000000000000000000000a0fc")
	f.reg.Adapters().Register(reentrantID, exchange.AdapterFunc(
		func(context.Context, *ledger.Ledger, common.Address, types.SwapDescription, []byte) (*big.Int, error) {
			_, inner = f.close(common.Address{}, payout(usdc, 10, 0), 99)
			return nil, inner
		}))
	require.NoError(t, f.reg.SetAdapter(Call{Caller: admin}, reentrantID, true))

	rec, err := f.close(reentrantID, payout(weth, 1000, 0), 4)
	require.NoError(t, err)
	require.ErrorIs(t, inner, types.ErrReentrantCall)
	assert.Equal(t, types.OutcomeFailed, rec.Outcome)

	// the nested id was never reserved
	closed, err := f.reg.EverClosed(remoteChain, 99)
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestCloseSwapRejections(t *testing.T) {
	f := newFixture(t)

	_, err := f.reg.CloseSwap(context.Background(), Call{Caller: alice}, common.Address{}, payout(usdc, 10, 0), remoteChain, 5)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = f.close(common.Address{}, payout(usdc, 50_001, 0), 5)
	require.ErrorIs(t, err, types.ErrAmountTooHigh)

	notAllowed := common.HexToAddress("0x000000000000000000000000000000000000a0fb")
	_, err = f.close(notAllowed, payout(weth, 10, 0), 5)
	require.ErrorIs(t, err, types.ErrAdapterNotAllowed)

	require.NoError(t, f.reg.SetPaused(Call{Caller: admin}, true))
	_, err = f.close(common.Address{}, payout(usdc, 10, 0), 5)
	require.ErrorIs(t, err, types.ErrPaused)
	require.NoError(t, f.reg.SetPaused(Call{Caller: admin}, false))

	// rejected calls leave no reservation
	closed, err := f.reg.EverClosed(remoteChain, 5)
	require.NoError(t, err)
	assert.False(t, closed)

	_, err = f.close(common.Address{}, payout(usdc, 10, 0), 5)
	require.NoError(t, err)
}

func TestLockCloseSwap(t *testing.T) {
	f := newFixture(t)

	var events []types.CloseLockedEvent
	require.NoError(t, f.bus.Subscribe(types.TopicCloseLocked, func(ev types.CloseLockedEvent) {
		events = append(events, ev)
	}))

	hash := attest.LockCloseHash(regAddr, quorumAddr, localChain, remoteChain, 8)
	_, err := f.reg.LockCloseSwap(remoteChain, 8, f.sign(hash, 1))
	require.ErrorIs(t, err, types.ErrNotEnoughSignatures)

	rec, err := f.reg.LockCloseSwap(remoteChain, 8, f.sign(hash, 2))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeLocked, rec.Outcome)
	require.Len(t, events, 1)

	_, err = f.close(common.Address{}, payout(usdc, 10, 0), 8)
	require.ErrorIs(t, err, types.ErrAlreadyClosed)
	assert.Zero(t, f.balance(usdc, bob))

	_, err = f.reg.LockCloseSwap(remoteChain, 8, f.sign(hash, 2))
	require.ErrorIs(t, err, types.ErrAlreadyClosed)
	assert.Equal(t, "already_closed", types.ReasonCode(err))
}
