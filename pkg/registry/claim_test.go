package registry

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xswap/pkg/attest"
	"xswap/pkg/types"
)

func (f *fixture) claimSigs(id uint64) [][]byte {
	return f.sign(attest.ClaimHash(regAddr, quorumAddr, localChain, id), 2)
}

func (f *fixture) refundSigs(id uint64) [][]byte {
	return f.sign(attest.RefundHash(regAddr, quorumAddr, localChain, id, relayer), 2)
}

func TestClaimConservesValue(t *testing.T) {
	f := newFixture(t)
	req := f.swapUSDC(1000)

	var events []types.SwapClaimedEvent
	require.NoError(t, f.bus.Subscribe(types.TopicSwapClaimed, func(ev types.SwapClaimedEvent) {
		events = append(events, ev)
	}))

	claimed, err := f.reg.Claim(req.SwapID, f.claimSigs(req.SwapID))
	require.NoError(t, err)
	assert.Equal(t, types.StatusClosed, claimed.Status)

	// vault received exactly the pool amount, nothing stays in the registry
	assert.Equal(t, int64(101_000), f.balance(usdc, vaultAddr))
	assert.Zero(t, f.balance(usdc, regAddr))

	acc, err := f.reg.Accrued(usdc)
	require.NoError(t, err)
	assert.Equal(t, int64(46), acc.ProtocolFees.Int64())
	assert.Equal(t, int64(4), acc.GasFees.Int64())

	require.Len(t, events, 1)
	total := new(big.Int).Add(events[0].Amount, events[0].ProtocolFee)
	total.Add(total, events[0].GasFee)
	assert.Equal(t, req.PoolAssetAmount, total)
	assert.Equal(t, int64(950), events[0].Amount.Int64())
}

func TestNoDoubleClose(t *testing.T) {
	f := newFixture(t)
	req := f.swapUSDC(1000)

	_, err := f.reg.Claim(req.SwapID, f.claimSigs(req.SwapID))
	require.NoError(t, err)

	_, err = f.reg.Claim(req.SwapID, f.claimSigs(req.SwapID))
	require.ErrorIs(t, err, types.ErrSwapClosed)

	_, err = f.reg.Refund(req.SwapID, relayer, f.refundSigs(req.SwapID))
	require.ErrorIs(t, err, types.ErrSwapClosed)

	hash := attest.BatchClaimHash(regAddr, quorumAddr, localChain, usdc, []uint64{req.SwapID})
	_, err = f.reg.BatchClaim([]uint64{req.SwapID}, usdc, f.sign(hash, 2))
	require.ErrorIs(t, err, types.ErrSwapClosed)

	assert.Equal(t, int64(101_000), f.balance(usdc, vaultAddr))
}

func TestClaimSignatureChecks(t *testing.T) {
	f := newFixture(t)
	req := f.swapUSDC(1000)

	// one signature is below threshold
	_, err := f.reg.Claim(req.SwapID, f.sign(attest.ClaimHash(regAddr, quorumAddr, localChain, req.SwapID), 1))
	require.ErrorIs(t, err, types.ErrNotEnoughSignatures)

	// descending signer order
	sigs := f.claimSigs(req.SwapID)
	_, err = f.reg.Claim(req.SwapID, [][]byte{sigs[1], sigs[0]})
	require.ErrorIs(t, err, types.ErrSignerOrder)

	// attestation for another chain or another operation
	_, err = f.reg.Claim(req.SwapID, f.sign(attest.ClaimHash(regAddr, quorumAddr, remoteChain, req.SwapID), 2))
	require.Error(t, err)
	_, err = f.reg.Claim(req.SwapID, f.refundSigs(req.SwapID))
	require.Error(t, err)

	// unknown id
	_, err = f.reg.Claim(7, f.claimSigs(7))
	require.ErrorIs(t, err, types.ErrSwapNotFound)

	stored, err := f.reg.GetSwap(req.SwapID)
	require.NoError(t, err)
	assert.True(t, stored.IsOpen())
}

func TestRefundPaysSenderAndGasReceiver(t *testing.T) {
	f := newFixture(t)
	req := f.swapUSDC(1000)

	ev, err := f.reg.Refund(req.SwapID, relayer, f.refundSigs(req.SwapID))
	require.NoError(t, err)
	assert.Equal(t, int64(996), ev.Amount.Int64())
	assert.Equal(t, int64(4), ev.GasFee.Int64())

	assert.Equal(t, int64(9_996), f.balance(usdc, alice))
	assert.Equal(t, int64(4), f.balance(usdc, relayer))
	assert.Zero(t, f.balance(usdc, regAddr))

	stored, err := f.reg.GetSwap(req.SwapID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusClosed, stored.Status)

	_, err = f.reg.Claim(req.SwapID, f.claimSigs(req.SwapID))
	require.ErrorIs(t, err, types.ErrSwapClosed)
}

func TestRefundUsesGasFeeRecordedAtSwap(t *testing.T) {
	f := newFixture(t)
	req := f.swapUSDC(1000)
	assert.Equal(t, int64(4), req.RefundGasFee.Int64())

	// a later edit of the local fee structure does not reach the open request
	raised := testFee()
	raised.GasEstimate = big.NewInt(90)
	raised.Min = big.NewInt(90)
	require.NoError(t, f.reg.SetFeeStructure(Call{Caller: admin}, localChain, usdc, raised))

	ev, err := f.reg.Refund(req.SwapID, relayer, f.refundSigs(req.SwapID))
	require.NoError(t, err)
	assert.Equal(t, int64(996), ev.Amount.Int64())
	assert.Equal(t, int64(4), ev.GasFee.Int64())
	assert.Equal(t, int64(9_996), f.balance(usdc, alice))
	assert.Equal(t, int64(4), f.balance(usdc, relayer))
}

func TestRefundBindsGasReceiver(t *testing.T) {
	f := newFixture(t)
	req := f.swapUSDC(1000)

	// signatures name relayer, the call names bob
	_, err := f.reg.Refund(req.SwapID, bob, f.refundSigs(req.SwapID))
	require.Error(t, err)
	assert.Zero(t, f.balance(usdc, bob))
}

func TestBatchClaimIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.swapUSDC(1000)
	f.swapUSDC(2000)
	f.swapUSDC(500)

	_, err := f.reg.Claim(1, f.claimSigs(1))
	require.NoError(t, err)

	ids := []uint64{0, 1, 2}
	hash := attest.BatchClaimHash(regAddr, quorumAddr, localChain, usdc, ids)
	_, err = f.reg.BatchClaim(ids, usdc, f.sign(hash, 2))
	require.ErrorIs(t, err, types.ErrSwapClosed)

	for _, id := range []uint64{0, 2} {
		req, err := f.reg.GetSwap(id)
		require.NoError(t, err)
		assert.True(t, req.IsOpen(), "swap %d", id)
	}

	ids = []uint64{0, 2}
	hash = attest.BatchClaimHash(regAddr, quorumAddr, localChain, usdc, ids)
	ev, err := f.reg.BatchClaim(ids, usdc, f.sign(hash, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(1425), ev.Amount.Int64())
	assert.Equal(t, int64(67), ev.ProtocolFee.Int64())
	assert.Equal(t, int64(8), ev.GasFee.Int64())
	assert.Zero(t, f.balance(usdc, regAddr))
}

func TestBatchClaimRejections(t *testing.T) {
	f := newFixture(t)
	f.swapUSDC(1000)
	f.swapUSDC(1000)

	_, err := f.reg.BatchClaim(nil, usdc, nil)
	require.ErrorIs(t, err, types.ErrEmptyBatch)

	// repeated id
	ids := []uint64{0, 0}
	hash := attest.BatchClaimHash(regAddr, quorumAddr, localChain, usdc, ids)
	_, err = f.reg.BatchClaim(ids, usdc, f.sign(hash, 2))
	require.ErrorIs(t, err, types.ErrSwapClosed)

	// wrong asset
	ids = []uint64{0, 1}
	hash = attest.BatchClaimHash(regAddr, quorumAddr, localChain, weth, ids)
	_, err = f.reg.BatchClaim(ids, weth, f.sign(hash, 2))
	require.ErrorIs(t, err, types.ErrAssetMismatch)

	// signatures over a different composition
	hash = attest.BatchClaimHash(regAddr, quorumAddr, localChain, usdc, []uint64{1, 0})
	_, err = f.reg.BatchClaim(ids, usdc, f.sign(hash, 2))
	require.Error(t, err)

	for _, id := range ids {
		req, err := f.reg.GetSwap(id)
		require.NoError(t, err)
		assert.True(t, req.IsOpen())
	}
}
