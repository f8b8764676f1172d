package quorum

import (
	"bytes"
	"sort"
	"testing"

	evbus "github.com/asaskevich/EventBus"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"xswap/pkg/attest"
	"xswap/pkg/store"
	"xswap/pkg/types"
)

var quorumAddr = common.HexToAddress("0x00000000000000000000000000000000000000bb")

// signers returns n signers sorted by address
func signers(t *testing.T, n int) []*attest.Signer {
	t.Helper()
	out := make([]*attest.Signer, n)
	for i := range out {
		s, err := attest.GenerateSigner()
		require.NoError(t, err)
		out[i] = s
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address().Bytes(), out[j].Address().Bytes()) < 0
	})
	return out
}

func addresses(ss ...*attest.Signer) []common.Address {
	out := make([]common.Address, len(ss))
	for i, s := range ss {
		out[i] = s.Address()
	}
	return out
}

func sign(t *testing.T, hash common.Hash, ss ...*attest.Signer) [][]byte {
	t.Helper()
	sigs := make([][]byte, len(ss))
	for i, s := range ss {
		sig, err := s.Sign(hash)
		require.NoError(t, err)
		sigs[i] = sig
	}
	return sigs
}

func newQuorum(t *testing.T, bus evbus.Bus) *Quorum {
	t.Helper()
	s, err := store.OpenInMemory(zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return New(Config{
		Address: quorumAddr,
		ChainID: 1,
		Store:   s,
		Bus:     bus,
		Logger:  zaptest.NewLogger(t),
	})
}

func TestCheckSignaturesSoundness(t *testing.T) {
	all := signers(t, 4)
	a, b, c, d := all[0], all[1], all[2], all[3]

	q := newQuorum(t, nil)
	require.NoError(t, q.Initialize(addresses(a, b, c), 2))

	hash := attest.ClaimHash(common.Address{1}, quorumAddr, 1, 9)

	tests := []struct {
		name    string
		signers []*attest.Signer
		wantErr error
	}{
		{"increasing pair", []*attest.Signer{a, c}, nil},
		{"all validators", []*attest.Signer{a, b, c}, nil},
		{"wrong order", []*attest.Signer{c, a}, types.ErrSignerOrder},
		{"duplicate signer", []*attest.Signer{a, a}, types.ErrSignerOrder},
		{"outsider", []*attest.Signer{a, d}, types.ErrSignerNotValidator},
		{"below threshold", []*attest.Signer{b}, types.ErrNotEnoughSignatures},
		{"empty", nil, types.ErrNotEnoughSignatures},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := q.CheckSignatures(hash, sign(t, hash, tt.signers...))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCheckSignaturesWrongMessage(t *testing.T) {
	all := signers(t, 2)
	q := newQuorum(t, nil)
	require.NoError(t, q.Initialize(addresses(all...), 2))

	signed := attest.ClaimHash(common.Address{1}, quorumAddr, 1, 9)
	other := attest.ClaimHash(common.Address{1}, quorumAddr, 1, 10)

	// recovered identities for the wrong message are random outsiders
	err := q.CheckSignatures(other, sign(t, signed, all...))
	require.Error(t, err)
}

func TestNotInitialized(t *testing.T) {
	q := newQuorum(t, nil)
	err := q.CheckSignatures(common.Hash{}, nil)
	require.ErrorIs(t, err, types.ErrNotInitialized)
}

func TestInitializeOnce(t *testing.T) {
	all := signers(t, 2)
	q := newQuorum(t, nil)

	require.ErrorIs(t, q.Initialize(addresses(all...), 3), types.ErrInvalidThreshold)
	require.ErrorIs(t, q.Initialize(addresses(all[0], all[0]), 1), types.ErrAlreadyValidator)
	require.NoError(t, q.Initialize(addresses(all...), 1))
	require.ErrorIs(t, q.Initialize(addresses(all...), 1), types.ErrAlreadyInit)
}

func TestRemovalClampsThreshold(t *testing.T) {
	all := signers(t, 3)
	q := newQuorum(t, nil)
	require.NoError(t, q.Initialize(addresses(all...), 3))

	hash := attest.SetValidatorHash(quorumAddr, 1, all[2].Address(), false, 0)
	set, err := q.SetValidator(all[2].Address(), false, 0, sign(t, hash, all...))
	require.NoError(t, err)

	assert.Equal(t, uint64(2), set.Count)
	assert.Equal(t, uint64(2), set.Threshold)
	assert.Equal(t, uint64(1), set.Nonce)
	assert.ElementsMatch(t, addresses(all[0], all[1]), set.Validators)

	ok, err := q.IsValidator(all[2].Address())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetValidatorAddAndLast(t *testing.T) {
	all := signers(t, 2)
	a, b := all[0], all[1]
	q := newQuorum(t, nil)
	require.NoError(t, q.Initialize(addresses(a), 1))

	// add b
	hash := attest.SetValidatorHash(quorumAddr, 1, b.Address(), true, 0)
	set, err := q.SetValidator(b.Address(), true, 0, sign(t, hash, a))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), set.Count)
	assert.Equal(t, uint64(1), set.Threshold)

	// adding again is rejected
	hash = attest.SetValidatorHash(quorumAddr, 1, b.Address(), true, 1)
	_, err = q.SetValidator(b.Address(), true, 1, sign(t, hash, a))
	require.ErrorIs(t, err, types.ErrAlreadyValidator)

	// remove a, then b can not remove itself
	hash = attest.SetValidatorHash(quorumAddr, 1, a.Address(), false, 1)
	_, err = q.SetValidator(a.Address(), false, 1, sign(t, hash, b))
	require.NoError(t, err)

	hash = attest.SetValidatorHash(quorumAddr, 1, b.Address(), false, 2)
	_, err = q.SetValidator(b.Address(), false, 2, sign(t, hash, b))
	require.ErrorIs(t, err, types.ErrLastValidator)

	set, err = q.ValidatorSet()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), set.Count)
	assert.Equal(t, uint64(1), set.Threshold)
	assert.Equal(t, uint64(2), set.Nonce)
}

func TestSetThresholdNonce(t *testing.T) {
	all := signers(t, 3)
	q := newQuorum(t, nil)
	require.NoError(t, q.Initialize(addresses(all...), 1))

	hash := attest.SetThresholdHash(quorumAddr, 1, 2, 0)
	sigs := sign(t, hash, all[0])

	set, err := q.SetThreshold(2, 0, sigs)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), set.Threshold)

	// replaying the same signatures fails on the consumed nonce
	_, err = q.SetThreshold(2, 0, sigs)
	require.ErrorIs(t, err, types.ErrInvalidNonce)

	// out of range thresholds
	for _, th := range []uint64{0, 4} {
		hash := attest.SetThresholdHash(quorumAddr, 1, th, 1)
		_, err := q.SetThreshold(th, 1, sign(t, hash, all[0], all[1]))
		require.ErrorIs(t, err, types.ErrInvalidThreshold)
	}

	// a signature bound to another nonce does not verify
	stale := attest.SetThresholdHash(quorumAddr, 1, 3, 0)
	_, err = q.SetThreshold(3, 1, sign(t, stale, all[0], all[1]))
	require.Error(t, err)

	set, err = q.ValidatorSet()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), set.Threshold)
	assert.Equal(t, uint64(1), set.Nonce)
}

func TestQuorumChangedEvent(t *testing.T) {
	bus := evbus.New()
	var got []types.QuorumChangedEvent
	require.NoError(t, bus.Subscribe(types.TopicQuorumChanged, func(ev types.QuorumChangedEvent) {
		got = append(got, ev)
	}))

	all := signers(t, 2)
	q := newQuorum(t, bus)
	require.NoError(t, q.Initialize(addresses(all...), 2))

	hash := attest.SetThresholdHash(quorumAddr, 1, 1, 0)
	_, err := q.SetThreshold(1, 0, sign(t, hash, all...))
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].Set.Threshold)
	assert.Equal(t, uint64(1), got[1].Set.Threshold)
	assert.Equal(t, uint64(1), got[1].ChainID)
}

func TestRecoverAndValidate(t *testing.T) {
	all := signers(t, 3)
	hash := attest.LockCloseHash(common.Address{1}, quorumAddr, 1, 2, 3)

	got, err := RecoverAndValidate(hash, sign(t, hash, all...))
	require.NoError(t, err)
	assert.Equal(t, addresses(all...), got)

	_, err = RecoverAndValidate(hash, [][]byte{{0x01}})
	require.ErrorIs(t, err, types.ErrInvalidSignature)
}
