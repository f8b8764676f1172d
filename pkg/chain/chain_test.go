package chain

import (
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"xswap/pkg/ledger"
	"xswap/pkg/registry"
	"xswap/pkg/types"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	worker   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	provider = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	usdc     = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	v1       = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	v2       = common.HexToAddress("0x00000000000000000000000000000000000000f2")
)

func testGenesis() Genesis {
	return Genesis{
		Admin:       admin,
		Workers:     []common.Address{worker},
		Validators:  []common.Address{v1, v2},
		Threshold:   2,
		StartSwapID: 10,
		Assets: []AssetGenesis{
			{AssetInfo: ledger.AssetInfo{Asset: usdc, Symbol: "USDC", Decimals: 6}, MaxSwapAmount: big.NewInt(1_000_000)},
		},
		Fees: []FeeGenesis{{ChainID: 2, Asset: usdc, Fee: types.FeeStructure{
			GasEstimate: big.NewInt(1), Min: big.NewInt(2), Max: big.NewInt(10), Rate: big.NewInt(1), DecimalScale: 2,
		}}},
		Balances:  []BalanceGenesis{{Asset: usdc, Account: provider, Amount: big.NewInt(5000)}},
		Liquidity: []BalanceGenesis{{Asset: usdc, Account: provider, Amount: big.NewInt(3000)}},
	}
}

func openChain(t *testing.T, dir string) *Chain {
	t.Helper()
	c, err := Open(Config{
		ID:       1,
		Registry: common.HexToAddress("0x01"),
		Quorum:   common.HexToAddress("0x02"),
		Vault:    common.HexToAddress("0x03"),
		DataDir:  dir,
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return c
}

func TestBootstrap(t *testing.T) {
	c := openChain(t, "")
	defer c.Close()

	require.NoError(t, c.Bootstrap(testGenesis()))

	reg := c.Registry()
	st, err := reg.Status()
	require.NoError(t, err)
	assert.True(t, st.Accepting)
	assert.Equal(t, uint64(10), st.NextSwapID)

	ok, err := reg.HasRole(registry.RoleWorker, worker)
	require.NoError(t, err)
	assert.True(t, ok)

	set, err := c.Quorum().ValidatorSet()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), set.Threshold)

	bal, err := reg.BalanceOf(usdc, c.Vault().Address)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), bal.Int64())

	share, err := c.Share(provider, usdc)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), share.Int64())

	fs, err := reg.FeeStructure(2, usdc)
	require.NoError(t, err)
	assert.True(t, fs.IsSet)
}

func TestBootstrapSkipsInitializedChain(t *testing.T) {
	dir := t.TempDir()

	c := openChain(t, dir)
	require.NoError(t, c.Bootstrap(testGenesis()))
	require.NoError(t, c.Close())

	c = openChain(t, dir)
	defer c.Close()
	require.NoError(t, c.Bootstrap(testGenesis()))

	bal, err := c.Registry().BalanceOf(usdc, provider)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), bal.Int64())
}

func TestWithdrawLiquidity(t *testing.T) {
	c := openChain(t, "")
	defer c.Close()
	require.NoError(t, c.Bootstrap(testGenesis()))

	err := c.Withdraw(provider, usdc, big.NewInt(3001))
	require.ErrorIs(t, err, types.ErrWithdrawExceedsShare)

	require.NoError(t, c.Withdraw(provider, usdc, big.NewInt(1000)))
	share, err := c.Share(provider, usdc)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), share.Int64())
}

func TestExecuteSerializes(t *testing.T) {
	c := openChain(t, "")
	defer c.Close()
	require.NoError(t, c.Bootstrap(testGenesis()))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		overlap bool
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Execute(func(r *registry.Registry) error {
				mu.Lock()
				inside++
				if inside > 1 {
					overlap = true
				}
				mu.Unlock()

				_, err := r.Status()

				mu.Lock()
				inside--
				mu.Unlock()
				return err
			})
		}()
	}
	wg.Wait()
	assert.False(t, overlap)
}
