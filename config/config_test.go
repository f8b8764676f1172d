package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
log:
  level: debug
  development: true
relay:
  poll_interval: 500ms
  expiry: 10m
  batch_size: 4
  worker_key: "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
  adapter: "0x00000000000000000000000000000000000000d1"
validators:
  keys:
    - "8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f"
adapters:
  - id: "0x00000000000000000000000000000000000000d1"
    kind: rate
    inventory: "0x00000000000000000000000000000000000000a5"
    rates:
      - src: "0x00000000000000000000000000000000000000e1"
        dst: "0x00000000000000000000000000000000000000e2"
        rate: "1/2"
chains:
  - id: 1
    registry: "0x0000000000000000000000000000000000000101"
    quorum: "0x0000000000000000000000000000000000000102"
    vault: "0x0000000000000000000000000000000000000103"
    admin: "0x00000000000000000000000000000000000000a1"
    threshold: 1
    start_swap_id: 10
    assets:
      - address: "0x00000000000000000000000000000000000000e1"
        symbol: USDC
        decimals: 6
        max_swap_amount: "1000000000000"
    fees:
      - chain_id: 2
        asset: "0x00000000000000000000000000000000000000e1"
        gas_estimate: 4
        min: 10
        max: 100
        rate: 5
        decimal_scale: 2
    adapters:
      - "0x00000000000000000000000000000000000000d1"
    balances:
      - asset: "0x00000000000000000000000000000000000000e1"
        account: "0x00000000000000000000000000000000000000c1"
        amount: "10000"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	t.Cleanup(viper.Reset)
	path := filepath.Join(t.TempDir(), "xswap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)
	assert.Same(t, cfg, Get())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, 500*time.Millisecond, cfg.Relay.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Relay.Expiry)
	assert.Equal(t, 4, cfg.Relay.BatchSize)

	// defaults
	assert.Equal(t, "127.0.0.1:8645", cfg.RPC.Listen)
	assert.Equal(t, 5, cfg.Relay.MaxAttempts)

	signers, err := cfg.Signers()
	require.NoError(t, err)
	require.Len(t, signers, 1)

	require.Len(t, cfg.Chains, 1)
	ch := cfg.Chains[0]
	rc := ch.ChainConfig()
	assert.Equal(t, uint64(1), rc.ID)
	assert.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000000103"), rc.Vault)

	g, err := ch.Genesis(nil, []common.Address{signers[0].Address()})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), g.StartSwapID)
	require.Len(t, g.Assets, 1)
	assert.Equal(t, "USDC", g.Assets[0].Symbol)
	assert.Equal(t, big.NewInt(1_000_000_000_000), g.Assets[0].MaxSwapAmount)
	require.Len(t, g.Fees, 1)
	assert.Equal(t, big.NewInt(5), g.Fees[0].Fee.Rate)
	assert.Equal(t, uint8(2), g.Fees[0].Fee.DecimalScale)
	require.Len(t, g.Balances, 1)
	assert.Equal(t, big.NewInt(10_000), g.Balances[0].Amount)

	logger, err := cfg.Logger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := map[string]string{
		"bad level": "log:\n  level: loud\n",
		"bad key":   "validators:\n  keys: [\"zz\"]\n",
		"bad adapter kind": `adapters:
  - id: "0x00000000000000000000000000000000000000d1"
    inventory: "0x00000000000000000000000000000000000000a5"
    kind: magic
`,
		"quote without jwt": `adapters:
  - id: "0x00000000000000000000000000000000000000d1"
    inventory: "0x00000000000000000000000000000000000000a5"
    kind: quote
`,
		"duplicate chain": `chains:
  - id: 1
    registry: "0x0000000000000000000000000000000000000101"
    quorum: "0x0000000000000000000000000000000000000102"
    vault: "0x0000000000000000000000000000000000000103"
    admin: "0x00000000000000000000000000000000000000a1"
  - id: 1
    registry: "0x0000000000000000000000000000000000000201"
    quorum: "0x0000000000000000000000000000000000000202"
    vault: "0x0000000000000000000000000000000000000203"
    admin: "0x00000000000000000000000000000000000000a1"
`,
		"bad fee": `chains:
  - id: 1
    registry: "0x0000000000000000000000000000000000000101"
    quorum: "0x0000000000000000000000000000000000000102"
    vault: "0x0000000000000000000000000000000000000103"
    admin: "0x00000000000000000000000000000000000000a1"
    fees:
      - {chain_id: 2, asset: "0x00000000000000000000000000000000000000e1", min: "-1"}
`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestParseRate(t *testing.T) {
	r, err := ParseRate("1/2")
	require.NoError(t, err)
	assert.Zero(t, r.Cmp(big.NewRat(1, 2)))

	r, err = ParseRate("0.25")
	require.NoError(t, err)
	assert.Zero(t, r.Cmp(big.NewRat(1, 4)))

	_, err = ParseRate("0")
	require.Error(t, err)
	_, err = ParseRate("x")
	require.Error(t, err)
}
