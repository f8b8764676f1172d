package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"xswap/pkg/attest"
	"xswap/pkg/chain"
	"xswap/pkg/ledger"
	"xswap/pkg/types"
)

// Config holds the application configuration
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	RPC        ListenConfig     `mapstructure:"rpc"`
	Metrics    ListenConfig     `mapstructure:"metrics"`
	Relay      RelayConfig      `mapstructure:"relay"`
	Validators ValidatorsConfig `mapstructure:"validators"`
	OneClick   OneClickConfig   `mapstructure:"oneclick"`
	Adapters   []AdapterConfig  `mapstructure:"adapters"`
	Chains     []ChainConfig    `mapstructure:"chains"`
}

// LogConfig selects the logger
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// ListenConfig is a listen address; empty disables the endpoint
type ListenConfig struct {
	Listen string `mapstructure:"listen"`
}

// RelayConfig configures the worker and the attestor
type RelayConfig struct {
	Journal      string        `mapstructure:"journal"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Expiry       time.Duration `mapstructure:"expiry"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	WorkerKey    string        `mapstructure:"worker_key"`
	Adapter      string        `mapstructure:"adapter"`
	GasReceiver  string        `mapstructure:"gas_receiver"`
}

// ValidatorsConfig holds the attestor's validator keys
type ValidatorsConfig struct {
	Keys      []string `mapstructure:"keys"`
	Threshold uint64   `mapstructure:"threshold"`
}

// OneClickConfig enables market-priced adapters backed by the 1Click API
type OneClickConfig struct {
	JWTToken  string `mapstructure:"jwt_token"`
	Chain     string `mapstructure:"chain"`
	Recipient string `mapstructure:"recipient"`
}

// AdapterConfig registers an exchange adapter on every chain. Kind is
// "rate" (fixed rates) or "quote" (1Click prices).
type AdapterConfig struct {
	ID        string       `mapstructure:"id"`
	Kind      string       `mapstructure:"kind"`
	Inventory string       `mapstructure:"inventory"`
	Haircut   int64        `mapstructure:"haircut_bps"`
	Rates     []RateConfig `mapstructure:"rates"`
}

// RateConfig is a fixed conversion rate such as "1/2" or "0.5"
type RateConfig struct {
	Src  string `mapstructure:"src"`
	Dst  string `mapstructure:"dst"`
	Rate string `mapstructure:"rate"`
}

// ChainConfig describes one chain and its genesis state
type ChainConfig struct {
	ID          uint64          `mapstructure:"id"`
	Registry    string          `mapstructure:"registry"`
	Quorum      string          `mapstructure:"quorum"`
	Vault       string          `mapstructure:"vault"`
	DataDir     string          `mapstructure:"data_dir"`
	Admin       string          `mapstructure:"admin"`
	Threshold   uint64          `mapstructure:"threshold"`
	StartSwapID uint64          `mapstructure:"start_swap_id"`
	Assets      []AssetConfig   `mapstructure:"assets"`
	Fees        []FeeConfig     `mapstructure:"fees"`
	Adapters    []string        `mapstructure:"adapters"`
	Balances    []BalanceConfig `mapstructure:"balances"`
	Liquidity   []BalanceConfig `mapstructure:"liquidity"`
}

// AssetConfig registers an asset. MaxSwapAmount makes it a pool asset.
type AssetConfig struct {
	Address       string `mapstructure:"address"`
	Symbol        string `mapstructure:"symbol"`
	Decimals      uint8  `mapstructure:"decimals"`
	MaxSwapAmount string `mapstructure:"max_swap_amount"`
}

// FeeConfig is the fee structure for swaps of Asset settled on ChainID
type FeeConfig struct {
	ChainID      uint64 `mapstructure:"chain_id"`
	Asset        string `mapstructure:"asset"`
	GasEstimate  string `mapstructure:"gas_estimate"`
	Min          string `mapstructure:"min"`
	Max          string `mapstructure:"max"`
	Rate         string `mapstructure:"rate"`
	DecimalScale uint8  `mapstructure:"decimal_scale"`
}

// BalanceConfig is an initial balance in the asset's smallest unit
type BalanceConfig struct {
	Asset   string `mapstructure:"asset"`
	Account string `mapstructure:"account"`
	Amount  string `mapstructure:"amount"`
}

var globalConfig *Config

// Load reads configuration from environment variables and the config file.
// An empty path searches for .xswap.yaml in $HOME and the working directory.
func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName(".xswap")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("$HOME")
		viper.AddConfigPath(".")
	}

	// Set default values
	viper.SetDefault("log.level", "info")
	viper.SetDefault("rpc.listen", "127.0.0.1:8645")
	viper.SetDefault("metrics.listen", "127.0.0.1:9645")
	viper.SetDefault("relay.journal", "xswap-data/journal.json")
	viper.SetDefault("relay.poll_interval", "2s")
	viper.SetDefault("relay.expiry", "1h")
	viper.SetDefault("relay.batch_size", 1)
	viper.SetDefault("relay.max_attempts", 5)

	// Read from environment variables
	viper.SetEnvPrefix("XSWAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}

// Validate checks addresses, keys and amounts
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Relay.BatchSize < 0 {
		return fmt.Errorf("relay.batch_size must not be negative")
	}
	if _, err := c.Signers(); err != nil {
		return err
	}
	if c.Relay.WorkerKey != "" {
		if _, err := attest.SignerFromHex(c.Relay.WorkerKey); err != nil {
			return fmt.Errorf("relay.worker_key: %w", err)
		}
	}
	if c.Relay.Adapter != "" && !common.IsHexAddress(c.Relay.Adapter) {
		return fmt.Errorf("relay.adapter: invalid address %q", c.Relay.Adapter)
	}
	if c.Relay.GasReceiver != "" && !common.IsHexAddress(c.Relay.GasReceiver) {
		return fmt.Errorf("relay.gas_receiver: invalid address %q", c.Relay.GasReceiver)
	}

	for i, a := range c.Adapters {
		if !common.IsHexAddress(a.ID) || !common.IsHexAddress(a.Inventory) {
			return fmt.Errorf("adapters[%d]: id and inventory must be addresses", i)
		}
		switch a.Kind {
		case "rate":
			for j, r := range a.Rates {
				if !common.IsHexAddress(r.Src) || !common.IsHexAddress(r.Dst) {
					return fmt.Errorf("adapters[%d].rates[%d]: invalid asset", i, j)
				}
				if _, err := ParseRate(r.Rate); err != nil {
					return fmt.Errorf("adapters[%d].rates[%d]: %w", i, j, err)
				}
			}
		case "quote":
			if c.OneClick.JWTToken == "" {
				return fmt.Errorf("adapters[%d]: quote adapters need oneclick.jwt_token", i)
			}
		default:
			return fmt.Errorf("adapters[%d]: unknown kind %q", i, a.Kind)
		}
	}

	seen := make(map[uint64]bool)
	for i := range c.Chains {
		ch := &c.Chains[i]
		if ch.ID == 0 {
			return fmt.Errorf("chains[%d]: id is required", i)
		}
		if seen[ch.ID] {
			return fmt.Errorf("chains[%d]: duplicate chain id %d", i, ch.ID)
		}
		seen[ch.ID] = true
		if _, err := ch.Genesis(nil, nil); err != nil {
			return fmt.Errorf("chain %d: %w", ch.ID, err)
		}
	}
	return nil
}

// Signers returns the configured validator signers
func (c *Config) Signers() ([]*attest.Signer, error) {
	signers := make([]*attest.Signer, 0, len(c.Validators.Keys))
	for i, key := range c.Validators.Keys {
		s, err := attest.SignerFromHex(key)
		if err != nil {
			return nil, fmt.Errorf("validators.keys[%d]: %w", i, err)
		}
		signers = append(signers, s)
	}
	return signers, nil
}

// Logger builds the zap logger selected by log.level and log.development
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// ChainConfig returns the runtime config of a chain
func (ch *ChainConfig) ChainConfig() chain.Config {
	return chain.Config{
		ID:       ch.ID,
		Registry: common.HexToAddress(ch.Registry),
		Quorum:   common.HexToAddress(ch.Quorum),
		Vault:    common.HexToAddress(ch.Vault),
		DataDir:  ch.DataDir,
	}
}

// Genesis converts the chain's genesis section. workers and validators come
// from the relay and validator keys.
func (ch *ChainConfig) Genesis(workers, validators []common.Address) (chain.Genesis, error) {
	g := chain.Genesis{
		Workers:     workers,
		Validators:  validators,
		Threshold:   ch.Threshold,
		StartSwapID: ch.StartSwapID,
	}

	for name, addr := range map[string]string{"registry": ch.Registry, "quorum": ch.Quorum, "vault": ch.Vault, "admin": ch.Admin} {
		if !common.IsHexAddress(addr) {
			return g, fmt.Errorf("%s: invalid address %q", name, addr)
		}
	}
	g.Admin = common.HexToAddress(ch.Admin)

	for i, a := range ch.Assets {
		if !common.IsHexAddress(a.Address) {
			return g, fmt.Errorf("assets[%d]: invalid address %q", i, a.Address)
		}
		ag := chain.AssetGenesis{AssetInfo: ledger.AssetInfo{
			Asset:    common.HexToAddress(a.Address),
			Symbol:   a.Symbol,
			Decimals: a.Decimals,
		}}
		if a.MaxSwapAmount != "" {
			v, err := ParseAmount(a.MaxSwapAmount)
			if err != nil {
				return g, fmt.Errorf("assets[%d].max_swap_amount: %w", i, err)
			}
			ag.MaxSwapAmount = v
		}
		g.Assets = append(g.Assets, ag)
	}

	for i, f := range ch.Fees {
		if !common.IsHexAddress(f.Asset) {
			return g, fmt.Errorf("fees[%d]: invalid asset %q", i, f.Asset)
		}
		fs := types.FeeStructure{DecimalScale: f.DecimalScale}
		for _, field := range []struct {
			name string
			raw  string
			dst  **big.Int
		}{
			{"gas_estimate", f.GasEstimate, &fs.GasEstimate},
			{"min", f.Min, &fs.Min},
			{"max", f.Max, &fs.Max},
			{"rate", f.Rate, &fs.Rate},
		} {
			v, err := ParseAmount(field.raw)
			if err != nil {
				return g, fmt.Errorf("fees[%d].%s: %w", i, field.name, err)
			}
			*field.dst = v
		}
		g.Fees = append(g.Fees, chain.FeeGenesis{ChainID: f.ChainID, Asset: common.HexToAddress(f.Asset), Fee: fs})
	}

	for i, a := range ch.Adapters {
		if !common.IsHexAddress(a) {
			return g, fmt.Errorf("adapters[%d]: invalid address %q", i, a)
		}
		g.Adapters = append(g.Adapters, common.HexToAddress(a))
	}

	var err error
	if g.Balances, err = balances("balances", ch.Balances); err != nil {
		return g, err
	}
	if g.Liquidity, err = balances("liquidity", ch.Liquidity); err != nil {
		return g, err
	}
	return g, nil
}

func balances(section string, in []BalanceConfig) ([]chain.BalanceGenesis, error) {
	out := make([]chain.BalanceGenesis, 0, len(in))
	for i, b := range in {
		if !common.IsHexAddress(b.Asset) || !common.IsHexAddress(b.Account) {
			return nil, fmt.Errorf("%s[%d]: invalid address", section, i)
		}
		v, err := ParseAmount(b.Amount)
		if err != nil {
			return nil, fmt.Errorf("%s[%d].amount: %w", section, i, err)
		}
		out = append(out, chain.BalanceGenesis{
			Asset:   common.HexToAddress(b.Asset),
			Account: common.HexToAddress(b.Account),
			Amount:  v,
		})
	}
	return out, nil
}

// ParseAmount parses a non-negative base-10 integer
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

// ParseRate parses a positive rate such as "1/2" or "0.5"
func ParseRate(s string) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok || r.Sign() <= 0 {
		return nil, fmt.Errorf("invalid rate %q", s)
	}
	return r, nil
}
