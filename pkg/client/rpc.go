package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/rpc/v2/json2"

	"xswap/pkg/api"
	"xswap/pkg/ledger"
	"xswap/pkg/registry"
	"xswap/pkg/relay"
	"xswap/pkg/types"
	"xswap/pkg/vault"
)

// RPCClient talks to a devnet's JSON-RPC endpoint
type RPCClient struct {
	url  string
	http *http.Client
}

// NewRPCClient creates a client for the endpoint at url
func NewRPCClient(url string) *RPCClient {
	return &RPCClient{
		url:  url,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Call invokes method with args and decodes the result into reply. Errors
// carrying a known reason code are returned wrapping that sentinel.
func (c *RPCClient) Call(ctx context.Context, method string, args, reply interface{}) error {
	body, err := json2.EncodeClientRequest(api.Name+"."+method, args)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	defer resp.Body.Close()

	if err := json2.DecodeClientResponse(resp.Body, reply); err != nil {
		var rpcErr *json2.Error
		if errors.As(err, &rpcErr) {
			if code, ok := rpcErr.Data.(string); ok {
				if sentinel := types.ByCode(code); sentinel != nil {
					return fmt.Errorf("%w: %s", sentinel, rpcErr.Message)
				}
			}
			return fmt.Errorf("API error: %s", rpcErr.Message)
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Chains returns the served chain ids
func (c *RPCClient) Chains(ctx context.Context) ([]uint64, error) {
	var reply api.ChainsReply
	err := c.Call(ctx, "Chains", &struct{}{}, &reply)
	return reply.ChainIDs, err
}

// Status returns a chain's registry status
func (c *RPCClient) Status(ctx context.Context, chainID uint64) (*registry.Status, error) {
	var reply registry.Status
	if err := c.Call(ctx, "Status", &api.ChainArgs{ChainID: chainID}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// GetSwap returns a swap request
func (c *RPCClient) GetSwap(ctx context.Context, chainID, swapID uint64) (*types.SwapRequest, error) {
	var reply types.SwapRequest
	if err := c.Call(ctx, "GetSwap", &api.SwapIDArgs{ChainID: chainID, SwapID: swapID}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// ListSwaps returns up to limit requests starting at from
func (c *RPCClient) ListSwaps(ctx context.Context, chainID, from uint64, limit int) ([]types.SwapRequest, error) {
	var reply api.SwapsReply
	err := c.Call(ctx, "ListSwaps", &api.ListSwapsArgs{ChainID: chainID, From: from, Limit: limit}, &reply)
	return reply.Swaps, err
}

// GetCloseRecord returns the close record of a remote swap, or nil
func (c *RPCClient) GetCloseRecord(ctx context.Context, chainID, fromChainID, fromSwapID uint64) (*types.CloseRecord, error) {
	var reply api.CloseRecordReply
	err := c.Call(ctx, "GetCloseRecord", &api.CloseRecordArgs{ChainID: chainID, FromChainID: fromChainID, FromSwapID: fromSwapID}, &reply)
	return reply.Record, err
}

// Swap requests a cross-chain swap
func (c *RPCClient) Swap(ctx context.Context, args *api.SwapArgs) (*types.SwapRequest, error) {
	var reply types.SwapRequest
	if err := c.Call(ctx, "Swap", args, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Balance returns an account's balance of asset
func (c *RPCClient) Balance(ctx context.Context, chainID uint64, asset, account common.Address) (*big.Int, error) {
	var reply api.BalanceReply
	err := c.Call(ctx, "Balance", &api.BalanceArgs{ChainID: chainID, Asset: asset, Account: account}, &reply)
	return reply.Balance, err
}

// Assets returns the assets registered on a chain
func (c *RPCClient) Assets(ctx context.Context, chainID uint64) ([]ledger.AssetInfo, error) {
	var reply api.AssetsReply
	err := c.Call(ctx, "Assets", &api.ChainArgs{ChainID: chainID}, &reply)
	return reply.Assets, err
}

// FeeStructure returns the fees for swaps of asset from chainID to toChainID
func (c *RPCClient) FeeStructure(ctx context.Context, chainID, toChainID uint64, asset common.Address) (*types.FeeStructure, error) {
	var reply types.FeeStructure
	if err := c.Call(ctx, "FeeStructure", &api.FeeStructureArgs{ChainID: chainID, ToChainID: toChainID, Asset: asset}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Accrued returns a vault's uncollected fees for asset
func (c *RPCClient) Accrued(ctx context.Context, chainID uint64, asset common.Address) (*vault.Accrued, error) {
	var reply vault.Accrued
	if err := c.Call(ctx, "Accrued", &api.AssetArgs{ChainID: chainID, Asset: asset}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Deposit adds liquidity and returns the provider's new share
func (c *RPCClient) Deposit(ctx context.Context, chainID uint64, provider, asset common.Address, amount *big.Int) (*big.Int, error) {
	var reply api.BalanceReply
	err := c.Call(ctx, "Deposit", &api.LiquidityArgs{ChainID: chainID, Provider: provider, Asset: asset, Amount: amount}, &reply)
	return reply.Balance, err
}

// Withdraw removes liquidity and returns the provider's new share
func (c *RPCClient) Withdraw(ctx context.Context, chainID uint64, provider, asset common.Address, amount *big.Int) (*big.Int, error) {
	var reply api.BalanceReply
	err := c.Call(ctx, "Withdraw", &api.LiquidityArgs{ChainID: chainID, Provider: provider, Asset: asset, Amount: amount}, &reply)
	return reply.Balance, err
}

// ValidatorSet returns a chain's validator set
func (c *RPCClient) ValidatorSet(ctx context.Context, chainID uint64) (*types.ValidatorSet, error) {
	var reply types.ValidatorSet
	if err := c.Call(ctx, "ValidatorSet", &api.ChainArgs{ChainID: chainID}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// SetThreshold submits a signed threshold change
func (c *RPCClient) SetThreshold(ctx context.Context, chainID, threshold, nonce uint64, sigs [][]byte) (*types.ValidatorSet, error) {
	var reply types.ValidatorSet
	args := &api.SetThresholdArgs{ChainID: chainID, Threshold: threshold, Nonce: nonce, Signatures: hexSignatures(sigs)}
	if err := c.Call(ctx, "SetThreshold", args, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// SetValidator submits a signed membership change
func (c *RPCClient) SetValidator(ctx context.Context, chainID uint64, validator common.Address, add bool, nonce uint64, sigs [][]byte) (*types.ValidatorSet, error) {
	var reply types.ValidatorSet
	args := &api.SetValidatorArgs{ChainID: chainID, Validator: validator, Add: add, Nonce: nonce, Signatures: hexSignatures(sigs)}
	if err := c.Call(ctx, "SetValidator", args, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Jobs returns the relay journal
func (c *RPCClient) Jobs(ctx context.Context) ([]relay.Job, error) {
	var reply api.JobsReply
	err := c.Call(ctx, "Jobs", &struct{}{}, &reply)
	return reply.Jobs, err
}

func hexSignatures(sigs [][]byte) []hexutil.Bytes {
	out := make([]hexutil.Bytes, len(sigs))
	for i, sig := range sigs {
		out[i] = sig
	}
	return out
}
