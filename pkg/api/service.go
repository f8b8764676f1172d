// Package api serves the chains of a devnet over JSON-RPC 2.0
package api

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"go.uber.org/zap"

	"xswap/pkg/ledger"
	"xswap/pkg/quorum"
	"xswap/pkg/registry"
	"xswap/pkg/relay"
	"xswap/pkg/types"
	"xswap/pkg/vault"
)

// Name is the service name; methods are called as "xswap.<Method>"
const Name = "xswap"

// NewServer returns a JSON-RPC handler serving chains
func NewServer(chains relay.Chains, journal *relay.Journal, log *zap.Logger) (*rpc.Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	server := rpc.NewServer()
	codec := json2.NewCodec()
	server.RegisterCodec(codec, "application/json")
	server.RegisterCodec(codec, "application/json;charset=UTF-8")
	return server, server.RegisterService(&Service{chains: chains, journal: journal, log: log.Named("api")}, Name)
}

// Service is the API service over a set of chains
type Service struct {
	chains  relay.Chains
	journal *relay.Journal
	log     *zap.Logger
}

// ChainArgs selects a chain
type ChainArgs struct {
	ChainID uint64 `json:"chain_id"`
}

// ChainsReply lists the served chains
type ChainsReply struct {
	ChainIDs []uint64 `json:"chain_ids"`
}

// Chains returns the ids of every served chain
func (s *Service) Chains(_ *http.Request, _ *struct{}, reply *ChainsReply) error {
	reply.ChainIDs = s.chains.IDs()
	return nil
}

// Status returns a chain's registry switches and id range
func (s *Service) Status(_ *http.Request, args *ChainArgs, reply *registry.Status) error {
	c, err := s.chains.Get(args.ChainID)
	if err != nil {
		return rpcError(err)
	}
	st, err := c.Registry().Status()
	if err != nil {
		return rpcError(err)
	}
	*reply = *st
	return nil
}

// SwapIDArgs selects a swap request on its source chain
type SwapIDArgs struct {
	ChainID uint64 `json:"chain_id"`
	SwapID  uint64 `json:"swap_id"`
}

// GetSwap returns one swap request
func (s *Service) GetSwap(_ *http.Request, args *SwapIDArgs, reply *types.SwapRequest) error {
	c, err := s.chains.Get(args.ChainID)
	if err != nil {
		return rpcError(err)
	}
	req, err := c.Registry().GetSwap(args.SwapID)
	if err != nil {
		return rpcError(err)
	}
	*reply = *req
	return nil
}

// ListSwapsArgs pages through a chain's swap requests
type ListSwapsArgs struct {
	ChainID uint64 `json:"chain_id"`
	From    uint64 `json:"from"`
	Limit   int    `json:"limit"`
}

// SwapsReply is a page of swap requests
type SwapsReply struct {
	Swaps []types.SwapRequest `json:"swaps"`
}

// ListSwaps returns up to Limit requests starting at From
func (s *Service) ListSwaps(_ *http.Request, args *ListSwapsArgs, reply *SwapsReply) error {
	c, err := s.chains.Get(args.ChainID)
	if err != nil {
		return rpcError(err)
	}
	limit := args.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	reply.Swaps, err = c.Registry().Swaps(args.From, limit)
	return rpcError(err)
}

// CloseRecordArgs selects a remote swap on the chain that closes it
type CloseRecordArgs struct {
	ChainID     uint64 `json:"chain_id"`
	FromChainID uint64 `json:"from_chain_id"`
	FromSwapID  uint64 `json:"from_swap_id"`
}

// CloseRecordReply reports whether a remote swap was closed and how
type CloseRecordReply struct {
	Closed bool               `json:"closed"`
	Record *types.CloseRecord `json:"record,omitempty"`
}

// GetCloseRecord returns the close record of a remote swap
func (s *Service) GetCloseRecord(_ *http.Request, args *CloseRecordArgs, reply *CloseRecordReply) error {
	c, err := s.chains.Get(args.ChainID)
	if err != nil {
		return rpcError(err)
	}
	rec, err := c.Registry().GetCloseRecord(args.FromChainID, args.FromSwapID)
	if err != nil {
		return rpcError(err)
	}
	reply.Closed = rec != nil
	reply.Record = rec
	return nil
}

// SwapArgs requests a cross-chain swap on ChainID. The devnet trusts Caller.
type SwapArgs struct {
	ChainID         uint64         `json:"chain_id"`
	Caller          common.Address `json:"caller"`
	Value           *big.Int       `json:"value,omitempty"`
	Adapter         common.Address `json:"adapter"`
	SrcAsset        common.Address `json:"src_asset"`
	PoolAsset       common.Address `json:"pool_asset"`
	AmountIn        *big.Int       `json:"amount_in"`
	ToChainID       uint64         `json:"to_chain_id"`
	Receiver        common.Address `json:"receiver"`
	DstAsset        common.Address `json:"dst_asset"`
	MinReturnAmount *big.Int       `json:"min_return_amount"`
}

// Swap records a swap request and returns it
func (s *Service) Swap(r *http.Request, args *SwapArgs, reply *types.SwapRequest) error {
	c, err := s.chains.Get(args.ChainID)
	if err != nil {
		return rpcError(err)
	}
	err = c.Execute(func(reg *registry.Registry) error {
		req, err := reg.Swap(requestContext(r), registry.Call{Caller: args.Caller, Value: args.Value}, registry.SwapParams{
			Adapter:   args.Adapter,
			SrcAsset:  args.SrcAsset,
			PoolAsset: args.PoolAsset,
			AmountIn:  args.AmountIn,
		}, types.TargetChainDesc{
			ToChainID:       args.ToChainID,
			Receiver:        args.Receiver,
			DstAsset:        args.DstAsset,
			MinReturnAmount: args.MinReturnAmount,
		})
		if err != nil {
			return err
		}
		*reply = *req
		return nil
	})
	if err != nil {
		s.log.Debug("swap rejected", zap.Uint64("chain", args.ChainID), zap.Error(err))
	}
	return rpcError(err)
}

// BalanceArgs selects an account's balance of an asset
type BalanceArgs struct {
	ChainID uint64         `json:"chain_id"`
	Asset   common.Address `json:"asset"`
	Account common.Address `json:"account"`
}

// BalanceReply is an amount in the asset's smallest unit
type BalanceReply struct {
	Balance *big.Int `json:"balance"`
}

// Balance returns an account's ledger balance
func (s *Service) Balance(_ *http.Request, args *BalanceArgs, reply *BalanceReply) error {
	c, err := s.chains.Get(args.ChainID)
	if err != nil {
		return rpcError(err)
	}
	reply.Balance, err = c.Registry().BalanceOf(args.Asset, args.Account)
	return rpcError(err)
}

// AssetsReply lists a chain's registered assets
type AssetsReply struct {
	Assets []ledger.AssetInfo `json:"assets"`
}

// Assets returns the assets registered on a chain
func (s *Service) Assets(_ *http.Request, args *ChainArgs, reply *AssetsReply) error {
	c, err := s.chains.Get(args.ChainID)
	if err != nil {
		return rpcError(err)
	}
	reply.Assets, err = c.Registry().Assets()
	return rpcError(err)
}

// FeeStructureArgs selects the fees for swaps of Asset settled on ToChainID
type FeeStructureArgs struct {
	ChainID   uint64         `json:"chain_id"`
	ToChainID uint64         `json:"to_chain_id"`
	Asset     common.Address `json:"asset"`
}

// FeeStructure returns a configured fee structure
func (s *Service) FeeStructure(_ *http.Request, args *FeeStructureArgs, reply *types.FeeStructure) error {
	c, err := s.chains.Get(args.ChainID)
	if err != nil {
		return rpcError(err)
	}
	fs, err := c.Registry().FeeStructure(args.ToChainID, args.Asset)
	if err != nil {
		return rpcError(err)
	}
	*reply = *fs
	return nil
}

// AssetArgs selects an asset on a chain
type AssetArgs struct {
	ChainID uint64         `json:"chain_id"`
	Asset   common.Address `json:"asset"`
}

// Accrued returns the vault's uncollected fees for an asset
func (s *Service) Accrued(_ *http.Request, args *AssetArgs, reply *vault.Accrued) error {
	c, err := s.chains.Get(args.ChainID)
	if err != nil {
		return rpcError(err)
	}
	acc, err := c.Registry().Accrued(args.Asset)
	if err != nil {
		return rpcError(err)
	}
	*reply = *acc
	return nil
}

// LiquidityArgs moves a provider's liquidity in or out of a vault
type LiquidityArgs struct {
	ChainID  uint64         `json:"chain_id"`
	Provider common.Address `json:"provider"`
	Asset    common.Address `json:"asset"`
	Amount   *big.Int       `json:"amount"`
}

// Deposit adds liquidity to a chain's vault
func (s *Service) Deposit(_ *http.Request, args *LiquidityArgs, reply *BalanceReply) error {
	c, err := s.chains.Get(args.ChainID)
	if err != nil {
		return rpcError(err)
	}
	if err := c.Deposit(args.Provider, args.Asset, amountOrZero(args.Amount)); err != nil {
		return rpcError(err)
	}
	reply.Balance, err = c.Share(args.Provider, args.Asset)
	return rpcError(err)
}

// Withdraw takes liquidity out of a chain's vault
func (s *Service) Withdraw(_ *http.Request, args *LiquidityArgs, reply *BalanceReply) error {
	c, err := s.chains.Get(args.ChainID)
	if err != nil {
		return rpcError(err)
	}
	if err := c.Withdraw(args.Provider, args.Asset, amountOrZero(args.Amount)); err != nil {
		return rpcError(err)
	}
	reply.Balance, err = c.Share(args.Provider, args.Asset)
	return rpcError(err)
}

// ValidatorSet returns a chain's validator set
func (s *Service) ValidatorSet(_ *http.Request, args *ChainArgs, reply *types.ValidatorSet) error {
	c, err := s.chains.Get(args.ChainID)
	if err != nil {
		return rpcError(err)
	}
	set, err := c.Quorum().ValidatorSet()
	if err != nil {
		return rpcError(err)
	}
	*reply = *set
	return nil
}

// SetThresholdArgs is a quorum-signed threshold change
type SetThresholdArgs struct {
	ChainID    uint64          `json:"chain_id"`
	Threshold  uint64          `json:"threshold"`
	Nonce      uint64          `json:"nonce"`
	Signatures []hexutil.Bytes `json:"signatures"`
}

// SetThreshold changes a chain's quorum threshold
func (s *Service) SetThreshold(_ *http.Request, args *SetThresholdArgs, reply *types.ValidatorSet) error {
	c, err := s.chains.Get(args.ChainID)
	if err != nil {
		return rpcError(err)
	}
	return rpcError(c.ExecuteQuorum(func(q *quorum.Quorum) error {
		set, err := q.SetThreshold(args.Threshold, args.Nonce, signatures(args.Signatures))
		if err != nil {
			return err
		}
		*reply = *set
		return nil
	}))
}

// SetValidatorArgs is a quorum-signed membership change
type SetValidatorArgs struct {
	ChainID    uint64          `json:"chain_id"`
	Validator  common.Address  `json:"validator"`
	Add        bool            `json:"add"`
	Nonce      uint64          `json:"nonce"`
	Signatures []hexutil.Bytes `json:"signatures"`
}

// SetValidator adds or removes a validator on a chain
func (s *Service) SetValidator(_ *http.Request, args *SetValidatorArgs, reply *types.ValidatorSet) error {
	c, err := s.chains.Get(args.ChainID)
	if err != nil {
		return rpcError(err)
	}
	return rpcError(c.ExecuteQuorum(func(q *quorum.Quorum) error {
		set, err := q.SetValidator(args.Validator, args.Add, args.Nonce, signatures(args.Signatures))
		if err != nil {
			return err
		}
		*reply = *set
		return nil
	}))
}

// JobsReply lists relay jobs
type JobsReply struct {
	Jobs []relay.Job `json:"jobs"`
}

// Jobs returns every relay job, oldest first
func (s *Service) Jobs(_ *http.Request, _ *struct{}, reply *JobsReply) error {
	reply.Jobs = make([]relay.Job, 0)
	if s.journal != nil {
		reply.Jobs = s.journal.List()
	}
	return nil
}

// rpcError carries the reason code of err in the JSON-RPC error data
func rpcError(err error) error {
	if err == nil {
		return nil
	}
	return &json2.Error{Code: json2.E_SERVER, Message: err.Error(), Data: types.ReasonCode(err)}
}

func requestContext(r *http.Request) context.Context {
	if r == nil {
		return context.Background()
	}
	return r.Context()
}

func signatures(sigs []hexutil.Bytes) [][]byte {
	out := make([][]byte, len(sigs))
	for i, sig := range sigs {
		out[i] = sig
	}
	return out
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
