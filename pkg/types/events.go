package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event topics published on a chain's event bus
const (
	TopicSwapRequested = "xswap:swap_requested"
	TopicSwapClosed    = "xswap:swap_closed"
	TopicSwapClaimed   = "xswap:swap_claimed"
	TopicBatchClaimed  = "xswap:batch_claimed"
	TopicSwapRefunded  = "xswap:swap_refunded"
	TopicCloseLocked   = "xswap:close_locked"
	TopicQuorumChanged = "xswap:quorum_changed"
)

// SwapRequestedEvent carries everything a relay needs to fulfil a request
type SwapRequestedEvent struct {
	ChainID uint64
	Request SwapRequest
}

// SwapClosedEvent is emitted on the target chain for every closeSwap
type SwapClosedEvent struct {
	ChainID     uint64
	FromChainID uint64
	FromSwapID  uint64
	Outcome     CloseOutcome
	Receiver    common.Address
	DstAsset    common.Address
	AmountOut   *big.Int
}

// SwapClaimedEvent is emitted when a single request is claimed
type SwapClaimedEvent struct {
	ChainID     uint64
	SwapID      uint64
	PoolAsset   common.Address
	Amount      *big.Int
	ProtocolFee *big.Int
	GasFee      *big.Int
}

// BatchClaimedEvent is emitted once per batch claim
type BatchClaimedEvent struct {
	ChainID     uint64
	SwapIDs     []uint64
	PoolAsset   common.Address
	Amount      *big.Int
	ProtocolFee *big.Int
	GasFee      *big.Int
}

// SwapRefundedEvent is emitted when a request is refunded to its sender
type SwapRefundedEvent struct {
	ChainID        uint64
	SwapID         uint64
	Sender         common.Address
	Amount         *big.Int
	GasFeeReceiver common.Address
	GasFee         *big.Int
}

// CloseLockedEvent is emitted when validators lock a remote swap id
type CloseLockedEvent struct {
	ChainID     uint64
	FromChainID uint64
	FromSwapID  uint64
}

// QuorumChangedEvent is emitted after a threshold or membership change
type QuorumChangedEvent struct {
	ChainID uint64
	Set     ValidatorSet
}
