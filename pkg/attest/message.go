package attest

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Operation tags. Each one is hashed into the first word of its message so
// that a signature for one operation can never be replayed as another.
const (
	TagClaim        = "XSWAPPER_CLAIM"
	TagBatchClaim   = "XSWAPPER_BATCH_CLAIM"
	TagRefund       = "XSWAPPER_REFUND"
	TagLockClose    = "XSWAPPER_LOCK_CLOSE"
	TagSetThreshold = "SUPERVISOR_SET_THRESHOLD"
	TagSetValidator = "SUPERVISOR_SET_VALIDATOR"
)

var (
	bytes32Type, _    = abi.NewType("bytes32", "", nil)
	addressType, _    = abi.NewType("address", "", nil)
	uint256Type, _    = abi.NewType("uint256", "", nil)
	uint256ArrType, _ = abi.NewType("uint256[]", "", nil)
	boolType, _       = abi.NewType("bool", "", nil)
)

// TagHash returns keccak256(tag)
func TagHash(tag string) common.Hash {
	return crypto.Keccak256Hash([]byte(tag))
}

// ClaimHash binds a single claim to a registry, its quorum and chain
func ClaimHash(registry, quorum common.Address, chainID, swapID uint64) common.Hash {
	return encode(
		abi.Arguments{{Type: bytes32Type}, {Type: addressType}, {Type: addressType}, {Type: uint256Type}, {Type: uint256Type}},
		tag(TagClaim), registry, quorum, u256(chainID), u256(swapID),
	)
}

// BatchClaimHash binds the exact ordered id list and pool asset of a batch
func BatchClaimHash(registry, quorum common.Address, chainID uint64, poolAsset common.Address, swapIDs []uint64) common.Hash {
	ids := make([]*big.Int, len(swapIDs))
	for i, id := range swapIDs {
		ids[i] = u256(id)
	}
	return encode(
		abi.Arguments{{Type: bytes32Type}, {Type: addressType}, {Type: addressType}, {Type: uint256Type}, {Type: addressType}, {Type: uint256ArrType}},
		tag(TagBatchClaim), registry, quorum, u256(chainID), poolAsset, ids,
	)
}

// RefundHash binds a refund and the account that receives its gas fee
func RefundHash(registry, quorum common.Address, chainID, swapID uint64, gasFeeReceiver common.Address) common.Hash {
	return encode(
		abi.Arguments{{Type: bytes32Type}, {Type: addressType}, {Type: addressType}, {Type: uint256Type}, {Type: uint256Type}, {Type: addressType}},
		tag(TagRefund), registry, quorum, u256(chainID), u256(swapID), gasFeeReceiver,
	)
}

// LockCloseHash binds the lock of a remote swap id on the target chain
func LockCloseHash(registry, quorum common.Address, chainID, fromChainID, fromSwapID uint64) common.Hash {
	return encode(
		abi.Arguments{{Type: bytes32Type}, {Type: addressType}, {Type: addressType}, {Type: uint256Type}, {Type: uint256Type}, {Type: uint256Type}},
		tag(TagLockClose), registry, quorum, u256(chainID), u256(fromChainID), u256(fromSwapID),
	)
}

// SetThresholdHash binds a threshold change to a quorum nonce
func SetThresholdHash(quorum common.Address, chainID, threshold, nonce uint64) common.Hash {
	return encode(
		abi.Arguments{{Type: bytes32Type}, {Type: addressType}, {Type: uint256Type}, {Type: uint256Type}, {Type: uint256Type}},
		tag(TagSetThreshold), quorum, u256(chainID), u256(threshold), u256(nonce),
	)
}

// SetValidatorHash binds a membership change to a quorum nonce
func SetValidatorHash(quorum common.Address, chainID uint64, validator common.Address, add bool, nonce uint64) common.Hash {
	return encode(
		abi.Arguments{{Type: bytes32Type}, {Type: addressType}, {Type: uint256Type}, {Type: addressType}, {Type: boolType}, {Type: uint256Type}},
		tag(TagSetValidator), quorum, u256(chainID), validator, add, u256(nonce),
	)
}

// SignedHash returns the Ethereum signed-message digest of hash, the value
// validators actually sign.
func SignedHash(hash common.Hash) common.Hash {
	return common.BytesToHash(accounts.TextHash(hash.Bytes()))
}

func tag(name string) [32]byte {
	return TagHash(name)
}

func encode(args abi.Arguments, values ...interface{}) common.Hash {
	packed, err := args.Pack(values...)
	if err != nil {
		// only reachable with a mismatched argument list above
		panic(fmt.Sprintf("attest: failed to pack message: %v", err))
	}
	return crypto.Keccak256Hash(packed)
}

func u256(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}
