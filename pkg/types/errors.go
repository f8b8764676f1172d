package types

import "errors"

// ReasonError is a rejection carrying a stable, machine-readable code
type ReasonError struct {
	Code    string
	Message string
}

func (e *ReasonError) Error() string {
	return e.Message
}

var byCode = make(map[string]*ReasonError)

func reason(code, message string) *ReasonError {
	e := &ReasonError{Code: code, Message: message}
	byCode[code] = e
	return e
}

// ByCode returns the sentinel error with code, or nil if there is none
func ByCode(code string) *ReasonError {
	return byCode[code]
}

// ReasonCode returns the code of the first ReasonError in err's chain, or
// "internal" for anything else.
func ReasonCode(err error) string {
	if err == nil {
		return ""
	}
	var re *ReasonError
	if errors.As(err, &re) {
		return re.Code
	}
	return "internal"
}

// Validation errors
var (
	ErrSwapNotFound        = reason("swap_not_found", "swap id out of range")
	ErrAssetNotSupported   = reason("asset_not_supported", "pool asset not supported")
	ErrAmountTooLow        = reason("amount_too_low", "amount below minimum swap amount")
	ErrAmountTooHigh       = reason("amount_too_high", "amount exceeds maximum swap amount")
	ErrFeeNotSet           = reason("fee_not_set", "fee structure not configured")
	ErrInvalidFeeStructure = reason("invalid_fee_structure", "invalid fee structure")
	ErrValueMismatch       = reason("value_mismatch", "attached value does not match amount")
	ErrEmptyBatch          = reason("empty_batch", "no swap ids given")
	ErrAssetMismatch       = reason("asset_mismatch", "swap uses a different pool asset")
	ErrAdapterNotAllowed   = reason("adapter_not_allowed", "aggregator adapter not whitelisted")
	ErrInvalidAmount       = reason("invalid_amount", "amount must be positive")
	ErrInvalidChain        = reason("invalid_chain", "invalid target chain")
	ErrStartIDAlreadySet   = reason("start_id_set", "start swap id already initialized")
	ErrUnknownAsset        = reason("unknown_asset", "asset not registered in ledger")
	ErrInsufficientBalance = reason("insufficient_balance", "insufficient balance")
	ErrZeroAddress         = reason("zero_address", "zero address not allowed")
	ErrConversionFailed    = reason("conversion_failed", "input conversion failed")
)

// State errors
var (
	ErrPaused           = reason("paused", "registry is paused")
	ErrNotAccepting     = reason("not_accepting", "swap requests are not accepted")
	ErrReentrantCall    = reason("reentrant_call", "reentrant call")
	ErrSwapClosed       = reason("swap_closed", "swap already closed")
	ErrAlreadyClosed    = reason("already_closed", "remote swap already closed")
	ErrAlreadyValidator = reason("already_validator", "address is already a validator")
	ErrNotValidator     = reason("not_validator", "address is not a validator")
	ErrLastValidator    = reason("last_validator", "cannot remove the last validator")
	ErrInvalidThreshold = reason("invalid_threshold", "threshold out of range")
	ErrNotInitialized   = reason("not_initialized", "component not initialized")
	ErrAlreadyInit      = reason("already_initialized", "component already initialized")
)

// Authorization errors
var (
	ErrUnauthorized         = reason("unauthorized", "caller lacks the required role")
	ErrNotEnoughSignatures  = reason("not_enough_signatures", "not enough signatures")
	ErrInvalidSignature     = reason("invalid_signature", "invalid signature")
	ErrSignerNotValidator   = reason("signer_not_validator", "signer is not a validator")
	ErrSignerOrder          = reason("signer_order", "signers not in strictly increasing order")
	ErrInvalidNonce         = reason("invalid_nonce", "invalid nonce")
	ErrWithdrawExceedsShare = reason("withdraw_exceeds_share", "withdraw exceeds provided liquidity")
)
