package parser

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// SwapIntent is a parsed swap command. Amount is in whole units.
type SwapIntent struct {
	Amount    string
	SrcSymbol string
	DstSymbol string
	ToChainID uint64 // 0 when the command names no chain
}

var swapPattern = regexp.MustCompile(`^(\d+\.?\d*)\s+([A-Z0-9]+)\s+TO\s+([A-Z0-9]+)(?:\s+ON\s+(\d+))?$`)

// ParseSwapCommand parses a natural language swap command
// Examples:
//   - "swap 1000 USDC to WETH on 2"
//   - "1.5 USDC to USDC on 137"
//   - "100 USDC to WETH"
func ParseSwapCommand(command string) (*SwapIntent, error) {
	// Normalize the command
	command = strings.Join(strings.Fields(strings.ToUpper(command)), " ")
	command = strings.TrimPrefix(command, "SWAP ")

	matches := swapPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: 'swap <amount> <token> to <token> [on <chain id>]' (e.g., 'swap 100 USDC to WETH on 2')")
	}

	intent := &SwapIntent{
		Amount:    matches[1],
		SrcSymbol: matches[2],
		DstSymbol: matches[3],
	}
	if matches[4] != "" {
		id, err := strconv.ParseUint(matches[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id: %w", err)
		}
		intent.ToChainID = id
	}
	return intent, nil
}

// ValidateSwapIntent validates that an intent has all required fields
func ValidateSwapIntent(intent *SwapIntent) error {
	if intent.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	if intent.SrcSymbol == "" {
		return fmt.Errorf("source token is required")
	}
	if intent.DstSymbol == "" {
		return fmt.Errorf("destination token is required")
	}
	if intent.ToChainID == 0 {
		return fmt.Errorf("destination chain is required")
	}
	return nil
}

// NormalizeTokenSymbol normalizes token symbols to standard format
func NormalizeTokenSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}

// ParseAmount converts a decimal amount in whole units to the smallest unit
func ParseAmount(amount string, decimals uint8) (*big.Int, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(amount), ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("amount %s has more than %d decimals", amount, decimals)
	}
	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))

	v, ok := new(big.Int).SetString(digits, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %s", amount)
	}
	return v, nil
}

// FormatAmount renders a smallest-unit amount in whole units
func FormatAmount(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	if decimals == 0 {
		return v.String()
	}
	s := new(big.Int).Abs(v).String()
	if len(s) <= int(decimals) {
		s = strings.Repeat("0", int(decimals)-len(s)+1) + s
	}
	whole, frac := s[:len(s)-int(decimals)], strings.TrimRight(s[len(s)-int(decimals):], "0")
	if v.Sign() < 0 {
		whole = "-" + whole
	}
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}
