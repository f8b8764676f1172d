package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"xswap/pkg/attest"
)

var (
	keygenCount int
	signKey     string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate validator or worker keys",
	Long: `Generate secp256k1 keys for validators.keys or relay.worker_key.

Examples:
  xswap keygen
  xswap keygen --count 3 --json`,
	Args: cobra.NoArgs,
	Run:  runKeygen,
}

var signCmd = &cobra.Command{
	Use:   "sign <message> <args...>",
	Short: "Sign a settlement or quorum message",
	Long: `Compute the hash of a settlement or quorum message and sign it with --key.

Messages:
  claim          <registry> <quorum> <chain-id> <swap-id>
  refund         <registry> <quorum> <chain-id> <swap-id> <gas-fee-receiver>
  lock-close     <registry> <quorum> <chain-id> <from-chain-id> <from-swap-id>
  set-threshold  <quorum> <chain-id> <threshold> <nonce>
  set-validator  <quorum> <chain-id> <validator> <add> <nonce>

Examples:
  xswap sign claim 0x...0101 0x...0102 1 7 --key <hex>
  xswap sign set-threshold 0x...0102 1 2 0 --key <hex>`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSign,
}

func init() {
	rootCmd.AddCommand(keygenCmd, signCmd)

	keygenCmd.Flags().IntVarP(&keygenCount, "count", "n", 1, "Number of keys to generate")
	signCmd.Flags().StringVar(&signKey, "key", "", "Private key to sign with (REQUIRED)")
	_ = signCmd.MarkFlagRequired("key")
}

type keyPair struct {
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
}

func runKeygen(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	keys := make([]keyPair, 0, keygenCount)
	for i := 0; i < keygenCount; i++ {
		s, err := attest.GenerateSigner()
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		keys = append(keys, keyPair{Address: s.Address().Hex(), PrivateKey: s.PrivateKeyHex()})
	}

	if jsonOutput {
		printJSON(keys)
		return
	}
	for _, k := range keys {
		fmt.Printf("\n  Address:      %s\n", color.CyanString(k.Address))
		fmt.Printf("  Private Key:  %s\n", color.YellowString(k.PrivateKey))
	}
	fmt.Println()
}

func runSign(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	signer, err := attest.SignerFromHex(signKey)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	hash, err := messageHash(args[0], args[1:])
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	sig, err := signer.Sign(hash)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(map[string]string{
			"signer":    signer.Address().Hex(),
			"hash":      hash.Hex(),
			"signature": hexutil.Encode(sig),
		})
		return
	}
	fmt.Printf("\n  Signer:     %s\n", color.CyanString(signer.Address().Hex()))
	fmt.Printf("  Hash:       %s\n", hash.Hex())
	fmt.Printf("  Signature:  %s\n\n", color.YellowString(hexutil.Encode(sig)))
}

// messageHash builds the attestation hash of message from positional args
func messageHash(message string, args []string) (common.Hash, error) {
	p := argParser{args: args}
	var hash common.Hash

	switch message {
	case "claim":
		p.expect(4)
		hash = attest.ClaimHash(p.address(0), p.address(1), p.uint(2), p.uint(3))
	case "refund":
		p.expect(5)
		hash = attest.RefundHash(p.address(0), p.address(1), p.uint(2), p.uint(3), p.address(4))
	case "lock-close":
		p.expect(5)
		hash = attest.LockCloseHash(p.address(0), p.address(1), p.uint(2), p.uint(3), p.uint(4))
	case "set-threshold":
		p.expect(4)
		hash = attest.SetThresholdHash(p.address(0), p.uint(1), p.uint(2), p.uint(3))
	case "set-validator":
		p.expect(5)
		hash = attest.SetValidatorHash(p.address(0), p.uint(1), p.address(2), p.bool(3), p.uint(4))
	default:
		return common.Hash{}, fmt.Errorf("unknown message %q", message)
	}
	return hash, p.err
}

// argParser parses positional args, keeping the first error
type argParser struct {
	args []string
	err  error
}

func (p *argParser) expect(n int) {
	if len(p.args) != n && p.err == nil {
		p.err = fmt.Errorf("expected %d arguments, got %d", n, len(p.args))
	}
}

func (p *argParser) arg(i int) string {
	if i >= len(p.args) {
		return ""
	}
	return p.args[i]
}

func (p *argParser) address(i int) common.Address {
	s := p.arg(i)
	if !common.IsHexAddress(s) && p.err == nil {
		p.err = fmt.Errorf("argument %d: invalid address %q", i+1, s)
	}
	return common.HexToAddress(s)
}

func (p *argParser) uint(i int) uint64 {
	v, err := strconv.ParseUint(p.arg(i), 10, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("argument %d: %w", i+1, err)
	}
	return v
}

func (p *argParser) bool(i int) bool {
	v, err := strconv.ParseBool(p.arg(i))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("argument %d: %w", i+1, err)
	}
	return v
}
