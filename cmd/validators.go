package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"xswap/config"
	"xswap/pkg/attest"
	"xswap/pkg/types"
)

var (
	validatorChain uint64
	signerKeys     []string
	removeMember   bool
)

var validatorsCmd = &cobra.Command{
	Use:   "validators",
	Short: "Inspect and change a chain's validator quorum",
	Long: `Inspect and change the validator quorum of a chain. Changes are signed
with validator keys from --key or, when none are given, from validators.keys
in the config file, and bound to the quorum's current nonce.

Examples:
  xswap validators list --chain 1
  xswap validators set-threshold 2 --chain 1
  xswap validators set-validator 0xabc... --chain 1
  xswap validators set-validator 0xabc... --remove --chain 1 --key <hex> --key <hex>`,
}

var validatorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the validator set",
	Args:  cobra.NoArgs,
	Run:   runValidatorsList,
}

var setThresholdCmd = &cobra.Command{
	Use:   "set-threshold <threshold>",
	Short: "Change the number of signatures required",
	Args:  cobra.ExactArgs(1),
	Run:   runSetThreshold,
}

var setValidatorCmd = &cobra.Command{
	Use:   "set-validator <address>",
	Short: "Add or remove a validator",
	Args:  cobra.ExactArgs(1),
	Run:   runSetValidator,
}

func init() {
	rootCmd.AddCommand(validatorsCmd)
	validatorsCmd.AddCommand(validatorsListCmd, setThresholdCmd, setValidatorCmd)

	validatorsCmd.PersistentFlags().Uint64Var(&validatorChain, "chain", 0, "Chain id (REQUIRED)")
	_ = validatorsCmd.MarkPersistentFlagRequired("chain")
	validatorsCmd.PersistentFlags().StringArrayVar(&signerKeys, "key", nil, "Validator private key to sign with (repeatable)")
	setValidatorCmd.Flags().BoolVar(&removeMember, "remove", false, "Remove the validator instead of adding it")
}

func runValidatorsList(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	stop := newSpinner("Fetching validator set...", jsonOutput)
	set, err := rpcClient().ValidatorSet(context.Background(), validatorChain)
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(set)
		return
	}
	displayValidatorSet(set)
}

func runSetThreshold(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	threshold, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		printError(fmt.Errorf("invalid threshold: %w", err))
		os.Exit(1)
	}

	ctx := context.Background()
	rpc := rpcClient()
	set, quorum, err := currentQuorum(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	sigs, err := signWithKeys(attest.SetThresholdHash(quorum, validatorChain, threshold, set.Nonce))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	stop := newSpinner("Submitting threshold change...", jsonOutput)
	set, err = rpc.SetThreshold(ctx, validatorChain, threshold, set.Nonce, sigs)
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(set)
		return
	}
	printSuccess(color.GreenString("Threshold set to %d", set.Threshold))
	displayValidatorSet(set)
}

func runSetValidator(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if !common.IsHexAddress(args[0]) {
		printError(fmt.Errorf("invalid validator address: %s", args[0]))
		os.Exit(1)
	}
	validator := common.HexToAddress(args[0])
	add := !removeMember

	ctx := context.Background()
	rpc := rpcClient()
	set, quorum, err := currentQuorum(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	sigs, err := signWithKeys(attest.SetValidatorHash(quorum, validatorChain, validator, add, set.Nonce))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	stop := newSpinner("Submitting validator change...", jsonOutput)
	set, err = rpc.SetValidator(ctx, validatorChain, validator, add, set.Nonce, sigs)
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(set)
		return
	}
	if add {
		printSuccess(color.GreenString("Added validator %s", validator.Hex()))
	} else {
		printSuccess(color.GreenString("Removed validator %s", validator.Hex()))
	}
	displayValidatorSet(set)
}

// currentQuorum returns the validator set and the quorum address of the chain
func currentQuorum(ctx context.Context) (*types.ValidatorSet, common.Address, error) {
	rpc := rpcClient()
	set, err := rpc.ValidatorSet(ctx, validatorChain)
	if err != nil {
		return nil, common.Address{}, err
	}
	status, err := rpc.Status(ctx, validatorChain)
	if err != nil {
		return nil, common.Address{}, err
	}
	return set, status.Quorum, nil
}

// signWithKeys signs hash with every --key, or with the configured
// validator keys when no --key is given
func signWithKeys(hash common.Hash) ([][]byte, error) {
	var signers []*attest.Signer
	if len(signerKeys) > 0 {
		for _, key := range signerKeys {
			s, err := attest.SignerFromHex(key)
			if err != nil {
				return nil, err
			}
			signers = append(signers, s)
		}
	} else {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		if signers, err = cfg.Signers(); err != nil {
			return nil, err
		}
	}
	if len(signers) == 0 {
		return nil, fmt.Errorf("no validator keys: use --key or set validators.keys")
	}
	return attest.SignAll(hash, signers...)
}

func displayValidatorSet(set *types.ValidatorSet) {
	fmt.Printf("\n  Threshold:  %s of %d\n", color.CyanString("%d", set.Threshold), set.Count)
	fmt.Printf("  Nonce:      %d\n\n", set.Nonce)
	for _, v := range set.Validators {
		fmt.Printf("  %s\n", color.YellowString(v.Hex()))
	}
	fmt.Println()
}
