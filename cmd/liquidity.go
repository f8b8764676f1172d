package cmd

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"xswap/pkg/client"
	"xswap/pkg/ledger"
	"xswap/pkg/parser"
)

var (
	liquidityChain uint64
	providerAddr   string
)

var liquidityCmd = &cobra.Command{
	Use:   "liquidity",
	Short: "Manage vault liquidity and inspect accrued fees",
	Long: `Deposit and withdraw pool liquidity in a chain's vault, and show the fees
the vault has accrued per asset.

Examples:
  xswap liquidity deposit 5000 USDC --chain 2 --provider 0xa1...
  xswap liquidity withdraw 1000 USDC --chain 2 --provider 0xa1...
  xswap liquidity fees USDC --chain 2`,
}

var depositCmd = &cobra.Command{
	Use:   "deposit <amount> <token>",
	Short: "Deposit liquidity into the vault",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runLiquidity(cmd, args, true)
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <amount> <token>",
	Short: "Withdraw liquidity from the vault",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runLiquidity(cmd, args, false)
	},
}

var feesCmd = &cobra.Command{
	Use:   "fees <token>",
	Short: "Show the vault's accrued fees",
	Args:  cobra.ExactArgs(1),
	Run:   runFees,
}

func init() {
	rootCmd.AddCommand(liquidityCmd)
	liquidityCmd.AddCommand(depositCmd, withdrawCmd, feesCmd)

	liquidityCmd.PersistentFlags().Uint64Var(&liquidityChain, "chain", 0, "Chain id (REQUIRED)")
	_ = liquidityCmd.MarkPersistentFlagRequired("chain")
	depositCmd.Flags().StringVar(&providerAddr, "provider", "", "Liquidity provider account (REQUIRED)")
	withdrawCmd.Flags().StringVar(&providerAddr, "provider", "", "Liquidity provider account (REQUIRED)")
}

func runLiquidity(cmd *cobra.Command, args []string, deposit bool) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if !common.IsHexAddress(providerAddr) {
		printError(fmt.Errorf("--provider must be an address"))
		os.Exit(1)
	}
	provider := common.HexToAddress(providerAddr)

	ctx := context.Background()
	rpc := rpcClient()
	asset, err := lookupAsset(ctx, rpc, liquidityChain, args[1])
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	amount, err := parser.ParseAmount(args[0], asset.Decimals)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	var share *big.Int
	if deposit {
		stop := newSpinner("Depositing...", jsonOutput)
		share, err = rpc.Deposit(ctx, liquidityChain, provider, asset.Asset, amount)
		stop()
	} else {
		stop := newSpinner("Withdrawing...", jsonOutput)
		share, err = rpc.Withdraw(ctx, liquidityChain, provider, asset.Asset, amount)
		stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"provider": provider,
			"asset":    asset.Asset,
			"share":    share,
		})
		return
	}
	printSuccess(fmt.Sprintf("Provider share: %s %s", parser.FormatAmount(share, asset.Decimals), color.YellowString(asset.Symbol)))
}

func runFees(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	ctx := context.Background()
	rpc := rpcClient()

	asset, err := lookupAsset(ctx, rpc, liquidityChain, args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	stop := newSpinner("Fetching accrued fees...", jsonOutput)
	accrued, err := rpc.Accrued(ctx, liquidityChain, asset.Asset)
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(accrued)
		return
	}
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                   ACCRUED FEES (%s)", asset.Symbol)
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  Protocol Fees:  %s\n", parser.FormatAmount(accrued.ProtocolFees, asset.Decimals))
	fmt.Printf("  Gas Fees:       %s\n", parser.FormatAmount(accrued.GasFees, asset.Decimals))
	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func lookupAsset(ctx context.Context, rpc *client.RPCClient, chainID uint64, symbol string) (*ledger.AssetInfo, error) {
	assets, err := rpc.Assets(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return findAsset(assets, symbol)
}
