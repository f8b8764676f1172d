package cmd

import (
	"bufio"
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"xswap/pkg/api"
	"xswap/pkg/client"
	"xswap/pkg/fee"
	"xswap/pkg/ledger"
	"xswap/pkg/parser"
	"xswap/pkg/types"
)

var (
	fromChain    uint64
	toChain      uint64
	callerAddr   string
	receiverAddr string
	poolSymbol   string
	adapterAddr  string
	minReturn    string
	noConfirm    bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <source-token> to <dest-token> [on <chain-id>]",
	Short: "Request a cross-chain swap",
	Long: `Request a swap on the source chain. The input is converted into the pool
asset, held by the registry and paid out on the destination chain by the relay.

The devnet trusts --caller: it pays the input from that account.

Examples:
  # Pool asset in, WETH out on chain 2
  xswap swap 1000 USDC to WETH on 2 --from-chain 1 --caller 0xc1... --receiver 0xc2...

  # Convert WETH into the USDC pool asset through an adapter first
  xswap swap 0.5 WETH to USDC --from-chain 1 --to-chain 2 --pool USDC --adapter 0xd1... --caller 0xc1... --receiver 0xc2...`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().Uint64Var(&fromChain, "from-chain", 0, "Source chain id (REQUIRED)")
	swapCmd.Flags().Uint64Var(&toChain, "to-chain", 0, "Destination chain id (or use 'on <chain-id>')")
	swapCmd.Flags().StringVar(&callerAddr, "caller", "", "Account paying the input (REQUIRED)")
	swapCmd.Flags().StringVar(&receiverAddr, "receiver", "", "Account receiving the output (REQUIRED)")
	swapCmd.Flags().StringVar(&poolSymbol, "pool", "", "Pool asset symbol (defaults to the source token)")
	swapCmd.Flags().StringVar(&adapterAddr, "adapter", "", "Adapter converting the input into the pool asset")
	swapCmd.Flags().StringVar(&minReturn, "min-return", "0", "Minimum destination amount in whole units")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runSwap(cmd *cobra.Command, args []string) {
	// Parse the command
	intent, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if toChain != 0 {
		intent.ToChainID = toChain
	}
	if err := parser.ValidateSwapIntent(intent); err != nil {
		printError(err)
		os.Exit(1)
	}
	if fromChain == 0 {
		printError(fmt.Errorf("--from-chain is required"))
		os.Exit(1)
	}
	if !common.IsHexAddress(callerAddr) || !common.IsHexAddress(receiverAddr) {
		printError(fmt.Errorf("--caller and --receiver must be addresses"))
		os.Exit(1)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	ctx := context.Background()
	rpc := rpcClient()

	stop := newSpinner("Resolving assets...", jsonOutput)
	swapArgs, fs, err := buildSwapArgs(ctx, rpc, intent)
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if verbose {
		fmt.Printf("\nRequest:\n")
		printJSON(swapArgs)
	}

	if !jsonOutput {
		displaySwapPreview(intent, swapArgs, fs)
		if !noConfirm && !confirmSwap() {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
	}

	stop = newSpinner("Submitting swap...", jsonOutput)
	req, err := rpc.Swap(ctx, swapArgs)
	stop()
	if err != nil {
		if verbose {
			fmt.Printf("\nDebug: reason code %s\n", types.ReasonCode(err))
		}
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(req)
		return
	}

	color.Green("\nSwap requested")
	fmt.Printf("  Swap ID:      %s\n", color.CyanString("%d", req.SwapID))
	fmt.Printf("  Pool Amount:  %s\n", req.PoolAssetAmount)
	fmt.Printf("  Fees:         %s (protocol %s, gas %s)\n", req.Fees(), req.ProtocolFee, req.GasFee)
	fmt.Printf("  Net:          %s\n", req.NetAmount())

	fmt.Println("\nYou can monitor the swap using:")
	color.Cyan("  xswap status %d %d\n", fromChain, req.SwapID)
}

// buildSwapArgs resolves symbols and amounts against the chains' assets
func buildSwapArgs(ctx context.Context, rpc *client.RPCClient, intent *parser.SwapIntent) (*api.SwapArgs, *types.FeeStructure, error) {
	srcAssets, err := rpc.Assets(ctx, fromChain)
	if err != nil {
		return nil, nil, err
	}
	dstAssets, err := rpc.Assets(ctx, intent.ToChainID)
	if err != nil {
		return nil, nil, err
	}

	src, err := findAsset(srcAssets, intent.SrcSymbol)
	if err != nil {
		return nil, nil, fmt.Errorf("source token error: %w", err)
	}
	pool := src
	if poolSymbol != "" {
		if pool, err = findAsset(srcAssets, poolSymbol); err != nil {
			return nil, nil, fmt.Errorf("pool token error: %w", err)
		}
	}
	dst, err := findAsset(dstAssets, intent.DstSymbol)
	if err != nil {
		return nil, nil, fmt.Errorf("destination token error: %w", err)
	}

	amount, err := parser.ParseAmount(intent.Amount, src.Decimals)
	if err != nil {
		return nil, nil, err
	}
	minOut, err := parser.ParseAmount(minReturn, dst.Decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("--min-return: %w", err)
	}

	args := &api.SwapArgs{
		ChainID:         fromChain,
		Caller:          common.HexToAddress(callerAddr),
		SrcAsset:        src.Asset,
		PoolAsset:       pool.Asset,
		AmountIn:        amount,
		ToChainID:       intent.ToChainID,
		Receiver:        common.HexToAddress(receiverAddr),
		DstAsset:        dst.Asset,
		MinReturnAmount: minOut,
	}
	if src.Asset == types.NativeAsset {
		args.Value = new(big.Int).Set(amount)
	}
	if src.Asset != pool.Asset {
		if !common.IsHexAddress(adapterAddr) {
			return nil, nil, fmt.Errorf("--adapter is required to convert %s into %s", src.Symbol, pool.Symbol)
		}
		args.Adapter = common.HexToAddress(adapterAddr)
	}

	fs, err := rpc.FeeStructure(ctx, fromChain, intent.ToChainID, pool.Asset)
	if err != nil {
		return nil, nil, err
	}
	return args, fs, nil
}

func findAsset(assets []ledger.AssetInfo, symbol string) (*ledger.AssetInfo, error) {
	symbol = parser.NormalizeTokenSymbol(symbol)
	for i := range assets {
		if parser.NormalizeTokenSymbol(assets[i].Symbol) == symbol {
			return &assets[i], nil
		}
	}
	return nil, fmt.Errorf("token '%s' not found", symbol)
}

func displaySwapPreview(intent *parser.SwapIntent, args *api.SwapArgs, fs *types.FeeStructure) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP REQUEST")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:              %s %s on chain %d\n", intent.Amount, color.YellowString(intent.SrcSymbol), args.ChainID)
	fmt.Printf("  To:                %s on chain %d\n", color.YellowString(intent.DstSymbol), args.ToChainID)
	fmt.Printf("  Receiver:          %s\n", color.CyanString(args.Receiver.Hex()))

	// Fees are exact when no input conversion happens
	if args.SrcAsset == args.PoolAsset {
		if protocolFee, gasFee, err := fee.Split(fs, args.AmountIn); err == nil {
			fmt.Printf("  Protocol Fee:      %s\n", protocolFee)
			fmt.Printf("  Gas Fee:           %s\n", gasFee)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func confirmSwap() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with swap? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
