package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"xswap/config"
	"xswap/pkg/client"
	"xswap/pkg/ledger"
	"xswap/pkg/parser"
)

var (
	filterChain  uint64
	filterSymbol string
	accountAddr  string
	listOneClick bool
	oneClickNet  string
)

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List registered assets and balances",
	Long: `List the assets registered on every chain. With --account, show that
account's balance of each asset. With --oneclick, show the 1Click token each
asset is matched to by quote adapters; "-" marks assets 1Click cannot price.

Examples:
  xswap list-tokens
  xswap list-tokens --chain 1 --account 0xc1...
  xswap list-tokens --oneclick --network eth`,
	Args: cobra.NoArgs,
	Run:  runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().Uint64Var(&filterChain, "chain", 0, "Filter by chain id")
	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
	tokensCmd.Flags().StringVar(&accountAddr, "account", "", "Show balances of this account")
	tokensCmd.Flags().BoolVar(&listOneClick, "oneclick", false, "Show the 1Click token each asset is priced as")
	tokensCmd.Flags().StringVar(&oneClickNet, "network", "", "1Click blockchain to match tokens on (default oneclick.chain)")
}

type assetRow struct {
	ChainID  uint64         `json:"chain_id"`
	Asset    common.Address `json:"asset"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	Balance  string         `json:"balance,omitempty"`
	OneClick string         `json:"oneclick_asset,omitempty"`
}

func runListTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if listOneClick {
		listOneClickTokens(jsonOutput)
		return
	}
	if accountAddr != "" && !common.IsHexAddress(accountAddr) {
		printError(fmt.Errorf("invalid account address: %s", accountAddr))
		os.Exit(1)
	}

	stop := newSpinner("Fetching assets...", jsonOutput)
	rows, err := fetchAssets(context.Background(), rpcClient())
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(rows)
	} else {
		displayAssets(rows)
	}
}

func fetchAssets(ctx context.Context, rpc *client.RPCClient) ([]assetRow, error) {
	ids, err := rpc.Chains(ctx)
	if err != nil {
		return nil, err
	}

	var rows []assetRow
	for _, id := range ids {
		if filterChain != 0 && id != filterChain {
			continue
		}
		assets, err := rpc.Assets(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, a := range assets {
			if filterSymbol != "" && !strings.Contains(strings.ToUpper(a.Symbol), strings.ToUpper(filterSymbol)) {
				continue
			}
			row := assetRow{ChainID: id, Asset: a.Asset, Symbol: a.Symbol, Decimals: a.Decimals}
			if accountAddr != "" {
				bal, err := rpc.Balance(ctx, id, a.Asset, common.HexToAddress(accountAddr))
				if err != nil {
					return nil, err
				}
				row.Balance = parser.FormatAmount(bal, a.Decimals)
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func displayAssets(rows []assetRow) {
	if len(rows) == 0 {
		fmt.Println("\nNo assets found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            REGISTERED ASSETS")
	fmt.Println(strings.Repeat("=", 90))

	chains := 0
	for i, row := range rows {
		if i == 0 || rows[i-1].ChainID != row.ChainID {
			chains++
			color.Cyan("\nCHAIN %d", row.ChainID)
			fmt.Println(strings.Repeat("-", 90))
		}
		line := fmt.Sprintf("  %-10s  %2d decimals  %s",
			color.YellowString(row.Symbol),
			row.Decimals,
			color.HiBlackString(row.Asset.Hex()))
		if row.Balance != "" {
			line += "  " + row.Balance
		}
		if row.OneClick != "" {
			line += "  " + color.MagentaString(row.OneClick)
		}
		fmt.Println(line)
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d assets across %d chains\n\n", len(rows), chains)
}

// listOneClickTokens shows which registered assets a 1Click quote adapter
// can price, and the 1Click asset each one is quoted as
func listOneClickTokens(jsonOutput bool) {
	jwt := os.Getenv("XSWAP_ONECLICK_JWT_TOKEN")
	network := oneClickNet
	if cfg, err := config.Load(cfgFile); err == nil {
		if cfg.OneClick.JWTToken != "" {
			jwt = cfg.OneClick.JWTToken
		}
		if network == "" {
			network = cfg.OneClick.Chain
		}
	}
	quoter := client.NewOneClickQuoter(client.NewOneClickClient(jwt), network, "")

	ctx := context.Background()
	stop := newSpinner("Matching assets to 1Click tokens...", jsonOutput)
	rows, err := fetchAssets(ctx, rpcClient())
	var priced []client.PricedAsset
	if err == nil {
		assets := make([]ledger.AssetInfo, len(rows))
		for i, row := range rows {
			assets[i] = ledger.AssetInfo{Asset: row.Asset, Symbol: row.Symbol, Decimals: row.Decimals}
		}
		priced, err = quoter.Tokens(ctx, assets)
	}
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	for i, p := range priced {
		rows[i].OneClick = "-"
		if p.Token != nil {
			rows[i].OneClick = p.Token.GetAssetId()
		}
	}

	if jsonOutput {
		printJSON(rows)
	} else {
		displayAssets(rows)
	}
}
