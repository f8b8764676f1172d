package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"xswap/pkg/client"
)

var (
	cfgFile string
	rpcURL  string
)

var rootCmd = &cobra.Command{
	Use:   "xswap",
	Short: "Cross-chain swap settlement devnet and client",
	Long: `xswap runs a devnet of simulated chains that settle cross-chain swaps
through a pool-asset registry, a relay worker and a validator quorum, and
talks to it over JSON-RPC.

Examples:
  xswap devnet
  xswap swap 1000 USDC to WETH on 2 --from-chain 1 --caller 0x... --receiver 0x...
  xswap status 1 7
  xswap list-tokens --chain 2 --account 0x...
  xswap validators list --chain 1`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default is $HOME/.xswap.yaml)")
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc", defaultRPCURL(), "Devnet JSON-RPC endpoint")
}

func defaultRPCURL() string {
	if url := os.Getenv("XSWAP_RPC_URL"); url != "" {
		return url
	}
	return "http://127.0.0.1:8645"
}

func rpcClient() *client.RPCClient {
	return client.NewRPCClient(rpcURL)
}

func newSpinner(suffix string, jsonOutput bool) func() {
	if jsonOutput {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + suffix
	s.Start()
	return s.Stop
}

func printJSON(v interface{}) {
	jsonData, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(jsonData))
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
