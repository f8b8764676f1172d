package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"xswap/config"
	"xswap/pkg/devnet"
)

var devnetCmd = &cobra.Command{
	Use:   "devnet",
	Short: "Run the configured chains with the relay and the RPC endpoint",
	Long: `Open every chain from the config file, apply its genesis on first start,
and run the relay worker, the attestor, the JSON-RPC API and the metrics
endpoint until interrupted.

Examples:
  xswap devnet
  xswap devnet --config ./devnet.yaml`,
	Args: cobra.NoArgs,
	Run:  runDevnet,
}

func init() {
	rootCmd.AddCommand(devnetCmd)
}

func runDevnet(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	// Load configuration
	cfg, err := config.Load(cfgFile)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	log, err := cfg.Logger()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	stop := newSpinner("Starting devnet...", jsonOutput)
	node, err := devnet.New(cfg, log)
	if err == nil {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		err = node.Start(ctx)
	}
	stop()
	if err != nil {
		if node != nil {
			_ = node.Stop()
		}
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"chains":  node.Chains().IDs(),
			"rpc":     node.RPCAddr(),
			"metrics": node.MetricsAddr(),
		})
	} else {
		color.Green("\nDevnet running")
		for _, id := range node.Chains().IDs() {
			color.Cyan("  chain %d", id)
		}
		if addr := node.RPCAddr(); addr != "" {
			color.Cyan("  rpc      http://%s", addr)
		}
		if addr := node.MetricsAddr(); addr != "" {
			color.Cyan("  metrics  http://%s/metrics", addr)
		}
		color.HiBlack("\nPress Ctrl+C to stop.\n")
	}

	if err := node.Wait(); err != nil {
		log.Error("devnet failed", zap.Error(err))
	}
	if err := node.Stop(); err != nil {
		printError(err)
		os.Exit(1)
	}
	printSuccess("Devnet stopped.")
}
