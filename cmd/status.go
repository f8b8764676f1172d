package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"xswap/pkg/client"
	"xswap/pkg/registry"
	"xswap/pkg/types"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status [<chain-id> <swap-id>]",
	Short: "Check the status of a swap or of every chain",
	Long: `Without arguments, show the registry status of every chain. With a chain
id and a swap id, show the swap request and how it was closed on its target
chain.

Examples:
  xswap status
  xswap status 1 7
  xswap status 1 7 --watch --interval 2`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("expected no arguments or <chain-id> <swap-id>")
		}
		return nil
	},
	Run: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates continuously")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	rpc := rpcClient()

	if len(args) == 0 {
		showChains(rpc, jsonOutput)
		return
	}

	chainID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		printError(fmt.Errorf("invalid chain id: %w", err))
		os.Exit(1)
	}
	swapID, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		printError(fmt.Errorf("invalid swap id: %w", err))
		os.Exit(1)
	}

	if watchStatus {
		watchSwapStatus(rpc, chainID, swapID, jsonOutput)
	} else {
		checkSwapStatus(rpc, chainID, swapID, jsonOutput)
	}
}

type swapStatus struct {
	Request *types.SwapRequest `json:"request"`
	Record  *types.CloseRecord `json:"close_record,omitempty"`
}

func fetchSwapStatus(rpc *client.RPCClient, chainID, swapID uint64) (*swapStatus, error) {
	ctx := context.Background()
	req, err := rpc.GetSwap(ctx, chainID, swapID)
	if err != nil {
		return nil, err
	}
	rec, err := rpc.GetCloseRecord(ctx, req.ToChainID, chainID, swapID)
	if err != nil {
		return nil, err
	}
	return &swapStatus{Request: req, Record: rec}, nil
}

func checkSwapStatus(rpc *client.RPCClient, chainID, swapID uint64, jsonOutput bool) {
	stop := newSpinner("Checking swap status...", jsonOutput)
	status, err := fetchSwapStatus(rpc, chainID, swapID)
	stop()

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(status)
	} else {
		displayStatus(status, chainID)
	}
}

func watchSwapStatus(rpc *client.RPCClient, chainID, swapID uint64, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	fmt.Printf("\nWatching swap %s on chain %d\n", color.CyanString("%d", swapID), chainID)
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	// Check immediately first
	if checkAndDisplayStatus(rpc, chainID, swapID) {
		return
	}

	// Then check periodically until the request is closed
	for range ticker.C {
		if checkAndDisplayStatus(rpc, chainID, swapID) {
			return
		}
	}
}

func checkAndDisplayStatus(rpc *client.RPCClient, chainID, swapID uint64) bool {
	status, err := fetchSwapStatus(rpc, chainID, swapID)
	if err != nil {
		color.Red("Error: %v", err)
		return false
	}

	displayStatus(status, chainID)
	return !status.Request.IsOpen()
}

func displayStatus(status *swapStatus, chainID uint64) {
	req := status.Request

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        SWAP STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Swap:            %d on chain %d -> chain %d\n", req.SwapID, chainID, req.ToChainID)
	fmt.Printf("  Status:          %s\n", getColoredStatus(req.Status.String()))
	fmt.Printf("  Requested At:    %s\n", time.Unix(int64(req.RequestedAt), 0).Format("2006-01-02 15:04:05"))
	fmt.Printf("  Sender:          %s\n", color.HiBlackString(req.Sender.Hex()))
	fmt.Printf("  Receiver:        %s\n", color.HiBlackString(req.Receiver.Hex()))
	fmt.Printf("  Pool Amount:     %s\n", req.PoolAssetAmount)
	fmt.Printf("  Fees:            %s\n", req.Fees())

	if rec := status.Record; rec != nil {
		fmt.Printf("  Outcome:         %s\n", getColoredStatus(rec.Outcome.String()))
		if rec.AmountOut != nil {
			fmt.Printf("  Amount Out:      %s\n", rec.AmountOut)
		}
		fmt.Printf("  Closed At:       %s\n", time.Unix(int64(rec.ClosedAt), 0).Format("2006-01-02 15:04:05"))
	} else {
		fmt.Printf("  Outcome:         %s\n", color.YellowString("PENDING"))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func showChains(rpc *client.RPCClient, jsonOutput bool) {
	ctx := context.Background()
	stop := newSpinner("Fetching chains...", jsonOutput)
	statuses, err := fetchChainStatuses(ctx, rpc)
	stop()

	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if jsonOutput {
		printJSON(statuses)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nCHAIN\tREGISTRY\tSWAP IDS\tPAUSED\tACCEPTING")
	for _, st := range statuses {
		fmt.Fprintf(w, "%d\t%s\t[%d, %d)\t%v\t%v\n", st.ChainID, st.Address.Hex(), st.StartSwapID, st.NextSwapID, st.Paused, st.Accepting)
	}
	_ = w.Flush()
	fmt.Println()
}

func fetchChainStatuses(ctx context.Context, rpc *client.RPCClient) ([]*registry.Status, error) {
	ids, err := rpc.Chains(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make([]*registry.Status, 0, len(ids))
	for _, id := range ids {
		st, err := rpc.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func getColoredStatus(status string) string {
	status = strings.ToUpper(status)

	switch status {
	case "CLOSED", "SUCCESS", "NON_SWAPPED":
		return color.GreenString(status)
	case "OPEN", "PENDING":
		return color.YellowString(status)
	case "FAILED", "LOCKED":
		return color.RedString(status)
	default:
		return status
	}
}
