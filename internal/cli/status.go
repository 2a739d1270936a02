package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paimon-protocol/erde/internal/statusrpc"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Serve the read-only pipeline status gRPC endpoint",
	RunE:  runStatusCmd,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	provider, err := buildProvider()
	if err != nil {
		return fmt.Errorf("wiring pipeline: %w", err)
	}

	board, err := provider.GetStatusBoard()
	if err != nil {
		return fmt.Errorf("resolving status board: %w", err)
	}

	cfg := provider.GetConfig().Status
	return statusrpc.Serve(statusrpc.ServerConfig{
		Address:        cfg.ListenAddress,
		MaxRecvMsgSize: 4 * 1024 * 1024,
		MaxSendMsgSize: 4 * 1024 * 1024,
	}, board, newLogger())
}
