package cli

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/paimon-protocol/erde/internal/erde"
)

var (
	runEpoch       uint64
	runStartBlock  uint64
	runEndBlock    uint64
	runUsersFile   string
	runSkipSubmit  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one full epoch: snapshot, weight, allocate, commit, submit",
	RunE:  runEpochCmd,
}

var validateOnlyCmd = &cobra.Command{
	Use:   "validate-only",
	Short: "Run one epoch through validation without submitting on-chain",
	RunE:  validateOnlyEpochCmd,
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, validateOnlyCmd} {
		cmd.Flags().Uint64Var(&runEpoch, "epoch", 0, "epoch number (required)")
		cmd.Flags().Uint64Var(&runStartBlock, "start-block", 0, "epoch window start block (required)")
		cmd.Flags().Uint64Var(&runEndBlock, "end-block", 0, "epoch window end block (required)")
		cmd.Flags().StringVar(&runUsersFile, "users", "", "path to a newline-delimited file of user addresses (required)")
		_ = cmd.MarkFlagRequired("epoch")
		_ = cmd.MarkFlagRequired("start-block")
		_ = cmd.MarkFlagRequired("end-block")
		_ = cmd.MarkFlagRequired("users")
	}
	runCmd.Flags().BoolVar(&runSkipSubmit, "skip-submit", false, "build and validate but do not submit the root on-chain")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateOnlyCmd)
}

func runEpochCmd(cmd *cobra.Command, args []string) error {
	return execute(cmd.Context(), !runSkipSubmit)
}

func validateOnlyEpochCmd(cmd *cobra.Command, args []string) error {
	return execute(cmd.Context(), false)
}

func execute(ctx context.Context, submit bool) error {
	provider, err := buildProvider()
	if err != nil {
		return fmt.Errorf("wiring pipeline: %w", err)
	}

	pl, err := provider.GetPipeline()
	if err != nil {
		return fmt.Errorf("resolving pipeline: %w", err)
	}

	users, err := loadAddressList(runUsersFile)
	if err != nil {
		return fmt.Errorf("loading users file: %w", err)
	}

	cfg := provider.GetConfig()
	pools := make([]common.Address, len(cfg.Contracts.LPTokens))
	for i, addr := range cfg.Contracts.LPTokens {
		pools[i] = common.HexToAddress(addr)
	}

	result, err := pl.Run(ctx, runEpoch, runStartBlock, runEndBlock, pools, users, submit)
	if err != nil {
		if kind, ok := erde.KindOf(err); ok {
			return fmt.Errorf("epoch %d failed (%s): %w", runEpoch, kind, err)
		}
		return err
	}

	if !quiet {
		fmt.Printf("epoch %d: %d recipients, totalRewards=%s, valid=%t\n",
			runEpoch, len(result.Distribution.Recipients), result.Distribution.TotalRewards.String(), result.Validation.Valid)
		if result.Submitted {
			fmt.Printf("submitted: tx=%s root=%x\n", result.TxHash.Hex(), result.Distribution.MerkleRoot)
		}
	}
	return nil
}
