package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Validate performs comprehensive validation on a loaded Config.
func Validate(cfg *Config) error {
	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc_url is required")
	}

	if err := validateContracts(cfg.Contracts); err != nil {
		return fmt.Errorf("contracts: %w", err)
	}

	if cfg.TreasuryAddress != "" && !common.IsHexAddress(cfg.TreasuryAddress) {
		return fmt.Errorf("treasury_address is not a valid EIP-55 address: %s", cfg.TreasuryAddress)
	}

	if cfg.SnapshotBlockRange == 0 {
		return fmt.Errorf("snapshot_block_range must be > 0")
	}
	if cfg.SnapshotConcurrency <= 0 {
		return fmt.Errorf("snapshot_concurrency must be > 0")
	}

	if err := validatePolicy(cfg.Policy); err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	if cfg.MaxRewardDeviation < 0 || cfg.MaxRewardDeviation > 1 {
		return fmt.Errorf("max_reward_deviation must be in [0,1]")
	}

	if cfg.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	for name, val := range map[string]string{
		"output.snapshot_csv": cfg.Output.SnapshotCSV,
		"output.weights_csv":  cfg.Output.WeightsCSV,
		"output.rewards_csv":  cfg.Output.RewardsCSV,
		"output.merkle_json":  cfg.Output.MerkleJSON,
		"output.summary_text": cfg.Output.SummaryText,
	} {
		if val == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if cfg.ChainRetryAttempts <= 0 {
		return fmt.Errorf("chain_retry_attempts must be > 0")
	}
	if cfg.ChainRetryBaseDelayMS < 0 {
		return fmt.Errorf("chain_retry_base_delay_ms must be >= 0")
	}
	if cfg.ChainCallTimeoutSeconds <= 0 {
		return fmt.Errorf("chain_call_timeout_seconds must be > 0")
	}

	return nil
}

func validateContracts(c ContractsConfig) error {
	required := map[string]string{
		"vault":              c.Vault,
		"stability_pool":     c.StabilityPool,
		"reward_distributor": c.RewardDistributor,
		"emission_manager":   c.EmissionManager,
	}
	for name, addr := range required {
		if addr == "" {
			return fmt.Errorf("%s address is required", name)
		}
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not a valid EIP-55 address: %s", name, addr)
		}
	}
	if len(c.LPTokens) == 0 {
		return fmt.Errorf("at least one lp_tokens address is required")
	}
	seen := make(map[string]bool, len(c.LPTokens))
	for _, addr := range c.LPTokens {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("lp_tokens contains an invalid address: %s", addr)
		}
		lower := common.HexToAddress(addr).Hex()
		if seen[lower] {
			return fmt.Errorf("lp_tokens contains a duplicate address: %s", addr)
		}
		seen[lower] = true
	}
	return nil
}

func validatePolicy(p PolicyConfig) error {
	total := p.DebtBps + p.StabilityPoolBps + p.LPBps
	if total != BpsDenominator {
		return fmt.Errorf("debt_bps + stability_pool_bps + lp_bps must equal %d, got %d", BpsDenominator, total)
	}
	return nil
}
