// Package config loads and validates the immutable configuration value
// that is threaded through every ERDE pipeline stage.
package config

import "math/big"

// Config is the complete, immutable configuration for one ERDE run.
// It is constructed once by Load and passed by value into the pipeline
// constructor; no package reads the environment or a config file after
// Load returns.
type Config struct {
	// RPCURL is the endpoint used for all chain reads and the single
	// write (setMerkleRoot).
	RPCURL string `mapstructure:"rpc_url"`

	Contracts ContractsConfig `mapstructure:"contracts"`

	// SnapshotBlockRange is validated to be > 0 but is not read by the
	// pipeline: the epoch window comes from the explicit start and end
	// blocks passed to Pipeline.Run.
	SnapshotBlockRange uint64 `mapstructure:"snapshot_block_range"`

	// SnapshotConcurrency bounds the number of in-flight per-user RPC
	// fetches during aggregation (§4.B).
	SnapshotConcurrency int `mapstructure:"snapshot_concurrency"`

	Output OutputConfig `mapstructure:"output"`

	// MaxRewardDeviation is the validator's utilization warning
	// threshold, e.g. 0.01 for 1%.
	MaxRewardDeviation float64 `mapstructure:"max_reward_deviation"`

	// ForceUpdate allows the submitter to overwrite an existing non-zero
	// on-chain root for the same epoch.
	ForceUpdate bool `mapstructure:"force_update"`

	// TreasuryAddress receives the rounding-remainder residual (§4.E,
	// §9 Open Question (b)).
	TreasuryAddress string `mapstructure:"treasury_address"`

	Policy PolicyConfig `mapstructure:"policy"`

	Cache CacheConfig `mapstructure:"cache"`
	Audit AuditConfig `mapstructure:"audit"`
	Status StatusConfig `mapstructure:"status"`

	// ChainRetryAttempts and ChainRetryBaseDelayMS parameterize §4.A's
	// retry policy: up to N attempts, linear backoff base*（attempt+1).
	ChainRetryAttempts   int `mapstructure:"chain_retry_attempts"`
	ChainRetryBaseDelayMS int `mapstructure:"chain_retry_base_delay_ms"`

	// ChainCallTimeoutSeconds is validated to be > 0 but is not applied
	// to any RPC call; each attempt is bounded only by the caller's
	// context.
	ChainCallTimeoutSeconds int `mapstructure:"chain_call_timeout_seconds"`

	// path the config was loaded from, kept for diagnostics only.
	sourcePath string
}

// ContractsConfig names every on-chain collaborator ERDE talks to (§6).
type ContractsConfig struct {
	Vault             string   `mapstructure:"vault"`
	StabilityPool     string   `mapstructure:"stability_pool"`
	RewardDistributor string   `mapstructure:"reward_distributor"`
	EmissionManager   string   `mapstructure:"emission_manager"`
	LPTokens          []string `mapstructure:"lp_tokens"`
}

// OutputConfig names the output directory and the five artifact
// filenames (§6).
type OutputConfig struct {
	Dir             string `mapstructure:"dir"`
	SnapshotCSV     string `mapstructure:"snapshot_csv"`
	WeightsCSV      string `mapstructure:"weights_csv"`
	RewardsCSV      string `mapstructure:"rewards_csv"`
	MerkleJSON      string `mapstructure:"merkle_json"`
	SummaryText     string `mapstructure:"summary_text"`
}

// PolicyConfig is the governance hook named in §4.E — an immutable
// configuration input to the allocator, not a runtime decision.
type PolicyConfig struct {
	// Channel fractions, expressed as parts-per-10000 so they stay
	// exact integers (40% == 4000).
	DebtBps          uint64 `mapstructure:"debt_bps"`
	StabilityPoolBps uint64 `mapstructure:"stability_pool_bps"`
	LPBps            uint64 `mapstructure:"lp_bps"`
}

// CacheConfig configures the pebble-backed stage cache.
type CacheConfig struct {
	Dir                   string `mapstructure:"dir"`
	CompressAboveBytes    int    `mapstructure:"compress_above_bytes"`
}

// AuditConfig configures the sqlite submission audit ledger.
type AuditConfig struct {
	Path string `mapstructure:"path"`
}

// StatusConfig configures the operator-facing gRPC status surface.
type StatusConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
}

// BpsDenominator is the fixed-point denominator PolicyConfig fractions
// are expressed against.
const BpsDenominator = 10000

// DebtFraction, StabilityPoolFraction and LPFraction return the
// policy's channel splits as exact rationals.
func (p PolicyConfig) DebtFraction() *big.Rat {
	return big.NewRat(int64(p.DebtBps), BpsDenominator)
}

func (p PolicyConfig) StabilityPoolFraction() *big.Rat {
	return big.NewRat(int64(p.StabilityPoolBps), BpsDenominator)
}

func (p PolicyConfig) LPFraction() *big.Rat {
	return big.NewRat(int64(p.LPBps), BpsDenominator)
}

// SourcePath returns the path Load read the main config file from, or
// "" if only defaults/env were used.
func (c *Config) SourcePath() string {
	return c.sourcePath
}
