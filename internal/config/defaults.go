package config

import "github.com/spf13/viper"

// setDefaults sets every value ERDE can run with out of the box, in the
// absence of a config file. Contract addresses and RPCURL have no sane
// default and must always come from a file or environment variable.
func setDefaults(v *viper.Viper) {
	v.SetDefault("snapshot_block_range", 7200)
	v.SetDefault("snapshot_concurrency", 8)

	v.SetDefault("output.dir", "./erde-artifacts")
	v.SetDefault("output.snapshot_csv", "snapshot.csv")
	v.SetDefault("output.weights_csv", "weights.csv")
	v.SetDefault("output.rewards_csv", "rewards.csv")
	v.SetDefault("output.merkle_json", "merkle.json")
	v.SetDefault("output.summary_text", "summary.txt")

	v.SetDefault("max_reward_deviation", 0.01)
	v.SetDefault("force_update", false)

	// Reference policy (§4.E): 40% debt / 30% stability pool / 30% LP.
	v.SetDefault("policy.debt_bps", 4000)
	v.SetDefault("policy.stability_pool_bps", 3000)
	v.SetDefault("policy.lp_bps", 3000)

	v.SetDefault("cache.dir", "./erde-artifacts/cache")
	v.SetDefault("cache.compress_above_bytes", 4096)

	v.SetDefault("audit.path", "./erde-artifacts/audit.sqlite")

	v.SetDefault("status.listen_address", "127.0.0.1:50061")

	v.SetDefault("chain_retry_attempts", 3)
	v.SetDefault("chain_retry_base_delay_ms", 100)
	v.SetDefault("chain_call_timeout_seconds", 15)
}
