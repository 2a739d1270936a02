package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Minimal read-surface ABIs (§6). ERDE never deploys or generates
// bindings for these contracts; it only ever calls the handful of
// view/write methods the spec names, so hand-rolled fragments are
// parsed once at startup instead of carrying a full abigen package.
const (
	erc20BalanceABI = `[{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

	vaultABI = `[{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"debtOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

	emissionManagerABI = `[{"constant":true,"inputs":[{"name":"epoch","type":"uint256"}],"name":"getWeeklyBudget","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

	rewardDistributorABI = `[
		{"constant":true,"inputs":[],"name":"owner","outputs":[{"name":"","type":"address"}],"type":"function"},
		{"constant":true,"inputs":[{"name":"epoch","type":"uint256"}],"name":"merkleRoots","outputs":[{"name":"","type":"bytes32"}],"type":"function"},
		{"constant":false,"inputs":[{"name":"root","type":"bytes32"},{"name":"epoch","type":"uint256"}],"name":"setMerkleRoot","outputs":[],"type":"function"}
	]`
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("chain: invalid embedded ABI: " + err.Error())
	}
	return parsed
}

var (
	erc20BalanceParsedABI       = mustParseABI(erc20BalanceABI)
	vaultParsedABI              = mustParseABI(vaultABI)
	emissionManagerParsedABI    = mustParseABI(emissionManagerABI)
	rewardDistributorParsedABI  = mustParseABI(rewardDistributorABI)
)
