package artifact

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paimon-protocol/erde/internal/config"
	"github.com/paimon-protocol/erde/internal/domain"
	"github.com/paimon-protocol/erde/internal/validate"
)

func testOutputConfig(t *testing.T) config.OutputConfig {
	t.Helper()
	dir := t.TempDir()
	return config.OutputConfig{
		Dir:         dir,
		SnapshotCSV: "snapshot.csv",
		WeightsCSV:  "weights.csv",
		RewardsCSV:  "rewards.csv",
		MerkleJSON:  "merkle.json",
		SummaryText: "summary.txt",
	}
}

func TestWriteSnapshot(t *testing.T) {
	cfg := testOutputConfig(t)
	pool := common.HexToAddress("0x1")
	u1 := common.HexToAddress("0x10")
	snap := domain.EpochSnapshot{
		Pools: []common.Address{pool},
		Users: []domain.UserSnapshot{
			{Address: u1, Debt: big.NewInt(5), SPShares: big.NewInt(1), LPShares: map[common.Address]*big.Int{pool: big.NewInt(2)}, Timestamp: time.Unix(0, 0)},
		},
	}
	require.NoError(t, NewWriter(cfg).WriteSnapshot(snap))

	data, err := os.ReadFile(filepath.Join(cfg.Dir, cfg.SnapshotCSV))
	require.NoError(t, err)
	assert.Contains(t, string(data), u1.Hex())
	assert.Contains(t, string(data), "LP Pool 0")
}

func TestWriteMerkleJSON_BigIntegersAreStrings(t *testing.T) {
	cfg := testOutputConfig(t)
	pool := common.HexToAddress("0x1")
	u1 := common.HexToAddress("0x10")
	dist := domain.RewardDistribution{
		Epoch:        domain.Epoch{Number: 3},
		MerkleRoot:   [32]byte{0xAB},
		TotalRewards: big.NewInt(100),
		WeeklyBudget: big.NewInt(200),
		Recipients: []domain.UserReward{
			{Address: u1, TotalReward: big.NewInt(100), DebtReward: big.NewInt(60), SPReward: big.NewInt(20), LPRewards: map[common.Address]*big.Int{pool: big.NewInt(20)}, Proof: [][32]byte{{1}}},
		},
	}
	require.NoError(t, NewWriter(cfg).WriteMerkleJSON(dist, time.Unix(1700000000, 0)))

	data, err := os.ReadFile(filepath.Join(cfg.Dir, cfg.MerkleJSON))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "100", decoded["totalRewards"])
	assert.Equal(t, "200", decoded["weeklyBudget"])
	assert.Equal(t, float64(3), decoded["epoch"])
}

func TestWriteSummary(t *testing.T) {
	cfg := testOutputConfig(t)
	summary := validate.Summary{
		Epoch:          1,
		RecipientCount: 1,
		TotalRewards:   big.NewInt(100),
		WeeklyBudget:   big.NewInt(100),
		UtilizationBps: 10000,
		TopRecipients:  []validate.RecipientSummary{{Address: common.HexToAddress("0x10"), Amount: big.NewInt(100)}},
	}
	result := validate.Result{Valid: true}
	require.NoError(t, NewWriter(cfg).WriteSummary(summary, result))

	data, err := os.ReadFile(filepath.Join(cfg.Dir, cfg.SummaryText))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Validation: PASS")
	assert.Contains(t, string(data), "Top recipients")
}
