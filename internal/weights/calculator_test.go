package weights

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paimon-protocol/erde/internal/domain"
)

func TestCompute_BasicSplit(t *testing.T) {
	pool := common.HexToAddress("0x1")
	u1 := common.HexToAddress("0x10")
	u2 := common.HexToAddress("0x20")

	snap := domain.EpochSnapshot{
		Pools: []common.Address{pool},
		Users: []domain.UserSnapshot{
			{Address: u1, Debt: big.NewInt(25), SPShares: big.NewInt(1), LPShares: map[common.Address]*big.Int{pool: big.NewInt(3)}},
			{Address: u2, Debt: big.NewInt(75), SPShares: big.NewInt(3), LPShares: map[common.Address]*big.Int{pool: big.NewInt(1)}},
		},
		TotalDebt:     big.NewInt(100),
		TotalSPShares: big.NewInt(4),
		TotalLPShares: map[common.Address]*big.Int{pool: big.NewInt(4)},
	}

	ws, err := NewCalculator().Compute(snap)
	require.NoError(t, err)
	require.Len(t, ws, 2)

	assert.Equal(t, big.NewRat(1, 4), ws[0].DebtWeight)
	assert.Equal(t, big.NewRat(3, 4), ws[1].DebtWeight)
	assert.Equal(t, big.NewRat(3, 4), ws[0].LPWeights[pool])
	assert.Equal(t, big.NewRat(1, 4), ws[1].LPWeights[pool])
}

func TestCompute_ZeroTotalProducesZeroWeights(t *testing.T) {
	u1 := common.HexToAddress("0x10")
	snap := domain.EpochSnapshot{
		Users: []domain.UserSnapshot{
			{Address: u1, Debt: big.NewInt(0), SPShares: big.NewInt(0), LPShares: map[common.Address]*big.Int{}},
		},
		TotalDebt:     big.NewInt(0),
		TotalSPShares: big.NewInt(0),
		TotalLPShares: map[common.Address]*big.Int{},
	}

	ws, err := NewCalculator().Compute(snap)
	require.NoError(t, err)
	assert.Equal(t, new(big.Rat), ws[0].DebtWeight)
}

func TestCompute_EmptySnapshotIsValid(t *testing.T) {
	ws, err := NewCalculator().Compute(domain.EpochSnapshot{
		TotalDebt:     big.NewInt(0),
		TotalSPShares: big.NewInt(0),
		TotalLPShares: map[common.Address]*big.Int{},
	})
	require.NoError(t, err)
	assert.Empty(t, ws)
}

func TestCompute_ManyUsersSumToUnity(t *testing.T) {
	snap := domain.EpochSnapshot{
		TotalSPShares: big.NewInt(0),
		TotalLPShares: map[common.Address]*big.Int{},
	}
	total := int64(0)
	for i := int64(1); i <= 7; i++ {
		snap.Users = append(snap.Users, domain.UserSnapshot{
			Address:  common.BigToAddress(big.NewInt(i)),
			Debt:     big.NewInt(i * 13),
			SPShares: big.NewInt(0),
			LPShares: map[common.Address]*big.Int{},
		})
		total += i * 13
	}
	snap.TotalDebt = big.NewInt(total)

	ws, err := NewCalculator().Compute(snap)
	require.NoError(t, err)

	sum := new(big.Rat)
	for _, w := range ws {
		sum.Add(sum, w.DebtWeight)
	}
	assert.Equal(t, big.NewRat(1, 1), sum)
}
