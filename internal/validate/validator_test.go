package validate

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paimon-protocol/erde/internal/domain"
	"github.com/paimon-protocol/erde/internal/merkle"
)

func buildValidDistribution(t *testing.T, budget int64) domain.RewardDistribution {
	t.Helper()
	recipients := []domain.UserReward{
		reward("0x1", 10),
		reward("0x2", 20),
		reward("0x3", 30),
	}
	dist, err := merkle.NewEngine().Build(domain.Epoch{Number: 1}, recipients, big.NewInt(budget))
	require.NoError(t, err)
	return dist
}

func reward(addr string, amount int64) domain.UserReward {
	return domain.UserReward{Address: common.HexToAddress(addr), TotalReward: big.NewInt(amount)}
}

func TestValidate_HappyPathIsValid(t *testing.T) {
	dist := buildValidDistribution(t, 60)
	result := NewValidator(0).Validate(dist)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidate_ExceedsBudgetIsError(t *testing.T) {
	dist := buildValidDistribution(t, 60)
	dist.WeeklyBudget = big.NewInt(10)
	dist.TotalRewards = big.NewInt(60)
	result := NewValidator(0).Validate(dist)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "totalRewards exceeds weeklyBudget")
}

func TestValidate_UnderAllocationWarns(t *testing.T) {
	dist := buildValidDistribution(t, 1000)
	result := NewValidator(0.01).Validate(dist)
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)
}

func TestValidate_ZeroRewardRecipientWarns(t *testing.T) {
	recipients := []domain.UserReward{
		{Address: buildValidDistribution(t, 60).Recipients[0].Address, TotalReward: big.NewInt(0)},
	}
	dist, err := merkle.NewEngine().Build(domain.Epoch{}, recipients, big.NewInt(0))
	require.NoError(t, err)
	result := NewValidator(0).Validate(dist)
	assert.Contains(t, result.Warnings[len(result.Warnings)-1], "totalReward == 0")
}

func TestValidate_SummaryTopRecipientsSortedDescending(t *testing.T) {
	dist := buildValidDistribution(t, 60)
	result := NewValidator(0).Validate(dist)
	require.Len(t, result.Summary.TopRecipients, 3)
	assert.True(t, result.Summary.TopRecipients[0].Amount.Cmp(result.Summary.TopRecipients[1].Amount) >= 0)
}
