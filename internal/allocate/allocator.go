// Package allocate implements §4.E: split the weekly budget into
// debt/stability-pool/LP channels by fixed bps fractions, distribute
// each channel's slice in proportion to per-user weight, and fold every
// channel's floor-rounding remainder into a treasury residual so the
// total allocated equals the budget exactly.
package allocate

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/paimon-protocol/erde/internal/domain"
	"github.com/paimon-protocol/erde/internal/erde"
)

const stageAllocate = "allocate"

// Policy is the allocator's governance input (§4.E "Governance hook").
// Fractions are immutable configuration, not a runtime decision.
type Policy struct {
	DebtFraction          *big.Rat
	StabilityPoolFraction *big.Rat
	LPFraction            *big.Rat
	TreasuryAddress       common.Address
}

// Allocator is §4.E's channel allocator.
type Allocator struct {
	policy Policy
}

func NewAllocator(policy Policy) *Allocator {
	return &Allocator{policy: policy}
}

// Allocate splits weeklyBudget across channels per snap.Pools and
// returns one UserReward per user plus the treasury residual as a
// synthetic recipient (§4.E "reference behavior": fold Σ r_c into the
// treasury residual so Σ recipients.totalReward == E(w)).
func (a *Allocator) Allocate(snap domain.EpochSnapshot, ws []domain.TWADWeight, weeklyBudget *big.Int) ([]domain.UserReward, error) {
	if weeklyBudget == nil || weeklyBudget.Sign() < 0 {
		return nil, erde.NewPolicyViolation(stageAllocate, "weekly budget must be non-negative", nil)
	}

	debtSlice := sliceOf(weeklyBudget, a.policy.DebtFraction)
	spSlice := sliceOf(weeklyBudget, a.policy.StabilityPoolFraction)
	lpSlice := sliceOf(weeklyBudget, a.policy.LPFraction)

	numPools := len(snap.Pools)
	poolSlices := make(map[common.Address]*big.Int, numPools)
	lpSliceAllocatedToPools := big.NewInt(0)
	if numPools > 0 {
		perPool := new(big.Int).Div(lpSlice, big.NewInt(int64(numPools)))
		for _, pool := range snap.Pools {
			poolSlices[pool] = new(big.Int).Set(perPool)
			lpSliceAllocatedToPools.Add(lpSliceAllocatedToPools, perPool)
		}
	}

	rewards := make([]domain.UserReward, len(ws))
	debtAllocated := big.NewInt(0)
	spAllocated := big.NewInt(0)
	lpAllocated := make(map[common.Address]*big.Int, numPools)
	for _, pool := range snap.Pools {
		lpAllocated[pool] = big.NewInt(0)
	}

	for i, w := range ws {
		debtReward := floorProduct(debtSlice, w.DebtWeight)
		spReward := floorProduct(spSlice, w.SPWeight)
		lpRewards := make(map[common.Address]*big.Int, numPools)
		for _, pool := range snap.Pools {
			lpRewards[pool] = floorProduct(poolSlices[pool], w.LPWeights[pool])
			lpAllocated[pool].Add(lpAllocated[pool], lpRewards[pool])
		}

		debtAllocated.Add(debtAllocated, debtReward)
		spAllocated.Add(spAllocated, spReward)

		total := new(big.Int).Add(debtReward, spReward)
		for _, pool := range snap.Pools {
			total.Add(total, lpRewards[pool])
		}

		rewards[i] = domain.UserReward{
			Address:     w.Address,
			TotalReward: total,
			DebtReward:  debtReward,
			LPRewards:   lpRewards,
			SPReward:    spReward,
		}
		if !rewards[i].BreakdownConsistent() {
			return nil, erde.NewIntegrityMismatch(stageAllocate, "reward breakdown inconsistent for "+w.Address.Hex(), nil)
		}
	}

	slicesTotal := new(big.Int).Add(debtSlice, spSlice)
	slicesTotal.Add(slicesTotal, lpSlice)
	residual := new(big.Int).Sub(weeklyBudget, slicesTotal) // independent per-channel floor rounding of the budget itself

	residual.Add(residual, new(big.Int).Sub(debtSlice, debtAllocated))
	residual.Add(residual, new(big.Int).Sub(spSlice, spAllocated))
	residual.Add(residual, new(big.Int).Sub(lpSlice, lpSliceAllocatedToPools))
	for _, pool := range snap.Pools {
		residual.Add(residual, new(big.Int).Sub(poolSlices[pool], lpAllocated[pool]))
	}

	if residual.Sign() > 0 {
		rewards = append(rewards, treasuryResidual(a.policy.TreasuryAddress, residual))
	} else if residual.Sign() < 0 {
		return nil, erde.NewIntegrityMismatch(stageAllocate, "negative channel residual, rounding invariant violated", nil)
	}

	if err := verifyExactIdentity(rewards, weeklyBudget); err != nil {
		return nil, err
	}

	return rewards, nil
}

func treasuryResidual(treasury common.Address, amount *big.Int) domain.UserReward {
	return domain.UserReward{
		Address:     treasury,
		TotalReward: amount,
		DebtReward:  big.NewInt(0),
		SPReward:    amount,
		LPRewards:   map[common.Address]*big.Int{},
	}
}

func sliceOf(budget *big.Int, fraction *big.Rat) *big.Int {
	product := new(big.Rat).SetInt(budget)
	product.Mul(product, fraction)
	return new(big.Int).Div(product.Num(), product.Denom())
}

// floorProduct returns floor(amount * weight) for a non-negative
// integer amount and a weight in [0,1].
func floorProduct(amount *big.Int, weight *big.Rat) *big.Int {
	if weight == nil || amount == nil {
		return big.NewInt(0)
	}
	product := new(big.Rat).SetInt(amount)
	product.Mul(product, weight)
	return new(big.Int).Div(product.Num(), product.Denom())
}

func verifyExactIdentity(rewards []domain.UserReward, weeklyBudget *big.Int) error {
	total := big.NewInt(0)
	for _, r := range rewards {
		total.Add(total, r.TotalReward)
	}
	if total.Cmp(weeklyBudget) != 0 {
		return erde.NewIntegrityMismatch(stageAllocate, "sum of recipient rewards does not equal weekly budget", nil)
	}
	return nil
}
