// Package validate implements §4.G: the seven blocking checks and two
// warnings run against a built RewardDistribution before it is allowed
// to reach the submitter, plus the summary surfaced to operator
// dashboards (§4.G, §12).
package validate

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/paimon-protocol/erde/internal/merkle"

	"github.com/paimon-protocol/erde/internal/domain"
)

// DefaultMaxRewardDeviation is §4.G's default under-allocation warning
// threshold: 1%.
const DefaultMaxRewardDeviation = 0.01

// Result is §4.G's ValidationResult.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
	Summary  Summary
}

// Summary is the structured report surfaced to operations dashboards
// (§4.G "used by operations dashboards").
type Summary struct {
	Epoch           uint64
	RecipientCount  int
	TotalRewards    *big.Int
	WeeklyBudget    *big.Int
	UtilizationBps  int64 // basis points of weeklyBudget actually allocated
	TopRecipients   []RecipientSummary
}

// RecipientSummary is one line of the top-N recipient report.
type RecipientSummary struct {
	Address common.Address
	Amount  *big.Int
}

// Validator is §4.G's validator.
type Validator struct {
	maxRewardDeviation float64
}

func NewValidator(maxRewardDeviation float64) *Validator {
	if maxRewardDeviation <= 0 {
		maxRewardDeviation = DefaultMaxRewardDeviation
	}
	return &Validator{maxRewardDeviation: maxRewardDeviation}
}

// Validate runs every §4.G check against dist and returns a Result.
// Errors block submission; warnings do not.
func (v *Validator) Validate(dist domain.RewardDistribution) Result {
	var errs, warns []string

	// 1. totalRewards <= weeklyBudget
	if dist.WeeklyBudget != nil && dist.TotalRewards.Cmp(dist.WeeklyBudget) > 0 {
		errs = append(errs, "totalRewards exceeds weeklyBudget")
	}

	// 2. mass balance
	sum := big.NewInt(0)
	seen := make(map[common.Address]struct{}, len(dist.Recipients))
	var dupFound bool
	for _, r := range dist.Recipients {
		sum.Add(sum, r.TotalReward)
		if _, ok := seen[r.Address]; ok {
			dupFound = true
		}
		seen[r.Address] = struct{}{}
	}
	if sum.Cmp(dist.TotalRewards) != 0 {
		errs = append(errs, "sum of recipient totalReward does not equal totalRewards")
	}

	// 3. well-formed root
	var zero [32]byte
	if dist.MerkleRoot == zero {
		errs = append(errs, "merkle root is zero / not well-formed")
	}

	// 4. recipient count bound
	if len(dist.Recipients) < 1 || len(dist.Recipients) > merkle.MaxRecipients {
		errs = append(errs, fmt.Sprintf("recipient count %d outside [1, %d]", len(dist.Recipients), merkle.MaxRecipients))
	}

	// 5. no duplicate addresses
	if dupFound {
		errs = append(errs, "duplicate recipient address")
	}

	// 6. non-empty proof per recipient
	var missingProof bool
	for _, r := range dist.Recipients {
		if len(r.Proof) == 0 && len(dist.Recipients) > 1 {
			missingProof = true
		}
	}
	if missingProof {
		errs = append(errs, "one or more recipients have an empty merkle proof")
	}

	// 7. per-recipient breakdown consistency
	var inconsistent bool
	for _, r := range dist.Recipients {
		if !r.BreakdownConsistent() {
			inconsistent = true
		}
	}
	if inconsistent {
		errs = append(errs, "per-recipient reward breakdown is inconsistent")
	}

	// Warning: under-allocation relative to weeklyBudget.
	if dist.WeeklyBudget != nil && dist.WeeklyBudget.Sign() > 0 {
		threshold := new(big.Rat).SetFloat64(1 - v.maxRewardDeviation)
		thresholdAmount := new(big.Rat).SetInt(dist.WeeklyBudget)
		thresholdAmount.Mul(thresholdAmount, threshold)
		totalRat := new(big.Rat).SetInt(dist.TotalRewards)
		if totalRat.Cmp(thresholdAmount) < 0 {
			warns = append(warns, "utilization below (1 - maxRewardDeviation) * weeklyBudget")
		}
	}

	// Warning: zero-reward recipients.
	var zeroCount int
	for _, r := range dist.Recipients {
		if r.TotalReward.Sign() == 0 {
			zeroCount++
		}
	}
	if zeroCount > 0 {
		warns = append(warns, fmt.Sprintf("%d recipient(s) with totalReward == 0", zeroCount))
	}

	return Result{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warns,
		Summary:  buildSummary(dist),
	}
}

func buildSummary(dist domain.RewardDistribution) Summary {
	recipients := make([]RecipientSummary, len(dist.Recipients))
	for i, r := range dist.Recipients {
		recipients[i] = RecipientSummary{Address: r.Address, Amount: r.TotalReward}
	}
	sort.Slice(recipients, func(i, j int) bool {
		return recipients[i].Amount.Cmp(recipients[j].Amount) > 0
	})
	top := recipients
	if len(top) > 10 {
		top = top[:10]
	}

	var utilizationBps int64
	if dist.WeeklyBudget != nil && dist.WeeklyBudget.Sign() > 0 {
		ratio := new(big.Rat).SetFrac(dist.TotalRewards, dist.WeeklyBudget)
		bps := new(big.Rat).Mul(ratio, big.NewRat(10000, 1))
		utilizationBps = new(big.Int).Div(bps.Num(), bps.Denom()).Int64()
	}

	return Summary{
		Epoch:          dist.Epoch.Number,
		RecipientCount: len(dist.Recipients),
		TotalRewards:   dist.TotalRewards,
		WeeklyBudget:   dist.WeeklyBudget,
		UtilizationBps: utilizationBps,
		TopRecipients:  top,
	}
}
