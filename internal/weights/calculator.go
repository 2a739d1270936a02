// Package weights implements §4.C: per-channel TWAD weight derivation
// from an EpochSnapshot, using exact rational arithmetic so the
// sum-to-unity check is a meaningful fatal-error tripwire rather than
// float noise.
package weights

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/paimon-protocol/erde/internal/domain"
	"github.com/paimon-protocol/erde/internal/erde"
)

const stageWeights = "weights"

// unityTolerance is 1e-10, matching §4.C's sum-to-unity tolerance.
var unityTolerance = big.NewRat(1, 10_000_000_000)

// Calculator is §4.C's TWAD weight calculator.
type Calculator struct{}

func NewCalculator() *Calculator { return &Calculator{} }

// Compute derives one TWADWeight per user and verifies sum-to-unity for
// every channel whose total is non-zero.
func (c *Calculator) Compute(snap domain.EpochSnapshot) ([]domain.TWADWeight, error) {
	weights := make([]domain.TWADWeight, len(snap.Users))

	debtSum := new(big.Rat)
	spSum := new(big.Rat)
	lpSum := make(map[common.Address]*big.Rat, len(snap.Pools))
	for _, pool := range snap.Pools {
		lpSum[pool] = new(big.Rat)
	}

	for i, u := range snap.Users {
		debtWeight := fraction(u.Debt, snap.TotalDebt)
		spWeight := fraction(u.SPShares, snap.TotalSPShares)
		lpWeights := make(map[common.Address]*big.Rat, len(snap.Pools))
		for _, pool := range snap.Pools {
			amt := u.LPShares[pool]
			if amt == nil {
				amt = big.NewInt(0)
			}
			lpWeights[pool] = fraction(amt, snap.TotalLPShares[pool])
		}

		if err := assertBounded(debtWeight); err != nil {
			return nil, err
		}
		if err := assertBounded(spWeight); err != nil {
			return nil, err
		}
		for _, w := range lpWeights {
			if err := assertBounded(w); err != nil {
				return nil, err
			}
		}

		debtSum.Add(debtSum, debtWeight)
		spSum.Add(spSum, spWeight)
		for _, pool := range snap.Pools {
			lpSum[pool].Add(lpSum[pool], lpWeights[pool])
		}

		weights[i] = domain.TWADWeight{
			Address:    u.Address,
			DebtWeight: debtWeight,
			LPWeights:  lpWeights,
			SPWeight:   spWeight,
		}
	}

	if err := assertSumToUnity(snap.TotalDebt, debtSum, "debt"); err != nil {
		return nil, err
	}
	if err := assertSumToUnity(snap.TotalSPShares, spSum, "stability pool"); err != nil {
		return nil, err
	}
	for _, pool := range snap.Pools {
		if err := assertSumToUnity(snap.TotalLPShares[pool], lpSum[pool], "lp pool "+pool.Hex()); err != nil {
			return nil, err
		}
	}

	return weights, nil
}

// fraction returns amount/total as an exact rational, or zero when
// total is zero (§4.C).
func fraction(amount, total *big.Int) *big.Rat {
	if total == nil || total.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(amount, total)
}

func assertBounded(w *big.Rat) error {
	zero := new(big.Rat)
	one := big.NewRat(1, 1)
	if w.Cmp(zero) < 0 || w.Cmp(one) > 0 {
		return erde.NewIntegrityMismatch(stageWeights, "weight out of [0,1] bound: "+w.RatString(), nil)
	}
	return nil
}

// assertSumToUnity checks |sum - 1| < tolerance when total > 0, per
// §4.C. When total is zero every weight is zero by construction and
// the channel is exempt from the unity check.
func assertSumToUnity(total *big.Int, sum *big.Rat, channel string) error {
	if total == nil || total.Sign() == 0 {
		return nil
	}
	diff := new(big.Rat).Sub(sum, big.NewRat(1, 1))
	diff.Abs(diff)
	if diff.Cmp(unityTolerance) >= 0 {
		return erde.NewIntegrityMismatch(stageWeights, channel+" channel weights do not sum to unity: "+sum.RatString(), nil)
	}
	return nil
}
