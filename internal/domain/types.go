// Package domain holds the entities shared across every ERDE pipeline
// stage (§3). All monetary and share quantities are arbitrary-precision
// big integers; weights are arbitrary-precision rationals. Nothing in
// this package uses IEEE-754 floats on a root-determining path.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Epoch identifies one weekly reward window.
type Epoch struct {
	Number     uint64
	StartBlock uint64
	EndBlock   uint64
	Timestamp  time.Time
}

// UserSnapshot is one user's position at EndBlock (§3).
type UserSnapshot struct {
	Address   common.Address
	Debt      *big.Int
	LPShares  map[common.Address]*big.Int
	SPShares  *big.Int
	Timestamp time.Time
}

// Clone returns a deep copy so downstream stages can't mutate a shared
// snapshot (§3 "Ownership").
func (u UserSnapshot) Clone() UserSnapshot {
	lp := make(map[common.Address]*big.Int, len(u.LPShares))
	for addr, amt := range u.LPShares {
		lp[addr] = new(big.Int).Set(amt)
	}
	return UserSnapshot{
		Address:   u.Address,
		Debt:      new(big.Int).Set(u.Debt),
		LPShares:  lp,
		SPShares:  new(big.Int).Set(u.SPShares),
		Timestamp: u.Timestamp,
	}
}

// EpochSnapshot is the aggregate of every user snapshot for one epoch
// (§3, §4.B). Pools is the canonical, ordered list of LP pool addresses
// — iteration over LPShares/TotalLPShares maps must always follow this
// order, never native map order (§9 "Canonical map iteration").
type EpochSnapshot struct {
	Epoch         Epoch
	Pools         []common.Address
	Users         []UserSnapshot
	TotalDebt     *big.Int
	TotalLPShares map[common.Address]*big.Int
	TotalSPShares *big.Int
}

// TWADWeight is one user's per-channel fractional share (§3, §4.C).
type TWADWeight struct {
	Address    common.Address
	DebtWeight *big.Rat
	LPWeights  map[common.Address]*big.Rat
	SPWeight   *big.Rat
}

// ChannelSplit is the epoch's budget sliced into channels (§3, §4.E).
type ChannelSplit struct {
	Debt          *big.Int
	LPPairs       *big.Int
	StabilityPool *big.Int
}

// Sum returns Debt + LPPairs + StabilityPool.
func (c ChannelSplit) Sum() *big.Int {
	total := new(big.Int).Add(c.Debt, c.LPPairs)
	return total.Add(total, c.StabilityPool)
}

// UserReward is one recipient's payout breakdown (§3, §4.E/F).
type UserReward struct {
	Address     common.Address
	TotalReward *big.Int
	DebtReward  *big.Int
	LPRewards   map[common.Address]*big.Int
	SPReward    *big.Int
	Proof       [][32]byte
}

// BreakdownConsistent checks the §3/§8-P3 identity:
// totalReward == debtReward + spReward + Σ lpRewards.
func (r UserReward) BreakdownConsistent() bool {
	sum := new(big.Int).Add(r.DebtReward, r.SPReward)
	for _, amt := range r.LPRewards {
		sum.Add(sum, amt)
	}
	return sum.Cmp(r.TotalReward) == 0
}

// RewardDistribution is the epoch's final artifact (§3, §4.F).
type RewardDistribution struct {
	Epoch         Epoch
	MerkleRoot    [32]byte
	TotalRewards  *big.Int
	Recipients    []UserReward
	WeeklyBudget  *big.Int
	Timestamp     time.Time
}
