// Package snapshot implements §4.B: fan out bounded-concurrency
// per-user reads through a chain.Reader, then accumulate and verify
// totals atomically before handing an EpochSnapshot downstream.
package snapshot

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/paimon-protocol/erde/internal/domain"
	"github.com/paimon-protocol/erde/internal/erde"
)

const stageSnapshot = "snapshot"

// ChainReader is the subset of chain.Reader the aggregator needs.
type ChainReader interface {
	FetchUserSnapshot(ctx context.Context, user common.Address, blockTag uint64) (domain.UserSnapshot, error)
}

// Aggregator is §4.B's snapshot aggregator.
type Aggregator struct {
	reader      ChainReader
	concurrency int
	log         lgr.L
}

// NewAggregator builds an Aggregator. concurrency bounds the number of
// in-flight per-user fetches; the spec's sensible default is 8.
func NewAggregator(reader ChainReader, concurrency int, log lgr.L) *Aggregator {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Aggregator{reader: reader, concurrency: concurrency, log: log}
}

// Build fetches every user's snapshot at endBlock and accumulates the
// totals (§4.B). A single user failing after the reader's own retries
// fails the whole epoch — there is no partial/skip-user mode. A
// duplicated input address is not rejected here: it is summed twice like
// any other entry and the Σusers.debt == totalDebt check below still
// passes, so duplicate detection is left entirely to the Merkle engine,
// which is the boundary that actually cannot tolerate one address
// appearing as two leaves.
func (a *Aggregator) Build(ctx context.Context, epoch domain.Epoch, pools []common.Address, users []common.Address) (domain.EpochSnapshot, error) {
	snapshots := make([]domain.UserSnapshot, len(users))
	sem := semaphore.NewWeighted(int64(a.concurrency))
	g, gctx := errgroup.WithContext(ctx)

	for i, user := range users {
		i, user := i, user
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			snap, err := a.reader.FetchUserSnapshot(gctx, user, epoch.EndBlock)
			if err != nil {
				return err
			}
			snapshots[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.EpochSnapshot{}, err
	}

	a.log.Logf("INFO snapshot: fetched %d users at block %d", len(snapshots), epoch.EndBlock)

	result := domain.EpochSnapshot{
		Epoch:         epoch,
		Pools:         pools,
		Users:         snapshots,
		TotalDebt:     big.NewInt(0),
		TotalLPShares: make(map[common.Address]*big.Int, len(pools)),
		TotalSPShares: big.NewInt(0),
	}
	for _, pool := range pools {
		result.TotalLPShares[pool] = big.NewInt(0)
	}

	for _, snap := range snapshots {
		if err := requireNonNegative(snap); err != nil {
			return domain.EpochSnapshot{}, err
		}
		result.TotalDebt.Add(result.TotalDebt, snap.Debt)
		result.TotalSPShares.Add(result.TotalSPShares, snap.SPShares)
		for _, pool := range pools {
			amt, ok := snap.LPShares[pool]
			if !ok {
				amt = big.NewInt(0)
			}
			result.TotalLPShares[pool].Add(result.TotalLPShares[pool], amt)
		}
	}

	if err := verifyTotals(result); err != nil {
		return domain.EpochSnapshot{}, err
	}

	return result, nil
}

func requireNonNegative(snap domain.UserSnapshot) error {
	if snap.Debt.Sign() < 0 || snap.SPShares.Sign() < 0 {
		return erde.NewIntegrityMismatch(stageSnapshot, "negative amount in user snapshot for "+snap.Address.Hex(), nil)
	}
	for pool, amt := range snap.LPShares {
		if amt.Sign() < 0 {
			return erde.NewIntegrityMismatch(stageSnapshot, "negative lp shares for "+snap.Address.Hex()+" pool "+pool.Hex(), nil)
		}
	}
	return nil
}

// verifyTotals re-asserts §4.B check 2 independently of the accumulation
// loop above: every running total equals a fresh sum over the fetched
// snapshots. Using big.Int throughout makes check 3 (overflow-freedom)
// automatic rather than something to re-verify.
func verifyTotals(s domain.EpochSnapshot) error {
	debt := big.NewInt(0)
	sp := big.NewInt(0)
	lp := make(map[common.Address]*big.Int, len(s.Pools))
	for _, pool := range s.Pools {
		lp[pool] = big.NewInt(0)
	}
	for _, u := range s.Users {
		debt.Add(debt, u.Debt)
		sp.Add(sp, u.SPShares)
		for _, pool := range s.Pools {
			amt, ok := u.LPShares[pool]
			if !ok {
				amt = big.NewInt(0)
			}
			lp[pool].Add(lp[pool], amt)
		}
	}
	if debt.Cmp(s.TotalDebt) != 0 {
		return erde.NewIntegrityMismatch(stageSnapshot, "totalDebt does not equal sum of user debts", nil)
	}
	if sp.Cmp(s.TotalSPShares) != 0 {
		return erde.NewIntegrityMismatch(stageSnapshot, "totalSpShares does not equal sum of user sp shares", nil)
	}
	for _, pool := range s.Pools {
		if lp[pool].Cmp(s.TotalLPShares[pool]) != 0 {
			return erde.NewIntegrityMismatch(stageSnapshot, "totalLpShares mismatch for pool "+pool.Hex(), nil)
		}
	}
	return nil
}
