// Package budget implements §4.D: the weekly reward budget E(w) is a
// single scalar read from the on-chain emission manager. This package
// performs no policy computation of its own — the contract is the
// source of truth.
package budget

import (
	"context"
	"math/big"

	"github.com/paimon-protocol/erde/internal/erde"
)

const stageBudget = "budget"

// ChainReader is the subset of chain.Reader the budget source needs.
type ChainReader interface {
	FetchWeeklyBudget(ctx context.Context, epoch uint64) (*big.Int, error)
}

// Source is §4.D's budget source.
type Source struct {
	reader ChainReader
}

func NewSource(reader ChainReader) *Source {
	return &Source{reader: reader}
}

// WeeklyBudget returns E(w) for epoch, rejecting a negative or nil
// result as an integrity mismatch rather than letting it silently
// propagate into the allocator.
func (s *Source) WeeklyBudget(ctx context.Context, epoch uint64) (*big.Int, error) {
	budget, err := s.reader.FetchWeeklyBudget(ctx, epoch)
	if err != nil {
		return nil, err
	}
	if budget == nil || budget.Sign() < 0 {
		return nil, erde.NewIntegrityMismatch(stageBudget, "emission manager returned a negative or nil budget", nil)
	}
	return budget, nil
}
