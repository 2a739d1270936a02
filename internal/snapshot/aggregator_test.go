package snapshot

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-pkgz/lgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paimon-protocol/erde/internal/domain"
	"github.com/paimon-protocol/erde/internal/erde"
)

type fakeReader struct {
	byUser map[common.Address]domain.UserSnapshot
	err    map[common.Address]error
}

func (f *fakeReader) FetchUserSnapshot(ctx context.Context, user common.Address, blockTag uint64) (domain.UserSnapshot, error) {
	if err, ok := f.err[user]; ok {
		return domain.UserSnapshot{}, err
	}
	return f.byUser[user], nil
}

func addr(hex string) common.Address { return common.HexToAddress(hex) }

func TestBuild_AccumulatesTotals(t *testing.T) {
	pool := addr("0x1")
	u1, u2 := addr("0x10"), addr("0x20")
	reader := &fakeReader{byUser: map[common.Address]domain.UserSnapshot{
		u1: {Address: u1, Debt: big.NewInt(100), SPShares: big.NewInt(10), LPShares: map[common.Address]*big.Int{pool: big.NewInt(5)}},
		u2: {Address: u2, Debt: big.NewInt(200), SPShares: big.NewInt(20), LPShares: map[common.Address]*big.Int{pool: big.NewInt(15)}},
	}}
	agg := NewAggregator(reader, 4, lgr.Default())

	epoch := domain.Epoch{Number: 1, StartBlock: 1, EndBlock: 100}
	snap, err := agg.Build(context.Background(), epoch, []common.Address{pool}, []common.Address{u1, u2})
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(300), snap.TotalDebt)
	assert.Equal(t, big.NewInt(30), snap.TotalSPShares)
	assert.Equal(t, big.NewInt(20), snap.TotalLPShares[pool])
	assert.Len(t, snap.Users, 2)
}

func TestBuild_DuplicateAddressSumsTwiceAndPassesTotals(t *testing.T) {
	u1 := addr("0x10")
	reader := &fakeReader{byUser: map[common.Address]domain.UserSnapshot{
		u1: {Address: u1, Debt: big.NewInt(1), SPShares: big.NewInt(0), LPShares: map[common.Address]*big.Int{}},
	}}
	agg := NewAggregator(reader, 4, lgr.Default())

	snap, err := agg.Build(context.Background(), domain.Epoch{EndBlock: 1}, nil, []common.Address{u1, u1})
	require.NoError(t, err)
	assert.Len(t, snap.Users, 2)
	assert.Equal(t, big.NewInt(2), snap.TotalDebt)
}

func TestBuild_SingleUserFailureFailsWholeEpoch(t *testing.T) {
	u1, u2 := addr("0x10"), addr("0x20")
	reader := &fakeReader{
		byUser: map[common.Address]domain.UserSnapshot{
			u1: {Address: u1, Debt: big.NewInt(1), SPShares: big.NewInt(0), LPShares: map[common.Address]*big.Int{}},
		},
		err: map[common.Address]error{
			u2: erde.NewChainTransient("chain", "exhausted retries", errors.New("timeout")),
		},
	}
	agg := NewAggregator(reader, 4, lgr.Default())

	_, err := agg.Build(context.Background(), domain.Epoch{EndBlock: 1}, nil, []common.Address{u1, u2})
	require.Error(t, err)
	kind, ok := erde.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, erde.KindChainTransient, kind)
}

func TestBuild_EmptyUsersIsValid(t *testing.T) {
	reader := &fakeReader{byUser: map[common.Address]domain.UserSnapshot{}}
	agg := NewAggregator(reader, 4, lgr.Default())

	snap, err := agg.Build(context.Background(), domain.Epoch{EndBlock: 1}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(0), snap.TotalDebt)
	assert.Empty(t, snap.Users)
}
