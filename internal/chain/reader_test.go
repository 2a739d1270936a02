package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-pkgz/lgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paimon-protocol/erde/internal/erde"
)

// fakeCaller answers CallContract/BlockNumber from a scripted method ->
// return-value table, keyed by the 4-byte selector so tests don't need
// to decode call data.
type fakeCaller struct {
	block     uint64
	blockErr  error
	responses map[string]func(msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	calls     []ethereum.CallMsg
}

func (f *fakeCaller) BlockNumber(ctx context.Context) (uint64, error) {
	return f.block, f.blockErr
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.calls = append(f.calls, msg)
	sel := string(msg.Data[:4])
	fn, ok := f.responses[sel]
	if !ok {
		return nil, errors.New("fakeCaller: unscripted selector")
	}
	return fn(msg, blockNumber)
}

func (f *fakeCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{1}, nil
}

func selector(parsedABI string, method string) []byte {
	a := mustParseABI(parsedABI)
	return a.Methods[method].ID
}

func packUint256(t *testing.T, abiJSON, method string, v *big.Int) []byte {
	t.Helper()
	a := mustParseABI(abiJSON)
	out, err := a.Methods[method].Outputs.Pack(v)
	require.NoError(t, err)
	return out
}

func newTestReader(t *testing.T, caller ContractCaller, addrs Addresses) *Reader {
	t.Helper()
	r, err := NewReader(caller, addrs, 3, time.Millisecond, 16, lgr.Default())
	require.NoError(t, err)
	return r
}

func TestFetchCurrentBlock(t *testing.T) {
	caller := &fakeCaller{block: 12345}
	r := newTestReader(t, caller, Addresses{})
	block, err := r.FetchCurrentBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), block)
}

func TestFetchCurrentBlock_RetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	caller := &retryingBlockCaller{
		fn: func() (uint64, error) {
			attempts++
			if attempts < 2 {
				return 0, errors.New("dial tcp: i/o timeout")
			}
			return 999, nil
		},
	}
	r := newTestReader(t, caller, Addresses{})
	block, err := r.FetchCurrentBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(999), block)
	assert.Equal(t, 2, attempts)
}

type retryingBlockCaller struct {
	fn func() (uint64, error)
}

func (c *retryingBlockCaller) BlockNumber(ctx context.Context) (uint64, error) { return c.fn() }
func (c *retryingBlockCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, errors.New("unused")
}
func (c *retryingBlockCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{1}, nil
}

func TestFetchUserSnapshot(t *testing.T) {
	vault := common.HexToAddress("0x1111111111111111111111111111111111111111")
	sp := common.HexToAddress("0x2222222222222222222222222222222222222222")
	lpA := common.HexToAddress("0x3333333333333333333333333333333333333333")
	user := common.HexToAddress("0x4444444444444444444444444444444444444444")

	caller := &fakeCaller{
		responses: map[string]func(ethereum.CallMsg, *big.Int) ([]byte, error){
			string(selector(vaultABI, "debtOf")): func(msg ethereum.CallMsg, bn *big.Int) ([]byte, error) {
				return packUint256(t, vaultABI, "debtOf", big.NewInt(1000)), nil
			},
			string(selector(erc20BalanceABI, "balanceOf")): func(msg ethereum.CallMsg, bn *big.Int) ([]byte, error) {
				if *msg.To == sp {
					return packUint256(t, erc20BalanceABI, "balanceOf", big.NewInt(50)), nil
				}
				return packUint256(t, erc20BalanceABI, "balanceOf", big.NewInt(75)), nil
			},
		},
	}

	r := newTestReader(t, caller, Addresses{
		Vault:         vault,
		StabilityPool: sp,
		LPTokens:      []common.Address{lpA},
	})

	snap, err := r.FetchUserSnapshot(context.Background(), user, 42)
	require.NoError(t, err)
	assert.Equal(t, user, snap.Address)
	assert.Equal(t, big.NewInt(1000), snap.Debt)
	assert.Equal(t, big.NewInt(50), snap.SPShares)
	assert.Equal(t, big.NewInt(75), snap.LPShares[lpA])
}

func TestFetchUserSnapshot_CachesRepeatedBalanceCalls(t *testing.T) {
	sp := common.HexToAddress("0x2222222222222222222222222222222222222222")
	vault := common.HexToAddress("0x1111111111111111111111111111111111111111")
	user := common.HexToAddress("0x4444444444444444444444444444444444444444")

	hits := 0
	caller := &fakeCaller{
		responses: map[string]func(ethereum.CallMsg, *big.Int) ([]byte, error){
			string(selector(vaultABI, "debtOf")): func(msg ethereum.CallMsg, bn *big.Int) ([]byte, error) {
				return packUint256(t, vaultABI, "debtOf", big.NewInt(1)), nil
			},
			string(selector(erc20BalanceABI, "balanceOf")): func(msg ethereum.CallMsg, bn *big.Int) ([]byte, error) {
				hits++
				return packUint256(t, erc20BalanceABI, "balanceOf", big.NewInt(5)), nil
			},
		},
	}
	r := newTestReader(t, caller, Addresses{Vault: vault, StabilityPool: sp})

	_, err := r.FetchUserSnapshot(context.Background(), user, 42)
	require.NoError(t, err)
	_, err = r.FetchUserSnapshot(context.Background(), user, 42)
	require.NoError(t, err)

	assert.Equal(t, 1, hits)
}

func TestOwner_ReturnsDistributorOwner(t *testing.T) {
	dist := common.HexToAddress("0x5555555555555555555555555555555555555555")
	other := common.HexToAddress("0x6666666666666666666666666666666666666666")

	caller := &fakeCaller{
		responses: map[string]func(ethereum.CallMsg, *big.Int) ([]byte, error){
			string(selector(rewardDistributorABI, "owner")): func(msg ethereum.CallMsg, bn *big.Int) ([]byte, error) {
				out, err := mustParseABI(rewardDistributorABI).Methods["owner"].Outputs.Pack(other)
				require.NoError(t, err)
				return out, nil
			},
		},
	}
	r := newTestReader(t, caller, Addresses{RewardDistributor: dist})
	owner, err := r.Owner(context.Background())
	require.NoError(t, err)
	assert.Equal(t, other, owner)
}

func TestClassifyCallError(t *testing.T) {
	revertErr := classifyCallError(errors.New("execution reverted: insufficient balance"))
	kind, ok := erde.KindOf(revertErr)
	require.True(t, ok)
	assert.Equal(t, erde.KindChainReverted, kind)
	assert.False(t, erde.IsRetryable(revertErr))

	transientErr := classifyCallError(errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"))
	kind, ok = erde.KindOf(transientErr)
	require.True(t, ok)
	assert.Equal(t, erde.KindChainTransient, kind)
	assert.True(t, erde.IsRetryable(transientErr))

	assert.Nil(t, classifyCallError(nil))
}
