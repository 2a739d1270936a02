// Package chain implements §4.A (the chain reader) and §4.H's on-chain
// write, against the EVM contracts named in §6: Vault, the stability
// pool, each configured LP token, the emission manager, and the reward
// distributor. Every call pins an explicit block number — the reader
// never resolves "latest" inside a snapshot fetch (§4.A "Purity
// requirement").
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/go-pkgz/lgr"
	"github.com/paimon-protocol/erde/internal/domain"
	"github.com/paimon-protocol/erde/internal/erde"
)

const stageChain = "chain"

// ContractCaller is the subset of ethclient.Client the reader needs. It
// is an interface so tests can substitute a fake without dialing a real
// node.
type ContractCaller interface {
	bind.ContractCaller
	BlockNumber(ctx context.Context) (uint64, error)
}

// Addresses names every EVM contract ERDE reads or writes (§6).
type Addresses struct {
	Vault             common.Address
	StabilityPool     common.Address
	RewardDistributor common.Address
	EmissionManager   common.Address
	LPTokens          []common.Address
}

// Reader is §4.A's chain reader.
type Reader struct {
	caller    ContractCaller
	addrs     Addresses
	retry     retryPolicy
	log       lgr.L
	balances  *lru.Cache[balanceCacheKey, *big.Int]
}

type balanceCacheKey struct {
	token common.Address
	user  common.Address
	block uint64
}

// NewReader builds a Reader. cacheSize bounds the per-run balance cache
// (0 disables caching).
func NewReader(caller ContractCaller, addrs Addresses, attempts int, baseDelay time.Duration, cacheSize int, log lgr.L) (*Reader, error) {
	var cache *lru.Cache[balanceCacheKey, *big.Int]
	if cacheSize > 0 {
		c, err := lru.New[balanceCacheKey, *big.Int](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating balance cache: %w", err)
		}
		cache = c
	}
	return &Reader{
		caller:   caller,
		addrs:    addrs,
		retry:    retryPolicy{attempts: attempts, baseDelay: baseDelay, log: log},
		log:      log,
		balances: cache,
	}, nil
}

// FetchCurrentBlock returns the chain's current block number — one round
// trip per attempt, retried on transient errors like every other read.
func (r *Reader) FetchCurrentBlock(ctx context.Context) (uint64, error) {
	var block uint64
	err := r.retry.withRetry(ctx, stageChain, "fetchCurrentBlock", func(ctx context.Context) error {
		n, err := r.caller.BlockNumber(ctx)
		if err != nil {
			return classifyCallError(err)
		}
		block = n
		return nil
	})
	return block, err
}

// FetchUserSnapshot reads debt, stability-pool balance, and one balance
// per configured LP pool, all pinned to blockTag (§4.A). Every retry
// attempt targets the identical block number.
func (r *Reader) FetchUserSnapshot(ctx context.Context, user common.Address, blockTag uint64) (domain.UserSnapshot, error) {
	var debt, spShares *big.Int
	err := r.retry.withRetry(ctx, stageChain, "fetchUserSnapshot.debt", func(ctx context.Context) error {
		v, err := r.callUint256(ctx, r.addrs.Vault, vaultParsedABI, "debtOf", blockTag, user)
		if err != nil {
			return err
		}
		debt = v
		return nil
	})
	if err != nil {
		return domain.UserSnapshot{}, err
	}

	err = r.retry.withRetry(ctx, stageChain, "fetchUserSnapshot.spShares", func(ctx context.Context) error {
		v, err := r.balanceOf(ctx, r.addrs.StabilityPool, user, blockTag)
		if err != nil {
			return err
		}
		spShares = v
		return nil
	})
	if err != nil {
		return domain.UserSnapshot{}, err
	}

	lpShares := make(map[common.Address]*big.Int, len(r.addrs.LPTokens))
	for _, pool := range r.addrs.LPTokens {
		pool := pool
		var shares *big.Int
		err := r.retry.withRetry(ctx, stageChain, "fetchUserSnapshot.lpShares", func(ctx context.Context) error {
			v, err := r.balanceOf(ctx, pool, user, blockTag)
			if err != nil {
				return err
			}
			shares = v
			return nil
		})
		if err != nil {
			return domain.UserSnapshot{}, err
		}
		lpShares[pool] = shares
	}

	return domain.UserSnapshot{
		Address:  user,
		Debt:     debt,
		LPShares: lpShares,
		SPShares: spShares,
	}, nil
}

func (r *Reader) balanceOf(ctx context.Context, token, user common.Address, blockTag uint64) (*big.Int, error) {
	if cached, ok := r.cacheGet(token, user, blockTag); ok {
		return cached, nil
	}
	v, err := r.callUint256(ctx, token, erc20BalanceParsedABI, "balanceOf", blockTag, user)
	if err != nil {
		return nil, err
	}
	r.cachePut(token, user, blockTag, v)
	return v, nil
}

func (r *Reader) cacheGet(token, user common.Address, blockTag uint64) (*big.Int, bool) {
	if r.balances == nil {
		return nil, false
	}
	v, ok := r.balances.Get(balanceCacheKey{token: token, user: user, block: blockTag})
	return v, ok
}

func (r *Reader) cachePut(token, user common.Address, blockTag uint64, v *big.Int) {
	if r.balances == nil {
		return
	}
	r.balances.Add(balanceCacheKey{token: token, user: user, block: blockTag}, v)
}

// FetchWeeklyBudget reads E(w) from the emission manager (§4.D). The
// budget source performs no local computation; this is the sole read.
func (r *Reader) FetchWeeklyBudget(ctx context.Context, epoch uint64) (*big.Int, error) {
	var budget *big.Int
	err := r.retry.withRetry(ctx, stageChain, "fetchWeeklyBudget", func(ctx context.Context) error {
		v, err := r.callUint256(ctx, r.addrs.EmissionManager, emissionManagerParsedABI, "getWeeklyBudget", nil, new(big.Int).SetUint64(epoch))
		if err != nil {
			return err
		}
		budget = v
		return nil
	})
	return budget, err
}

// ReadOnChainRoot reads the currently committed Merkle root for an
// epoch from the reward distributor (§4.A, used by §4.H's idempotence
// guard).
func (r *Reader) ReadOnChainRoot(ctx context.Context, epoch uint64) ([32]byte, error) {
	var root [32]byte
	err := r.retry.withRetry(ctx, stageChain, "readOnChainRoot", func(ctx context.Context) error {
		out, err := r.call(ctx, r.addrs.RewardDistributor, rewardDistributorParsedABI, "merkleRoots", nil, new(big.Int).SetUint64(epoch))
		if err != nil {
			return err
		}
		var decoded [32]byte
		if err := rewardDistributorParsedABI.UnpackIntoInterface(&decoded, "merkleRoots", out); err != nil {
			return erde.NewChainReverted(stageChain, "decoding merkleRoots result", err)
		}
		root = decoded
		return nil
	})
	return root, err
}

// Owner reads the reward distributor's current owner (§4.H step 1).
func (r *Reader) Owner(ctx context.Context) (common.Address, error) {
	var owner common.Address
	err := r.retry.withRetry(ctx, stageChain, "owner", func(ctx context.Context) error {
		out, err := r.call(ctx, r.addrs.RewardDistributor, rewardDistributorParsedABI, "owner", nil)
		if err != nil {
			return err
		}
		var decoded common.Address
		if err := rewardDistributorParsedABI.UnpackIntoInterface(&decoded, "owner", out); err != nil {
			return erde.NewChainReverted(stageChain, "decoding owner result", err)
		}
		owner = decoded
		return nil
	})
	return owner, err
}

// call ABI-packs method(args...), issues an eth_call pinned to
// blockNumber (nil means latest — only ever used for non-snapshot,
// single-read calls like Owner/FetchWeeklyBudget that have no
// cross-block skew risk), and returns the raw return data.
func (r *Reader) call(ctx context.Context, to common.Address, parsedABI abi.ABI, method string, blockNumber *big.Int, args ...interface{}) ([]byte, error) {
	input, err := parsedABI.Pack(method, args...)
	if err != nil {
		return nil, erde.NewChainReverted(stageChain, fmt.Sprintf("packing %s call", method), err)
	}

	msg := ethereum.CallMsg{To: &to, Data: input}
	out, err := r.caller.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, classifyCallError(err)
	}
	return out, nil
}

func (r *Reader) callUint256(ctx context.Context, to common.Address, parsedABI abi.ABI, method string, blockTag interface{}, args ...interface{}) (*big.Int, error) {
	var blockNumber *big.Int
	switch v := blockTag.(type) {
	case uint64:
		blockNumber = new(big.Int).SetUint64(v)
	case nil:
		blockNumber = nil
	}

	out, err := r.call(ctx, to, parsedABI, method, blockNumber, args...)
	if err != nil {
		return nil, err
	}
	var result *big.Int
	if err := parsedABI.UnpackIntoInterface(&result, method, out); err != nil {
		return nil, erde.NewChainReverted(stageChain, fmt.Sprintf("decoding %s result", method), err)
	}
	return result, nil
}

// classifyCallError turns a raw ethclient error into the right *erde.Error
// kind: a contract revert is never retryable, everything else (dial
// failures, timeouts, rate limiting) is treated as transient.
func classifyCallError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "revert") || strings.Contains(msg, "execution reverted") {
		return erde.NewChainReverted(stageChain, "contract call reverted", err)
	}
	return erde.NewChainTransient(stageChain, "rpc call failed", err)
}
