package merkle

import (
	"bytes"
	"math/big"
	"sort"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paimon-protocol/erde/internal/domain"
	"github.com/paimon-protocol/erde/internal/erde"
)

// sortedLeafHashes reproduces only the canonical-ordering half of
// buildLeaves, independent of buildTree, so the tests below can compose
// an expected root by hand without exercising the code under test.
func sortedLeafHashes(t *testing.T, recipients []domain.UserReward) [][32]byte {
	t.Helper()
	hashes := make([][32]byte, len(recipients))
	for i, r := range recipients {
		h, err := hashLeaf(r.Address, r.TotalReward)
		require.NoError(t, err)
		hashes[i] = h
	}
	sort.Slice(hashes, func(i, j int) bool {
		return bytes.Compare(hashes[i][:], hashes[j][:]) < 0
	})
	return hashes
}

func reward(addr string, amount int64) domain.UserReward {
	return domain.UserReward{Address: common.HexToAddress(addr), TotalReward: big.NewInt(amount)}
}

func TestBuild_RoundTripVerifiesEveryProof(t *testing.T) {
	recipients := []domain.UserReward{
		reward("0x1", 10),
		reward("0x2", 20),
		reward("0x3", 30),
		reward("0x4", 40),
		reward("0x5", 50),
	}
	dist, err := NewEngine().Build(domain.Epoch{Number: 1}, recipients, big.NewInt(1000))
	require.NoError(t, err)
	require.Len(t, dist.Recipients, 5)

	for _, r := range dist.Recipients {
		assert.True(t, VerifyProof(dist.MerkleRoot, r.Address, r.TotalReward, r.Proof))
		assert.NotEmpty(t, r.Proof)
	}
}

// TestBuild_RootMatchesOZShapeForThreeLeaves hand-derives OZ's
// makeMerkleTree shape for n=3 (root = H(H(S0,S1), S2), where S0..S2 are
// hash-sorted leaves) and checks the engine's root against it directly,
// rather than only round-tripping against the engine's own output.
func TestBuild_RootMatchesOZShapeForThreeLeaves(t *testing.T) {
	recipients := []domain.UserReward{reward("0x1", 10), reward("0x2", 20), reward("0x3", 30)}
	s := sortedLeafHashes(t, recipients)

	want := hashPair(hashPair(s[0], s[1]), s[2])

	dist, err := NewEngine().Build(domain.Epoch{}, recipients, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, want, dist.MerkleRoot)
}

// TestBuild_RootMatchesOZShapeForFiveLeaves is the odd-count case that
// exposes a sequential-pairing implementation: OZ's heap-array
// construction puts S4 two levels below the root
// (root = H(H(H(S0,S1),S4), H(S2,S3))), not one level below it as a
// naive "pair per layer, promote the trailing node" construction would.
func TestBuild_RootMatchesOZShapeForFiveLeaves(t *testing.T) {
	recipients := []domain.UserReward{
		reward("0x1", 10),
		reward("0x2", 20),
		reward("0x3", 30),
		reward("0x4", 40),
		reward("0x5", 50),
	}
	s := sortedLeafHashes(t, recipients)

	left := hashPair(hashPair(s[0], s[1]), s[4])
	right := hashPair(s[2], s[3])
	want := hashPair(left, right)

	dist, err := NewEngine().Build(domain.Epoch{Number: 1}, recipients, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, want, dist.MerkleRoot)
}

func TestBuild_RootIndependentOfInputOrder(t *testing.T) {
	a := []domain.UserReward{reward("0x1", 10), reward("0x2", 20), reward("0x3", 30)}
	b := []domain.UserReward{reward("0x3", 30), reward("0x1", 10), reward("0x2", 20)}

	distA, err := NewEngine().Build(domain.Epoch{}, a, big.NewInt(100))
	require.NoError(t, err)
	distB, err := NewEngine().Build(domain.Epoch{}, b, big.NewInt(100))
	require.NoError(t, err)

	assert.Equal(t, distA.MerkleRoot, distB.MerkleRoot)
}

func TestBuild_SingleRecipient(t *testing.T) {
	recipients := []domain.UserReward{reward("0x1", 10)}
	dist, err := NewEngine().Build(domain.Epoch{}, recipients, big.NewInt(10))
	require.NoError(t, err)
	assert.True(t, VerifyProof(dist.MerkleRoot, dist.Recipients[0].Address, dist.Recipients[0].TotalReward, dist.Recipients[0].Proof))
}

func TestBuild_EmptyRecipientListRejected(t *testing.T) {
	_, err := NewEngine().Build(domain.Epoch{}, nil, big.NewInt(0))
	require.Error(t, err)
	kind, ok := erde.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, erde.KindPolicyViolation, kind)
}

func TestBuild_DuplicateAddressRejected(t *testing.T) {
	recipients := []domain.UserReward{reward("0x1", 10), reward("0x1", 20)}
	_, err := NewEngine().Build(domain.Epoch{}, recipients, big.NewInt(100))
	require.Error(t, err)
	kind, ok := erde.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, erde.KindPolicyViolation, kind)
}

func TestBuild_BudgetExceededRejected(t *testing.T) {
	recipients := []domain.UserReward{reward("0x1", 1000)}
	_, err := NewEngine().Build(domain.Epoch{}, recipients, big.NewInt(10))
	require.Error(t, err)
}

func TestVerifyProof_TamperedAmountFails(t *testing.T) {
	recipients := []domain.UserReward{reward("0x1", 10), reward("0x2", 20), reward("0x3", 30)}
	dist, err := NewEngine().Build(domain.Epoch{}, recipients, big.NewInt(100))
	require.NoError(t, err)

	r := dist.Recipients[0]
	assert.False(t, VerifyProof(dist.MerkleRoot, r.Address, big.NewInt(9999), r.Proof))
}

func TestRebuild_MatchesOriginalRootAndProof(t *testing.T) {
	recipients := []domain.UserReward{reward("0x1", 10), reward("0x2", 20), reward("0x3", 30)}
	dist, err := NewEngine().Build(domain.Epoch{}, recipients, big.NewInt(100))
	require.NoError(t, err)

	target := dist.Recipients[1]
	proof, root, err := NewEngine().Rebuild(recipients, target.Address)
	require.NoError(t, err)
	assert.Equal(t, dist.MerkleRoot, root)
	assert.True(t, VerifyProof(root, target.Address, target.TotalReward, proof))
}

func TestRebuild_UnknownAddressFails(t *testing.T) {
	recipients := []domain.UserReward{reward("0x1", 10)}
	_, _, err := NewEngine().Rebuild(recipients, common.HexToAddress("0xdead"))
	require.Error(t, err)
}
