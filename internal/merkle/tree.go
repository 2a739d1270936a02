// Package merkle implements §4.F: a StandardMerkleTree-compatible
// commitment over (address, totalReward) pairs — double-hashed leaves,
// sorted-pair internal nodes, canonical leaf ordering — plus §12's
// historical re-derivation path used to independently re-check a prior
// distribution's root and proofs.
package merkle

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/paimon-protocol/erde/internal/domain"
	"github.com/paimon-protocol/erde/internal/erde"
)

const stageMerkle = "merkle"

// MaxRecipients is §4.F's capacity bound: 2^20, about one million.
const MaxRecipients = 1 << 20

var leafArgs = mustArguments("address", "uint256")

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic("merkle: invalid leaf argument type: " + err.Error())
		}
		args[i] = abi.Argument{Type: typ}
	}
	return args
}

// Engine builds OpenZeppelin-style StandardMerkleTree commitments.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// leaf is one recipient's double-hashed leaf together with the data it
// was derived from, carried alongside the hash while the tree is built
// so a proof can be attributed back to the original recipient.
type leaf struct {
	address common.Address
	amount  *big.Int
	hash    [32]byte
}

// Build validates recipients against §4.F's construction-time rules,
// then produces a RewardDistribution carrying the root and one proof
// per recipient. It performs the internal round-trip verification
// named in §4.F before returning.
func (e *Engine) Build(epoch domain.Epoch, recipients []domain.UserReward, weeklyBudget *big.Int) (domain.RewardDistribution, error) {
	if err := validateConstruction(recipients, weeklyBudget); err != nil {
		return domain.RewardDistribution{}, err
	}

	leaves, err := buildLeaves(recipients)
	if err != nil {
		return domain.RewardDistribution{}, err
	}

	tree := buildTree(leaves)
	root := tree[0]

	out := make([]domain.UserReward, len(recipients))
	total := big.NewInt(0)
	for i, r := range recipients {
		proof := proofFor(tree, treeIndexOfLeaf(len(leaves), indexOfLeaf(leaves, r.Address)))
		out[i] = r
		out[i].Proof = proof
		total.Add(total, r.TotalReward)

		if !VerifyProof(root, r.Address, r.TotalReward, proof) {
			return domain.RewardDistribution{}, erde.NewIntegrityMismatch(stageMerkle, "round-trip proof verification failed for "+r.Address.Hex(), nil)
		}
	}

	return domain.RewardDistribution{
		Epoch:        epoch,
		MerkleRoot:   root,
		TotalRewards: total,
		Recipients:   out,
		WeeklyBudget: weeklyBudget,
	}, nil
}

// Rebuild independently re-derives the root and one recipient's proof
// from a persisted entry list, without trusting any cached Proof field
// (§12 "historical proof re-derivation" — what makes the artifact
// independently re-checkable).
func (e *Engine) Rebuild(entries []domain.UserReward, target common.Address) (proof [][32]byte, root [32]byte, err error) {
	leaves, err := buildLeaves(entries)
	if err != nil {
		return nil, [32]byte{}, err
	}
	tree := buildTree(leaves)
	root = tree[0]

	idx := indexOfLeaf(leaves, target)
	if idx < 0 {
		return nil, [32]byte{}, erde.NewValidationFail(stageMerkle, "address not present in distribution: "+target.Hex(), nil)
	}
	proof = proofFor(tree, treeIndexOfLeaf(len(leaves), idx))
	return proof, root, nil
}

func validateConstruction(recipients []domain.UserReward, weeklyBudget *big.Int) error {
	if len(recipients) == 0 {
		return erde.NewPolicyViolation(stageMerkle, "empty recipient list", nil)
	}
	if len(recipients) > MaxRecipients {
		return erde.NewPolicyViolation(stageMerkle, "recipient list exceeds 2^20 capacity", nil)
	}

	seen := make(map[common.Address]struct{}, len(recipients))
	total := big.NewInt(0)
	for _, r := range recipients {
		if !common.IsHexAddress(r.Address.Hex()) {
			return erde.NewPolicyViolation(stageMerkle, "malformed address in recipient list", nil)
		}
		if _, dup := seen[r.Address]; dup {
			return erde.NewPolicyViolation(stageMerkle, "duplicate address in recipient list: "+r.Address.Hex(), nil)
		}
		seen[r.Address] = struct{}{}
		if r.TotalReward == nil || r.TotalReward.Sign() < 0 {
			return erde.NewPolicyViolation(stageMerkle, "negative or nil totalReward for "+r.Address.Hex(), nil)
		}
		total.Add(total, r.TotalReward)
	}
	if weeklyBudget != nil && total.Cmp(weeklyBudget) > 0 {
		return erde.NewPolicyViolation(stageMerkle, "sum of totalReward exceeds weeklyBudget", nil)
	}
	return nil
}

func buildLeaves(recipients []domain.UserReward) ([]leaf, error) {
	leaves := make([]leaf, len(recipients))
	for i, r := range recipients {
		h, err := hashLeaf(r.Address, r.TotalReward)
		if err != nil {
			return nil, err
		}
		leaves[i] = leaf{address: r.Address, amount: r.TotalReward, hash: h}
	}
	// Canonical ordering: sort by hashed value so the root is
	// independent of input sequence (§4.F "Canonical leaves").
	sort.Slice(leaves, func(i, j int) bool {
		return bytes.Compare(leaves[i].hash[:], leaves[j].hash[:]) < 0
	})
	return leaves, nil
}

// hashLeaf double-hashes keccak256(abi.encode(address,uint256)) to
// eliminate second-preimage attacks against intermediate nodes (§4.F).
func hashLeaf(addr common.Address, amount *big.Int) ([32]byte, error) {
	packed, err := leafArgs.Pack(addr, amount)
	if err != nil {
		return [32]byte{}, erde.NewPolicyViolation(stageMerkle, "abi-encoding leaf for "+addr.Hex(), err)
	}
	inner := crypto.Keccak256(packed)
	outer := crypto.Keccak256(inner)
	var h [32]byte
	copy(h[:], outer)
	return h, nil
}

// hashPair sorts the two children lexicographically before hashing so
// the proof path is independent of traversal direction (§4.F
// "sorted-pair construction").
func hashPair(a, b [32]byte) [32]byte {
	var h [32]byte
	if bytes.Compare(a[:], b[:]) <= 0 {
		copy(h[:], crypto.Keccak256(a[:], b[:]))
	} else {
		copy(h[:], crypto.Keccak256(b[:], a[:]))
	}
	return h
}

// buildTree replicates OpenZeppelin's StandardMerkleTree heap-array
// construction (makeMerkleTree): a 2n-1 array holds the sorted leaf
// hashes in its tail — tree[len-1-i] = leaves[i] — and every internal
// node at index i is hashPair(tree[2i+1], tree[2i+2]), filled bottom-up
// from the last internal index down to the root at tree[0]. Unlike
// pairing leaves sequentially layer-by-layer and promoting a trailing
// odd node, this produces the same node shape as OZ for any leaf count,
// not just powers of two — required for byte-for-byte root compatibility
// with the on-chain verifier (§4.F/§9).
func buildTree(leaves []leaf) [][32]byte {
	n := len(leaves)
	tree := make([][32]byte, 2*n-1)
	for i, l := range leaves {
		tree[len(tree)-1-i] = l.hash
	}
	for i := len(tree) - 1 - n; i >= 0; i-- {
		tree[i] = hashPair(tree[leftChildIndex(i)], tree[rightChildIndex(i)])
	}
	return tree
}

func leftChildIndex(i int) int  { return 2*i + 1 }
func rightChildIndex(i int) int { return 2*i + 2 }

func parentIndex(i int) int { return (i - 1) / 2 }

func siblingIndex(i int) int {
	if i%2 == 0 {
		return i - 1
	}
	return i + 1
}

// treeIndexOfLeaf maps a position in the sorted leaves slice to its
// position in the heap array built by buildTree.
func treeIndexOfLeaf(n, leafIdx int) int {
	if leafIdx < 0 {
		return -1
	}
	return 2*n - 2 - leafIdx
}

func indexOfLeaf(leaves []leaf, addr common.Address) int {
	for i, l := range leaves {
		if l.address == addr {
			return i
		}
	}
	return -1
}

// proofFor walks the heap array from a leaf's tree index up to the
// root, collecting each ancestor's sibling hash (OZ's getProof).
func proofFor(tree [][32]byte, idx int) [][32]byte {
	if idx < 0 {
		return nil
	}
	var proof [][32]byte
	for idx > 0 {
		proof = append(proof, tree[siblingIndex(idx)])
		idx = parentIndex(idx)
	}
	return proof
}

// VerifyProof recomputes the root from (address, amount, proof) and
// compares it against root — the same check §4.F's round-trip
// verification runs internally, exposed for downstream claim checking
// and §12's historical re-derivation.
func VerifyProof(root [32]byte, addr common.Address, amount *big.Int, proof [][32]byte) bool {
	h, err := hashLeaf(addr, amount)
	if err != nil {
		return false
	}
	for _, sibling := range proof {
		h = hashPair(h, sibling)
	}
	return h == root
}
