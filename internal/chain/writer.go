package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-pkgz/lgr"

	"github.com/paimon-protocol/erde/internal/erde"
)

// Signer produces a signed setMerkleRoot transaction. The Writer only
// sees this interface; KeySigner is the minimal raw-key implementation
// the binary wires in, and an operator's own key-management surface can
// be injected in its place.
type Signer interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

// TransactionSender is the subset of ethclient.Client the writer needs
// to build, send, and confirm a transaction.
type TransactionSender interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Writer performs §4.H's on-chain commitment: owner check, build, sign,
// send, wait for confirmation, re-read and verify.
type Writer struct {
	reader *Reader
	sender TransactionSender
	signer Signer
	retry  retryPolicy
}

func NewWriter(reader *Reader, sender TransactionSender, signer Signer, retry retryPolicy) *Writer {
	return &Writer{reader: reader, sender: sender, signer: signer, retry: retry}
}

// NewWriterWithRetry is NewWriter for callers outside this package,
// where retryPolicy's fields aren't visible.
func NewWriterWithRetry(reader *Reader, sender TransactionSender, signer Signer, attempts int, baseDelay time.Duration, log lgr.L) *Writer {
	return NewWriter(reader, sender, signer, retryPolicy{attempts: attempts, baseDelay: baseDelay, log: log})
}

// SubmitRoot runs §4.H's full sequence. It returns the confirmed
// transaction hash, or a *erde.Error naming the stage where it failed.
//
//  1. owner check — the signer must be the distributor's current owner.
//  2. idempotence guard — if root is already committed for this epoch,
//     succeed without sending (§12 "idempotent resubmission"); if a
//     *different* root is already committed, fail with
//     KindIdempotenceConflict unless force is set, in which case the
//     conflict is logged and the submission proceeds (§4.H step 2 / §7
//     "abort unless an explicit override flag is set").
//  3. build, sign, send setMerkleRoot(root, epoch).
//  4. wait for one confirmation.
//  5. re-read ReadOnChainRoot and verify it matches what was sent.
func (w *Writer) SubmitRoot(ctx context.Context, epoch uint64, root [32]byte, force bool) (common.Hash, error) {
	const stage = "submit"

	owner, err := w.reader.Owner(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	if owner != w.signer.Address() {
		return common.Hash{}, erde.NewAuthorizationMismatch(stage,
			fmt.Sprintf("signer %s is not distributor owner %s", w.signer.Address(), owner), nil)
	}

	existing, err := w.reader.ReadOnChainRoot(ctx, epoch)
	if err != nil {
		return common.Hash{}, err
	}
	var zero [32]byte
	if existing != zero {
		if existing == root {
			return common.Hash{}, nil
		}
		if !force {
			return common.Hash{}, erde.NewIdempotenceConflict(stage,
				fmt.Sprintf("epoch %d already committed to a different root", epoch), nil)
		}
		if w.retry.log != nil {
			w.retry.log.Logf("WARN chain: force-overriding existing root for epoch %d", epoch)
		}
	}

	input, err := rewardDistributorParsedABI.Pack("setMerkleRoot", root, new(big.Int).SetUint64(epoch))
	if err != nil {
		return common.Hash{}, erde.NewChainReverted(stage, "packing setMerkleRoot call", err)
	}

	var txHash common.Hash
	err = w.retry.withRetry(ctx, stage, "submitRoot", func(ctx context.Context) error {
		nonce, err := w.sender.PendingNonceAt(ctx, w.signer.Address())
		if err != nil {
			return classifyCallError(err)
		}
		gasPrice, err := w.sender.SuggestGasPrice(ctx)
		if err != nil {
			return classifyCallError(err)
		}
		to := w.reader.addrs.RewardDistributor
		unsigned := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &to,
			Value:    big.NewInt(0),
			Gas:      200_000,
			GasPrice: gasPrice,
			Data:     input,
		})
		signed, err := w.signer.SignTx(ctx, unsigned)
		if err != nil {
			return erde.NewChainReverted(stage, "signing setMerkleRoot transaction", err)
		}
		if err := w.sender.SendTransaction(ctx, signed); err != nil {
			return classifyCallError(err)
		}
		txHash = signed.Hash()
		return nil
	})
	if err != nil {
		return common.Hash{}, err
	}

	receipt, err := w.waitForReceipt(ctx, txHash)
	if err != nil {
		return common.Hash{}, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Hash{}, erde.NewChainReverted(stage, "setMerkleRoot transaction reverted", nil)
	}

	confirmed, err := w.reader.ReadOnChainRoot(ctx, epoch)
	if err != nil {
		return common.Hash{}, err
	}
	if confirmed != root {
		return common.Hash{}, erde.NewIntegrityMismatch(stage, "on-chain root after confirmation does not match submitted root", nil)
	}

	return txHash, nil
}

func (w *Writer) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	const stage = "submit"
	var receipt *types.Receipt
	err := w.retry.withRetry(ctx, stage, "waitForReceipt", func(ctx context.Context) error {
		r, err := w.sender.TransactionReceipt(ctx, txHash)
		if err != nil {
			return erde.NewChainTransient(stage, "transaction not yet mined", err)
		}
		receipt = r
		return nil
	})
	return receipt, err
}
