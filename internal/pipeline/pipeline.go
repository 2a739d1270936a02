// Package pipeline sequences the seven ERDE stages named in §4 —
// config is assumed already loaded by the caller — into one epoch run:
// snapshot, TWAD weights, budget, allocation, Merkle commitment,
// validation, submission. Each stage's failure aborts the run
// immediately; there is no partial-epoch continuation (§7 "fatal
// unless explicitly retryable").
package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-pkgz/lgr"

	"github.com/paimon-protocol/erde/internal/allocate"
	"github.com/paimon-protocol/erde/internal/artifact"
	"github.com/paimon-protocol/erde/internal/artifact/audit"
	"github.com/paimon-protocol/erde/internal/artifact/cache"
	"github.com/paimon-protocol/erde/internal/budget"
	"github.com/paimon-protocol/erde/internal/chain"
	"github.com/paimon-protocol/erde/internal/domain"
	"github.com/paimon-protocol/erde/internal/erde"
	"github.com/paimon-protocol/erde/internal/merkle"
	"github.com/paimon-protocol/erde/internal/snapshot"
	"github.com/paimon-protocol/erde/internal/validate"
	"github.com/paimon-protocol/erde/internal/weights"
)

const stagePipeline = "pipeline"

// StatusSink receives per-stage progress updates. The gRPC status
// server's StatusBoard satisfies this; so does NoopSink for tests and
// one-shot CLI runs that don't expose the status surface.
type StatusSink interface {
	SetStage(epoch uint64, name, state, detail string)
	SetError(err error)
	SetResult(recipientCount int, totalRewards string)
}

type noopSink struct{}

func (noopSink) SetStage(uint64, string, string, string) {}
func (noopSink) SetError(error)                          {}
func (noopSink) SetResult(int, string)                   {}

// NoopSink is a StatusSink that discards every update.
var NoopSink StatusSink = noopSink{}

// Pipeline wires every stage implementation behind the seven-step
// sequence in §4. Writer and Audit are optional: a nil Writer runs the
// pipeline through validation only (the CLI's "validate-only" mode),
// and a nil Audit simply skips submission bookkeeping.
type Pipeline struct {
	Aggregator *snapshot.Aggregator
	Calculator *weights.Calculator
	Budget     *budget.Source
	Allocator  *allocate.Allocator
	Merkle     *merkle.Engine
	Validator  *validate.Validator
	Writer     *chain.Writer
	Artifacts  *artifact.Writer
	Cache      *cache.Store
	Audit      *audit.Ledger
	Status     StatusSink
	Log        lgr.L

	// ForceUpdate is the operator override named in §6/§7's
	// "force_update": it skips the local audit-ledger short-circuit for
	// an epoch already recorded as confirmed, and it is threaded into
	// Writer.SubmitRoot to override the on-chain idempotence conflict
	// when a different root is already committed for the epoch.
	ForceUpdate bool
}

// Result is everything one epoch run produced, for the CLI to report.
type Result struct {
	Distribution domain.RewardDistribution
	Validation   validate.Result
	TxHash       common.Hash
	Submitted    bool
}

// Run executes one full epoch pass. pools and users describe the
// universe to snapshot; epochNumber, startBlock and endBlock define the
// window (§3 Epoch). submit controls whether stage 7 (§4.H) runs; when
// false, Run stops after validation (the CLI's "validate-only" mode), as
// it also does when Writer is nil.
func (p *Pipeline) Run(ctx context.Context, epochNumber, startBlock, endBlock uint64, pools, users []common.Address, submit bool) (Result, error) {
	status := p.Status
	if status == nil {
		status = NoopSink
	}

	epoch := domain.Epoch{Number: epochNumber, StartBlock: startBlock, EndBlock: endBlock, Timestamp: time.Now().UTC()}

	snap, err := p.runSnapshot(ctx, status, epoch, pools, users)
	if err != nil {
		return Result{}, p.fail(status, err)
	}

	ws, err := p.runWeights(status, epoch, snap)
	if err != nil {
		return Result{}, p.fail(status, err)
	}

	weeklyBudget, err := p.runBudget(ctx, status, epoch)
	if err != nil {
		return Result{}, p.fail(status, err)
	}

	rewards, err := p.runAllocate(status, epoch, snap, ws, weeklyBudget)
	if err != nil {
		return Result{}, p.fail(status, err)
	}

	dist, err := p.runMerkle(status, epoch, rewards, weeklyBudget)
	if err != nil {
		return Result{}, p.fail(status, err)
	}

	result := p.runValidate(status, dist)
	p.writeArtifacts(dist, snap, ws, rewards, result)

	out := Result{Distribution: dist, Validation: result}
	if !result.Valid {
		return out, p.fail(status, erde.NewValidationFail(stagePipeline, "distribution failed validation", nil))
	}

	if !submit || p.Writer == nil {
		detail := "validate-only run"
		if submit {
			detail = "no chain writer configured"
		}
		status.SetStage(epochNumber, "submit", "skipped", detail)
		status.SetResult(len(dist.Recipients), dist.TotalRewards.String())
		return out, nil
	}

	txHash, err := p.runSubmit(ctx, status, epoch, dist)
	if err != nil {
		return out, p.fail(status, err)
	}
	out.TxHash = txHash
	out.Submitted = true
	status.SetResult(len(dist.Recipients), dist.TotalRewards.String())
	return out, nil
}

func (p *Pipeline) fail(status StatusSink, err error) error {
	status.SetError(err)
	return err
}

func (p *Pipeline) runSnapshot(ctx context.Context, status StatusSink, epoch domain.Epoch, pools, users []common.Address) (domain.EpochSnapshot, error) {
	status.SetStage(epoch.Number, "snapshot", "running", fmt.Sprintf("%d users", len(users)))

	snap, err := p.Aggregator.Build(ctx, epoch, pools, users)
	if err != nil {
		return domain.EpochSnapshot{}, err
	}

	if p.Cache != nil {
		if err := p.Cache.Put(ctx, cache.Key(epoch.Number, "snapshot"), snapshotRecord{
			Epoch:     epoch.Number,
			UserCount: len(snap.Users),
			TotalDebt: snap.TotalDebt.String(),
		}); err != nil {
			p.Log.Logf("WARN pipeline: caching snapshot stage output: %v", err)
		}
	}

	status.SetStage(epoch.Number, "snapshot", "completed", fmt.Sprintf("totalDebt=%s", snap.TotalDebt.String()))
	return snap, nil
}

// snapshotRecord is the DTO cached for the snapshot stage. Domain types
// carry *big.Int/*big.Rat fields the cache's CBOR handle isn't taught to
// round-trip, so every cached value is a plain-field summary instead of
// the raw domain struct.
type snapshotRecord struct {
	Epoch     uint64
	UserCount int
	TotalDebt string
}

func (p *Pipeline) runWeights(status StatusSink, epoch domain.Epoch, snap domain.EpochSnapshot) ([]domain.TWADWeight, error) {
	status.SetStage(epoch.Number, "weights", "running", "")
	ws, err := p.Calculator.Compute(snap)
	if err != nil {
		return nil, err
	}
	status.SetStage(epoch.Number, "weights", "completed", fmt.Sprintf("%d users weighted", len(ws)))
	return ws, nil
}

func (p *Pipeline) runBudget(ctx context.Context, status StatusSink, epoch domain.Epoch) (*big.Int, error) {
	status.SetStage(epoch.Number, "budget", "running", "")
	b, err := p.Budget.WeeklyBudget(ctx, epoch.Number)
	if err != nil {
		return nil, err
	}
	status.SetStage(epoch.Number, "budget", "completed", b.String())
	return b, nil
}

func (p *Pipeline) runAllocate(status StatusSink, epoch domain.Epoch, snap domain.EpochSnapshot, ws []domain.TWADWeight, weeklyBudget *big.Int) ([]domain.UserReward, error) {
	status.SetStage(epoch.Number, "allocate", "running", "")
	rewards, err := p.Allocator.Allocate(snap, ws, weeklyBudget)
	if err != nil {
		return nil, err
	}
	status.SetStage(epoch.Number, "allocate", "completed", fmt.Sprintf("%d recipients", len(rewards)))
	return rewards, nil
}

func (p *Pipeline) runMerkle(status StatusSink, epoch domain.Epoch, rewards []domain.UserReward, weeklyBudget *big.Int) (domain.RewardDistribution, error) {
	status.SetStage(epoch.Number, "merkle", "running", "")
	dist, err := p.Merkle.Build(epoch, rewards, weeklyBudget)
	if err != nil {
		return domain.RewardDistribution{}, err
	}
	status.SetStage(epoch.Number, "merkle", "completed", fmt.Sprintf("root=%x", dist.MerkleRoot))
	return dist, nil
}

func (p *Pipeline) runValidate(status StatusSink, dist domain.RewardDistribution) validate.Result {
	status.SetStage(dist.Epoch.Number, "validate", "running", "")
	result := p.Validator.Validate(dist)
	state := "completed"
	if !result.Valid {
		state = "failed"
	}
	status.SetStage(dist.Epoch.Number, "validate", state, fmt.Sprintf("%d errors, %d warnings", len(result.Errors), len(result.Warnings)))
	return result
}

func (p *Pipeline) writeArtifacts(dist domain.RewardDistribution, snap domain.EpochSnapshot, ws []domain.TWADWeight, rewards []domain.UserReward, result validate.Result) {
	if p.Artifacts == nil {
		return
	}
	if err := p.Artifacts.WriteSnapshot(snap); err != nil {
		p.Log.Logf("WARN pipeline: writing snapshot artifact: %v", err)
	}
	if err := p.Artifacts.WriteWeights(snap, ws); err != nil {
		p.Log.Logf("WARN pipeline: writing weights artifact: %v", err)
	}
	if err := p.Artifacts.WriteRewards(snap, rewards); err != nil {
		p.Log.Logf("WARN pipeline: writing rewards artifact: %v", err)
	}
	if err := p.Artifacts.WriteMerkleJSON(dist, dist.Timestamp); err != nil {
		p.Log.Logf("WARN pipeline: writing merkle artifact: %v", err)
	}
	if err := p.Artifacts.WriteSummary(result.Summary, result); err != nil {
		p.Log.Logf("WARN pipeline: writing summary artifact: %v", err)
	}
}

func (p *Pipeline) runSubmit(ctx context.Context, status StatusSink, epoch domain.Epoch, dist domain.RewardDistribution) (common.Hash, error) {
	status.SetStage(epoch.Number, "submit", "running", "")
	rootHex := fmt.Sprintf("0x%x", dist.MerkleRoot)

	if p.Audit != nil {
		already, err := p.Audit.AlreadyConfirmed(ctx, epoch.Number, rootHex)
		if err != nil {
			return common.Hash{}, err
		}
		if already && !p.ForceUpdate {
			status.SetStage(epoch.Number, "submit", "completed", "already confirmed, skipped")
			return common.Hash{}, nil
		}
	}

	txHash, err := p.Writer.SubmitRoot(ctx, epoch.Number, dist.MerkleRoot, p.ForceUpdate)
	if err != nil {
		if p.Audit != nil {
			_ = p.Audit.RecordAttempt(ctx, audit.Record{
				Epoch:     epoch.Number,
				Root:      rootHex,
				Status:    audit.StatusFailed,
				CreatedAt: time.Now().UTC(),
			})
		}
		return common.Hash{}, err
	}

	if p.Audit != nil {
		if err := p.Audit.RecordAttempt(ctx, audit.Record{
			Epoch:     epoch.Number,
			Root:      rootHex,
			Status:    audit.StatusConfirmed,
			TxHash:    txHash.Hex(),
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			p.Log.Logf("WARN pipeline: recording audit attempt: %v", err)
		}
	}

	status.SetStage(epoch.Number, "submit", "completed", txHash.Hex())
	return txHash, nil
}
