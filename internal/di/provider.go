package di

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-pkgz/lgr"

	"github.com/paimon-protocol/erde/internal/allocate"
	"github.com/paimon-protocol/erde/internal/artifact"
	"github.com/paimon-protocol/erde/internal/artifact/audit"
	"github.com/paimon-protocol/erde/internal/artifact/cache"
	"github.com/paimon-protocol/erde/internal/budget"
	"github.com/paimon-protocol/erde/internal/chain"
	"github.com/paimon-protocol/erde/internal/config"
	"github.com/paimon-protocol/erde/internal/merkle"
	"github.com/paimon-protocol/erde/internal/pipeline"
	"github.com/paimon-protocol/erde/internal/snapshot"
	"github.com/paimon-protocol/erde/internal/statusrpc"
	"github.com/paimon-protocol/erde/internal/validate"
	"github.com/paimon-protocol/erde/internal/weights"
)

// signerKeyEnv names the environment variable a KeySigner is read from.
// Key custody is assumed external to ERDE (§9 Non-goals); this is the
// minimal concrete Signer needed to make the binary runnable, not a
// key-management system.
const signerKeyEnv = "ERDE_SIGNER_KEY"

// Provider configures and registers every ERDE service in the
// container, building a full Pipeline from one immutable Config.
type Provider struct {
	container *Container
	config    *config.Config
	log       lgr.L
}

// NewProvider creates a new service provider.
func NewProvider(container *Container, cfg *config.Config, log lgr.L) *Provider {
	if log == nil {
		log = lgr.Default()
	}
	return &Provider{container: container, config: cfg, log: log}
}

// RegisterAll registers builders for every stage service. Construction
// is lazy: dialing the RPC endpoint or opening the cache/audit stores
// only happens the first time a caller resolves the corresponding
// service from the container.
func (p *Provider) RegisterAll() error {
	p.container.Register(ServiceConfig, p.config)

	p.registerChainBuilders()
	p.registerStageBuilders()
	p.registerArtifactBuilders()
	p.registerStatusBuilders()
	p.registerPipelineBuilder()

	return nil
}

func (p *Provider) contractAddresses() chain.Addresses {
	c := p.config.Contracts
	lpTokens := make([]common.Address, len(c.LPTokens))
	for i, addr := range c.LPTokens {
		lpTokens[i] = common.HexToAddress(addr)
	}
	return chain.Addresses{
		Vault:             common.HexToAddress(c.Vault),
		StabilityPool:     common.HexToAddress(c.StabilityPool),
		RewardDistributor: common.HexToAddress(c.RewardDistributor),
		EmissionManager:   common.HexToAddress(c.EmissionManager),
		LPTokens:          lpTokens,
	}
}

func (p *Provider) registerChainBuilders() {
	p.container.RegisterBuilder(ServiceChainReader, func(c *Container) (interface{}, error) {
		client, err := ethclient.Dial(p.config.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dialing rpc endpoint: %w", err)
		}

		baseDelay := time.Duration(p.config.ChainRetryBaseDelayMS) * time.Millisecond
		reader, err := chain.NewReader(client, p.contractAddresses(), p.config.ChainRetryAttempts, baseDelay, 4096, p.log)
		if err != nil {
			return nil, fmt.Errorf("building chain reader: %w", err)
		}
		return reader, nil
	})

	p.container.RegisterBuilder(ServiceChainWriter, func(c *Container) (interface{}, error) {
		readerVal, err := c.Get(ServiceChainReader)
		if err != nil {
			return nil, err
		}
		reader := readerVal.(*chain.Reader)

		client, err := ethclient.Dial(p.config.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dialing rpc endpoint: %w", err)
		}

		hexKey := os.Getenv(signerKeyEnv)
		if hexKey == "" {
			return nil, fmt.Errorf("%s is not set; submission requires a signing key", signerKeyEnv)
		}
		chainID, err := client.ChainID(context.Background())
		if err != nil {
			return nil, fmt.Errorf("fetching chain id: %w", err)
		}
		signer, err := chain.NewKeySigner(hexKey, chainID.Int64())
		if err != nil {
			return nil, err
		}

		baseDelay := time.Duration(p.config.ChainRetryBaseDelayMS) * time.Millisecond
		return chain.NewWriterWithRetry(reader, client, signer, p.config.ChainRetryAttempts, baseDelay, p.log), nil
	})
}

func (p *Provider) registerStageBuilders() {
	p.container.RegisterBuilder(ServiceAggregator, func(c *Container) (interface{}, error) {
		readerVal, err := c.Get(ServiceChainReader)
		if err != nil {
			return nil, err
		}
		return snapshot.NewAggregator(readerVal.(*chain.Reader), p.config.SnapshotConcurrency, p.log), nil
	})

	p.container.RegisterBuilder(ServiceCalculator, func(c *Container) (interface{}, error) {
		return weights.NewCalculator(), nil
	})

	p.container.RegisterBuilder(ServiceBudgetSource, func(c *Container) (interface{}, error) {
		readerVal, err := c.Get(ServiceChainReader)
		if err != nil {
			return nil, err
		}
		return budget.NewSource(readerVal.(*chain.Reader)), nil
	})

	p.container.RegisterBuilder(ServiceAllocator, func(c *Container) (interface{}, error) {
		policy := allocate.Policy{
			DebtFraction:          p.config.Policy.DebtFraction(),
			StabilityPoolFraction: p.config.Policy.StabilityPoolFraction(),
			LPFraction:            p.config.Policy.LPFraction(),
			TreasuryAddress:       common.HexToAddress(p.config.TreasuryAddress),
		}
		return allocate.NewAllocator(policy), nil
	})

	p.container.RegisterBuilder(ServiceMerkleEngine, func(c *Container) (interface{}, error) {
		return merkle.NewEngine(), nil
	})

	p.container.RegisterBuilder(ServiceValidator, func(c *Container) (interface{}, error) {
		return validate.NewValidator(p.config.MaxRewardDeviation), nil
	})
}

func (p *Provider) registerArtifactBuilders() {
	p.container.RegisterBuilder(ServiceArtifacts, func(c *Container) (interface{}, error) {
		return artifact.NewWriter(p.config.Output), nil
	})

	p.container.RegisterBuilder(ServiceCache, func(c *Container) (interface{}, error) {
		if p.config.Cache.Dir == "" {
			return nil, nil
		}
		return cache.Open(p.config.Cache.Dir, p.config.Cache.CompressAboveBytes)
	})

	p.container.RegisterBuilder(ServiceAudit, func(c *Container) (interface{}, error) {
		if p.config.Audit.Path == "" {
			return nil, nil
		}
		return audit.Open(p.config.Audit.Path)
	})
}

func (p *Provider) registerStatusBuilders() {
	p.container.RegisterBuilder(ServiceStatusBoard, func(c *Container) (interface{}, error) {
		return statusrpc.NewStatusBoard(), nil
	})
}

// registerPipelineBuilder wires every stage service into one
// *pipeline.Pipeline. The chain writer, cache, and audit ledger are
// resolved lazily and may come back nil (no signer key configured, or
// no cache/audit path configured) — Pipeline tolerates all three being
// nil for a validate-only run.
func (p *Provider) registerPipelineBuilder() {
	p.container.RegisterBuilder(ServicePipeline, func(c *Container) (interface{}, error) {
		aggVal, err := c.Get(ServiceAggregator)
		if err != nil {
			return nil, err
		}
		calcVal, err := c.Get(ServiceCalculator)
		if err != nil {
			return nil, err
		}
		budgetVal, err := c.Get(ServiceBudgetSource)
		if err != nil {
			return nil, err
		}
		allocVal, err := c.Get(ServiceAllocator)
		if err != nil {
			return nil, err
		}
		merkleVal, err := c.Get(ServiceMerkleEngine)
		if err != nil {
			return nil, err
		}
		validatorVal, err := c.Get(ServiceValidator)
		if err != nil {
			return nil, err
		}
		artifactsVal, err := c.Get(ServiceArtifacts)
		if err != nil {
			return nil, err
		}
		boardVal, err := c.Get(ServiceStatusBoard)
		if err != nil {
			return nil, err
		}

		pl := &pipeline.Pipeline{
			Aggregator: aggVal.(*snapshot.Aggregator),
			Calculator: calcVal.(*weights.Calculator),
			Budget:     budgetVal.(*budget.Source),
			Allocator:  allocVal.(*allocate.Allocator),
			Merkle:     merkleVal.(*merkle.Engine),
			Validator:  validatorVal.(*validate.Validator),
			Artifacts:  artifactsVal.(*artifact.Writer),
			Status:     boardVal.(*statusrpc.StatusBoard),
			Log:        p.log,
			ForceUpdate: p.config.ForceUpdate,
		}

		if cacheVal, err := c.Get(ServiceCache); err == nil && cacheVal != nil {
			pl.Cache = cacheVal.(*cache.Store)
		}
		if auditVal, err := c.Get(ServiceAudit); err == nil && auditVal != nil {
			pl.Audit = auditVal.(*audit.Ledger)
		}
		if writerVal, err := c.Get(ServiceChainWriter); err == nil && writerVal != nil {
			pl.Writer = writerVal.(*chain.Writer)
		}

		return pl, nil
	})
}

// GetConfig returns the configuration from the container.
func (p *Provider) GetConfig() *config.Config {
	return p.config
}

// GetPipeline resolves the fully-wired pipeline from the container.
func (p *Provider) GetPipeline() (*pipeline.Pipeline, error) {
	pl, err := p.container.Get(ServicePipeline)
	if err != nil {
		return nil, err
	}
	return pl.(*pipeline.Pipeline), nil
}

// GetStatusBoard resolves the status board, for wiring into the
// optional statusrpc.Serve goroutine.
func (p *Provider) GetStatusBoard() (*statusrpc.StatusBoard, error) {
	boardVal, err := p.container.Get(ServiceStatusBoard)
	if err != nil {
		return nil, err
	}
	return boardVal.(*statusrpc.StatusBoard), nil
}
