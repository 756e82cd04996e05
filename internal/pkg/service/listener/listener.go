package listener

import (
	"context"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/hermez-node/log"
	"github.com/mitchellh/mapstructure"

	"github.com/mevshield/coordinator/internal/pkg/model"
)

const lastEventBlockKey = "listener:lastEventBlock"

// job tails the protocol contract and reconciles what the chain observed
// against the local store. The coordinator writes first, so a chain event
// without a local counterpart means a user bypassed the coordinator or the
// store diverged after PERSISTENCE_AFTER_COMMIT.
type job struct {
	globalCfg *model.JobConfig
	bridge    model.BlockchainBridge
	repo      model.BatchRepository
	r         model.IService
}

func NewJob(cfg *model.JobConfig, bridge model.BlockchainBridge, repo model.BatchRepository, r model.IService) model.IJob {
	return &job{
		globalCfg: cfg,
		bridge:    bridge,
		repo:      repo,
		r:         r,
	}
}

// Indexed bytes32 arguments arrive as hashes, non-indexed ones as raw
// 32-byte arrays.
type commitmentEvent struct {
	BatchKey       ethCommon.Hash    `mapstructure:"batchKey"`
	User           ethCommon.Address `mapstructure:"user"`
	CommitmentHash [32]byte          `mapstructure:"commitmentHash"`
}

type finalizedEvent struct {
	BatchKey   ethCommon.Hash `mapstructure:"batchKey"`
	NumReveals *big.Int       `mapstructure:"numReveals"`
}

func (j *job) Run(ctx context.Context) {
	j.bridge.OnCommitmentSubmitted(func(e model.ChainEvent) { j.onCommitment(ctx, e) })
	j.bridge.OnTransactionRevealed(func(e model.ChainEvent) { j.onReveal(ctx, e) })
	j.bridge.OnBatchFinalized(func(e model.ChainEvent) { j.onFinalized(ctx, e) })

	if err := j.bridge.StartEventListening(ctx); err != nil {
		log.Errorf("failed to start event listening, err: %v", err)
		return
	}
	<-ctx.Done()
	j.bridge.StopEventListening()
}

func (j *job) onCommitment(ctx context.Context, e model.ChainEvent) {
	var evt commitmentEvent
	if err := mapstructure.Decode(e.Args, &evt); err != nil {
		log.Warnf("failed to decode CommitmentSubmitted args, err: %v", err)
		return
	}
	log.Infof("observed commitment on chain, user: %s, block: %d", evt.User.Hex(), e.BlockNumber)

	batch := j.matchBatch(ctx, evt.BatchKey)
	if batch == nil {
		j.checkpoint(ctx, e.BlockNumber)
		return
	}
	if _, ok := batch.CommitmentFor(evt.User); !ok {
		log.Warnf("chain holds a commitment for %s on batch %s that the store lacks", evt.User.Hex(), batch.ID)
	}
	j.checkpoint(ctx, e.BlockNumber)
}

func (j *job) onReveal(ctx context.Context, e model.ChainEvent) {
	var evt commitmentEvent
	if err := mapstructure.Decode(e.Args, &evt); err != nil {
		log.Warnf("failed to decode TransactionRevealed args, err: %v", err)
		return
	}
	log.Infof("observed reveal on chain, user: %s, block: %d", evt.User.Hex(), e.BlockNumber)

	batch := j.matchBatch(ctx, evt.BatchKey)
	if batch != nil {
		if _, ok := batch.RevealFor(evt.CommitmentHash); !ok {
			log.Warnf("chain holds a reveal for %s on batch %s that the store lacks",
				ethCommon.Hash(evt.CommitmentHash).Hex(), batch.ID)
		}
	}
	j.checkpoint(ctx, e.BlockNumber)
}

func (j *job) onFinalized(ctx context.Context, e model.ChainEvent) {
	var evt finalizedEvent
	if err := mapstructure.Decode(e.Args, &evt); err != nil {
		log.Warnf("failed to decode BatchFinalized args, err: %v", err)
		return
	}
	log.Infof("observed finalization on chain, reveals: %v, block: %d", evt.NumReveals, e.BlockNumber)

	batch := j.matchBatch(ctx, evt.BatchKey)
	if batch != nil && batch.Status != model.BatchStatusCompleted {
		log.Warnf("chain finalized batch %s while the store records %s", batch.ID, batch.Status)
	}
	j.checkpoint(ctx, e.BlockNumber)
}

// matchBatch resolves the on-chain batch key back to a stored batch by
// hashing recent batch ids the way the contract does.
func (j *job) matchBatch(ctx context.Context, key ethCommon.Hash) *model.Batch {
	recent, err := j.repo.FindRecent(ctx, 20)
	if err != nil {
		log.Errorf("failed to list recent batches, err: %v", err)
		return nil
	}
	for _, b := range recent {
		if model.BatchChainKey(b.ID) == key {
			return b
		}
	}
	log.Warnf("no stored batch matches chain key %s", key.Hex())
	return nil
}

func (j *job) checkpoint(ctx context.Context, block uint64) {
	if j.r == nil {
		return
	}
	if err := j.r.Set(ctx, lastEventBlockKey, block, 0); err != nil {
		log.Warnf("failed to store event checkpoint, err: %v", err)
	}
}
