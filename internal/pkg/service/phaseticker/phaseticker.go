package phaseticker

import (
	"context"
	"time"

	"github.com/hermeznetwork/hermez-node/log"

	"github.com/mevshield/coordinator/internal/pkg/model"
	"github.com/mevshield/coordinator/internal/pkg/service/coordinator"
)

// job drives batch lifecycles from the wall clock: it advances batches past
// elapsed phase deadlines, cancels batches that outlived their window
// without reaching execution, and opens a fresh batch when none is active.
type job struct {
	globalCfg *model.JobConfig
	localCfg  *config
	repo      model.BatchRepository
	svc       *coordinator.Service
	nowFn     func() time.Time
}

func NewJob(cfg *model.JobConfig, repo model.BatchRepository, svc *coordinator.Service) model.IJob {
	return &job{
		globalCfg: cfg,
		repo:      repo,
		svc:       svc,
		nowFn:     time.Now,
	}
}

func (j *job) Run(ctx context.Context) {
	c, existed := configs[j.globalCfg.ChainID]
	if !existed {
		log.Warnf("no phase ticker config for chain %d", j.globalCfg.ChainID)
		return
	}
	j.localCfg = &c

	ticker := time.NewTicker(time.Duration(c.JobIntervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.process(ctx)
		}
	}
}

func (j *job) process(ctx context.Context) {
	j.advanceElapsed(ctx)
	j.cancelExpired(ctx)
	if j.localCfg.AutoCreate {
		j.ensureActiveBatch(ctx)
	}
}

func (j *job) advanceElapsed(ctx context.Context) {
	now := j.nowFn()
	for _, status := range []model.BatchStatus{model.BatchStatusCommitmentPhase, model.BatchStatusRevealPhase} {
		batches, err := j.repo.FindByStatus(ctx, status)
		if err != nil {
			log.Errorf("failed to list %s batches, err: %v", status, err)
			return
		}
		for _, b := range batches {
			deadline := b.CommitmentPhaseEnd
			if status == model.BatchStatusRevealPhase {
				deadline = b.RevealPhaseEnd
			}
			if now.Before(deadline) {
				continue
			}
			resp, err := j.svc.AdvancePhase(ctx, b.ID)
			if err != nil {
				log.Errorf("failed to advance batch %s, err: %v", b.ID, err)
				continue
			}
			log.Infof("advanced batch %s to %s", b.ID, resp.Status)
		}
	}
}

// cancelExpired terminates batches whose window closed before they reached
// execution. Executing batches stay open for finalization.
func (j *job) cancelExpired(ctx context.Context) {
	now := j.nowFn()
	expired, err := j.repo.FindExpired(ctx, now)
	if err != nil {
		log.Errorf("failed to list expired batches, err: %v", err)
		return
	}
	for _, b := range expired {
		if b.Status == model.BatchStatusExecutionPhase {
			continue
		}
		if _, err := j.svc.CancelBatch(ctx, coordinator.CancelBatchRequest{
			BatchID: b.ID,
			Reason:  "batch window elapsed before execution",
		}); err != nil {
			log.Errorf("failed to cancel expired batch %s, err: %v", b.ID, err)
			continue
		}
		log.Infof("cancelled expired batch %s", b.ID)
	}
}

func (j *job) ensureActiveBatch(ctx context.Context) {
	now := j.nowFn()
	active, err := j.repo.GetCurrentActiveBatch(ctx, now)
	if err != nil {
		log.Errorf("failed to query active batch, err: %v", err)
		return
	}
	if active != nil {
		return
	}

	start := now.Add(time.Duration(j.localCfg.JobIntervalSec) * time.Second)
	resp, err := j.svc.CreateBatch(ctx, coordinator.CreateBatchRequest{
		StartTime:      start,
		EndTime:        start.Add(time.Duration(j.localCfg.BatchDurationMins) * time.Minute),
		OrderingMethod: model.OrderingCommitReveal,
	})
	if err != nil {
		log.Errorf("failed to open new batch, err: %v", err)
		return
	}
	log.Infof("opened batch %s, commitment phase until %s", resp.ID, resp.CommitmentPhaseEnd)
}
