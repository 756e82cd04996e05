package coordinator

import (
	"context"
	"math/big"
	"sync"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/hermez-node/log"
	"github.com/hermeznetwork/tracerr"

	"github.com/mevshield/coordinator/internal/pkg/model"
)

const (
	activeBatchKey = "coordinator:activeBatch"
	activeBatchTTL = time.Minute
)

// EventPublisher fans domain events out to in-process subscribers.
type EventPublisher interface {
	Publish(events ...model.Event)
}

// Service orchestrates the commit-reveal batch lifecycle. Every mutating
// use-case follows the same shape: validate the request, load the aggregate,
// mutate it in memory, mirror the mutation on chain, then persist. A bridge
// failure discards the in-memory mutation; a persistence failure after the
// chain accepted the mutation is reported as PERSISTENCE_AFTER_COMMIT so
// operators can reconcile.
//
// The aggregate assumes single-writer semantics, so the whole
// load-mutate-save sequence runs under a per-batch mutex; concurrent
// requests against the same batch take turns.
type Service struct {
	repo      model.BatchRepository
	bridge    model.BlockchainBridge
	cache     model.IService
	publisher EventPublisher
	nowFn     func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewService(repo model.BatchRepository, bridge model.BlockchainBridge, cache model.IService, publisher EventPublisher) *Service {
	return &Service{
		repo:      repo,
		bridge:    bridge,
		cache:     cache,
		publisher: publisher,
		nowFn:     time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the service clock. Deterministic tests pin it to a
// fixed instant.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.nowFn = now
	return s
}

// CreateBatch opens a new batch, mirrors it on chain and persists it.
func (s *Service) CreateBatch(ctx context.Context, req CreateBatchRequest) (*model.BatchResponse, error) {
	now := s.nowFn()
	batch, err := model.NewBatch(model.BatchParams{
		StartTime:              req.StartTime,
		EndTime:                req.EndTime,
		OrderingMethod:         req.OrderingMethod,
		CommitmentDurationMins: req.CommitmentDurationMins,
		RevealDurationMins:     req.RevealDurationMins,
	}, now)
	if err != nil {
		return nil, err
	}

	if _, err := s.bridge.CreateNewBatch(ctx, batch.ID, batch.CommitmentPhaseEnd, batch.RevealPhaseEnd); err != nil {
		return nil, err
	}
	if err := s.persistMirrored(ctx, batch); err != nil {
		return nil, err
	}
	s.cacheActiveBatch(ctx, batch.ID)
	return model.NewBatchResponse(batch), nil
}

// SubmitCommitment records a commitment on the targeted batch. An empty
// batch id targets the currently active one.
func (s *Service) SubmitCommitment(ctx context.Context, req SubmitCommitmentRequest) (*model.BatchResponse, error) {
	now := s.nowFn()
	commitment, err := model.NewCommitment(req.CommitmentHash, req.UserAddress, now, req.Nonce, now)
	if err != nil {
		return nil, err
	}

	batchID, err := s.resolveTarget(ctx, req.BatchID, now)
	if err != nil {
		return nil, err
	}
	unlock := s.lockBatch(batchID)
	defer unlock()

	batch, err := s.repo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := batch.AddCommitment(*commitment, now); err != nil {
		return nil, err
	}

	if _, err := s.bridge.SubmitCommitment(ctx, batch.ID, commitment.UserAddress, commitment.Hash); err != nil {
		return nil, err
	}
	if err := s.persistMirrored(ctx, batch); err != nil {
		return nil, err
	}
	return model.NewBatchResponse(batch), nil
}

// RevealTransaction opens a commitment with its transaction and nonce.
func (s *Service) RevealTransaction(ctx context.Context, req RevealTransactionRequest) (*model.BatchResponse, error) {
	now := s.nowFn()
	txData, err := model.NewTransactionData(
		req.Transaction.To, req.Transaction.Value, req.Transaction.Data,
		req.Transaction.GasLimit, req.Transaction.GasPrice, req.Transaction.Nonce,
	)
	if err != nil {
		return nil, err
	}
	if !ethCommon.IsHexAddress(req.UserAddress) {
		return nil, model.NewDomainError(model.ErrCodeInvalidArgument, "invalid user address: %s", req.UserAddress)
	}
	userAddress := ethCommon.HexToAddress(req.UserAddress)
	commitmentHash := ethCommon.HexToHash(req.CommitmentHash)

	batchID, err := s.resolveTarget(ctx, req.BatchID, now)
	if err != nil {
		return nil, err
	}
	unlock := s.lockBatch(batchID)
	defer unlock()

	batch, err := s.repo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := batch.RevealTransaction(commitmentHash, txData, userAddress, req.Nonce, now); err != nil {
		return nil, err
	}

	if _, err := s.bridge.RevealTransaction(ctx, batch.ID, userAddress, txData.CanonicalEncoding(), req.Nonce); err != nil {
		return nil, err
	}
	if err := s.persistMirrored(ctx, batch); err != nil {
		return nil, err
	}
	return model.NewBatchResponse(batch), nil
}

// AdvancePhase moves a batch past an elapsed phase deadline. It refuses to
// advance before the deadline so the ticker stays idempotent.
func (s *Service) AdvancePhase(ctx context.Context, batchID string) (*model.BatchResponse, error) {
	now := s.nowFn()
	unlock := s.lockBatch(batchID)
	defer unlock()

	batch, err := s.repo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	switch batch.Status {
	case model.BatchStatusCommitmentPhase:
		if now.Before(batch.CommitmentPhaseEnd) {
			return nil, model.NewDomainError(model.ErrCodeInvalidBatchStatus,
				"commitment phase of batch %s is still open", batch.ID)
		}
		err = batch.AdvanceToReveal(now)
	case model.BatchStatusRevealPhase:
		if now.Before(batch.RevealPhaseEnd) {
			return nil, model.NewDomainError(model.ErrCodeInvalidBatchStatus,
				"reveal phase of batch %s is still open", batch.ID)
		}
		err = batch.AdvanceToExecution(now)
	default:
		err = model.NewDomainError(model.ErrCodeInvalidBatchStatus,
			"batch %s has no phase to advance from %s", batch.ID, batch.Status)
	}
	if err != nil {
		return nil, err
	}

	if err := s.persist(ctx, batch); err != nil {
		return nil, err
	}
	return model.NewBatchResponse(batch), nil
}

// FinalizeBatch completes an executed batch with the supplied ordering and
// metrics, mirroring the ordering on chain.
func (s *Service) FinalizeBatch(ctx context.Context, req FinalizeBatchRequest) (*model.BatchResponse, error) {
	now := s.nowFn()
	ordering := make([]ethCommon.Hash, 0, len(req.Ordering))
	for _, h := range req.Ordering {
		if len(h) != model.CommitmentHashLen {
			return nil, model.NewDomainError(model.ErrCodeInvalidArgument, "malformed ordering entry: %s", h)
		}
		ordering = append(ordering, ethCommon.HexToHash(h))
	}
	metrics, err := parseMetrics(req.Metrics)
	if err != nil {
		return nil, err
	}

	unlock := s.lockBatch(req.BatchID)
	defer unlock()

	batch, err := s.repo.GetByID(ctx, req.BatchID)
	if err != nil {
		return nil, err
	}
	if err := batch.Finalize(ordering, metrics, now); err != nil {
		return nil, err
	}

	if _, err := s.bridge.FinalizeBatch(ctx, batch.ID, ordering); err != nil {
		return nil, err
	}
	if err := s.persistMirrored(ctx, batch); err != nil {
		return nil, err
	}
	s.dropLock(batch.ID)
	return model.NewBatchResponse(batch), nil
}

// CancelBatch terminates a non-terminal batch. Cancellation is off-chain
// only; the contract batch simply expires.
func (s *Service) CancelBatch(ctx context.Context, req CancelBatchRequest) (*model.BatchResponse, error) {
	now := s.nowFn()
	unlock := s.lockBatch(req.BatchID)
	defer unlock()

	batch, err := s.repo.GetByID(ctx, req.BatchID)
	if err != nil {
		return nil, err
	}
	if err := batch.Cancel(req.Reason, now); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, batch); err != nil {
		return nil, err
	}
	s.dropLock(batch.ID)
	return model.NewBatchResponse(batch), nil
}

// GetBatch returns the API view of one batch.
func (s *Service) GetBatch(ctx context.Context, batchID string) (*model.BatchResponse, error) {
	batch, err := s.repo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return model.NewBatchResponse(batch), nil
}

// GetCurrentBatch returns the active batch, trying the cache pointer before
// the repository.
func (s *Service) GetCurrentBatch(ctx context.Context) (*model.BatchResponse, error) {
	now := s.nowFn()
	if s.cache != nil {
		var batchID string
		err := s.cache.Get(ctx, activeBatchKey, &batchID)
		if err == nil && batchID != "" {
			batch, err := s.repo.FindByID(ctx, batchID)
			if err == nil && batch != nil && !batch.Status.IsTerminal() && !batch.IsExpired(now) {
				return model.NewBatchResponse(batch), nil
			}
		} else if err != nil && !model.IsNilErr(err) {
			log.Warnf("failed to read active batch pointer, err: %v", err)
		}
	}

	batch, err := s.repo.GetCurrentActiveBatch(ctx, now)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, model.NewDomainError(model.ErrCodeNoActiveBatch, "no batch is currently active")
	}
	s.cacheActiveBatch(ctx, batch.ID)
	return model.NewBatchResponse(batch), nil
}

// ListBatches returns one page of batches, newest first.
func (s *Service) ListBatches(ctx context.Context, page, limit int, filters model.BatchFilters) (*model.Page, error) {
	return s.repo.FindAllPaginated(ctx, page, limit, filters)
}

// GetStatistics aggregates over batches created in [from, to).
func (s *Service) GetStatistics(ctx context.Context, from, to time.Time) (*model.BatchStatistics, error) {
	if !to.After(from) {
		return nil, model.NewDomainError(model.ErrCodeInvalidArgument, "statistics range is empty")
	}
	return s.repo.Statistics(ctx, from, to)
}

// persistMirrored saves a batch whose mutation the chain already accepted.
// A save failure here means chain and store have diverged, which gets its
// own code so operators can reconcile.
func (s *Service) persistMirrored(ctx context.Context, batch *model.Batch) error {
	if err := s.repo.Save(ctx, batch); err != nil {
		return tracerr.Wrap(model.NewInfraError(model.ErrCodePersistenceAfterCommit, err,
			"batch %s accepted on chain but not persisted", batch.ID))
	}
	s.publish(batch)
	return nil
}

// persist saves an off-chain only mutation.
func (s *Service) persist(ctx context.Context, batch *model.Batch) error {
	if err := s.repo.Save(ctx, batch); err != nil {
		return err
	}
	s.publish(batch)
	return nil
}

func (s *Service) publish(batch *model.Batch) {
	if s.publisher != nil {
		s.publisher.Publish(batch.PullEvents()...)
	}
}

// resolveTarget maps an empty batch id onto the currently active batch.
func (s *Service) resolveTarget(ctx context.Context, batchID string, now time.Time) (string, error) {
	if batchID != "" {
		return batchID, nil
	}
	batch, err := s.repo.GetCurrentActiveBatch(ctx, now)
	if err != nil {
		return "", err
	}
	if batch == nil {
		return "", model.NewDomainError(model.ErrCodeNoActiveBatch, "no batch is currently active")
	}
	return batch.ID, nil
}

// lockBatch serializes load-mutate-save sequences on one batch. The returned
// func releases the lock.
func (s *Service) lockBatch(batchID string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[batchID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[batchID] = mu
	}
	s.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// dropLock forgets the mutex of a terminal batch. Goroutines still queued on
// it keep excluding each other; later requests fail on the terminal status.
func (s *Service) dropLock(batchID string) {
	s.locksMu.Lock()
	delete(s.locks, batchID)
	s.locksMu.Unlock()
}

func (s *Service) cacheActiveBatch(ctx context.Context, batchID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, activeBatchKey, batchID, activeBatchTTL); err != nil {
		log.Warnf("failed to cache active batch pointer, err: %v", err)
	}
}

func parseMetrics(p MetricsPayload) (*model.MEVMetrics, error) {
	values := make([]*big.Int, 4)
	for i, raw := range []string{p.ExtractedValue, p.SavingsGenerated, p.AverageGasPrice, p.TotalGasUsed} {
		if raw == "" {
			raw = "0"
		}
		v, ok := new(big.Int).SetString(raw, model.DecBase)
		if !ok {
			return nil, model.NewDomainError(model.ErrCodeInvalidArgument, "malformed metrics amount: %s", raw)
		}
		values[i] = v
	}
	return model.NewMEVMetrics(values[0], values[1], values[2], values[3], p.TotalTransactions, p.SuccessfulTransactions)
}
