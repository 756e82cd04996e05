package coordinator

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/mevshield/coordinator/internal/pkg/model"
	"github.com/mevshield/coordinator/internal/pkg/utils"
)

var t0 = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

type fakeRepo struct {
	batches map[string]*model.Batch
	saveErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{batches: make(map[string]*model.Batch)}
}

func (r *fakeRepo) Save(_ context.Context, batch *model.Batch) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.batches[batch.ID] = batch
	return nil
}

func (r *fakeRepo) FindByID(_ context.Context, id string) (*model.Batch, error) {
	return r.batches[id], nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id string) (*model.Batch, error) {
	b, _ := r.FindByID(ctx, id)
	if b == nil {
		return nil, model.NewDomainError(model.ErrCodeBatchNotFound, "batch %s not found", id)
	}
	return b, nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	delete(r.batches, id)
	return nil
}

func (r *fakeRepo) GetCurrentActiveBatch(_ context.Context, now time.Time) (*model.Batch, error) {
	var active *model.Batch
	for _, b := range r.batches {
		if b.Status.IsTerminal() || now.Before(b.StartTime) || !now.Before(b.EndTime) {
			continue
		}
		if active == nil || b.StartTime.After(active.StartTime) {
			active = b
		}
	}
	return active, nil
}

func (r *fakeRepo) FindByStatus(_ context.Context, status model.BatchStatus) ([]*model.Batch, error) {
	var out []*model.Batch
	for _, b := range r.batches {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeRepo) FindRecent(context.Context, int) ([]*model.Batch, error) { return nil, nil }

func (r *fakeRepo) FindInDateRange(context.Context, time.Time, time.Time) ([]*model.Batch, error) {
	return nil, nil
}

func (r *fakeRepo) FindAllPaginated(context.Context, int, int, model.BatchFilters) (*model.Page, error) {
	return &model.Page{}, nil
}

func (r *fakeRepo) Statistics(context.Context, time.Time, time.Time) (*model.BatchStatistics, error) {
	return &model.BatchStatistics{}, nil
}

func (r *fakeRepo) Exists(_ context.Context, id string) (bool, error) {
	_, ok := r.batches[id]
	return ok, nil
}

func (r *fakeRepo) CountByStatus(context.Context, model.BatchStatus) (int64, error) { return 0, nil }

func (r *fakeRepo) FindExpired(_ context.Context, now time.Time) ([]*model.Batch, error) {
	var out []*model.Batch
	for _, b := range r.batches {
		if !b.Status.IsTerminal() && b.IsExpired(now) {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeBridge struct {
	err   error
	calls []string
}

func (b *fakeBridge) record(name string) (*model.TxReceipt, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.calls = append(b.calls, name)
	return &model.TxReceipt{Status: 1}, nil
}

func (b *fakeBridge) SubmitCommitment(context.Context, string, ethCommon.Address, ethCommon.Hash) (*model.TxReceipt, error) {
	return b.record("SubmitCommitment")
}

func (b *fakeBridge) RevealTransaction(context.Context, string, ethCommon.Address, []byte, string) (*model.TxReceipt, error) {
	return b.record("RevealTransaction")
}

func (b *fakeBridge) CreateNewBatch(context.Context, string, time.Time, time.Time) (*model.TxReceipt, error) {
	return b.record("CreateNewBatch")
}

func (b *fakeBridge) FinalizeBatch(context.Context, string, []ethCommon.Hash) (*model.TxReceipt, error) {
	return b.record("FinalizeBatch")
}

func (b *fakeBridge) GetBatchData(context.Context, string) (*model.OnChainBatch, error) {
	return nil, nil
}

func (b *fakeBridge) GetCurrentActiveBatchID(context.Context) (*big.Int, error) { return nil, nil }

func (b *fakeBridge) GetCommitmentHash(context.Context, string, ethCommon.Address) (ethCommon.Hash, error) {
	return ethCommon.Hash{}, nil
}

func (b *fakeBridge) OnCommitmentSubmitted(model.ChainEventHandler)  {}
func (b *fakeBridge) OnTransactionRevealed(model.ChainEventHandler)  {}
func (b *fakeBridge) OnBatchFinalized(model.ChainEventHandler)       {}
func (b *fakeBridge) StartEventListening(context.Context) error      { return nil }
func (b *fakeBridge) StopEventListening()                            {}

type fakePublisher struct {
	events []model.Event
}

func (p *fakePublisher) Publish(events ...model.Event) {
	p.events = append(p.events, events...)
}

type fixture struct {
	svc       *Service
	repo      *fakeRepo
	bridge    *fakeBridge
	publisher *fakePublisher
	now       time.Time
}

func newFixture() *fixture {
	f := &fixture{
		repo:      newFakeRepo(),
		bridge:    &fakeBridge{},
		publisher: &fakePublisher{},
		now:       t0,
	}
	f.svc = NewService(f.repo, f.bridge, nil, f.publisher)
	f.svc.nowFn = func() time.Time { return f.now }
	return f
}

func (f *fixture) createBatch(t *testing.T) *model.BatchResponse {
	t.Helper()
	resp, err := f.svc.CreateBatch(context.Background(), CreateBatchRequest{
		StartTime:      f.now,
		EndTime:        f.now.Add(time.Hour),
		OrderingMethod: model.OrderingCommitReveal,
	})
	require.NoError(t, err)
	return resp
}

func testTxPayload() TransactionPayload {
	return TransactionPayload{
		To:       "0xBBBB00000000000000000000000000000000BBBB",
		Value:    "1000",
		GasLimit: 21000,
		GasPrice: "1000000000",
	}
}

func commitmentHashFor(t *testing.T, p TransactionPayload, nonce string) ethCommon.Hash {
	t.Helper()
	txData, err := model.NewTransactionData(p.To, p.Value, p.Data, p.GasLimit, p.GasPrice, p.Nonce)
	require.NoError(t, err)
	return utils.CommitmentDigest(txData.CanonicalEncoding(), nonce)
}

func TestCreateBatch(t *testing.T) {
	t.Run("persists_and_publishes", func(t *testing.T) {
		f := newFixture()
		resp := f.createBatch(t)
		require.Equal(t, model.BatchStatusCommitmentPhase, resp.Status)
		require.Contains(t, f.repo.batches, resp.ID)
		require.Equal(t, []string{"CreateNewBatch"}, f.bridge.calls)
		require.Len(t, f.publisher.events, 1)
		require.Equal(t, model.EventNameBatchCreated, f.publisher.events[0].GetName())
	})

	t.Run("bridge_failure_discards_batch", func(t *testing.T) {
		f := newFixture()
		f.bridge.err = model.NewInfraError(model.ErrCodeContractInteraction, errors.New("revert"), "createBatch reverted")
		_, err := f.svc.CreateBatch(context.Background(), CreateBatchRequest{
			StartTime:      f.now,
			EndTime:        f.now.Add(time.Hour),
			OrderingMethod: model.OrderingCommitReveal,
		})
		require.Equal(t, model.ErrCodeContractInteraction, model.CodeOf(err))
		require.Empty(t, f.repo.batches)
		require.Empty(t, f.publisher.events)
	})

	t.Run("save_failure_after_chain_accept", func(t *testing.T) {
		f := newFixture()
		f.repo.saveErr = errors.New("connection reset")
		_, err := f.svc.CreateBatch(context.Background(), CreateBatchRequest{
			StartTime:      f.now,
			EndTime:        f.now.Add(time.Hour),
			OrderingMethod: model.OrderingCommitReveal,
		})
		require.Equal(t, model.ErrCodePersistenceAfterCommit, model.CodeOf(err))
	})
}

func TestSubmitCommitment(t *testing.T) {
	payload := testTxPayload()
	nonce := "abcdef1234"

	t.Run("targets_active_batch", func(t *testing.T) {
		f := newFixture()
		created := f.createBatch(t)
		f.now = t0.Add(time.Second)

		hash := commitmentHashFor(t, payload, nonce)
		resp, err := f.svc.SubmitCommitment(context.Background(), SubmitCommitmentRequest{
			CommitmentHash: hash.Hex(),
			UserAddress:    "0xAAAA00000000000000000000000000000000AAAA",
		})
		require.NoError(t, err)
		require.Equal(t, created.ID, resp.ID)
		require.Equal(t, 1, resp.CommitmentCount)
		require.Contains(t, f.bridge.calls, "SubmitCommitment")
	})

	t.Run("no_active_batch", func(t *testing.T) {
		f := newFixture()
		hash := commitmentHashFor(t, payload, nonce)
		_, err := f.svc.SubmitCommitment(context.Background(), SubmitCommitmentRequest{
			CommitmentHash: hash.Hex(),
			UserAddress:    "0xAAAA00000000000000000000000000000000AAAA",
		})
		require.Equal(t, model.ErrCodeNoActiveBatch, model.CodeOf(err))
	})

	t.Run("bridge_failure_keeps_store_clean", func(t *testing.T) {
		f := newFixture()
		created := f.createBatch(t)
		f.now = t0.Add(time.Second)
		f.bridge.err = model.NewInfraError(model.ErrCodeBlockchainConnection, errors.New("dial tcp"), "rpc down")

		hash := commitmentHashFor(t, payload, nonce)
		_, err := f.svc.SubmitCommitment(context.Background(), SubmitCommitmentRequest{
			BatchID:        created.ID,
			CommitmentHash: hash.Hex(),
			UserAddress:    "0xAAAA00000000000000000000000000000000AAAA",
		})
		require.Equal(t, model.ErrCodeBlockchainConnection, model.CodeOf(err))
	})
}

func TestRevealAndFinalizeFlow(t *testing.T) {
	f := newFixture()
	created := f.createBatch(t)
	payload := testTxPayload()
	nonce := "abcdef1234"
	hash := commitmentHashFor(t, payload, nonce)
	user := "0xAAAA00000000000000000000000000000000AAAA"

	f.now = t0.Add(time.Second)
	_, err := f.svc.SubmitCommitment(context.Background(), SubmitCommitmentRequest{
		CommitmentHash: hash.Hex(),
		UserAddress:    user,
	})
	require.NoError(t, err)

	// too early to advance
	f.now = t0.Add(10 * time.Minute)
	_, err = f.svc.AdvancePhase(context.Background(), created.ID)
	require.Equal(t, model.ErrCodeInvalidBatchStatus, model.CodeOf(err))

	f.now = t0.Add(30 * time.Minute)
	resp, err := f.svc.AdvancePhase(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, model.BatchStatusRevealPhase, resp.Status)

	f.now = t0.Add(31 * time.Minute)
	resp, err = f.svc.RevealTransaction(context.Background(), RevealTransactionRequest{
		BatchID:        created.ID,
		CommitmentHash: hash.Hex(),
		UserAddress:    user,
		Transaction:    payload,
		Nonce:          nonce,
	})
	require.NoError(t, err)
	require.Equal(t, 1, resp.RevealedCount)

	f.now = t0.Add(45 * time.Minute)
	resp, err = f.svc.AdvancePhase(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, model.BatchStatusExecutionPhase, resp.Status)

	f.now = t0.Add(46 * time.Minute)
	resp, err = f.svc.FinalizeBatch(context.Background(), FinalizeBatchRequest{
		BatchID:  created.ID,
		Ordering: []string{hash.Hex()},
		Metrics: MetricsPayload{
			ExtractedValue:         "42",
			SavingsGenerated:       "7",
			TotalTransactions:      1,
			SuccessfulTransactions: 1,
		},
	})
	require.NoError(t, err)
	require.Equal(t, model.BatchStatusCompleted, resp.Status)
	require.Equal(t, []string{hash.Hex()}, resp.FinalOrdering)
	require.Contains(t, f.bridge.calls, "FinalizeBatch")

	names := make([]string, 0, len(f.publisher.events))
	for _, e := range f.publisher.events {
		names = append(names, e.GetName())
	}
	require.Equal(t, []string{
		model.EventNameBatchCreated,
		model.EventNameCommitmentAdded,
		model.EventNameBatchStatusChanged,
		model.EventNameTransactionRevealed,
		model.EventNameBatchStatusChanged,
		model.EventNameBatchFinalized,
	}, names)
}

// snapshotRepo hands out copies on load the way a row-backed repository
// does, so a mutation only becomes visible once saved.
type snapshotRepo struct {
	*fakeRepo
}

func copyBatch(b *model.Batch) *model.Batch {
	if b == nil {
		return nil
	}
	cp := *b
	cp.Commitments = make(map[ethCommon.Address]model.Commitment, len(b.Commitments))
	for k, v := range b.Commitments {
		cp.Commitments[k] = v
	}
	cp.Reveals = make(map[ethCommon.Hash]model.RevealedTransaction, len(b.Reveals))
	for k, v := range b.Reveals {
		cp.Reveals[k] = v
	}
	cp.FinalOrdering = append([]ethCommon.Hash{}, b.FinalOrdering...)
	return &cp
}

func (r *snapshotRepo) FindByID(ctx context.Context, id string) (*model.Batch, error) {
	b, err := r.fakeRepo.FindByID(ctx, id)
	return copyBatch(b), err
}

func (r *snapshotRepo) GetByID(ctx context.Context, id string) (*model.Batch, error) {
	b, err := r.fakeRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return copyBatch(b), nil
}

func (r *snapshotRepo) GetCurrentActiveBatch(ctx context.Context, now time.Time) (*model.Batch, error) {
	b, err := r.fakeRepo.GetCurrentActiveBatch(ctx, now)
	return copyBatch(b), err
}

func TestConcurrentSubmitSameUser(t *testing.T) {
	repo := &snapshotRepo{newFakeRepo()}
	svc := NewService(repo, &fakeBridge{}, nil, &fakePublisher{})
	now := t0
	svc.WithClock(func() time.Time { return now })

	created, err := svc.CreateBatch(context.Background(), CreateBatchRequest{
		StartTime:      t0,
		EndTime:        t0.Add(time.Hour),
		OrderingMethod: model.OrderingCommitReveal,
	})
	require.NoError(t, err)
	now = t0.Add(time.Second)

	hash := commitmentHashFor(t, testTxPayload(), "abcdef1234")
	user := "0xAAAA00000000000000000000000000000000AAAA"

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.SubmitCommitment(context.Background(), SubmitCommitmentRequest{
				BatchID:        created.ID,
				CommitmentHash: hash.Hex(),
				UserAddress:    user,
			})
		}(i)
	}
	wg.Wait()

	var accepted, rejected int
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		require.Equal(t, model.ErrCodeCommitmentAlreadyExists, model.CodeOf(err))
		rejected++
	}
	require.Equal(t, 1, accepted)
	require.Equal(t, 1, rejected)

	stored, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.CommitmentCount())
}

func TestCancelBatch(t *testing.T) {
	f := newFixture()
	created := f.createBatch(t)

	f.now = t0.Add(time.Minute)
	resp, err := f.svc.CancelBatch(context.Background(), CancelBatchRequest{
		BatchID: created.ID,
		Reason:  "operator abort",
	})
	require.NoError(t, err)
	require.Equal(t, model.BatchStatusCancelled, resp.Status)

	_, err = f.svc.CancelBatch(context.Background(), CancelBatchRequest{BatchID: created.ID})
	require.Equal(t, model.ErrCodeInvalidBatchStatus, model.CodeOf(err))
}

func TestGetCurrentBatch(t *testing.T) {
	t.Run("falls_back_to_repository", func(t *testing.T) {
		f := newFixture()
		created := f.createBatch(t)
		f.now = t0.Add(time.Minute)
		resp, err := f.svc.GetCurrentBatch(context.Background())
		require.NoError(t, err)
		require.Equal(t, created.ID, resp.ID)
	})

	t.Run("none_active", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.GetCurrentBatch(context.Background())
		require.Equal(t, model.ErrCodeNoActiveBatch, model.CodeOf(err))
	})
}

func TestGetStatistics(t *testing.T) {
	f := newFixture()
	_, err := f.svc.GetStatistics(context.Background(), t0, t0)
	require.Equal(t, model.ErrCodeInvalidArgument, model.CodeOf(err))

	_, err = f.svc.GetStatistics(context.Background(), t0, t0.Add(time.Hour))
	require.NoError(t, err)
}
