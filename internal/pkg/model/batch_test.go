package model_test

import (
	"math/big"
	"testing"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/mevshield/coordinator/internal/pkg/model"
	"github.com/mevshield/coordinator/internal/pkg/utils"
)

var (
	t0 = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	userAddr  = ethCommon.HexToAddress("0xAAAA00000000000000000000000000000000AAAA")
	otherAddr = ethCommon.HexToAddress("0xCCCC00000000000000000000000000000000CCCC")

	revealNonce = "abcdef1234"
)

func testTxData(t *testing.T) *model.TransactionData {
	t.Helper()
	txData, err := model.NewTransactionData(
		"0xBBBB00000000000000000000000000000000BBBB",
		"1000", nil, 21000, "1000000000", 0,
	)
	require.NoError(t, err)
	return txData
}

func testBatch(t *testing.T) *model.Batch {
	t.Helper()
	batch, err := model.NewBatch(model.BatchParams{
		StartTime:              t0,
		EndTime:                t0.Add(60 * time.Minute),
		OrderingMethod:         model.OrderingCommitReveal,
		CommitmentDurationMins: 30,
		RevealDurationMins:     15,
	}, t0)
	require.NoError(t, err)
	return batch
}

func testCommitment(t *testing.T, hash ethCommon.Hash, addr ethCommon.Address, ts time.Time) model.Commitment {
	t.Helper()
	c, err := model.NewCommitment(hash.Hex(), addr.Hex(), ts, "", ts)
	require.NoError(t, err)
	return *c
}

func TestNewBatch(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		batch := testBatch(t)
		require.NotEmpty(t, batch.ID)
		require.Equal(t, model.BatchStatusCommitmentPhase, batch.Status)
		require.Equal(t, t0.Add(30*time.Minute), batch.CommitmentPhaseEnd)
		require.Equal(t, t0.Add(45*time.Minute), batch.RevealPhaseEnd)
		require.Zero(t, batch.CommitmentCount())

		events := batch.Events()
		require.Len(t, events, 1)
		created, ok := events[0].(model.BatchCreated)
		require.True(t, ok)
		require.Equal(t, model.EventNameBatchCreated, created.GetName())
		require.Equal(t, batch.ID, created.GetAggregateID())
		require.Equal(t, 1, created.GetVersion())
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name   string
			params model.BatchParams
		}{
			{
				name: "end_before_start",
				params: model.BatchParams{
					StartTime:      t0,
					EndTime:        t0.Add(-time.Minute),
					OrderingMethod: model.OrderingCommitReveal,
				},
			},
			{
				name: "start_in_past",
				params: model.BatchParams{
					StartTime:      t0.Add(-time.Minute),
					EndTime:        t0.Add(60 * time.Minute),
					OrderingMethod: model.OrderingCommitReveal,
				},
			},
			{
				name: "phases_exceed_window",
				params: model.BatchParams{
					StartTime:              t0,
					EndTime:                t0.Add(40 * time.Minute),
					OrderingMethod:         model.OrderingCommitReveal,
					CommitmentDurationMins: 30,
					RevealDurationMins:     15,
				},
			},
			{
				name: "unknown_ordering_method",
				params: model.BatchParams{
					StartTime:      t0,
					EndTime:        t0.Add(60 * time.Minute),
					OrderingMethod: "first-come-first-served",
				},
			},
		}

		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				batch, err := model.NewBatch(f.params, t0)
				require.Nil(t, batch)
				require.Equal(t, model.ErrCodeInvalidArgument, model.CodeOf(err))
			})
		}
	})
}

func TestAddCommitment(t *testing.T) {
	txData := testTxData(t)
	hash := utils.CommitmentDigest(txData.CanonicalEncoding(), revealNonce)

	t.Run("valid", func(t *testing.T) {
		batch := testBatch(t)
		now := t0.Add(time.Second)
		err := batch.AddCommitment(testCommitment(t, hash, userAddr, now), now)
		require.NoError(t, err)
		require.Equal(t, 1, batch.CommitmentCount())
		require.Equal(t, now, batch.UpdatedAt)

		stored, ok := batch.CommitmentFor(userAddr)
		require.True(t, ok)
		require.Equal(t, hash, stored.Hash)

		events := batch.Events()
		require.Len(t, events, 2)
		added, ok := events[1].(model.CommitmentAdded)
		require.True(t, ok)
		require.Equal(t, hash, added.CommitmentHash)
		require.Equal(t, userAddr, added.UserAddress)
	})

	t.Run("duplicate_user", func(t *testing.T) {
		batch := testBatch(t)
		now := t0.Add(time.Second)
		require.NoError(t, batch.AddCommitment(testCommitment(t, hash, userAddr, now), now))

		err := batch.AddCommitment(testCommitment(t, hash, userAddr, now), now.Add(time.Second))
		require.Error(t, err)
		require.Equal(t, model.ErrCodeCommitmentAlreadyExists, model.CodeOf(err))
		require.Equal(t, 1, batch.CommitmentCount())
	})

	t.Run("after_commitment_deadline", func(t *testing.T) {
		batch := testBatch(t)
		late := t0.Add(31 * time.Minute)
		err := batch.AddCommitment(testCommitment(t, hash, userAddr, late), late)
		require.EqualError(t, err, "INVALID_BATCH_STATUS: Batch is not in commitment phase")
		require.Zero(t, batch.CommitmentCount())
		require.Len(t, batch.Events(), 1)
	})

	t.Run("wrong_status", func(t *testing.T) {
		batch := testBatch(t)
		require.NoError(t, batch.AdvanceToReveal(t0.Add(30*time.Minute)))
		err := batch.AddCommitment(testCommitment(t, hash, userAddr, t0), t0.Add(time.Second))
		require.Equal(t, model.ErrCodeInvalidBatchStatus, model.CodeOf(err))
	})
}

func TestRevealTransaction(t *testing.T) {
	txData := testTxData(t)
	hash := utils.CommitmentDigest(txData.CanonicalEncoding(), revealNonce)

	committed := func(t *testing.T) *model.Batch {
		batch := testBatch(t)
		now := t0.Add(time.Second)
		require.NoError(t, batch.AddCommitment(testCommitment(t, hash, userAddr, now), now))
		require.NoError(t, batch.AdvanceToReveal(t0.Add(30*time.Minute)))
		return batch
	}

	t.Run("valid", func(t *testing.T) {
		batch := committed(t)
		now := t0.Add(31 * time.Minute)
		err := batch.RevealTransaction(hash, txData, userAddr, revealNonce, now)
		require.NoError(t, err)
		require.Equal(t, 1, batch.RevealedCount())

		reveal, ok := batch.RevealFor(hash)
		require.True(t, ok)
		require.Equal(t, userAddr, reveal.UserAddress)
		require.Equal(t, revealNonce, reveal.Nonce)
		require.Equal(t, now, reveal.RevealedAt)
		require.Equal(t, txData.Value, reveal.TransactionData.Value)

		events := batch.Events()
		revealed, ok := events[len(events)-1].(model.TransactionRevealed)
		require.True(t, ok)
		require.Equal(t, hash, revealed.CommitmentHash)
	})

	t.Run("digest_mismatch", func(t *testing.T) {
		batch := committed(t)
		err := batch.RevealTransaction(hash, txData, userAddr, "wrongwrongw", t0.Add(31*time.Minute))
		require.Error(t, err)
		require.Equal(t, model.ErrCodeTxRevealMismatch, model.CodeOf(err))
		require.Zero(t, batch.RevealedCount())
	})

	t.Run("no_commitment_for_user", func(t *testing.T) {
		batch := committed(t)
		err := batch.RevealTransaction(hash, txData, otherAddr, revealNonce, t0.Add(31*time.Minute))
		require.Equal(t, model.ErrCodeNoMatchingCommitment, model.CodeOf(err))
	})

	t.Run("commitment_hash_mismatch", func(t *testing.T) {
		batch := committed(t)
		bogus := utils.CommitmentDigest([]byte("other"), revealNonce)
		err := batch.RevealTransaction(bogus, txData, userAddr, revealNonce, t0.Add(31*time.Minute))
		require.Equal(t, model.ErrCodeNoMatchingCommitment, model.CodeOf(err))
	})

	t.Run("after_reveal_deadline", func(t *testing.T) {
		batch := committed(t)
		err := batch.RevealTransaction(hash, txData, userAddr, revealNonce, t0.Add(46*time.Minute))
		require.Equal(t, model.ErrCodeRevealPhaseNotActive, model.CodeOf(err))
	})

	t.Run("wrong_status", func(t *testing.T) {
		batch := testBatch(t)
		err := batch.RevealTransaction(hash, txData, userAddr, revealNonce, t0.Add(time.Second))
		require.Equal(t, model.ErrCodeRevealPhaseNotActive, model.CodeOf(err))
	})
}

func TestPhaseTransitions(t *testing.T) {
	t.Run("advance_to_execution_from_commitment", func(t *testing.T) {
		batch := testBatch(t)
		err := batch.AdvanceToExecution(t0.Add(time.Minute))
		require.Error(t, err)

		domainErr, ok := err.(*model.DomainError)
		require.True(t, ok)
		require.Equal(t, model.ErrCodeInvalidBatchStatus, domainErr.Code)
		require.Equal(t, model.BatchStatusRevealPhase, domainErr.Expected)
		require.Equal(t, model.BatchStatusCommitmentPhase, domainErr.Actual)
	})

	t.Run("status_changed_events", func(t *testing.T) {
		batch := testBatch(t)
		require.NoError(t, batch.AdvanceToReveal(t0.Add(30*time.Minute)))
		require.NoError(t, batch.AdvanceToExecution(t0.Add(45*time.Minute)))

		events := batch.Events()
		require.Len(t, events, 3)
		first, ok := events[1].(model.BatchStatusChanged)
		require.True(t, ok)
		require.Equal(t, model.BatchStatusCommitmentPhase, first.From)
		require.Equal(t, model.BatchStatusRevealPhase, first.To)
		second, ok := events[2].(model.BatchStatusChanged)
		require.True(t, ok)
		require.Equal(t, model.BatchStatusRevealPhase, second.From)
		require.Equal(t, model.BatchStatusExecutionPhase, second.To)
	})

	t.Run("cancel_non_terminal", func(t *testing.T) {
		batch := testBatch(t)
		require.NoError(t, batch.Cancel("operator abort", t0.Add(time.Minute)))
		require.Equal(t, model.BatchStatusCancelled, batch.Status)

		err := batch.Cancel("again", t0.Add(2*time.Minute))
		require.Equal(t, model.ErrCodeInvalidBatchStatus, model.CodeOf(err))
	})
}

func TestFinalize(t *testing.T) {
	txData := testTxData(t)
	hash := utils.CommitmentDigest(txData.CanonicalEncoding(), revealNonce)

	executed := func(t *testing.T) *model.Batch {
		batch := testBatch(t)
		now := t0.Add(time.Second)
		require.NoError(t, batch.AddCommitment(testCommitment(t, hash, userAddr, now), now))
		require.NoError(t, batch.AdvanceToReveal(t0.Add(30*time.Minute)))
		require.NoError(t, batch.RevealTransaction(hash, txData, userAddr, revealNonce, t0.Add(31*time.Minute)))
		require.NoError(t, batch.AdvanceToExecution(t0.Add(45*time.Minute)))
		return batch
	}

	metrics := func(t *testing.T) *model.MEVMetrics {
		m, err := model.NewMEVMetrics(big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0), 1, 1)
		require.NoError(t, err)
		return m
	}

	t.Run("happy_path", func(t *testing.T) {
		batch := executed(t)
		now := t0.Add(46 * time.Minute)
		require.NoError(t, batch.Finalize([]ethCommon.Hash{hash}, metrics(t), now))
		require.Equal(t, model.BatchStatusCompleted, batch.Status)
		require.Equal(t, []ethCommon.Hash{hash}, batch.FinalOrdering)
		require.NotNil(t, batch.Metrics)

		names := make([]string, 0)
		for _, e := range batch.Events() {
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
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name     string
			ordering func(*model.Batch) []ethCommon.Hash
		}{
			{
				name:     "missing_reveal",
				ordering: func(*model.Batch) []ethCommon.Hash { return nil },
			},
			{
				name: "unknown_hash",
				ordering: func(*model.Batch) []ethCommon.Hash {
					return []ethCommon.Hash{utils.CommitmentDigest([]byte("unknown"), "n")}
				},
			},
			{
				name: "duplicated_hash",
				ordering: func(*model.Batch) []ethCommon.Hash {
					return []ethCommon.Hash{hash, hash}
				},
			},
		}

		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				batch := executed(t)
				err := batch.Finalize(f.ordering(batch), metrics(t), t0.Add(46*time.Minute))
				require.Equal(t, model.ErrCodeInvalidArgument, model.CodeOf(err))
				require.Equal(t, model.BatchStatusExecutionPhase, batch.Status)
			})
		}
	})

	t.Run("wrong_status", func(t *testing.T) {
		batch := testBatch(t)
		err := batch.Finalize(nil, metrics(t), t0.Add(time.Minute))
		require.Equal(t, model.ErrCodeInvalidBatchStatus, model.CodeOf(err))
	})
}

func TestBatchQueries(t *testing.T) {
	txData := testTxData(t)
	hash := utils.CommitmentDigest(txData.CanonicalEncoding(), revealNonce)

	t.Run("reveal_rate", func(t *testing.T) {
		batch := testBatch(t)
		now := t0.Add(time.Second)
		require.NoError(t, batch.AddCommitment(testCommitment(t, hash, userAddr, now), now))
		otherHash := utils.CommitmentDigest([]byte("other tx"), "zzzzzzzzzz")
		require.NoError(t, batch.AddCommitment(testCommitment(t, otherHash, otherAddr, now), now))
		require.Zero(t, batch.RevealRate())

		require.NoError(t, batch.AdvanceToReveal(t0.Add(30*time.Minute)))
		require.NoError(t, batch.RevealTransaction(hash, txData, userAddr, revealNonce, t0.Add(31*time.Minute)))
		require.Equal(t, 50.0, batch.RevealRate())
		require.LessOrEqual(t, batch.RevealedCount(), batch.CommitmentCount())
	})

	t.Run("phase_predicates_follow_clock", func(t *testing.T) {
		batch := testBatch(t)
		require.True(t, batch.IsInCommitmentPhase(t0.Add(time.Second)))
		require.False(t, batch.IsInCommitmentPhase(t0.Add(30*time.Minute)))
		require.False(t, batch.IsInRevealPhase(t0.Add(31*time.Minute)))

		require.NoError(t, batch.AdvanceToReveal(t0.Add(30*time.Minute)))
		require.True(t, batch.IsInRevealPhase(t0.Add(31*time.Minute)))
		require.False(t, batch.IsInRevealPhase(t0.Add(46*time.Minute)))

		require.False(t, batch.IsExpired(t0.Add(59*time.Minute)))
		require.True(t, batch.IsExpired(t0.Add(61*time.Minute)))
	})

	t.Run("pull_events_drains_buffer", func(t *testing.T) {
		batch := testBatch(t)
		events := batch.PullEvents()
		require.Len(t, events, 1)
		require.Empty(t, batch.Events())
	})
}
