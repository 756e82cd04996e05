package model

import (
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/mevshield/coordinator/internal/pkg/utils"
)

// Batch is the aggregate root of a commit-reveal auction round. It owns its
// commitments, reveals, final ordering, metrics and event buffer; all
// mutation goes through its methods, which assume single-writer semantics
// for their duration.
type Batch struct {
	ID                 string
	StartTime          time.Time
	EndTime            time.Time
	OrderingMethod     OrderingMethod
	CommitmentPhaseEnd time.Time
	RevealPhaseEnd     time.Time
	Status             BatchStatus
	Commitments        map[ethCommon.Address]Commitment
	Reveals            map[ethCommon.Hash]RevealedTransaction
	FinalOrdering      []ethCommon.Hash
	Metrics            *MEVMetrics
	CreatedAt          time.Time
	UpdatedAt          time.Time

	changes []Event
}

// BatchParams are the creation inputs. Zero durations fall back to the
// defaults of 30 and 15 minutes.
type BatchParams struct {
	StartTime              time.Time
	EndTime                time.Time
	OrderingMethod         OrderingMethod
	CommitmentDurationMins uint64
	RevealDurationMins     uint64
}

// NewBatch creates a batch in COMMITMENT_PHASE and emits BatchCreated.
func NewBatch(params BatchParams, now time.Time) (*Batch, error) {
	if !params.OrderingMethod.Valid() {
		return nil, NewDomainError(ErrCodeInvalidArgument, "unknown ordering method: %s", params.OrderingMethod)
	}
	if !params.EndTime.After(params.StartTime) {
		return nil, NewDomainError(ErrCodeInvalidArgument, "endTime must be after startTime")
	}
	if params.StartTime.Before(now) {
		return nil, NewDomainError(ErrCodeInvalidArgument, "startTime cannot be in the past")
	}
	commitmentDuration := time.Duration(params.CommitmentDurationMins) * time.Minute
	if params.CommitmentDurationMins == 0 {
		commitmentDuration = DefaultCommitmentDurationMin * time.Minute
	}
	revealDuration := time.Duration(params.RevealDurationMins) * time.Minute
	if params.RevealDurationMins == 0 {
		revealDuration = DefaultRevealDurationMin * time.Minute
	}
	if params.StartTime.Add(commitmentDuration + revealDuration).After(params.EndTime) {
		return nil, NewDomainError(ErrCodeInvalidArgument,
			"commitment and reveal phases do not fit between startTime and endTime")
	}

	b := &Batch{
		ID:                 uuid.New().String(),
		StartTime:          params.StartTime,
		EndTime:            params.EndTime,
		OrderingMethod:     params.OrderingMethod,
		CommitmentPhaseEnd: params.StartTime.Add(commitmentDuration),
		RevealPhaseEnd:     params.StartTime.Add(commitmentDuration + revealDuration),
		Status:             BatchStatusCommitmentPhase,
		Commitments:        make(map[ethCommon.Address]Commitment),
		Reveals:            make(map[ethCommon.Hash]RevealedTransaction),
		CreatedAt:          now,
		UpdatedAt:          now,
		changes:            make([]Event, 0),
	}
	b.raise(BatchCreated{
		BatchEvent:         newBatchEvent(b.ID, EventNameBatchCreated, now),
		StartTime:          b.StartTime,
		EndTime:            b.EndTime,
		OrderingMethod:     b.OrderingMethod,
		CommitmentPhaseEnd: b.CommitmentPhaseEnd,
		RevealPhaseEnd:     b.RevealPhaseEnd,
	})
	return b, nil
}

// AddCommitment records a commitment while the commitment window is open.
// A user may commit at most once per batch; the second attempt is rejected
// so the first commitment stays binding.
func (b *Batch) AddCommitment(commitment Commitment, now time.Time) error {
	if !b.IsInCommitmentPhase(now) {
		return NewDomainError(ErrCodeInvalidBatchStatus, "Batch is not in commitment phase")
	}
	if _, exists := b.Commitments[commitment.UserAddress]; exists {
		return NewDomainError(ErrCodeCommitmentAlreadyExists,
			"commitment already exists for user %s", commitment.UserAddress.Hex())
	}

	b.Commitments[commitment.UserAddress] = commitment
	b.UpdatedAt = now
	b.raise(CommitmentAdded{
		BatchEvent:     newBatchEvent(b.ID, EventNameCommitmentAdded, now),
		CommitmentHash: commitment.Hash,
		UserAddress:    commitment.UserAddress,
		Timestamp:      commitment.Timestamp,
	})
	return nil
}

// RevealTransaction verifies the binding between a revealed payload and the
// stored commitment, then records the reveal keyed by commitment hash.
func (b *Batch) RevealTransaction(
	commitmentHash ethCommon.Hash, txData *TransactionData,
	userAddress ethCommon.Address, nonce string, now time.Time,
) error {
	if !b.IsInRevealPhase(now) {
		return NewDomainError(ErrCodeRevealPhaseNotActive, "reveal phase is not active")
	}
	commitment, ok := b.Commitments[userAddress]
	if !ok || commitment.Hash != commitmentHash {
		return NewDomainError(ErrCodeNoMatchingCommitment,
			"no matching commitment for user %s", userAddress.Hex())
	}
	digest := utils.CommitmentDigest(txData.CanonicalEncoding(), nonce)
	if digest != commitmentHash {
		return NewDomainError(ErrCodeTxRevealMismatch,
			"revealed transaction does not match commitment %s", commitmentHash.Hex())
	}

	b.Reveals[commitmentHash] = RevealedTransaction{
		CommitmentHash:  commitmentHash,
		TransactionData: txData.Copy(),
		UserAddress:     userAddress,
		RevealedAt:      now,
		Nonce:           nonce,
	}
	b.UpdatedAt = now
	b.raise(TransactionRevealed{
		BatchEvent:     newBatchEvent(b.ID, EventNameTransactionRevealed, now),
		CommitmentHash: commitmentHash,
		UserAddress:    userAddress,
		RevealedAt:     now,
	})
	return nil
}

// AdvanceToReveal moves COMMITMENT_PHASE -> REVEAL_PHASE.
func (b *Batch) AdvanceToReveal(now time.Time) error {
	return b.transition(BatchStatusCommitmentPhase, BatchStatusRevealPhase, now)
}

// AdvanceToExecution moves REVEAL_PHASE -> EXECUTION_PHASE.
func (b *Batch) AdvanceToExecution(now time.Time) error {
	return b.transition(BatchStatusRevealPhase, BatchStatusExecutionPhase, now)
}

func (b *Batch) transition(expected, next BatchStatus, now time.Time) error {
	if b.Status != expected {
		return NewInvalidStatusError(expected, b.Status)
	}
	from := b.Status
	b.Status = next
	b.UpdatedAt = now
	b.raise(BatchStatusChanged{
		BatchEvent: newBatchEvent(b.ID, EventNameBatchStatusChanged, now),
		From:       from,
		To:         next,
		ChangedAt:  now,
	})
	return nil
}

// Finalize completes the batch with an externally supplied ordering. The
// ordering must be a strict permutation of the revealed commitment hashes.
func (b *Batch) Finalize(ordering []ethCommon.Hash, metrics *MEVMetrics, now time.Time) error {
	if b.Status != BatchStatusExecutionPhase {
		return NewInvalidStatusError(BatchStatusExecutionPhase, b.Status)
	}
	if len(ordering) != len(b.Reveals) {
		return NewDomainError(ErrCodeInvalidArgument,
			"ordering has %d entries, expected %d", len(ordering), len(b.Reveals))
	}
	seen := make(map[ethCommon.Hash]struct{}, len(ordering))
	for _, h := range ordering {
		if _, ok := b.Reveals[h]; !ok {
			return NewDomainError(ErrCodeInvalidArgument,
				"ordering references unknown commitment %s", h.Hex())
		}
		if _, dup := seen[h]; dup {
			return NewDomainError(ErrCodeInvalidArgument,
				"ordering repeats commitment %s", h.Hex())
		}
		seen[h] = struct{}{}
	}
	if metrics == nil {
		return NewDomainError(ErrCodeInvalidArgument, "missing batch metrics")
	}

	b.FinalOrdering = append([]ethCommon.Hash{}, ordering...)
	b.Metrics = metrics.Copy()
	b.Status = BatchStatusCompleted
	b.UpdatedAt = now
	b.raise(BatchFinalized{
		BatchEvent:        newBatchEvent(b.ID, EventNameBatchFinalized, now),
		TotalTransactions: metrics.TotalTransactions,
		MevExtracted:      metrics.ExtractedValue,
		SavingsGenerated:  metrics.SavingsGenerated,
		FinalizedAt:       now,
	})
	return nil
}

// Cancel terminates a non-terminal batch administratively.
func (b *Batch) Cancel(reason string, now time.Time) error {
	if b.Status.IsTerminal() {
		return NewDomainError(ErrCodeInvalidBatchStatus, "batch %s is already %s", b.ID, b.Status)
	}
	b.Status = BatchStatusCancelled
	b.UpdatedAt = now
	b.raise(BatchCancelled{
		BatchEvent:  newBatchEvent(b.ID, EventNameBatchCancelled, now),
		Reason:      reason,
		CancelledAt: now,
	})
	return nil
}

// CommitmentCount returns the number of recorded commitments.
func (b *Batch) CommitmentCount() int { return len(b.Commitments) }

// RevealedCount returns the number of recorded reveals.
func (b *Batch) RevealedCount() int { return len(b.Reveals) }

// RevealRate is the percentage of commitments that were revealed, 0 when the
// batch holds no commitments.
func (b *Batch) RevealRate() float64 {
	if len(b.Commitments) == 0 {
		return 0
	}
	return float64(len(b.Reveals)) / float64(len(b.Commitments)) * 100
}

// IsInCommitmentPhase combines the recorded status with the clock: a batch
// recorded in COMMITMENT_PHASE past its deadline no longer accepts
// commitments even before the ticker advances it.
func (b *Batch) IsInCommitmentPhase(now time.Time) bool {
	return b.Status == BatchStatusCommitmentPhase && now.Before(b.CommitmentPhaseEnd)
}

// IsInRevealPhase reports whether reveals are currently accepted.
func (b *Batch) IsInRevealPhase(now time.Time) bool {
	return b.Status == BatchStatusRevealPhase && now.Before(b.RevealPhaseEnd)
}

// IsExpired reports whether the batch window has closed.
func (b *Batch) IsExpired(now time.Time) bool {
	return now.After(b.EndTime)
}

// CommitmentFor returns a copy of the commitment recorded for addr.
func (b *Batch) CommitmentFor(addr ethCommon.Address) (Commitment, bool) {
	c, ok := b.Commitments[addr]
	return c, ok
}

// RevealFor returns a copy of the reveal recorded under hash.
func (b *Batch) RevealFor(hash ethCommon.Hash) (RevealedTransaction, bool) {
	r, ok := b.Reveals[hash]
	if !ok {
		return RevealedTransaction{}, false
	}
	return *r.Copy(), true
}

// Events returns the emitted events in emission order.
func (b *Batch) Events() []Event {
	return append([]Event{}, b.changes...)
}

// PullEvents drains the event buffer, returning the pending events.
func (b *Batch) PullEvents() []Event {
	events := b.changes
	b.changes = nil
	return events
}

func (b *Batch) raise(event Event) {
	if b.changes == nil {
		b.changes = make([]Event, 0)
	}
	b.changes = append(b.changes, event)
}
