package model

import (
	"math/big"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
)

const BatchTopic = "batch"

const (
	EventNameBatchCreated        = "BatchCreated"
	EventNameCommitmentAdded     = "CommitmentAdded"
	EventNameTransactionRevealed = "TransactionRevealed"
	EventNameBatchStatusChanged  = "BatchStatusChanged"
	EventNameBatchFinalized      = "BatchFinalized"
	EventNameBatchCancelled      = "BatchCancelled"
)

// Event is a domain event emitted by the batch aggregate. Downstream
// dispatchers consume events in emission order per aggregate.
type Event interface {
	GetTopic() string
	GetName() string
	GetAggregateID() string
	GetOccurredOn() time.Time
	GetVersion() int
}

// BatchEvent carries the envelope fields shared by every batch event.
type BatchEvent struct {
	AggregateID string
	Name        string
	OccurredOn  time.Time
	Version     int
}

func (e BatchEvent) GetTopic() string         { return BatchTopic }
func (e BatchEvent) GetName() string          { return e.Name }
func (e BatchEvent) GetAggregateID() string   { return e.AggregateID }
func (e BatchEvent) GetOccurredOn() time.Time { return e.OccurredOn }
func (e BatchEvent) GetVersion() int          { return e.Version }

func newBatchEvent(aggregateID, name string, occurredOn time.Time) BatchEvent {
	return BatchEvent{
		AggregateID: aggregateID,
		Name:        name,
		OccurredOn:  occurredOn,
		Version:     1,
	}
}

type BatchCreated struct {
	BatchEvent
	StartTime          time.Time
	EndTime            time.Time
	OrderingMethod     OrderingMethod
	CommitmentPhaseEnd time.Time
	RevealPhaseEnd     time.Time
}

type CommitmentAdded struct {
	BatchEvent
	CommitmentHash ethCommon.Hash
	UserAddress    ethCommon.Address
	Timestamp      time.Time
}

type TransactionRevealed struct {
	BatchEvent
	CommitmentHash ethCommon.Hash
	UserAddress    ethCommon.Address
	RevealedAt     time.Time
}

type BatchStatusChanged struct {
	BatchEvent
	From      BatchStatus
	To        BatchStatus
	ChangedAt time.Time
}

type BatchFinalized struct {
	BatchEvent
	TotalTransactions uint64
	MevExtracted      *big.Int
	SavingsGenerated  *big.Int
	FinalizedAt       time.Time
}

type BatchCancelled struct {
	BatchEvent
	Reason      string
	CancelledAt time.Time
}
