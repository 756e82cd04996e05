package model

import (
	"context"
	"math/big"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
)

// BatchRepository abstracts durable batch storage. Implementations must be
// at least read-your-writes consistent for a single batch id.
type BatchRepository interface {
	Save(ctx context.Context, batch *Batch) error
	FindByID(ctx context.Context, id string) (*Batch, error)
	// GetByID behaves like FindByID but fails with BATCH_NOT_FOUND when the
	// batch does not exist.
	GetByID(ctx context.Context, id string) (*Batch, error)
	Delete(ctx context.Context, id string) error

	// GetCurrentActiveBatch returns the non-terminal batch whose
	// [startTime, endTime) window contains now, preferring the latest
	// startTime when several overlap; nil when none is active.
	GetCurrentActiveBatch(ctx context.Context, now time.Time) (*Batch, error)

	FindByStatus(ctx context.Context, status BatchStatus) ([]*Batch, error)
	FindRecent(ctx context.Context, limit int) ([]*Batch, error)
	FindInDateRange(ctx context.Context, from, to time.Time) ([]*Batch, error)
	FindAllPaginated(ctx context.Context, page, limit int, filters BatchFilters) (*Page, error)
	Statistics(ctx context.Context, from, to time.Time) (*BatchStatistics, error)

	Exists(ctx context.Context, id string) (bool, error)
	CountByStatus(ctx context.Context, status BatchStatus) (int64, error)
	FindExpired(ctx context.Context, now time.Time) ([]*Batch, error)
}

// TxReceipt is the outcome of a mirrored on-chain operation.
type TxReceipt struct {
	Hash        ethCommon.Hash `json:"hash"`
	BlockNumber uint64         `json:"blockNumber"`
	GasUsed     uint64         `json:"gasUsed"`
	Status      uint64         `json:"status"`
}

// ChainEvent is a decoded contract log delivered to subscribers.
type ChainEvent struct {
	BlockNumber     uint64                 `json:"blockNumber"`
	TransactionHash ethCommon.Hash         `json:"transactionHash"`
	LogIndex        uint                   `json:"logIndex"`
	Args            map[string]interface{} `json:"args"`
	Event           string                 `json:"event"`
}

// ChainEventHandler consumes contract events.
type ChainEventHandler func(event ChainEvent)

// OnChainBatch is the batch view stored by the protocol contract.
type OnChainBatch struct {
	BatchID       *big.Int
	CommitmentEnd time.Time
	RevealEnd     time.Time
	Finalized     bool
	NumCommits    uint64
	NumReveals    uint64
}

// BlockchainBridge abstracts the on-chain protocol contract. Note the
// contract hashes with keccak256 while the off-chain binding digest is
// SHA-256; the two surfaces are independent.
type BlockchainBridge interface {
	SubmitCommitment(ctx context.Context, batchID string, user ethCommon.Address, commitmentHash ethCommon.Hash) (*TxReceipt, error)
	RevealTransaction(ctx context.Context, batchID string, user ethCommon.Address, encodedTx []byte, nonce string) (*TxReceipt, error)
	CreateNewBatch(ctx context.Context, batchID string, commitmentEnd, revealEnd time.Time) (*TxReceipt, error)
	FinalizeBatch(ctx context.Context, batchID string, ordering []ethCommon.Hash) (*TxReceipt, error)

	GetBatchData(ctx context.Context, batchID string) (*OnChainBatch, error)
	GetCurrentActiveBatchID(ctx context.Context) (*big.Int, error)
	GetCommitmentHash(ctx context.Context, batchID string, user ethCommon.Address) (ethCommon.Hash, error)

	OnCommitmentSubmitted(handler ChainEventHandler)
	OnTransactionRevealed(handler ChainEventHandler)
	OnBatchFinalized(handler ChainEventHandler)
	StartEventListening(ctx context.Context) error
	StopEventListening()
}
