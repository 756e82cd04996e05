package model

import (
	"context"
	"errors"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-redis/redis/v8"
)

// BatchChainKey is the bytes32 key the protocol contract stores a batch
// under: keccak256 of the coordinator batch id.
func BatchChainKey(batchID string) ethCommon.Hash {
	return crypto.Keccak256Hash([]byte(batchID))
}

// IJob is a long-running background worker.
type IJob interface {
	Run(ctx context.Context)
}

// IService is the cache port backed by redis.
type IService interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, src interface{}) error
}

// IsNilErr reports a cache miss.
func IsNilErr(err error) bool {
	return errors.Is(err, redis.Nil)
}

// BatchFilters narrows paginated batch listings. Nil fields are ignored.
type BatchFilters struct {
	Status         *BatchStatus
	OrderingMethod *OrderingMethod
	DateFrom       *time.Time
	DateTo         *time.Time
}

// Page is a paginated result of batch listings.
type Page struct {
	Items []*Batch `json:"items"`
	Total int64    `json:"total"`
	Page  int      `json:"page"`
	Limit int      `json:"limit"`
	Pages int64    `json:"pages"`
}

// BatchStatistics aggregates over batches created inside a time range.
type BatchStatistics struct {
	TotalBatches          int64   `json:"totalBatches"`
	CompletedBatches      int64   `json:"completedBatches"`
	AverageCommitments    float64 `json:"averageCommitments"`
	AverageRevealRate     float64 `json:"averageRevealRate"`
	TotalMevExtracted     string  `json:"totalMevExtracted"`
	TotalSavingsGenerated string  `json:"totalSavingsGenerated"`
}
