package coordinator

import (
	"time"

	"github.com/mevshield/coordinator/internal/pkg/model"
)

// CreateBatchRequest opens a new auction round. Durations of zero fall back
// to the configured defaults.
type CreateBatchRequest struct {
	StartTime              time.Time            `json:"startTime"`
	EndTime                time.Time            `json:"endTime"`
	OrderingMethod         model.OrderingMethod `json:"orderingMethod"`
	CommitmentDurationMins uint64               `json:"commitmentDurationMins"`
	RevealDurationMins     uint64               `json:"revealDurationMins"`
}

// SubmitCommitmentRequest records a commitment. An empty BatchID targets the
// currently active batch.
type SubmitCommitmentRequest struct {
	BatchID        string `json:"batchId"`
	CommitmentHash string `json:"commitmentHash"`
	UserAddress    string `json:"userAddress"`
	Nonce          string `json:"nonce"`
}

// TransactionPayload is the wire form of a revealed transaction.
type TransactionPayload struct {
	To       string `json:"to"`
	Value    string `json:"value"`
	Data     []byte `json:"data"`
	GasLimit uint64 `json:"gasLimit"`
	GasPrice string `json:"gasPrice"`
	Nonce    uint64 `json:"nonce"`
}

// RevealTransactionRequest opens a commitment. An empty BatchID targets the
// currently active batch.
type RevealTransactionRequest struct {
	BatchID        string             `json:"batchId"`
	CommitmentHash string             `json:"commitmentHash"`
	UserAddress    string             `json:"userAddress"`
	Transaction    TransactionPayload `json:"transaction"`
	Nonce          string             `json:"nonce"`
}

// MetricsPayload is the wire form of finalization metrics. Monetary fields
// are decimal wei strings.
type MetricsPayload struct {
	ExtractedValue         string `json:"extractedValue"`
	SavingsGenerated       string `json:"savingsGenerated"`
	TotalTransactions      uint64 `json:"totalTransactions"`
	SuccessfulTransactions uint64 `json:"successfulTransactions"`
	AverageGasPrice        string `json:"averageGasPrice"`
	TotalGasUsed           string `json:"totalGasUsed"`
}

// FinalizeBatchRequest completes an executed batch with the final ordering.
type FinalizeBatchRequest struct {
	BatchID  string         `json:"batchId"`
	Ordering []string       `json:"ordering"`
	Metrics  MetricsPayload `json:"metrics"`
}

// CancelBatchRequest terminates a non-terminal batch.
type CancelBatchRequest struct {
	BatchID string `json:"batchId"`
	Reason  string `json:"reason"`
}
