package model

import (
	"math/big"

	"github.com/hermeznetwork/tracerr"
)

// MEVMetrics summarizes the value protected by a finalized batch. Monetary
// fields are wei amounts, counters are plain integers.
type MEVMetrics struct {
	ExtractedValue         *big.Int `json:"extractedValue"`
	SavingsGenerated       *big.Int `json:"savingsGenerated"`
	TotalTransactions      uint64   `json:"totalTransactions"`
	SuccessfulTransactions uint64   `json:"successfulTransactions"`
	AverageGasPrice        *big.Int `json:"averageGasPrice"`
	TotalGasUsed           *big.Int `json:"totalGasUsed"`
}

// NewMEVMetrics validates the non-negativity invariants at construction.
func NewMEVMetrics(extracted, savings, avgGasPrice, totalGasUsed *big.Int, totalTxs, successfulTxs uint64) (*MEVMetrics, error) {
	for _, v := range []*big.Int{extracted, savings, avgGasPrice, totalGasUsed} {
		if v == nil || v.Sign() < 0 {
			return nil, tracerr.Wrap(NewDomainError(ErrCodeValidation, "metrics amounts must be non-negative"))
		}
	}
	if successfulTxs > totalTxs {
		return nil, tracerr.Wrap(NewDomainError(ErrCodeValidation,
			"successfulTransactions (%d) exceeds totalTransactions (%d)", successfulTxs, totalTxs))
	}
	return &MEVMetrics{
		ExtractedValue:         new(big.Int).Set(extracted),
		SavingsGenerated:       new(big.Int).Set(savings),
		TotalTransactions:      totalTxs,
		SuccessfulTransactions: successfulTxs,
		AverageGasPrice:        new(big.Int).Set(avgGasPrice),
		TotalGasUsed:           new(big.Int).Set(totalGasUsed),
	}, nil
}

// Copy returns a deep copy.
func (m *MEVMetrics) Copy() *MEVMetrics {
	if m == nil {
		return nil
	}
	return &MEVMetrics{
		ExtractedValue:         new(big.Int).Set(m.ExtractedValue),
		SavingsGenerated:       new(big.Int).Set(m.SavingsGenerated),
		TotalTransactions:      m.TotalTransactions,
		SuccessfulTransactions: m.SuccessfulTransactions,
		AverageGasPrice:        new(big.Int).Set(m.AverageGasPrice),
		TotalGasUsed:           new(big.Int).Set(m.TotalGasUsed),
	}
}
