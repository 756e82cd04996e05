package model

import "time"

// BatchResponse is the read-model view of a batch returned by the API.
type BatchResponse struct {
	ID                 string         `json:"id"`
	Status             BatchStatus    `json:"status"`
	OrderingMethod     OrderingMethod `json:"orderingMethod"`
	StartTime          time.Time      `json:"startTime"`
	EndTime            time.Time      `json:"endTime"`
	CommitmentPhaseEnd time.Time      `json:"commitmentPhaseEnd"`
	RevealPhaseEnd     time.Time      `json:"revealPhaseEnd"`
	CommitmentCount    int            `json:"commitmentCount"`
	RevealedCount      int            `json:"revealedCount"`
	RevealRate         float64        `json:"revealRate"`
	FinalOrdering      []string       `json:"finalOrdering,omitempty"`
	Metrics            *MEVMetrics    `json:"metrics,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// NewBatchResponse projects an aggregate into its API view.
func NewBatchResponse(b *Batch) *BatchResponse {
	ordering := make([]string, 0, len(b.FinalOrdering))
	for _, h := range b.FinalOrdering {
		ordering = append(ordering, h.Hex())
	}
	return &BatchResponse{
		ID:                 b.ID,
		Status:             b.Status,
		OrderingMethod:     b.OrderingMethod,
		StartTime:          b.StartTime,
		EndTime:            b.EndTime,
		CommitmentPhaseEnd: b.CommitmentPhaseEnd,
		RevealPhaseEnd:     b.RevealPhaseEnd,
		CommitmentCount:    b.CommitmentCount(),
		RevealedCount:      b.RevealedCount(),
		RevealRate:         b.RevealRate(),
		FinalOrdering:      ordering,
		Metrics:            b.Metrics.Copy(),
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}
