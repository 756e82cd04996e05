package batchdb

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mevshield/coordinator/internal/pkg/model"
)

const tableName = "batches"

// jsonColumn stores a marshalled aggregate sub-object in a json column.
type jsonColumn []byte

func (jsonColumn) GormDataType() string { return model.GormDataTypeJSON }

func (j jsonColumn) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

func (j *jsonColumn) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = []byte(v)
	default:
		return fmt.Errorf("unsupported json column source %T", src)
	}
	return nil
}

// BatchRecord is the table row of a batch. The commitment and reveal maps
// travel as json payloads; the counters and wei totals are denormalized so
// Statistics can aggregate in SQL without unpacking the payloads.
type BatchRecord struct {
	ID                 string    `gorm:"column:id;primaryKey"`
	Status             string    `gorm:"column:status;index"`
	OrderingMethod     string    `gorm:"column:ordering_method"`
	StartTime          time.Time `gorm:"column:start_time;index"`
	EndTime            time.Time `gorm:"column:end_time"`
	CommitmentPhaseEnd time.Time `gorm:"column:commitment_phase_end"`
	RevealPhaseEnd     time.Time `gorm:"column:reveal_phase_end"`

	Commitments   jsonColumn `gorm:"column:commitments"`
	Reveals       jsonColumn `gorm:"column:reveals"`
	FinalOrdering jsonColumn `gorm:"column:final_ordering"`
	Metrics       jsonColumn `gorm:"column:metrics"`

	CommitmentCount  int    `gorm:"column:commitment_count"`
	RevealedCount    int    `gorm:"column:revealed_count"`
	MevExtracted     string `gorm:"column:mev_extracted;type:numeric"`
	SavingsGenerated string `gorm:"column:savings_generated;type:numeric"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (BatchRecord) TableName() string { return tableName }

// BatchDB implements model.BatchRepository on gorm.
type BatchDB struct {
	db *gorm.DB
}

func NewBatchDB(db *gorm.DB) *BatchDB {
	return &BatchDB{db: db}
}

// Migrate creates or updates the batches table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&BatchRecord{}); err != nil {
		return tracerr.Wrap(model.NewInfraError(model.ErrCodeDatabase, err, "failed to migrate %s", tableName))
	}
	return nil
}

func toRecord(b *model.Batch) (*BatchRecord, error) {
	commitments, err := json.Marshal(b.Commitments)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	reveals, err := json.Marshal(b.Reveals)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	var ordering jsonColumn
	if len(b.FinalOrdering) > 0 {
		ordering, err = json.Marshal(b.FinalOrdering)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
	}
	var metrics jsonColumn
	mevExtracted, savings := "0", "0"
	if b.Metrics != nil {
		metrics, err = json.Marshal(b.Metrics)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		mevExtracted = b.Metrics.ExtractedValue.String()
		savings = b.Metrics.SavingsGenerated.String()
	}
	return &BatchRecord{
		ID:                 b.ID,
		Status:             string(b.Status),
		OrderingMethod:     string(b.OrderingMethod),
		StartTime:          b.StartTime,
		EndTime:            b.EndTime,
		CommitmentPhaseEnd: b.CommitmentPhaseEnd,
		RevealPhaseEnd:     b.RevealPhaseEnd,
		Commitments:        commitments,
		Reveals:            reveals,
		FinalOrdering:      ordering,
		Metrics:            metrics,
		CommitmentCount:    b.CommitmentCount(),
		RevealedCount:      b.RevealedCount(),
		MevExtracted:       mevExtracted,
		SavingsGenerated:   savings,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}, nil
}

func toBatch(r *BatchRecord) (*model.Batch, error) {
	b := &model.Batch{
		ID:                 r.ID,
		Status:             model.BatchStatus(r.Status),
		OrderingMethod:     model.OrderingMethod(r.OrderingMethod),
		StartTime:          r.StartTime,
		EndTime:            r.EndTime,
		CommitmentPhaseEnd: r.CommitmentPhaseEnd,
		RevealPhaseEnd:     r.RevealPhaseEnd,
		Commitments:        make(map[ethCommon.Address]model.Commitment),
		Reveals:            make(map[ethCommon.Hash]model.RevealedTransaction),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if len(r.Commitments) > 0 {
		if err := json.Unmarshal(r.Commitments, &b.Commitments); err != nil {
			return nil, tracerr.Wrap(err)
		}
	}
	if len(r.Reveals) > 0 {
		if err := json.Unmarshal(r.Reveals, &b.Reveals); err != nil {
			return nil, tracerr.Wrap(err)
		}
	}
	if len(r.FinalOrdering) > 0 {
		if err := json.Unmarshal(r.FinalOrdering, &b.FinalOrdering); err != nil {
			return nil, tracerr.Wrap(err)
		}
	}
	if len(r.Metrics) > 0 {
		b.Metrics = &model.MEVMetrics{}
		if err := json.Unmarshal(r.Metrics, b.Metrics); err != nil {
			return nil, tracerr.Wrap(err)
		}
	}
	return b, nil
}

func toBatches(records []*BatchRecord) ([]*model.Batch, error) {
	batches := make([]*model.Batch, 0, len(records))
	for _, r := range records {
		b, err := toBatch(r)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func dbErr(err error, format string, args ...interface{}) error {
	return tracerr.Wrap(model.NewInfraError(model.ErrCodeDatabase, err, format, args...))
}

// Save upserts the batch row keyed by id.
func (s *BatchDB) Save(ctx context.Context, batch *model.Batch) error {
	record, err := toRecord(batch)
	if err != nil {
		return dbErr(err, "failed to encode batch %s", batch.ID)
	}
	query := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	})
	if err := query.Create(record).Error; err != nil {
		return dbErr(err, "failed to save batch %s", batch.ID)
	}
	return nil
}

// FindByID returns nil without error when the batch does not exist.
func (s *BatchDB) FindByID(ctx context.Context, id string) (*model.Batch, error) {
	var record BatchRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err, "failed to query batch %s", id)
	}
	return toBatch(&record)
}

// GetByID behaves like FindByID but fails with BATCH_NOT_FOUND on a miss.
func (s *BatchDB) GetByID(ctx context.Context, id string) (*model.Batch, error) {
	batch, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, model.NewDomainError(model.ErrCodeBatchNotFound, "batch %s not found", id)
	}
	return batch, nil
}

func (s *BatchDB) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&BatchRecord{}).Error; err != nil {
		return dbErr(err, "failed to delete batch %s", id)
	}
	return nil
}

// GetCurrentActiveBatch returns the non-terminal batch whose window contains
// now, preferring the latest start when several overlap.
func (s *BatchDB) GetCurrentActiveBatch(ctx context.Context, now time.Time) (*model.Batch, error) {
	var record BatchRecord
	err := s.db.WithContext(ctx).
		Where("status NOT IN ?", terminalStatuses()).
		Where("start_time <= ? AND end_time > ?", now, now).
		Order("start_time DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err, "failed to query active batch")
	}
	return toBatch(&record)
}

func (s *BatchDB) FindByStatus(ctx context.Context, status model.BatchStatus) ([]*model.Batch, error) {
	var records []*BatchRecord
	err := s.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("start_time DESC").
		Find(&records).Error
	if err != nil {
		return nil, dbErr(err, "failed to query batches with status %s", status)
	}
	return toBatches(records)
}

func (s *BatchDB) FindRecent(ctx context.Context, limit int) ([]*model.Batch, error) {
	var records []*BatchRecord
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, dbErr(err, "failed to query recent batches")
	}
	return toBatches(records)
}

func (s *BatchDB) FindInDateRange(ctx context.Context, from, to time.Time) ([]*model.Batch, error) {
	var records []*BatchRecord
	err := s.db.WithContext(ctx).
		Where("start_time >= ? AND start_time < ?", from, to).
		Order("start_time ASC").
		Find(&records).Error
	if err != nil {
		return nil, dbErr(err, "failed to query batches in range")
	}
	return toBatches(records)
}

// FindAllPaginated lists batches newest first. Page numbering starts at 1.
func (s *BatchDB) FindAllPaginated(ctx context.Context, page, limit int, filters model.BatchFilters) (*model.Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	query := s.db.WithContext(ctx).Model(&BatchRecord{})
	if filters.Status != nil {
		query = query.Where("status = ?", string(*filters.Status))
	}
	if filters.OrderingMethod != nil {
		query = query.Where("ordering_method = ?", string(*filters.OrderingMethod))
	}
	if filters.DateFrom != nil {
		query = query.Where("start_time >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("start_time < ?", *filters.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, dbErr(err, "failed to count batches")
	}

	var records []*BatchRecord
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, dbErr(err, "failed to query batch page %d", page)
	}
	items, err := toBatches(records)
	if err != nil {
		return nil, err
	}
	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}
	return &model.Page{
		Items: items,
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: pages,
	}, nil
}

// Statistics aggregates over batches created in [from, to).
func (s *BatchDB) Statistics(ctx context.Context, from, to time.Time) (*model.BatchStatistics, error) {
	var row struct {
		TotalBatches       int64
		CompletedBatches   int64
		AverageCommitments float64
		AverageRevealRate  float64
		TotalMev           string
		TotalSavings       string
	}
	err := s.db.WithContext(ctx).Model(&BatchRecord{}).
		Select(`count(*) as total_batches,
			coalesce(sum(case when status = ? then 1 else 0 end), 0) as completed_batches,
			coalesce(avg(commitment_count), 0) as average_commitments,
			coalesce(avg(case when commitment_count > 0 then revealed_count * 100.0 / commitment_count else 0 end), 0) as average_reveal_rate,
			coalesce(sum(mev_extracted), 0) as total_mev,
			coalesce(sum(savings_generated), 0) as total_savings`,
			string(model.BatchStatusCompleted)).
		Where("created_at >= ? AND created_at < ?", from, to).
		Scan(&row).Error
	if err != nil {
		return nil, dbErr(err, "failed to aggregate batch statistics")
	}
	return &model.BatchStatistics{
		TotalBatches:          row.TotalBatches,
		CompletedBatches:      row.CompletedBatches,
		AverageCommitments:    row.AverageCommitments,
		AverageRevealRate:     row.AverageRevealRate,
		TotalMevExtracted:     row.TotalMev,
		TotalSavingsGenerated: row.TotalSavings,
	}, nil
}

func (s *BatchDB) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&BatchRecord{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, dbErr(err, "failed to check batch %s", id)
	}
	return count > 0, nil
}

func (s *BatchDB) CountByStatus(ctx context.Context, status model.BatchStatus) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&BatchRecord{}).
		Where("status = ?", string(status)).
		Count(&count).Error
	if err != nil {
		return 0, dbErr(err, "failed to count batches with status %s", status)
	}
	return count, nil
}

// FindExpired returns non-terminal batches whose window has closed.
func (s *BatchDB) FindExpired(ctx context.Context, now time.Time) ([]*model.Batch, error) {
	var records []*BatchRecord
	err := s.db.WithContext(ctx).
		Where("status NOT IN ?", terminalStatuses()).
		Where("end_time < ?", now).
		Order("end_time ASC").
		Find(&records).Error
	if err != nil {
		return nil, dbErr(err, "failed to query expired batches")
	}
	return toBatches(records)
}

func terminalStatuses() []string {
	return []string{string(model.BatchStatusCompleted), string(model.BatchStatusCancelled)}
}
