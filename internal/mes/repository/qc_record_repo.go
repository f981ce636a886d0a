package repository

import (
	"context"

	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
	"gorm.io/gorm"
)

// QCRecordRepository 质检记录仓库。记录只追加，不提供更新接口。
type QCRecordRepository struct {
	db *gorm.DB
}

func NewQCRecordRepository(db *gorm.DB) *QCRecordRepository {
	return &QCRecordRepository{db: db}
}

// Create 追加质检记录
func (r *QCRecordRepository) Create(ctx context.Context, record *entity.QCRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// ListByBatch 批次的质检历史，按创建时间排序
func (r *QCRecordRepository) ListByBatch(ctx context.Context, batchID string) ([]entity.QCRecord, error) {
	var records []entity.QCRecord
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}

// ListByWorkOrder 工单的质检历史（含遗留的工单级记录）
func (r *QCRecordRepository) ListByWorkOrder(ctx context.Context, workOrderID string) ([]entity.QCRecord, error) {
	var records []entity.QCRecord
	err := r.db.WithContext(ctx).
		Where("work_order_id = ?", workOrderID).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}
