package repository

import (
	"context"
	"errors"
	"time"

	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
	"gorm.io/gorm"
)

// ProductionLogRepository 报产记录仓库
type ProductionLogRepository struct {
	db *gorm.DB
}

func NewProductionLogRepository(db *gorm.DB) *ProductionLogRepository {
	return &ProductionLogRepository{db: db}
}

// Create 追加报产记录
func (r *ProductionLogRepository) Create(ctx context.Context, log *entity.ProductionLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// ListByBatch 批次的报产历史
func (r *ProductionLogRepository) ListByBatch(ctx context.Context, batchID string) ([]entity.ProductionLog, error) {
	var logs []entity.ProductionLog
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("reported_at ASC").
		Find(&logs).Error
	return logs, err
}

// LastReportedAt 批次最近一次报产时间，无报产记录时返回 nil
func (r *ProductionLogRepository) LastReportedAt(ctx context.Context, batchID string) (*time.Time, error) {
	var log entity.ProductionLog
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("reported_at DESC").
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &log.ReportedAt, nil
}
