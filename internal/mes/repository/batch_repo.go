package repository

import (
	"context"
	"errors"

	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
	"gorm.io/gorm"
)

// BatchRepository 批次仓库
type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// FindByID 根据ID查找批次
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*entity.ProductionBatch, error) {
	var batch entity.ProductionBatch
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// FindLatestByWorkOrder 查找工单下批次号最大的批次，无批次时返回 ErrNotFound
func (r *BatchRepository) FindLatestByWorkOrder(ctx context.Context, workOrderID string) (*entity.ProductionBatch, error) {
	var batch entity.ProductionBatch
	err := r.db.WithContext(ctx).
		Where("work_order_id = ?", workOrderID).
		Order("batch_number DESC").
		First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// NextBatchNumber 工单内下一个批次号（从1开始单调递增）
func (r *BatchRepository) NextBatchNumber(ctx context.Context, workOrderID string) (int, error) {
	var maxNo int
	err := r.db.WithContext(ctx).
		Model(&entity.ProductionBatch{}).
		Select("COALESCE(MAX(batch_number), 0)").
		Where("work_order_id = ?", workOrderID).
		Scan(&maxNo).Error
	if err != nil {
		return 0, err
	}
	return maxNo + 1, nil
}

// ListByWorkOrder 工单下全部批次，按批次号排序
func (r *BatchRepository) ListByWorkOrder(ctx context.Context, workOrderID string) ([]entity.ProductionBatch, error) {
	var batches []entity.ProductionBatch
	err := r.db.WithContext(ctx).
		Where("work_order_id = ?", workOrderID).
		Order("batch_number ASC").
		Find(&batches).Error
	return batches, err
}

// ListActive 全部活跃批次（ended_at 为空），WIP聚合的输入
func (r *BatchRepository) ListActive(ctx context.Context) ([]entity.ProductionBatch, error) {
	var batches []entity.ProductionBatch
	err := r.db.WithContext(ctx).
		Where("ended_at IS NULL").
		Find(&batches).Error
	return batches, err
}

// List 分页批次列表
func (r *BatchRepository) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ProductionBatch, int64, error) {
	var items []entity.ProductionBatch
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ProductionBatch{})

	if workOrderID := filters["work_order_id"]; workOrderID != "" {
		query = query.Where("work_order_id = ?", workOrderID)
	}
	if stage := filters["stage_type"]; stage != "" {
		query = query.Where("stage_type = ?", stage)
	}
	if status := filters["batch_status"]; status != "" {
		query = query.Where("batch_status = ?", status)
	}
	if active := filters["active"]; active == "true" {
		query = query.Where("ended_at IS NULL")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// Create 创建批次
func (r *BatchRepository) Create(ctx context.Context, batch *entity.ProductionBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

// Update 带乐观锁的批次更新：版本号不匹配时拒绝写入并返回 ErrVersionConflict。
// 成功后内存中的版本号已递增。
func (r *BatchRepository) Update(ctx context.Context, batch *entity.ProductionBatch) error {
	prev := batch.Version
	batch.Version = prev + 1

	res := r.db.WithContext(ctx).
		Model(batch).
		Where("version = ?", prev).
		Select("*").
		Omit("id", "created_at").
		Updates(batch)
	if res.Error != nil {
		batch.Version = prev
		return res.Error
	}
	if res.RowsAffected == 0 {
		batch.Version = prev
		return ErrVersionConflict
	}
	return nil
}
