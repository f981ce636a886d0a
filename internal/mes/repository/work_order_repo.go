package repository

import (
	"context"
	"errors"

	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
	"gorm.io/gorm"
)

// WorkOrderRepository 工单仓库
type WorkOrderRepository struct {
	db *gorm.DB
}

func NewWorkOrderRepository(db *gorm.DB) *WorkOrderRepository {
	return &WorkOrderRepository{db: db}
}

// FindByID 根据ID查找工单
func (r *WorkOrderRepository) FindByID(ctx context.Context, id string) (*entity.WorkOrder, error) {
	var wo entity.WorkOrder
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&wo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &wo, nil
}

// List 分页工单列表
func (r *WorkOrderRepository) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.WorkOrder, int64, error) {
	var items []entity.WorkOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.WorkOrder{})

	if customer := filters["customer"]; customer != "" {
		query = query.Where("customer ILIKE ?", "%"+customer+"%")
	}
	if itemCode := filters["item_code"]; itemCode != "" {
		query = query.Where("item_code = ?", itemCode)
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

// MapByIDs 按ID批量加载工单，WIP聚合用于逾期判断与显示信息
func (r *WorkOrderRepository) MapByIDs(ctx context.Context, ids []string) (map[string]entity.WorkOrder, error) {
	result := make(map[string]entity.WorkOrder, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var orders []entity.WorkOrder
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	for _, wo := range orders {
		result[wo.ID] = wo
	}
	return result, nil
}

// Create 创建工单
func (r *WorkOrderRepository) Create(ctx context.Context, wo *entity.WorkOrder) error {
	return r.db.WithContext(ctx).Create(wo).Error
}

// Update 更新工单
func (r *WorkOrderRepository) Update(ctx context.Context, wo *entity.WorkOrder) error {
	return r.db.WithContext(ctx).Save(wo).Error
}
