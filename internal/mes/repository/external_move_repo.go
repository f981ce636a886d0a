package repository

import (
	"context"
	"errors"

	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
	"gorm.io/gorm"
)

// ExternalMoveRepository 外发流转仓库
type ExternalMoveRepository struct {
	db *gorm.DB
}

func NewExternalMoveRepository(db *gorm.DB) *ExternalMoveRepository {
	return &ExternalMoveRepository{db: db}
}

// FindByID 根据ID查找流转记录
func (r *ExternalMoveRepository) FindByID(ctx context.Context, id string) (*entity.ExternalMove, error) {
	var move entity.ExternalMove
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&move).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &move, nil
}

// FindOpenByBatch 批次当前未关闭的流转记录
func (r *ExternalMoveRepository) FindOpenByBatch(ctx context.Context, batchID string) (*entity.ExternalMove, error) {
	var move entity.ExternalMove
	err := r.db.WithContext(ctx).
		Where("batch_id = ? AND status IN ?", batchID,
			[]string{entity.MoveStatusSent, entity.MoveStatusInTransit, entity.MoveStatusPartial}).
		Order("sent_date DESC").
		First(&move).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &move, nil
}

// ListOpen 全部未关闭的流转记录，WIP聚合的输入
func (r *ExternalMoveRepository) ListOpen(ctx context.Context) ([]entity.ExternalMove, error) {
	var moves []entity.ExternalMove
	err := r.db.WithContext(ctx).
		Where("status IN ?",
			[]string{entity.MoveStatusSent, entity.MoveStatusInTransit, entity.MoveStatusPartial}).
		Find(&moves).Error
	return moves, err
}

// ListByWorkOrder 工单下全部流转记录
func (r *ExternalMoveRepository) ListByWorkOrder(ctx context.Context, workOrderID string) ([]entity.ExternalMove, error) {
	var moves []entity.ExternalMove
	err := r.db.WithContext(ctx).
		Where("work_order_id = ?", workOrderID).
		Order("sent_date ASC").
		Find(&moves).Error
	return moves, err
}

// Create 创建流转记录
func (r *ExternalMoveRepository) Create(ctx context.Context, move *entity.ExternalMove) error {
	return r.db.WithContext(ctx).Create(move).Error
}

// Update 更新流转记录
func (r *ExternalMoveRepository) Update(ctx context.Context, move *entity.ExternalMove) error {
	return r.db.WithContext(ctx).Save(move).Error
}
