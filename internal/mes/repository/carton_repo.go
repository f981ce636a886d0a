package repository

import (
	"context"
	"errors"

	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
	"gorm.io/gorm"
)

// CartonRepository 纸箱仓库
type CartonRepository struct {
	db *gorm.DB
}

func NewCartonRepository(db *gorm.DB) *CartonRepository {
	return &CartonRepository{db: db}
}

// FindByID 根据ID查找纸箱
func (r *CartonRepository) FindByID(ctx context.Context, id string) (*entity.Carton, error) {
	var carton entity.Carton
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&carton).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &carton, nil
}

// NextCartonNo 工单内下一个箱号
func (r *CartonRepository) NextCartonNo(ctx context.Context, woID string) (int, error) {
	var maxNo int
	err := r.db.WithContext(ctx).
		Model(&entity.Carton{}).
		Select("COALESCE(MAX(carton_no), 0)").
		Where("wo_id = ?", woID).
		Scan(&maxNo).Error
	if err != nil {
		return 0, err
	}
	return maxNo + 1, nil
}

// ListByBatch 批次下全部纸箱
func (r *CartonRepository) ListByBatch(ctx context.Context, batchID string) ([]entity.Carton, error) {
	var cartons []entity.Carton
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("carton_no ASC").
		Find(&cartons).Error
	return cartons, err
}

// ListAll 全部纸箱，WIP聚合的输入
func (r *CartonRepository) ListAll(ctx context.Context) ([]entity.Carton, error) {
	var cartons []entity.Carton
	err := r.db.WithContext(ctx).Find(&cartons).Error
	return cartons, err
}

// Create 创建纸箱
func (r *CartonRepository) Create(ctx context.Context, carton *entity.Carton) error {
	return r.db.WithContext(ctx).Create(carton).Error
}

// Update 更新纸箱
func (r *CartonRepository) Update(ctx context.Context, carton *entity.Carton) error {
	return r.db.WithContext(ctx).Save(carton).Error
}
