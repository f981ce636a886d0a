package repository

import (
	"context"
	"errors"

	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
	"gorm.io/gorm"
)

// PartnerRepository 外协伙伴仓库
type PartnerRepository struct {
	db *gorm.DB
}

func NewPartnerRepository(db *gorm.DB) *PartnerRepository {
	return &PartnerRepository{db: db}
}

// FindByID 根据ID查找伙伴
func (r *PartnerRepository) FindByID(ctx context.Context, id string) (*entity.Partner, error) {
	var partner entity.Partner
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&partner).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &partner, nil
}

// List 伙伴列表
func (r *PartnerRepository) List(ctx context.Context) ([]entity.Partner, error) {
	var partners []entity.Partner
	err := r.db.WithContext(ctx).
		Order("code ASC").
		Find(&partners).Error
	return partners, err
}

// MapByIDs 按ID批量加载伙伴，WIP视图用于显示名称
func (r *PartnerRepository) MapByIDs(ctx context.Context, ids []string) (map[string]entity.Partner, error) {
	result := make(map[string]entity.Partner, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var partners []entity.Partner
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&partners).Error
	if err != nil {
		return nil, err
	}
	for _, p := range partners {
		result[p.ID] = p
	}
	return result, nil
}

// Create 创建伙伴
func (r *PartnerRepository) Create(ctx context.Context, partner *entity.Partner) error {
	return r.db.WithContext(ctx).Create(partner).Error
}
