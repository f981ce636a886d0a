package repository

import (
	"context"
	"errors"

	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
	"gorm.io/gorm"
)

// InstrumentRepository 量具仓库
type InstrumentRepository struct {
	db *gorm.DB
}

func NewInstrumentRepository(db *gorm.DB) *InstrumentRepository {
	return &InstrumentRepository{db: db}
}

// FindByID 根据ID查找量具
func (r *InstrumentRepository) FindByID(ctx context.Context, id string) (*entity.Instrument, error) {
	var instrument entity.Instrument
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&instrument).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &instrument, nil
}

// List 量具列表
func (r *InstrumentRepository) List(ctx context.Context) ([]entity.Instrument, error) {
	var instruments []entity.Instrument
	err := r.db.WithContext(ctx).
		Order("code ASC").
		Find(&instruments).Error
	return instruments, err
}

// Create 创建量具
func (r *InstrumentRepository) Create(ctx context.Context, instrument *entity.Instrument) error {
	return r.db.WithContext(ctx).Create(instrument).Error
}

// Update 更新量具
func (r *InstrumentRepository) Update(ctx context.Context, instrument *entity.Instrument) error {
	return r.db.WithContext(ctx).Save(instrument).Error
}
