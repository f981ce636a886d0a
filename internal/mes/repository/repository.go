package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict 乐观锁冲突：并发写入者的版本号已过期
	ErrVersionConflict = errors.New("version conflict")
)

// Repositories MES仓库集合
type Repositories struct {
	WorkOrder     *WorkOrderRepository
	Batch         *BatchRepository
	QCRecord      *QCRecordRepository
	ProductionLog *ProductionLogRepository
	ExternalMove  *ExternalMoveRepository
	Carton        *CartonRepository
	Instrument    *InstrumentRepository
	Partner       *PartnerRepository
}

// NewRepositories 创建MES仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		WorkOrder:     NewWorkOrderRepository(db),
		Batch:         NewBatchRepository(db),
		QCRecord:      NewQCRecordRepository(db),
		ProductionLog: NewProductionLogRepository(db),
		ExternalMove:  NewExternalMoveRepository(db),
		Carton:        NewCartonRepository(db),
		Instrument:    NewInstrumentRepository(db),
		Partner:       NewPartnerRepository(db),
	}
}
