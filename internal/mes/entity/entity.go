package entity

import "gorm.io/gorm"

// AutoMigrate 自动迁移所有MES表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		// 基础数据
		&WorkOrder{},
		&Instrument{},
		&Partner{},

		// 批次与审计
		&ProductionBatch{},
		&QCRecord{},
		&ProductionLog{},

		// 流转与成品
		&ExternalMove{},
		&Carton{},
	)
}
