package entity

import (
	"time"
)

// ProductionLog 报产记录：批次的产量/不良明细来源，
// 同时是批次间隔判断（gap threshold）的时间依据。
type ProductionLog struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	BatchID     string    `json:"batch_id" gorm:"type:uuid;not null;index"`
	WorkOrderID string    `json:"work_order_id" gorm:"type:uuid;index"`
	Quantity    float64   `json:"quantity" gorm:"type:decimal(12,4);not null"`
	RejectedQty float64   `json:"rejected_qty" gorm:"type:decimal(12,4);default:0"`
	Remarks     string    `json:"remarks" gorm:"type:text"`
	ReportedBy  string    `json:"reported_by" gorm:"size:64;not null"`
	ReportedAt  time.Time `json:"reported_at" gorm:"index"`
	CreatedAt   time.Time `json:"created_at"`
}

func (ProductionLog) TableName() string {
	return "mes_production_logs"
}
