package entity

import (
	"time"
)

// WorkOrder 工单：计划容器，只读为主。
// 工单本身绝不是工序/数量的事实来源，进度一律由批次和流转记录重算。
type WorkOrder struct {
	ID               string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	WOCode           string     `json:"wo_code" gorm:"size:50;not null;uniqueIndex"`
	Customer         string     `json:"customer" gorm:"size:128"`
	ItemCode         string     `json:"item_code" gorm:"size:64;index"`
	ItemName         string     `json:"item_name" gorm:"size:128"`
	Quantity         float64    `json:"quantity" gorm:"type:decimal(12,4);not null"`
	DueDate          *time.Time `json:"due_date"`
	GrossWeightPerPc float64    `json:"gross_weight_per_pc" gorm:"type:decimal(10,4);default:0"`
	Notes            string     `json:"notes" gorm:"type:text"`
	CreatedBy        string     `json:"created_by" gorm:"size:64"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	Batches []ProductionBatch `json:"batches,omitempty" gorm:"foreignKey:WorkOrderID"`
}

func (WorkOrder) TableName() string {
	return "mes_work_orders"
}

// Overdue 工单是否已逾期
func (w *WorkOrder) Overdue(now time.Time) bool {
	return w.DueDate != nil && w.DueDate.Before(now)
}
