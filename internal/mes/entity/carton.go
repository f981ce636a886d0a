package entity

import (
	"time"
)

// CartonStatus 纸箱状态
const (
	CartonStatusPacked           = "packed"
	CartonStatusReadyForDispatch = "ready_for_dispatch"
	CartonStatusDispatched       = "dispatched"
)

// Carton 纸箱：末检之后的成品单元，供装箱/发运阶段的 WIP 统计使用
type Carton struct {
	ID            string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	WOID          string     `json:"wo_id" gorm:"type:uuid;not null;index"`
	BatchID       *string    `json:"batch_id" gorm:"type:uuid;index"`
	CartonNo      int        `json:"carton_no" gorm:"not null"`
	Quantity      float64    `json:"quantity" gorm:"type:decimal(12,4);not null"`
	DispatchedQty float64    `json:"dispatched_qty" gorm:"type:decimal(12,4);default:0"`
	Status        string     `json:"status" gorm:"size:20;not null;default:packed"`
	BuiltAt       time.Time  `json:"built_at"`
	DispatchedAt  *time.Time `json:"dispatched_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Carton) TableName() string {
	return "mes_cartons"
}
