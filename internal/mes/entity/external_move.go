package entity

import (
	"time"
)

// ExternalMoveStatus 外发流转状态
const (
	MoveStatusSent      = "sent"
	MoveStatusInTransit = "in_transit"
	MoveStatusPartial   = "partial"
	MoveStatusReturned  = "returned"
	MoveStatusClosed    = "closed"
)

// ExternalMove 外发流转记录：只供 WIP 聚合与外协伙伴分析使用，
// 质检门引擎不读取它。
type ExternalMove struct {
	ID                 string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	WorkOrderID        string     `json:"work_order_id" gorm:"type:uuid;not null;index"`
	BatchID            *string    `json:"batch_id" gorm:"type:uuid;index"`
	Process            string     `json:"process" gorm:"size:50;not null;index"`
	PartnerID          string     `json:"partner_id" gorm:"type:uuid;not null;index"`
	QuantitySent       float64    `json:"quantity_sent" gorm:"type:decimal(12,4);not null"`
	QuantityReturned   float64    `json:"quantity_returned" gorm:"type:decimal(12,4);default:0"`
	QuantityRejected   float64    `json:"quantity_rejected" gorm:"type:decimal(12,4);default:0"`
	SentDate           time.Time  `json:"sent_date"`
	ExpectedReturnDate *time.Time `json:"expected_return_date"`
	ActualReturnDate   *time.Time `json:"actual_return_date"`
	Status             string     `json:"status" gorm:"size:20;not null;default:sent"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (ExternalMove) TableName() string {
	return "mes_external_moves"
}

// Open 流转是否仍有在外数量
func (m *ExternalMove) Open() bool {
	return m.Status == MoveStatusSent || m.Status == MoveStatusInTransit || m.Status == MoveStatusPartial
}

// OverdueReturn 是否超过预期归期仍未回厂
func (m *ExternalMove) OverdueReturn(now time.Time) bool {
	return m.ActualReturnDate == nil && m.ExpectedReturnDate != nil && m.ExpectedReturnDate.Before(now)
}
