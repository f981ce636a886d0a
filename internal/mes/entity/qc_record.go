package entity

import (
	"time"
)

// QCResult 质检记录落库结果。豁免以 pass + waive_reason 形式落库，
// 业务层用带标签的 QCOutcome 区分，只在持久化边界压平。
const (
	QCResultPass = "pass"
	QCResultFail = "fail"
)

// QCRecord 质检记录：批次的只追加审计子项，创建后不再修改。
// batch_id 为空表示历史遗留的工单级记录。
type QCRecord struct {
	ID                string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	BatchID           *string   `json:"batch_id" gorm:"type:uuid;index"`
	WorkOrderID       string    `json:"work_order_id" gorm:"type:uuid;index"`
	QCType            string    `json:"qc_type" gorm:"size:20;not null"`
	Result            string    `json:"result" gorm:"size:10;not null"`
	WaiveReason       string    `json:"waive_reason" gorm:"type:text"`
	InspectedQuantity float64   `json:"inspected_quantity" gorm:"type:decimal(12,4);default:0"`
	InstrumentID      *string   `json:"instrument_id" gorm:"type:uuid"`
	ReportURL         string    `json:"report_url" gorm:"size:500"`
	ApprovedBy        string    `json:"approved_by" gorm:"size:64"`
	ApprovedAt        time.Time `json:"approved_at"`
	Remarks           string    `json:"remarks" gorm:"type:text"`
	CreatedAt         time.Time `json:"created_at" gorm:"index"`
}

func (QCRecord) TableName() string {
	return "mes_qc_records"
}

// Waived 该记录是否为豁免
func (r *QCRecord) Waived() bool {
	return r.Result == QCResultPass && r.WaiveReason != ""
}
