package entity

import (
	"time"
)

// StageType 批次所处工序
const (
	StageCutting    = "cutting"
	StageProduction = "production"
	StageExternal   = "external"
	StageQC         = "qc"
	StagePacking    = "packing"
	StageDispatched = "dispatched"
)

// BatchStatus 批次在工序内的状态
const (
	BatchStatusInQueue    = "in_queue"
	BatchStatusInProgress = "in_progress"
	BatchStatusCompleted  = "completed"
)

// TriggerReason 批次创建原因
const (
	TriggerInitial      = "initial"
	TriggerPostDispatch = "post_dispatch"
	TriggerGapRestart   = "gap_restart"
)

// QCStatus 质检门状态
const (
	QCStatusPending = "pending"
	QCStatusPassed  = "passed"
	QCStatusFailed  = "failed"
	QCStatusWaived  = "waived"
)

// QCType 质检门类型
const (
	QCTypeMaterial     = "material"
	QCTypeFirstPiece   = "first_piece"
	QCTypeFinal        = "final"
	QCTypePostExternal = "post_external"
)

// ProductionBatch 生产批次：工序、数量与质检门的唯一事实来源。
// 同一工单可同时存在多个活跃批次，批次号在工单内单调递增。
type ProductionBatch struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	WorkOrderID string `json:"work_order_id" gorm:"type:uuid;not null;index;uniqueIndex:uniq_wo_batch_no,priority:1"`
	BatchNumber int    `json:"batch_number" gorm:"not null;uniqueIndex:uniq_wo_batch_no,priority:2"`

	// 生命周期
	TriggerReason   string     `json:"trigger_reason" gorm:"size:20;not null;default:initial"`
	PreviousBatchID *string    `json:"previous_batch_id" gorm:"type:uuid"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"` // 为空表示活跃批次

	// 工序状态
	StageType      string    `json:"stage_type" gorm:"size:20;not null;default:cutting;index"`
	BatchStatus    string    `json:"batch_status" gorm:"size:20;not null;default:in_queue"`
	StageEnteredAt time.Time `json:"stage_entered_at"`

	// 外发字段：仅 stage_type = external 时有效，其余工序强制清空
	ExternalProcessType  *string    `json:"external_process_type" gorm:"size:50"`
	ExternalPartnerID    *string    `json:"external_partner_id" gorm:"type:uuid;index"`
	ExternalSentAt       *time.Time `json:"external_sent_at"`
	ExternalReturnedAt   *time.Time `json:"external_returned_at"`
	RequiresQCOnReturn   bool       `json:"requires_qc_on_return" gorm:"default:false"`
	PostExternalQCStatus string     `json:"post_external_qc_status" gorm:"size:20;default:pending"`

	// 数量
	BatchQuantity float64 `json:"batch_quantity" gorm:"type:decimal(12,4);not null"`
	ProducedQty   float64 `json:"produced_qty" gorm:"type:decimal(12,4);default:0"`
	QCRejectedQty float64 `json:"qc_rejected_qty" gorm:"type:decimal(12,4);default:0"`
	QCApprovedQty float64 `json:"qc_approved_qty" gorm:"type:decimal(12,4);default:0"`

	// 质检门：每道门一组 状态/审批人/审批时间
	QCMaterialStatus       string     `json:"qc_material_status" gorm:"size:20;not null;default:pending"`
	QCMaterialApprovedBy   string     `json:"qc_material_approved_by" gorm:"size:64"`
	QCMaterialApprovedAt   *time.Time `json:"qc_material_approved_at"`
	QCFirstPieceStatus     string     `json:"qc_first_piece_status" gorm:"size:20;not null;default:pending"`
	QCFirstPieceApprovedBy string     `json:"qc_first_piece_approved_by" gorm:"size:64"`
	QCFirstPieceApprovedAt *time.Time `json:"qc_first_piece_approved_at"`
	QCFinalStatus          string     `json:"qc_final_status" gorm:"size:20;not null;default:pending"`
	QCFinalApprovedBy      string     `json:"qc_final_approved_by" gorm:"size:64"`
	QCFinalApprovedAt      *time.Time `json:"qc_final_approved_at"`

	// 派生许可：只由重算逻辑写入，任何界面不得单独设置
	ProductionAllowed bool `json:"production_allowed" gorm:"default:false"`
	DispatchAllowed   bool `json:"dispatch_allowed" gorm:"default:false"`

	// 乐观锁版本号：并发质检员提交时拒绝过期写入
	Version int `json:"version" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ProductionBatch) TableName() string {
	return "mes_batches"
}

// Active 批次是否仍活跃
func (b *ProductionBatch) Active() bool {
	return b.EndedAt == nil
}

// GateSatisfied 质检门是否满足放行条件（通过或豁免）
func GateSatisfied(status string) bool {
	return status == QCStatusPassed || status == QCStatusWaived
}

// RecomputePermissions 由全部质检门状态重算两个派生许可。
// production_allowed ⇔ 来料门与首件门均为 passed/waived；
// dispatch_allowed 在此之上还要求末检门为 passed/waived。
func (b *ProductionBatch) RecomputePermissions() {
	b.ProductionAllowed = GateSatisfied(b.QCMaterialStatus) && GateSatisfied(b.QCFirstPieceStatus)
	b.DispatchAllowed = b.ProductionAllowed && GateSatisfied(b.QCFinalStatus)
}
