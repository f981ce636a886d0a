package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
	"github.com/izzyftw1/rvi-sub006/internal/mes/repository"
	"github.com/izzyftw1/rvi-sub006/internal/mes/sse"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// QCService 质检门引擎：校验并记录四道质检门的结论，
// 重算 production_allowed / dispatch_allowed 两个派生许可。
type QCService struct {
	batchRepo      *repository.BatchRepository
	recordRepo     *repository.QCRecordRepository
	instrumentRepo *repository.InstrumentRepository
	hub            *sse.Hub
	minioClient    *minio.Client
	bucketName     string
	logger         *zap.Logger
}

func NewQCService(repos *repository.Repositories, hub *sse.Hub, minioClient *minio.Client, bucketName string, logger *zap.Logger) *QCService {
	return &QCService{
		batchRepo:      repos.Batch,
		recordRepo:     repos.QCRecord,
		instrumentRepo: repos.Instrument,
		hub:            hub,
		minioClient:    minioClient,
		bucketName:     bucketName,
		logger:         logger,
	}
}

// SubmitQCRequest 质检提交请求
type SubmitQCRequest struct {
	QCType            string  `json:"qc_type" binding:"required"`
	Result            string  `json:"result" binding:"required"` // pass / fail / waived
	Remarks           string  `json:"remarks"`
	InspectedQuantity float64 `json:"inspected_quantity"`
	WaiveReason       string  `json:"waive_reason"`
	InstrumentID      string  `json:"instrument_id"`
	ReportURL         string  `json:"report_url"`
}

// SubmitQCResult 质检提交结果。Warning 非空表示主写入成功但次级
// 审计写入失败（显式的部分失败策略，不作为整体失败上报）。
type SubmitQCResult struct {
	Batch   *entity.ProductionBatch `json:"batch"`
	Record  *entity.QCRecord        `json:"record,omitempty"`
	Warning string                  `json:"warning,omitempty"`
}

// SubmitBatchQC 提交一道质检门的结论。
// 处理顺序：校验（任何写入前）→ 更新批次门字段 → 重算派生许可 →
// 尽力追加审计记录。已结束批次只追加历史，不再改动门字段。
func (s *QCService) SubmitBatchQC(ctx context.Context, batchID string, req SubmitQCRequest, userID string) (*SubmitQCResult, error) {
	outcome, err := ParseOutcome(req.Result, req.WaiveReason, req.Remarks)
	if err != nil {
		return nil, err
	}

	batch, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var instrumentID *string

	switch req.QCType {
	case entity.QCTypeMaterial, entity.QCTypeFinal:
		// final 的前置门不在此硬阻断：前置未满足时 dispatch_allowed
		// 会保持 false，由派生许可兜底
	case entity.QCTypeFirstPiece:
		// 首件必须选用校准在有效期内的量具，过期整单阻断
		if req.InstrumentID == "" {
			return nil, ErrInstrumentRequired
		}
		instrument, ierr := s.instrumentRepo.FindByID(ctx, req.InstrumentID)
		if ierr != nil {
			return nil, ierr
		}
		if instrument.CalibrationStatus(now) == entity.CalibrationOverdue {
			return nil, ErrInstrumentOverdue
		}
		instrumentID = &req.InstrumentID
	case entity.QCTypePostExternal:
		if !batch.RequiresQCOnReturn {
			return nil, ErrQCNotRequiredOnReturn
		}
	default:
		return nil, fmt.Errorf("无效的质检类型: %s", req.QCType)
	}

	result := &SubmitQCResult{Batch: batch}

	if batch.Active() {
		s.applyGate(batch, req.QCType, outcome, userID, now)
		batch.RecomputePermissions()

		if err := s.batchRepo.Update(ctx, batch); err != nil {
			return nil, err
		}
		s.hub.NotifyChange(sse.TopicBatches, batch.ID, "qc_submitted")
	} else {
		// 已结束批次：门字段不可变，质检历史仍可追加
		result.Warning = "批次已结束，仅追加质检历史"
	}

	// 审计记录为次级写入：失败不回滚批次状态，只降级为警告
	storedResult, waiveReason := outcome.Stored()
	record := &entity.QCRecord{
		ID:                uuid.New().String(),
		BatchID:           &batch.ID,
		WorkOrderID:       batch.WorkOrderID,
		QCType:            req.QCType,
		Result:            storedResult,
		WaiveReason:       waiveReason,
		InspectedQuantity: req.InspectedQuantity,
		InstrumentID:      instrumentID,
		ReportURL:         req.ReportURL,
		ApprovedBy:        userID,
		ApprovedAt:        now,
		Remarks:           req.Remarks,
	}
	if err := s.recordRepo.Create(ctx, record); err != nil {
		s.logger.Warn("qc audit record write failed, batch state kept",
			zap.String("batch_id", batch.ID),
			zap.String("qc_type", req.QCType),
			zap.Error(err))
		result.Warning = "质检审计记录写入失败: " + err.Error()
	} else {
		result.Record = record
		s.hub.NotifyChange(sse.TopicQCRecords, record.ID, "created")
	}

	return result, nil
}

// applyGate 把结论写入对应门字段，并处理 final 的合格数量重算
// 与 post_external 的复检标记清除
func (s *QCService) applyGate(batch *entity.ProductionBatch, qcType string, outcome QCOutcome, userID string, now time.Time) {
	status := outcome.GateStatus()

	switch qcType {
	case entity.QCTypeMaterial:
		batch.QCMaterialStatus = status
		batch.QCMaterialApprovedBy = userID
		batch.QCMaterialApprovedAt = &now
	case entity.QCTypeFirstPiece:
		batch.QCFirstPieceStatus = status
		batch.QCFirstPieceApprovedBy = userID
		batch.QCFirstPieceApprovedAt = &now
	case entity.QCTypeFinal:
		batch.QCFinalStatus = status
		batch.QCFinalApprovedBy = userID
		batch.QCFinalApprovedAt = &now
		if outcome.Satisfies() {
			approved := batch.ProducedQty - batch.QCRejectedQty
			if approved < 0 {
				approved = 0
			}
			batch.QCApprovedQty = approved
		}
	case entity.QCTypePostExternal:
		batch.PostExternalQCStatus = status
		// 复检标记在任何结论后清除：检验本身即视为处理完毕。
		// fail 是否应保持阻断直至纠正，是已登记的设计风险。
		batch.RequiresQCOnReturn = false
	}
}

// BatchQCData 批次质检汇总视图：四道门状态、两个派生许可与相关时间戳
type BatchQCData struct {
	BatchID     string `json:"batch_id"`
	WorkOrderID string `json:"work_order_id"`
	BatchNumber int    `json:"batch_number"`

	QCMaterialStatus       string     `json:"qc_material_status"`
	QCMaterialApprovedBy   string     `json:"qc_material_approved_by"`
	QCMaterialApprovedAt   *time.Time `json:"qc_material_approved_at"`
	QCFirstPieceStatus     string     `json:"qc_first_piece_status"`
	QCFirstPieceApprovedBy string     `json:"qc_first_piece_approved_by"`
	QCFirstPieceApprovedAt *time.Time `json:"qc_first_piece_approved_at"`
	QCFinalStatus          string     `json:"qc_final_status"`
	QCFinalApprovedBy      string     `json:"qc_final_approved_by"`
	QCFinalApprovedAt      *time.Time `json:"qc_final_approved_at"`
	PostExternalQCStatus   string     `json:"post_external_qc_status"`
	RequiresQCOnReturn     bool       `json:"requires_qc_on_return"`

	ProductionAllowed bool    `json:"production_allowed"`
	DispatchAllowed   bool    `json:"dispatch_allowed"`
	ProducedQty       float64 `json:"produced_qty"`
	QCRejectedQty     float64 `json:"qc_rejected_qty"`
	QCApprovedQty     float64 `json:"qc_approved_qty"`
}

// GetBatchQCData 批次质检汇总
func (s *QCService) GetBatchQCData(ctx context.Context, batchID string) (*BatchQCData, error) {
	batch, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return &BatchQCData{
		BatchID:                batch.ID,
		WorkOrderID:            batch.WorkOrderID,
		BatchNumber:            batch.BatchNumber,
		QCMaterialStatus:       batch.QCMaterialStatus,
		QCMaterialApprovedBy:   batch.QCMaterialApprovedBy,
		QCMaterialApprovedAt:   batch.QCMaterialApprovedAt,
		QCFirstPieceStatus:     batch.QCFirstPieceStatus,
		QCFirstPieceApprovedBy: batch.QCFirstPieceApprovedBy,
		QCFirstPieceApprovedAt: batch.QCFirstPieceApprovedAt,
		QCFinalStatus:          batch.QCFinalStatus,
		QCFinalApprovedBy:      batch.QCFinalApprovedBy,
		QCFinalApprovedAt:      batch.QCFinalApprovedAt,
		PostExternalQCStatus:   batch.PostExternalQCStatus,
		RequiresQCOnReturn:     batch.RequiresQCOnReturn,
		ProductionAllowed:      batch.ProductionAllowed,
		DispatchAllowed:        batch.DispatchAllowed,
		ProducedQty:            batch.ProducedQty,
		QCRejectedQty:          batch.QCRejectedQty,
		QCApprovedQty:          batch.QCApprovedQty,
	}, nil
}

// ListQCRecords 批次的质检历史（只追加，按时间排序）
func (s *QCService) ListQCRecords(ctx context.Context, batchID string) ([]entity.QCRecord, error) {
	return s.recordRepo.ListByBatch(ctx, batchID)
}

// UploadInspectionReport 上传检验报告/照片到对象存储，返回访问路径。
// MinIO 未配置时直接报错，由处理器映射为服务不可用。
func (s *QCService) UploadInspectionReport(ctx context.Context, batchID, filename string, size int64, reader io.Reader, contentType string) (string, error) {
	if s.minioClient == nil {
		return "", fmt.Errorf("对象存储未配置")
	}

	objectName := fmt.Sprintf("qc-reports/%s/%s%s", batchID, uuid.New().String(), filepath.Ext(filename))
	_, err := s.minioClient.PutObject(ctx, s.bucketName, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("上传检验报告失败: %w", err)
	}
	return fmt.Sprintf("/%s/%s", s.bucketName, objectName), nil
}
