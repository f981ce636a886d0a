package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/izzyftw1/rvi-sub006/internal/config"
	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
	"github.com/izzyftw1/rvi-sub006/internal/mes/repository"
	"github.com/izzyftw1/rvi-sub006/internal/mes/sse"
	"go.uber.org/zap"
)

// BatchService 批次服务：批次创建策略与工序流转
type BatchService struct {
	batchRepo  *repository.BatchRepository
	woRepo     *repository.WorkOrderRepository
	prodRepo   *repository.ProductionLogRepository
	cartonRepo *repository.CartonRepository
	hub        *sse.Hub
	cfg        *config.Config
	logger     *zap.Logger
}

func NewBatchService(repos *repository.Repositories, hub *sse.Hub, cfg *config.Config, logger *zap.Logger) *BatchService {
	return &BatchService{
		batchRepo:  repos.Batch,
		woRepo:     repos.WorkOrder,
		prodRepo:   repos.ProductionLog,
		cartonRepo: repos.Carton,
		hub:        hub,
		cfg:        cfg,
		logger:     logger,
	}
}

// GetOrCreateBatch 取得工单当前应使用的批次。
//   - 无批次：创建1号批次，trigger_reason = initial；
//   - 有活跃批次且距最近一次报产 ≤ 阈值：幂等复用，原样返回；
//   - 活跃批次断档超过阈值：关闭旧批次，新开 gap_restart 批次并回链；
//   - 最近批次已因发运关闭：新开 post_dispatch 批次并回链。
//
// 阈值窗口内重复调用必定返回同一批次，不会因快速重入产生重复批次。
func (s *BatchService) GetOrCreateBatch(ctx context.Context, workOrderID string, gapThresholdDays int) (*entity.ProductionBatch, error) {
	wo, err := s.woRepo.FindByID(ctx, workOrderID)
	if err != nil {
		return nil, err
	}

	if gapThresholdDays <= 0 {
		gapThresholdDays = s.cfg.Batch.GapThresholdDays
	}
	now := time.Now()

	latest, err := s.batchRepo.FindLatestByWorkOrder(ctx, workOrderID)
	if err != nil {
		if err == repository.ErrNotFound {
			// 无历史不是错误，属于初始情形
			return s.createBatch(ctx, wo, entity.TriggerInitial, nil, now)
		}
		return nil, err
	}

	if latest.Active() {
		lastEvent := latest.StartedAt
		if last, lerr := s.prodRepo.LastReportedAt(ctx, latest.ID); lerr == nil && last != nil {
			lastEvent = *last
		}

		gap := now.Sub(lastEvent)
		if gap <= time.Duration(gapThresholdDays)*24*time.Hour {
			return latest, nil
		}

		// 断档超阈值：关闭旧批次再新开
		latest.EndedAt = &now
		if err := s.batchRepo.Update(ctx, latest); err != nil {
			return nil, fmt.Errorf("关闭断档批次失败: %w", err)
		}
		s.hub.NotifyChange(sse.TopicBatches, latest.ID, "closed")
		return s.createBatch(ctx, wo, entity.TriggerGapRestart, &latest.ID, now)
	}

	// 最近批次已结束：因发运关闭的续产为 post_dispatch，其余为 gap_restart
	trigger := entity.TriggerGapRestart
	if latest.StageType == entity.StageDispatched {
		trigger = entity.TriggerPostDispatch
	}
	return s.createBatch(ctx, wo, trigger, &latest.ID, now)
}

func (s *BatchService) createBatch(ctx context.Context, wo *entity.WorkOrder, trigger string, previousID *string, now time.Time) (*entity.ProductionBatch, error) {
	number, err := s.batchRepo.NextBatchNumber(ctx, wo.ID)
	if err != nil {
		return nil, fmt.Errorf("生成批次号失败: %w", err)
	}

	batch := &entity.ProductionBatch{
		ID:              uuid.New().String(),
		WorkOrderID:     wo.ID,
		BatchNumber:     number,
		TriggerReason:   trigger,
		PreviousBatchID: previousID,
		StartedAt:       now,
		StageType:       entity.StageCutting,
		BatchStatus:     entity.BatchStatusInQueue,
		StageEnteredAt:  now,
		BatchQuantity:   wo.Quantity,
	}

	if err := s.batchRepo.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("创建批次失败: %w", err)
	}
	s.hub.NotifyChange(sse.TopicBatches, batch.ID, "created")
	return batch, nil
}

// Get 获取批次详情
func (s *BatchService) Get(ctx context.Context, id string) (*entity.ProductionBatch, error) {
	return s.batchRepo.FindByID(ctx, id)
}

// List 分页批次列表
func (s *BatchService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ProductionBatch, int64, error) {
	return s.batchRepo.List(ctx, page, pageSize, filters)
}

// ListByWorkOrder 工单下全部批次
func (s *BatchService) ListByWorkOrder(ctx context.Context, workOrderID string) ([]entity.ProductionBatch, error) {
	return s.batchRepo.ListByWorkOrder(ctx, workOrderID)
}

// MoveStageRequest 工序流转请求
type MoveStageRequest struct {
	NewStage            string `json:"new_stage" binding:"required"`
	NewStatus           string `json:"new_status"`
	ExternalProcessType string `json:"external_process_type"`
	ExternalPartnerID   string `json:"external_partner_id"`
	RequiresQCOnReturn  bool   `json:"requires_qc_on_return"`
}

// MoveBatchToStage 批次工序流转。流转表校验合法相邻工序；
// 进入 external 时写入外发字段对，离开 external 时强制清空并盖回厂时间。
func (s *BatchService) MoveBatchToStage(ctx context.Context, batchID string, req MoveStageRequest) (*entity.ProductionBatch, error) {
	batch, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !batch.Active() {
		return nil, ErrBatchEnded
	}

	if !validStage(req.NewStage) {
		return nil, fmt.Errorf("无效的工序: %s", req.NewStage)
	}
	if !CanTransition(batch.StageType, req.NewStage) {
		return nil, &InvalidTransitionError{From: batch.StageType, To: req.NewStage}
	}

	now := time.Now()
	leavingExternal := batch.StageType == entity.StageExternal && req.NewStage != entity.StageExternal

	batch.StageType = req.NewStage
	batch.StageEnteredAt = now
	batch.BatchStatus = entity.BatchStatusInQueue
	if req.NewStatus != "" {
		if !validBatchStatus(req.NewStatus) {
			return nil, fmt.Errorf("无效的批次状态: %s", req.NewStatus)
		}
		batch.BatchStatus = req.NewStatus
	}

	if req.NewStage == entity.StageExternal {
		// 调用方漏传工艺/伙伴属于调用错误，这里不拒绝，字段留空
		batch.ExternalProcessType = optional(req.ExternalProcessType)
		batch.ExternalPartnerID = optional(req.ExternalPartnerID)
		batch.ExternalSentAt = &now
		batch.RequiresQCOnReturn = req.RequiresQCOnReturn
	} else {
		if leavingExternal {
			batch.ExternalReturnedAt = &now
		}
		batch.ExternalProcessType = nil
		batch.ExternalPartnerID = nil
	}

	if err := s.batchRepo.Update(ctx, batch); err != nil {
		return nil, err
	}
	s.hub.NotifyChange(sse.TopicBatches, batch.ID, "stage_moved")
	return batch, nil
}

// UpdateBatchStatus 只改工序内状态，不动工序
func (s *BatchService) UpdateBatchStatus(ctx context.Context, batchID, newStatus string) (*entity.ProductionBatch, error) {
	if !validBatchStatus(newStatus) {
		return nil, fmt.Errorf("无效的批次状态: %s", newStatus)
	}

	batch, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !batch.Active() {
		return nil, ErrBatchEnded
	}

	batch.BatchStatus = newStatus
	if err := s.batchRepo.Update(ctx, batch); err != nil {
		return nil, err
	}
	s.hub.NotifyChange(sse.TopicBatches, batch.ID, "status_updated")
	return batch, nil
}

// UpdateBatchQuantity 只改批次数量
func (s *BatchService) UpdateBatchQuantity(ctx context.Context, batchID string, quantity float64) (*entity.ProductionBatch, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	batch, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !batch.Active() {
		return nil, ErrBatchEnded
	}

	batch.BatchQuantity = quantity
	if err := s.batchRepo.Update(ctx, batch); err != nil {
		return nil, err
	}
	s.hub.NotifyChange(sse.TopicBatches, batch.ID, "quantity_updated")
	return batch, nil
}

// RecordProductionRequest 报产请求
type RecordProductionRequest struct {
	Quantity    float64 `json:"quantity" binding:"required,gt=0"`
	RejectedQty float64 `json:"rejected_qty"`
	Remarks     string  `json:"remarks"`
}

// RecordProduction 报产：追加报产记录并滚动累计批次产量/不良。
// 来料与首件门未放行的批次不允许报产。
func (s *BatchService) RecordProduction(ctx context.Context, batchID string, req RecordProductionRequest, userID string) (*entity.ProductionBatch, error) {
	batch, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !batch.Active() {
		return nil, ErrBatchEnded
	}
	if !batch.ProductionAllowed {
		return nil, ErrProductionNotAllowed
	}

	now := time.Now()
	log := &entity.ProductionLog{
		ID:          uuid.New().String(),
		BatchID:     batch.ID,
		WorkOrderID: batch.WorkOrderID,
		Quantity:    req.Quantity,
		RejectedQty: req.RejectedQty,
		Remarks:     req.Remarks,
		ReportedBy:  userID,
		ReportedAt:  now,
	}
	if err := s.prodRepo.Create(ctx, log); err != nil {
		return nil, fmt.Errorf("创建报产记录失败: %w", err)
	}

	batch.ProducedQty += req.Quantity
	batch.QCRejectedQty += req.RejectedQty
	if batch.BatchStatus == entity.BatchStatusInQueue {
		batch.BatchStatus = entity.BatchStatusInProgress
	}
	if err := s.batchRepo.Update(ctx, batch); err != nil {
		return nil, err
	}
	s.hub.NotifyChange(sse.TopicBatches, batch.ID, "production_reported")
	return batch, nil
}

// DispatchRequest 发运请求
type DispatchRequest struct {
	Quantity float64 `json:"quantity" binding:"required,gt=0"`
}

// DispatchBatch 发运并关闭批次。所有上游质检门必须通过或豁免
// （dispatch_allowed）。部分发运同样关闭批次，续产走 post_dispatch 新批次。
// 纸箱台账的更新是次级写入：失败只记日志，不回滚批次关闭。
func (s *BatchService) DispatchBatch(ctx context.Context, batchID string, req DispatchRequest, userID string) (*entity.ProductionBatch, error) {
	batch, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !batch.Active() {
		return nil, ErrBatchEnded
	}
	if !batch.DispatchAllowed {
		return nil, ErrDispatchNotAllowed
	}

	now := time.Now()
	batch.StageType = entity.StageDispatched
	batch.BatchStatus = entity.BatchStatusCompleted
	batch.StageEnteredAt = now
	batch.EndedAt = &now
	if err := s.batchRepo.Update(ctx, batch); err != nil {
		return nil, err
	}

	// 按箱号顺序冲减纸箱，直至发运数量用尽
	remaining := req.Quantity
	cartons, cerr := s.cartonRepo.ListByBatch(ctx, batch.ID)
	if cerr != nil {
		s.logger.Warn("dispatch: failed to load cartons, ledger not updated",
			zap.String("batch_id", batch.ID), zap.Error(cerr))
	}
	for i := range cartons {
		if remaining <= 0 {
			break
		}
		carton := &cartons[i]
		if carton.Status == entity.CartonStatusDispatched {
			continue
		}
		open := carton.Quantity - carton.DispatchedQty
		if open <= 0 {
			continue
		}
		take := open
		if take > remaining {
			take = remaining
		}
		carton.DispatchedQty += take
		remaining -= take
		if carton.DispatchedQty >= carton.Quantity {
			carton.Status = entity.CartonStatusDispatched
			carton.DispatchedAt = &now
		}
		if uerr := s.cartonRepo.Update(ctx, carton); uerr != nil {
			s.logger.Warn("dispatch: carton update failed",
				zap.String("carton_id", carton.ID), zap.Error(uerr))
		}
	}

	s.hub.NotifyChange(sse.TopicBatches, batch.ID, "dispatched")
	s.hub.NotifyChange(sse.TopicCartons, batch.ID, "dispatched")
	return batch, nil
}

func validStage(stage string) bool {
	switch stage {
	case entity.StageCutting, entity.StageProduction, entity.StageExternal,
		entity.StageQC, entity.StagePacking, entity.StageDispatched:
		return true
	}
	return false
}

func validBatchStatus(status string) bool {
	switch status {
	case entity.BatchStatusInQueue, entity.BatchStatusInProgress, entity.BatchStatusCompleted:
		return true
	}
	return false
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
