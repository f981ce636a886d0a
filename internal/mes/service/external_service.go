package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
	"github.com/izzyftw1/rvi-sub006/internal/mes/repository"
	"github.com/izzyftw1/rvi-sub006/internal/mes/sse"
)

// ExternalService 外发流转与纸箱台账服务
type ExternalService struct {
	batchRepo   *repository.BatchRepository
	moveRepo    *repository.ExternalMoveRepository
	cartonRepo  *repository.CartonRepository
	partnerRepo *repository.PartnerRepository
	hub         *sse.Hub
}

func NewExternalService(repos *repository.Repositories, hub *sse.Hub) *ExternalService {
	return &ExternalService{
		batchRepo:   repos.Batch,
		moveRepo:    repos.ExternalMove,
		cartonRepo:  repos.Carton,
		partnerRepo: repos.Partner,
		hub:         hub,
	}
}

// SendToExternalRequest 外发请求
type SendToExternalRequest struct {
	Process            string  `json:"process" binding:"required"`
	PartnerID          string  `json:"partner_id" binding:"required"`
	QuantitySent       float64 `json:"quantity_sent" binding:"required,gt=0"`
	ExpectedReturnDate string  `json:"expected_return_date"` // YYYY-MM-DD
	RequiresQCOnReturn bool    `json:"requires_qc_on_return"`
}

// SendToExternal 批次外发：创建流转记录并把批次推入 external 工序。
// 伙伴必须在名录中存在。
func (s *ExternalService) SendToExternal(ctx context.Context, batchID string, req SendToExternalRequest) (*entity.ExternalMove, error) {
	batch, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !batch.Active() {
		return nil, ErrBatchEnded
	}
	if !CanTransition(batch.StageType, entity.StageExternal) {
		return nil, &InvalidTransitionError{From: batch.StageType, To: entity.StageExternal}
	}

	partner, err := s.partnerRepo.FindByID(ctx, req.PartnerID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	move := &entity.ExternalMove{
		ID:           uuid.New().String(),
		WorkOrderID:  batch.WorkOrderID,
		BatchID:      &batch.ID,
		Process:      req.Process,
		PartnerID:    partner.ID,
		QuantitySent: req.QuantitySent,
		SentDate:     now,
		Status:       entity.MoveStatusSent,
	}
	if req.ExpectedReturnDate != "" {
		t, perr := time.Parse("2006-01-02", req.ExpectedReturnDate)
		if perr == nil {
			move.ExpectedReturnDate = &t
		}
	}
	if err := s.moveRepo.Create(ctx, move); err != nil {
		return nil, fmt.Errorf("创建外发流转失败: %w", err)
	}

	batch.StageType = entity.StageExternal
	batch.BatchStatus = entity.BatchStatusInProgress
	batch.StageEnteredAt = now
	batch.ExternalProcessType = &move.Process
	batch.ExternalPartnerID = &move.PartnerID
	batch.ExternalSentAt = &now
	batch.ExternalReturnedAt = nil
	batch.RequiresQCOnReturn = req.RequiresQCOnReturn
	if err := s.batchRepo.Update(ctx, batch); err != nil {
		return nil, err
	}

	s.hub.NotifyChange(sse.TopicExternalMoves, move.ID, "sent")
	s.hub.NotifyChange(sse.TopicBatches, batch.ID, "stage_moved")
	return move, nil
}

// ReturnFromExternalRequest 回厂请求
type ReturnFromExternalRequest struct {
	QuantityReturned float64 `json:"quantity_returned" binding:"required,gt=0"`
	QuantityRejected float64 `json:"quantity_rejected"`
}

// ReturnFromExternal 外协回厂：累计回厂/拒收数量并推进流转状态；
// 批次离开 external 工序进入 qc，外发字段对按不变式清空。
// 未回齐的流转置为 partial，批次等全部回齐后再流转。
func (s *ExternalService) ReturnFromExternal(ctx context.Context, moveID string, req ReturnFromExternalRequest) (*entity.ExternalMove, error) {
	move, err := s.moveRepo.FindByID(ctx, moveID)
	if err != nil {
		return nil, err
	}
	if !move.Open() {
		return nil, fmt.Errorf("流转已关闭，不能再登记回厂")
	}

	now := time.Now()
	move.QuantityReturned += req.QuantityReturned
	move.QuantityRejected += req.QuantityRejected

	if move.QuantityReturned+move.QuantityRejected >= move.QuantitySent {
		move.Status = entity.MoveStatusReturned
		move.ActualReturnDate = &now
	} else {
		move.Status = entity.MoveStatusPartial
	}
	if err := s.moveRepo.Update(ctx, move); err != nil {
		return nil, fmt.Errorf("更新外发流转失败: %w", err)
	}
	s.hub.NotifyChange(sse.TopicExternalMoves, move.ID, "returned")

	if move.Status == entity.MoveStatusReturned && move.BatchID != nil {
		batch, berr := s.batchRepo.FindByID(ctx, *move.BatchID)
		if berr == nil && batch.Active() && batch.StageType == entity.StageExternal {
			batch.StageType = entity.StageQC
			batch.BatchStatus = entity.BatchStatusInQueue
			batch.StageEnteredAt = now
			batch.ExternalReturnedAt = &now
			batch.ExternalProcessType = nil
			batch.ExternalPartnerID = nil
			if uerr := s.batchRepo.Update(ctx, batch); uerr != nil {
				return nil, uerr
			}
			s.hub.NotifyChange(sse.TopicBatches, batch.ID, "stage_moved")
		}
	}

	return move, nil
}

// ListMovesByWorkOrder 工单下全部外发流转
func (s *ExternalService) ListMovesByWorkOrder(ctx context.Context, workOrderID string) ([]entity.ExternalMove, error) {
	return s.moveRepo.ListByWorkOrder(ctx, workOrderID)
}

// BuildCartonRequest 装箱请求
type BuildCartonRequest struct {
	Quantity float64 `json:"quantity" binding:"required,gt=0"`
}

// BuildCarton 装箱：末检之后按批次建箱，箱号在工单内递增
func (s *ExternalService) BuildCarton(ctx context.Context, batchID string, req BuildCartonRequest) (*entity.Carton, error) {
	batch, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !batch.Active() {
		return nil, ErrBatchEnded
	}

	cartonNo, err := s.cartonRepo.NextCartonNo(ctx, batch.WorkOrderID)
	if err != nil {
		return nil, fmt.Errorf("生成箱号失败: %w", err)
	}

	carton := &entity.Carton{
		ID:       uuid.New().String(),
		WOID:     batch.WorkOrderID,
		BatchID:  &batch.ID,
		CartonNo: cartonNo,
		Quantity: req.Quantity,
		Status:   entity.CartonStatusPacked,
		BuiltAt:  time.Now(),
	}
	if err := s.cartonRepo.Create(ctx, carton); err != nil {
		return nil, fmt.Errorf("创建纸箱失败: %w", err)
	}
	s.hub.NotifyChange(sse.TopicCartons, carton.ID, "built")
	return carton, nil
}

// MarkCartonReady 纸箱转入待发运
func (s *ExternalService) MarkCartonReady(ctx context.Context, cartonID string) (*entity.Carton, error) {
	carton, err := s.cartonRepo.FindByID(ctx, cartonID)
	if err != nil {
		return nil, err
	}
	if carton.Status == entity.CartonStatusDispatched {
		return nil, fmt.Errorf("纸箱已发运，不能变更状态")
	}
	carton.Status = entity.CartonStatusReadyForDispatch
	if err := s.cartonRepo.Update(ctx, carton); err != nil {
		return nil, err
	}
	s.hub.NotifyChange(sse.TopicCartons, carton.ID, "ready")
	return carton, nil
}

// ListCartonsByBatch 批次下全部纸箱
func (s *ExternalService) ListCartonsByBatch(ctx context.Context, batchID string) ([]entity.Carton, error) {
	return s.cartonRepo.ListByBatch(ctx, batchID)
}
