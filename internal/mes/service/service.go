package service

import (
	"errors"
	"fmt"

	"github.com/izzyftw1/rvi-sub006/internal/config"
	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
	"github.com/izzyftw1/rvi-sub006/internal/mes/repository"
	"github.com/izzyftw1/rvi-sub006/internal/mes/sse"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 业务校验错误：任何写入发生之前就地拒绝，处理器映射为 40000
var (
	ErrWaiveReasonRequired   = errors.New("豁免必须填写豁免理由或备注")
	ErrInstrumentRequired    = errors.New("首件检验必须选择量具")
	ErrInstrumentOverdue     = errors.New("量具校准已过期，不允许提交首件检验")
	ErrQCNotRequiredOnReturn = errors.New("该批次回厂后无需复检")
	ErrBatchEnded            = errors.New("批次已结束")
	ErrInvalidQuantity       = errors.New("数量必须大于0")
	ErrDispatchNotAllowed    = errors.New("末检未通过或未豁免，不允许发运")
	ErrProductionNotAllowed  = errors.New("来料或首件检验未放行，不允许报产")
)

// InvalidTransitionError 非法工序流转
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("不允许的工序流转: %s -> %s", e.From, e.To)
}

// allowedTransitions 工序流转表：固定流水线 cutting → production →
// (external) → qc → packing → dispatched，质检不合格可回退返工。
var allowedTransitions = map[string][]string{
	entity.StageCutting:    {entity.StageProduction},
	entity.StageProduction: {entity.StageExternal, entity.StageQC},
	entity.StageExternal:   {entity.StageQC, entity.StageProduction},
	entity.StageQC:         {entity.StagePacking, entity.StageProduction, entity.StageExternal},
	entity.StagePacking:    {entity.StageDispatched},
	entity.StageDispatched: {},
}

// CanTransition 是否允许从 from 流转到 to。同工序重入允许（重置状态）。
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// QCOutcome 质检结论的内部带标签表示。落库时才压平为
// result(pass/fail) + waive_reason，避免 "豁免等价于通过" 的歧义
// 渗入业务逻辑。
type QCOutcome struct {
	kind   string // pass / fail / waived
	reason string // 仅 waived 有值
}

func OutcomePass() QCOutcome               { return QCOutcome{kind: "pass"} }
func OutcomeFail() QCOutcome               { return QCOutcome{kind: "fail"} }
func OutcomeWaived(reason string) QCOutcome { return QCOutcome{kind: "waived", reason: reason} }

// ParseOutcome 解析提交结果。waived 必须带非空理由（备注可兜底）。
func ParseOutcome(result, waiveReason, remarks string) (QCOutcome, error) {
	switch result {
	case "pass":
		return OutcomePass(), nil
	case "fail":
		return OutcomeFail(), nil
	case "waived":
		reason := waiveReason
		if reason == "" {
			reason = remarks
		}
		if reason == "" {
			return QCOutcome{}, ErrWaiveReasonRequired
		}
		return OutcomeWaived(reason), nil
	default:
		return QCOutcome{}, fmt.Errorf("无效的质检结果: %s", result)
	}
}

// GateStatus 映射到批次上的门状态 passed/failed/waived
func (o QCOutcome) GateStatus() string {
	switch o.kind {
	case "pass":
		return entity.QCStatusPassed
	case "fail":
		return entity.QCStatusFailed
	default:
		return entity.QCStatusWaived
	}
}

// Satisfies 是否满足放行（通过或豁免）
func (o QCOutcome) Satisfies() bool {
	return o.kind == "pass" || o.kind == "waived"
}

// Stored 压平为落库表示：豁免存为 pass + 理由
func (o QCOutcome) Stored() (result, waiveReason string) {
	switch o.kind {
	case "fail":
		return entity.QCResultFail, ""
	case "waived":
		return entity.QCResultPass, o.reason
	default:
		return entity.QCResultPass, ""
	}
}

// WaiveReason 豁免理由，非豁免为空
func (o QCOutcome) WaiveReason() string {
	return o.reason
}

// Services MES服务集合
type Services struct {
	WorkOrder *WorkOrderService
	Batch     *BatchService
	QC        *QCService
	External  *ExternalService
	Registry  *RegistryService
	WIP       *WIPService
}

// NewServices 创建MES服务集合
func NewServices(repos *repository.Repositories, rdb *redis.Client, minioClient *minio.Client, hub *sse.Hub, cfg *config.Config, logger *zap.Logger) *Services {
	return &Services{
		WorkOrder: NewWorkOrderService(repos.WorkOrder),
		Batch:     NewBatchService(repos, hub, cfg, logger),
		QC:        NewQCService(repos, hub, minioClient, cfg.MinIO.Bucket, logger),
		External:  NewExternalService(repos, hub),
		Registry:  NewRegistryService(repos),
		WIP:       NewWIPService(repos, rdb, hub, cfg.Batch.WIPSnapshotTTL, logger),
	}
}

// WorkOrderService 工单服务：计划容器的薄CRUD，仅为核心提供输入
type WorkOrderService struct {
	repo *repository.WorkOrderRepository
}

func NewWorkOrderService(repo *repository.WorkOrderRepository) *WorkOrderService {
	return &WorkOrderService{repo: repo}
}
