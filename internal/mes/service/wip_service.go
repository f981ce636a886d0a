package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
	"github.com/izzyftw1/rvi-sub006/internal/mes/repository"
	"github.com/izzyftw1/rvi-sub006/internal/mes/sse"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	wipSnapshotKey    = "wip:snapshot"
	stageHintKeyPrefix = "wo:stage_hint:"
)

// stageOrder 流水线顺序，用于工单的展示用工序提示
var stageOrder = map[string]int{
	entity.StageCutting:    0,
	entity.StageProduction: 1,
	entity.StageExternal:   2,
	entity.StageQC:         3,
	entity.StagePacking:    4,
	entity.StageDispatched: 5,
}

// StageSummary 单一工序的占用汇总
type StageSummary struct {
	Stage         string  `json:"stage"`
	BatchCount    int     `json:"batch_count"`
	TotalQuantity float64 `json:"total_quantity"`
	InQueue       int     `json:"in_queue"`
	InProgress    int     `json:"in_progress"`
	Completed     int     `json:"completed"`
	AvgWaitHours  float64 `json:"avg_wait_hours"`
	OverdueCount  int     `json:"overdue_count"`
}

// ExternalSummary 按工艺或按伙伴的外协占用汇总
type ExternalSummary struct {
	Key          string  `json:"key"`
	PartnerName  string  `json:"partner_name,omitempty"`
	MoveCount    int     `json:"move_count"`
	WIPQuantity  float64 `json:"wip_quantity"`
	OverdueCount int     `json:"overdue_count"`
}

// CartonFigures 装箱/发运台账汇总
type CartonFigures struct {
	PackedCount   int     `json:"packed_count"`
	PackedQty     float64 `json:"packed_qty"`
	ReadyCount    int     `json:"ready_count"`
	ReadyQty      float64 `json:"ready_qty"`
	DispatchedQty float64 `json:"dispatched_qty"`
}

// WIPSnapshot 一次全量重算的结果
type WIPSnapshot struct {
	ComputedAt time.Time         `json:"computed_at"`
	Stages     []StageSummary    `json:"stages"`
	ByProcess  []ExternalSummary `json:"by_process"`
	ByPartner  []ExternalSummary `json:"by_partner"`
	Cartons    CartonFigures     `json:"cartons"`
}

// WIPService 纯读侧聚合：只从批次/流转/纸箱记录整体重算工序占用、
// 数量与滞留时长，不做增量修补，也绝不读取工单上的任何缓存工序字段
// （那类字段只是展示提示，一律视为过期）。
type WIPService struct {
	batchRepo   *repository.BatchRepository
	woRepo      *repository.WorkOrderRepository
	moveRepo    *repository.ExternalMoveRepository
	cartonRepo  *repository.CartonRepository
	partnerRepo *repository.PartnerRepository
	rdb         *redis.Client
	hub         *sse.Hub
	snapshotTTL time.Duration
	logger      *zap.Logger

	mu sync.Mutex // 序列化全量重算
}

func NewWIPService(repos *repository.Repositories, rdb *redis.Client, hub *sse.Hub, snapshotTTL time.Duration, logger *zap.Logger) *WIPService {
	return &WIPService{
		batchRepo:   repos.Batch,
		woRepo:      repos.WorkOrder,
		moveRepo:    repos.ExternalMove,
		cartonRepo:  repos.Carton,
		partnerRepo: repos.Partner,
		rdb:         rdb,
		hub:         hub,
		snapshotTTL: snapshotTTL,
		logger:      logger,
	}
}

// Start 订阅实体变更：任何批次/质检/流转/纸箱行变更都会触发一次
// 同步全量重算。聚合成本是 O(活跃行数)，在数百并发批次的规模下可接受。
func (s *WIPService) Start() {
	refresh := func(topic string) {
		if _, err := s.Recompute(context.Background()); err != nil {
			s.logger.Error("wip recompute on change failed",
				zap.String("topic", topic), zap.Error(err))
		}
	}
	s.hub.Watch(sse.TopicBatches, refresh)
	s.hub.Watch(sse.TopicQCRecords, refresh)
	s.hub.Watch(sse.TopicExternalMoves, refresh)
	s.hub.Watch(sse.TopicCartons, refresh)
}

// Snapshot 返回最近的WIP快照，优先读Redis缓存，缓存失效则重算
func (s *WIPService) Snapshot(ctx context.Context) (*WIPSnapshot, error) {
	if s.rdb != nil {
		cached, err := s.rdb.Get(ctx, wipSnapshotKey).Result()
		if err == nil && cached != "" {
			var snap WIPSnapshot
			if uerr := json.Unmarshal([]byte(cached), &snap); uerr == nil {
				return &snap, nil
			}
		}
	}
	return s.Recompute(ctx)
}

// Recompute 全量重算WIP快照并刷新缓存、推送看板、重写展示提示
func (s *WIPService) Recompute(ctx context.Context) (*WIPSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	batches, err := s.batchRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	moves, err := s.moveRepo.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	cartons, err := s.cartonRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	woIDs := make([]string, 0, len(batches))
	seen := make(map[string]bool)
	for _, b := range batches {
		if !seen[b.WorkOrderID] {
			seen[b.WorkOrderID] = true
			woIDs = append(woIDs, b.WorkOrderID)
		}
	}
	workOrders, err := s.woRepo.MapByIDs(ctx, woIDs)
	if err != nil {
		return nil, err
	}

	snap := &WIPSnapshot{ComputedAt: now}
	snap.Stages = s.computeStages(batches, cartons, workOrders, now)
	snap.ByProcess, snap.ByPartner = s.computeExternal(ctx, moves, now)
	snap.Cartons = computeCartonFigures(cartons)

	s.cacheSnapshot(ctx, snap)
	s.refreshStageHints(ctx, batches)
	sse.PublishWIPUpdate(now.Format(time.RFC3339))

	return snap, nil
}

// computeStages 厂内工序占用。每个批次只按其当前工序计数一次，
// 数量全部下夹到零，乱序更新不会出现负WIP。
func (s *WIPService) computeStages(batches []entity.ProductionBatch, cartons []entity.Carton, workOrders map[string]entity.WorkOrder, now time.Time) []StageSummary {
	summaries := map[string]*StageSummary{}
	waitTotals := map[string]time.Duration{}
	for _, stage := range []string{entity.StageCutting, entity.StageProduction, entity.StageQC, entity.StagePacking} {
		summaries[stage] = &StageSummary{Stage: stage}
	}

	// 批次已装箱数量，用于 packing 工序的待装数量
	packedByBatch := map[string]float64{}
	for _, c := range cartons {
		if c.BatchID != nil {
			packedByBatch[*c.BatchID] += c.Quantity
		}
	}

	for _, b := range batches {
		summary, ok := summaries[b.StageType]
		if !ok {
			// external 批次与已发运批次不计入厂内工序
			continue
		}

		summary.BatchCount++
		summary.TotalQuantity += stageQuantity(&b, packedByBatch[b.ID])
		switch b.BatchStatus {
		case entity.BatchStatusInQueue:
			summary.InQueue++
		case entity.BatchStatusInProgress:
			summary.InProgress++
		case entity.BatchStatusCompleted:
			summary.Completed++
		}
		waitTotals[b.StageType] += now.Sub(b.StageEnteredAt)

		if wo, ok := workOrders[b.WorkOrderID]; ok && wo.Overdue(now) {
			summary.OverdueCount++
		}
	}

	result := make([]StageSummary, 0, len(summaries)+1)
	for _, stage := range []string{entity.StageCutting, entity.StageProduction, entity.StageQC, entity.StagePacking} {
		summary := summaries[stage]
		if summary.BatchCount > 0 {
			summary.AvgWaitHours = waitTotals[stage].Hours() / float64(summary.BatchCount)
		}
		result = append(result, *summary)
	}

	// 发运工序的占用来自纸箱台账，而非批次
	dispatch := StageSummary{Stage: "dispatch"}
	var dispatchWait time.Duration
	for _, c := range cartons {
		if c.Status != entity.CartonStatusReadyForDispatch {
			continue
		}
		dispatch.BatchCount++
		dispatch.InQueue++
		dispatch.TotalQuantity += floor0(c.Quantity - c.DispatchedQty)
		dispatchWait += now.Sub(c.BuiltAt)
		if wo, ok := workOrders[c.WOID]; ok && wo.Overdue(now) {
			dispatch.OverdueCount++
		}
	}
	if dispatch.BatchCount > 0 {
		dispatch.AvgWaitHours = dispatchWait.Hours() / float64(dispatch.BatchCount)
	}
	result = append(result, dispatch)

	return result
}

// stageQuantity 批次在当前工序的有效数量，全部减法结果下夹到零
func stageQuantity(b *entity.ProductionBatch, packedQty float64) float64 {
	switch b.StageType {
	case entity.StageCutting:
		return b.BatchQuantity
	case entity.StageProduction:
		return floor0(b.BatchQuantity - b.ProducedQty)
	case entity.StageQC:
		return floor0(b.ProducedQty - b.QCApprovedQty - b.QCRejectedQty)
	case entity.StagePacking:
		return floor0(b.QCApprovedQty - packedQty)
	}
	return 0
}

// computeExternal 按工艺与按伙伴的外协占用
func (s *WIPService) computeExternal(ctx context.Context, moves []entity.ExternalMove, now time.Time) (byProcess, byPartner []ExternalSummary) {
	processMap := map[string]*ExternalSummary{}
	partnerMap := map[string]*ExternalSummary{}
	partnerIDs := []string{}

	for _, m := range moves {
		wip := floor0(m.QuantitySent - m.QuantityReturned)
		overdue := 0
		if m.OverdueReturn(now) {
			overdue = 1
		}

		p, ok := processMap[m.Process]
		if !ok {
			p = &ExternalSummary{Key: m.Process}
			processMap[m.Process] = p
		}
		p.MoveCount++
		p.WIPQuantity += wip
		p.OverdueCount += overdue

		pt, ok := partnerMap[m.PartnerID]
		if !ok {
			pt = &ExternalSummary{Key: m.PartnerID}
			partnerMap[m.PartnerID] = pt
			partnerIDs = append(partnerIDs, m.PartnerID)
		}
		pt.MoveCount++
		pt.WIPQuantity += wip
		pt.OverdueCount += overdue
	}

	// 伙伴名录只做显示信息补充，加载失败不影响数字
	if partners, err := s.partnerRepo.MapByIDs(ctx, partnerIDs); err == nil {
		for id, summary := range partnerMap {
			if partner, ok := partners[id]; ok {
				summary.PartnerName = partner.Name
			}
		}
	}

	for _, summary := range processMap {
		byProcess = append(byProcess, *summary)
	}
	for _, summary := range partnerMap {
		byPartner = append(byPartner, *summary)
	}
	return byProcess, byPartner
}

func computeCartonFigures(cartons []entity.Carton) CartonFigures {
	var figures CartonFigures
	for _, c := range cartons {
		switch c.Status {
		case entity.CartonStatusPacked:
			figures.PackedCount++
			figures.PackedQty += c.Quantity
		case entity.CartonStatusReadyForDispatch:
			figures.ReadyCount++
			figures.ReadyQty += floor0(c.Quantity - c.DispatchedQty)
		}
		figures.DispatchedQty += c.DispatchedQty
	}
	return figures
}

// cacheSnapshot 快照写入Redis。纯展示用缓存，失败只记日志。
func (s *WIPService) cacheSnapshot(ctx context.Context, snap *WIPSnapshot) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, wipSnapshotKey, data, s.snapshotTTL).Err(); err != nil {
		s.logger.Warn("wip snapshot cache write failed", zap.Error(err))
	}
}

// refreshStageHints 机会性重写每个工单的展示用工序提示：
// 取该工单活跃批次中最靠后的工序。提示只存Redis，永远不会回写工单表，
// 消费方必须把它当作过期的展示信息。
func (s *WIPService) refreshStageHints(ctx context.Context, batches []entity.ProductionBatch) {
	if s.rdb == nil {
		return
	}
	hints := map[string]string{}
	for _, b := range batches {
		current, ok := hints[b.WorkOrderID]
		if !ok || stageOrder[b.StageType] > stageOrder[current] {
			hints[b.WorkOrderID] = b.StageType
		}
	}
	for woID, stage := range hints {
		if err := s.rdb.Set(ctx, stageHintKeyPrefix+woID, stage, s.snapshotTTL*10).Err(); err != nil {
			s.logger.Warn("stage hint write failed", zap.String("work_order_id", woID), zap.Error(err))
			return
		}
	}
}

// StageHint 工单的展示用工序提示（可能过期，仅供界面粗略显示）
func (s *WIPService) StageHint(ctx context.Context, workOrderID string) (string, error) {
	if s.rdb == nil {
		return "", nil
	}
	hint, err := s.rdb.Get(ctx, stageHintKeyPrefix+workOrderID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return hint, err
}

func floor0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
