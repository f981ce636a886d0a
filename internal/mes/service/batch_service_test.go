package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/izzyftw1/rvi-sub006/internal/config"
	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
	"github.com/izzyftw1/rvi-sub006/internal/mes/repository"
	"github.com/izzyftw1/rvi-sub006/internal/mes/sse"
	"github.com/izzyftw1/rvi-sub006/internal/mes/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupServiceTest(t *testing.T) (*Services, *repository.Repositories, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)

	cfg := &config.Config{}
	cfg.Batch.GapThresholdDays = 7
	cfg.Batch.WIPSnapshotTTL = 30 * time.Second

	services := NewServices(repos, nil, nil, sse.NewHub(), cfg, zap.NewNop())
	return services, repos, db
}

// passGates 把来料门与首件门直接置为通过，供下游测试绕开质检流程
func passGates(t *testing.T, repos *repository.Repositories, batch *entity.ProductionBatch) {
	t.Helper()
	batch.QCMaterialStatus = entity.QCStatusPassed
	batch.QCFirstPieceStatus = entity.QCStatusPassed
	batch.RecomputePermissions()
	if err := repos.Batch.Update(context.Background(), batch); err != nil {
		t.Fatalf("Failed to pass gates: %v", err)
	}
}

func TestGetOrCreateBatchIdempotent(t *testing.T) {
	services, _, db := setupServiceTest(t)
	ctx := context.Background()
	wo := testutil.SeedWorkOrder(t, db, "WO-IDEM-001", 500)

	first, err := services.Batch.GetOrCreateBatch(ctx, wo.ID, 0)
	if err != nil {
		t.Fatalf("GetOrCreateBatch failed: %v", err)
	}
	if first.BatchNumber != 1 {
		t.Fatalf("expected batch number 1, got %d", first.BatchNumber)
	}
	if first.TriggerReason != entity.TriggerInitial {
		t.Fatalf("expected trigger initial, got %s", first.TriggerReason)
	}
	if first.StageType != entity.StageCutting || first.BatchStatus != entity.BatchStatusInQueue {
		t.Fatalf("new batch should start at cutting/in_queue, got %s/%s", first.StageType, first.BatchStatus)
	}
	if first.BatchQuantity != 500 {
		t.Fatalf("batch quantity should snapshot work order quantity, got %v", first.BatchQuantity)
	}

	// 阈值窗口内重复调用必须返回同一批次
	second, err := services.Batch.GetOrCreateBatch(ctx, wo.ID, 0)
	if err != nil {
		t.Fatalf("second GetOrCreateBatch failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected idempotent reuse of batch %s, got new batch %s", first.ID, second.ID)
	}

	all, err := services.Batch.ListByWorkOrder(ctx, wo.ID)
	if err != nil {
		t.Fatalf("ListByWorkOrder failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly 1 batch, got %d", len(all))
	}
}

func TestGetOrCreateBatchGapRestart(t *testing.T) {
	services, _, db := setupServiceTest(t)
	ctx := context.Background()
	wo := testutil.SeedWorkOrder(t, db, "WO-GAP-001", 300)

	first, err := services.Batch.GetOrCreateBatch(ctx, wo.ID, 7)
	if err != nil {
		t.Fatalf("GetOrCreateBatch failed: %v", err)
	}

	// 无报产记录时以批次开始时间为最近生产事件：回拨到10天前制造断档
	past := time.Now().Add(-10 * 24 * time.Hour)
	if err := db.Model(&entity.ProductionBatch{}).Where("id = ?", first.ID).
		Update("started_at", past).Error; err != nil {
		t.Fatalf("Failed to backdate batch: %v", err)
	}

	restarted, err := services.Batch.GetOrCreateBatch(ctx, wo.ID, 7)
	if err != nil {
		t.Fatalf("GetOrCreateBatch after gap failed: %v", err)
	}
	if restarted.ID == first.ID {
		t.Fatalf("gap over threshold should open a new batch")
	}
	if restarted.BatchNumber != 2 {
		t.Fatalf("expected batch number 2, got %d", restarted.BatchNumber)
	}
	if restarted.TriggerReason != entity.TriggerGapRestart {
		t.Fatalf("expected trigger gap_restart, got %s", restarted.TriggerReason)
	}
	if restarted.PreviousBatchID == nil || *restarted.PreviousBatchID != first.ID {
		t.Fatalf("new batch must chain back to the closed batch")
	}

	closed, err := services.Batch.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Failed to reload closed batch: %v", err)
	}
	if closed.EndedAt == nil {
		t.Fatalf("old batch must be closed when gap restart opens a new one")
	}
}

func TestGetOrCreateBatchPostDispatch(t *testing.T) {
	services, repos, db := setupServiceTest(t)
	ctx := context.Background()
	wo := testutil.SeedWorkOrder(t, db, "WO-PD-001", 200)

	first, err := services.Batch.GetOrCreateBatch(ctx, wo.ID, 0)
	if err != nil {
		t.Fatalf("GetOrCreateBatch failed: %v", err)
	}

	// 模拟已发运关闭的批次
	now := time.Now()
	first.StageType = entity.StageDispatched
	first.BatchStatus = entity.BatchStatusCompleted
	first.EndedAt = &now
	if err := repos.Batch.Update(ctx, first); err != nil {
		t.Fatalf("Failed to close batch: %v", err)
	}

	next, err := services.Batch.GetOrCreateBatch(ctx, wo.ID, 0)
	if err != nil {
		t.Fatalf("GetOrCreateBatch after dispatch failed: %v", err)
	}
	if next.TriggerReason != entity.TriggerPostDispatch {
		t.Fatalf("expected trigger post_dispatch, got %s", next.TriggerReason)
	}
	if next.BatchNumber != 2 {
		t.Fatalf("expected batch number 2, got %d", next.BatchNumber)
	}
	if next.PreviousBatchID == nil || *next.PreviousBatchID != first.ID {
		t.Fatalf("post_dispatch batch must chain back to the dispatched batch")
	}
}

func TestMoveStageTransitionTable(t *testing.T) {
	services, _, db := setupServiceTest(t)
	ctx := context.Background()
	wo := testutil.SeedWorkOrder(t, db, "WO-MOVE-001", 100)

	batch, err := services.Batch.GetOrCreateBatch(ctx, wo.ID, 0)
	if err != nil {
		t.Fatalf("GetOrCreateBatch failed: %v", err)
	}

	// cutting → qc 不是合法相邻流转
	_, err = services.Batch.MoveBatchToStage(ctx, batch.ID, MoveStageRequest{NewStage: entity.StageQC})
	var transitionErr *InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected InvalidTransitionError for cutting→qc, got %v", err)
	}

	// cutting → production 合法
	moved, err := services.Batch.MoveBatchToStage(ctx, batch.ID, MoveStageRequest{NewStage: entity.StageProduction})
	if err != nil {
		t.Fatalf("cutting→production should succeed: %v", err)
	}
	if moved.StageType != entity.StageProduction || moved.BatchStatus != entity.BatchStatusInQueue {
		t.Fatalf("unexpected stage/status after move: %s/%s", moved.StageType, moved.BatchStatus)
	}

	// production → external 写入外发字段对
	partner := testutil.SeedPartner(t, db, "EXT-001", "电镀厂A", "plating")
	moved, err = services.Batch.MoveBatchToStage(ctx, batch.ID, MoveStageRequest{
		NewStage:            entity.StageExternal,
		ExternalProcessType: "plating",
		ExternalPartnerID:   partner.ID,
		RequiresQCOnReturn:  true,
	})
	if err != nil {
		t.Fatalf("production→external should succeed: %v", err)
	}
	if moved.ExternalProcessType == nil || *moved.ExternalProcessType != "plating" {
		t.Fatalf("external process type not recorded")
	}
	if moved.ExternalPartnerID == nil || *moved.ExternalPartnerID != partner.ID {
		t.Fatalf("external partner not recorded")
	}
	if moved.ExternalSentAt == nil || !moved.RequiresQCOnReturn {
		t.Fatalf("external send timestamp / recheck flag not recorded")
	}

	// external → qc 强制清空外发字段对并盖回厂时间
	moved, err = services.Batch.MoveBatchToStage(ctx, batch.ID, MoveStageRequest{NewStage: entity.StageQC})
	if err != nil {
		t.Fatalf("external→qc should succeed: %v", err)
	}
	if moved.ExternalProcessType != nil || moved.ExternalPartnerID != nil {
		t.Fatalf("external field pair must be cleared outside external stage")
	}
	if moved.ExternalReturnedAt == nil {
		t.Fatalf("leaving external must stamp the return time")
	}
}

func TestBatchOptimisticVersionConflict(t *testing.T) {
	services, repos, db := setupServiceTest(t)
	ctx := context.Background()
	wo := testutil.SeedWorkOrder(t, db, "WO-VER-001", 100)

	batch, err := services.Batch.GetOrCreateBatch(ctx, wo.ID, 0)
	if err != nil {
		t.Fatalf("GetOrCreateBatch failed: %v", err)
	}

	// 两个并发读到同一版本
	copyA, err := repos.Batch.FindByID(ctx, batch.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	copyB, err := repos.Batch.FindByID(ctx, batch.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}

	copyA.BatchStatus = entity.BatchStatusInProgress
	if err := repos.Batch.Update(ctx, copyA); err != nil {
		t.Fatalf("first writer should win: %v", err)
	}

	copyB.BatchStatus = entity.BatchStatusCompleted
	err = repos.Batch.Update(ctx, copyB)
	if !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("stale writer must get ErrVersionConflict, got %v", err)
	}

	reloaded, err := repos.Batch.FindByID(ctx, batch.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.BatchStatus != entity.BatchStatusInProgress {
		t.Fatalf("stale write must not overwrite the first writer, got %s", reloaded.BatchStatus)
	}
}

func TestRecordProductionRequiresGates(t *testing.T) {
	services, repos, db := setupServiceTest(t)
	ctx := context.Background()
	wo := testutil.SeedWorkOrder(t, db, "WO-PROD-001", 600)

	batch, err := services.Batch.GetOrCreateBatch(ctx, wo.ID, 0)
	if err != nil {
		t.Fatalf("GetOrCreateBatch failed: %v", err)
	}

	_, err = services.Batch.RecordProduction(ctx, batch.ID, RecordProductionRequest{Quantity: 50}, "op-01")
	if !errors.Is(err, ErrProductionNotAllowed) {
		t.Fatalf("production before gates must be refused, got %v", err)
	}

	passGates(t, repos, batch)

	updated, err := services.Batch.RecordProduction(ctx, batch.ID, RecordProductionRequest{Quantity: 50, RejectedQty: 2}, "op-01")
	if err != nil {
		t.Fatalf("RecordProduction failed: %v", err)
	}
	if updated.ProducedQty != 50 || updated.QCRejectedQty != 2 {
		t.Fatalf("production rollup wrong: produced=%v rejected=%v", updated.ProducedQty, updated.QCRejectedQty)
	}
	if updated.BatchStatus != entity.BatchStatusInProgress {
		t.Fatalf("first report should move batch to in_progress, got %s", updated.BatchStatus)
	}

	updated, err = services.Batch.RecordProduction(ctx, batch.ID, RecordProductionRequest{Quantity: 30}, "op-02")
	if err != nil {
		t.Fatalf("second RecordProduction failed: %v", err)
	}
	if updated.ProducedQty != 80 {
		t.Fatalf("production must accumulate, got %v", updated.ProducedQty)
	}
}

func TestDispatchClosesBatchAndDecrementsCartons(t *testing.T) {
	services, repos, db := setupServiceTest(t)
	ctx := context.Background()
	wo := testutil.SeedWorkOrder(t, db, "WO-DISP-001", 100)

	batch, err := services.Batch.GetOrCreateBatch(ctx, wo.ID, 0)
	if err != nil {
		t.Fatalf("GetOrCreateBatch failed: %v", err)
	}

	_, err = services.Batch.DispatchBatch(ctx, batch.ID, DispatchRequest{Quantity: 10}, "op-01")
	if !errors.Is(err, ErrDispatchNotAllowed) {
		t.Fatalf("dispatch before final gate must be refused, got %v", err)
	}

	passGates(t, repos, batch)
	batch, _ = repos.Batch.FindByID(ctx, batch.ID)
	batch.QCFinalStatus = entity.QCStatusPassed
	batch.ProducedQty = 100
	batch.QCApprovedQty = 100
	batch.RecomputePermissions()
	if err := repos.Batch.Update(ctx, batch); err != nil {
		t.Fatalf("Failed to prepare dispatchable batch: %v", err)
	}

	carton1, err := services.External.BuildCarton(ctx, batch.ID, BuildCartonRequest{Quantity: 60})
	if err != nil {
		t.Fatalf("BuildCarton failed: %v", err)
	}
	carton2, err := services.External.BuildCarton(ctx, batch.ID, BuildCartonRequest{Quantity: 40})
	if err != nil {
		t.Fatalf("BuildCarton failed: %v", err)
	}
	if carton1.CartonNo != 1 || carton2.CartonNo != 2 {
		t.Fatalf("carton numbers must increment per work order, got %d/%d", carton1.CartonNo, carton2.CartonNo)
	}

	dispatched, err := services.Batch.DispatchBatch(ctx, batch.ID, DispatchRequest{Quantity: 70}, "op-01")
	if err != nil {
		t.Fatalf("DispatchBatch failed: %v", err)
	}
	if dispatched.EndedAt == nil || dispatched.StageType != entity.StageDispatched {
		t.Fatalf("dispatch must close the batch, got stage=%s ended=%v", dispatched.StageType, dispatched.EndedAt)
	}

	// 箱号顺序冲减: 60 全部发运，40 冲减 10
	cartons, err := services.External.ListCartonsByBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("ListCartonsByBatch failed: %v", err)
	}
	if len(cartons) != 2 {
		t.Fatalf("expected 2 cartons, got %d", len(cartons))
	}
	if cartons[0].DispatchedQty != 60 || cartons[0].Status != entity.CartonStatusDispatched {
		t.Fatalf("first carton should be fully dispatched: qty=%v status=%s", cartons[0].DispatchedQty, cartons[0].Status)
	}
	if cartons[1].DispatchedQty != 10 || cartons[1].Status == entity.CartonStatusDispatched {
		t.Fatalf("second carton should be partially dispatched: qty=%v status=%s", cartons[1].DispatchedQty, cartons[1].Status)
	}

	// 已关闭批次拒绝任何后续操作
	_, err = services.Batch.DispatchBatch(ctx, batch.ID, DispatchRequest{Quantity: 10}, "op-01")
	if !errors.Is(err, ErrBatchEnded) {
		t.Fatalf("dispatch on ended batch must fail, got %v", err)
	}
	_, err = services.Batch.MoveBatchToStage(ctx, batch.ID, MoveStageRequest{NewStage: entity.StageProduction})
	if !errors.Is(err, ErrBatchEnded) {
		t.Fatalf("stage move on ended batch must fail, got %v", err)
	}
}
