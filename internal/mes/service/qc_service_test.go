package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
	"github.com/izzyftw1/rvi-sub006/internal/mes/testutil"
)

// TestQCGateScenario 典型批次走完三道厂内质检门：
// 来料通过 → 首件豁免 → 报产 480/10 → 末检通过，合格数 470，放行发运
func TestQCGateScenario(t *testing.T) {
	services, _, db := setupServiceTest(t)
	ctx := context.Background()
	wo := testutil.SeedWorkOrder(t, db, "WO-QC-001", 500)
	due := time.Now().Add(90 * 24 * time.Hour)
	instrument := testutil.SeedInstrument(t, db, "INS-001", &due)

	batch, err := services.Batch.GetOrCreateBatch(ctx, wo.ID, 0)
	if err != nil {
		t.Fatalf("GetOrCreateBatch failed: %v", err)
	}
	if batch.ProductionAllowed || batch.DispatchAllowed {
		t.Fatalf("fresh batch must not be pre-approved")
	}

	// 来料通过：单门不足以放行生产
	result, err := services.QC.SubmitBatchQC(ctx, batch.ID, SubmitQCRequest{
		QCType: entity.QCTypeMaterial,
		Result: "pass",
	}, "qc-01")
	if err != nil {
		t.Fatalf("material QC failed: %v", err)
	}
	if result.Batch.ProductionAllowed {
		t.Fatalf("material pass alone must not allow production")
	}
	if result.Batch.QCMaterialApprovedBy != "qc-01" || result.Batch.QCMaterialApprovedAt == nil {
		t.Fatalf("material gate approver not recorded")
	}

	// 首件豁免：豁免与通过对派生许可完全等价
	result, err = services.QC.SubmitBatchQC(ctx, batch.ID, SubmitQCRequest{
		QCType:       entity.QCTypeFirstPiece,
		Result:       "waived",
		WaiveReason:  "urgent override",
		InstrumentID: instrument.ID,
	}, "qc-02")
	if err != nil {
		t.Fatalf("first piece waiver failed: %v", err)
	}
	if !result.Batch.ProductionAllowed {
		t.Fatalf("waived first piece must allow production like a pass")
	}
	if result.Batch.DispatchAllowed {
		t.Fatalf("dispatch must still wait for the final gate")
	}
	if result.Batch.QCFirstPieceStatus != entity.QCStatusWaived {
		t.Fatalf("gate status should record the waiver, got %s", result.Batch.QCFirstPieceStatus)
	}
	if result.Record == nil || result.Record.WaiveReason != "urgent override" {
		t.Fatalf("audit record must keep the waive reason")
	}

	// 报产 480，其中不良 10
	if _, err := services.Batch.RecordProduction(ctx, batch.ID, RecordProductionRequest{
		Quantity:    480,
		RejectedQty: 10,
	}, "op-01"); err != nil {
		t.Fatalf("RecordProduction failed: %v", err)
	}

	// 末检通过：合格数 = 报产 - 不良
	result, err = services.QC.SubmitBatchQC(ctx, batch.ID, SubmitQCRequest{
		QCType:            entity.QCTypeFinal,
		Result:            "pass",
		InspectedQuantity: 480,
	}, "qc-03")
	if err != nil {
		t.Fatalf("final QC failed: %v", err)
	}
	if result.Batch.QCApprovedQty != 470 {
		t.Fatalf("expected approved qty 470, got %v", result.Batch.QCApprovedQty)
	}
	if !result.Batch.DispatchAllowed {
		t.Fatalf("all gates satisfied, dispatch must be allowed")
	}
}

func TestWaiverRequiresReason(t *testing.T) {
	services, _, db := setupServiceTest(t)
	ctx := context.Background()
	wo := testutil.SeedWorkOrder(t, db, "WO-QC-002", 100)

	batch, err := services.Batch.GetOrCreateBatch(ctx, wo.ID, 0)
	if err != nil {
		t.Fatalf("GetOrCreateBatch failed: %v", err)
	}

	// 四道门无一例外：无理由豁免在任何写入前被拒绝
	for _, qcType := range []string{
		entity.QCTypeMaterial,
		entity.QCTypeFirstPiece,
		entity.QCTypeFinal,
		entity.QCTypePostExternal,
	} {
		_, err := services.QC.SubmitBatchQC(ctx, batch.ID, SubmitQCRequest{
			QCType: qcType,
			Result: "waived",
		}, "qc-01")
		if !errors.Is(err, ErrWaiveReasonRequired) {
			t.Fatalf("%s: waiver without reason must be rejected, got %v", qcType, err)
		}
	}

	records, err := services.QC.ListQCRecords(ctx, batch.ID)
	if err != nil {
		t.Fatalf("ListQCRecords failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("rejected submissions must not leave audit records, got %d", len(records))
	}

	// 备注可以兜底作为豁免理由
	result, err := services.QC.SubmitBatchQC(ctx, batch.ID, SubmitQCRequest{
		QCType:  entity.QCTypeMaterial,
		Result:  "waived",
		Remarks: "客户现场急用，凭历史批次放行",
	}, "qc-01")
	if err != nil {
		t.Fatalf("waiver with remarks fallback failed: %v", err)
	}
	if result.Record.WaiveReason == "" {
		t.Fatalf("remarks fallback must be stored as the waive reason")
	}
}

func TestFirstPieceInstrumentRules(t *testing.T) {
	services, _, db := setupServiceTest(t)
	ctx := context.Background()
	wo := testutil.SeedWorkOrder(t, db, "WO-QC-003", 100)

	batch, err := services.Batch.GetOrCreateBatch(ctx, wo.ID, 0)
	if err != nil {
		t.Fatalf("GetOrCreateBatch failed: %v", err)
	}

	// 未选量具
	_, err = services.QC.SubmitBatchQC(ctx, batch.ID, SubmitQCRequest{
		QCType: entity.QCTypeFirstPiece,
		Result: "pass",
	}, "qc-01")
	if !errors.Is(err, ErrInstrumentRequired) {
		t.Fatalf("first piece without instrument must be rejected, got %v", err)
	}

	// 校准过期：整单硬阻断
	overdueDate := time.Now().Add(-24 * time.Hour)
	overdue := testutil.SeedInstrument(t, db, "INS-OVD", &overdueDate)
	_, err = services.QC.SubmitBatchQC(ctx, batch.ID, SubmitQCRequest{
		QCType:       entity.QCTypeFirstPiece,
		Result:       "pass",
		InstrumentID: overdue.ID,
	}, "qc-01")
	if !errors.Is(err, ErrInstrumentOverdue) {
		t.Fatalf("overdue instrument must block first piece, got %v", err)
	}

	// 未登记校准到期日视同过期
	unregistered := testutil.SeedInstrument(t, db, "INS-NIL", nil)
	_, err = services.QC.SubmitBatchQC(ctx, batch.ID, SubmitQCRequest{
		QCType:       entity.QCTypeFirstPiece,
		Result:       "pass",
		InstrumentID: unregistered.ID,
	}, "qc-01")
	if !errors.Is(err, ErrInstrumentOverdue) {
		t.Fatalf("instrument without due date must block first piece, got %v", err)
	}

	// 有效量具：通过并在审计记录上留痕
	due := time.Now().Add(30 * 24 * time.Hour)
	valid := testutil.SeedInstrument(t, db, "INS-OK", &due)
	result, err := services.QC.SubmitBatchQC(ctx, batch.ID, SubmitQCRequest{
		QCType:       entity.QCTypeFirstPiece,
		Result:       "pass",
		InstrumentID: valid.ID,
	}, "qc-01")
	if err != nil {
		t.Fatalf("first piece with valid instrument failed: %v", err)
	}
	if result.Record.InstrumentID == nil || *result.Record.InstrumentID != valid.ID {
		t.Fatalf("audit record must keep the instrument used")
	}
}

func TestPostExternalQCClearsRecheckFlag(t *testing.T) {
	services, repos, db := setupServiceTest(t)
	ctx := context.Background()
	wo := testutil.SeedWorkOrder(t, db, "WO-QC-004", 100)

	batch, err := services.Batch.GetOrCreateBatch(ctx, wo.ID, 0)
	if err != nil {
		t.Fatalf("GetOrCreateBatch failed: %v", err)
	}

	// 未标记复检的批次拒绝回厂检提交
	_, err = services.QC.SubmitBatchQC(ctx, batch.ID, SubmitQCRequest{
		QCType: entity.QCTypePostExternal,
		Result: "pass",
	}, "qc-01")
	if !errors.Is(err, ErrQCNotRequiredOnReturn) {
		t.Fatalf("post_external QC on unmarked batch must be rejected, got %v", err)
	}

	batch.RequiresQCOnReturn = true
	if err := repos.Batch.Update(ctx, batch); err != nil {
		t.Fatalf("Failed to mark recheck flag: %v", err)
	}

	// fail 同样清除复检标记：检验动作本身记为已处理
	result, err := services.QC.SubmitBatchQC(ctx, batch.ID, SubmitQCRequest{
		QCType: entity.QCTypePostExternal,
		Result: "fail",
	}, "qc-01")
	if err != nil {
		t.Fatalf("post_external fail submission failed: %v", err)
	}
	if result.Batch.RequiresQCOnReturn {
		t.Fatalf("recheck flag must be cleared after the inspection")
	}
	if result.Batch.PostExternalQCStatus != entity.QCStatusFailed {
		t.Fatalf("expected post_external status failed, got %s", result.Batch.PostExternalQCStatus)
	}

	// 标记已清除，重复提交被拒绝
	_, err = services.QC.SubmitBatchQC(ctx, batch.ID, SubmitQCRequest{
		QCType: entity.QCTypePostExternal,
		Result: "pass",
	}, "qc-01")
	if !errors.Is(err, ErrQCNotRequiredOnReturn) {
		t.Fatalf("second post_external QC must be rejected, got %v", err)
	}
}

func TestFailedGateRevokesPermissions(t *testing.T) {
	services, repos, db := setupServiceTest(t)
	ctx := context.Background()
	wo := testutil.SeedWorkOrder(t, db, "WO-QC-005", 100)

	batch, err := services.Batch.GetOrCreateBatch(ctx, wo.ID, 0)
	if err != nil {
		t.Fatalf("GetOrCreateBatch failed: %v", err)
	}
	passGates(t, repos, batch)

	// 来料门复判不合格：两个派生许可一并撤销
	result, err := services.QC.SubmitBatchQC(ctx, batch.ID, SubmitQCRequest{
		QCType: entity.QCTypeMaterial,
		Result: "fail",
	}, "qc-01")
	if err != nil {
		t.Fatalf("material fail submission failed: %v", err)
	}
	if result.Batch.ProductionAllowed || result.Batch.DispatchAllowed {
		t.Fatalf("failed gate must revoke derived permissions")
	}

	_, err = services.Batch.RecordProduction(ctx, batch.ID, RecordProductionRequest{Quantity: 10}, "op-01")
	if !errors.Is(err, ErrProductionNotAllowed) {
		t.Fatalf("production after gate failure must be refused, got %v", err)
	}
}

func TestQCOnEndedBatchAppendsHistoryOnly(t *testing.T) {
	services, repos, db := setupServiceTest(t)
	ctx := context.Background()
	wo := testutil.SeedWorkOrder(t, db, "WO-QC-006", 100)

	batch, err := services.Batch.GetOrCreateBatch(ctx, wo.ID, 0)
	if err != nil {
		t.Fatalf("GetOrCreateBatch failed: %v", err)
	}

	now := time.Now()
	batch.EndedAt = &now
	if err := repos.Batch.Update(ctx, batch); err != nil {
		t.Fatalf("Failed to close batch: %v", err)
	}

	result, err := services.QC.SubmitBatchQC(ctx, batch.ID, SubmitQCRequest{
		QCType: entity.QCTypeMaterial,
		Result: "pass",
	}, "qc-01")
	if err != nil {
		t.Fatalf("QC on ended batch should still append history: %v", err)
	}
	if result.Warning == "" {
		t.Fatalf("ended batch submission must carry a warning")
	}
	if result.Record == nil {
		t.Fatalf("history record must still be written")
	}

	reloaded, err := repos.Batch.FindByID(ctx, batch.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.QCMaterialStatus != entity.QCStatusPending {
		t.Fatalf("ended batch gate fields are immutable, got %s", reloaded.QCMaterialStatus)
	}
}
