package service

import (
	"context"
	"errors"
	"testing"

	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
	"github.com/izzyftw1/rvi-sub006/internal/mes/repository"
	"github.com/izzyftw1/rvi-sub006/internal/mes/testutil"
)

func TestSendAndReturnFromExternal(t *testing.T) {
	services, repos, db := setupServiceTest(t)
	ctx := context.Background()
	wo := testutil.SeedWorkOrder(t, db, "WO-EXT-001", 300)
	partner := testutil.SeedPartner(t, db, "EXT-PT-01", "电镀厂A", "plating")

	batch, err := services.Batch.GetOrCreateBatch(ctx, wo.ID, 0)
	if err != nil {
		t.Fatalf("GetOrCreateBatch failed: %v", err)
	}
	if _, err := services.Batch.MoveBatchToStage(ctx, batch.ID, MoveStageRequest{NewStage: entity.StageProduction}); err != nil {
		t.Fatalf("move to production failed: %v", err)
	}

	// 名录外的伙伴拒绝外发
	_, err = services.External.SendToExternal(ctx, batch.ID, SendToExternalRequest{
		Process:      "plating",
		PartnerID:    "00000000-0000-0000-0000-000000000000",
		QuantitySent: 200,
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("unknown partner must be rejected, got %v", err)
	}

	move, err := services.External.SendToExternal(ctx, batch.ID, SendToExternalRequest{
		Process:            "plating",
		PartnerID:          partner.ID,
		QuantitySent:       200,
		ExpectedReturnDate: "2026-09-15",
		RequiresQCOnReturn: true,
	})
	if err != nil {
		t.Fatalf("SendToExternal failed: %v", err)
	}
	if move.Status != entity.MoveStatusSent || move.QuantitySent != 200 {
		t.Fatalf("unexpected move: %+v", move)
	}
	if move.ExpectedReturnDate == nil {
		t.Fatalf("expected return date not parsed")
	}

	sent, _ := repos.Batch.FindByID(ctx, batch.ID)
	if sent.StageType != entity.StageExternal {
		t.Fatalf("batch should be at external, got %s", sent.StageType)
	}
	if !sent.RequiresQCOnReturn {
		t.Fatalf("recheck flag should be set on send")
	}

	// 部分回厂：流转置 partial，批次留在 external
	move, err = services.External.ReturnFromExternal(ctx, move.ID, ReturnFromExternalRequest{QuantityReturned: 120})
	if err != nil {
		t.Fatalf("partial return failed: %v", err)
	}
	if move.Status != entity.MoveStatusPartial {
		t.Fatalf("expected partial status, got %s", move.Status)
	}
	partial, _ := repos.Batch.FindByID(ctx, batch.ID)
	if partial.StageType != entity.StageExternal {
		t.Fatalf("batch must stay at external until fully returned, got %s", partial.StageType)
	}

	// 回齐（含拒收）：流转关闭，批次进入 qc，外发字段对清空
	move, err = services.External.ReturnFromExternal(ctx, move.ID, ReturnFromExternalRequest{
		QuantityReturned: 70,
		QuantityRejected: 10,
	})
	if err != nil {
		t.Fatalf("final return failed: %v", err)
	}
	if move.Status != entity.MoveStatusReturned || move.ActualReturnDate == nil {
		t.Fatalf("move should be closed with return date, got %+v", move)
	}

	returned, _ := repos.Batch.FindByID(ctx, batch.ID)
	if returned.StageType != entity.StageQC {
		t.Fatalf("fully returned batch should move to qc, got %s", returned.StageType)
	}
	if returned.ExternalProcessType != nil || returned.ExternalPartnerID != nil {
		t.Fatalf("external field pair must be cleared on return")
	}
	if returned.ExternalReturnedAt == nil {
		t.Fatalf("return timestamp must be stamped")
	}

	// 已关闭流转不能再登记
	_, err = services.External.ReturnFromExternal(ctx, move.ID, ReturnFromExternalRequest{QuantityReturned: 1})
	if err == nil {
		t.Fatalf("closed move must refuse further returns")
	}
}

func TestBuildCartonNumbering(t *testing.T) {
	services, _, db := setupServiceTest(t)
	ctx := context.Background()
	wo := testutil.SeedWorkOrder(t, db, "WO-EXT-002", 300)

	batchA, err := services.Batch.GetOrCreateBatch(ctx, wo.ID, 0)
	if err != nil {
		t.Fatalf("GetOrCreateBatch failed: %v", err)
	}

	c1, err := services.External.BuildCarton(ctx, batchA.ID, BuildCartonRequest{Quantity: 20})
	if err != nil {
		t.Fatalf("BuildCarton failed: %v", err)
	}
	c2, err := services.External.BuildCarton(ctx, batchA.ID, BuildCartonRequest{Quantity: 30})
	if err != nil {
		t.Fatalf("BuildCarton failed: %v", err)
	}
	if c1.CartonNo != 1 || c2.CartonNo != 2 {
		t.Fatalf("carton numbers must increment within the work order, got %d/%d", c1.CartonNo, c2.CartonNo)
	}

	ready, err := services.External.MarkCartonReady(ctx, c1.ID)
	if err != nil {
		t.Fatalf("MarkCartonReady failed: %v", err)
	}
	if ready.Status != entity.CartonStatusReadyForDispatch {
		t.Fatalf("expected ready_for_dispatch, got %s", ready.Status)
	}
}
