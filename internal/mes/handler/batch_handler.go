package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/izzyftw1/rvi-sub006/internal/mes/service"
)

// BatchHandler 批次处理器
type BatchHandler struct {
	svc *service.BatchService
}

func NewBatchHandler(svc *service.BatchService) *BatchHandler {
	return &BatchHandler{svc: svc}
}

// GetOrCreate 取得工单当前应使用的批次（无则新建）
// POST /api/v1/mes/work-orders/:id/batches?gap_threshold_days=7
func (h *BatchHandler) GetOrCreate(c *gin.Context) {
	workOrderID := c.Param("id")

	gapDays := 0
	if g := c.Query("gap_threshold_days"); g != "" {
		if v, err := strconv.Atoi(g); err == nil {
			gapDays = v
		}
	}

	batch, err := h.svc.GetOrCreateBatch(c.Request.Context(), workOrderID, gapDays)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, batch)
}

// ListByWorkOrder 工单下全部批次
// GET /api/v1/mes/work-orders/:id/batches
func (h *BatchHandler) ListByWorkOrder(c *gin.Context) {
	batches, err := h.svc.ListByWorkOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "获取批次列表失败: "+err.Error())
		return
	}
	Success(c, batches)
}

// List 批次列表
// GET /api/v1/mes/batches?work_order_id=xxx&stage_type=xxx&active=true
func (h *BatchHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"work_order_id": c.Query("work_order_id"),
		"stage_type":    c.Query("stage_type"),
		"batch_status":  c.Query("batch_status"),
		"active":        c.Query("active"),
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取批次列表失败: "+err.Error())
		return
	}

	Success(c, ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages(total, pageSize),
		},
	})
}

// Get 批次详情
// GET /api/v1/mes/batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	batch, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		NotFound(c, "批次不存在")
		return
	}
	Success(c, batch)
}

// MoveStage 工序流转
// POST /api/v1/mes/batches/:id/stage
func (h *BatchHandler) MoveStage(c *gin.Context) {
	var req service.MoveStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	batch, err := h.svc.MoveBatchToStage(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, batch)
}

// UpdateStatus 只改工序内状态
// PUT /api/v1/mes/batches/:id/status
func (h *BatchHandler) UpdateStatus(c *gin.Context) {
	var req struct {
		NewStatus string `json:"new_status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	batch, err := h.svc.UpdateBatchStatus(c.Request.Context(), c.Param("id"), req.NewStatus)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, batch)
}

// UpdateQuantity 只改批次数量
// PUT /api/v1/mes/batches/:id/quantity
func (h *BatchHandler) UpdateQuantity(c *gin.Context) {
	var req struct {
		Quantity float64 `json:"quantity" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	batch, err := h.svc.UpdateBatchQuantity(c.Request.Context(), c.Param("id"), req.Quantity)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, batch)
}

// RecordProduction 报产
// POST /api/v1/mes/batches/:id/production
func (h *BatchHandler) RecordProduction(c *gin.Context) {
	var req service.RecordProductionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	batch, err := h.svc.RecordProduction(c.Request.Context(), c.Param("id"), req, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, batch)
}

// Dispatch 发运并关闭批次
// POST /api/v1/mes/batches/:id/dispatch
func (h *BatchHandler) Dispatch(c *gin.Context) {
	var req service.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	batch, err := h.svc.DispatchBatch(c.Request.Context(), c.Param("id"), req, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, batch)
}
