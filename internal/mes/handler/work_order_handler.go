package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/izzyftw1/rvi-sub006/internal/mes/service"
)

// WorkOrderHandler 工单处理器
type WorkOrderHandler struct {
	svc    *service.WorkOrderService
	wipSvc *service.WIPService
}

func NewWorkOrderHandler(svc *service.WorkOrderService, wipSvc *service.WIPService) *WorkOrderHandler {
	return &WorkOrderHandler{svc: svc, wipSvc: wipSvc}
}

// List 工单列表
// GET /api/v1/mes/work-orders?customer=xxx&item_code=xxx
func (h *WorkOrderHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"customer":  c.Query("customer"),
		"item_code": c.Query("item_code"),
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取工单列表失败: "+err.Error())
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

// Create 创建工单
// POST /api/v1/mes/work-orders
func (h *WorkOrderHandler) Create(c *gin.Context) {
	var req service.CreateWorkOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	wo, err := h.svc.Create(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, wo)
}

// Get 工单详情。stage_hint 为展示用提示，可能过期，绝非工序事实来源。
// GET /api/v1/mes/work-orders/:id
func (h *WorkOrderHandler) Get(c *gin.Context) {
	id := c.Param("id")
	wo, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		NotFound(c, "工单不存在")
		return
	}

	hint, _ := h.wipSvc.StageHint(c.Request.Context(), id)
	Success(c, gin.H{
		"work_order": wo,
		"stage_hint": hint,
	})
}
