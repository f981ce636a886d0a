package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/izzyftw1/rvi-sub006/internal/mes/service"
)

// ExternalHandler 外发流转与装箱处理器
type ExternalHandler struct {
	svc *service.ExternalService
}

func NewExternalHandler(svc *service.ExternalService) *ExternalHandler {
	return &ExternalHandler{svc: svc}
}

// Send 批次外发
// POST /api/v1/mes/batches/:id/external/send
func (h *ExternalHandler) Send(c *gin.Context) {
	var req service.SendToExternalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	move, err := h.svc.SendToExternal(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, move)
}

// Return 外协回厂登记
// POST /api/v1/mes/external-moves/:id/return
func (h *ExternalHandler) Return(c *gin.Context) {
	var req service.ReturnFromExternalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	move, err := h.svc.ReturnFromExternal(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, move)
}

// ListMoves 工单下外发流转记录
// GET /api/v1/mes/work-orders/:id/external-moves
func (h *ExternalHandler) ListMoves(c *gin.Context) {
	moves, err := h.svc.ListMovesByWorkOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "获取外发流转失败: "+err.Error())
		return
	}
	Success(c, moves)
}

// BuildCarton 装箱
// POST /api/v1/mes/batches/:id/cartons
func (h *ExternalHandler) BuildCarton(c *gin.Context) {
	var req service.BuildCartonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	carton, err := h.svc.BuildCarton(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, carton)
}

// ListCartons 批次下纸箱
// GET /api/v1/mes/batches/:id/cartons
func (h *ExternalHandler) ListCartons(c *gin.Context) {
	cartons, err := h.svc.ListCartonsByBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "获取纸箱列表失败: "+err.Error())
		return
	}
	Success(c, cartons)
}

// MarkCartonReady 纸箱转入待发运
// POST /api/v1/mes/cartons/:id/ready
func (h *ExternalHandler) MarkCartonReady(c *gin.Context) {
	carton, err := h.svc.MarkCartonReady(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, carton)
}
