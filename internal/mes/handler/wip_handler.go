package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/izzyftw1/rvi-sub006/internal/mes/service"
)

// WIPHandler 在制看板处理器
type WIPHandler struct {
	svc *service.WIPService
}

func NewWIPHandler(svc *service.WIPService) *WIPHandler {
	return &WIPHandler{svc: svc}
}

// Snapshot 完整WIP快照（缓存优先）
// GET /api/v1/mes/wip/snapshot
func (h *WIPHandler) Snapshot(c *gin.Context) {
	snap, err := h.svc.Snapshot(c.Request.Context())
	if err != nil {
		InternalError(c, "获取在制快照失败: "+err.Error())
		return
	}
	Success(c, snap)
}

// Stages 各工序占用汇总
// GET /api/v1/mes/wip/stages
func (h *WIPHandler) Stages(c *gin.Context) {
	snap, err := h.svc.Snapshot(c.Request.Context())
	if err != nil {
		InternalError(c, "获取在制快照失败: "+err.Error())
		return
	}
	Success(c, snap.Stages)
}

// External 外协占用汇总（按工艺 + 按伙伴）
// GET /api/v1/mes/wip/external
func (h *WIPHandler) External(c *gin.Context) {
	snap, err := h.svc.Snapshot(c.Request.Context())
	if err != nil {
		InternalError(c, "获取在制快照失败: "+err.Error())
		return
	}
	Success(c, gin.H{
		"by_process": snap.ByProcess,
		"by_partner": snap.ByPartner,
		"cartons":    snap.Cartons,
	})
}

// Recompute 强制全量重算（绕过缓存）
// POST /api/v1/mes/wip/recompute
func (h *WIPHandler) Recompute(c *gin.Context) {
	snap, err := h.svc.Recompute(c.Request.Context())
	if err != nil {
		InternalError(c, "重算在制快照失败: "+err.Error())
		return
	}
	Success(c, snap)
}
