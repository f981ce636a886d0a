package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/izzyftw1/rvi-sub006/internal/mes/service"
)

// RegistryHandler 量具与外协方台账处理器
type RegistryHandler struct {
	svc *service.RegistryService
}

func NewRegistryHandler(svc *service.RegistryService) *RegistryHandler {
	return &RegistryHandler{svc: svc}
}

// CreateInstrument 新建量具
// POST /api/v1/mes/instruments
func (h *RegistryHandler) CreateInstrument(c *gin.Context) {
	var req service.CreateInstrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	instrument, err := h.svc.CreateInstrument(c.Request.Context(), req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, instrument)
}

// ListInstruments 量具列表
// GET /api/v1/mes/instruments
func (h *RegistryHandler) ListInstruments(c *gin.Context) {
	instruments, err := h.svc.ListInstruments(c.Request.Context())
	if err != nil {
		InternalError(c, "获取量具列表失败: "+err.Error())
		return
	}
	Success(c, instruments)
}

// CheckCalibration 查询量具校验状态
// GET /api/v1/mes/instruments/:id/calibration
func (h *RegistryHandler) CheckCalibration(c *gin.Context) {
	status, err := h.svc.CheckCalibration(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"instrument_id": c.Param("id"), "calibration_status": status})
}

// CreatePartner 新建外协方
// POST /api/v1/mes/partners
func (h *RegistryHandler) CreatePartner(c *gin.Context) {
	var req service.CreatePartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	partner, err := h.svc.CreatePartner(c.Request.Context(), req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, partner)
}

// ListPartners 外协方列表
// GET /api/v1/mes/partners
func (h *RegistryHandler) ListPartners(c *gin.Context) {
	partners, err := h.svc.ListPartners(c.Request.Context())
	if err != nil {
		InternalError(c, "获取外协方列表失败: "+err.Error())
		return
	}
	Success(c, partners)
}
