package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/izzyftw1/rvi-sub006/internal/mes/service"
)

// QCHandler 质检处理器
type QCHandler struct {
	svc *service.QCService
}

func NewQCHandler(svc *service.QCService) *QCHandler {
	return &QCHandler{svc: svc}
}

// Submit 提交质检结论
// POST /api/v1/mes/batches/:id/qc
func (h *QCHandler) Submit(c *gin.Context) {
	var req service.SubmitQCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.SubmitBatchQC(c.Request.Context(), c.Param("id"), req, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	// 部分失败（审计记录未落库）不影响整体成功，warning 字段提示调用方
	Success(c, result)
}

// QCData 批次质检汇总视图
// GET /api/v1/mes/batches/:id/qc-data
func (h *QCHandler) QCData(c *gin.Context) {
	data, err := h.svc.GetBatchQCData(c.Request.Context(), c.Param("id"))
	if err != nil {
		NotFound(c, "批次不存在")
		return
	}
	Success(c, data)
}

// Records 批次质检历史
// GET /api/v1/mes/batches/:id/qc-records
func (h *QCHandler) Records(c *gin.Context) {
	records, err := h.svc.ListQCRecords(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "获取质检历史失败: "+err.Error())
		return
	}
	Success(c, records)
}

// UploadReport 上传检验报告/照片
// POST /api/v1/mes/batches/:id/qc-report
func (h *QCHandler) UploadReport(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "没有上传文件")
		return
	}

	src, err := file.Open()
	if err != nil {
		BadRequest(c, "无法读取上传文件: "+err.Error())
		return
	}
	defer src.Close()

	url, err := h.svc.UploadInspectionReport(
		c.Request.Context(),
		c.Param("id"),
		file.Filename,
		file.Size,
		src,
		file.Header.Get("Content-Type"),
	)
	if err != nil {
		Error(c, 50300, "上传失败: "+err.Error())
		return
	}
	Success(c, gin.H{"report_url": url})
}
