package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/izzyftw1/rvi-sub006/internal/mes/repository"
	"github.com/izzyftw1/rvi-sub006/internal/mes/service"
	"github.com/izzyftw1/rvi-sub006/internal/mes/sse"
)

// Handlers MES处理器集合
type Handlers struct {
	WorkOrder *WorkOrderHandler
	Batch     *BatchHandler
	QC        *QCHandler
	External  *ExternalHandler
	Registry  *RegistryHandler
	WIP       *WIPHandler
	SSE       *SSEHandler
}

// NewHandlers 创建MES处理器集合
func NewHandlers(services *service.Services, hub *sse.Hub) *Handlers {
	return &Handlers{
		WorkOrder: NewWorkOrderHandler(services.WorkOrder, services.WIP),
		Batch:     NewBatchHandler(services.Batch),
		QC:        NewQCHandler(services.QC),
		External:  NewExternalHandler(services.External),
		Registry:  NewRegistryHandler(services.Registry),
		WIP:       NewWIPHandler(services.WIP),
		SSE:       NewSSEHandler(hub),
	}
}

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// RespondError 按错误分类映射响应：
// 业务校验 → 40000，不存在 → 40400，乐观锁冲突 → 40900，其余 → 50000
func RespondError(c *gin.Context, err error) {
	var transitionErr *service.InvalidTransitionError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		NotFound(c, "记录不存在")
	case errors.Is(err, repository.ErrVersionConflict):
		Conflict(c, "批次已被其他人修改，请刷新后重试")
	case errors.As(err, &transitionErr),
		errors.Is(err, service.ErrWaiveReasonRequired),
		errors.Is(err, service.ErrInstrumentRequired),
		errors.Is(err, service.ErrInstrumentOverdue),
		errors.Is(err, service.ErrQCNotRequiredOnReturn),
		errors.Is(err, service.ErrBatchEnded),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrDispatchNotAllowed),
		errors.Is(err, service.ErrProductionNotAllowed):
		BadRequest(c, err.Error())
	default:
		InternalError(c, err.Error())
	}
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

func totalPages(total int64, pageSize int) int {
	pages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		pages++
	}
	return pages
}
