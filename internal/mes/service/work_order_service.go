package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
)

// CreateWorkOrderRequest 创建工单请求
type CreateWorkOrderRequest struct {
	WOCode           string  `json:"wo_code" binding:"required"`
	Customer         string  `json:"customer"`
	ItemCode         string  `json:"item_code"`
	ItemName         string  `json:"item_name"`
	Quantity         float64 `json:"quantity" binding:"required,gt=0"`
	DueDate          string  `json:"due_date"` // YYYY-MM-DD
	GrossWeightPerPc float64 `json:"gross_weight_per_pc"`
	Notes            string  `json:"notes"`
}

// Create 创建工单
func (s *WorkOrderService) Create(ctx context.Context, req CreateWorkOrderRequest, userID string) (*entity.WorkOrder, error) {
	wo := &entity.WorkOrder{
		ID:               uuid.New().String(),
		WOCode:           req.WOCode,
		Customer:         req.Customer,
		ItemCode:         req.ItemCode,
		ItemName:         req.ItemName,
		Quantity:         req.Quantity,
		GrossWeightPerPc: req.GrossWeightPerPc,
		Notes:            req.Notes,
		CreatedBy:        userID,
	}

	if req.DueDate != "" {
		t, err := time.Parse("2006-01-02", req.DueDate)
		if err == nil {
			wo.DueDate = &t
		}
	}

	if err := s.repo.Create(ctx, wo); err != nil {
		return nil, fmt.Errorf("创建工单失败: %w", err)
	}
	return wo, nil
}

// Get 获取工单详情
func (s *WorkOrderService) Get(ctx context.Context, id string) (*entity.WorkOrder, error) {
	return s.repo.FindByID(ctx, id)
}

// List 分页工单列表
func (s *WorkOrderService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.WorkOrder, int64, error) {
	return s.repo.List(ctx, page, pageSize, filters)
}
