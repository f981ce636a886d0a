package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/izzyftw1/rvi-sub006/internal/mes/entity"
	"github.com/izzyftw1/rvi-sub006/internal/mes/repository"
)

// RegistryService 量具台账与外协伙伴名录。核心只读取它们，
// 这里的维护接口是为基础数据录入准备的。
type RegistryService struct {
	instrumentRepo *repository.InstrumentRepository
	partnerRepo    *repository.PartnerRepository
}

func NewRegistryService(repos *repository.Repositories) *RegistryService {
	return &RegistryService{
		instrumentRepo: repos.Instrument,
		partnerRepo:    repos.Partner,
	}
}

// CreateInstrumentRequest 创建量具请求
type CreateInstrumentRequest struct {
	Code               string `json:"code" binding:"required"`
	Name               string `json:"name" binding:"required"`
	InstrumentType     string `json:"instrument_type"`
	CalibrationDueDate string `json:"calibration_due_date"` // YYYY-MM-DD
}

// CreateInstrument 创建量具
func (s *RegistryService) CreateInstrument(ctx context.Context, req CreateInstrumentRequest) (*entity.Instrument, error) {
	instrument := &entity.Instrument{
		ID:             uuid.New().String(),
		Code:           req.Code,
		Name:           req.Name,
		InstrumentType: req.InstrumentType,
		Status:         "active",
	}
	if req.CalibrationDueDate != "" {
		t, err := time.Parse("2006-01-02", req.CalibrationDueDate)
		if err == nil {
			instrument.CalibrationDueDate = &t
		}
	}
	if err := s.instrumentRepo.Create(ctx, instrument); err != nil {
		return nil, fmt.Errorf("创建量具失败: %w", err)
	}
	return instrument, nil
}

// ListInstruments 量具列表
func (s *RegistryService) ListInstruments(ctx context.Context) ([]entity.Instrument, error) {
	return s.instrumentRepo.List(ctx)
}

// CheckCalibration 查询量具校准状态 VALID / OVERDUE
func (s *RegistryService) CheckCalibration(ctx context.Context, instrumentID string) (string, error) {
	instrument, err := s.instrumentRepo.FindByID(ctx, instrumentID)
	if err != nil {
		return "", err
	}
	return instrument.CalibrationStatus(time.Now()), nil
}

// CreatePartnerRequest 创建外协伙伴请求
type CreatePartnerRequest struct {
	Code      string `json:"code" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Processes string `json:"processes"`
	Contact   string `json:"contact"`
	Phone     string `json:"phone"`
}

// CreatePartner 创建外协伙伴
func (s *RegistryService) CreatePartner(ctx context.Context, req CreatePartnerRequest) (*entity.Partner, error) {
	partner := &entity.Partner{
		ID:        uuid.New().String(),
		Code:      req.Code,
		Name:      req.Name,
		Processes: req.Processes,
		Contact:   req.Contact,
		Phone:     req.Phone,
		Status:    "active",
	}
	if err := s.partnerRepo.Create(ctx, partner); err != nil {
		return nil, fmt.Errorf("创建外协伙伴失败: %w", err)
	}
	return partner, nil
}

// ListPartners 伙伴列表
func (s *RegistryService) ListPartners(ctx context.Context) ([]entity.Partner, error) {
	return s.partnerRepo.List(ctx)
}
