package entity

import (
	"time"
)

// 量具校准状态
const (
	CalibrationValid   = "VALID"
	CalibrationOverdue = "OVERDUE"
)

// Instrument 量具台账：首件检验必须选用校准在有效期内的量具，
// 校准过期对首件提交构成硬阻断。
type Instrument struct {
	ID                 string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Code               string     `json:"code" gorm:"size:50;not null;uniqueIndex"`
	Name               string     `json:"name" gorm:"size:128;not null"`
	InstrumentType     string     `json:"instrument_type" gorm:"size:50"`
	CalibrationDueDate *time.Time `json:"calibration_due_date"`
	Status             string     `json:"status" gorm:"size:20;default:active"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (Instrument) TableName() string {
	return "mes_instruments"
}

// CalibrationStatus 以当前时间判断校准有效性。
// 未登记到期日视为过期，避免未校准量具被用于首件。
func (i *Instrument) CalibrationStatus(now time.Time) string {
	if i.CalibrationDueDate == nil || i.CalibrationDueDate.Before(now) {
		return CalibrationOverdue
	}
	return CalibrationValid
}
