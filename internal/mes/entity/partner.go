package entity

import (
	"time"
)

// Partner 外协伙伴名录：流转/WIP 视图的显示信息来源
type Partner struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Code      string    `json:"code" gorm:"size:50;not null;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:128;not null"`
	Processes string    `json:"processes" gorm:"size:255"` // 逗号分隔的工艺列表
	Contact   string    `json:"contact" gorm:"size:128"`
	Phone     string    `json:"phone" gorm:"size:32"`
	Status    string    `json:"status" gorm:"size:20;default:active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Partner) TableName() string {
	return "mes_partners"
}
