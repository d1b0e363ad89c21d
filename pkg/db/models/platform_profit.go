package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlatformProfit is the singleton fee counter. Settlements increment it in
// the same transaction that credits sellers.
type PlatformProfit struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	TotalCents int64     `gorm:"column:total_cents;not null;default:0"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PlatformProfit) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
