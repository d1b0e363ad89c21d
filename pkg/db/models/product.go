package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tradeyard/tradeyard-backend/pkg/types"
)

// Product represents the canonical seller listing. Quantity counters are only
// ever moved inside reservation, settlement and recovery transactions.
type Product struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	SellerID       uuid.UUID      `gorm:"column:seller_id;type:uuid;not null;index"`
	Name           string         `gorm:"column:name;not null"`
	PriceCents     int64          `gorm:"column:price_cents;not null"`
	Quantity       int            `gorm:"column:quantity;not null;default:0"`
	QuantitySold   int            `gorm:"column:quantity_sold;not null;default:0"`
	OrdersReceived int            `gorm:"column:orders_received;not null;default:0"`
	SelfPickup     bool           `gorm:"column:self_pickup;not null;default:false"`
	Delivery       bool           `gorm:"column:delivery;not null;default:false"`
	PickupAddress  *types.Address `gorm:"column:pickup_address;type:address_t"`
	Country        string         `gorm:"column:country;not null"`
	IsActive       bool           `gorm:"column:is_active;not null"`
	IsBlocked      bool           `gorm:"column:is_blocked;not null;default:false"`
	BoostPlan      *string        `gorm:"column:boost_plan"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
