package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CartLine holds one buyer/product pairing. The composite unique index keeps
// the cart to a single line per product.
type CartLine struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID    uuid.UUID `gorm:"column:buyer_id;type:uuid;not null;uniqueIndex:idx_cart_lines_buyer_product"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_cart_lines_buyer_product"`
	SelfPickup bool      `gorm:"column:self_pickup;not null;default:false"`
	Delivery   bool      `gorm:"column:delivery;not null;default:false"`
	Quantity   int       `gorm:"column:quantity;not null;default:1"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *CartLine) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
