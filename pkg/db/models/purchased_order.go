package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tradeyard/tradeyard-backend/pkg/enums"
	"github.com/tradeyard/tradeyard-backend/pkg/types"
)

// PurchasedOrder is the append-only record a settlement produces.
type PurchasedOrder struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID         uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null;index"`
	DeliveryAddress *types.Address       `gorm:"column:delivery_address;type:address_t"`
	PaymentMethod   enums.PaymentMethod  `gorm:"column:payment_method;not null"`
	PaymentIntentID *string              `gorm:"column:payment_intent_id"`
	CardLast4       *string              `gorm:"column:card_last4"`
	PlatformFeeRate decimal.Decimal      `gorm:"column:platform_fee_rate;type:numeric(6,4);not null"`
	TotalCents      int64                `gorm:"column:total_cents;not null"`
	Lines           []PurchasedOrderLine `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime;index"`
}

func (p *PurchasedOrder) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// PurchasedOrderLine mirrors the reserved line it was settled from. SellerID
// is denormalized out of the snapshot so sellers can query received orders.
type PurchasedOrderLine struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID  uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	SellerID   uuid.UUID       `gorm:"column:seller_id;type:uuid;not null;index"`
	Snapshot   ProductSnapshot `gorm:"column:snapshot;type:jsonb;serializer:json;not null"`
	SelfPickup bool            `gorm:"column:self_pickup;not null;default:false"`
	Delivery   bool            `gorm:"column:delivery;not null;default:false"`
	Quantity   int             `gorm:"column:quantity;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (l *PurchasedOrderLine) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// SubtotalCents is the snapshot price multiplied by the purchased quantity.
func (l PurchasedOrderLine) SubtotalCents() int64 {
	return l.Snapshot.PriceCents * int64(l.Quantity)
}
