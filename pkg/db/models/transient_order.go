package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tradeyard/tradeyard-backend/pkg/enums"
	"github.com/tradeyard/tradeyard-backend/pkg/types"
)

// TransientOrder is a live inventory reservation. At most one exists per
// buyer; it either becomes a PurchasedOrder inside the settlement window or
// is released by the reaper.
type TransientOrder struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID         uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null;uniqueIndex"`
	DeliveryAddress *types.Address       `gorm:"column:delivery_address;type:address_t"`
	PaymentMethod   enums.PaymentMethod  `gorm:"column:payment_method;not null"`
	PaymentIntentID *string              `gorm:"column:payment_intent_id"`
	CardLast4       *string              `gorm:"column:card_last4"`
	PlatformFeeRate decimal.Decimal      `gorm:"column:platform_fee_rate;type:numeric(6,4);not null"`
	Lines           []TransientOrderLine `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime;index"`
}

func (t *TransientOrder) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// ExpiresAt returns the settlement deadline for the given window.
func (t TransientOrder) ExpiresAt(window time.Duration) time.Time {
	return t.CreatedAt.Add(window)
}

// TransientOrderLine carries the frozen product state for one reserved line.
type TransientOrderLine struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID  uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Snapshot   ProductSnapshot `gorm:"column:snapshot;type:jsonb;serializer:json;not null"`
	SelfPickup bool            `gorm:"column:self_pickup;not null;default:false"`
	Delivery   bool            `gorm:"column:delivery;not null;default:false"`
	Quantity   int             `gorm:"column:quantity;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (l *TransientOrderLine) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// SubtotalCents is the snapshot price multiplied by the reserved quantity.
func (l TransientOrderLine) SubtotalCents() int64 {
	return l.Snapshot.PriceCents * int64(l.Quantity)
}
