package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tradeyard/tradeyard-backend/pkg/enums"
)

// LedgerEvent records an immutable money movement produced by a settlement.
// SellerID is nil for buyer debits and platform fee rows.
type LedgerEvent struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	BuyerID     uuid.UUID             `gorm:"column:buyer_id;type:uuid;not null"`
	SellerID    *uuid.UUID            `gorm:"column:seller_id;type:uuid"`
	Type        enums.LedgerEventType `gorm:"column:type;type:ledger_event_type_enum;not null"`
	AmountCents int64                 `gorm:"column:amount_cents;not null"`
	Metadata    json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (l *LedgerEvent) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
