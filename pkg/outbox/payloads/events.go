package payloads

import (
	"github.com/google/uuid"
)

// OrderSellerShare is one seller's slice of a settled order, with the fee
// split already applied.
type OrderSellerShare struct {
	SellerID   uuid.UUID `json:"seller_id"`
	LineCount  int       `json:"line_count"`
	GrossCents int64     `json:"gross_cents"`
	FeeCents   int64     `json:"fee_cents"`
	NetCents   int64     `json:"net_cents"`
}

// OrderReceivedEvent announces a settled order. Consumers fan the seller
// shares out into per-seller notifications.
type OrderReceivedEvent struct {
	OrderID     uuid.UUID          `json:"order_id"`
	BuyerID     uuid.UUID          `json:"buyer_id"`
	LineCount   int                `json:"line_count"`
	AmountCents int64              `json:"amount_cents"`
	Sellers     []OrderSellerShare `json:"sellers"`
}

// ProductOutOfStockEvent is emitted when a settlement leaves a listing with
// zero remaining quantity.
type ProductOutOfStockEvent struct {
	ProductID   uuid.UUID `json:"product_id"`
	SellerID    uuid.UUID `json:"seller_id"`
	OrderID     uuid.UUID `json:"order_id"`
	ProductName string    `json:"product_name"`
}
