package models

import (
	"github.com/google/uuid"

	"github.com/tradeyard/tradeyard-backend/pkg/types"
)

// ProductSnapshot freezes a product at reservation time. It is embedded as a
// jsonb value on order lines and never updated afterwards, so order history
// survives later edits or deletion of the listing.
type ProductSnapshot struct {
	ProductID      uuid.UUID      `json:"product_id"`
	SellerID       uuid.UUID      `json:"seller_id"`
	SellerName     string         `json:"seller_name"`
	SellerPhone    *string        `json:"seller_phone,omitempty"`
	Name           string         `json:"name"`
	PriceCents     int64          `json:"price_cents"`
	Quantity       int            `json:"quantity"`
	QuantitySold   int            `json:"quantity_sold"`
	SelfPickup     bool           `json:"self_pickup"`
	Delivery       bool           `json:"delivery"`
	PickupAddress  *types.Address `json:"pickup_address,omitempty"`
	Country        string         `json:"country"`
}
