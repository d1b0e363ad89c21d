// Package projection reshapes flat order lines into the per-seller view the
// storefront renders. Grouping is pure and deterministic: sellers appear in
// first-line order, self pickup before delivery within a seller.
package projection

import (
	"github.com/google/uuid"

	"github.com/tradeyard/tradeyard-backend/pkg/db/models"
	"github.com/tradeyard/tradeyard-backend/pkg/enums"
	"github.com/tradeyard/tradeyard-backend/pkg/types"
)

// SellerRef identifies the seller heading one group.
type SellerRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Phone *string   `json:"phone,omitempty"`
}

// LineView is a single product inside a fulfillment group.
type LineView struct {
	ProductID     uuid.UUID      `json:"product_id"`
	Name          string         `json:"name"`
	PriceCents    int64          `json:"price_cents"`
	Quantity      int            `json:"quantity"`
	SubtotalCents int64          `json:"subtotal_cents"`
	PickupAddress *types.Address `json:"pickup_address,omitempty"`
}

// FulfillmentGroup holds the products a buyer receives the same way from one
// seller.
type FulfillmentGroup struct {
	Method   enums.FulfillmentMethod `json:"method"`
	Products []LineView              `json:"products"`
}

// SellerGroup is one seller's slice of the order.
type SellerGroup struct {
	Seller             SellerRef          `json:"seller"`
	SubtotalCents      int64              `json:"subtotal_cents"`
	FulfillmentMethods []FulfillmentGroup `json:"fulfillment_methods"`
}

type flatLine struct {
	snapshot   models.ProductSnapshot
	selfPickup bool
	delivery   bool
	quantity   int
}

// GroupTransientLines projects reservation lines.
func GroupTransientLines(lines []models.TransientOrderLine) []SellerGroup {
	flat := make([]flatLine, 0, len(lines))
	for _, line := range lines {
		flat = append(flat, flatLine{
			snapshot:   line.Snapshot,
			selfPickup: line.SelfPickup,
			delivery:   line.Delivery,
			quantity:   line.Quantity,
		})
	}
	return group(flat)
}

// GroupPurchasedLines projects settled order lines.
func GroupPurchasedLines(lines []models.PurchasedOrderLine) []SellerGroup {
	flat := make([]flatLine, 0, len(lines))
	for _, line := range lines {
		flat = append(flat, flatLine{
			snapshot:   line.Snapshot,
			selfPickup: line.SelfPickup,
			delivery:   line.Delivery,
			quantity:   line.Quantity,
		})
	}
	return group(flat)
}

func group(lines []flatLine) []SellerGroup {
	order := make([]uuid.UUID, 0)
	bySeller := make(map[uuid.UUID]*SellerGroup)
	pickups := make(map[uuid.UUID][]LineView)
	deliveries := make(map[uuid.UUID][]LineView)

	for _, line := range lines {
		sellerID := line.snapshot.SellerID
		groupRef, ok := bySeller[sellerID]
		if !ok {
			groupRef = &SellerGroup{
				Seller: SellerRef{
					ID:    sellerID,
					Name:  line.snapshot.SellerName,
					Phone: line.snapshot.SellerPhone,
				},
			}
			bySeller[sellerID] = groupRef
			order = append(order, sellerID)
		}

		view := LineView{
			ProductID:     line.snapshot.ProductID,
			Name:          line.snapshot.Name,
			PriceCents:    line.snapshot.PriceCents,
			Quantity:      line.quantity,
			SubtotalCents: line.snapshot.PriceCents * int64(line.quantity),
		}
		groupRef.SubtotalCents += view.SubtotalCents

		// A line reserved for both methods shows up under each, but the
		// subtotal counts it once.
		if line.selfPickup {
			pickup := view
			pickup.PickupAddress = line.snapshot.PickupAddress
			pickups[sellerID] = append(pickups[sellerID], pickup)
		}
		if line.delivery {
			deliveries[sellerID] = append(deliveries[sellerID], view)
		}
	}

	groups := make([]SellerGroup, 0, len(order))
	for _, sellerID := range order {
		groupRef := bySeller[sellerID]
		if products := pickups[sellerID]; len(products) > 0 {
			groupRef.FulfillmentMethods = append(groupRef.FulfillmentMethods, FulfillmentGroup{
				Method:   enums.FulfillmentSelfPickup,
				Products: products,
			})
		}
		if products := deliveries[sellerID]; len(products) > 0 {
			groupRef.FulfillmentMethods = append(groupRef.FulfillmentMethods, FulfillmentGroup{
				Method:   enums.FulfillmentDelivery,
				Products: products,
			})
		}
		groups = append(groups, *groupRef)
	}
	return groups
}
