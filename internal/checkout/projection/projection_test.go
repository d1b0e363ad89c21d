package projection

import (
	"testing"

	"github.com/google/uuid"

	"github.com/tradeyard/tradeyard-backend/pkg/db/models"
	"github.com/tradeyard/tradeyard-backend/pkg/enums"
)

func TestGroupTransientLines(t *testing.T) {
	t.Parallel()

	sellerA := uuid.New()
	sellerB := uuid.New()
	phone := "+15550100"

	lines := []models.TransientOrderLine{
		{
			Snapshot:   models.ProductSnapshot{ProductID: uuid.New(), SellerID: sellerA, SellerName: "North Supply", SellerPhone: &phone, Name: "Tea Kettle", PriceCents: 1_800},
			SelfPickup: true,
			Quantity:   1,
		},
		{
			Snapshot: models.ProductSnapshot{ProductID: uuid.New(), SellerID: sellerB, SellerName: "Harbor Goods", Name: "Cutting Board", PriceCents: 2_200},
			Delivery: true,
			Quantity: 2,
		},
		{
			Snapshot: models.ProductSnapshot{ProductID: uuid.New(), SellerID: sellerA, SellerName: "North Supply", Name: "Trivet", PriceCents: 400},
			Delivery: true,
			Quantity: 1,
		},
	}

	groups := GroupTransientLines(lines)
	if len(groups) != 2 {
		t.Fatalf("expected 2 seller groups, got %d", len(groups))
	}

	first := groups[0]
	if first.Seller.ID != sellerA || first.Seller.Name != "North Supply" {
		t.Fatalf("unexpected first seller: %+v", first.Seller)
	}
	if first.Seller.Phone == nil || *first.Seller.Phone != phone {
		t.Fatalf("expected seller phone to carry through")
	}
	if first.SubtotalCents != 2_200 {
		t.Fatalf("expected subtotal 2200, got %d", first.SubtotalCents)
	}
	if len(first.FulfillmentMethods) != 2 {
		t.Fatalf("expected pickup and delivery groups, got %+v", first.FulfillmentMethods)
	}
	if first.FulfillmentMethods[0].Method != enums.FulfillmentSelfPickup {
		t.Fatalf("expected self pickup first, got %s", first.FulfillmentMethods[0].Method)
	}
	if first.FulfillmentMethods[1].Method != enums.FulfillmentDelivery {
		t.Fatalf("expected delivery second, got %s", first.FulfillmentMethods[1].Method)
	}

	second := groups[1]
	if second.Seller.ID != sellerB {
		t.Fatalf("unexpected second seller: %+v", second.Seller)
	}
	if second.SubtotalCents != 4_400 {
		t.Fatalf("expected subtotal 4400, got %d", second.SubtotalCents)
	}
	if len(second.FulfillmentMethods) != 1 || second.FulfillmentMethods[0].Method != enums.FulfillmentDelivery {
		t.Fatalf("unexpected fulfillment groups: %+v", second.FulfillmentMethods)
	}
	if second.FulfillmentMethods[0].Products[0].SubtotalCents != 4_400 {
		t.Fatalf("unexpected line subtotal: %+v", second.FulfillmentMethods[0].Products[0])
	}
}

func TestGroupCountsDualMethodLineOnce(t *testing.T) {
	t.Parallel()

	seller := uuid.New()
	lines := []models.PurchasedOrderLine{
		{
			Snapshot:   models.ProductSnapshot{ProductID: uuid.New(), SellerID: seller, SellerName: "Dual", Name: "Stool", PriceCents: 1_000},
			SelfPickup: true,
			Delivery:   true,
			Quantity:   3,
		},
	}

	groups := GroupPurchasedLines(lines)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].SubtotalCents != 3_000 {
		t.Fatalf("expected subtotal 3000, got %d", groups[0].SubtotalCents)
	}
	if len(groups[0].FulfillmentMethods) != 2 {
		t.Fatalf("expected line under both methods, got %+v", groups[0].FulfillmentMethods)
	}
}

func TestGroupEmpty(t *testing.T) {
	t.Parallel()

	if groups := GroupTransientLines(nil); len(groups) != 0 {
		t.Fatalf("expected no groups, got %+v", groups)
	}
}
