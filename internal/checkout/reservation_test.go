package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tradeyard/tradeyard-backend/pkg/db/models"
	"github.com/tradeyard/tradeyard-backend/pkg/enums"
	pkgerrors "github.com/tradeyard/tradeyard-backend/pkg/errors"
	"github.com/tradeyard/tradeyard-backend/pkg/types"
)

func TestReserveHappyPath(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	buyer := seedUser(t, eng.db, func(u *models.User) { u.WalletBalanceCents = 10_000 })
	sellerA := seedUser(t, eng.db, nil)
	sellerB := seedUser(t, eng.db, nil)
	kettle := seedProduct(t, eng.db, sellerA.ID, func(p *models.Product) {
		p.Name = "Tea Kettle"
		p.PriceCents = 1_800
		p.Quantity = 5
	})
	board := seedProduct(t, eng.db, sellerB.ID, func(p *models.Product) {
		p.Name = "Cutting Board"
		p.PriceCents = 400
		p.Quantity = 2
	})
	seedCartLine(t, eng.db, buyer.ID, kettle.ID, 2, nil)
	seedCartLine(t, eng.db, buyer.ID, board.ID, 1, func(l *models.CartLine) {
		l.SelfPickup = false
		l.Delivery = true
	})

	result, err := eng.svc.Reserve(ctx, ReserveInput{
		BuyerID:         buyer.ID,
		PaymentMethod:   enums.PaymentMethodWallet,
		DeliveryAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if result.AmountCents != 4_000 {
		t.Fatalf("expected amount 4000, got %d", result.AmountCents)
	}
	if len(result.Sellers) != 2 {
		t.Fatalf("expected 2 seller groups, got %d", len(result.Sellers))
	}

	if kettle := reloadProduct(t, eng.db, kettle.ID); kettle.Quantity != 3 || kettle.QuantitySold != 2 || kettle.OrdersReceived != 1 {
		t.Fatalf("unexpected kettle counters: %+v", kettle)
	}
	if board := reloadProduct(t, eng.db, board.ID); board.Quantity != 1 || board.QuantitySold != 1 {
		t.Fatalf("unexpected board counters: %+v", board)
	}

	if count := countRows(t, eng.db, &models.CartLine{}); count != 0 {
		t.Fatalf("expected cart cleared, %d lines remain", count)
	}

	var order models.TransientOrder
	if err := eng.db.Preload("Lines").First(&order, "buyer_id = ?", buyer.ID).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	if len(order.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(order.Lines))
	}
	if !order.PlatformFeeRate.Equal(eng.cfg.FeeRate()) {
		t.Fatalf("expected locked fee rate %s, got %s", eng.cfg.FeeRate(), order.PlatformFeeRate)
	}
	if got := result.ExpiresAt; !got.Equal(order.CreatedAt.Add(3 * time.Minute)) {
		t.Fatalf("unexpected expiry %s for created %s", got, order.CreatedAt)
	}
}

func TestReserveEmptyCart(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	buyer := seedUser(t, eng.db, nil)

	_, err := eng.svc.Reserve(context.Background(), ReserveInput{
		BuyerID:       buyer.ID,
		PaymentMethod: enums.PaymentMethodWallet,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReserveReplacesLiveReservation(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	buyer := seedUser(t, eng.db, nil)
	seller := seedUser(t, eng.db, nil)
	product := seedProduct(t, eng.db, seller.ID, func(p *models.Product) { p.Quantity = 10 })
	seedCartLine(t, eng.db, buyer.ID, product.ID, 3, nil)

	first, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: buyer.ID, PaymentMethod: enums.PaymentMethodWallet})
	if err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if p := reloadProduct(t, eng.db, product.ID); p.Quantity != 7 {
		t.Fatalf("expected stock 7 after first reserve, got %d", p.Quantity)
	}

	// Reserving again while the first is still live cancels it and
	// reserves the new cart in its place.
	seedCartLine(t, eng.db, buyer.ID, product.ID, 1, nil)
	second, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: buyer.ID, PaymentMethod: enums.PaymentMethodWallet})
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if second.OrderID == first.OrderID {
		t.Fatal("expected a fresh reservation, got the old one")
	}
	if second.AmountCents != 1_800 {
		t.Fatalf("expected amount 1800, got %d", second.AmountCents)
	}

	// The first reservation's 3 units came back before the new one took 1.
	if p := reloadProduct(t, eng.db, product.ID); p.Quantity != 9 || p.QuantitySold != 1 {
		t.Fatalf("unexpected counters after replacement: %+v", p)
	}
	if count := countRows(t, eng.db, &models.TransientOrder{}); count != 1 {
		t.Fatalf("expected exactly one reservation, got %d", count)
	}
}

func TestReserveReleasesStaleReservation(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	buyer := seedUser(t, eng.db, nil)
	seller := seedUser(t, eng.db, nil)
	product := seedProduct(t, eng.db, seller.ID, func(p *models.Product) { p.Quantity = 5 })
	seedCartLine(t, eng.db, buyer.ID, product.ID, 3, nil)

	if _, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: buyer.ID, PaymentMethod: enums.PaymentMethodWallet}); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if p := reloadProduct(t, eng.db, product.ID); p.Quantity != 2 {
		t.Fatalf("expected stock 2 after reserve, got %d", p.Quantity)
	}

	eng.clock.Advance(4 * time.Minute)

	seedCartLine(t, eng.db, buyer.ID, product.ID, 1, nil)
	result, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: buyer.ID, PaymentMethod: enums.PaymentMethodWallet})
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if result.AmountCents != 1_800 {
		t.Fatalf("expected amount 1800, got %d", result.AmountCents)
	}

	// Old reservation released its 3 units before the new one took 1.
	if p := reloadProduct(t, eng.db, product.ID); p.Quantity != 4 || p.QuantitySold != 1 {
		t.Fatalf("unexpected counters after stale release: %+v", p)
	}
	if count := countRows(t, eng.db, &models.TransientOrder{}); count != 1 {
		t.Fatalf("expected exactly one reservation, got %d", count)
	}
}

func TestReserveCardRequiresStoredCard(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	buyer := seedUser(t, eng.db, nil)

	_, err := eng.svc.Reserve(context.Background(), ReserveInput{
		BuyerID:       buyer.ID,
		PaymentMethod: enums.PaymentMethodCard,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if typed.Message() != "no stored card on file" {
		t.Fatalf("unexpected message: %q", typed.Message())
	}
}

func TestReserveDeliveryAddressRequired(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	buyer := seedUser(t, eng.db, nil)
	seller := seedUser(t, eng.db, nil)
	product := seedProduct(t, eng.db, seller.ID, nil)
	seedCartLine(t, eng.db, buyer.ID, product.ID, 1, func(l *models.CartLine) {
		l.SelfPickup = false
		l.Delivery = true
	})

	_, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: buyer.ID, PaymentMethod: enums.PaymentMethodWallet})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = eng.svc.Reserve(ctx, ReserveInput{
		BuyerID:         buyer.ID,
		PaymentMethod:   enums.PaymentMethodWallet,
		DeliveryAddress: &types.Address{},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for zero address, got %v", err)
	}
}

func TestReserveRollsBackOnStockConflict(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	buyer := seedUser(t, eng.db, nil)
	seller := seedUser(t, eng.db, nil)
	plenty := seedProduct(t, eng.db, seller.ID, func(p *models.Product) { p.Quantity = 10 })
	scarce := seedProduct(t, eng.db, seller.ID, func(p *models.Product) {
		p.Name = "Last One"
		p.Quantity = 1
	})
	seedCartLine(t, eng.db, buyer.ID, plenty.ID, 2, nil)
	seedCartLine(t, eng.db, buyer.ID, scarce.ID, 2, nil)

	_, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: buyer.ID, PaymentMethod: enums.PaymentMethodWallet})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	// The whole transaction rolled back, including the first line's debit.
	if p := reloadProduct(t, eng.db, plenty.ID); p.Quantity != 10 || p.QuantitySold != 0 {
		t.Fatalf("expected untouched counters, got %+v", p)
	}
	if count := countRows(t, eng.db, &models.TransientOrder{}); count != 0 {
		t.Fatalf("expected no reservation, got %d", count)
	}
	if count := countRows(t, eng.db, &models.CartLine{}); count != 2 {
		t.Fatalf("expected cart intact, got %d lines", count)
	}
}

func TestReserveSnapshotPickupFallback(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	sellerAddress := testAddress()
	buyer := seedUser(t, eng.db, nil)
	seller := seedUser(t, eng.db, func(u *models.User) { u.PickupAddress = sellerAddress })
	product := seedProduct(t, eng.db, seller.ID, func(p *models.Product) { p.PickupAddress = nil })
	seedCartLine(t, eng.db, buyer.ID, product.ID, 1, nil)

	if _, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: buyer.ID, PaymentMethod: enums.PaymentMethodWallet}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	var line models.TransientOrderLine
	if err := eng.db.First(&line, "product_id = ?", product.ID).Error; err != nil {
		t.Fatalf("load line: %v", err)
	}
	if line.Snapshot.PickupAddress == nil || line.Snapshot.PickupAddress.Line1 != sellerAddress.Line1 {
		t.Fatalf("expected seller pickup address in snapshot, got %+v", line.Snapshot.PickupAddress)
	}
	if line.Snapshot.SellerName != seller.FullName() {
		t.Fatalf("unexpected seller name: %q", line.Snapshot.SellerName)
	}
}

func TestCurrentHidesExpiredReservation(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	buyer := seedUser(t, eng.db, nil)
	seller := seedUser(t, eng.db, nil)
	product := seedProduct(t, eng.db, seller.ID, nil)
	seedCartLine(t, eng.db, buyer.ID, product.ID, 1, nil)

	if _, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: buyer.ID, PaymentMethod: enums.PaymentMethodWallet}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := eng.svc.Current(ctx, buyer.ID); err != nil {
		t.Fatalf("current: %v", err)
	}

	eng.clock.Advance(4 * time.Minute)

	_, err := eng.svc.Current(ctx, buyer.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found after expiry, got %v", err)
	}
}

func TestReserveUnknownBuyer(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	_, err := eng.svc.Reserve(context.Background(), ReserveInput{
		BuyerID:       uuid.New(),
		PaymentMethod: enums.PaymentMethodWallet,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
