package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tradeyard/tradeyard-backend/pkg/db/models"
	"github.com/tradeyard/tradeyard-backend/pkg/enums"
)

func TestReleaseExpired(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	seller := seedUser(t, eng.db, nil)
	product := seedProduct(t, eng.db, seller.ID, func(p *models.Product) { p.Quantity = 10 })

	stale := seedUser(t, eng.db, nil)
	seedCartLine(t, eng.db, stale.ID, product.ID, 3, nil)
	if _, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: stale.ID, PaymentMethod: enums.PaymentMethodWallet}); err != nil {
		t.Fatalf("stale reserve: %v", err)
	}
	backdateReservation(t, eng, stale.ID, 5*time.Minute)

	fresh := seedUser(t, eng.db, nil)
	seedCartLine(t, eng.db, fresh.ID, product.ID, 2, nil)
	if _, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: fresh.ID, PaymentMethod: enums.PaymentMethodWallet}); err != nil {
		t.Fatalf("fresh reserve: %v", err)
	}

	released, err := eng.svc.ReleaseExpired(ctx)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected 1 release, got %d", released)
	}

	// The stale 3 units return; the fresh reservation keeps its 2.
	if p := reloadProduct(t, eng.db, product.ID); p.Quantity != 8 || p.QuantitySold != 2 || p.OrdersReceived != 1 {
		t.Fatalf("unexpected counters: %+v", p)
	}
	if count := countRows(t, eng.db, &models.TransientOrder{}); count != 1 {
		t.Fatalf("expected 1 reservation left, got %d", count)
	}

	// A second sweep finds nothing.
	released, err = eng.svc.ReleaseExpired(ctx)
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	if released != 0 {
		t.Fatalf("expected idempotent sweep, got %d", released)
	}
}

func TestReleaseExpiredAtExactBoundary(t *testing.T) {
	t.Parallel()

	// A reservation aged exactly one window is released in the same sweep,
	// not the next one.
	eng := newTestEngine(t)
	ctx := context.Background()

	seller := seedUser(t, eng.db, nil)
	product := seedProduct(t, eng.db, seller.ID, nil)
	buyer := seedUser(t, eng.db, nil)
	seedCartLine(t, eng.db, buyer.ID, product.ID, 1, nil)

	if _, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: buyer.ID, PaymentMethod: enums.PaymentMethodWallet}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	backdateReservation(t, eng, buyer.ID, eng.cfg.ReservationWindow)

	released, err := eng.svc.ReleaseExpired(ctx)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected boundary reservation released, got %d", released)
	}
}

func TestReleaseExpiredSkipsMissingProduct(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	seller := seedUser(t, eng.db, nil)
	product := seedProduct(t, eng.db, seller.ID, nil)
	buyer := seedUser(t, eng.db, nil)
	seedCartLine(t, eng.db, buyer.ID, product.ID, 1, nil)

	if _, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: buyer.ID, PaymentMethod: enums.PaymentMethodWallet}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := eng.db.Delete(&models.Product{}, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("delete product: %v", err)
	}

	eng.clock.Advance(4 * time.Minute)

	released, err := eng.svc.ReleaseExpired(ctx)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected release despite missing product, got %d", released)
	}
	if count := countRows(t, eng.db, &models.TransientOrder{}); count != 0 {
		t.Fatalf("expected no reservations, got %d", count)
	}
}

func backdateReservation(t *testing.T, eng *testEngine, buyerID uuid.UUID, age time.Duration) {
	t.Helper()
	err := eng.db.Model(&models.TransientOrder{}).
		Where("buyer_id = ?", buyerID).
		Update("created_at", eng.clock.Now().Add(-age)).Error
	if err != nil {
		t.Fatalf("backdate reservation: %v", err)
	}
}

func TestReleaseExpiredNothingToDo(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	released, err := eng.svc.ReleaseExpired(context.Background())
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released != 0 {
		t.Fatalf("expected 0, got %d", released)
	}
}
