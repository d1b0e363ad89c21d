package checkout

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradeyard/tradeyard-backend/pkg/db/models"
	"github.com/tradeyard/tradeyard-backend/pkg/enums"
	pkgerrors "github.com/tradeyard/tradeyard-backend/pkg/errors"
	"github.com/tradeyard/tradeyard-backend/pkg/gateway"
	"github.com/tradeyard/tradeyard-backend/pkg/outbox"
	"github.com/tradeyard/tradeyard-backend/pkg/outbox/payloads"
)

func TestSettleWalletFeeSplit(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	buyer := seedUser(t, eng.db, func(u *models.User) { u.WalletBalanceCents = 5_000 })
	sellerA := seedUser(t, eng.db, nil)
	sellerB := seedUser(t, eng.db, nil)
	sellerC := seedUser(t, eng.db, nil)
	kettle := seedProduct(t, eng.db, sellerA.ID, func(p *models.Product) { p.PriceCents = 1_800 })
	lamp := seedProduct(t, eng.db, sellerB.ID, func(p *models.Product) { p.PriceCents = 1_800 })
	board := seedProduct(t, eng.db, sellerC.ID, func(p *models.Product) { p.PriceCents = 400 })
	for _, p := range []*models.Product{kettle, lamp, board} {
		seedCartLine(t, eng.db, buyer.ID, p.ID, 1, nil)
	}

	if _, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: buyer.ID, PaymentMethod: enums.PaymentMethodWallet}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	result, err := eng.svc.Settle(ctx, buyer.ID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.RequiresAction {
		t.Fatal("wallet settlement should not require action")
	}
	if result.AmountCents != 4_000 || result.FeeCents != 400 {
		t.Fatalf("unexpected totals: amount=%d fee=%d", result.AmountCents, result.FeeCents)
	}

	// 18.00 + 18.00 + 4.00 at 10% nets 16.20 + 16.20 + 3.60.
	if reloadUser(t, eng.db, buyer.ID).WalletBalanceCents != 1_000 {
		t.Fatal("buyer should be debited the full amount")
	}
	if reloadUser(t, eng.db, sellerA.ID).WalletBalanceCents != 1_620 {
		t.Fatal("seller A should net 1620")
	}
	if reloadUser(t, eng.db, sellerB.ID).WalletBalanceCents != 1_620 {
		t.Fatal("seller B should net 1620")
	}
	if reloadUser(t, eng.db, sellerC.ID).WalletBalanceCents != 360 {
		t.Fatal("seller C should net 360")
	}

	var profit models.PlatformProfit
	if err := eng.db.First(&profit).Error; err != nil {
		t.Fatalf("load profit: %v", err)
	}
	if profit.TotalCents != 400 {
		t.Fatalf("expected platform profit 400, got %d", profit.TotalCents)
	}

	if count := countRows(t, eng.db, &models.LedgerEvent{}); count != 5 {
		t.Fatalf("expected 5 ledger rows, got %d", count)
	}
	if count := countRows(t, eng.db, &models.TransientOrder{}); count != 0 {
		t.Fatalf("reservation should be gone, %d remain", count)
	}

	var order models.PurchasedOrder
	if err := eng.db.Preload("Lines").First(&order, "buyer_id = ?", buyer.ID).Error; err != nil {
		t.Fatalf("load purchased order: %v", err)
	}
	if order.TotalCents != 4_000 || len(order.Lines) != 3 {
		t.Fatalf("unexpected purchased order: total=%d lines=%d", order.TotalCents, len(order.Lines))
	}

	var events []models.OutboxEvent
	if err := eng.db.Where("event_type = ?", enums.EventOrderReceived).Find(&events).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one order_received event, got %d", len(events))
	}
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(events[0].Payload, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var payload payloads.OrderReceivedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Sellers) != 3 || payload.AmountCents != 4_000 {
		t.Fatalf("unexpected event payload: %+v", payload)
	}
	var netSum int64
	for _, share := range payload.Sellers {
		netSum += share.NetCents
	}
	if netSum+result.FeeCents != payload.AmountCents {
		t.Fatalf("event shares do not conserve the amount: %+v", payload)
	}
}

func TestSettleInsufficientWallet(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	buyer := seedUser(t, eng.db, func(u *models.User) { u.WalletBalanceCents = 100 })
	seller := seedUser(t, eng.db, nil)
	product := seedProduct(t, eng.db, seller.ID, nil)
	seedCartLine(t, eng.db, buyer.ID, product.ID, 1, nil)

	if _, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: buyer.ID, PaymentMethod: enums.PaymentMethodWallet}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	_, err := eng.svc.Settle(ctx, buyer.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if typed.Message() != "not enough funds in the wallet" {
		t.Fatalf("unexpected message: %q", typed.Message())
	}

	// Everything rolled back: reservation intact, no order, no money moved.
	if count := countRows(t, eng.db, &models.TransientOrder{}); count != 1 {
		t.Fatalf("reservation should survive, got %d", count)
	}
	if count := countRows(t, eng.db, &models.PurchasedOrder{}); count != 0 {
		t.Fatalf("no purchased order expected, got %d", count)
	}
	if reloadUser(t, eng.db, seller.ID).WalletBalanceCents != 0 {
		t.Fatal("seller should not be credited")
	}
}

func TestSettleExpiredReservation(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	buyer := seedUser(t, eng.db, func(u *models.User) { u.WalletBalanceCents = 10_000 })
	seller := seedUser(t, eng.db, nil)
	product := seedProduct(t, eng.db, seller.ID, nil)
	seedCartLine(t, eng.db, buyer.ID, product.ID, 1, nil)

	if _, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: buyer.ID, PaymentMethod: enums.PaymentMethodWallet}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	eng.clock.Advance(4 * time.Minute)

	_, err := eng.svc.Settle(ctx, buyer.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if typed.Message() != "reservation expired" {
		t.Fatalf("unexpected message: %q", typed.Message())
	}
}

func TestSettleWindowBoundary(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	buyer := seedUser(t, eng.db, func(u *models.User) { u.WalletBalanceCents = 10_000 })
	seller := seedUser(t, eng.db, nil)
	product := seedProduct(t, eng.db, seller.ID, nil)
	seedCartLine(t, eng.db, buyer.ID, product.ID, 1, nil)

	if _, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: buyer.ID, PaymentMethod: enums.PaymentMethodWallet}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	var order models.TransientOrder
	if err := eng.db.First(&order, "buyer_id = ?", buyer.ID).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	expiresAt := order.CreatedAt.Add(eng.cfg.ReservationWindow)

	// One millisecond past the window the reservation is gone for good.
	eng.clock.Advance(expiresAt.Add(time.Millisecond).Sub(eng.clock.Now()))
	_, err := eng.svc.Settle(ctx, buyer.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict past the window, got %v", err)
	}

	// One millisecond before the window closes it still settles.
	eng.clock.Advance(-2 * time.Millisecond)
	result, err := eng.svc.Settle(ctx, buyer.ID)
	if err != nil {
		t.Fatalf("settle inside the window: %v", err)
	}
	if result.AmountCents != 1_800 {
		t.Fatalf("unexpected amount: %d", result.AmountCents)
	}
}

func TestSettleNoReservation(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	buyer := seedUser(t, eng.db, nil)

	_, err := eng.svc.Settle(context.Background(), buyer.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSettleCardTwoPhase(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	buyer := seedUser(t, eng.db, storedCard)
	seller := seedUser(t, eng.db, nil)
	product := seedProduct(t, eng.db, seller.ID, func(p *models.Product) { p.PriceCents = 2_500 })
	seedCartLine(t, eng.db, buyer.ID, product.ID, 2, nil)

	if _, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: buyer.ID, PaymentMethod: enums.PaymentMethodCard}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	first, err := eng.svc.Settle(ctx, buyer.ID)
	if err != nil {
		t.Fatalf("first settle: %v", err)
	}
	if !first.RequiresAction {
		t.Fatal("expected pending capture to require another settle call")
	}
	if len(eng.gw.created) != 1 {
		t.Fatalf("expected one capture, got %d", len(eng.gw.created))
	}
	if eng.gw.created[0].AmountCents != 5_000 {
		t.Fatalf("unexpected capture amount: %d", eng.gw.created[0].AmountCents)
	}

	var reserved models.TransientOrder
	if err := eng.db.First(&reserved, "buyer_id = ?", buyer.ID).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	if reserved.PaymentIntentID == nil {
		t.Fatal("expected payment intent persisted after first settle")
	}

	second, err := eng.svc.Settle(ctx, buyer.ID)
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if second.RequiresAction {
		t.Fatal("completed capture should finalize")
	}

	// Card money stays outside wallets; only the seller net moves.
	if reloadUser(t, eng.db, buyer.ID).WalletBalanceCents != 0 {
		t.Fatal("card settlement must not touch the buyer wallet")
	}
	if reloadUser(t, eng.db, seller.ID).WalletBalanceCents != 4_500 {
		t.Fatal("seller should net 4500")
	}

	var order models.PurchasedOrder
	if err := eng.db.First(&order, "buyer_id = ?", buyer.ID).Error; err != nil {
		t.Fatalf("load purchased order: %v", err)
	}
	if order.PaymentIntentID == nil || *order.PaymentIntentID != *reserved.PaymentIntentID {
		t.Fatal("purchased order should carry the capture id")
	}
	if order.CardLast4 == nil || *order.CardLast4 != "4242" {
		t.Fatalf("unexpected card last4: %v", order.CardLast4)
	}
}

func TestSettleCardDeclined(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	eng.gw.confirmStatus = gateway.CaptureStatusFailed
	ctx := context.Background()

	buyer := seedUser(t, eng.db, storedCard)
	seller := seedUser(t, eng.db, nil)
	product := seedProduct(t, eng.db, seller.ID, nil)
	seedCartLine(t, eng.db, buyer.ID, product.ID, 1, nil)

	if _, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: buyer.ID, PaymentMethod: enums.PaymentMethodCard}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	first, err := eng.svc.Settle(ctx, buyer.ID)
	if err != nil {
		t.Fatalf("first settle: %v", err)
	}
	if !first.RequiresAction {
		t.Fatal("expected pending capture")
	}

	_, err = eng.svc.Settle(ctx, buyer.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict on declined card, got %v", err)
	}

	// The intent is cleared so the next attempt creates a fresh capture.
	var reserved models.TransientOrder
	if err := eng.db.First(&reserved, "buyer_id = ?", buyer.ID).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	if reserved.PaymentIntentID != nil {
		t.Fatal("expected payment intent cleared after decline")
	}
}

func TestSettleEmitsOutOfStockEvent(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	buyer := seedUser(t, eng.db, func(u *models.User) { u.WalletBalanceCents = 10_000 })
	seller := seedUser(t, eng.db, nil)
	product := seedProduct(t, eng.db, seller.ID, func(p *models.Product) {
		p.Name = "Final Unit"
		p.Quantity = 2
	})
	seedCartLine(t, eng.db, buyer.ID, product.ID, 2, nil)

	if _, err := eng.svc.Reserve(ctx, ReserveInput{BuyerID: buyer.ID, PaymentMethod: enums.PaymentMethodWallet}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := eng.svc.Settle(ctx, buyer.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	var events []models.OutboxEvent
	if err := eng.db.Where("event_type = ?", enums.EventProductOutOfStock).Find(&events).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one out of stock event, got %d", len(events))
	}
	if events[0].AggregateID != product.ID {
		t.Fatalf("expected product aggregate, got %s", events[0].AggregateID)
	}
}

func TestSplitTransfersConservesAmount(t *testing.T) {
	t.Parallel()

	sellerA := models.ProductSnapshot{SellerID: uuid.New(), PriceCents: 1_005}
	sellerB := models.ProductSnapshot{SellerID: uuid.New(), PriceCents: 995}
	lines := []models.TransientOrderLine{
		{Snapshot: sellerA, Quantity: 1},
		{Snapshot: sellerB, Quantity: 1},
	}
	rate := decimal.RequireFromString("0.10")

	amount, transfers, fee := splitTransfers(lines, rate)
	if amount != 2_000 {
		t.Fatalf("expected amount 2000, got %d", amount)
	}
	// 100.5 and 99.5 both round half up.
	if transfers[0].FeeCents != 101 || transfers[1].FeeCents != 100 {
		t.Fatalf("unexpected fees: %+v", transfers)
	}

	var netSum int64
	for _, transfer := range transfers {
		netSum += transfer.NetCents
		if transfer.GrossCents != transfer.NetCents+transfer.FeeCents {
			t.Fatalf("transfer does not balance: %+v", transfer)
		}
	}
	if netSum+fee != amount {
		t.Fatalf("split does not conserve amount: nets=%d fee=%d amount=%d", netSum, fee, amount)
	}
}

func TestSplitTransfersZeroRate(t *testing.T) {
	t.Parallel()

	lines := []models.TransientOrderLine{
		{Snapshot: models.ProductSnapshot{SellerID: uuid.New(), PriceCents: 700}, Quantity: 3},
	}

	amount, transfers, fee := splitTransfers(lines, decimal.Zero)
	if amount != 2_100 || fee != 0 {
		t.Fatalf("unexpected totals: amount=%d fee=%d", amount, fee)
	}
	if transfers[0].NetCents != 2_100 {
		t.Fatalf("seller should keep everything, got %d", transfers[0].NetCents)
	}
}
