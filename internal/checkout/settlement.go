package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tradeyard/tradeyard-backend/internal/checkout/projection"
	"github.com/tradeyard/tradeyard-backend/internal/wallet"
	"github.com/tradeyard/tradeyard-backend/pkg/db/models"
	"github.com/tradeyard/tradeyard-backend/pkg/enums"
	pkgerrors "github.com/tradeyard/tradeyard-backend/pkg/errors"
	"github.com/tradeyard/tradeyard-backend/pkg/gateway"
	"github.com/tradeyard/tradeyard-backend/pkg/outbox"
	"github.com/tradeyard/tradeyard-backend/pkg/outbox/payloads"
)

// SellerTransfer is one seller's share of a settlement after the platform
// fee is taken.
type SellerTransfer struct {
	SellerID   uuid.UUID `json:"seller_id"`
	LineCount  int       `json:"line_count"`
	GrossCents int64     `json:"gross_cents"`
	FeeCents   int64     `json:"fee_cents"`
	NetCents   int64     `json:"net_cents"`
}

// SettlementResult reports the outcome of a Settle call. RequiresAction is
// set on the card path while the capture is still in flight; the buyer
// retries Settle once the gateway has finished.
type SettlementResult struct {
	OrderID        uuid.UUID                `json:"order_id"`
	AmountCents    int64                    `json:"amount_cents"`
	FeeCents       int64                    `json:"fee_cents"`
	Transfers      []SellerTransfer         `json:"transfers"`
	RequiresAction bool                     `json:"requires_action"`
	Sellers        []projection.SellerGroup `json:"sellers"`
}

// splitTransfers computes the per-seller fee split. Each seller's fee is the
// gross subtotal times the rate, rounded half up to whole cents; the
// platform fee is the exact remainder, so the split always conserves the
// order amount.
func splitTransfers(lines []models.TransientOrderLine, rate decimal.Decimal) (int64, []SellerTransfer, int64) {
	order := make([]uuid.UUID, 0)
	grouped := make(map[uuid.UUID]*SellerTransfer)

	var amount int64
	for _, line := range lines {
		subtotal := line.SubtotalCents()
		amount += subtotal

		sellerID := line.Snapshot.SellerID
		transfer, ok := grouped[sellerID]
		if !ok {
			transfer = &SellerTransfer{SellerID: sellerID}
			grouped[sellerID] = transfer
			order = append(order, sellerID)
		}
		transfer.LineCount++
		transfer.GrossCents += subtotal
	}

	var netTotal int64
	transfers := make([]SellerTransfer, 0, len(order))
	for _, sellerID := range order {
		transfer := grouped[sellerID]
		transfer.FeeCents = decimal.NewFromInt(transfer.GrossCents).Mul(rate).Round(0).IntPart()
		transfer.NetCents = transfer.GrossCents - transfer.FeeCents
		netTotal += transfer.NetCents
		transfers = append(transfers, *transfer)
	}

	return amount, transfers, amount - netTotal
}

func (s *service) Settle(ctx context.Context, buyerID uuid.UUID) (*SettlementResult, error) {
	order, err := s.reservations.GetByBuyer(ctx, buyerID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no reservation to settle")
		}
		return nil, err
	}
	if s.expired(order) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "reservation expired")
	}

	amount, transfers, feeTotal := splitTransfers(order.Lines, order.PlatformFeeRate)

	if order.PaymentMethod == enums.PaymentMethodCard {
		capture, err := s.ensureCapture(ctx, order, amount)
		if err != nil {
			return nil, err
		}
		if !capture.Status.Settled() {
			return &SettlementResult{
				OrderID:        order.ID,
				AmountCents:    amount,
				FeeCents:       feeTotal,
				Transfers:      transfers,
				RequiresAction: true,
			}, nil
		}
	}

	var purchased *models.PurchasedOrder
	err = s.db.Transaction(func(tx *gorm.DB) error {
		locked, err := s.reservations.WithTx(tx).GetByIDForUpdate(ctx, order.ID)
		if err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeConflict, "reservation was already settled or released")
			}
			return err
		}
		if s.expired(locked) {
			return pkgerrors.New(pkgerrors.CodeConflict, "reservation expired")
		}

		purchased = buildPurchasedOrder(locked, amount)
		if err := s.orders.WithTx(tx).Create(ctx, purchased); err != nil {
			return err
		}

		if locked.PaymentMethod == enums.PaymentMethodWallet {
			err := s.wallet.DebitBuyer(ctx, tx, wallet.DebitBuyerInput{
				OrderID:     purchased.ID,
				BuyerID:     locked.BuyerID,
				AmountCents: amount,
			})
			if err != nil {
				return err
			}
		}

		for _, transfer := range transfers {
			err := s.wallet.CreditSeller(ctx, tx, wallet.CreditSellerInput{
				OrderID:     purchased.ID,
				BuyerID:     locked.BuyerID,
				SellerID:    transfer.SellerID,
				AmountCents: transfer.NetCents,
				Metadata: map[string]any{
					"gross_cents": transfer.GrossCents,
					"fee_cents":   transfer.FeeCents,
				},
			})
			if err != nil {
				return err
			}
		}

		err = s.wallet.RecordPlatformFee(ctx, tx, wallet.RecordPlatformFeeInput{
			OrderID:     purchased.ID,
			BuyerID:     locked.BuyerID,
			AmountCents: feeTotal,
		})
		if err != nil {
			return err
		}

		if err := s.emitSettlementEvents(ctx, tx, locked, purchased, amount, transfers); err != nil {
			return err
		}

		if err := s.reservations.WithTx(tx).Delete(ctx, locked.ID); err != nil {
			return err
		}
		// The cart was already cleared at reservation time; clearing again
		// covers lines added while the reservation was live.
		return s.cart.WithTx(tx).DeleteAllForBuyer(ctx, locked.BuyerID)
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":     purchased.ID.String(),
			"amount_cents": amount,
			"fee_cents":    feeTotal,
			"sellers":      len(transfers),
		})
		s.logg.Info(logCtx, "order settled")
	}

	return &SettlementResult{
		OrderID:     purchased.ID,
		AmountCents: amount,
		FeeCents:    feeTotal,
		Transfers:   transfers,
		Sellers:     projection.GroupPurchasedLines(purchased.Lines),
	}, nil
}

// ensureCapture drives the card payment state machine. The first call
// creates the capture with an idempotency key derived from the reservation,
// later calls confirm it. A terminal capture clears the stored intent so the
// buyer can retry with a fresh charge.
func (s *service) ensureCapture(ctx context.Context, order *models.TransientOrder, amountCents int64) (*gateway.Capture, error) {
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway is not configured")
	}

	buyer, err := s.users.GetByID(ctx, order.BuyerID)
	if err != nil {
		return nil, err
	}
	if !buyer.HasStoredCard() || buyer.GatewayCustomerID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no stored card on file")
	}

	if order.PaymentIntentID != nil {
		capture, err := s.gateway.ConfirmCapture(ctx, *order.PaymentIntentID)
		if err != nil {
			return nil, err
		}
		if capture.Status.Terminal() {
			if err := s.reservations.SetPaymentIntent(ctx, order.ID, nil); err != nil {
				return nil, err
			}
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "card payment was declined, try again")
		}
		return capture, nil
	}

	capture, err := s.gateway.CreateCardCapture(ctx, gateway.CaptureCreateParams{
		AmountCents:    amountCents,
		Currency:       string(enums.CurrencyUSD),
		CustomerID:     *buyer.GatewayCustomerID,
		CardID:         *buyer.CardID,
		IdempotencyKey: fmt.Sprintf("settle-%s", order.ID),
		Note:           "marketplace order settlement",
		ReferenceID:    order.ID.String(),
	})
	if err != nil {
		return nil, err
	}
	if capture.Status.Terminal() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "card payment was declined, try again")
	}
	if err := s.reservations.SetPaymentIntent(ctx, order.ID, &capture.ID); err != nil {
		return nil, err
	}
	order.PaymentIntentID = &capture.ID
	return capture, nil
}

func buildPurchasedOrder(order *models.TransientOrder, amountCents int64) *models.PurchasedOrder {
	lines := make([]models.PurchasedOrderLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, models.PurchasedOrderLine{
			ProductID:  line.ProductID,
			SellerID:   line.Snapshot.SellerID,
			Snapshot:   line.Snapshot,
			SelfPickup: line.SelfPickup,
			Delivery:   line.Delivery,
			Quantity:   line.Quantity,
		})
	}
	return &models.PurchasedOrder{
		BuyerID:         order.BuyerID,
		DeliveryAddress: order.DeliveryAddress,
		PaymentMethod:   order.PaymentMethod,
		PaymentIntentID: order.PaymentIntentID,
		CardLast4:       order.CardLast4,
		PlatformFeeRate: order.PlatformFeeRate,
		TotalCents:      amountCents,
		Lines:           lines,
	}
}

func (s *service) emitSettlementEvents(ctx context.Context, tx *gorm.DB, reserved *models.TransientOrder, purchased *models.PurchasedOrder, amountCents int64, transfers []SellerTransfer) error {
	shares := make([]payloads.OrderSellerShare, 0, len(transfers))
	for _, transfer := range transfers {
		shares = append(shares, payloads.OrderSellerShare{
			SellerID:   transfer.SellerID,
			LineCount:  transfer.LineCount,
			GrossCents: transfer.GrossCents,
			FeeCents:   transfer.FeeCents,
			NetCents:   transfer.NetCents,
		})
	}

	actor := &outbox.ActorRef{UserID: purchased.BuyerID, Role: "buyer"}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderReceived,
		AggregateType: enums.AggregatePurchasedOrder,
		AggregateID:   purchased.ID,
		Actor:         actor,
		Data: payloads.OrderReceivedEvent{
			OrderID:     purchased.ID,
			BuyerID:     purchased.BuyerID,
			LineCount:   len(purchased.Lines),
			AmountCents: amountCents,
			Sellers:     shares,
		},
		Version: 1,
	})
	if err != nil {
		return err
	}

	productRepo := s.products.WithTx(tx)
	for _, line := range reserved.Lines {
		product, err := productRepo.GetByID(ctx, line.ProductID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return err
		}
		if product.Quantity > 0 {
			continue
		}
		err = s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProductOutOfStock,
			AggregateType: enums.AggregateProduct,
			AggregateID:   product.ID,
			Actor:         actor,
			Data: payloads.ProductOutOfStockEvent{
				ProductID:   product.ID,
				SellerID:    product.SellerID,
				OrderID:     purchased.ID,
				ProductName: product.Name,
			},
			Version: 1,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
