package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tradeyard/tradeyard-backend/internal/cart"
	"github.com/tradeyard/tradeyard-backend/internal/checkout/projection"
	"github.com/tradeyard/tradeyard-backend/internal/orders"
	"github.com/tradeyard/tradeyard-backend/internal/products"
	"github.com/tradeyard/tradeyard-backend/internal/users"
	"github.com/tradeyard/tradeyard-backend/internal/wallet"
	"github.com/tradeyard/tradeyard-backend/pkg/config"
	"github.com/tradeyard/tradeyard-backend/pkg/db/models"
	"github.com/tradeyard/tradeyard-backend/pkg/enums"
	pkgerrors "github.com/tradeyard/tradeyard-backend/pkg/errors"
	"github.com/tradeyard/tradeyard-backend/pkg/gateway"
	"github.com/tradeyard/tradeyard-backend/pkg/logger"
	"github.com/tradeyard/tradeyard-backend/pkg/outbox"
	"github.com/tradeyard/tradeyard-backend/pkg/types"
)

// Gateway is the slice of the payment client the settlement engine needs.
type Gateway interface {
	CreateCardCapture(ctx context.Context, params gateway.CaptureCreateParams) (*gateway.Capture, error)
	ConfirmCapture(ctx context.Context, captureID string) (*gateway.Capture, error)
}

// ReserveInput starts a checkout for everything in the buyer's cart.
type ReserveInput struct {
	BuyerID         uuid.UUID
	PaymentMethod   enums.PaymentMethod
	DeliveryAddress *types.Address
}

// Service runs the reservation and settlement engines.
type Service interface {
	Reserve(ctx context.Context, input ReserveInput) (*ReservationResult, error)
	Current(ctx context.Context, buyerID uuid.UUID) (*ReservationResult, error)
	Settle(ctx context.Context, buyerID uuid.UUID) (*SettlementResult, error)
}

// RecoveryService releases reservations that outlived the settlement window.
type RecoveryService interface {
	ReleaseExpired(ctx context.Context) (int, error)
}

// Deps carries everything the checkout engines are wired with.
type Deps struct {
	DB           *gorm.DB
	Reservations Repository
	Orders       orders.Repository
	Cart         cart.Repository
	Products     products.Repository
	Users        users.Repository
	Wallet       wallet.Service
	Outbox       *outbox.Service
	Gateway      Gateway
	Config       config.CheckoutConfig
	Logger       *logger.Logger
	Now          func() time.Time
}

type service struct {
	db           *gorm.DB
	reservations Repository
	orders       orders.Repository
	cart         cart.Repository
	products     products.Repository
	users        users.Repository
	wallet       wallet.Service
	outbox       *outbox.Service
	gateway      Gateway
	cfg          config.CheckoutConfig
	logg         *logger.Logger
	now          func() time.Time
}

// NewService wires the checkout service.
func NewService(deps Deps) (Service, error) {
	svc, err := newService(deps)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// NewRecoveryService wires the expiry reaper over the same engine.
func NewRecoveryService(deps Deps) (RecoveryService, error) {
	svc, err := newService(deps)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func newService(deps Deps) (*service, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	if deps.Reservations == nil {
		return nil, fmt.Errorf("reservation repository is required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("order repository is required")
	}
	if deps.Cart == nil {
		return nil, fmt.Errorf("cart repository is required")
	}
	if deps.Products == nil {
		return nil, fmt.Errorf("product repository is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.Wallet == nil {
		return nil, fmt.Errorf("wallet service is required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox service is required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:           deps.DB,
		reservations: deps.Reservations,
		orders:       deps.Orders,
		cart:         deps.Cart,
		products:     deps.Products,
		users:        deps.Users,
		wallet:       deps.Wallet,
		outbox:       deps.Outbox,
		gateway:      deps.Gateway,
		cfg:          deps.Config,
		logg:         deps.Logger,
		now:          now,
	}, nil
}

// ReservationResult is the buyer-facing view of a live reservation.
type ReservationResult struct {
	OrderID       uuid.UUID                `json:"order_id"`
	PaymentMethod enums.PaymentMethod      `json:"payment_method"`
	CardLast4     *string                  `json:"card_last4,omitempty"`
	AmountCents   int64                    `json:"amount_cents"`
	ExpiresAt     time.Time                `json:"expires_at"`
	Sellers       []projection.SellerGroup `json:"sellers"`
}

// expired reports whether the order's settlement window has closed. The
// boundary instant itself counts as expired.
func (s *service) expired(order *models.TransientOrder) bool {
	return !s.now().Before(order.ExpiresAt(s.cfg.ReservationWindow))
}

func (s *service) Reserve(ctx context.Context, input ReserveInput) (*ReservationResult, error) {
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}

	buyer, err := s.users.GetByID(ctx, input.BuyerID)
	if err != nil {
		return nil, err
	}
	if !buyer.IsActive || buyer.IsBlocked {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account is not allowed to check out")
	}
	if input.PaymentMethod == enums.PaymentMethodCard && !buyer.HasStoredCard() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no stored card on file")
	}

	var result *ReservationResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		resRepo := s.reservations.WithTx(tx)

		// A new reservation implicitly cancels any existing one, live or
		// stale: its inventory is released before the cart is re-reserved.
		existing, err := resRepo.GetByBuyerForUpdate(ctx, buyer.ID)
		switch {
		case err == nil:
			if err := s.releaseLocked(ctx, tx, existing); err != nil {
				return err
			}
		case isNotFound(err):
			// nothing to release
		default:
			return err
		}

		cartLines, err := s.cart.WithTx(tx).ListByBuyer(ctx, buyer.ID)
		if err != nil {
			return err
		}
		if len(cartLines) == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart is empty")
		}

		needsDelivery := false
		for _, line := range cartLines {
			if line.Delivery {
				needsDelivery = true
				break
			}
		}
		deliveryAddress := input.DeliveryAddress
		if needsDelivery && (deliveryAddress == nil || deliveryAddress.IsZero()) {
			return pkgerrors.New(pkgerrors.CodeValidation, "delivery address is required")
		}

		productRepo := s.products.WithTx(tx)
		userRepo := s.users.WithTx(tx)
		orderLines := make([]models.TransientOrderLine, 0, len(cartLines))

		for _, line := range cartLines {
			product, err := productRepo.GetByIDForUpdate(ctx, line.ProductID)
			if err != nil {
				return err
			}
			seller, err := userRepo.GetByID(ctx, product.SellerID)
			if err != nil {
				return err
			}
			if err := cart.CheckLine(buyer, seller, product, line); err != nil {
				return err
			}
			if err := productRepo.ApplyReservation(ctx, product.ID, line.Quantity); err != nil {
				return err
			}

			pickup := product.PickupAddress
			if pickup == nil {
				pickup = seller.PickupAddress
			}
			orderLines = append(orderLines, models.TransientOrderLine{
				ProductID: product.ID,
				Snapshot: models.ProductSnapshot{
					ProductID:     product.ID,
					SellerID:      seller.ID,
					SellerName:    seller.FullName(),
					SellerPhone:   seller.Phone,
					Name:          product.Name,
					PriceCents:    product.PriceCents,
					Quantity:      product.Quantity - line.Quantity,
					QuantitySold:  product.QuantitySold + line.Quantity,
					SelfPickup:    product.SelfPickup,
					Delivery:      product.Delivery,
					PickupAddress: pickup,
					Country:       product.Country,
				},
				SelfPickup: line.SelfPickup,
				Delivery:   line.Delivery,
				Quantity:   line.Quantity,
			})
		}

		order := &models.TransientOrder{
			BuyerID:         buyer.ID,
			PaymentMethod:   input.PaymentMethod,
			PlatformFeeRate: s.cfg.FeeRate(),
			Lines:           orderLines,
		}
		if needsDelivery {
			order.DeliveryAddress = deliveryAddress
		}
		if input.PaymentMethod == enums.PaymentMethodCard {
			order.CardLast4 = buyer.CardLast4
		}
		if err := resRepo.Create(ctx, order); err != nil {
			return err
		}

		if err := s.cart.WithTx(tx).DeleteAllForBuyer(ctx, buyer.ID); err != nil {
			return err
		}

		result = s.reservationResult(order)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":     result.OrderID.String(),
			"amount_cents": result.AmountCents,
			"expires_at":   result.ExpiresAt,
		})
		s.logg.Info(logCtx, "reservation created")
	}
	return result, nil
}

// Current returns the buyer's live reservation, if any. Expired reservations
// read as absent even before the reaper has released them.
func (s *service) Current(ctx context.Context, buyerID uuid.UUID) (*ReservationResult, error) {
	order, err := s.reservations.GetByBuyer(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if s.expired(order) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no reservation in progress")
	}
	return s.reservationResult(order), nil
}

func (s *service) reservationResult(order *models.TransientOrder) *ReservationResult {
	var amount int64
	for _, line := range order.Lines {
		amount += line.SubtotalCents()
	}
	return &ReservationResult{
		OrderID:       order.ID,
		PaymentMethod: order.PaymentMethod,
		CardLast4:     order.CardLast4,
		AmountCents:   amount,
		ExpiresAt:     order.ExpiresAt(s.cfg.ReservationWindow),
		Sellers:       projection.GroupTransientLines(order.Lines),
	}
}

// releaseLocked restores inventory for a locked reservation and deletes it.
// Listings deleted since the reservation are skipped.
func (s *service) releaseLocked(ctx context.Context, tx *gorm.DB, order *models.TransientOrder) error {
	productRepo := s.products.WithTx(tx)
	for _, line := range order.Lines {
		if err := productRepo.ApplyRelease(ctx, line.ProductID, line.Quantity); err != nil {
			if isNotFound(err) {
				if s.logg != nil {
					logCtx := s.logg.WithFields(ctx, map[string]any{
						"order_id":   order.ID.String(),
						"product_id": line.ProductID.String(),
					})
					s.logg.Warn(logCtx, "release skipped missing product")
				}
				continue
			}
			return err
		}
	}
	return s.reservations.WithTx(tx).Delete(ctx, order.ID)
}

func isNotFound(err error) bool {
	typed := pkgerrors.As(err)
	return typed != nil && typed.Code() == pkgerrors.CodeNotFound
}
