package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tradeyard/tradeyard-backend/internal/checkout/projection"
	"github.com/tradeyard/tradeyard-backend/pkg/db/models"
	"github.com/tradeyard/tradeyard-backend/pkg/enums"
	"github.com/tradeyard/tradeyard-backend/pkg/pagination"
	"github.com/tradeyard/tradeyard-backend/pkg/types"
)

// OrderView is the buyer-facing rendering of a settled order.
type OrderView struct {
	ID              uuid.UUID                `json:"id"`
	CreatedAt       time.Time                `json:"created_at"`
	PaymentMethod   enums.PaymentMethod      `json:"payment_method"`
	CardLast4       *string                  `json:"card_last4,omitempty"`
	DeliveryAddress *types.Address           `json:"delivery_address,omitempty"`
	TotalCents      int64                    `json:"total_cents"`
	Sellers         []projection.SellerGroup `json:"sellers"`
}

// OrderPage is one page of a buyer's order history.
type OrderPage struct {
	Orders     []OrderView `json:"orders"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// ReceivedLine is one sold line from the seller's perspective.
type ReceivedLine struct {
	OrderID       uuid.UUID `json:"order_id"`
	ProductID     uuid.UUID `json:"product_id"`
	ProductName   string    `json:"product_name"`
	PriceCents    int64     `json:"price_cents"`
	Quantity      int       `json:"quantity"`
	SubtotalCents int64     `json:"subtotal_cents"`
	SelfPickup    bool      `json:"self_pickup"`
	Delivery      bool      `json:"delivery"`
	SoldAt        time.Time `json:"sold_at"`
}

// ReceivedPage is one page of a seller's sales.
type ReceivedPage struct {
	Lines      []ReceivedLine `json:"lines"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// Service reads settled orders for buyers and sellers.
type Service interface {
	GetOrder(ctx context.Context, buyerID, orderID uuid.UUID) (*OrderView, error)
	ListPastOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderPage, error)
	ListReceivedOrders(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*ReceivedPage, error)
}

type service struct {
	repo Repository
}

// NewService wires the order projection service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository is required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetOrder(ctx context.Context, buyerID, orderID uuid.UUID) (*OrderView, error) {
	order, err := s.repo.GetByIDForBuyer(ctx, orderID, buyerID)
	if err != nil {
		return nil, err
	}
	view := orderView(order)
	return &view, nil
}

func (s *service) ListPastOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderPage, error) {
	rows, err := s.repo.ListByBuyer(ctx, buyerID, params)
	if err != nil {
		return nil, err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	page := &OrderPage{Orders: make([]OrderView, 0, min(len(rows), limit))}
	for i, row := range rows {
		if i == limit {
			last := rows[limit-1]
			page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			break
		}
		page.Orders = append(page.Orders, orderView(&row))
	}
	return page, nil
}

func (s *service) ListReceivedOrders(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*ReceivedPage, error) {
	rows, err := s.repo.ListLinesBySeller(ctx, sellerID, params)
	if err != nil {
		return nil, err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	page := &ReceivedPage{Lines: make([]ReceivedLine, 0, min(len(rows), limit))}
	for i, row := range rows {
		if i == limit {
			last := rows[limit-1]
			page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			break
		}
		page.Lines = append(page.Lines, ReceivedLine{
			OrderID:       row.OrderID,
			ProductID:     row.ProductID,
			ProductName:   row.Snapshot.Name,
			PriceCents:    row.Snapshot.PriceCents,
			Quantity:      row.Quantity,
			SubtotalCents: row.SubtotalCents(),
			SelfPickup:    row.SelfPickup,
			Delivery:      row.Delivery,
			SoldAt:        row.CreatedAt,
		})
	}
	return page, nil
}

func orderView(order *models.PurchasedOrder) OrderView {
	return OrderView{
		ID:              order.ID,
		CreatedAt:       order.CreatedAt,
		PaymentMethod:   order.PaymentMethod,
		CardLast4:       order.CardLast4,
		DeliveryAddress: order.DeliveryAddress,
		TotalCents:      order.TotalCents,
		Sellers:         projection.GroupPurchasedLines(order.Lines),
	}
}
