package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tradeyard/tradeyard-backend/internal/products"
	"github.com/tradeyard/tradeyard-backend/pkg/db"
	"github.com/tradeyard/tradeyard-backend/pkg/db/models"
	pkgerrors "github.com/tradeyard/tradeyard-backend/pkg/errors"
)

// Item pairs a cart line with the current listing so callers can render
// price and availability without a second lookup.
type Item struct {
	Line    models.CartLine
	Product models.Product
}

// AddInput describes a new cart line. Exactly one fulfillment flag should be
// set; the validator rejects lines with neither.
type AddInput struct {
	BuyerID    uuid.UUID
	ProductID  uuid.UUID
	SelfPickup bool
	Delivery   bool
}

// Service exposes the cart operations.
type Service interface {
	List(ctx context.Context, buyerID uuid.UUID) ([]Item, error)
	Add(ctx context.Context, input AddInput) (*models.CartLine, error)
	Increment(ctx context.Context, buyerID, productID uuid.UUID) (*models.CartLine, error)
	Decrement(ctx context.Context, buyerID, productID uuid.UUID) (*models.CartLine, error)
	Remove(ctx context.Context, buyerID, productID uuid.UUID) error
	Clear(ctx context.Context, buyerID uuid.UUID) error
}

type service struct {
	repo        Repository
	productRepo products.Repository
}

// NewService wires the cart service.
func NewService(repo Repository, productRepo products.Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository is required")
	}
	if productRepo == nil {
		return nil, fmt.Errorf("product repository is required")
	}
	return &service{repo: repo, productRepo: productRepo}, nil
}

func (s *service) List(ctx context.Context, buyerID uuid.UUID) ([]Item, error) {
	lines, err := s.repo.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(lines))
	for _, line := range lines {
		product, err := s.productRepo.GetByID(ctx, line.ProductID)
		if err != nil {
			// A listing deleted after the line was added should not make
			// the whole cart unreadable.
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
				continue
			}
			return nil, err
		}
		items = append(items, Item{Line: line, Product: *product})
	}
	return items, nil
}

func (s *service) Add(ctx context.Context, input AddInput) (*models.CartLine, error) {
	product, err := s.productRepo.GetByID(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if product.SellerID == input.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("you cannot purchase your own listing %s", product.Name))
	}
	if !product.IsActive || product.IsBlocked {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is no longer available", product.Name))
	}
	if input.SelfPickup && !product.SelfPickup {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("self pickup is not offered for %s", product.Name))
	}
	if input.Delivery && !product.Delivery {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("delivery is not offered for %s", product.Name))
	}
	if product.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("Only %d quantity is available for %s", product.Quantity, product.Name))
	}

	line := &models.CartLine{
		BuyerID:    input.BuyerID,
		ProductID:  input.ProductID,
		SelfPickup: input.SelfPickup,
		Delivery:   input.Delivery,
		Quantity:   1,
	}
	if err := s.repo.Create(ctx, line); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "product is already in the cart")
		}
		return nil, err
	}
	return line, nil
}

func (s *service) Increment(ctx context.Context, buyerID, productID uuid.UUID) (*models.CartLine, error) {
	line, err := s.repo.GetLine(ctx, buyerID, productID)
	if err != nil {
		return nil, err
	}
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if line.Quantity+1 > product.Quantity {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("Only %d quantity is available for %s", product.Quantity, product.Name))
	}

	line.Quantity++
	if err := s.repo.Save(ctx, line); err != nil {
		return nil, err
	}
	return line, nil
}

func (s *service) Decrement(ctx context.Context, buyerID, productID uuid.UUID) (*models.CartLine, error) {
	line, err := s.repo.GetLine(ctx, buyerID, productID)
	if err != nil {
		return nil, err
	}
	if line.Quantity <= 1 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "quantity cannot go below one, remove the product instead")
	}

	line.Quantity--
	if err := s.repo.Save(ctx, line); err != nil {
		return nil, err
	}
	return line, nil
}

func (s *service) Remove(ctx context.Context, buyerID, productID uuid.UUID) error {
	return s.repo.Delete(ctx, buyerID, productID)
}

func (s *service) Clear(ctx context.Context, buyerID uuid.UUID) error {
	return s.repo.DeleteAllForBuyer(ctx, buyerID)
}
