package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tradeyard/tradeyard-backend/internal/products"
	"github.com/tradeyard/tradeyard-backend/internal/users"
	"github.com/tradeyard/tradeyard-backend/pkg/db/models"
	pkgerrors "github.com/tradeyard/tradeyard-backend/pkg/errors"
)

// Validator checks a buyer's cart against the current listing state. The
// same per-line rules run again inside the reservation transaction, so a
// passing verification is a prediction, not a guarantee.
type Validator interface {
	VerifyCart(ctx context.Context, buyerID uuid.UUID) error
}

type validator struct {
	cartRepo    Repository
	productRepo products.Repository
	userRepo    users.Repository
}

// NewValidator wires the cart validator.
func NewValidator(cartRepo Repository, productRepo products.Repository, userRepo users.Repository) (Validator, error) {
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository is required")
	}
	if productRepo == nil {
		return nil, fmt.Errorf("product repository is required")
	}
	if userRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	return &validator{cartRepo: cartRepo, productRepo: productRepo, userRepo: userRepo}, nil
}

func (v *validator) VerifyCart(ctx context.Context, buyerID uuid.UUID) error {
	buyer, err := v.userRepo.GetByID(ctx, buyerID)
	if err != nil {
		return err
	}
	if !buyer.IsActive || buyer.IsBlocked {
		return pkgerrors.New(pkgerrors.CodeForbidden, "account is not allowed to check out")
	}

	lines, err := v.cartRepo.ListByBuyer(ctx, buyerID)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart is empty")
	}

	for _, line := range lines {
		product, err := v.productRepo.GetByID(ctx, line.ProductID)
		if err != nil {
			return attachProduct(err, line.ProductID)
		}
		seller, err := v.userRepo.GetByID(ctx, product.SellerID)
		if err != nil {
			return attachProduct(err, line.ProductID)
		}
		if err := CheckLine(buyer, seller, product, line); err != nil {
			return attachProduct(err, line.ProductID)
		}
	}
	return nil
}

// CheckLine applies the ordered per-line rules against a loaded buyer,
// seller and product. Checkout calls it again after locking the product row.
func CheckLine(buyer, seller *models.User, product *models.Product, line models.CartLine) error {
	if product.SellerID == buyer.ID {
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("you cannot purchase your own listing %s", product.Name))
	}
	if !seller.IsActive || seller.IsBlocked {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("the seller of %s is unavailable", product.Name))
	}
	if product.Country != buyer.Country {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is not available in your country", product.Name))
	}
	if !line.SelfPickup && !line.Delivery {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no fulfillment method selected for %s", product.Name))
	}
	if line.SelfPickup && !product.SelfPickup {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("self pickup is not offered for %s", product.Name))
	}
	if line.Delivery && !product.Delivery {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("delivery is not offered for %s", product.Name))
	}
	if line.Quantity > product.Quantity {
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("Only %d quantity is available for %s", product.Quantity, product.Name))
	}
	if !product.IsActive || product.IsBlocked {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is no longer available", product.Name))
	}
	return nil
}

func attachProduct(err error, productID uuid.UUID) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return err
	}
	return typed.WithDetails(map[string]any{"product_id": productID.String()})
}
