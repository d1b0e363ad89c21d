package products

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tradeyard/tradeyard-backend/pkg/db/models"
	pkgerrors "github.com/tradeyard/tradeyard-backend/pkg/errors"
)

// Repository manages persistence for seller listings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ApplyReservation(ctx context.Context, id uuid.UUID, quantity int) error
	ApplyRelease(ctx context.Context, id uuid.UUID, quantity int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a product repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, err
	}
	return &product, nil
}

// GetByIDForUpdate locks the listing row so quantity checks and counter
// moves observe a stable state inside the transaction.
func (r *repository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, err
	}
	return &product, nil
}

// ApplyReservation moves quantity into quantity_sold and bumps the received
// counter. The quantity guard makes oversell impossible even if the caller
// raced past the validator.
func (r *repository) ApplyReservation(ctx context.Context, id uuid.UUID, quantity int) error {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND quantity >= ?", id, quantity).
		Updates(map[string]any{
			"quantity":        gorm.Expr("quantity - ?", quantity),
			"quantity_sold":   gorm.Expr("quantity_sold + ?", quantity),
			"orders_received": gorm.Expr("orders_received + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock")
	}
	return nil
}

// ApplyRelease is the exact inverse of ApplyReservation.
func (r *repository) ApplyRelease(ctx context.Context, id uuid.UUID, quantity int) error {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"quantity":        gorm.Expr("quantity + ?", quantity),
			"quantity_sold":   gorm.Expr("quantity_sold - ?", quantity),
			"orders_received": gorm.Expr("orders_received - 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}
