package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tradeyard/tradeyard-backend/pkg/db/models"
	pkgerrors "github.com/tradeyard/tradeyard-backend/pkg/errors"
)

// Repository manages persistence for cart lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.CartLine, error)
	GetLine(ctx context.Context, buyerID, productID uuid.UUID) (*models.CartLine, error)
	Create(ctx context.Context, line *models.CartLine) error
	Save(ctx context.Context, line *models.CartLine) error
	Delete(ctx context.Context, buyerID, productID uuid.UUID) error
	DeleteAllForBuyer(ctx context.Context, buyerID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a cart repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repository) GetLine(ctx context.Context, buyerID, productID uuid.UUID) (*models.CartLine, error) {
	var line models.CartLine
	err := r.db.WithContext(ctx).
		Where("buyer_id = ? AND product_id = ?", buyerID, productID).
		First(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the cart")
		}
		return nil, err
	}
	return &line, nil
}

func (r *repository) Create(ctx context.Context, line *models.CartLine) error {
	return r.db.WithContext(ctx).Create(line).Error
}

func (r *repository) Save(ctx context.Context, line *models.CartLine) error {
	return r.db.WithContext(ctx).Save(line).Error
}

func (r *repository) Delete(ctx context.Context, buyerID, productID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("buyer_id = ? AND product_id = ?", buyerID, productID).
		Delete(&models.CartLine{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the cart")
	}
	return nil
}

func (r *repository) DeleteAllForBuyer(ctx context.Context, buyerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Delete(&models.CartLine{}).Error
}
