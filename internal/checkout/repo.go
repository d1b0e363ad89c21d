package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tradeyard/tradeyard-backend/pkg/db/models"
	pkgerrors "github.com/tradeyard/tradeyard-backend/pkg/errors"
)

// Repository manages persistence for live reservations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetByBuyer(ctx context.Context, buyerID uuid.UUID) (*models.TransientOrder, error)
	GetByBuyerForUpdate(ctx context.Context, buyerID uuid.UUID) (*models.TransientOrder, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.TransientOrder, error)
	Create(ctx context.Context, order *models.TransientOrder) error
	SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID *string) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListExpiredIDs(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reservation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetByBuyer(ctx context.Context, buyerID uuid.UUID) (*models.TransientOrder, error) {
	var order models.TransientOrder
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("buyer_id = ?", buyerID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no reservation in progress")
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetByBuyerForUpdate(ctx context.Context, buyerID uuid.UUID) (*models.TransientOrder, error) {
	var order models.TransientOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Lines").
		Where("buyer_id = ?", buyerID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no reservation in progress")
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.TransientOrder, error) {
	var order models.TransientOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Lines").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) Create(ctx context.Context, order *models.TransientOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID *string) error {
	return r.db.WithContext(ctx).
		Model(&models.TransientOrder{}).
		Where("id = ?", id).
		Update("payment_intent_id", intentID).Error
}

// Delete removes the reservation and its lines. Lines are removed explicitly
// so the behavior does not depend on foreign key enforcement.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", id).
		Delete(&models.TransientOrderLine{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.TransientOrder{}).Error
}

func (r *repository) ListExpiredIDs(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.TransientOrder{}).
		Where("created_at <= ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
