package wallet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tradeyard/tradeyard-backend/pkg/db/models"
)

// Repository manages persistence for ledger events and the platform fee
// counter.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertLedgerEvent(ctx context.Context, event *models.LedgerEvent) error
	ListLedgerEventsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error)
	AddPlatformProfit(ctx context.Context, amountCents int64) error
	GetPlatformProfit(ctx context.Context) (*models.PlatformProfit, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) InsertLedgerEvent(ctx context.Context, event *models.LedgerEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListLedgerEventsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// AddPlatformProfit bumps the singleton counter, creating the row on first
// use so fresh databases and test fixtures behave alike.
func (r *repository) AddPlatformProfit(ctx context.Context, amountCents int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.PlatformProfit{}).
		Where("1 = 1").
		Update("total_cents", gorm.Expr("total_cents + ?", amountCents))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.db.WithContext(ctx).Create(&models.PlatformProfit{TotalCents: amountCents}).Error
	}
	return nil
}

func (r *repository) GetPlatformProfit(ctx context.Context) (*models.PlatformProfit, error) {
	var profit models.PlatformProfit
	err := r.db.WithContext(ctx).First(&profit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.PlatformProfit{}, nil
		}
		return nil, err
	}
	return &profit, nil
}
