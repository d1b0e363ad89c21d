package wallet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tradeyard/tradeyard-backend/internal/users"
	"github.com/tradeyard/tradeyard-backend/pkg/db/models"
	"github.com/tradeyard/tradeyard-backend/pkg/enums"
	pkgerrors "github.com/tradeyard/tradeyard-backend/pkg/errors"
)

// CreditSellerInput moves a net transfer into a seller wallet.
type CreditSellerInput struct {
	OrderID     uuid.UUID
	BuyerID     uuid.UUID
	SellerID    uuid.UUID
	AmountCents int64
	Metadata    map[string]any
}

// DebitBuyerInput charges the buyer wallet for the full order amount.
type DebitBuyerInput struct {
	OrderID     uuid.UUID
	BuyerID     uuid.UUID
	AmountCents int64
}

// RecordPlatformFeeInput books the fee remainder of a settlement.
type RecordPlatformFeeInput struct {
	OrderID     uuid.UUID
	BuyerID     uuid.UUID
	AmountCents int64
}

// Service performs wallet moves and writes the matching ledger rows. Every
// method expects to run inside the caller's settlement transaction, so the
// repositories are rebound per call.
type Service interface {
	CreditSeller(ctx context.Context, tx *gorm.DB, input CreditSellerInput) error
	DebitBuyer(ctx context.Context, tx *gorm.DB, input DebitBuyerInput) error
	RecordPlatformFee(ctx context.Context, tx *gorm.DB, input RecordPlatformFeeInput) error
}

type service struct {
	repo     Repository
	userRepo users.Repository
}

// NewService wires the wallet service.
func NewService(repo Repository, userRepo users.Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository is required")
	}
	if userRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	return &service{repo: repo, userRepo: userRepo}, nil
}

func (s *service) CreditSeller(ctx context.Context, tx *gorm.DB, input CreditSellerInput) error {
	if input.AmountCents < 0 {
		return pkgerrors.New(pkgerrors.CodeInternal, "seller credit cannot be negative")
	}

	repo := s.repo.WithTx(tx)
	userRepo := s.userRepo.WithTx(tx)

	if err := userRepo.AdjustWalletBalance(ctx, input.SellerID, input.AmountCents); err != nil {
		return err
	}

	var metadata json.RawMessage
	if input.Metadata != nil {
		encoded, err := json.Marshal(input.Metadata)
		if err != nil {
			return fmt.Errorf("encode ledger metadata: %w", err)
		}
		metadata = encoded
	}

	sellerID := input.SellerID
	return repo.InsertLedgerEvent(ctx, &models.LedgerEvent{
		OrderID:     input.OrderID,
		BuyerID:     input.BuyerID,
		SellerID:    &sellerID,
		Type:        enums.LedgerEventTypeSellerCredit,
		AmountCents: input.AmountCents,
		Metadata:    metadata,
	})
}

func (s *service) DebitBuyer(ctx context.Context, tx *gorm.DB, input DebitBuyerInput) error {
	if input.AmountCents < 0 {
		return pkgerrors.New(pkgerrors.CodeInternal, "buyer debit cannot be negative")
	}

	repo := s.repo.WithTx(tx)
	userRepo := s.userRepo.WithTx(tx)

	buyer, err := userRepo.GetByIDForUpdate(ctx, input.BuyerID)
	if err != nil {
		return err
	}
	if buyer.WalletBalanceCents < input.AmountCents {
		return pkgerrors.New(pkgerrors.CodeConflict, "not enough funds in the wallet")
	}
	if err := userRepo.AdjustWalletBalance(ctx, input.BuyerID, -input.AmountCents); err != nil {
		return err
	}

	return repo.InsertLedgerEvent(ctx, &models.LedgerEvent{
		OrderID:     input.OrderID,
		BuyerID:     input.BuyerID,
		Type:        enums.LedgerEventTypeBuyerDebit,
		AmountCents: input.AmountCents,
	})
}

func (s *service) RecordPlatformFee(ctx context.Context, tx *gorm.DB, input RecordPlatformFeeInput) error {
	if input.AmountCents < 0 {
		return pkgerrors.New(pkgerrors.CodeInternal, "platform fee cannot be negative")
	}

	repo := s.repo.WithTx(tx)
	if err := repo.AddPlatformProfit(ctx, input.AmountCents); err != nil {
		return err
	}

	return repo.InsertLedgerEvent(ctx, &models.LedgerEvent{
		OrderID:     input.OrderID,
		BuyerID:     input.BuyerID,
		Type:        enums.LedgerEventTypePlatformFee,
		AmountCents: input.AmountCents,
	})
}
