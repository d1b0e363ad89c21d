package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tradeyard/tradeyard-backend/pkg/types"
)

// User represents the identity snapshot the checkout core needs. Accounts are
// minted by the identity service; this table mirrors the fields settlement
// and validation read.
type User struct {
	ID                 uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	FirstName          string         `gorm:"column:first_name;not null"`
	LastName           string         `gorm:"column:last_name;not null"`
	Phone              *string        `gorm:"column:phone"`
	Country            string         `gorm:"column:country;not null"`
	IsActive           bool           `gorm:"column:is_active;not null"`
	IsBlocked          bool           `gorm:"column:is_blocked;not null;default:false"`
	WalletBalanceCents int64          `gorm:"column:wallet_balance_cents;not null;default:0"`
	PickupAddress      *types.Address `gorm:"column:pickup_address;type:address_t"`
	GatewayCustomerID  *string        `gorm:"column:gateway_customer_id"`
	CardID             *string        `gorm:"column:card_id"`
	CardLast4          *string        `gorm:"column:card_last4"`
	CardExpMonth       *int           `gorm:"column:card_exp_month"`
	CardExpYear        *int           `gorm:"column:card_exp_year"`
	CreatedAt          time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// FullName joins the name parts for projections and notifications.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasStoredCard reports whether the gateway card metadata needed for the
// card payment path is present.
func (u User) HasStoredCard() bool {
	return u.CardID != nil && *u.CardID != "" && u.CardLast4 != nil
}
