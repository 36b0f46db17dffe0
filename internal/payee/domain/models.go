package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PayeeAccount links an equipment owner to the gateway account that
// receives their payouts. The capability flags are written only from
// account status webhooks.
type PayeeAccount struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	OwnerID           string       `gorm:"not null" json:"owner_id"`
	Provider          string       `gorm:"not null" json:"provider"`
	ExternalAccountID string       `gorm:"not null" json:"external_account_id"`
	Email             string       `gorm:"not null" json:"email"`
	DisplayName       string       `gorm:"not null" json:"display_name"`
	Country           string       `gorm:"not null" json:"country"`
	ChargesEnabled    bool         `json:"charges_enabled"`
	PayoutEnabled     bool         `json:"payout_enabled"`
	BankVerified      bool         `json:"bank_verified"`
	DetailsSubmitted  bool         `json:"details_submitted"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`

	// CapabilitiesSyncedAt is the gateway time of the last applied account update.
	CapabilitiesSyncedAt *time.Time `json:"capabilities_synced_at,omitempty"`
}

func (PayeeAccount) TableName() string { return "payee_accounts" }
