package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type EntryType string

const (
	// EntryTypeRentalPayment records the renter's full charge.
	EntryTypeRentalPayment EntryType = "rental_payment"
	// EntryTypeOwnerPayout records the owner's share awaiting transfer.
	EntryTypeOwnerPayout EntryType = "owner_payout"
)

type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusCompleted EntryStatus = "completed"
)

// LedgerEntry is append-only. A pending owner payout is updated at most
// twice: once to attach the transfer id and once to mark it completed.
type LedgerEntry struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	RentalID           snowflake.ID `gorm:"not null" json:"rental_id"`
	OwnerID            string       `gorm:"not null" json:"owner_id"`
	EntryType          EntryType    `gorm:"column:entry_type;type:text;not null" json:"type"`
	Amount             int64        `gorm:"not null" json:"amount"`
	Currency           string       `gorm:"not null" json:"currency"`
	Status             EntryStatus  `gorm:"type:text;not null" json:"status"`
	ExternalPaymentID  *string      `json:"external_payment_id,omitempty"`
	ExternalTransferID *string      `json:"external_transfer_id,omitempty"`
	CreatedAt          time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null" json:"updated_at"`
	CompletedAt        *time.Time   `json:"completed_at,omitempty"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }
