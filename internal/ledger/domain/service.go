package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rigmarket/pkg/db/pagination"
	"gorm.io/gorm"
)

// RecordPaymentRequest carries a split already decided at charge time.
type RecordPaymentRequest struct {
	RentalID          snowflake.ID
	OwnerID           string
	Currency          string
	Total             int64
	PlatformFee       int64
	OwnerPayout       int64
	ExternalPaymentID string
	OccurredAt        time.Time
}

type RecordPayoutRequest = RecordPaymentRequest

type MarkTransferRequest struct {
	// LedgerEntryID is preferred; ExternalTransferID is the fallback lookup.
	LedgerEntryID      snowflake.ID
	ExternalTransferID string
	OccurredAt         time.Time
}

type ListOwnerEntriesRequest struct {
	OwnerID   string
	PageToken string
	PageSize  int32
}

type ListOwnerEntriesResponse struct {
	pagination.PageInfo
	Entries []LedgerEntry `json:"entries"`
}

type Service interface {
	// RecordRentalPayment inserts the completed rental_payment entry. It
	// reports false when the entry already exists.
	RecordRentalPayment(ctx context.Context, tx *gorm.DB, req RecordPaymentRequest) (bool, error)
	// RecordOwnerPayout inserts the pending owner_payout entry. It reports
	// false when the entry already exists.
	RecordOwnerPayout(ctx context.Context, tx *gorm.DB, req RecordPayoutRequest) (bool, error)
	MarkTransferCompleted(ctx context.Context, tx *gorm.DB, req MarkTransferRequest) (bool, error)
	AttachTransfer(ctx context.Context, entryID snowflake.ID, externalTransferID string) error
	// ListPendingPayouts pages, by ascending id after afterID, the pending
	// payouts that can be transferred now.
	ListPendingPayouts(ctx context.Context, afterID snowflake.ID, limit int) ([]LedgerEntry, error)
	ListByRental(ctx context.Context, rentalID snowflake.ID) ([]LedgerEntry, error)
	ListByOwner(ctx context.Context, req ListOwnerEntriesRequest) (ListOwnerEntriesResponse, error)
}

var (
	ErrInvalidRental    = errors.New("invalid_rental")
	ErrInvalidOwner     = errors.New("invalid_owner")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrSplitMismatch    = errors.New("fee_split_mismatch")
	ErrInvalidTransfer  = errors.New("invalid_transfer")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrNotFound         = errors.New("ledger_entry_not_found")
	ErrTransferAttached = errors.New("transfer_already_attached")
)
