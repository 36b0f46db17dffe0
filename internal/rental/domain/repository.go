package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rigmarket/internal/pricing"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rental *Rental) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Rental, error)
	FindByExternalPaymentID(ctx context.Context, db *gorm.DB, paymentID string) (*Rental, error)

	// CaptureSplit writes the split only while none is recorded.
	CaptureSplit(ctx context.Context, db *gorm.DB, id snowflake.ID, split pricing.Split, now time.Time) (int64, error)
	// AttachPayment records the gateway payment id only while none is recorded.
	AttachPayment(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID string, now time.Time) (int64, error)
	// MarkPaid moves a pending payment to paid and confirms the rental. Failed
	// or cancelled rentals are terminal and are left untouched.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID string, now time.Time) (int64, error)
	// MarkFailed moves a pending payment to failed and cancels the rental.
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (int64, error)

	ListPaidWithoutPayout(ctx context.Context, db *gorm.DB, ownerID string, limit int) ([]Rental, error)
	ListPendingWithPayment(ctx context.Context, db *gorm.DB, afterID snowflake.ID, updatedBefore time.Time, limit int) ([]Rental, error)
	ListPaidMissingLedger(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]Rental, error)
}
