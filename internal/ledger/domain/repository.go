package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert reports whether a row was written; (rental_id, entry_type)
	// conflicts are skipped.
	Insert(ctx context.Context, db *gorm.DB, entry *LedgerEntry) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LedgerEntry, error)
	AttachTransfer(ctx context.Context, db *gorm.DB, id snowflake.ID, transferID string, now time.Time) (int64, error)
	MarkCompletedByID(ctx context.Context, db *gorm.DB, id snowflake.ID, transferID string, now time.Time) (int64, error)
	MarkCompletedByTransfer(ctx context.Context, db *gorm.DB, transferID string, now time.Time) (int64, error)
	ListPendingPayouts(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]LedgerEntry, error)
	ListByRental(ctx context.Context, db *gorm.DB, rentalID snowflake.ID) ([]LedgerEntry, error)
	ListByOwner(ctx context.Context, db *gorm.DB, ownerID string, afterID snowflake.ID, limit int) ([]*LedgerEntry, error)
}
