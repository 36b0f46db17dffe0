package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *EventRecord) (bool, error)
	Find(ctx context.Context, db *gorm.DB, provider, eventID string) (*EventRecord, error)
	// MarkProcessed only succeeds once per record.
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) (int64, error)
	RecordFailure(ctx context.Context, db *gorm.DB, id snowflake.ID, message string) error
	ListUnprocessed(ctx context.Context, db *gorm.DB, afterID snowflake.ID, receivedBefore time.Time, limit int) ([]EventRecord, error)
}
