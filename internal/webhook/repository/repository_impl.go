package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rigmarket/internal/webhook/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const eventColumns = `id, provider, event_id, event_type, payload, correlation_id,
	attempts, received_at, processed_at, processing_error`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, event_id) DO NOTHING`,
		record.ID,
		record.Provider,
		record.EventID,
		record.EventType,
		record.Payload,
		record.CorrelationID,
		record.Attempts,
		record.ReceivedAt,
		record.ProcessedAt,
		record.ProcessingError,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, provider, eventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+eventColumns+`
		 FROM webhook_events
		 WHERE provider = ? AND event_id = ?
		 LIMIT 1`,
		provider,
		eventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processed_at = ?, attempts = attempts + 1, processing_error = NULL
		 WHERE id = ? AND processed_at IS NULL`,
		processedAt,
		id,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) RecordFailure(ctx context.Context, db *gorm.DB, id snowflake.ID, message string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET attempts = attempts + 1, processing_error = ?
		 WHERE id = ? AND processed_at IS NULL`,
		message,
		id,
	).Error
}

func (r *repo) ListUnprocessed(ctx context.Context, db *gorm.DB, afterID snowflake.ID, receivedBefore time.Time, limit int) ([]domain.EventRecord, error) {
	var items []domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+eventColumns+`
		 FROM webhook_events
		 WHERE processed_at IS NULL AND received_at < ? AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		receivedBefore,
		afterID,
		limit,
	).Scan(&items).Error
	return items, err
}
