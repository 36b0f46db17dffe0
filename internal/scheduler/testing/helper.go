// Package testing ages rows so scheduler jobs pick them up without waiting.
package testing

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/smallbiznis/rigmarket/internal/checkout/domain"
	"gorm.io/gorm"
)

type TimeAccelerator struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTimeAccelerator(db *gorm.DB, now func() time.Time) *TimeAccelerator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &TimeAccelerator{db: db, now: now}
}

// AgeOrder moves an order's created_at back by age.
func (ta *TimeAccelerator) AgeOrder(ctx context.Context, orderID snowflake.ID, age time.Duration) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE orders SET created_at = ? WHERE id = ?`,
		ta.now().Add(-age),
		orderID,
	).Error
}

// AgeProcessingOrders ages every order still in processing.
func (ta *TimeAccelerator) AgeProcessingOrders(ctx context.Context, age time.Duration) (int64, error) {
	result := ta.db.WithContext(ctx).Exec(
		`UPDATE orders SET created_at = ? WHERE status = ?`,
		ta.now().Add(-age),
		string(checkoutdomain.OrderStatusProcessing),
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// AgeRental moves a rental's updated_at back by age.
func (ta *TimeAccelerator) AgeRental(ctx context.Context, rentalID snowflake.ID, age time.Duration) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE rentals SET updated_at = ? WHERE id = ?`,
		ta.now().Add(-age),
		rentalID,
	).Error
}

// AgeWebhookEvent moves a stored delivery's received_at back by age.
func (ta *TimeAccelerator) AgeWebhookEvent(ctx context.Context, provider, eventID string, age time.Duration) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE webhook_events SET received_at = ? WHERE provider = ? AND event_id = ?`,
		ta.now().Add(-age),
		provider,
		eventID,
	).Error
}

// PayoutInfo shows a payout entry's dispatch state for debugging.
type PayoutInfo struct {
	ID                 snowflake.ID
	Status             string
	ExternalTransferID *string
}

func (ta *TimeAccelerator) GetPayoutInfo(ctx context.Context, entryID snowflake.ID) (*PayoutInfo, error) {
	var info PayoutInfo
	err := ta.db.WithContext(ctx).Raw(
		`SELECT id, status, external_transfer_id FROM ledger_entries WHERE id = ?`,
		entryID,
	).Scan(&info).Error
	if err != nil {
		return nil, err
	}
	return &info, nil
}
