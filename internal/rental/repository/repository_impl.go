package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rigmarket/internal/pricing"
	"github.com/smallbiznis/rigmarket/internal/rental/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const rentalColumns = `id, machine_id, renter_id, owner_id, start_date, end_date, daily_rate, currency,
	status, payment_status, total_amount, platform_fee, owner_payout, fee_schedule, fee_rate,
	external_payment_id, created_at, updated_at, paid_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rental *domain.Rental) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO rentals (`+rentalColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rental.ID,
		rental.MachineID,
		rental.RenterID,
		rental.OwnerID,
		rental.StartDate,
		rental.EndDate,
		rental.DailyRate,
		rental.Currency,
		string(rental.Status),
		string(rental.PaymentStatus),
		rental.TotalAmount,
		rental.PlatformFee,
		rental.OwnerPayout,
		rental.FeeSchedule,
		rental.FeeRate,
		rental.ExternalPaymentID,
		rental.CreatedAt,
		rental.UpdatedAt,
		rental.PaidAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Rental, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByExternalPaymentID(ctx context.Context, db *gorm.DB, paymentID string) (*domain.Rental, error) {
	return r.findOne(ctx, db, `external_payment_id = ?`, paymentID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Rental, error) {
	var rental domain.Rental
	err := db.WithContext(ctx).Raw(
		`SELECT `+rentalColumns+` FROM rentals WHERE `+where+` LIMIT 1`,
		arg,
	).Scan(&rental).Error
	if err != nil {
		return nil, err
	}
	if rental.ID == 0 {
		return nil, nil
	}
	return &rental, nil
}

func (r *repo) CaptureSplit(ctx context.Context, db *gorm.DB, id snowflake.ID, split pricing.Split, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE rentals
		 SET total_amount = ?, platform_fee = ?, owner_payout = ?, fee_schedule = ?, fee_rate = ?, updated_at = ?
		 WHERE id = ? AND platform_fee IS NULL`,
		split.Total,
		split.PlatformFee,
		split.OwnerPayout,
		string(split.Schedule),
		split.FeeRate,
		now,
		id,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) AttachPayment(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE rentals
		 SET external_payment_id = ?, updated_at = ?
		 WHERE id = ? AND external_payment_id IS NULL`,
		paymentID,
		now,
		id,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE rentals
		 SET payment_status = ?, status = ?, paid_at = ?, updated_at = ?,
		     external_payment_id = COALESCE(external_payment_id, ?)
		 WHERE id = ? AND payment_status = ? AND status = ?`,
		string(domain.PaymentStatusPaid),
		string(domain.StatusConfirmed),
		now,
		now,
		paymentID,
		id,
		string(domain.PaymentStatusPending),
		string(domain.StatusPending),
	)
	return result.RowsAffected, result.Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE rentals
		 SET payment_status = ?, status = ?, updated_at = ?
		 WHERE id = ? AND payment_status = ?`,
		string(domain.PaymentStatusFailed),
		string(domain.StatusCancelled),
		now,
		id,
		string(domain.PaymentStatusPending),
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ListPaidWithoutPayout(ctx context.Context, db *gorm.DB, ownerID string, limit int) ([]domain.Rental, error) {
	var rentals []domain.Rental
	err := db.WithContext(ctx).Raw(
		`SELECT `+rentalColumns+` FROM rentals
		 WHERE owner_id = ? AND payment_status = ? AND platform_fee IS NOT NULL AND owner_payout > 0
		   AND NOT EXISTS (
		     SELECT 1 FROM ledger_entries l
		     WHERE l.rental_id = rentals.id AND l.entry_type = 'owner_payout'
		   )
		 ORDER BY id ASC
		 LIMIT ?`,
		ownerID,
		string(domain.PaymentStatusPaid),
		limit,
	).Scan(&rentals).Error
	return rentals, err
}

func (r *repo) ListPendingWithPayment(ctx context.Context, db *gorm.DB, afterID snowflake.ID, updatedBefore time.Time, limit int) ([]domain.Rental, error) {
	var rentals []domain.Rental
	err := db.WithContext(ctx).Raw(
		`SELECT `+rentalColumns+` FROM rentals
		 WHERE payment_status = ? AND status = ? AND external_payment_id IS NOT NULL
		   AND updated_at <= ? AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		string(domain.PaymentStatusPending),
		string(domain.StatusPending),
		updatedBefore,
		afterID,
		limit,
	).Scan(&rentals).Error
	return rentals, err
}

func (r *repo) ListPaidMissingLedger(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]domain.Rental, error) {
	var rentals []domain.Rental
	err := db.WithContext(ctx).Raw(
		`SELECT `+rentalColumns+` FROM rentals
		 WHERE payment_status = ? AND id > ?
		   AND NOT EXISTS (
		     SELECT 1 FROM ledger_entries l
		     WHERE l.rental_id = rentals.id AND l.entry_type = 'rental_payment'
		   )
		 ORDER BY id ASC
		 LIMIT ?`,
		string(domain.PaymentStatusPaid),
		afterID,
		limit,
	).Scan(&rentals).Error
	return rentals, err
}
