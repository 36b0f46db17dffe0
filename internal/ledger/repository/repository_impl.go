package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rigmarket/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const entryColumns = `id, rental_id, owner_id, entry_type, amount, currency, status,
	external_payment_id, external_transfer_id, created_at, updated_at, completed_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.LedgerEntry) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (rental_id, entry_type) DO NOTHING`,
		entry.ID,
		entry.RentalID,
		entry.OwnerID,
		string(entry.EntryType),
		entry.Amount,
		entry.Currency,
		string(entry.Status),
		entry.ExternalPaymentID,
		entry.ExternalTransferID,
		entry.CreatedAt,
		entry.UpdatedAt,
		entry.CompletedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`,
		id,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) AttachTransfer(ctx context.Context, db *gorm.DB, id snowflake.ID, transferID string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE ledger_entries
		 SET external_transfer_id = ?, updated_at = ?
		 WHERE id = ? AND entry_type = ? AND external_transfer_id IS NULL`,
		transferID,
		now,
		id,
		string(domain.EntryTypeOwnerPayout),
	)
	return result.RowsAffected, result.Error
}

func (r *repo) MarkCompletedByID(ctx context.Context, db *gorm.DB, id snowflake.ID, transferID string, now time.Time) (int64, error) {
	var transfer *string
	if transferID != "" {
		transfer = &transferID
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE ledger_entries
		 SET status = ?, completed_at = ?, updated_at = ?,
		     external_transfer_id = COALESCE(external_transfer_id, ?)
		 WHERE id = ? AND entry_type = ? AND status = ?`,
		string(domain.EntryStatusCompleted),
		now,
		now,
		transfer,
		id,
		string(domain.EntryTypeOwnerPayout),
		string(domain.EntryStatusPending),
	)
	return result.RowsAffected, result.Error
}

func (r *repo) MarkCompletedByTransfer(ctx context.Context, db *gorm.DB, transferID string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE ledger_entries
		 SET status = ?, completed_at = ?, updated_at = ?
		 WHERE external_transfer_id = ? AND entry_type = ? AND status = ?`,
		string(domain.EntryStatusCompleted),
		now,
		now,
		transferID,
		string(domain.EntryTypeOwnerPayout),
		string(domain.EntryStatusPending),
	)
	return result.RowsAffected, result.Error
}

// ListPendingPayouts returns untransferred payouts whose owner can receive
// them now. Entries for owners without enabled payouts stay out of the batch.
func (r *repo) ListPendingPayouts(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	err := db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE entry_type = ? AND status = ? AND external_transfer_id IS NULL
		   AND amount > 0 AND id > ?
		   AND EXISTS (
		     SELECT 1 FROM payee_accounts p
		     WHERE p.owner_id = ledger_entries.owner_id
		       AND p.payout_enabled = ? AND p.external_account_id <> ''
		   )
		 ORDER BY id ASC
		 LIMIT ?`,
		string(domain.EntryTypeOwnerPayout),
		string(domain.EntryStatusPending),
		afterID,
		true,
		limit,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) ListByRental(ctx context.Context, db *gorm.DB, rentalID snowflake.ID) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	err := db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE rental_id = ?
		 ORDER BY id ASC`,
		rentalID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListByOwner pages newest first. Snowflake ids are time ordered, so the
// id alone is a stable cursor.
func (r *repo) ListByOwner(ctx context.Context, db *gorm.DB, ownerID string, afterID snowflake.ID, limit int) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	stmt := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("owner_id = ?", ownerID)
	if afterID != 0 {
		stmt = stmt.Where("id < ?", afterID)
	}
	err := stmt.
		Order("id desc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
