package repository

import (
	"context"
	"time"

	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	"github.com/smallbiznis/rigmarket/internal/payee/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const insertColumns = `id, owner_id, provider, external_account_id, email, display_name, country,
	charges_enabled, payout_enabled, bank_verified, details_submitted, created_at, updated_at`

const accountColumns = insertColumns + `, capabilities_synced_at`

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, account *domain.PayeeAccount) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO payee_accounts (`+insertColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (owner_id) DO NOTHING`,
		account.ID,
		account.OwnerID,
		account.Provider,
		account.ExternalAccountID,
		account.Email,
		account.DisplayName,
		account.Country,
		false,
		false,
		false,
		false,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByOwner(ctx context.Context, db *gorm.DB, ownerID string) (*domain.PayeeAccount, error) {
	return r.findOne(ctx, db, `owner_id = ?`, ownerID)
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalAccountID string) (*domain.PayeeAccount, error) {
	return r.findOne(ctx, db, `external_account_id = ?`, externalAccountID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.PayeeAccount, error) {
	var account domain.PayeeAccount
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM payee_accounts WHERE `+where+` LIMIT 1`,
		arg,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) UpdateCapabilities(ctx context.Context, db *gorm.DB, update *gatewaydomain.AccountUpdate, now time.Time) (int64, error) {
	syncedAt := update.OccurredAt.UTC()
	if update.OccurredAt.IsZero() {
		syncedAt = now.UTC()
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE payee_accounts
		 SET charges_enabled = ?, payout_enabled = ?, bank_verified = ?, details_submitted = ?,
		     capabilities_synced_at = ?, updated_at = ?
		 WHERE external_account_id = ?
		   AND (capabilities_synced_at IS NULL OR capabilities_synced_at <= ?)`,
		update.ChargesEnabled,
		update.PayoutsEnabled,
		update.BankVerified,
		update.DetailsSubmitted,
		syncedAt,
		now,
		update.AccountID,
		syncedAt,
	)
	return result.RowsAffected, result.Error
}
