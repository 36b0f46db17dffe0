package domain

import (
	"context"
	"time"

	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertIfAbsent reports false when the owner already has an account.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, account *PayeeAccount) (bool, error)
	FindByOwner(ctx context.Context, db *gorm.DB, ownerID string) (*PayeeAccount, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalAccountID string) (*PayeeAccount, error)
	UpdateCapabilities(ctx context.Context, db *gorm.DB, update *gatewaydomain.AccountUpdate, now time.Time) (int64, error)
}
