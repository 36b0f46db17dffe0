package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertOrder(ctx context.Context, db *gorm.DB, order *Order) error
	FindOrderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindOrderBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*Order, error)
	// MarkProcessing attaches the gateway session to a pending order.
	MarkProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID, sessionID, customerID string, now time.Time) (int64, error)
	// Complete and Cancel only move pending or processing orders.
	Complete(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID, customerID string, now time.Time) (int64, error)
	Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (int64, error)
	ListStaleProcessing(ctx context.Context, db *gorm.DB, afterID snowflake.ID, createdBefore time.Time, limit int) ([]Order, error)

	InsertEntitlement(ctx context.Context, db *gorm.DB, entitlement *BuyerEntitlement) (bool, error)
	ListEntitlements(ctx context.Context, db *gorm.DB, buyerID string) ([]BuyerEntitlement, error)

	FindPayer(ctx context.Context, db *gorm.DB, provider, email string) (*PayerProfile, error)
	InsertPayerIfAbsent(ctx context.Context, db *gorm.DB, payer *PayerProfile) (bool, error)
}
