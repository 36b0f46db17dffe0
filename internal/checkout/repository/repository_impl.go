package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rigmarket/internal/checkout/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const orderColumns = `id, buyer_id, payer_email, mode, currency, total_amount, status, line_items,
	external_customer_id, external_session_id, external_payment_id,
	created_at, updated_at, completed_at, cancelled_at`

func (r *repo) InsertOrder(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.BuyerID,
		order.PayerEmail,
		string(order.Mode),
		order.Currency,
		order.TotalAmount,
		string(order.Status),
		order.LineItems,
		order.ExternalCustomerID,
		order.ExternalSessionID,
		order.ExternalPaymentID,
		order.CreatedAt,
		order.UpdatedAt,
		order.CompletedAt,
		order.CancelledAt,
	).Error
}

func (r *repo) FindOrderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	return r.findOrder(ctx, db, `id = ?`, id)
}

func (r *repo) FindOrderBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Order, error) {
	return r.findOrder(ctx, db, `external_session_id = ?`, sessionID)
}

func (r *repo) findOrder(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE `+where+` LIMIT 1`,
		arg,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) MarkProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID, sessionID, customerID string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, external_session_id = ?, external_customer_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(domain.OrderStatusProcessing),
		sessionID,
		customerID,
		now,
		id,
		string(domain.OrderStatusPending),
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Complete(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID, customerID string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, completed_at = ?, updated_at = ?,
		     external_payment_id = COALESCE(NULLIF(?, ''), external_payment_id),
		     external_customer_id = COALESCE(external_customer_id, NULLIF(?, ''))
		 WHERE id = ? AND status IN (?, ?)`,
		string(domain.OrderStatusCompleted),
		now,
		now,
		paymentID,
		customerID,
		id,
		string(domain.OrderStatusPending),
		string(domain.OrderStatusProcessing),
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, cancelled_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(domain.OrderStatusCancelled),
		now,
		now,
		id,
		string(domain.OrderStatusPending),
		string(domain.OrderStatusProcessing),
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ListStaleProcessing(ctx context.Context, db *gorm.DB, afterID snowflake.ID, createdBefore time.Time, limit int) ([]domain.Order, error) {
	var orders []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders
		 WHERE status = ? AND external_session_id IS NOT NULL AND created_at < ? AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		string(domain.OrderStatusProcessing),
		createdBefore,
		afterID,
		limit,
	).Scan(&orders).Error
	return orders, err
}

func (r *repo) InsertEntitlement(ctx context.Context, db *gorm.DB, entitlement *domain.BuyerEntitlement) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO buyer_entitlements (id, buyer_id, entitlement, order_id, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (buyer_id, entitlement) DO NOTHING`,
		entitlement.ID,
		entitlement.BuyerID,
		entitlement.Entitlement,
		entitlement.OrderID,
		entitlement.CreatedAt,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) ListEntitlements(ctx context.Context, db *gorm.DB, buyerID string) ([]domain.BuyerEntitlement, error) {
	var items []domain.BuyerEntitlement
	err := db.WithContext(ctx).Raw(
		`SELECT id, buyer_id, entitlement, order_id, created_at
		 FROM buyer_entitlements
		 WHERE buyer_id = ?
		 ORDER BY entitlement ASC`,
		buyerID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) FindPayer(ctx context.Context, db *gorm.DB, provider, email string) (*domain.PayerProfile, error) {
	var payer domain.PayerProfile
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, provider, external_customer_id, created_at
		 FROM payer_profiles
		 WHERE provider = ? AND email = ?
		 LIMIT 1`,
		provider,
		email,
	).Scan(&payer).Error
	if err != nil {
		return nil, err
	}
	if payer.ID == 0 {
		return nil, nil
	}
	return &payer, nil
}

func (r *repo) InsertPayerIfAbsent(ctx context.Context, db *gorm.DB, payer *domain.PayerProfile) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO payer_profiles (id, email, provider, external_customer_id, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (provider, email) DO NOTHING`,
		payer.ID,
		payer.Email,
		payer.Provider,
		payer.ExternalCustomerID,
		payer.CreatedAt,
	)
	return result.RowsAffected > 0, result.Error
}
