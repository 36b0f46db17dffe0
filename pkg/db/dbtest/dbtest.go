// Package dbtest opens an in-memory SQLite database carrying the payments
// schema, for package tests that exercise raw SQL repositories.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// Schema mirrors migrations/000001_init_payments.up.sql in SQLite syntax.
var Schema = []string{
	`CREATE TABLE payer_profiles (
		id BIGINT PRIMARY KEY,
		email TEXT NOT NULL,
		provider TEXT NOT NULL,
		external_customer_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		CONSTRAINT ux_payer_profiles_email UNIQUE (provider, email)
	)`,
	`CREATE TABLE orders (
		id BIGINT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		payer_email TEXT NOT NULL,
		mode TEXT NOT NULL,
		currency TEXT NOT NULL,
		total_amount BIGINT NOT NULL CHECK (total_amount > 0),
		status TEXT NOT NULL,
		line_items TEXT NOT NULL,
		external_customer_id TEXT,
		external_session_id TEXT,
		external_payment_id TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME,
		cancelled_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_orders_external_session_id ON orders (external_session_id) WHERE external_session_id IS NOT NULL`,
	`CREATE TABLE buyer_entitlements (
		id BIGINT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		entitlement TEXT NOT NULL,
		order_id BIGINT NOT NULL,
		created_at DATETIME NOT NULL,
		CONSTRAINT ux_buyer_entitlements UNIQUE (buyer_id, entitlement)
	)`,
	`CREATE TABLE payee_accounts (
		id BIGINT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		external_account_id TEXT NOT NULL,
		email TEXT NOT NULL,
		display_name TEXT NOT NULL,
		country TEXT NOT NULL,
		charges_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		payout_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		bank_verified BOOLEAN NOT NULL DEFAULT FALSE,
		details_submitted BOOLEAN NOT NULL DEFAULT FALSE,
		capabilities_synced_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CONSTRAINT ux_payee_accounts_owner UNIQUE (owner_id),
		CONSTRAINT ux_payee_accounts_external UNIQUE (external_account_id)
	)`,
	`CREATE TABLE rentals (
		id BIGINT PRIMARY KEY,
		machine_id TEXT NOT NULL,
		renter_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		start_date DATETIME NOT NULL,
		end_date DATETIME NOT NULL,
		daily_rate BIGINT NOT NULL CHECK (daily_rate > 0),
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		total_amount BIGINT,
		platform_fee BIGINT,
		owner_payout BIGINT,
		fee_schedule TEXT,
		fee_rate TEXT,
		external_payment_id TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		paid_at DATETIME,
		CONSTRAINT ck_rentals_split CHECK (platform_fee IS NULL OR platform_fee + owner_payout = total_amount)
	)`,
	`CREATE UNIQUE INDEX ux_rentals_external_payment_id ON rentals (external_payment_id) WHERE external_payment_id IS NOT NULL`,
	`CREATE TABLE ledger_entries (
		id BIGINT PRIMARY KEY,
		rental_id BIGINT NOT NULL,
		owner_id TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		amount BIGINT NOT NULL CHECK (amount >= 0),
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		external_payment_id TEXT,
		external_transfer_id TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME,
		CONSTRAINT ux_ledger_entries_rental_type UNIQUE (rental_id, entry_type)
	)`,
	`CREATE UNIQUE INDEX ux_ledger_entries_transfer ON ledger_entries (external_transfer_id) WHERE external_transfer_id IS NOT NULL`,
	`CREATE TABLE webhook_events (
		id BIGINT PRIMARY KEY,
		provider TEXT NOT NULL,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		correlation_id TEXT,
		attempts INT NOT NULL DEFAULT 0,
		received_at DATETIME NOT NULL,
		processed_at DATETIME,
		processing_error TEXT,
		CONSTRAINT ux_webhook_events_provider_event UNIQUE (provider, event_id)
	)`,
}

// Open returns a fresh database with Schema applied. Connections are capped
// at one so a transaction and the pool never deadlock on the shared cache.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

// Count runs a COUNT query and fails the test on error.
func Count(t *testing.T, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return count
}
