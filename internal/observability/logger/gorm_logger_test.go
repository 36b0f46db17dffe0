package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationAndTableFromSQL(t *testing.T) {
	cases := []struct {
		sql       string
		operation string
		table     string
	}{
		{sql: "SELECT id FROM rentals WHERE id = ?", operation: "SELECT", table: "rentals"},
		{sql: "INSERT INTO ledger_entries (id) VALUES (?)", operation: "INSERT", table: "ledger_entries"},
		{sql: "UPDATE orders SET status = ?", operation: "UPDATE", table: "orders"},
		{sql: "WITH x AS (SELECT 1) SELECT * FROM x", operation: "SELECT", table: "x"},
		{sql: "", operation: "UNKNOWN", table: ""},
	}
	for _, tc := range cases {
		if got := operationFromSQL(tc.sql); got != tc.operation {
			t.Fatalf("operationFromSQL(%q) = %q, want %q", tc.sql, got, tc.operation)
		}
		if got := tableFromSQL(tc.sql); got != tc.table {
			t.Fatalf("tableFromSQL(%q) = %q, want %q", tc.sql, got, tc.table)
		}
	}
}

func TestGormLoggerTraceLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), GormLoggerConfig{Level: gormlogger.Warn, SlowThreshold: 10 * time.Millisecond})

	fc := func() (string, int64) { return "UPDATE rentals SET status = 'confirmed'", 1 }
	l.Trace(context.Background(), time.Now().Add(-time.Second), fc, nil)
	l.Trace(context.Background(), time.Now(), fc, errors.New("boom"))
	l.Trace(context.Background(), time.Now(), fc, nil)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected slow query at warn, got %s", entries[0].Level)
	}
	if entries[1].Level != zapcore.ErrorLevel {
		t.Fatalf("expected failed query at error, got %s", entries[1].Level)
	}
	if entries[1].ContextMap()["table"] != "rentals" {
		t.Fatalf("expected table field, got %v", entries[1].ContextMap()["table"])
	}
}
