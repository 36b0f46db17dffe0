package db

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// PersistenceError is a local write that failed after the gateway already
// accepted the corresponding request. ExternalIDs identify the gateway-side
// objects an operator needs to reconcile by hand.
type PersistenceError struct {
	Op          string
	ExternalIDs map[string]string
	Err         error
}

func (e *PersistenceError) Error() string {
	keys := make([]string, 0, len(e.ExternalIDs))
	for k := range e.ExternalIDs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, e.ExternalIDs[k]))
	}
	return fmt.Sprintf("%s: persistence failed after gateway success (%s): %v", e.Op, strings.Join(parts, ","), e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) ErrorKind() string { return "persistence_error" }

func NewPersistenceError(op string, err error, externalIDs map[string]string) *PersistenceError {
	return &PersistenceError{Op: op, ExternalIDs: externalIDs, Err: err}
}
