package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ErrUnsupportedDatabase is returned for database types the repositories
// cannot run on. Their upserts use ON CONFLICT, which postgres and sqlite
// accept and mysql does not.
var ErrUnsupportedDatabase = errors.New("unsupported_database_type")

func validateType(dbType string) error {
	switch dbType {
	case "postgres", "sqlite":
		return nil
	default:
		return fmt.Errorf("%w: %q (supported: postgres, sqlite)", ErrUnsupportedDatabase, dbType)
	}
}

func Dialect(cfg Config) (gorm.Dialector, error) {
	if err := validateType(cfg.Type); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case "postgres":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.Host,
			cfg.User,
			cfg.Password,
			cfg.Name,
			cfg.Port,
			cfg.SSLMode,
		)), nil
	default:
		name := strings.TrimSpace(cfg.Name)
		if name == "" {
			name = "rigmarket.db"
		}
		return sqlite.Open(name), nil
	}
}
